package server

import (
	"sort"
	"sync"
)

// MemStore keeps everything in maps behind one mutex. It backs unit tests and
// makes a usable dev-mode store; transactions roll back by snapshotting state
// before the closure runs.
type MemStore struct {
	mu sync.Mutex

	accounts map[string]*Account
	servers  map[string]*Server
	sessions map[string]*Session
}

func NewMemStore() *MemStore {
	return &MemStore{
		accounts: map[string]*Account{},
		servers:  map[string]*Server{},
		sessions: map[string]*Session{},
	}
}

func (s *MemStore) Close() error { return nil }

func (s *MemStore) View(fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&memTx{store: s})
}

func (s *MemStore) Update(fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts, servers, sessions := s.snapshot()
	if err := fn(&memTx{store: s}); err != nil {
		s.accounts, s.servers, s.sessions = accounts, servers, sessions
		return err
	}
	return nil
}

func (s *MemStore) snapshot() (map[string]*Account, map[string]*Server, map[string]*Session) {
	accounts := make(map[string]*Account, len(s.accounts))
	for k, v := range s.accounts {
		c := *v
		accounts[k] = &c
	}
	servers := make(map[string]*Server, len(s.servers))
	for k, v := range s.servers {
		c := *v
		servers[k] = &c
	}
	sessions := make(map[string]*Session, len(s.sessions))
	for k, v := range s.sessions {
		c := *v
		sessions[k] = &c
	}
	return accounts, servers, sessions
}

type memTx struct {
	store *MemStore
}

func (t *memTx) CreateAccount(a *Account) error {
	c := *a
	t.store.accounts[a.ID] = &c
	return nil
}

func (t *memTx) Account(id string) (*Account, error) {
	a, ok := t.store.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *a
	return &c, nil
}

func (t *memTx) AccountByUsername(username string) (*Account, error) {
	for _, a := range t.store.accounts {
		if a.Username == username {
			c := *a
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (t *memTx) Accounts() ([]*Account, error) {
	out := make([]*Account, 0, len(t.store.accounts))
	for _, a := range t.store.accounts {
		c := *a
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *memTx) SaveAccount(a *Account) error {
	if _, ok := t.store.accounts[a.ID]; !ok {
		return ErrNotFound
	}
	c := *a
	t.store.accounts[a.ID] = &c
	return nil
}

func (t *memTx) TopWaitingAccount() (*Account, error) {
	var best *Account
	for _, a := range t.store.accounts {
		if a.HasActiveServer || a.Coins <= 0 {
			continue
		}
		if best == nil || a.Coins > best.Coins || (a.Coins == best.Coins && a.ID < best.ID) {
			best = a
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	c := *best
	return &c, nil
}

func (t *memTx) CreateServer(s *Server) error {
	c := *s
	t.store.servers[s.ID] = &c
	return nil
}

func (t *memTx) Server(id string) (*Server, error) {
	s, ok := t.store.servers[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *s
	return &c, nil
}

func (t *memTx) ServerByOwner(accountID string) (*Server, error) {
	for _, s := range t.store.servers {
		if s.Status == StatusActive && s.OwnerID == accountID {
			c := *s
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (t *memTx) Servers() ([]*Server, error) {
	out := make([]*Server, 0, len(t.store.servers))
	for _, s := range t.store.servers {
		c := *s
		out = append(out, &c)
	}
	sortServers(out)
	return out, nil
}

func (t *memTx) ServersByStatus(status string) ([]*Server, error) {
	var out []*Server
	for _, s := range t.store.servers {
		if s.Status == status {
			c := *s
			out = append(out, &c)
		}
	}
	sortServers(out)
	return out, nil
}

func (t *memTx) FirstAvailableServer() (*Server, error) {
	avail, err := t.ServersByStatus(StatusAvailable)
	if err != nil || len(avail) == 0 {
		return nil, ErrNotFound
	}
	return avail[0], nil
}

func (t *memTx) SaveServer(s *Server) error {
	if _, ok := t.store.servers[s.ID]; !ok {
		return ErrNotFound
	}
	c := *s
	t.store.servers[s.ID] = &c
	return nil
}

func (t *memTx) DeleteServer(id string) error {
	if _, ok := t.store.servers[id]; !ok {
		return ErrNotFound
	}
	delete(t.store.servers, id)
	return nil
}

func (t *memTx) CountServersByStatus(status string) (int, error) {
	n := 0
	for _, s := range t.store.servers {
		if s.Status == status {
			n++
		}
	}
	return n, nil
}

func (t *memTx) CreateSession(s *Session) error {
	c := *s
	t.store.sessions[s.Token] = &c
	return nil
}

func (t *memTx) SessionByToken(token string) (*Session, error) {
	s, ok := t.store.sessions[token]
	if !ok {
		return nil, ErrNotFound
	}
	c := *s
	return &c, nil
}

func (t *memTx) DeleteSession(token string) error {
	delete(t.store.sessions, token)
	return nil
}

func sortServers(list []*Server) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt != list[j].CreatedAt {
			return list[i].CreatedAt < list[j].CreatedAt
		}
		return list[i].ID < list[j].ID
	})
}
