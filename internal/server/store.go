package server

import "errors"

// ErrNotFound is returned by store lookups for absent records.
var ErrNotFound = errors.New("not found")

// Server status values. A server is either sitting in the pool or assigned
// to exactly one account; there is no third state.
const (
	StatusAvailable = "available"
	StatusActive    = "active"
)

type Account struct {
	ID              string
	Username        string
	Email           string
	PasswordHash    string
	Coins           int64
	HasActiveServer bool
	IsAdmin         bool
	CreatedAt       int64
}

// Server is one hostable unit in the pool. HostURL/HostUsername/HostPassword
// are the upstream provisioning credentials and must never reach non-admin
// responses.
type Server struct {
	ID           string
	Name         string
	HostURL      string
	HostUsername string
	HostPassword string
	OwnerID      string // empty when available
	Status       string
	AssignedAt   int64 // unix seconds, 0 when unassigned
	CreatedAt    int64
}

type Session struct {
	Token     string
	AccountID string
	CreatedAt int64
	ExpiresAt int64
}

// Tx is the record-level API visible inside a store transaction. Mutations
// performed through one Tx commit or roll back together.
type Tx interface {
	CreateAccount(a *Account) error
	Account(id string) (*Account, error)
	AccountByUsername(username string) (*Account, error)
	Accounts() ([]*Account, error)
	SaveAccount(a *Account) error
	// TopWaitingAccount returns the account with has_active_server false and
	// coins > 0 that has the highest balance, ties broken by ascending id.
	TopWaitingAccount() (*Account, error)

	CreateServer(s *Server) error
	Server(id string) (*Server, error)
	ServerByOwner(accountID string) (*Server, error)
	Servers() ([]*Server, error)
	ServersByStatus(status string) ([]*Server, error)
	// FirstAvailableServer returns the oldest available server, ordered by
	// (created_at, id) so selection is deterministic for a given pool.
	FirstAvailableServer() (*Server, error)
	SaveServer(s *Server) error
	DeleteServer(id string) error
	CountServersByStatus(status string) (int, error)

	CreateSession(s *Session) error
	SessionByToken(token string) (*Session, error)
	DeleteSession(token string) error
}

// Store runs closures against the records. Update closures are serialized:
// two concurrent Updates never observe each other's partial writes.
type Store interface {
	View(fn func(tx Tx) error) error
	Update(fn func(tx Tx) error) error
	Close() error
}
