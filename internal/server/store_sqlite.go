package server

import (
	"database/sql"
	"errors"
)

type SQLiteStore struct {
	DB *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{DB: db}
}

func (s *SQLiteStore) Close() error {
	return s.DB.Close()
}

func (s *SQLiteStore) View(fn func(tx Tx) error) error {
	return s.run(fn)
}

func (s *SQLiteStore) Update(fn func(tx Tx) error) error {
	return s.run(fn)
}

func (s *SQLiteStore) run(fn func(tx Tx) error) error {
	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	if err := fn(&sqliteTx{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

type sqliteTx struct {
	tx *sql.Tx
}

const accountCols = `id, username, email, password_hash, coins, has_active_server, is_admin, created_at`

func scanAccount(row interface{ Scan(...any) error }) (*Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Username, &a.Email, &a.PasswordHash, &a.Coins, &a.HasActiveServer, &a.IsAdmin, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (t *sqliteTx) CreateAccount(a *Account) error {
	_, err := t.tx.Exec(
		`INSERT INTO accounts (`+accountCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Username, a.Email, a.PasswordHash, a.Coins, a.HasActiveServer, a.IsAdmin, a.CreatedAt,
	)
	return err
}

func (t *sqliteTx) Account(id string) (*Account, error) {
	return scanAccount(t.tx.QueryRow(`SELECT `+accountCols+` FROM accounts WHERE id = ?`, id))
}

func (t *sqliteTx) AccountByUsername(username string) (*Account, error) {
	return scanAccount(t.tx.QueryRow(`SELECT `+accountCols+` FROM accounts WHERE username = ?`, username))
}

func (t *sqliteTx) Accounts() ([]*Account, error) {
	rows, err := t.tx.Query(`SELECT ` + accountCols + ` FROM accounts ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (t *sqliteTx) SaveAccount(a *Account) error {
	res, err := t.tx.Exec(
		`UPDATE accounts
		 SET username=?, email=?, password_hash=?, coins=?, has_active_server=?, is_admin=?
		 WHERE id=?`,
		a.Username, a.Email, a.PasswordHash, a.Coins, a.HasActiveServer, a.IsAdmin, a.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return ErrNotFound
	}
	return err
}

func (t *sqliteTx) TopWaitingAccount() (*Account, error) {
	return scanAccount(t.tx.QueryRow(
		`SELECT ` + accountCols + ` FROM accounts
		 WHERE has_active_server = 0 AND coins > 0
		 ORDER BY coins DESC, id ASC
		 LIMIT 1`,
	))
}

const serverCols = `id, name, host_url, host_username, host_password, owner_id, status, assigned_at, created_at`

func scanServer(row interface{ Scan(...any) error }) (*Server, error) {
	var s Server
	var owner sql.NullString
	var assignedAt sql.NullInt64
	err := row.Scan(&s.ID, &s.Name, &s.HostURL, &s.HostUsername, &s.HostPassword, &owner, &s.Status, &assignedAt, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	s.OwnerID = owner.String
	s.AssignedAt = assignedAt.Int64
	return &s, nil
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(n int64) any {
	if n == 0 {
		return nil
	}
	return n
}

func (t *sqliteTx) CreateServer(s *Server) error {
	_, err := t.tx.Exec(
		`INSERT INTO servers (`+serverCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.Name, s.HostURL, s.HostUsername, s.HostPassword, nullStr(s.OwnerID), s.Status, nullInt(s.AssignedAt), s.CreatedAt,
	)
	return err
}

func (t *sqliteTx) Server(id string) (*Server, error) {
	return scanServer(t.tx.QueryRow(`SELECT `+serverCols+` FROM servers WHERE id = ?`, id))
}

func (t *sqliteTx) ServerByOwner(accountID string) (*Server, error) {
	return scanServer(t.tx.QueryRow(
		`SELECT `+serverCols+` FROM servers WHERE owner_id = ? AND status = ?`,
		accountID, StatusActive,
	))
}

func (t *sqliteTx) Servers() ([]*Server, error) {
	return t.queryServers(`SELECT ` + serverCols + ` FROM servers ORDER BY created_at, id`)
}

func (t *sqliteTx) ServersByStatus(status string) ([]*Server, error) {
	return t.queryServers(`SELECT `+serverCols+` FROM servers WHERE status = ? ORDER BY created_at, id`, status)
}

func (t *sqliteTx) queryServers(q string, args ...any) ([]*Server, error) {
	rows, err := t.tx.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Server
	for rows.Next() {
		s, err := scanServer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (t *sqliteTx) FirstAvailableServer() (*Server, error) {
	return scanServer(t.tx.QueryRow(
		`SELECT `+serverCols+` FROM servers WHERE status = ? ORDER BY created_at, id LIMIT 1`,
		StatusAvailable,
	))
}

func (t *sqliteTx) SaveServer(s *Server) error {
	res, err := t.tx.Exec(
		`UPDATE servers
		 SET name=?, host_url=?, host_username=?, host_password=?, owner_id=?, status=?, assigned_at=?
		 WHERE id=?`,
		s.Name, s.HostURL, s.HostUsername, s.HostPassword, nullStr(s.OwnerID), s.Status, nullInt(s.AssignedAt), s.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return ErrNotFound
	}
	return err
}

func (t *sqliteTx) DeleteServer(id string) error {
	res, err := t.tx.Exec(`DELETE FROM servers WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return ErrNotFound
	}
	return err
}

func (t *sqliteTx) CountServersByStatus(status string) (int, error) {
	var n int
	err := t.tx.QueryRow(`SELECT COUNT(*) FROM servers WHERE status = ?`, status).Scan(&n)
	return n, err
}

func (t *sqliteTx) CreateSession(s *Session) error {
	_, err := t.tx.Exec(
		`INSERT INTO sessions (token, account_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		s.Token, s.AccountID, s.CreatedAt, s.ExpiresAt,
	)
	return err
}

func (t *sqliteTx) SessionByToken(token string) (*Session, error) {
	var s Session
	err := t.tx.QueryRow(
		`SELECT token, account_id, created_at, expires_at FROM sessions WHERE token = ?`, token,
	).Scan(&s.Token, &s.AccountID, &s.CreatedAt, &s.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (t *sqliteTx) DeleteSession(token string) error {
	_, err := t.tx.Exec(`DELETE FROM sessions WHERE token = ?`, token)
	return err
}
