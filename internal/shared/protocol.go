package shared

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type UserView struct {
	ID              string `json:"id"`
	Username        string `json:"username"`
	Email           string `json:"email"`
	Coins           int64  `json:"coins"`
	HasActiveServer bool   `json:"hasActiveServer"`
	IsAdmin         bool   `json:"isAdmin"`
	CreatedAt       int64  `json:"createdAt"`
}

type AuthResponse struct {
	Token string   `json:"token"`
	User  UserView `json:"user"`
}

// MyServerResponse is what a renter sees: the hosting credentials behind the
// server stay server-side.
type MyServerResponse struct {
	ServerName string `json:"serverName"`
	AssignedAt int64  `json:"assignedAt"`
}

type AddServerRequest struct {
	ServerName   string `json:"serverName"`
	HostURL      string `json:"hostUrl"`
	HostUsername string `json:"hostUsername"`
	HostPassword string `json:"hostPassword"`
}

type AddCoinsRequest struct {
	Amount int64 `json:"amount"`
}

type OwnerSummary struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Coins    int64  `json:"coins"`
}

// AdminServerView is the full pool record, owner populated when assigned.
type AdminServerView struct {
	ID           string        `json:"id"`
	ServerName   string        `json:"serverName"`
	HostURL      string        `json:"hostUrl"`
	HostUsername string        `json:"hostUsername"`
	HostPassword string        `json:"hostPassword"`
	Status       string        `json:"status"`
	AssignedAt   int64         `json:"assignedAt,omitempty"`
	CreatedAt    int64         `json:"createdAt"`
	Owner        *OwnerSummary `json:"owner,omitempty"`
}
