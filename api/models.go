package api

// RegisterRequest is the JSON body for POST /auth/register.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// LoginRequest is the JSON body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is returned from POST /auth/login. The session ID is also
// set as a cookie; the body copy serves non-browser clients that send it
// back in the x-session-id header.
type LoginResponse struct {
	SessionID string `json:"session_id"`
}

// AccountResponse describes the authenticated account for GET /auth/me.
type AccountResponse struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	Name        string `json:"name"`
	Role        string `json:"role"`
	Plan        string `json:"plan"`
	Subscriber  bool   `json:"subscriber"`
	CreatedAt   string `json:"created_at"`
	LastLoginAt string `json:"last_login_at,omitempty"`
}

// ResetRequestRequest is the JSON body for POST /auth/reset/request.
type ResetRequestRequest struct {
	Email string `json:"email"`
}

// ResetCompleteRequest is the JSON body for POST /auth/reset/complete.
type ResetCompleteRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// OKResponse is the generic success body for operations with no payload.
type OKResponse struct {
	OK bool `json:"ok"`
}

// LoginHistoryResponse is returned from GET /admin/history/logins.
type LoginHistoryResponse struct {
	Records []LoginHistoryEntry `json:"records"`
}

// LoginHistoryEntry is one row of the login audit trail.
type LoginHistoryEntry struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Success   bool   `json:"success"`
	IP        string `json:"ip,omitempty"`
	UAHash    string `json:"ua_hash,omitempty"`
	Timestamp string `json:"timestamp"`
}

// LogoutHistoryResponse is returned from GET /admin/history/logouts.
type LogoutHistoryResponse struct {
	Records []LogoutHistoryEntry `json:"records"`
}

// LogoutHistoryEntry is one row of the logout audit trail.
type LogoutHistoryEntry struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	IP        string `json:"ip,omitempty"`
	Timestamp string `json:"timestamp"`
}

// ErrorResponse is returned for all error cases.
type ErrorResponse struct {
	Error string `json:"error"`
}
