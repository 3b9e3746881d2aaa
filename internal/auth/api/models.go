package api

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

type refreshResponse struct {
	UserID    string `json:"user_id"`
	Refreshed bool   `json:"refreshed"`
}

type whoamiResponse struct {
	UserID        string `json:"user_id"`
	Authenticated bool   `json:"authenticated"`
	Source        string `json:"source"`
}
