package authapi

import "time"

type signupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type accountResponse struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
}

type sessionResponse struct {
	ID             string    `json:"id"`
	Browser        string    `json:"browser"`
	OS             string    `json:"os"`
	DeviceClass    string    `json:"device_class"`
	IP             string    `json:"ip"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	Current        bool      `json:"current"`
}

type authResponse struct {
	AccessToken string          `json:"access_token"`
	ExpiresAt   time.Time       `json:"expires_at"`
	TokenType   string          `json:"token_type"`
	Account     accountResponse `json:"account"`
	Session     sessionResponse `json:"session"`
}

type refreshResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	TokenType   string    `json:"token_type"`
}

type activityResponse struct {
	LastActivity         time.Time `json:"last_activity"`
	TimeRemainingSeconds int64     `json:"time_remaining_seconds"`
}

type sessionInfoResponse struct {
	SessionID            string    `json:"session_id"`
	LastActivity         time.Time `json:"last_activity"`
	ExpiresAt            time.Time `json:"expires_at"`
	TimeRemainingSeconds int64     `json:"time_remaining_seconds"`
	Expired              bool      `json:"expired"`
}

type sessionsResponse struct {
	Sessions         []sessionResponse `json:"sessions"`
	CurrentSessionID string            `json:"current_session_id"`
}

type terminatedResponse struct {
	Terminated int `json:"terminated"`
}
