package auth

import (
	"time"
)

// SessionRequest opens a viewing session
type SessionRequest struct {
	// Label is a free-form client name shown in logs.
	Label string `json:"label" validate:"omitempty,min=1,max=64,printascii"`
	// StartPosition is where the client intends to begin travelling.
	StartPosition float64 `json:"start_position" validate:"gte=0"`
}

// SessionResponse carries the viewer identity and, when enabled, its stream token
type SessionResponse struct {
	ViewerID      string     `json:"viewer_id"`
	Token         string     `json:"token,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	TokenRequired bool       `json:"token_required"`
}

// SessionInfo describes the caller's current token
type SessionInfo struct {
	ViewerID  string    `json:"viewer_id"`
	Label     string    `json:"label,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
}
