package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// SessionHandlers handles session HTTP endpoints
type SessionHandlers struct {
	tokens    *TokenService
	validator *validator.Validate
}

// NewSessionHandlers creates a new session handlers instance
func NewSessionHandlers(tokens *TokenService) *SessionHandlers {
	return &SessionHandlers{
		tokens:    tokens,
		validator: validator.New(),
	}
}

// Tokens returns the underlying token service
func (h *SessionHandlers) Tokens() *TokenService {
	return h.tokens
}

// CreateSession assigns a viewer ID and, when tokens are enabled, a stream token
// POST /api/session
func (h *SessionHandlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req SessionRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.sendError(w, http.StatusBadRequest, "InvalidRequest", "Invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		h.sendValidationError(w, err)
		return
	}

	response := SessionResponse{
		ViewerID:      uuid.NewString(),
		TokenRequired: h.tokens.Enabled(),
	}

	if h.tokens.Enabled() {
		token, expiresAt, err := h.tokens.GenerateStreamToken(response.ViewerID, req.Label)
		if err != nil {
			log.Printf("Error generating stream token: %v", err)
			h.sendError(w, http.StatusInternalServerError, "InternalError", "Failed to generate token")
			return
		}
		response.Token = token
		response.ExpiresAt = &expiresAt
	}

	log.Printf("[Session] viewer %s created (label=%q start=%.2f)", response.ViewerID, req.Label, req.StartPosition)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("Error encoding session response: %v", err)
	}
}

// GetSession describes the caller's token
// GET /api/session
func (h *SessionHandlers) GetSession(w http.ResponseWriter, r *http.Request) {
	claims, ok := GetClaims(r)
	if !ok {
		h.sendError(w, http.StatusNotFound, "NoSession", "Stream tokens are disabled on this server")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(SessionInfo{
		ViewerID:  claims.ViewerID,
		Label:     claims.Label,
		ExpiresAt: claims.ExpiresAt.Time,
	}); err != nil {
		log.Printf("Error encoding session info: %v", err)
	}
}

func (h *SessionHandlers) sendError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   code,
		Message: message,
		Code:    code,
	})
}

func (h *SessionHandlers) sendValidationError(w http.ResponseWriter, err error) {
	var validationErrors []string
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			validationErrors = append(validationErrors, fmt.Sprintf("%s: %s", fe.Field(), getValidationMessage(fe)))
		}
	}

	h.sendError(w, http.StatusBadRequest, "ValidationError", strings.Join(validationErrors, "; "))
}

func getValidationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "printascii":
		return "must contain only printable ASCII characters"
	default:
		return fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}
