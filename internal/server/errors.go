// Package server provides the HTTP API for the conversation engine.
package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/mkobayashi/screenflow/internal/engine"
)

// ErrConversationNotFound indicates the conversation does not exist in the
// caller's tenant.
type ErrConversationNotFound struct {
	ConversationID uuid.UUID
}

func (e *ErrConversationNotFound) Error() string {
	return fmt.Sprintf("conversation not found: %s", e.ConversationID)
}

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var notFound *ErrConversationNotFound
	var invalid *ErrValidation
	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &invalid):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrNotRunnable):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
