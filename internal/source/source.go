package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/nhle/homenotify/internal/model"
)

// AuthError indicates that authentication has failed or expired.
// It is returned by backend clients when a 401 response is received.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error: %s", e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// ErrNotFound is returned when the backend does not know a notification id.
var ErrNotFound = errors.New("notification not found on server")

// Backend is the notification REST API the sync pipeline consumes.
type Backend interface {
	// FetchAll returns the complete, authoritative notification set for the
	// token's user, in any order. Malformed records are already dropped.
	FetchAll(ctx context.Context, token string) ([]model.Notification, error)

	// SetStatus marks a notification read or unread on the server.
	SetStatus(ctx context.Context, token, id string, status model.Status) error

	// Delete removes a notification on the server.
	Delete(ctx context.Context, token, id string) error
}
