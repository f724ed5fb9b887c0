package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind is the cosmetic classification of a notification. It never
// influences merge logic.
type Kind string

const (
	KindInfo    Kind = "info"
	KindWarning Kind = "warning"
	KindError   Kind = "error"
	KindSuccess Kind = "success"
)

// ParseKind normalizes a wire value into a Kind. Unknown values fall back
// to KindInfo.
func ParseKind(raw string) Kind {
	switch Kind(strings.ToLower(strings.TrimSpace(raw))) {
	case KindWarning:
		return KindWarning
	case KindError:
		return KindError
	case KindSuccess:
		return KindSuccess
	default:
		return KindInfo
	}
}

// Status is the read state of a notification.
type Status string

const (
	StatusUnread Status = "unread"
	StatusRead   Status = "read"
)

// ParseStatus converts a wire value into a Status.
func ParseStatus(raw string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(raw))) {
	case StatusUnread:
		return StatusUnread, nil
	case StatusRead:
		return StatusRead, nil
	}
	return "", fmt.Errorf("unknown notification status %q", raw)
}

// ErrMalformed is returned by Validate for records that cannot be merged.
var ErrMalformed = errors.New("malformed notification")

// Notification is a single server-side notification as seen by the client.
type Notification struct {
	// ID is the server-assigned identifier. It is stable across push and
	// poll delivery and is the only deduplication key.
	ID string `json:"id"`

	// Header is the short title.
	Header string `json:"header"`

	// Description is the body text.
	Description string `json:"description"`

	// Kind classifies the notification for display.
	Kind Kind `json:"type"`

	// Status is the read state.
	Status Status `json:"status"`

	// CreatedAt is the authoritative ordering field.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is informational only.
	UpdatedAt time.Time `json:"updated_at"`
}

// IsUnread reports whether the notification has not been read.
func (n Notification) IsUnread() bool {
	return n.Status != StatusRead
}

// Validate checks the fields required for a record to take part in a merge.
func (n Notification) Validate() error {
	if strings.TrimSpace(n.ID) == "" {
		return fmt.Errorf("%w: missing id", ErrMalformed)
	}
	if n.CreatedAt.IsZero() {
		return fmt.Errorf("%w: %s has no created_at", ErrMalformed, n.ID)
	}
	return nil
}

// NewerFirst orders notifications by CreatedAt descending, breaking ties
// by ID so the order is deterministic.
func NewerFirst(a, b Notification) int {
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}
