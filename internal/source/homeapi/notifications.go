package homeapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/nhle/homenotify/internal/model"
)

// envelope is the {"data": ...} wrapper every API response uses.
type envelope struct {
	Data json.RawMessage `json:"data"`
}

// FetchAll returns the user's complete notification list. Records that
// fail validation are dropped; the rest of the batch is kept.
func (c *Client) FetchAll(ctx context.Context, token string) ([]model.Notification, error) {
	var env envelope
	if err := c.do(ctx, http.MethodGet, "/api/v1/notifications", token, nil, &env); err != nil {
		return nil, fmt.Errorf("homeapi.FetchAll: %w", err)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, nil
	}

	records, _, err := c.decoder.DecodeList(env.Data)
	if err != nil {
		return nil, fmt.Errorf("homeapi.FetchAll: %w", err)
	}
	return records, nil
}

// SetStatus marks a notification read or unread.
func (c *Client) SetStatus(ctx context.Context, token, id string, status model.Status) error {
	body := map[string]string{"status": string(status)}
	path := "/api/v1/notifications/" + url.PathEscape(id)
	if err := c.do(ctx, http.MethodPatch, path, token, body, nil); err != nil {
		return fmt.Errorf("homeapi.SetStatus: %w", err)
	}
	return nil
}

// Delete removes a notification.
func (c *Client) Delete(ctx context.Context, token, id string) error {
	path := "/api/v1/notifications/" + url.PathEscape(id)
	if err := c.do(ctx, http.MethodDelete, path, token, nil, nil); err != nil {
		return fmt.Errorf("homeapi.Delete: %w", err)
	}
	return nil
}
