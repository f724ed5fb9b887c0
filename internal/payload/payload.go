// Package payload decodes notification records arriving from the REST
// backend and the live channel. Each record is validated against a JSON
// schema on its own so one bad record never spoils a batch.
package payload

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/nhle/homenotify/internal/model"
)

const schemaURL = "https://homenotify.local/schema/notification.json"

// recordSchema describes one wire notification. The backend has sent ids
// as both strings and integers.
const recordSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["id", "created_at"],
  "properties": {
    "id": {
      "anyOf": [
        {"type": "string", "minLength": 1},
        {"type": "integer"}
      ]
    },
    "user_id": {},
    "type": {"type": "string"},
    "header": {"type": "string"},
    "description": {"type": "string"},
    "status": {"enum": ["read", "unread"]},
    "created_at": {"type": "string", "minLength": 1},
    "updated_at": {"type": ["string", "null"]}
  }
}`

// wireRecord is the JSON shape of a notification on the wire.
type wireRecord struct {
	ID          flexID  `json:"id"`
	Type        string  `json:"type"`
	Header      string  `json:"header"`
	Description string  `json:"description"`
	Status      string  `json:"status"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   *string `json:"updated_at"`
}

// flexID accepts a JSON string or number and keeps its text form.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}

	text := strings.TrimSpace(string(b))
	if strings.ContainsAny(text, ".eE") {
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return err
		}
		text = strconv.FormatInt(int64(v), 10)
	}
	*f = flexID(text)
	return nil
}

// Decoder validates and converts wire records.
type Decoder struct {
	schema *jsonschema.Schema
}

// NewDecoder compiles the record schema.
func NewDecoder() (*Decoder, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(recordSchema))
	if err != nil {
		return nil, fmt.Errorf("parsing notification schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, doc); err != nil {
		return nil, fmt.Errorf("adding notification schema: %w", err)
	}
	sch, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compiling notification schema: %w", err)
	}

	return &Decoder{schema: sch}, nil
}

// MustDecoder is NewDecoder for package-level initialization; the schema
// is a constant so failure is a programming error.
func MustDecoder() *Decoder {
	d, err := NewDecoder()
	if err != nil {
		panic(err)
	}
	return d
}

// DecodeOne validates and converts a single wire record.
func (d *Decoder) DecodeOne(raw []byte) (model.Notification, error) {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return model.Notification{}, fmt.Errorf("%w: %v", model.ErrMalformed, err)
	}
	if err := d.schema.Validate(inst); err != nil {
		return model.Notification{}, fmt.Errorf("%w: %v", model.ErrMalformed, err)
	}

	var w wireRecord
	if err := json.Unmarshal(raw, &w); err != nil {
		return model.Notification{}, fmt.Errorf("%w: %v", model.ErrMalformed, err)
	}

	return w.toModel()
}

// DecodeList converts a JSON array of wire records, dropping any record
// that fails validation. It returns the number of dropped records; err is
// only set when raw is not an array at all.
func (d *Decoder) DecodeList(raw []byte) ([]model.Notification, int, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, 0, fmt.Errorf("decoding notification list: %w", err)
	}

	out := make([]model.Notification, 0, len(items))
	dropped := 0
	for _, item := range items {
		n, err := d.DecodeOne(item)
		if err != nil {
			dropped++
			continue
		}
		out = append(out, n)
	}
	return out, dropped, nil
}

// Encode renders a notification in wire form.
func Encode(n model.Notification) ([]byte, error) {
	return json.Marshal(map[string]any{
		"id":          n.ID,
		"type":        string(n.Kind),
		"header":      n.Header,
		"description": n.Description,
		"status":      string(n.Status),
		"created_at":  n.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at":  n.UpdatedAt.UTC().Format(time.RFC3339Nano),
	})
}

func (w wireRecord) toModel() (model.Notification, error) {
	id := strings.TrimSpace(string(w.ID))

	created, err := parseTime(w.CreatedAt)
	if err != nil {
		return model.Notification{}, fmt.Errorf("%w: created_at: %v", model.ErrMalformed, err)
	}

	n := model.Notification{
		ID:          id,
		Header:      w.Header,
		Description: w.Description,
		Kind:        model.ParseKind(w.Type),
		Status:      model.StatusUnread,
		CreatedAt:   created,
		UpdatedAt:   created,
	}
	if w.Status != "" {
		if st, err := model.ParseStatus(w.Status); err == nil {
			n.Status = st
		}
	}
	if w.UpdatedAt != nil && *w.UpdatedAt != "" {
		if updated, err := parseTime(*w.UpdatedAt); err == nil {
			n.UpdatedAt = updated
		}
	}

	return n, n.Validate()
}

// timeLayouts are the timestamp formats seen from the backend.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

func parseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}
