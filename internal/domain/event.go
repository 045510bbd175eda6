package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// EntityCreated is the envelope for a document-created notification, as
// delivered over Pub/Sub or the HTTP ingest endpoint.
type EntityCreated struct {
	EventID string `json:"eventId"`
	// Path is the created document path, e.g. "groups/g1/posts/p1".
	Path string `json:"path"`
	// Data is the created document encoded as JSON.
	Data       json.RawMessage `json:"data"`
	OccurredAt time.Time       `json:"occurredAt,omitempty"`

	// Params holds the path variables bound by the matched pattern.
	Params map[string]string `json:"-"`
}

// Validate checks the envelope is routable.
func (e *EntityCreated) Validate() error {
	if strings.Trim(e.Path, "/") == "" {
		return fmt.Errorf("entity path is required")
	}
	if len(e.Data) == 0 {
		return fmt.Errorf("entity data is required")
	}
	return nil
}

// Param returns a bound path variable or "".
func (e *EntityCreated) Param(name string) string {
	return e.Params[name]
}

// Decode unmarshals the created document into v.
func (e *EntityCreated) Decode(v any) error {
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode %s: %w", e.Path, err)
	}
	return nil
}

// ParseEntityCreated decodes and validates a JSON envelope.
func ParseEntityCreated(raw []byte) (*EntityCreated, error) {
	var e EntityCreated
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return &e, nil
}
