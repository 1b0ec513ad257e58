// Package docstore is a small schemaless document store. Documents are JSON
// objects grouped in named collections, keyed by an opaque id and stamped
// with a server-side creation time.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("document not found")

// Direction orders List results by creation time.
type Direction int

const (
	Descending Direction = iota
	Ascending
)

func (d Direction) sql() string {
	if d == Ascending {
		return "ASC"
	}
	return "DESC"
}

// Document is a stored JSON object.
type Document struct {
	ID         string
	Collection string
	Data       map[string]any
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// String returns a string field, or "" when missing or not a string.
func (d *Document) String(field string) string {
	s, _ := d.Data[field].(string)
	return s
}

// Float returns a numeric field and whether it was present and numeric.
func (d *Document) Float(field string) (float64, bool) {
	switch v := d.Data[field].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

// Store is implemented by the SQLite and Postgres backends.
type Store interface {
	// Create inserts a new document with a generated id.
	Create(ctx context.Context, collection string, data map[string]any) (*Document, error)
	// Put creates or replaces the document with the given id.
	Put(ctx context.Context, collection, id string, data map[string]any) (*Document, error)
	Get(ctx context.Context, collection, id string) (*Document, error)
	List(ctx context.Context, collection string, dir Direction) ([]*Document, error)
	// Update merges fields into an existing document. A nil value removes
	// the field.
	Update(ctx context.Context, collection, id string, fields map[string]any) (*Document, error)
	Delete(ctx context.Context, collection, id string) error
	Ping(ctx context.Context) error
	Close() error
}

var namePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]{0,63}$`)

func validateCollection(collection string) error {
	if !namePattern.MatchString(collection) {
		return fmt.Errorf("invalid collection name %q", collection)
	}
	return nil
}

func validateFields(fields map[string]any) error {
	for k := range fields {
		if !namePattern.MatchString(k) {
			return fmt.Errorf("invalid field name %q", k)
		}
	}
	return nil
}

func newID() string {
	return uuid.NewString()
}

// timeLayout sorts lexically in UTC, which the SQLite backend relies on.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

func encode(data map[string]any) ([]byte, error) {
	if data == nil {
		data = map[string]any{}
	}
	b, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return b, nil
}

func decode(b []byte) (map[string]any, error) {
	data := map[string]any{}
	if len(b) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(b, &data); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return data, nil
}

// merge applies fields onto data in place.
func merge(data, fields map[string]any) {
	for k, v := range fields {
		if v == nil {
			delete(data, k)
			continue
		}
		data[k] = v
	}
}
