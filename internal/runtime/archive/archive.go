// Package archive keeps the CoT documents the relay has classified so they
// can be looked up by uid or category after the fact.
package archive

import (
	"context"
	"fmt"
	"time"
)

// Backend names accepted by Open.
const (
	BackendNone     = ""
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// DefaultListLimit caps List when the query sets no limit.
const DefaultListLimit = 100

// Record is one archived document.
type Record struct {
	// ID is the id of the message that carried the document.
	ID         string    `json:"id"`
	UID        string    `json:"uid"`
	Type       string    `json:"type"`
	Category   string    `json:"category"`
	How        string    `json:"how,omitempty"`
	Payload    string    `json:"payload"`
	ReceivedAt time.Time `json:"received_at"`
}

// Query filters List. Empty fields match everything.
type Query struct {
	UID      string
	Category string
	Limit    int
}

func (q Query) limit() int {
	if q.Limit <= 0 {
		return DefaultListLimit
	}
	return q.Limit
}

func (q Query) matches(r Record) bool {
	return (q.UID == "" || q.UID == r.UID) && (q.Category == "" || q.Category == r.Category)
}

// Store persists records. Save fails with errors.ErrDuplicateRecord when the
// id is taken and Get with errors.ErrRecordNotFound for unknown ids. List
// returns the oldest records first.
type Store interface {
	Save(ctx context.Context, rec Record) error
	Get(ctx context.Context, id string) (Record, error)
	List(ctx context.Context, q Query) ([]Record, error)
	Close() error
}

// Open builds the store for backend. BackendNone returns a nil store.
func Open(ctx context.Context, backend, dsn string) (Store, error) {
	switch backend {
	case BackendNone:
		return nil, nil
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendPostgres:
		store, err := OpenPostgres(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("archive: unknown backend %q", backend)
	}
}
