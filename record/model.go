package record

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Record is the minimal structural contract the generic store requires.
// Implementations are pointer types embedding Model (or, for immutable
// collections, carrying their own id/created_at pair).
type Record interface {
	RecordID() string
	EnsureID()
	Validate() error
}

// Model carries the fields every mutable collection shares. The id is
// immutable after creation; created_at and updated_at are stamped on the way
// into the database, overwriting anything a caller supplied, so the server
// side stays authoritative for timestamps.
type Model struct {
	ID        string    `bun:"id,pk" json:"id"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`
}

// RecordID returns the primary key.
func (m *Model) RecordID() string { return m.ID }

// EnsureID assigns a fresh uuid when none is set.
func (m *Model) EnsureID() {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
}

// BeforeAppendModel stamps ids and timestamps for every embedding record.
func (m *Model) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		m.EnsureID()
		m.CreatedAt = now
		m.UpdatedAt = now
	case *bun.UpdateQuery:
		m.UpdatedAt = now
	}
	return nil
}
