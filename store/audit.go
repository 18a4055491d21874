package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/activesoft/go-backoffice/record"
)

// Audit appends one operation_logs row per successful write, fire-and-forget:
// the caller never waits and never sees a failure. Audit completeness is a
// telemetry concern here, not a durability guarantee.
type Audit struct {
	db      *bun.DB
	logger  *slog.Logger
	timeout time.Duration
}

// NewAudit builds an audit logger over the shared database handle.
func NewAudit(db *bun.DB, logger *slog.Logger) *Audit {
	if logger == nil {
		logger = slog.Default()
	}
	return &Audit{
		db:      db,
		logger:  logger.With("component", "audit"),
		timeout: 5 * time.Second,
	}
}

// Log appends an entry asynchronously. Safe to call on a nil receiver so
// stores can be built without auditing in tests.
func (a *Audit) Log(userID, tableName, operation, recordID string) {
	if a == nil {
		return
	}
	entry := &record.OperationLog{
		ID:        uuid.NewString(),
		UserID:    userID,
		TableName: tableName,
		Operation: operation,
		RecordID:  recordID,
		CreatedAt: time.Now().UTC(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		if _, err := a.db.NewInsert().Model(entry).Exec(ctx); err != nil {
			a.logger.Warn("audit write failed",
				"table", tableName, "operation", operation, "record_id", recordID, "error", err)
		}
	}()
}
