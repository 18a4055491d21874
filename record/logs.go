package record

import (
	"time"

	"github.com/uptrace/bun"
)

// OperationLog is one best-effort audit entry per successful write. Failures
// to append are logged and never surfaced; the table is telemetry, not a
// ledger.
type OperationLog struct {
	bun.BaseModel `bun:"table:operation_logs,alias:opl"`

	ID        string    `bun:"id,pk" json:"id"`
	UserID    string    `bun:"user_id,notnull" json:"user_id"`
	TableName string    `bun:"table_name,notnull" json:"table_name"`
	Operation string    `bun:"operation,notnull" json:"operation"`
	RecordID  string    `bun:"record_id" json:"record_id"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}

// UserActivityLog records sign-in/sign-out events with best-effort client
// metadata.
type UserActivityLog struct {
	bun.BaseModel `bun:"table:user_activity_logs,alias:ual"`

	ID        string    `bun:"id,pk" json:"id"`
	UserID    string    `bun:"user_id,notnull" json:"user_id"`
	Action    string    `bun:"action,notnull" json:"action"`
	IPAddress string    `bun:"ip_address" json:"ip_address"`
	UserAgent string    `bun:"user_agent" json:"user_agent"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}
