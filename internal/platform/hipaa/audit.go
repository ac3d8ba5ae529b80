package hipaa

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/LeeDev428/marcher-hospital-management-system-sub001/internal/platform/middleware"
)

type execer interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// AuditLogger writes API mutation records to the audit_log table.
type AuditLogger struct {
	db execer
}

// NewAuditLogger creates a new AuditLogger backed by the given connection pool.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{db: pool}
}

// RecordAccess implements middleware.AuditRecorder.
func (a *AuditLogger) RecordAccess(ctx context.Context, e middleware.AuditEntry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	const query = `
		INSERT INTO audit_log (
			id, user_id, action, resource_type, resource_id,
			status_code, request_id, ip_address, method, path, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := a.db.Exec(ctx, query,
		e.ID, e.UserID, e.Action, e.ResourceType, e.ResourceID,
		e.StatusCode, e.RequestID, e.IPAddress, e.Method, e.Path, e.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

// Purge deletes audit rows recorded before cutoff and returns how many were
// removed.
func (a *AuditLogger) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := a.db.Exec(ctx, `DELETE FROM audit_log WHERE recorded_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge audit log: %w", err)
	}
	return tag.RowsAffected(), nil
}
