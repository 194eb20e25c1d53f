package audit

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/sclinedc/edc-core/pkg/utilities"
)

// Repo persists audit entries in sp_audit_trail. There is deliberately no
// update or delete path.
type Repo struct {
	db *sqlx.DB
}

func NewRepo(db *sqlx.DB) *Repo { return &Repo{db: db} }

// EnsureTable creates the audit table if not exists (idempotent).
func (r *Repo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS sp_audit_trail (
  audit_id BIGINT PRIMARY KEY,
  user_id BIGINT,
  role_id BIGINT,
  module_name TEXT NOT NULL,
  action_type TEXT NOT NULL,
  record_id BIGINT NOT NULL,
  old_value JSONB,
  new_value JSONB,
  ip_address TEXT NOT NULL DEFAULT '',
  timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_audit_trail_record ON sp_audit_trail(module_name, record_id);
CREATE INDEX IF NOT EXISTS idx_audit_trail_user ON sp_audit_trail(user_id);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// Insert appends one entry. The audit_id is generated in-process (snowflake)
// so appending never needs a sequence round-trip.
func (r *Repo) Insert(ctx context.Context, e Entry) error {
	if e.AuditID == 0 {
		e.AuditID = utilities.NewSnowflakeID()
	}
	const q = `INSERT INTO sp_audit_trail
		(audit_id, user_id, role_id, module_name, action_type, record_id, old_value, new_value, ip_address)
	  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.db.ExecContext(ctx, q,
		e.AuditID, e.UserID, e.RoleID, e.ModuleName, e.ActionType, e.RecordID,
		nullableJSON(e.OldValue), nullableJSON(e.NewValue), e.IPAddress)
	return err
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}

// ListByRecord pages through the history of one record within a module.
func (r *Repo) ListByRecord(ctx context.Context, module string, recordID int64, limit, offset int) ([]*Entry, error) {
	const q = `SELECT audit_id, user_id, role_id, module_name, action_type, record_id,
		old_value, new_value, ip_address, timestamp
	  FROM sp_audit_trail
	  WHERE module_name = $1 AND record_id = $2
	  ORDER BY timestamp DESC
	  LIMIT $3 OFFSET $4`
	var rows []*Entry
	if err := r.db.SelectContext(ctx, &rows, q, module, recordID, limit, offset); err != nil {
		return nil, err
	}
	return rows, nil
}

// CountByRecord returns the total history size of one record within a module.
func (r *Repo) CountByRecord(ctx context.Context, module string, recordID int64) (int64, error) {
	const q = `SELECT COUNT(*) FROM sp_audit_trail WHERE module_name = $1 AND record_id = $2`
	var total int64
	if err := r.db.GetContext(ctx, &total, q, module, recordID); err != nil {
		return 0, err
	}
	return total, nil
}

// ListLogins returns the recent authentication events of one user.
func (r *Repo) ListLogins(ctx context.Context, userID int64, limit int) ([]*Entry, error) {
	const q = `SELECT audit_id, user_id, role_id, module_name, action_type, record_id,
		old_value, new_value, ip_address, timestamp
	  FROM sp_audit_trail
	  WHERE user_id = $1 AND module_name = $2
	  ORDER BY timestamp DESC
	  LIMIT $3`
	var rows []*Entry
	if err := r.db.SelectContext(ctx, &rows, q, userID, ModuleAuthentication, limit); err != nil {
		return nil, err
	}
	return rows, nil
}
