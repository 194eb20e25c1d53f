package role

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
)

// Repo provides data access for sp_role_master.
type Repo struct {
	db *sqlx.DB
	sb sq.StatementBuilderType
}

func NewRepo(db *sqlx.DB) *Repo {
	return &Repo{db: db, sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar)}
}

// EnsureTable creates the roles table if not exists (idempotent).
func (r *Repo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS sp_role_master (
  role_id BIGSERIAL PRIMARY KEY,
  role_name TEXT NOT NULL UNIQUE,
  role_description TEXT,
  status TEXT NOT NULL DEFAULT 'Active',
  created_by BIGINT,
  updated_by BIGINT,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ
);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// List returns a filtered, paginated page of roles with per-role user counts.
func (r *Repo) List(ctx context.Context, search string, status *string, limit, offset int) ([]*Role, error) {
	b := r.sb.Select(
		"r.role_id", "r.role_name", "r.role_description", "r.status",
		"r.created_at", "r.updated_at",
		"COUNT(u.user_id) AS user_count",
	).
		From("sp_role_master r").
		LeftJoin("sp_user_master u ON u.role_id = r.role_id")
	if search != "" {
		like := "%" + search + "%"
		b = b.Where(sq.Or{sq.ILike{"r.role_name": like}, sq.ILike{"r.role_description": like}})
	}
	if status != nil {
		b = b.Where(sq.Eq{"r.status": *status})
	}
	b = b.GroupBy("r.role_id").
		OrderBy("r.created_at DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset))
	q, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	var rows []*Role
	if err := r.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

// Count returns the number of roles matching the filter.
func (r *Repo) Count(ctx context.Context, search string, status *string) (int64, error) {
	b := r.sb.Select("COUNT(*)").From("sp_role_master r")
	if search != "" {
		like := "%" + search + "%"
		b = b.Where(sq.Or{sq.ILike{"r.role_name": like}, sq.ILike{"r.role_description": like}})
	}
	if status != nil {
		b = b.Where(sq.Eq{"r.status": *status})
	}
	q, args, err := b.ToSql()
	if err != nil {
		return 0, err
	}
	var total int64
	if err := r.db.GetContext(ctx, &total, q, args...); err != nil {
		return 0, err
	}
	return total, nil
}

// GetByID returns one role or sql.ErrNoRows.
func (r *Repo) GetByID(ctx context.Context, id int64) (*Role, error) {
	const q = `SELECT role_id, role_name, role_description, status, created_at, updated_at,
		(SELECT COUNT(*) FROM sp_user_master u WHERE u.role_id = sp_role_master.role_id) AS user_count
	  FROM sp_role_master WHERE role_id = $1`
	var row Role
	if err := r.db.GetContext(ctx, &row, q, id); err != nil {
		return nil, err
	}
	return &row, nil
}

// NameExists reports whether another role already holds the name.
func (r *Repo) NameExists(ctx context.Context, name string, excludeID int64) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM sp_role_master WHERE role_name = $1 AND role_id <> $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, q, name, excludeID); err != nil {
		return false, err
	}
	return exists, nil
}

// Create inserts a role and returns its id.
func (r *Repo) Create(ctx context.Context, name string, description *string, createdBy *int64) (int64, error) {
	const q = `INSERT INTO sp_role_master (role_name, role_description, created_by)
	  VALUES ($1, $2, $3) RETURNING role_id`
	var id int64
	if err := r.db.GetContext(ctx, &id, q, name, description, createdBy); err != nil {
		return 0, err
	}
	return id, nil
}

// Update rewrites name/description/status of a role.
func (r *Repo) Update(ctx context.Context, id int64, name string, description *string, status string, updatedBy *int64) (int64, error) {
	const q = `UPDATE sp_role_master
	  SET role_name = $2, role_description = $3, status = $4, updated_by = $5, updated_at = NOW()
	  WHERE role_id = $1`
	res, err := r.db.ExecContext(ctx, q, id, name, description, status, updatedBy)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ActiveUserCount returns how many active users hold the role.
func (r *Repo) ActiveUserCount(ctx context.Context, id int64) (int64, error) {
	const q = `SELECT COUNT(*) FROM sp_user_master WHERE role_id = $1 AND status = 'Active'`
	var total int64
	if err := r.db.GetContext(ctx, &total, q, id); err != nil {
		return 0, err
	}
	return total, nil
}

// Deactivate soft-deletes a role by flipping its status to Inactive.
func (r *Repo) Deactivate(ctx context.Context, id int64, updatedBy *int64) (int64, error) {
	const q = `UPDATE sp_role_master
	  SET status = 'Inactive', updated_by = $2, updated_at = NOW()
	  WHERE role_id = $1`
	res, err := r.db.ExecContext(ctx, q, id, updatedBy)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Dropdown lists active roles for selection widgets.
func (r *Repo) Dropdown(ctx context.Context) ([]*Role, error) {
	const q = `SELECT role_id, role_name, role_description, status, created_at, updated_at,
		0 AS user_count
	  FROM sp_role_master WHERE status = 'Active' ORDER BY role_name ASC`
	var rows []*Role
	if err := r.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, err
	}
	return rows, nil
}
