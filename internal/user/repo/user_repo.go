package repo

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/sclinedc/edc-core/internal/user/entity"
)

// UserRepo provides data access for the sp_user_master table using sqlx.
// Dynamic filter and partial-update statements are built with squirrel so no
// SQL is assembled from raw strings.
type UserRepo struct {
	db *sqlx.DB
	sb sq.StatementBuilderType
}

func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db, sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar)}
}

// EnsureTable creates the users table if not exists (idempotent).
func (r *UserRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS sp_user_master (
  user_id BIGSERIAL PRIMARY KEY,
  full_name TEXT NOT NULL,
  email_address TEXT NOT NULL UNIQUE,
  contact_number TEXT NOT NULL UNIQUE,
  status TEXT NOT NULL DEFAULT 'Active',
  role_id BIGINT,
  study_id BIGINT,
  site_id BIGINT,
  created_by BIGINT,
  updated_by BIGINT,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_user_master_email ON sp_user_master(email_address);
CREATE INDEX IF NOT EXISTS idx_user_master_role ON sp_user_master(role_id);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

const detailColumns = `
	u.user_id, u.full_name, u.email_address, u.contact_number, u.status,
	u.created_at, u.updated_at,
	r.role_id, r.role_name, r.role_description,
	st.study_id, st.study_title, st.study_number,
	si.site_id, si.site_name, si.site_code`

const detailJoins = `
	FROM sp_user_master u
	LEFT JOIN sp_role_master r ON u.role_id = r.role_id
	LEFT JOIN sp_studies st ON u.study_id = st.study_id
	LEFT JOIN sp_site_master si ON u.site_id = si.site_id`

// GetByEmail returns the bare user row matched by email or sql.ErrNoRows.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	const q = `SELECT user_id, full_name, email_address, contact_number, status,
		role_id, study_id, site_id, created_by, updated_by, created_at, updated_at
	  FROM sp_user_master WHERE email_address = $1`
	var row entity.User
	if err := r.db.GetContext(ctx, &row, q, email); err != nil {
		return nil, err
	}
	return &row, nil
}

// GetByID fetches the bare user row.
func (r *UserRepo) GetByID(ctx context.Context, id int64) (*entity.User, error) {
	const q = `SELECT user_id, full_name, email_address, contact_number, status,
		role_id, study_id, site_id, created_by, updated_by, created_at, updated_at
	  FROM sp_user_master WHERE user_id = $1`
	var row entity.User
	if err := r.db.GetContext(ctx, &row, q, id); err != nil {
		return nil, err
	}
	return &row, nil
}

// GetDetail returns the joined role/study/site projection for a user.
func (r *UserRepo) GetDetail(ctx context.Context, id int64) (*entity.Detail, error) {
	q := `SELECT` + detailColumns + detailJoins + ` WHERE u.user_id = $1`
	var row entity.Detail
	if err := r.db.GetContext(ctx, &row, q, id); err != nil {
		return nil, err
	}
	return &row, nil
}

func applyFilter(b sq.SelectBuilder, f entity.Filter) sq.SelectBuilder {
	if f.Search != "" {
		like := "%" + f.Search + "%"
		b = b.Where(sq.Or{
			sq.ILike{"u.email_address": like},
			sq.ILike{"u.full_name": like},
			sq.ILike{"u.contact_number": like},
		})
	}
	if f.RoleID != nil {
		b = b.Where(sq.Eq{"u.role_id": *f.RoleID})
	}
	if f.Status != nil {
		b = b.Where(sq.Eq{"u.status": *f.Status})
	}
	if f.StudyID != nil {
		b = b.Where(sq.Eq{"u.study_id": *f.StudyID})
	}
	if f.SiteID != nil {
		b = b.Where(sq.Eq{"u.site_id": *f.SiteID})
	}
	return b
}

// Count returns the number of users matching the filter.
func (r *UserRepo) Count(ctx context.Context, f entity.Filter) (int64, error) {
	b := applyFilter(r.sb.Select("COUNT(*)").From("sp_user_master u"), f)
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

// List returns a filtered, paginated page of joined user projections.
func (r *UserRepo) List(ctx context.Context, f entity.Filter) ([]*entity.Detail, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 10
	}
	page := f.Page
	if page <= 0 {
		page = 1
	}
	b := r.sb.Select(
		"u.user_id", "u.full_name", "u.email_address", "u.contact_number", "u.status",
		"u.created_at", "u.updated_at",
		"r.role_id", "r.role_name", "r.role_description",
		"st.study_id", "st.study_title", "st.study_number",
		"si.site_id", "si.site_name", "si.site_code",
		"creator.full_name AS created_by_name",
		"updater.full_name AS updated_by_name",
	).
		From("sp_user_master u").
		LeftJoin("sp_role_master r ON u.role_id = r.role_id").
		LeftJoin("sp_studies st ON u.study_id = st.study_id").
		LeftJoin("sp_site_master si ON u.site_id = si.site_id").
		LeftJoin("sp_user_master creator ON u.created_by = creator.user_id").
		LeftJoin("sp_user_master updater ON u.updated_by = updater.user_id")
	b = applyFilter(b, f).
		OrderBy("u.created_at DESC").
		Limit(uint64(limit)).
		Offset(uint64((page - 1) * limit))
	q, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	var rows []*entity.Detail
	if err := r.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

// ListByRole returns active users assigned to a role, ordered by name.
func (r *UserRepo) ListByRole(ctx context.Context, roleID int64) ([]*entity.Detail, error) {
	q := `SELECT` + detailColumns + detailJoins +
		` WHERE u.role_id = $1 AND u.status = 'Active' ORDER BY u.full_name ASC`
	var rows []*entity.Detail
	if err := r.db.SelectContext(ctx, &rows, q, roleID); err != nil {
		return nil, err
	}
	return rows, nil
}

// Create inserts a new user row and returns its id.
func (r *UserRepo) Create(ctx context.Context, u *entity.User) (int64, error) {
	const q = `INSERT INTO sp_user_master
		(full_name, email_address, contact_number, role_id, study_id, site_id, status, created_by)
	  VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING user_id`
	var id int64
	if err := r.db.GetContext(ctx, &id, q,
		u.FullName, u.EmailAddress, u.ContactNumber, u.RoleID, u.StudyID, u.SiteID, u.Status, u.CreatedBy); err != nil {
		return 0, err
	}
	return id, nil
}

// EmailExists reports whether another user already holds the email.
func (r *UserRepo) EmailExists(ctx context.Context, email string, excludeID int64) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM sp_user_master WHERE email_address = $1 AND user_id <> $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, q, email, excludeID); err != nil {
		return false, err
	}
	return exists, nil
}

// PhoneExists reports whether another user already holds the contact number.
func (r *UserRepo) PhoneExists(ctx context.Context, phone string, excludeID int64) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM sp_user_master WHERE contact_number = $1 AND user_id <> $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, q, phone, excludeID); err != nil {
		return false, err
	}
	return exists, nil
}

// Update applies the non-nil fields of upd to the user row and returns the
// number of rows affected.
func (r *UserRepo) Update(ctx context.Context, id int64, upd entity.Update) (int64, error) {
	b := r.sb.Update("sp_user_master").Set("updated_at", sq.Expr("NOW()"))
	if upd.FullName != nil {
		b = b.Set("full_name", *upd.FullName)
	}
	if upd.EmailAddress != nil {
		b = b.Set("email_address", *upd.EmailAddress)
	}
	if upd.ContactNumber != nil {
		b = b.Set("contact_number", *upd.ContactNumber)
	}
	if upd.RoleID != nil {
		b = b.Set("role_id", *upd.RoleID)
	}
	if upd.StudyID != nil {
		b = b.Set("study_id", *upd.StudyID)
	}
	if upd.SiteID != nil {
		b = b.Set("site_id", *upd.SiteID)
	}
	if upd.Status != nil {
		b = b.Set("status", *upd.Status)
	}
	if upd.UpdatedBy != nil {
		b = b.Set("updated_by", *upd.UpdatedBy)
	}
	q, args, err := b.Where(sq.Eq{"user_id": id}).ToSql()
	if err != nil {
		return 0, err
	}
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Delete hard-deletes a user row. Administrative operation only; callers must
// have written the audit entry first.
func (r *UserRepo) Delete(ctx context.Context, id int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sp_user_master WHERE user_id = $1`, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Contact returns just the email and display name of a user, for notifications.
func (r *UserRepo) Contact(ctx context.Context, id int64) (email, name string, err error) {
	const q = `SELECT email_address, full_name FROM sp_user_master WHERE user_id = $1`
	row := r.db.QueryRowxContext(ctx, q, id)
	if err := row.Scan(&email, &name); err != nil {
		return "", "", fmt.Errorf("user contact: %w", err)
	}
	return email, name, nil
}
