package study

import (
	"context"
	"net/http"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/sclinedc/edc-core/internal/httpx"
)

// Repo provides data access for sp_studies. It exposes two lookups with very
// different contracts: GetForUser enforces the live user-study assignment,
// GetByID does not. The response lifecycle engine picks between them based on
// submission state.
type Repo struct {
	db *sqlx.DB
}

func NewRepo(db *sqlx.DB) *Repo { return &Repo{db: db} }

// EnsureTable creates the studies table if not exists (idempotent).
func (r *Repo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS sp_studies (
  study_id BIGSERIAL PRIMARY KEY,
  study_title TEXT NOT NULL,
  study_number TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL DEFAULT 'active',
  definition JSONB NOT NULL DEFAULT '{}'::jsonb,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ
);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// GetByID returns the study regardless of who asks, or sql.ErrNoRows.
func (r *Repo) GetByID(ctx context.Context, studyID int64) (*Study, error) {
	const q = `SELECT study_id, study_title, study_number, status, definition, created_at, updated_at
	  FROM sp_studies WHERE study_id = $1`
	var row Study
	if err := r.db.GetContext(ctx, &row, q, studyID); err != nil {
		return nil, err
	}
	return &row, nil
}

// GetForUser returns the study only while it is active and the user is an
// Active account currently assigned to it; otherwise sql.ErrNoRows. This is
// the authorization-aware read used before a response is submitted.
func (r *Repo) GetForUser(ctx context.Context, studyID, userID int64) (*Study, error) {
	const q = `SELECT st.study_id, st.study_title, st.study_number, st.status, st.definition,
		st.created_at, st.updated_at
	  FROM sp_studies st
	  WHERE st.study_id = $1
	    AND st.status = 'active'
	    AND EXISTS (
	      SELECT 1 FROM sp_user_master u
	      WHERE u.user_id = $2 AND u.study_id = st.study_id AND u.status = 'Active'
	    )`
	var row Study
	if err := r.db.GetContext(ctx, &row, q, studyID, userID); err != nil {
		return nil, err
	}
	return &row, nil
}

// Summary returns just the title and number of a study, for notifications.
func (r *Repo) Summary(ctx context.Context, studyID int64) (title, number string, err error) {
	const q = `SELECT study_title, study_number FROM sp_studies WHERE study_id = $1`
	row := r.db.QueryRowxContext(ctx, q, studyID)
	if err := row.Scan(&title, &number); err != nil {
		return "", "", err
	}
	return title, number, nil
}

// ListActive lists active studies for selection widgets, without definitions.
func (r *Repo) ListActive(ctx context.Context) ([]*Study, error) {
	const q = `SELECT study_id, study_title, study_number, status, '{}'::jsonb AS definition,
		created_at, updated_at
	  FROM sp_studies WHERE status = 'active' ORDER BY study_title ASC`
	var rows []*Study
	if err := r.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, err
	}
	return rows, nil
}

// Handler exposes the study reference-data endpoints.
type Handler struct {
	repo   *Repo
	logger *zap.SugaredLogger
}

func NewHandler(repo *Repo, logger *zap.SugaredLogger) *Handler {
	return &Handler{repo: repo, logger: logger}
}

func (h *Handler) Dropdown(w http.ResponseWriter, r *http.Request) {
	rows, err := h.repo.ListActive(r.Context())
	if err != nil {
		h.logger.Errorw("studies dropdown failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "Failed to fetch studies")
		return
	}
	httpx.Success(w, http.StatusOK, httpx.Envelope{"data": rows})
}
