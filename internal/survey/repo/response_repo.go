package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/sclinedc/edc-core/internal/survey/entity"
)

// ResponseRepo persists study_response rows. Both lifecycle writes are single
// upsert statements over the unique (user_id, study_id) index, with the
// DO UPDATE arm guarded by status = 'draft'. Two concurrent submits therefore
// serialize inside Postgres: one takes the transition, the other's update arm
// matches nothing and comes back empty, which callers surface as an
// already-submitted conflict. There is no separate check query to race against.
type ResponseRepo struct {
	db *sqlx.DB
}

func NewResponseRepo(db *sqlx.DB) *ResponseRepo { return &ResponseRepo{db: db} }

// EnsureTable creates the response table if not exists (idempotent). The
// UNIQUE (user_id, study_id) constraint is load-bearing: every lifecycle
// guarantee in this package assumes it.
func (r *ResponseRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS study_response (
  response_id BIGSERIAL PRIMARY KEY,
  study_id BIGINT NOT NULL,
  user_id BIGINT NOT NULL,
  response_data JSONB NOT NULL DEFAULT '{}'::jsonb,
  status TEXT NOT NULL CHECK (status IN ('draft', 'submitted')),
  submitted_at TIMESTAMPTZ,
  last_updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  UNIQUE (user_id, study_id)
);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

type writeResult struct {
	ResponseID int64 `db:"response_id"`
	Inserted   bool  `db:"inserted"`
}

// UpsertDraft inserts a draft or overwrites an existing draft's payload.
// ok=false means a submitted row blocked the write; the row is untouched.
// created=true means the row did not exist before.
func (r *ResponseRepo) UpsertDraft(ctx context.Context, userID, studyID int64, payload json.RawMessage) (id int64, created, ok bool, err error) {
	const q = `
	INSERT INTO study_response (study_id, user_id, response_data, status, last_updated_at)
	VALUES ($1, $2, $3, 'draft', NOW())
	ON CONFLICT (user_id, study_id) DO UPDATE
	  SET response_data = EXCLUDED.response_data,
	      last_updated_at = NOW()
	  WHERE study_response.status = 'draft'
	RETURNING response_id, (xmax = 0) AS inserted`
	var res writeResult
	if err := r.db.GetContext(ctx, &res, q, studyID, userID, payload); err != nil {
		if isNoRows(err) {
			return 0, false, false, nil
		}
		return 0, false, false, err
	}
	return res.ResponseID, res.Inserted, true, nil
}

// Submit creates a row directly in submitted state or transitions an existing
// draft, setting submitted_at exactly once. ok=false means the row was
// already submitted; payload and submitted_at stay as the winner left them.
func (r *ResponseRepo) Submit(ctx context.Context, userID, studyID int64, payload json.RawMessage) (id int64, created, ok bool, err error) {
	const q = `
	INSERT INTO study_response (study_id, user_id, response_data, status, submitted_at, last_updated_at)
	VALUES ($1, $2, $3, 'submitted', NOW(), NOW())
	ON CONFLICT (user_id, study_id) DO UPDATE
	  SET response_data = EXCLUDED.response_data,
	      status = 'submitted',
	      submitted_at = NOW(),
	      last_updated_at = NOW()
	  WHERE study_response.status = 'draft'
	RETURNING response_id, (xmax = 0) AS inserted`
	var res writeResult
	if err := r.db.GetContext(ctx, &res, q, studyID, userID, payload); err != nil {
		if isNoRows(err) {
			return 0, false, false, nil
		}
		return 0, false, false, err
	}
	return res.ResponseID, res.Inserted, true, nil
}

// GetLatest returns the most recently updated response for the pair, or nil
// when the user has not started.
func (r *ResponseRepo) GetLatest(ctx context.Context, userID, studyID int64) (*entity.Response, error) {
	const q = `SELECT response_id, study_id, user_id, response_data, status, submitted_at, last_updated_at
	  FROM study_response
	  WHERE user_id = $1 AND study_id = $2
	  ORDER BY last_updated_at DESC
	  LIMIT 1`
	var row entity.Response
	if err := r.db.GetContext(ctx, &row, q, userID, studyID); err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
