package site

import (
	"context"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/sclinedc/edc-core/internal/httpx"
)

// Site is a row of sp_site_master.
type Site struct {
	SiteID    int64     `db:"site_id" json:"siteId"`
	SiteName  string    `db:"site_name" json:"siteName"`
	SiteCode  string    `db:"site_code" json:"siteCode"`
	Status    string    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Repo provides data access for sp_site_master.
type Repo struct {
	db *sqlx.DB
}

func NewRepo(db *sqlx.DB) *Repo { return &Repo{db: db} }

// EnsureTable creates the sites table if not exists (idempotent).
func (r *Repo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS sp_site_master (
  site_id BIGSERIAL PRIMARY KEY,
  site_name TEXT NOT NULL,
  site_code TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL DEFAULT 'Active',
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// Dropdown lists active sites for selection widgets.
func (r *Repo) Dropdown(ctx context.Context) ([]*Site, error) {
	const q = `SELECT site_id, site_name, site_code, status, created_at
	  FROM sp_site_master WHERE status = 'Active' ORDER BY site_name ASC`
	var rows []*Site
	if err := r.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, err
	}
	return rows, nil
}

// Handler exposes the site reference-data endpoints.
type Handler struct {
	repo   *Repo
	logger *zap.SugaredLogger
}

func NewHandler(repo *Repo, logger *zap.SugaredLogger) *Handler {
	return &Handler{repo: repo, logger: logger}
}

func (h *Handler) Dropdown(w http.ResponseWriter, r *http.Request) {
	rows, err := h.repo.Dropdown(r.Context())
	if err != nil {
		h.logger.Errorw("sites dropdown failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "Failed to fetch sites")
		return
	}
	httpx.Success(w, http.StatusOK, httpx.Envelope{"data": rows})
}
