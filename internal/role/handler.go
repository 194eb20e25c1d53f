package role

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/sclinedc/edc-core/internal/audit"
	"github.com/sclinedc/edc-core/internal/httpx"
)

// Store is the persistence surface the handler needs. *Repo satisfies it.
type Store interface {
	List(ctx context.Context, search string, status *string, limit, offset int) ([]*Role, error)
	Count(ctx context.Context, search string, status *string) (int64, error)
	GetByID(ctx context.Context, id int64) (*Role, error)
	NameExists(ctx context.Context, name string, excludeID int64) (bool, error)
	Create(ctx context.Context, name string, description *string, createdBy *int64) (int64, error)
	Update(ctx context.Context, id int64, name string, description *string, status string, updatedBy *int64) (int64, error)
	Deactivate(ctx context.Context, id int64, updatedBy *int64) (int64, error)
	ActiveUserCount(ctx context.Context, id int64) (int64, error)
	Dropdown(ctx context.Context) ([]*Role, error)
}

// HistorySource reads the audit trail of a record. *audit.Repo satisfies it.
type HistorySource interface {
	ListByRecord(ctx context.Context, module string, recordID int64, limit, offset int) ([]*audit.Entry, error)
	CountByRecord(ctx context.Context, module string, recordID int64) (int64, error)
}

// Handler exposes the role administration endpoints.
type Handler struct {
	repo    Store
	history HistorySource
	auditor *audit.Recorder
	logger  *zap.SugaredLogger
}

func NewHandler(repo Store, history HistorySource, auditor *audit.Recorder, logger *zap.SugaredLogger) *Handler {
	return &Handler{repo: repo, history: history, auditor: auditor, logger: logger}
}

type listRequest struct {
	Page   int     `json:"page"`
	Limit  int     `json:"limit"`
	Search string  `json:"search"`
	Status *string `json:"status"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	var req listRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.Limit <= 0 {
		req.Limit = 10
	}
	total, err := h.repo.Count(r.Context(), req.Search, req.Status)
	if err != nil {
		h.logger.Errorw("count roles failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "Failed to fetch roles")
		return
	}
	rows, err := h.repo.List(r.Context(), req.Search, req.Status, req.Limit, (req.Page-1)*req.Limit)
	if err != nil {
		h.logger.Errorw("list roles failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "Failed to fetch roles")
		return
	}
	totalPages := (total + int64(req.Limit) - 1) / int64(req.Limit)
	httpx.Success(w, http.StatusOK, httpx.Envelope{
		"data": rows,
		"pagination": httpx.Envelope{
			"currentPage":  req.Page,
			"totalPages":   totalPages,
			"totalRecords": total,
			"limit":        req.Limit,
		},
	})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("roleId"), 10, 64)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "Invalid role id")
		return
	}
	row, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			httpx.Error(w, http.StatusNotFound, "Role not found")
			return
		}
		h.logger.Errorw("get role failed", "role", id, "err", err)
		httpx.Error(w, http.StatusInternalServerError, "Failed to fetch role")
		return
	}
	httpx.Success(w, http.StatusOK, httpx.Envelope{"data": row})
}

type upsertRequest struct {
	RoleName        string  `json:"role_name"`
	RoleDescription *string `json:"role_description"`
	Status          string  `json:"status"`
	ActorID         *int64  `json:"actor_id"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req upsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RoleName == "" {
		httpx.Error(w, http.StatusBadRequest, "Role name is required")
		return
	}
	taken, err := h.repo.NameExists(r.Context(), req.RoleName, 0)
	if err != nil {
		h.logger.Errorw("role name check failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "Failed to create role")
		return
	}
	if taken {
		httpx.Error(w, http.StatusConflict, "Role with this name already exists")
		return
	}
	id, err := h.repo.Create(r.Context(), req.RoleName, req.RoleDescription, req.ActorID)
	if err != nil {
		h.logger.Errorw("create role failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "Failed to create role")
		return
	}
	newVal, _ := json.Marshal(map[string]any{"role_name": req.RoleName})
	h.auditor.Record(audit.Entry{
		UserID: req.ActorID, ModuleName: audit.ModuleRoleManagement,
		ActionType: audit.ActionCreate, RecordID: id, NewValue: newVal, IPAddress: httpx.ClientIP(r),
	})
	httpx.Success(w, http.StatusCreated, httpx.Envelope{"message": "Role created successfully", "roleId": id})
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("roleId"), 10, 64)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "Invalid role id")
		return
	}
	var req upsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RoleName == "" {
		httpx.Error(w, http.StatusBadRequest, "Role name is required")
		return
	}
	old, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			httpx.Error(w, http.StatusNotFound, "Role not found")
			return
		}
		h.logger.Errorw("get role failed", "role", id, "err", err)
		httpx.Error(w, http.StatusInternalServerError, "Failed to update role")
		return
	}
	taken, err := h.repo.NameExists(r.Context(), req.RoleName, id)
	if err != nil {
		h.logger.Errorw("role name check failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "Failed to update role")
		return
	}
	if taken {
		httpx.Error(w, http.StatusConflict, "Role with this name already exists")
		return
	}
	status := req.Status
	if status == "" {
		status = old.Status
	}
	if _, err := h.repo.Update(r.Context(), id, req.RoleName, req.RoleDescription, status, req.ActorID); err != nil {
		h.logger.Errorw("update role failed", "role", id, "err", err)
		httpx.Error(w, http.StatusInternalServerError, "Failed to update role")
		return
	}
	oldVal, _ := json.Marshal(old)
	newVal, _ := json.Marshal(map[string]any{"role_name": req.RoleName, "status": status})
	h.auditor.Record(audit.Entry{
		UserID: req.ActorID, ModuleName: audit.ModuleRoleManagement,
		ActionType: audit.ActionUpdate, RecordID: id,
		OldValue: oldVal, NewValue: newVal, IPAddress: httpx.ClientIP(r),
	})
	httpx.Success(w, http.StatusOK, httpx.Envelope{"message": "Role updated successfully"})
}

// Delete retires a role. Roles are never removed from the table; the row is
// flipped to Inactive so historical assignments keep resolving.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("roleId"), 10, 64)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "Invalid role id")
		return
	}
	var actorID *int64
	if v := r.URL.Query().Get("actorId"); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			actorID = &parsed
		}
	}
	old, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			httpx.Error(w, http.StatusNotFound, "Role not found")
			return
		}
		h.logger.Errorw("get role failed", "role", id, "err", err)
		httpx.Error(w, http.StatusInternalServerError, "Failed to delete role")
		return
	}
	assigned, err := h.repo.ActiveUserCount(r.Context(), id)
	if err != nil {
		h.logger.Errorw("count assigned users failed", "role", id, "err", err)
		httpx.Error(w, http.StatusInternalServerError, "Failed to delete role")
		return
	}
	if assigned > 0 {
		httpx.Error(w, http.StatusBadRequest,
			fmt.Sprintf("Cannot delete role. %d active user(s) are assigned to this role.", assigned))
		return
	}
	if _, err := h.repo.Deactivate(r.Context(), id, actorID); err != nil {
		h.logger.Errorw("deactivate role failed", "role", id, "err", err)
		httpx.Error(w, http.StatusInternalServerError, "Failed to delete role")
		return
	}
	oldVal, _ := json.Marshal(old)
	newVal, _ := json.Marshal(map[string]any{"status": "Inactive"})
	h.auditor.Record(audit.Entry{
		UserID: actorID, ModuleName: audit.ModuleRoleManagement,
		ActionType: audit.ActionDelete, RecordID: id,
		OldValue: oldVal, NewValue: newVal, IPAddress: httpx.ClientIP(r),
	})
	httpx.Success(w, http.StatusOK, httpx.Envelope{"message": "Role deleted successfully"})
}

// History returns the audit trail of one role record.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("roleId"), 10, 64)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "Invalid role id")
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page <= 0 {
		page = 1
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 20
	}
	total, err := h.history.CountByRecord(r.Context(), audit.ModuleRoleManagement, id)
	if err != nil {
		h.logger.Errorw("count role history failed", "role", id, "err", err)
		httpx.Error(w, http.StatusInternalServerError, "Failed to fetch history")
		return
	}
	rows, err := h.history.ListByRecord(r.Context(), audit.ModuleRoleManagement, id, limit, (page-1)*limit)
	if err != nil {
		h.logger.Errorw("list role history failed", "role", id, "err", err)
		httpx.Error(w, http.StatusInternalServerError, "Failed to fetch history")
		return
	}
	totalPages := (total + int64(limit) - 1) / int64(limit)
	httpx.Success(w, http.StatusOK, httpx.Envelope{
		"data": rows,
		"pagination": httpx.Envelope{
			"currentPage":  page,
			"totalPages":   totalPages,
			"totalRecords": total,
			"limit":        limit,
		},
	})
}

func (h *Handler) Dropdown(w http.ResponseWriter, r *http.Request) {
	rows, err := h.repo.Dropdown(r.Context())
	if err != nil {
		h.logger.Errorw("roles dropdown failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "Failed to fetch roles")
		return
	}
	httpx.Success(w, http.StatusOK, httpx.Envelope{"data": rows})
}
