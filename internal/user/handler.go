package user

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/sclinedc/edc-core/internal/audit"
	"github.com/sclinedc/edc-core/internal/httpx"
	"github.com/sclinedc/edc-core/internal/user/entity"
)

// Handler exposes the user administration endpoints.
type Handler struct {
	svc      *Service
	audits   *audit.Repo
	validate *validator.Validate
	logger   *zap.SugaredLogger
}

func NewHandler(svc *Service, audits *audit.Repo, logger *zap.SugaredLogger) *Handler {
	return &Handler{
		svc:      svc,
		audits:   audits,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

type listRequest struct {
	Page    int     `json:"page"`
	Limit   int     `json:"limit"`
	Search  string  `json:"search"`
	RoleID  *int64  `json:"roleId"`
	Status  *string `json:"status"`
	StudyID *int64  `json:"studyId"`
	SiteID  *int64  `json:"siteId"`
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
	f := entity.Filter{
		Page: req.Page, Limit: req.Limit, Search: req.Search,
		RoleID: req.RoleID, Status: req.Status, StudyID: req.StudyID, SiteID: req.SiteID,
	}
	rows, total, err := h.svc.List(r.Context(), f)
	if err != nil {
		h.logger.Errorw("list users failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "Failed to fetch users")
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

func userID(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("userId"), 10, 64)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := userID(r)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "Invalid user id")
		return
	}
	detail, err := h.svc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			httpx.Error(w, http.StatusNotFound, "User not found")
			return
		}
		h.logger.Errorw("get user failed", "user", id, "err", err)
		httpx.Error(w, http.StatusInternalServerError, "Failed to fetch user")
		return
	}
	httpx.Success(w, http.StatusOK, httpx.Envelope{"data": detail})
}

type createRequest struct {
	FullName      string `json:"fullName" validate:"required"`
	Email         string `json:"email" validate:"required,email"`
	ContactNumber string `json:"contactNumber"`
	RoleID        *int64 `json:"roleId"`
	StudyID       *int64 `json:"studyId"`
	SiteID        *int64 `json:"siteId"`
	Status        string `json:"status" validate:"omitempty,oneof=Active Inactive"`
	ActorID       *int64 `json:"actorId"`
}

func (h *Handler) writeWriteError(w http.ResponseWriter, action string, err error) {
	switch {
	case errors.Is(err, ErrEmailTaken):
		httpx.Error(w, http.StatusConflict, "User with this email already exists")
	case errors.Is(err, ErrPhoneTaken):
		httpx.Error(w, http.StatusConflict, "User with this contact number already exists")
	case errors.Is(err, ErrUserNotFound):
		httpx.Error(w, http.StatusNotFound, "User not found")
	case errors.Is(err, ErrEmptyUpdate):
		httpx.Error(w, http.StatusBadRequest, "No fields to update")
	default:
		h.logger.Errorw(action+" user failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "Failed to "+action+" user")
	}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Full name and a valid email are required")
		return
	}
	u := &entity.User{
		FullName:      req.FullName,
		EmailAddress:  req.Email,
		ContactNumber: req.ContactNumber,
		RoleID:        req.RoleID,
		StudyID:       req.StudyID,
		SiteID:        req.SiteID,
		Status:        req.Status,
		CreatedBy:     req.ActorID,
	}
	id, err := h.svc.Create(r.Context(), u, httpx.ClientIP(r))
	if err != nil {
		h.writeWriteError(w, "create", err)
		return
	}
	httpx.Success(w, http.StatusCreated, httpx.Envelope{
		"message": "User created successfully",
		"userId":  id,
	})
}

type updateRequest struct {
	FullName      *string `json:"fullName"`
	Email         *string `json:"email" validate:"omitempty,email"`
	ContactNumber *string `json:"contactNumber"`
	RoleID        *int64  `json:"roleId"`
	StudyID       *int64  `json:"studyId"`
	SiteID        *int64  `json:"siteId"`
	Status        *string `json:"status" validate:"omitempty,oneof=Active Inactive"`
	ActorID       *int64  `json:"actorId"`
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := userID(r)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "Invalid user id")
		return
	}
	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Invalid field values")
		return
	}
	upd := entity.Update{
		FullName:      req.FullName,
		EmailAddress:  req.Email,
		ContactNumber: req.ContactNumber,
		RoleID:        req.RoleID,
		StudyID:       req.StudyID,
		SiteID:        req.SiteID,
		Status:        req.Status,
		UpdatedBy:     req.ActorID,
	}
	if err := h.svc.Update(r.Context(), id, upd, httpx.ClientIP(r)); err != nil {
		h.writeWriteError(w, "update", err)
		return
	}
	httpx.Success(w, http.StatusOK, httpx.Envelope{"message": "User updated successfully"})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := userID(r)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "Invalid user id")
		return
	}
	var actorID *int64
	if v := r.URL.Query().Get("actorId"); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			actorID = &parsed
		}
	}
	if err := h.svc.Delete(r.Context(), id, actorID, httpx.ClientIP(r)); err != nil {
		h.writeWriteError(w, "delete", err)
		return
	}
	httpx.Success(w, http.StatusOK, httpx.Envelope{"message": "User deleted successfully"})
}

func (h *Handler) ByRole(w http.ResponseWriter, r *http.Request) {
	roleID, err := strconv.ParseInt(r.PathValue("roleId"), 10, 64)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "Invalid role id")
		return
	}
	rows, err := h.svc.ListByRole(r.Context(), roleID)
	if err != nil {
		h.logger.Errorw("list users by role failed", "role", roleID, "err", err)
		httpx.Error(w, http.StatusInternalServerError, "Failed to fetch users")
		return
	}
	httpx.Success(w, http.StatusOK, httpx.Envelope{"data": rows})
}

type bulkImportRequest struct {
	Users   []createRequest `json:"users" validate:"required,min=1,dive"`
	ActorID *int64          `json:"actorId"`
}

func (h *Handler) BulkImport(w http.ResponseWriter, r *http.Request) {
	var req bulkImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "At least one user with a name and valid email is required")
		return
	}
	users := make([]*entity.User, 0, len(req.Users))
	for _, row := range req.Users {
		users = append(users, &entity.User{
			FullName:      row.FullName,
			EmailAddress:  row.Email,
			ContactNumber: row.ContactNumber,
			RoleID:        row.RoleID,
			StudyID:       row.StudyID,
			SiteID:        row.SiteID,
			Status:        row.Status,
			CreatedBy:     req.ActorID,
		})
	}
	result := h.svc.BulkImport(r.Context(), users, httpx.ClientIP(r))
	httpx.Success(w, http.StatusOK, httpx.Envelope{
		"message": "Import completed",
		"result":  result,
	})
}

// History returns the audit trail of one user record.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	id, err := userID(r)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "Invalid user id")
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
	total, err := h.audits.CountByRecord(r.Context(), audit.ModuleUserManagement, id)
	if err != nil {
		h.logger.Errorw("count user history failed", "user", id, "err", err)
		httpx.Error(w, http.StatusInternalServerError, "Failed to fetch history")
		return
	}
	rows, err := h.audits.ListByRecord(r.Context(), audit.ModuleUserManagement, id, limit, (page-1)*limit)
	if err != nil {
		h.logger.Errorw("list user history failed", "user", id, "err", err)
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
