package auth

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/sclinedc/edc-core/internal/audit"
	"github.com/sclinedc/edc-core/internal/httpx"
	userentity "github.com/sclinedc/edc-core/internal/user/entity"
	userrepo "github.com/sclinedc/edc-core/internal/user/repo"
)

// Handler exposes the authentication and session endpoints.
type Handler struct {
	svc      *Service
	users    *userrepo.UserRepo
	audits   *audit.Repo
	validate *validator.Validate
	logger   *zap.SugaredLogger
}

func NewHandler(svc *Service, users *userrepo.UserRepo, audits *audit.Repo, logger *zap.SugaredLogger) *Handler {
	return &Handler{
		svc:      svc,
		users:    users,
		audits:   audits,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

type emailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type verifyRequest struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp" validate:"required,len=6,numeric"`
}

func (h *Handler) decodeValid(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return err
	}
	return h.validate.Struct(dst)
}

func (h *Handler) SendOTP(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := h.decodeValid(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Valid email is required")
		return
	}
	if err := h.svc.IssueChallenge(r.Context(), req.Email, httpx.ClientIP(r)); err != nil {
		h.writeIssueError(w, req.Email, err)
		return
	}
	httpx.Success(w, http.StatusOK, httpx.Envelope{"message": "OTP sent successfully to your email"})
}

func (h *Handler) ResendOTP(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := h.decodeValid(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Valid email is required")
		return
	}
	if err := h.svc.ResendChallenge(r.Context(), req.Email, httpx.ClientIP(r)); err != nil {
		h.writeIssueError(w, req.Email, err)
		return
	}
	httpx.Success(w, http.StatusOK, httpx.Envelope{"message": "OTP resent successfully to your email"})
}

func (h *Handler) writeIssueError(w http.ResponseWriter, email string, err error) {
	switch {
	case errors.Is(err, ErrMissingInput):
		httpx.Error(w, http.StatusBadRequest, "Valid email is required")
	case errors.Is(err, ErrUserNotFound):
		httpx.Error(w, http.StatusNotFound, "User not found")
	case errors.Is(err, ErrUserInactive):
		httpx.Error(w, http.StatusForbidden, "User account is not active")
	default:
		h.logger.Errorw("issue otp failed", "email", email, "err", err)
		httpx.Error(w, http.StatusInternalServerError, "Failed to send OTP")
	}
}

func (h *Handler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Email and a 6-digit OTP are required")
		return
	}
	// Clients paste codes out of email with stray whitespace. Trim before
	// validating so a padded code does not fail the length check.
	req.Email = strings.TrimSpace(req.Email)
	req.OTP = strings.TrimSpace(req.OTP)
	if err := h.validate.Struct(&req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Email and a 6-digit OTP are required")
		return
	}
	result, err := h.svc.VerifyChallenge(r.Context(), req.Email, req.OTP, httpx.ClientIP(r))
	if err != nil {
		switch {
		case errors.Is(err, ErrMissingInput):
			httpx.Error(w, http.StatusBadRequest, "Email and OTP are required")
		case errors.Is(err, ErrChallengeNotFound):
			httpx.Error(w, http.StatusBadRequest, "No OTP found for this email. Please request a new OTP")
		case errors.Is(err, ErrChallengeExpired):
			httpx.Error(w, http.StatusBadRequest, "OTP has expired. Please request a new OTP")
		case errors.Is(err, ErrInvalidCode):
			httpx.Error(w, http.StatusBadRequest, "Invalid OTP. Please try again")
		case errors.Is(err, ErrUserNotFound):
			httpx.Error(w, http.StatusNotFound, "User not found")
		default:
			h.logger.Errorw("verify otp failed", "email", req.Email, "err", err)
			httpx.Error(w, http.StatusInternalServerError, "Failed to verify OTP")
		}
		return
	}
	httpx.Success(w, http.StatusOK, httpx.Envelope{
		"message": "Login successful",
		"token":   result.Token,
		"user":    result.User,
	})
}

func (h *Handler) CheckEmail(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := h.decodeValid(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Valid email is required")
		return
	}
	u, err := h.users.GetByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			httpx.Success(w, http.StatusOK, httpx.Envelope{"exists": false})
			return
		}
		h.logger.Errorw("check email failed", "email", req.Email, "err", err)
		httpx.Error(w, http.StatusInternalServerError, "Failed to check email")
		return
	}
	httpx.Success(w, http.StatusOK, httpx.Envelope{
		"exists": true,
		"status": u.Status,
	})
}

// Profile returns the joined projection of the authenticated user.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		httpx.Error(w, http.StatusUnauthorized, "Access token is required")
		return
	}
	detail, err := h.users.GetDetail(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			httpx.Error(w, http.StatusNotFound, "User not found")
			return
		}
		h.logger.Errorw("get profile failed", "user", claims.UserID, "err", err)
		httpx.Error(w, http.StatusInternalServerError, "Failed to fetch profile")
		return
	}
	httpx.Success(w, http.StatusOK, httpx.Envelope{"user": detail})
}

type profileUpdateRequest struct {
	FullName      *string `json:"fullName" validate:"omitempty,min=1"`
	ContactNumber *string `json:"contactNumber"`
}

// UpdateProfile lets a user change their own name and contact number.
// Role, study and site assignments stay admin-only.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		httpx.Error(w, http.StatusUnauthorized, "Access token is required")
		return
	}
	var req profileUpdateRequest
	if err := h.decodeValid(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	upd := userentity.Update{
		FullName:      req.FullName,
		ContactNumber: req.ContactNumber,
		UpdatedBy:     &claims.UserID,
	}
	if req.FullName == nil && req.ContactNumber == nil {
		httpx.Error(w, http.StatusBadRequest, "No fields to update")
		return
	}
	affected, err := h.users.Update(r.Context(), claims.UserID, upd)
	if err != nil {
		h.logger.Errorw("update profile failed", "user", claims.UserID, "err", err)
		httpx.Error(w, http.StatusInternalServerError, "Failed to update profile")
		return
	}
	if affected == 0 {
		httpx.Error(w, http.StatusNotFound, "User not found")
		return
	}
	httpx.Success(w, http.StatusOK, httpx.Envelope{"message": "Profile updated successfully"})
}

// Logout acknowledges the client discarding its token. Tokens are stateless
// and expire on their own; nothing is revoked server-side.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	httpx.Success(w, http.StatusOK, httpx.Envelope{"message": "Logged out successfully"})
}

// LoginHistory returns the recent successful logins of the authenticated user.
func (h *Handler) LoginHistory(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		httpx.Error(w, http.StatusUnauthorized, "Access token is required")
		return
	}
	rows, err := h.audits.ListLogins(r.Context(), claims.UserID, 20)
	if err != nil {
		h.logger.Errorw("login history failed", "user", claims.UserID, "err", err)
		httpx.Error(w, http.StatusInternalServerError, "Failed to fetch login history")
		return
	}
	httpx.Success(w, http.StatusOK, httpx.Envelope{"data": rows})
}
