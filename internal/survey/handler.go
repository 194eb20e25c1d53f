package survey

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/sclinedc/edc-core/internal/httpx"
)

// Handler exposes the survey response endpoints.
type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

type writeRequest struct {
	UserID       int64           `json:"userId"`
	StudyID      int64           `json:"studyId"`
	ResponseData json.RawMessage `json:"responseData"`
}

func pairFromPath(r *http.Request) (userID, studyID int64, err error) {
	userID, err = strconv.ParseInt(r.PathValue("userId"), 10, 64)
	if err != nil {
		return 0, 0, err
	}
	studyID, err = strconv.ParseInt(r.PathValue("studyId"), 10, 64)
	if err != nil {
		return 0, 0, err
	}
	return userID, studyID, nil
}

// FetchStudy serves GET /api/survey/study/{userId}/{studyId}.
func (h *Handler) FetchStudy(w http.ResponseWriter, r *http.Request) {
	userID, studyID, err := pairFromPath(r)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "Invalid user or study id")
		return
	}
	view, err := h.svc.FetchStudyForUser(r.Context(), userID, studyID)
	if err != nil {
		if errors.Is(err, ErrStudyUnavailable) {
			httpx.Error(w, http.StatusNotFound, "Study not found or user not authorized")
			return
		}
		h.logger.Errorw("fetch study failed", "user", userID, "study", studyID, "err", err)
		httpx.Error(w, http.StatusInternalServerError, "Failed to fetch study data")
		return
	}
	httpx.Success(w, http.StatusOK, httpx.Envelope{"data": view})
}

// SubmitSurvey serves POST /api/survey/submit-survey.
func (h *Handler) SubmitSurvey(w http.ResponseWriter, r *http.Request) {
	var req writeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	result, err := h.svc.Submit(r.Context(), req.UserID, req.StudyID, req.ResponseData, httpx.ClientIP(r))
	if err != nil {
		h.writeError(w, err, "Failed to submit survey",
			"Missing required fields: userId, studyId, or responseData",
			"Survey has already been submitted. Duplicate submissions are not allowed.")
		return
	}
	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	httpx.Success(w, status, httpx.Envelope{
		"message":    "Survey submitted successfully",
		"responseId": result.ResponseID,
	})
}

// SaveDraft serves POST /api/survey/save-draft.
func (h *Handler) SaveDraft(w http.ResponseWriter, r *http.Request) {
	var req writeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	result, err := h.svc.SaveDraft(r.Context(), req.UserID, req.StudyID, req.ResponseData)
	if err != nil {
		h.writeError(w, err, "Failed to save draft",
			"Missing required fields",
			"Survey already submitted. Cannot save draft.")
		return
	}
	status := http.StatusOK
	message := "Draft updated successfully"
	if result.Created {
		status = http.StatusCreated
		message = "Draft saved successfully"
	}
	httpx.Success(w, status, httpx.Envelope{
		"message":    message,
		"responseId": result.ResponseID,
	})
}

// UserResponses serves GET /api/survey/user-responses/{userId}/{studyId}.
func (h *Handler) UserResponses(w http.ResponseWriter, r *http.Request) {
	userID, studyID, err := pairFromPath(r)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "Invalid user or study id")
		return
	}
	resp, err := h.svc.FetchLatestResponse(r.Context(), userID, studyID)
	if err != nil {
		h.logger.Errorw("fetch responses failed", "user", userID, "study", studyID, "err", err)
		httpx.Error(w, http.StatusInternalServerError, "Failed to fetch user responses")
		return
	}
	if resp == nil {
		httpx.Success(w, http.StatusOK, httpx.Envelope{"data": nil, "hasResponses": false})
		return
	}
	httpx.Success(w, http.StatusOK, httpx.Envelope{"data": resp, "hasResponses": true})
}

func (h *Handler) writeError(w http.ResponseWriter, err error, generic, missing, conflict string) {
	switch {
	case errors.Is(err, ErrMissingFields):
		httpx.Error(w, http.StatusBadRequest, missing)
	case errors.Is(err, ErrAlreadySubmitted):
		httpx.Error(w, http.StatusConflict, conflict, httpx.Envelope{"alreadySubmitted": true})
	default:
		h.logger.Errorw("survey write failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, generic)
	}
}
