package survey

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/sclinedc/edc-core/internal/audit"
	"github.com/sclinedc/edc-core/internal/study"
	"github.com/sclinedc/edc-core/internal/survey/entity"
)

// ResponseStore is the persistence contract of the lifecycle engine. Both
// write operations must be atomic per (user, study) key: ok=false reports
// that a submitted record blocked the write, with nothing modified.
type ResponseStore interface {
	UpsertDraft(ctx context.Context, userID, studyID int64, payload json.RawMessage) (id int64, created, ok bool, err error)
	Submit(ctx context.Context, userID, studyID int64, payload json.RawMessage) (id int64, created, ok bool, err error)
	GetLatest(ctx context.Context, userID, studyID int64) (*entity.Response, error)
}

// StudyProvider supplies study definitions through the two read contracts.
type StudyProvider interface {
	GetForUser(ctx context.Context, studyID, userID int64) (*study.Study, error)
	GetByID(ctx context.Context, studyID int64) (*study.Study, error)
	Summary(ctx context.Context, studyID int64) (title, number string, err error)
}

// ContactSource resolves a user id to a notification address.
type ContactSource interface {
	Contact(ctx context.Context, userID int64) (email, name string, err error)
}

// ConfirmationSender delivers the submission receipt.
type ConfirmationSender interface {
	SendSubmissionConfirmation(email, name, studyNumber, studyTitle string) error
}

// TaskRunner runs a side effect off the request path.
type TaskRunner interface {
	Dispatch(name string, send func(ctx context.Context) error)
}

var (
	ErrMissingFields    = errors.New("missing required fields")
	ErrAlreadySubmitted = errors.New("survey already submitted")
	// ErrStudyUnavailable covers both "no such study" and "user no longer
	// assigned": the authorization-aware read does not distinguish them.
	ErrStudyUnavailable = errors.New("study not found or user not authorized")
)

// WriteResult reports a successful lifecycle write. Created distinguishes a
// first write (201) from an update of an existing record (200).
type WriteResult struct {
	ResponseID int64
	Created    bool
}

// StudyView is the read-path payload. Status is nil while the user has not
// started the survey.
type StudyView struct {
	StudyDefinition *study.Study    `json:"study_definition"`
	DraftResponse   json.RawMessage `json:"draft_response"`
	Status          *string         `json:"status"`
}

// Service is the response lifecycle engine: it owns the draft/submit state
// machine for each (user, study) pair and the state-dependent study read path.
type Service struct {
	store    ResponseStore
	studies  StudyProvider
	contacts ContactSource
	sender   ConfirmationSender
	tasks    TaskRunner
	auditor  *audit.Recorder
	logger   *zap.SugaredLogger
}

func NewService(store ResponseStore, studies StudyProvider, contacts ContactSource,
	sender ConfirmationSender, tasks TaskRunner, auditor *audit.Recorder, logger *zap.SugaredLogger) *Service {
	return &Service{
		store:    store,
		studies:  studies,
		contacts: contacts,
		sender:   sender,
		tasks:    tasks,
		auditor:  auditor,
		logger:   logger,
	}
}

// SaveDraft stores or overwrites the mutable draft for a pair. A submitted
// record rejects the write with ErrAlreadySubmitted and stays untouched.
func (s *Service) SaveDraft(ctx context.Context, userID, studyID int64, payload json.RawMessage) (*WriteResult, error) {
	if userID == 0 || studyID == 0 || len(payload) == 0 {
		return nil, ErrMissingFields
	}
	id, created, ok, err := s.store.UpsertDraft(ctx, userID, studyID, payload)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAlreadySubmitted
	}
	return &WriteResult{ResponseID: id, Created: created}, nil
}

// Submit finalizes the pair's response. The transition is terminal: any later
// SaveDraft or Submit gets ErrAlreadySubmitted, and a retried submit can
// neither change the stored payload nor re-fire the confirmation email.
func (s *Service) Submit(ctx context.Context, userID, studyID int64, payload json.RawMessage, actorIP string) (*WriteResult, error) {
	if userID == 0 || studyID == 0 || len(payload) == 0 {
		return nil, ErrMissingFields
	}
	id, created, ok, err := s.store.Submit(ctx, userID, studyID, payload)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAlreadySubmitted
	}

	uid := userID
	s.auditor.Record(audit.Entry{
		UserID:     &uid,
		ModuleName: audit.ModuleSurvey,
		ActionType: audit.ActionSubmit,
		RecordID:   id,
		NewValue:   payload,
		IPAddress:  actorIP,
	})
	s.tasks.Dispatch("submission-confirmation", func(taskCtx context.Context) error {
		email, name, err := s.contacts.Contact(taskCtx, userID)
		if err != nil {
			return err
		}
		title, number, err := s.studies.Summary(taskCtx, studyID)
		if err != nil {
			return err
		}
		return s.sender.SendSubmissionConfirmation(email, name, number, title)
	})

	return &WriteResult{ResponseID: id, Created: created}, nil
}

// FetchStudyForUser returns the study definition together with the pair's
// current response state. Once submitted, the definition comes from the plain
// lookup so a later reassignment can never hide a user's own final answers;
// before that the authorization-aware lookup applies.
func (s *Service) FetchStudyForUser(ctx context.Context, userID, studyID int64) (*StudyView, error) {
	latest, err := s.store.GetLatest(ctx, userID, studyID)
	if err != nil {
		return nil, err
	}

	view := &StudyView{}
	if latest != nil {
		status := latest.Status
		view.Status = &status
		view.DraftResponse = latest.ResponseData
	}

	if latest != nil && latest.Submitted() {
		def, err := s.studies.GetByID(ctx, studyID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, ErrStudyUnavailable
			}
			return nil, err
		}
		view.StudyDefinition = def
		return view, nil
	}

	def, err := s.studies.GetForUser(ctx, studyID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStudyUnavailable
		}
		return nil, err
	}
	view.StudyDefinition = def
	return view, nil
}

// FetchLatestResponse is a pure read of the most recent record for the pair;
// nil means no responses yet.
func (s *Service) FetchLatestResponse(ctx context.Context, userID, studyID int64) (*entity.Response, error) {
	return s.store.GetLatest(ctx, userID, studyID)
}
