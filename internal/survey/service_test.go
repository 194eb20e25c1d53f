package survey

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sclinedc/edc-core/internal/audit"
	"github.com/sclinedc/edc-core/internal/study"
	"github.com/sclinedc/edc-core/internal/survey/entity"
)

type pairKey struct{ userID, studyID int64 }

// memStore mimics the single-row-per-pair table with its atomic write rules.
type memStore struct {
	mu   sync.Mutex
	rows map[pairKey]*entity.Response
	next int64
}

func newMemStore() *memStore {
	return &memStore{rows: map[pairKey]*entity.Response{}}
}

func (m *memStore) write(userID, studyID int64, payload json.RawMessage, status string) (int64, bool, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := pairKey{userID, studyID}
	now := time.Now()
	if row, exists := m.rows[key]; exists {
		if row.Status == entity.StatusSubmitted {
			return 0, false, false, nil
		}
		row.ResponseData = payload
		row.Status = status
		row.LastUpdatedAt = now
		if status == entity.StatusSubmitted {
			row.SubmittedAt = &now
		}
		return row.ResponseID, false, true, nil
	}
	m.next++
	row := &entity.Response{
		ResponseID: m.next, UserID: userID, StudyID: studyID,
		ResponseData: payload, Status: status, LastUpdatedAt: now,
	}
	if status == entity.StatusSubmitted {
		row.SubmittedAt = &now
	}
	m.rows[key] = row
	return row.ResponseID, true, true, nil
}

func (m *memStore) UpsertDraft(_ context.Context, userID, studyID int64, payload json.RawMessage) (int64, bool, bool, error) {
	return m.write(userID, studyID, payload, entity.StatusDraft)
}

func (m *memStore) Submit(_ context.Context, userID, studyID int64, payload json.RawMessage) (int64, bool, bool, error) {
	return m.write(userID, studyID, payload, entity.StatusSubmitted)
}

func (m *memStore) GetLatest(_ context.Context, userID, studyID int64) (*entity.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, exists := m.rows[pairKey{userID, studyID}]
	if !exists {
		return nil, nil
	}
	cp := *row
	return &cp, nil
}

type stubStudies struct {
	plain   map[int64]*study.Study
	forUser map[pairKey]*study.Study
}

func (s *stubStudies) GetByID(_ context.Context, studyID int64) (*study.Study, error) {
	if st, ok := s.plain[studyID]; ok {
		return st, nil
	}
	return nil, sql.ErrNoRows
}

func (s *stubStudies) GetForUser(_ context.Context, studyID, userID int64) (*study.Study, error) {
	if st, ok := s.forUser[pairKey{userID, studyID}]; ok {
		return st, nil
	}
	return nil, sql.ErrNoRows
}

func (s *stubStudies) Summary(_ context.Context, studyID int64) (string, string, error) {
	if st, ok := s.plain[studyID]; ok {
		return st.StudyTitle, st.StudyNumber, nil
	}
	return "", "", sql.ErrNoRows
}

type sentMail struct{ email, name, number, title string }

type stubSender struct {
	mu   sync.Mutex
	sent []sentMail
}

func (s *stubSender) SendSubmissionConfirmation(email, name, number, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentMail{email, name, number, title})
	return nil
}

type stubContacts struct{}

func (stubContacts) Contact(context.Context, int64) (string, string, error) {
	return "jane@site.example", "Jane Doe", nil
}

// syncTasks runs dispatched tasks inline so tests see their effects.
type syncTasks struct{ names []string }

func (t *syncTasks) Dispatch(name string, send func(ctx context.Context) error) {
	t.names = append(t.names, name)
	_ = send(context.Background())
}

type nullSink struct{}

func (nullSink) Insert(context.Context, audit.Entry) error { return nil }

func newTestService(t *testing.T, store ResponseStore, studies StudyProvider, sender *stubSender, tasks TaskRunner) *Service {
	t.Helper()
	logger := zap.NewNop().Sugar()
	if sender == nil {
		sender = &stubSender{}
	}
	if tasks == nil {
		tasks = &syncTasks{}
	}
	return NewService(store, studies, stubContacts{}, sender, tasks, audit.NewRecorder(nullSink{}, logger), logger)
}

func emptyStudies() *stubStudies {
	return &stubStudies{plain: map[int64]*study.Study{}, forUser: map[pairKey]*study.Study{}}
}

func TestSaveDraftCreateThenUpdate(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store, emptyStudies(), nil, nil)
	ctx := context.Background()

	first, err := svc.SaveDraft(ctx, 7, 3, json.RawMessage(`{"q1":"a"}`))
	require.NoError(t, err)
	assert.True(t, first.Created)

	second, err := svc.SaveDraft(ctx, 7, 3, json.RawMessage(`{"q1":"b"}`))
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.ResponseID, second.ResponseID)

	latest, err := svc.FetchLatestResponse(ctx, 7, 3)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, entity.StatusDraft, latest.Status)
	assert.JSONEq(t, `{"q1":"b"}`, string(latest.ResponseData))
}

func TestSaveDraftMissingFields(t *testing.T) {
	svc := newTestService(t, newMemStore(), emptyStudies(), nil, nil)
	ctx := context.Background()

	_, err := svc.SaveDraft(ctx, 0, 3, json.RawMessage(`{}`))
	assert.ErrorIs(t, err, ErrMissingFields)
	_, err = svc.SaveDraft(ctx, 7, 0, json.RawMessage(`{}`))
	assert.ErrorIs(t, err, ErrMissingFields)
	_, err = svc.SaveDraft(ctx, 7, 3, nil)
	assert.ErrorIs(t, err, ErrMissingFields)
}

func TestSubmitIsTerminal(t *testing.T) {
	store := newMemStore()
	studies := emptyStudies()
	studies.plain[3] = &study.Study{StudyID: 3, StudyTitle: "Hypertension", StudyNumber: "HTN-001"}
	sender := &stubSender{}
	tasks := &syncTasks{}
	svc := newTestService(t, store, studies, sender, tasks)
	ctx := context.Background()

	result, err := svc.Submit(ctx, 7, 3, json.RawMessage(`{"q1":"final"}`), "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, result.Created)

	_, err = svc.Submit(ctx, 7, 3, json.RawMessage(`{"q1":"changed"}`), "10.0.0.1")
	assert.ErrorIs(t, err, ErrAlreadySubmitted)

	_, err = svc.SaveDraft(ctx, 7, 3, json.RawMessage(`{"q1":"changed"}`))
	assert.ErrorIs(t, err, ErrAlreadySubmitted)

	latest, err := svc.FetchLatestResponse(ctx, 7, 3)
	require.NoError(t, err)
	assert.JSONEq(t, `{"q1":"final"}`, string(latest.ResponseData))
	require.NotNil(t, latest.SubmittedAt)

	// exactly one confirmation for the one accepted submit
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "jane@site.example", sender.sent[0].email)
	assert.Equal(t, "HTN-001", sender.sent[0].number)
	assert.Equal(t, []string{"submission-confirmation"}, tasks.names)
}

func TestSubmitFinalizesDraft(t *testing.T) {
	store := newMemStore()
	studies := emptyStudies()
	studies.plain[3] = &study.Study{StudyID: 3, StudyTitle: "Hypertension", StudyNumber: "HTN-001"}
	svc := newTestService(t, store, studies, nil, nil)
	ctx := context.Background()

	draft, err := svc.SaveDraft(ctx, 7, 3, json.RawMessage(`{"q1":"a"}`))
	require.NoError(t, err)

	final, err := svc.Submit(ctx, 7, 3, json.RawMessage(`{"q1":"done"}`), "")
	require.NoError(t, err)
	assert.False(t, final.Created)
	assert.Equal(t, draft.ResponseID, final.ResponseID)
}

func TestConcurrentSubmitsSingleWinner(t *testing.T) {
	store := newMemStore()
	studies := emptyStudies()
	studies.plain[3] = &study.Study{StudyID: 3, StudyTitle: "Hypertension", StudyNumber: "HTN-001"}
	sender := &stubSender{}

	var taskMu sync.Mutex
	var taskCount int
	tasks := taskFunc(func(name string, send func(ctx context.Context) error) {
		taskMu.Lock()
		taskCount++
		taskMu.Unlock()
		_ = send(context.Background())
	})
	svc := newTestService(t, store, studies, sender, tasks)

	const workers = 16
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Submit(context.Background(), 7, 3, json.RawMessage(`{"w":true}`), "")
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, ErrAlreadySubmitted)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Len(t, sender.sent, 1)
	assert.Equal(t, 1, taskCount)
}

type taskFunc func(name string, send func(ctx context.Context) error)

func (f taskFunc) Dispatch(name string, send func(ctx context.Context) error) { f(name, send) }

func TestFetchStudyForUserBeforeAnyResponse(t *testing.T) {
	studies := emptyStudies()
	studies.forUser[pairKey{7, 3}] = &study.Study{StudyID: 3, StudyTitle: "Hypertension"}
	svc := newTestService(t, newMemStore(), studies, nil, nil)

	view, err := svc.FetchStudyForUser(context.Background(), 7, 3)
	require.NoError(t, err)
	require.NotNil(t, view.StudyDefinition)
	assert.Nil(t, view.Status)
	assert.Nil(t, view.DraftResponse)
}

func TestFetchStudyForUserUnassigned(t *testing.T) {
	svc := newTestService(t, newMemStore(), emptyStudies(), nil, nil)

	_, err := svc.FetchStudyForUser(context.Background(), 7, 3)
	assert.ErrorIs(t, err, ErrStudyUnavailable)
}

func TestFetchStudyForUserWithDraft(t *testing.T) {
	store := newMemStore()
	studies := emptyStudies()
	studies.forUser[pairKey{7, 3}] = &study.Study{StudyID: 3, StudyTitle: "Hypertension"}
	svc := newTestService(t, store, studies, nil, nil)
	ctx := context.Background()

	_, err := svc.SaveDraft(ctx, 7, 3, json.RawMessage(`{"q1":"a"}`))
	require.NoError(t, err)

	view, err := svc.FetchStudyForUser(ctx, 7, 3)
	require.NoError(t, err)
	require.NotNil(t, view.Status)
	assert.Equal(t, entity.StatusDraft, *view.Status)
	assert.JSONEq(t, `{"q1":"a"}`, string(view.DraftResponse))
}

// A submitted record must stay readable through the plain lookup even after
// the user loses the assignment that the pre-submission read requires.
func TestFetchStudyAfterSubmissionSurvivesReassignment(t *testing.T) {
	store := newMemStore()
	studies := emptyStudies()
	studies.plain[3] = &study.Study{StudyID: 3, StudyTitle: "Hypertension", StudyNumber: "HTN-001"}
	svc := newTestService(t, store, studies, nil, nil)
	ctx := context.Background()

	_, err := svc.Submit(ctx, 7, 3, json.RawMessage(`{"q1":"final"}`), "")
	require.NoError(t, err)

	view, err := svc.FetchStudyForUser(ctx, 7, 3)
	require.NoError(t, err)
	require.NotNil(t, view.StudyDefinition)
	require.NotNil(t, view.Status)
	assert.Equal(t, entity.StatusSubmitted, *view.Status)
}

func TestSubmitConfirmationFailureDoesNotFailSubmit(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store, emptyStudies(), nil, nil)

	// no study summary available, so the dispatched task errors internally
	result, err := svc.Submit(context.Background(), 7, 99, json.RawMessage(`{"q":1}`), "")
	require.NoError(t, err)
	assert.True(t, result.Created)
}
