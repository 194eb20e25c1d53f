package auth

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sclinedc/edc-core/internal/audit"
	authrepo "github.com/sclinedc/edc-core/internal/auth/repo"
	userentity "github.com/sclinedc/edc-core/internal/user/entity"
)

type stubUsers struct {
	byEmail map[string]*userentity.User
	byID    map[int64]*userentity.Detail
}

func (s *stubUsers) GetByEmail(_ context.Context, email string) (*userentity.User, error) {
	if u, ok := s.byEmail[email]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (s *stubUsers) GetDetail(_ context.Context, id int64) (*userentity.Detail, error) {
	if d, ok := s.byID[id]; ok {
		return d, nil
	}
	return nil, sql.ErrNoRows
}

type challenge struct {
	code      string
	userID    int64
	expiresAt time.Time
}

// memChallenges mirrors the Redis store's semantics in memory.
type memChallenges struct {
	mu   sync.Mutex
	byEm map[string]challenge
}

func newMemChallenges() *memChallenges {
	return &memChallenges{byEm: map[string]challenge{}}
}

func (m *memChallenges) Put(_ context.Context, email, code string, userID int64, expiresAt time.Time, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byEm[email] = challenge{code: code, userID: userID, expiresAt: expiresAt}
	return nil
}

func (m *memChallenges) Delete(_ context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byEm, email)
	return nil
}

func (m *memChallenges) Consume(_ context.Context, email, code string, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byEm[email]
	if !ok {
		return 0, authrepo.ErrChallengeNotFound
	}
	if now.After(c.expiresAt) {
		delete(m.byEm, email)
		return 0, authrepo.ErrChallengeExpired
	}
	if c.code != code {
		return 0, authrepo.ErrCodeMismatch
	}
	delete(m.byEm, email)
	return c.userID, nil
}

type sentOTP struct {
	email, name, code string
	minutes           int
}

type stubOTPSender struct {
	mu   sync.Mutex
	sent []sentOTP
}

func (s *stubOTPSender) SendOTP(email, name, code string, minutes int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentOTP{email, name, code, minutes})
	return nil
}

type inlineTasks struct{}

func (inlineTasks) Dispatch(_ string, send func(ctx context.Context) error) {
	_ = send(context.Background())
}

type nullSink struct{}

func (nullSink) Insert(context.Context, audit.Entry) error { return nil }

func ptr[T any](v T) *T { return &v }

func fixture() (*Service, *stubOTPSender, *memChallenges) {
	users := &stubUsers{
		byEmail: map[string]*userentity.User{
			"jane@site.example": {UserID: 7, FullName: "Jane Doe", EmailAddress: "jane@site.example", Status: userentity.StatusActive},
			"off@site.example":  {UserID: 8, FullName: "Former User", EmailAddress: "off@site.example", Status: userentity.StatusInactive},
		},
		byID: map[int64]*userentity.Detail{
			7: {UserID: 7, FullName: "Jane Doe", EmailAddress: "jane@site.example",
				RoleID: ptr[int64](2), RoleName: ptr("Coordinator"), StudyID: ptr[int64](3)},
		},
	}
	challenges := newMemChallenges()
	sender := &stubOTPSender{}
	issuer, _ := NewTokenIssuer("test-secret", time.Hour)
	logger := zap.NewNop().Sugar()
	svc := NewService(users, challenges, sender, inlineTasks{}, audit.NewRecorder(nullSink{}, logger), issuer, 10*time.Minute, logger)
	return svc, sender, challenges
}

func TestIssueChallengeUnknownUser(t *testing.T) {
	svc, _, _ := fixture()
	err := svc.IssueChallenge(context.Background(), "nobody@site.example", "")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestIssueChallengeInactiveUser(t *testing.T) {
	svc, _, _ := fixture()
	err := svc.IssueChallenge(context.Background(), "off@site.example", "")
	assert.ErrorIs(t, err, ErrUserInactive)
}

func TestIssueChallengeMissingEmail(t *testing.T) {
	svc, _, _ := fixture()
	err := svc.IssueChallenge(context.Background(), "  ", "")
	assert.ErrorIs(t, err, ErrMissingInput)
}

func TestIssueAndVerify(t *testing.T) {
	svc, sender, _ := fixture()
	svc.code = func() (string, error) { return "123456", nil }
	ctx := context.Background()

	require.NoError(t, svc.IssueChallenge(ctx, "jane@site.example", "10.0.0.1"))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "123456", sender.sent[0].code)
	assert.Equal(t, 10, sender.sent[0].minutes)

	result, err := svc.VerifyChallenge(ctx, "jane@site.example", "123456", "10.0.0.1")
	require.NoError(t, err)
	require.NotNil(t, result.User)
	assert.Equal(t, int64(7), result.User.UserID)

	issuer := svc.issuer
	claims, err := issuer.Parse(result.Token)
	require.NoError(t, err)
	assert.Equal(t, int64(7), claims.UserID)
	assert.Equal(t, "jane@site.example", claims.Email)
	require.NotNil(t, claims.RoleName)
	assert.Equal(t, "Coordinator", *claims.RoleName)
}

func TestVerifyIsSingleUse(t *testing.T) {
	svc, _, _ := fixture()
	svc.code = func() (string, error) { return "123456", nil }
	ctx := context.Background()

	require.NoError(t, svc.IssueChallenge(ctx, "jane@site.example", ""))
	_, err := svc.VerifyChallenge(ctx, "jane@site.example", "123456", "")
	require.NoError(t, err)

	_, err = svc.VerifyChallenge(ctx, "jane@site.example", "123456", "")
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}

func TestVerifyMismatchKeepsChallenge(t *testing.T) {
	svc, _, _ := fixture()
	svc.code = func() (string, error) { return "123456", nil }
	ctx := context.Background()

	require.NoError(t, svc.IssueChallenge(ctx, "jane@site.example", ""))

	_, err := svc.VerifyChallenge(ctx, "jane@site.example", "000000", "")
	assert.ErrorIs(t, err, ErrInvalidCode)

	_, err = svc.VerifyChallenge(ctx, "jane@site.example", "123456", "")
	assert.NoError(t, err)
}

func TestVerifyExpired(t *testing.T) {
	svc, _, _ := fixture()
	svc.code = func() (string, error) { return "123456", nil }
	ctx := context.Background()

	require.NoError(t, svc.IssueChallenge(ctx, "jane@site.example", ""))

	svc.now = func() time.Time { return time.Now().Add(11 * time.Minute) }
	_, err := svc.VerifyChallenge(ctx, "jane@site.example", "123456", "")
	assert.ErrorIs(t, err, ErrChallengeExpired)
}

func TestVerifyWithoutChallenge(t *testing.T) {
	svc, _, _ := fixture()
	_, err := svc.VerifyChallenge(context.Background(), "jane@site.example", "123456", "")
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}

func TestVerifyMissingInput(t *testing.T) {
	svc, _, _ := fixture()
	_, err := svc.VerifyChallenge(context.Background(), "jane@site.example", "", "")
	assert.ErrorIs(t, err, ErrMissingInput)
}

func TestResendReplacesCode(t *testing.T) {
	svc, sender, _ := fixture()
	codes := []string{"111111", "222222"}
	svc.code = func() (string, error) {
		code := codes[0]
		codes = codes[1:]
		return code, nil
	}
	ctx := context.Background()

	require.NoError(t, svc.IssueChallenge(ctx, "jane@site.example", ""))
	require.NoError(t, svc.ResendChallenge(ctx, "jane@site.example", ""))
	require.Len(t, sender.sent, 2)

	_, err := svc.VerifyChallenge(ctx, "jane@site.example", "111111", "")
	assert.ErrorIs(t, err, ErrInvalidCode)

	_, err = svc.VerifyChallenge(ctx, "jane@site.example", "222222", "")
	assert.NoError(t, err)
}

func TestGenerateCodeShape(t *testing.T) {
	for i := 0; i < 64; i++ {
		code, err := generateCode()
		require.NoError(t, err)
		require.Len(t, code, 6)
		assert.GreaterOrEqual(t, code, "100000")
		assert.LessOrEqual(t, code, "999999")
	}
}
