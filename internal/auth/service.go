package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sclinedc/edc-core/internal/audit"
	authrepo "github.com/sclinedc/edc-core/internal/auth/repo"
	userentity "github.com/sclinedc/edc-core/internal/user/entity"
)

// CredentialSource is the read-only view of the user store the engine needs.
// The OTP engine consults it, never mutates it.
type CredentialSource interface {
	GetByEmail(ctx context.Context, email string) (*userentity.User, error)
	GetDetail(ctx context.Context, id int64) (*userentity.Detail, error)
}

// ChallengeStore holds at most one live challenge per email. Consume must be
// atomic: no two concurrent verifications may both succeed.
type ChallengeStore interface {
	Put(ctx context.Context, email, code string, userID int64, expiresAt time.Time, window time.Duration) error
	Delete(ctx context.Context, email string) error
	Consume(ctx context.Context, email, code string, now time.Time) (int64, error)
}

// OTPSender delivers the passcode out-of-band.
type OTPSender interface {
	SendOTP(email, name, code string, expiryMinutes int) error
}

// TaskRunner runs a side effect off the request path.
type TaskRunner interface {
	Dispatch(name string, send func(ctx context.Context) error)
}

var (
	ErrMissingInput      = errors.New("email and otp are required")
	ErrUserNotFound      = errors.New("user not found")
	ErrUserInactive      = errors.New("user account is not active")
	ErrChallengeNotFound = errors.New("no otp found for email")
	ErrChallengeExpired  = errors.New("otp has expired")
	ErrInvalidCode       = errors.New("invalid otp")
)

// LoginResult is the successful verification outcome.
type LoginResult struct {
	Token string
	User  *userentity.Detail
}

// Service is the OTP engine: it issues, stores and verifies one-time
// passcodes and mints session credentials on success.
type Service struct {
	users      CredentialSource
	challenges ChallengeStore
	sender     OTPSender
	tasks      TaskRunner
	auditor    *audit.Recorder
	issuer     *TokenIssuer
	logger     *zap.SugaredLogger

	window time.Duration
	now    func() time.Time
	code   func() (string, error)
}

// WindowFromEnv reads OTP_EXPIRY_MINUTES (default 10).
func WindowFromEnv() time.Duration {
	if v := os.Getenv("OTP_EXPIRY_MINUTES"); v != "" {
		if minutes, err := strconv.Atoi(v); err == nil && minutes > 0 {
			return time.Duration(minutes) * time.Minute
		}
	}
	return 10 * time.Minute
}

func NewService(users CredentialSource, challenges ChallengeStore, sender OTPSender,
	tasks TaskRunner, auditor *audit.Recorder, issuer *TokenIssuer,
	window time.Duration, logger *zap.SugaredLogger) *Service {
	if window <= 0 {
		window = 10 * time.Minute
	}
	return &Service{
		users:      users,
		challenges: challenges,
		sender:     sender,
		tasks:      tasks,
		auditor:    auditor,
		issuer:     issuer,
		logger:     logger,
		window:     window,
		now:        time.Now,
		code:       generateCode,
	}
}

// generateCode draws a 6-digit code uniformly from [100000, 999999].
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n.Int64()+100000, 10), nil
}

// IssueChallenge generates and stores a passcode for the email, overwriting
// any prior unconsumed one, and dispatches delivery. Delivery failure never
// fails the call: the code also lands in the server log, which is the
// documented fallback channel when the mail transport is down.
func (s *Service) IssueChallenge(ctx context.Context, email, actorIP string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ErrMissingInput
	}
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUserNotFound
		}
		return err
	}
	if u.Status != userentity.StatusActive {
		return ErrUserInactive
	}

	code, err := s.code()
	if err != nil {
		return err
	}
	expiresAt := s.now().Add(s.window)
	if err := s.challenges.Put(ctx, email, code, u.UserID, expiresAt, s.window); err != nil {
		return err
	}

	// fallback channel when the mail transport is down
	s.logger.Infow("otp issued", "email", email, "code", code, "expires_at", expiresAt)

	name := u.FullName
	minutes := int(s.window.Minutes())
	s.tasks.Dispatch("otp-email", func(context.Context) error {
		return s.sender.SendOTP(email, name, code, minutes)
	})

	uid := u.UserID
	s.auditor.Record(audit.Entry{
		UserID:     &uid,
		ModuleName: audit.ModuleAuthentication,
		ActionType: audit.ActionEmail,
		RecordID:   u.UserID,
		NewValue:   []byte(`{"action":"OTP_SENT"}`),
		IPAddress:  actorIP,
	})
	return nil
}

// VerifyChallenge checks the supplied code and, on the single permitted
// success, mints a session credential and returns the user projection.
func (s *Service) VerifyChallenge(ctx context.Context, email, code, actorIP string) (*LoginResult, error) {
	email = strings.TrimSpace(email)
	code = strings.TrimSpace(code)
	if email == "" || code == "" {
		return nil, ErrMissingInput
	}

	userID, err := s.challenges.Consume(ctx, email, code, s.now())
	if err != nil {
		switch {
		case errors.Is(err, authrepo.ErrChallengeNotFound):
			return nil, ErrChallengeNotFound
		case errors.Is(err, authrepo.ErrChallengeExpired):
			return nil, ErrChallengeExpired
		case errors.Is(err, authrepo.ErrCodeMismatch):
			return nil, ErrInvalidCode
		default:
			return nil, err
		}
	}

	detail, err := s.users.GetDetail(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// account removed between issuance and verification
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	token, err := s.issuer.Mint(detail)
	if err != nil {
		return nil, err
	}

	uid := detail.UserID
	s.auditor.Record(audit.Entry{
		UserID:     &uid,
		RoleID:     detail.RoleID,
		ModuleName: audit.ModuleAuthentication,
		ActionType: audit.ActionLogin,
		RecordID:   detail.UserID,
		NewValue:   []byte(`{"status":"SUCCESS"}`),
		IPAddress:  actorIP,
	})
	return &LoginResult{Token: token, User: detail}, nil
}

// ResendChallenge discards any stored challenge for the email and issues a
// fresh one.
func (s *Service) ResendChallenge(ctx context.Context, email, actorIP string) error {
	trimmed := strings.TrimSpace(email)
	if trimmed == "" {
		return ErrMissingInput
	}
	if err := s.challenges.Delete(ctx, trimmed); err != nil {
		s.logger.Warnw("discard challenge failed", "email", trimmed, "err", err)
	}
	return s.IssueChallenge(ctx, trimmed, actorIP)
}
