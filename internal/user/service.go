package user

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/sclinedc/edc-core/internal/audit"
	"github.com/sclinedc/edc-core/internal/user/entity"
	"github.com/sclinedc/edc-core/internal/user/repo"
)

var (
	ErrEmailTaken   = errors.New("email already in use")
	ErrPhoneTaken   = errors.New("contact number already in use")
	ErrUserNotFound = errors.New("user not found")
	ErrEmptyUpdate  = errors.New("no fields to update")
)

// WelcomeSender delivers the onboarding email to a newly provisioned account.
type WelcomeSender interface {
	SendWelcome(email, name, role, site string) error
}

// TaskRunner runs a side effect off the request path.
type TaskRunner interface {
	Dispatch(name string, send func(ctx context.Context) error)
}

// Service implements account provisioning and administration. Uniqueness of
// email and contact number is checked here before every write; the welcome
// email and audit trail are fired after the row lands and never block the
// response.
type Service struct {
	repo    *repo.UserRepo
	welcome WelcomeSender
	tasks   TaskRunner
	auditor *audit.Recorder
	logger  *zap.SugaredLogger
}

func NewService(r *repo.UserRepo, welcome WelcomeSender, tasks TaskRunner,
	auditor *audit.Recorder, logger *zap.SugaredLogger) *Service {
	return &Service{repo: r, welcome: welcome, tasks: tasks, auditor: auditor, logger: logger}
}

func (s *Service) List(ctx context.Context, f entity.Filter) ([]*entity.Detail, int64, error) {
	total, err := s.repo.Count(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	rows, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*entity.Detail, error) {
	detail, err := s.repo.GetDetail(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return detail, nil
}

func (s *Service) ListByRole(ctx context.Context, roleID int64) ([]*entity.Detail, error) {
	return s.repo.ListByRole(ctx, roleID)
}

func (s *Service) checkUnique(ctx context.Context, email, phone string, excludeID int64) error {
	if email != "" {
		taken, err := s.repo.EmailExists(ctx, email, excludeID)
		if err != nil {
			return err
		}
		if taken {
			return ErrEmailTaken
		}
	}
	if phone != "" {
		taken, err := s.repo.PhoneExists(ctx, phone, excludeID)
		if err != nil {
			return err
		}
		if taken {
			return ErrPhoneTaken
		}
	}
	return nil
}

// Create provisions an account and dispatches the welcome email.
func (s *Service) Create(ctx context.Context, u *entity.User, actorIP string) (int64, error) {
	u.EmailAddress = strings.ToLower(strings.TrimSpace(u.EmailAddress))
	u.ContactNumber = strings.TrimSpace(u.ContactNumber)
	if u.Status == "" {
		u.Status = entity.StatusActive
	}
	if err := s.checkUnique(ctx, u.EmailAddress, u.ContactNumber, 0); err != nil {
		return 0, err
	}
	id, err := s.repo.Create(ctx, u)
	if err != nil {
		return 0, err
	}

	newVal, _ := json.Marshal(map[string]any{
		"full_name":     u.FullName,
		"email_address": u.EmailAddress,
		"role_id":       u.RoleID,
		"status":        u.Status,
	})
	s.auditor.Record(audit.Entry{
		UserID:     u.CreatedBy,
		ModuleName: audit.ModuleUserManagement,
		ActionType: audit.ActionCreate,
		RecordID:   id,
		NewValue:   newVal,
		IPAddress:  actorIP,
	})

	s.tasks.Dispatch("welcome-email", func(ctx context.Context) error {
		detail, err := s.repo.GetDetail(ctx, id)
		if err != nil {
			return err
		}
		role, site := "", ""
		if detail.RoleName != nil {
			role = *detail.RoleName
		}
		if detail.SiteName != nil {
			site = *detail.SiteName
		}
		return s.welcome.SendWelcome(detail.EmailAddress, detail.FullName, role, site)
	})
	return id, nil
}

// Update applies a partial update after re-checking uniqueness of any
// changed email or contact number.
func (s *Service) Update(ctx context.Context, id int64, upd entity.Update, actorIP string) error {
	if upd.IsEmpty() {
		return ErrEmptyUpdate
	}
	old, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUserNotFound
		}
		return err
	}
	email, phone := "", ""
	if upd.EmailAddress != nil {
		email = strings.ToLower(strings.TrimSpace(*upd.EmailAddress))
		upd.EmailAddress = &email
	}
	if upd.ContactNumber != nil {
		phone = strings.TrimSpace(*upd.ContactNumber)
		upd.ContactNumber = &phone
	}
	if err := s.checkUnique(ctx, email, phone, id); err != nil {
		return err
	}
	affected, err := s.repo.Update(ctx, id, upd)
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrUserNotFound
	}

	oldVal, _ := json.Marshal(old)
	newVal, _ := json.Marshal(upd.Fields())
	s.auditor.Record(audit.Entry{
		UserID:     upd.UpdatedBy,
		ModuleName: audit.ModuleUserManagement,
		ActionType: audit.ActionUpdate,
		RecordID:   id,
		OldValue:   oldVal,
		NewValue:   newVal,
		IPAddress:  actorIP,
	})
	return nil
}

// Delete removes the account. The audit entry is written with the old row
// snapshot before the delete so the trail survives the removal.
func (s *Service) Delete(ctx context.Context, id int64, actorID *int64, actorIP string) error {
	old, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUserNotFound
		}
		return err
	}
	oldVal, _ := json.Marshal(old)
	s.auditor.Record(audit.Entry{
		UserID:     actorID,
		ModuleName: audit.ModuleUserManagement,
		ActionType: audit.ActionDelete,
		RecordID:   id,
		OldValue:   oldVal,
		IPAddress:  actorIP,
	})
	affected, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// ImportResult summarizes a bulk import run.
type ImportResult struct {
	Created int      `json:"created"`
	Skipped int      `json:"skipped"`
	Errors  []string `json:"errors,omitempty"`
}

// BulkImport provisions many accounts in one call. Rows that fail validation
// or collide on email or phone are skipped and reported, never aborting the
// rest of the batch.
func (s *Service) BulkImport(ctx context.Context, users []*entity.User, actorIP string) ImportResult {
	var result ImportResult
	for _, u := range users {
		if strings.TrimSpace(u.FullName) == "" || strings.TrimSpace(u.EmailAddress) == "" {
			result.Skipped++
			result.Errors = append(result.Errors, "missing name or email: "+u.EmailAddress)
			continue
		}
		if _, err := s.Create(ctx, u, actorIP); err != nil {
			result.Skipped++
			switch {
			case errors.Is(err, ErrEmailTaken), errors.Is(err, ErrPhoneTaken):
				result.Errors = append(result.Errors, u.EmailAddress+": "+err.Error())
			default:
				s.logger.Errorw("bulk import row failed", "email", u.EmailAddress, "err", err)
				result.Errors = append(result.Errors, u.EmailAddress+": create failed")
			}
			continue
		}
		result.Created++
	}
	return result
}
