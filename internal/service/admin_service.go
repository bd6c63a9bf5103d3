package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/devtoolkit/auth-service/internal/repository"
)

// AdminService covers the operator surface: suspensions, quota overrides,
// role changes and user listing. Every mutation is attributed to the acting
// admin in the target user's activity log.
type AdminService struct {
	users    repository.UserRepository
	sessions repository.SessionRepository
	activity *ActivityLogger
	log      zerolog.Logger
}

func NewAdminService(
	users repository.UserRepository,
	sessions repository.SessionRepository,
	activity *ActivityLogger,
	log zerolog.Logger,
) *AdminService {
	return &AdminService{users: users, sessions: sessions, activity: activity, log: log}
}

// Suspend marks the account suspended and kills its device sessions. The
// bearer tokens stay valid cryptographically; the suspension check at login
// and in the quota gate is what locks the user out.
func (s *AdminService) Suspend(ctx context.Context, adminID, userID, reason string) error {
	var reasonPtr *string
	if reason != "" {
		reasonPtr = &reason
	}

	if err := s.users.SetSuspended(ctx, userID, true, reasonPtr); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	if err := s.sessions.DeactivateAllForUser(ctx, userID); err != nil {
		s.log.Error().Err(err).Str("user_id", userID).Msg("Failed to deactivate sessions")
	}

	s.activity.Log(ctx, userID, "account_suspended", repository.CategoryAdmin,
		map[string]string{"admin_id": adminID, "reason": reason}, repository.ResultSuccess)

	s.log.Warn().Str("user_id", userID).Str("admin_id", adminID).Msg("Account suspended")
	return nil
}

// Reinstate lifts a suspension and clears the stored reason.
func (s *AdminService) Reinstate(ctx context.Context, adminID, userID string) error {
	if err := s.users.SetSuspended(ctx, userID, false, nil); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	s.activity.Log(ctx, userID, "account_reinstated", repository.CategoryAdmin,
		map[string]string{"admin_id": adminID}, repository.ResultSuccess)

	s.log.Info().Str("user_id", userID).Str("admin_id", adminID).Msg("Account reinstated")
	return nil
}

// SetQuota overrides the per-user daily and monthly limits. Current counters
// are left untouched, so a raised limit takes effect immediately and a
// lowered one may leave the user over quota until the next rollover.
func (s *AdminService) SetQuota(ctx context.Context, adminID, userID string, daily, monthly int) error {
	if daily <= 0 || monthly <= 0 {
		return fmt.Errorf("quota limits must be positive, got daily=%d monthly=%d", daily, monthly)
	}

	if err := s.users.SetQuota(ctx, userID, daily, monthly); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	s.activity.Log(ctx, userID, "quota_updated", repository.CategoryAdmin,
		map[string]string{
			"admin_id": adminID,
			"daily":    fmt.Sprintf("%d", daily),
			"monthly":  fmt.Sprintf("%d", monthly),
		}, repository.ResultSuccess)

	return nil
}

// SetRole changes the target's role.
func (s *AdminService) SetRole(ctx context.Context, adminID, userID string, role repository.Role) error {
	switch role {
	case repository.RoleUser, repository.RoleModerator, repository.RoleAdmin:
	default:
		return fmt.Errorf("unknown role %q", role)
	}

	if err := s.users.SetRole(ctx, userID, role); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	s.activity.Log(ctx, userID, "role_changed", repository.CategoryAdmin,
		map[string]string{"admin_id": adminID, "role": string(role)}, repository.ResultSuccess)

	s.log.Info().Str("user_id", userID).Str("role", string(role)).Msg("Role changed")
	return nil
}

// ListUsers pages through all users, newest first.
func (s *AdminService) ListUsers(ctx context.Context, limit, offset int) ([]*repository.User, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.users.List(ctx, limit, offset)
}
