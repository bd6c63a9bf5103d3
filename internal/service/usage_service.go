package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/devtoolkit/auth-service/internal/repository"
)

// Quota denial reasons, returned verbatim to the client.
const (
	ReasonUserNotFound  = "User not found"
	ReasonInactive      = "Account is inactive"
	ReasonSuspended     = "Account is suspended"
	ReasonDailyExceeded = "Daily usage limit exceeded"
	ReasonMonthExceeded = "Monthly usage limit exceeded"
)

// UsageDecision is the outcome of a quota check. Reason is set only when
// CanUse is false.
type UsageDecision struct {
	CanUse         bool   `json:"can_use"`
	Reason         string `json:"reason,omitempty"`
	DailyUsed      int    `json:"daily_used"`
	DailyLimit     int    `json:"daily_limit"`
	MonthlyUsed    int    `json:"monthly_used"`
	MonthlyLimit   int    `json:"monthly_limit"`
	DailyRemaining int    `json:"daily_remaining"`
}

// UsageService enforces the daily and monthly AI usage quotas. Windows reset
// lazily: the counters roll on the first check after midnight rather than on
// a schedule.
type UsageService struct {
	users    repository.UserRepository
	activity *ActivityLogger
	log      zerolog.Logger
}

func NewUsageService(users repository.UserRepository, activity *ActivityLogger, log zerolog.Logger) *UsageService {
	return &UsageService{users: users, activity: activity, log: log}
}

// CanUseAI reports whether the user may run another AI tool call, rolling the
// usage window first when it is stale. Account-state checks run before the
// rollover so a denied account never has its counters touched. Storage errors
// fail closed.
func (s *UsageService) CanUseAI(ctx context.Context, userID string) (*UsageDecision, error) {
	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return &UsageDecision{CanUse: false, Reason: ReasonUserNotFound}, nil
	}
	if err != nil {
		return nil, err
	}

	if !user.IsActive || user.IsSuspended {
		decision := decisionFor(user)
		if !user.IsActive {
			decision.Reason = ReasonInactive
		} else {
			decision.Reason = ReasonSuspended
		}
		return decision, nil
	}

	user, err = s.users.RollUsageWindow(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return &UsageDecision{CanUse: false, Reason: ReasonUserNotFound}, nil
	}
	if err != nil {
		return nil, err
	}

	decision := decisionFor(user)
	switch {
	case user.DailyCount >= user.DailyLimit:
		decision.Reason = ReasonDailyExceeded
	case user.MonthlyCount >= user.MonthlyLimit:
		decision.Reason = ReasonMonthExceeded
	default:
		decision.CanUse = true
	}

	return decision, nil
}

func decisionFor(user *repository.User) *UsageDecision {
	return &UsageDecision{
		DailyUsed:      user.DailyCount,
		DailyLimit:     user.DailyLimit,
		MonthlyUsed:    user.MonthlyCount,
		MonthlyLimit:   user.MonthlyLimit,
		DailyRemaining: max(user.DailyLimit-user.DailyCount, 0),
	}
}

// UpdateUsage increments the usage counters after a tool call and records the
// call in the activity log. Counters advance regardless of whether the tool
// call itself succeeded; the attempt consumed the resource.
func (s *UsageService) UpdateUsage(ctx context.Context, userID, toolName string, success bool) error {
	if err := s.users.IncrementUsage(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	result := repository.ResultSuccess
	if !success {
		result = repository.ResultFailure
	}
	s.activity.Log(ctx, userID, "tool_used", repository.CategoryToolUsage,
		map[string]string{"tool": toolName}, result)

	return nil
}
