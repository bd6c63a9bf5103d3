package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devtoolkit/auth-service/internal/repository"
)

func newUsageFixture() (*UsageService, *fakeUserRepo, *fakeActivityRepo) {
	users := newFakeUserRepo()
	activity := &fakeActivityRepo{}
	logger := zerolog.Nop()
	return NewUsageService(users, NewActivityLogger(activity, logger), logger), users, activity
}

func quotaUser(daily, monthly int) *repository.User {
	return &repository.User{
		ID:            "u1",
		Email:         "ada@example.com",
		Role:          repository.RoleUser,
		IsVerified:    true,
		IsActive:      true,
		DailyLimit:    daily,
		MonthlyLimit:  monthly,
		LastResetDate: time.Now(),
	}
}

func TestCanUseAI(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(u *repository.User)
		wantCanUse bool
		wantReason string
	}{
		{
			name:       "under both limits",
			mutate:     func(u *repository.User) { u.DailyCount = 10; u.MonthlyCount = 100 },
			wantCanUse: true,
		},
		{
			name:       "at daily limit",
			mutate:     func(u *repository.User) { u.DailyCount = 50 },
			wantReason: ReasonDailyExceeded,
		},
		{
			name:       "at monthly limit",
			mutate:     func(u *repository.User) { u.MonthlyCount = 1000 },
			wantReason: ReasonMonthExceeded,
		},
		{
			name:       "inactive account",
			mutate:     func(u *repository.User) { u.IsActive = false },
			wantReason: ReasonInactive,
		},
		{
			name:       "suspended account",
			mutate:     func(u *repository.User) { u.IsSuspended = true },
			wantReason: ReasonSuspended,
		},
		{
			name: "daily limit beats monthly in the report",
			mutate: func(u *repository.User) {
				u.DailyCount = 50
				u.MonthlyCount = 1000
			},
			wantReason: ReasonDailyExceeded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, users, _ := newUsageFixture()
			u := quotaUser(50, 1000)
			tt.mutate(u)
			users.add(u)

			decision, err := svc.CanUseAI(context.Background(), "u1")
			require.NoError(t, err)
			assert.Equal(t, tt.wantCanUse, decision.CanUse)
			assert.Equal(t, tt.wantReason, decision.Reason)
		})
	}
}

func TestCanUseAISuspendedSkipsRollover(t *testing.T) {
	svc, users, _ := newUsageFixture()

	yesterday := time.Now().AddDate(0, 0, -1)
	u := quotaUser(50, 1000)
	u.IsSuspended = true
	u.DailyCount = 30
	u.LastResetDate = yesterday
	users.add(u)

	decision, err := svc.CanUseAI(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, decision.CanUse)
	assert.Equal(t, ReasonSuspended, decision.Reason)

	// The denial happens before the window roll, so the stale counters and
	// reset date are left exactly as they were.
	stored := users.get("u1")
	assert.Equal(t, 30, stored.DailyCount)
	assert.True(t, stored.LastResetDate.Equal(yesterday))
}

func TestCanUseAIUnknownUser(t *testing.T) {
	svc, _, _ := newUsageFixture()

	// Fails closed: no storage row means no tool calls.
	decision, err := svc.CanUseAI(context.Background(), "ghost")
	require.NoError(t, err)
	assert.False(t, decision.CanUse)
	assert.Equal(t, ReasonUserNotFound, decision.Reason)
}

func TestCanUseAIRollsDailyWindow(t *testing.T) {
	svc, users, _ := newUsageFixture()

	u := quotaUser(50, 1000)
	u.DailyCount = 50
	u.MonthlyCount = 200
	u.LastResetDate = time.Now().AddDate(0, 0, -1)
	users.add(u)

	decision, err := svc.CanUseAI(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, decision.CanUse)
	assert.Zero(t, decision.DailyUsed)
	// Same month: the monthly counter must survive the daily reset.
	assert.Equal(t, 200, decision.MonthlyUsed)
	assert.Equal(t, 50, decision.DailyRemaining)
}

func TestCanUseAIRollsMonthlyWindow(t *testing.T) {
	svc, users, _ := newUsageFixture()

	u := quotaUser(50, 1000)
	u.DailyCount = 50
	u.MonthlyCount = 1000
	u.LastResetDate = time.Now().AddDate(0, -1, 0)
	users.add(u)

	decision, err := svc.CanUseAI(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, decision.CanUse)
	assert.Zero(t, decision.DailyUsed)
	assert.Zero(t, decision.MonthlyUsed)
}

func TestRolloverIdempotent(t *testing.T) {
	svc, users, _ := newUsageFixture()

	u := quotaUser(50, 1000)
	u.DailyCount = 30
	u.LastResetDate = time.Now().AddDate(0, 0, -1)
	users.add(u)

	_, err := svc.CanUseAI(context.Background(), "u1")
	require.NoError(t, err)

	// Usage accrued after the first reset of the day must not be wiped by
	// later checks.
	require.NoError(t, svc.UpdateUsage(context.Background(), "u1", ToolCode, true))
	require.NoError(t, svc.UpdateUsage(context.Background(), "u1", ToolCode, true))

	decision, err := svc.CanUseAI(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, decision.DailyUsed)
}

func TestUpdateUsage(t *testing.T) {
	svc, users, activity := newUsageFixture()
	users.add(quotaUser(50, 1000))

	require.NoError(t, svc.UpdateUsage(context.Background(), "u1", ToolReadme, true))
	// Failed tool calls are charged too.
	require.NoError(t, svc.UpdateUsage(context.Background(), "u1", ToolReadme, false))

	u := users.get("u1")
	assert.Equal(t, 2, u.DailyCount)
	assert.Equal(t, 2, u.MonthlyCount)
	assert.Equal(t, 2, u.TotalCount)
	require.NotNil(t, u.LastUsageDate)

	actions := activity.actions("u1")
	assert.Len(t, actions, 2)
	assert.Equal(t, "tool_used", actions[0])
}

func TestUpdateUsageUnknownUser(t *testing.T) {
	svc, _, _ := newUsageFixture()

	err := svc.UpdateUsage(context.Background(), "ghost", ToolCode, true)
	assert.ErrorIs(t, err, ErrUserNotFound)
}
