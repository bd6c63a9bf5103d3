package service

import (
	"context"
	"sync"
	"time"

	"github.com/devtoolkit/auth-service/internal/mailer"
	"github.com/devtoolkit/auth-service/internal/repository"
)

// In-memory repository fakes for service tests. They mirror the conditional
// semantics of the SQL implementations: single-use token consumption, the
// lazy usage rollover and the lockout counter.

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*repository.User
	// now lets tests control the clock used by the rollover.
	now func() time.Time
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*repository.User), now: time.Now}
}

func (r *fakeUserRepo) add(u *repository.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *u
	r.users[u.ID] = &cp
}

func (r *fakeUserRepo) get(id string) *repository.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		cp := *u
		return &cp
	}
	return nil
}

func (r *fakeUserRepo) Create(_ context.Context, user *repository.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == user.Email {
			return repository.ErrDuplicateEmail
		}
	}
	cp := *user
	r.users[user.ID] = &cp
	return nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, id string) (*repository.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*repository.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeUserRepo) List(_ context.Context, limit, offset int) ([]*repository.User, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*repository.User, 0, len(r.users))
	for _, u := range r.users {
		cp := *u
		out = append(out, &cp)
	}
	return out, int64(len(r.users)), nil
}

func (r *fakeUserRepo) RecordFailedLogin(_ context.Context, id string, threshold int, lockedUntil time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return 0, repository.ErrNotFound
	}
	u.FailedLoginAttempts++
	if u.FailedLoginAttempts >= threshold {
		lu := lockedUntil
		u.LockedUntil = &lu
	}
	return u.FailedLoginAttempts, nil
}

func (r *fakeUserRepo) RecordLogin(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	now := r.now()
	u.FailedLoginAttempts = 0
	u.LockedUntil = nil
	u.LastLogin = &now
	u.LastActivity = &now
	return nil
}

func (r *fakeUserRepo) SetVerificationToken(_ context.Context, id, tok string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.VerificationToken = &tok
	u.VerificationTokenExpiresAt = &expiresAt
	return nil
}

func (r *fakeUserRepo) ConsumeVerificationToken(_ context.Context, tok string) (*repository.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.VerificationToken != nil && *u.VerificationToken == tok &&
			u.VerificationTokenExpiresAt != nil && u.VerificationTokenExpiresAt.After(r.now()) {
			u.IsVerified = true
			u.VerificationToken = nil
			u.VerificationTokenExpiresAt = nil
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeUserRepo) SetResetToken(_ context.Context, id, tok string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.ResetToken = &tok
	u.ResetTokenExpiresAt = &expiresAt
	return nil
}

func (r *fakeUserRepo) ConsumeResetToken(_ context.Context, tok, newHash string) (*repository.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.ResetToken != nil && *u.ResetToken == tok &&
			u.ResetTokenExpiresAt != nil && u.ResetTokenExpiresAt.After(r.now()) {
			now := r.now()
			u.PasswordHash = newHash
			u.ResetToken = nil
			u.ResetTokenExpiresAt = nil
			u.LastPasswordChange = &now
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeUserRepo) RollUsageWindow(_ context.Context, id string) (*repository.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	now := r.now()
	today := now.Truncate(24 * time.Hour)
	last := u.LastResetDate.Truncate(24 * time.Hour)
	if last.Before(today) {
		u.DailyCount = 0
		if last.Year() != now.Year() || last.Month() != now.Month() {
			u.MonthlyCount = 0
		}
		u.LastResetDate = today
	}
	cp := *u
	return &cp, nil
}

func (r *fakeUserRepo) IncrementUsage(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	now := r.now()
	u.DailyCount++
	u.MonthlyCount++
	u.TotalCount++
	u.LastUsageDate = &now
	u.LastActivity = &now
	return nil
}

func (r *fakeUserRepo) UpdateProfile(_ context.Context, id string, patch repository.ProfilePatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	if patch.FirstName != nil {
		u.FirstName = *patch.FirstName
	}
	if patch.LastName != nil {
		u.LastName = *patch.LastName
	}
	return nil
}

func (r *fakeUserRepo) SetSuspended(_ context.Context, id string, suspended bool, reason *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.IsSuspended = suspended
	u.SuspensionReason = reason
	return nil
}

func (r *fakeUserRepo) SetQuota(_ context.Context, id string, daily, monthly int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.DailyLimit = daily
	u.MonthlyLimit = monthly
	return nil
}

func (r *fakeUserRepo) SetRole(_ context.Context, id string, role repository.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.Role = role
	return nil
}

type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*repository.Session
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[string]*repository.Session)}
}

func (r *fakeSessionRepo) Create(_ context.Context, session *repository.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *session
	r.sessions[session.ID] = &cp
	return nil
}

func (r *fakeSessionRepo) GetByID(_ context.Context, id string) (*repository.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *fakeSessionRepo) ListByUser(_ context.Context, userID string) ([]*repository.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*repository.Session
	for _, s := range r.sessions {
		if s.UserID == userID {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeSessionRepo) Deactivate(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return repository.ErrNotFound
	}
	s.IsActive = false
	return nil
}

func (r *fakeSessionRepo) DeactivateAllForUser(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.UserID == userID {
			s.IsActive = false
		}
	}
	return nil
}

func (r *fakeSessionRepo) DeleteExpired(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	now := time.Now()
	for id, s := range r.sessions {
		if s.ExpiresAt.Before(now) {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

type fakeActivityRepo struct {
	mu      sync.Mutex
	entries []*repository.ActivityEntry
}

func (r *fakeActivityRepo) Insert(_ context.Context, entry *repository.ActivityEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *entry
	r.entries = append(r.entries, &cp)
	return nil
}

func (r *fakeActivityRepo) ListByUser(_ context.Context, userID string, limit int) ([]*repository.ActivityEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*repository.ActivityEntry
	for _, e := range r.entries {
		if e.UserID == userID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeActivityRepo) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kept []*repository.ActivityEntry
	var n int64
	for _, e := range r.entries {
		if e.CreatedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	r.entries = kept
	return n, nil
}

// actions returns the recorded action names for a user, in insertion order.
func (r *fakeActivityRepo) actions(userID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.entries {
		if e.UserID == userID {
			out = append(out, e.Action)
		}
	}
	return out
}

type fakeSuggestionRepo struct {
	mu          sync.Mutex
	suggestions map[string]*repository.Suggestion
}

func newFakeSuggestionRepo() *fakeSuggestionRepo {
	return &fakeSuggestionRepo{suggestions: make(map[string]*repository.Suggestion)}
}

func (r *fakeSuggestionRepo) Create(_ context.Context, s *repository.Suggestion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.suggestions[s.ID] = &cp
	return nil
}

func (r *fakeSuggestionRepo) GetByID(_ context.Context, id string) (*repository.Suggestion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.suggestions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *fakeSuggestionRepo) List(_ context.Context, status *repository.SuggestionStatus, limit, offset int) ([]*repository.Suggestion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*repository.Suggestion
	for _, s := range r.suggestions {
		if status != nil && s.Status != *status {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeSuggestionRepo) UpdateStatus(_ context.Context, id string, status repository.SuggestionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.suggestions[id]
	if !ok {
		return repository.ErrNotFound
	}
	s.Status = status
	s.UpdatedAt = time.Now()
	return nil
}

func (r *fakeSuggestionRepo) SetResponse(_ context.Context, id, response string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.suggestions[id]
	if !ok {
		return repository.ErrNotFound
	}
	now := time.Now()
	s.AdminResponse = &response
	s.RespondedAt = &now
	s.UpdatedAt = now
	return nil
}

type sentMail struct {
	To   string
	Kind mailer.Kind
	Data map[string]string
}

// recordingDispatcher captures mail sends for assertion. Sends happen on
// background goroutines, so readers must go through the mutex.
type recordingDispatcher struct {
	mu   sync.Mutex
	sent []sentMail
}

func (d *recordingDispatcher) Send(_ context.Context, to string, kind mailer.Kind, data map[string]string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, sentMail{To: to, Kind: kind, Data: data})
	return nil
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sent)
}

func (d *recordingDispatcher) last() (sentMail, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.sent) == 0 {
		return sentMail{}, false
	}
	return d.sent[len(d.sent)-1], true
}

type fakeProvider struct {
	output string
	err    error

	mu      sync.Mutex
	prompts []string
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Complete(_ context.Context, systemPrompt, prompt string) (string, error) {
	p.mu.Lock()
	p.prompts = append(p.prompts, prompt)
	p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	return p.output, nil
}
