package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devtoolkit/auth-service/internal/mailer"
	"github.com/devtoolkit/auth-service/internal/repository"
)

type suggestionFixture struct {
	svc   *SuggestionService
	repo  *fakeSuggestionRepo
	users *fakeUserRepo
	mail  *recordingDispatcher
}

func newSuggestionFixture() *suggestionFixture {
	repo := newFakeSuggestionRepo()
	users := newFakeUserRepo()
	mail := &recordingDispatcher{}
	logger := zerolog.Nop()

	users.add(&repository.User{ID: "u1", Email: "ada@example.com", FirstName: "Ada"})

	svc := NewSuggestionService(repo, users, NewActivityLogger(&fakeActivityRepo{}, logger), mail, logger)
	return &suggestionFixture{svc: svc, repo: repo, users: users, mail: mail}
}

func TestSubmitSuggestion(t *testing.T) {
	f := newSuggestionFixture()

	s, err := f.svc.Submit(context.Background(), "u1", "  Dark mode  ", "Please add a dark theme.")
	require.NoError(t, err)
	assert.Equal(t, "Dark mode", s.Title)
	assert.Equal(t, repository.SuggestionPending, s.Status)
	assert.Nil(t, s.AdminResponse)

	_, err = f.svc.Submit(context.Background(), "u1", "", "body only")
	assert.Error(t, err)
	_, err = f.svc.Submit(context.Background(), "u1", "title only", "   ")
	assert.Error(t, err)
}

func TestSuggestionStatusTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    repository.SuggestionStatus
		to      repository.SuggestionStatus
		allowed bool
	}{
		{"pending to reviewing", repository.SuggestionPending, repository.SuggestionReviewing, true},
		{"pending to approved", repository.SuggestionPending, repository.SuggestionApproved, true},
		{"pending to rejected", repository.SuggestionPending, repository.SuggestionRejected, true},
		{"reviewing to approved", repository.SuggestionReviewing, repository.SuggestionApproved, true},
		{"reviewing to rejected", repository.SuggestionReviewing, repository.SuggestionRejected, true},
		{"approved to implemented", repository.SuggestionApproved, repository.SuggestionImplemented, true},
		{"pending to implemented", repository.SuggestionPending, repository.SuggestionImplemented, false},
		{"rejected to approved", repository.SuggestionRejected, repository.SuggestionApproved, false},
		{"implemented to pending", repository.SuggestionImplemented, repository.SuggestionPending, false},
		{"reviewing back to pending", repository.SuggestionReviewing, repository.SuggestionPending, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSuggestionFixture()
			s, err := f.svc.Submit(context.Background(), "u1", "Dark mode", "Please add a dark theme.")
			require.NoError(t, err)
			require.NoError(t, f.repo.UpdateStatus(context.Background(), s.ID, tt.from))

			updated, err := f.svc.UpdateStatus(context.Background(), "admin1", s.ID, tt.to)
			if tt.allowed {
				require.NoError(t, err)
				assert.Equal(t, tt.to, updated.Status)
			} else {
				assert.ErrorIs(t, err, ErrInvalidTransition)
			}
		})
	}
}

func TestUpdateStatusUnknownSuggestion(t *testing.T) {
	f := newSuggestionFixture()

	_, err := f.svc.UpdateStatus(context.Background(), "admin1", "nope", repository.SuggestionApproved)
	assert.ErrorIs(t, err, ErrSuggestionNotFound)
}

func TestRespondNotifiesAuthor(t *testing.T) {
	f := newSuggestionFixture()
	ctx := context.Background()

	s, err := f.svc.Submit(ctx, "u1", "Dark mode", "Please add a dark theme.")
	require.NoError(t, err)

	responded, err := f.svc.Respond(ctx, "admin1", s.ID, "Shipped in v2.3!")
	require.NoError(t, err)
	require.NotNil(t, responded.AdminResponse)
	assert.Equal(t, "Shipped in v2.3!", *responded.AdminResponse)
	require.NotNil(t, responded.RespondedAt)

	require.Eventually(t, func() bool { return f.mail.count() == 1 }, time.Second, 10*time.Millisecond)
	sent, _ := f.mail.last()
	assert.Equal(t, mailer.KindAdminResponse, sent.Kind)
	assert.Equal(t, "ada@example.com", sent.To)
	assert.Equal(t, "Dark mode", sent.Data["title"])
}

func TestListSuggestionsByStatus(t *testing.T) {
	f := newSuggestionFixture()
	ctx := context.Background()

	a, err := f.svc.Submit(ctx, "u1", "First", "one")
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, "u1", "Second", "two")
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(ctx, "admin1", a.ID, repository.SuggestionApproved)
	require.NoError(t, err)

	approved := repository.SuggestionApproved
	got, err := f.svc.List(ctx, &approved, 50, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "First", got[0].Title)

	all, err := f.svc.List(ctx, nil, 50, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
