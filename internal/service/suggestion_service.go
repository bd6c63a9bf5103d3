package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/devtoolkit/auth-service/internal/mailer"
	"github.com/devtoolkit/auth-service/internal/repository"
)

// statusTransitions defines the legal suggestion workflow. Anything not
// listed is rejected with ErrInvalidTransition.
var statusTransitions = map[repository.SuggestionStatus][]repository.SuggestionStatus{
	repository.SuggestionPending:   {repository.SuggestionReviewing, repository.SuggestionApproved, repository.SuggestionRejected},
	repository.SuggestionReviewing: {repository.SuggestionApproved, repository.SuggestionRejected},
	repository.SuggestionApproved:  {repository.SuggestionImplemented},
}

// SuggestionService runs the user-feedback workflow: submission, triage and
// admin responses.
type SuggestionService struct {
	suggestions repository.SuggestionRepository
	users       repository.UserRepository
	activity    *ActivityLogger
	mail        mailer.Dispatcher
	log         zerolog.Logger
}

func NewSuggestionService(
	suggestions repository.SuggestionRepository,
	users repository.UserRepository,
	activity *ActivityLogger,
	mail mailer.Dispatcher,
	log zerolog.Logger,
) *SuggestionService {
	return &SuggestionService{
		suggestions: suggestions,
		users:       users,
		activity:    activity,
		mail:        mail,
		log:         log,
	}
}

// Submit files a new suggestion in pending status.
func (s *SuggestionService) Submit(ctx context.Context, userID, title, message string) (*repository.Suggestion, error) {
	title = strings.TrimSpace(title)
	message = strings.TrimSpace(message)
	if title == "" || message == "" {
		return nil, errors.New("title and message are required")
	}

	now := time.Now()
	suggestion := &repository.Suggestion{
		ID:        uuid.New().String(),
		UserID:    userID,
		Title:     title,
		Message:   message,
		Status:    repository.SuggestionPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.suggestions.Create(ctx, suggestion); err != nil {
		return nil, err
	}

	s.activity.Log(ctx, userID, "suggestion_submitted", repository.CategorySuggestion,
		map[string]string{"suggestion_id": suggestion.ID}, repository.ResultSuccess)

	return suggestion, nil
}

// List returns suggestions, optionally filtered by status.
func (s *SuggestionService) List(ctx context.Context, status *repository.SuggestionStatus, limit, offset int) ([]*repository.Suggestion, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.suggestions.List(ctx, status, limit, offset)
}

// UpdateStatus moves a suggestion through the workflow, enforcing the legal
// transitions.
func (s *SuggestionService) UpdateStatus(ctx context.Context, adminID, id string, next repository.SuggestionStatus) (*repository.Suggestion, error) {
	suggestion, err := s.suggestions.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrSuggestionNotFound
	}
	if err != nil {
		return nil, err
	}

	if !transitionAllowed(suggestion.Status, next) {
		return nil, ErrInvalidTransition
	}

	if err := s.suggestions.UpdateStatus(ctx, id, next); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSuggestionNotFound
		}
		return nil, err
	}
	suggestion.Status = next
	suggestion.UpdatedAt = time.Now()

	s.activity.Log(ctx, suggestion.UserID, "suggestion_status_changed", repository.CategorySuggestion,
		map[string]string{"admin_id": adminID, "suggestion_id": id, "status": string(next)},
		repository.ResultSuccess)

	return suggestion, nil
}

// Respond attaches an admin response and emails the author.
func (s *SuggestionService) Respond(ctx context.Context, adminID, id, response string) (*repository.Suggestion, error) {
	response = strings.TrimSpace(response)
	if response == "" {
		return nil, errors.New("response is required")
	}

	suggestion, err := s.suggestions.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrSuggestionNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := s.suggestions.SetResponse(ctx, id, response); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSuggestionNotFound
		}
		return nil, err
	}
	now := time.Now()
	suggestion.AdminResponse = &response
	suggestion.RespondedAt = &now
	suggestion.UpdatedAt = now

	if author, err := s.users.GetByID(ctx, suggestion.UserID); err == nil {
		s.sendResponseMail(author, suggestion, response)
	} else {
		s.log.Error().Err(err).Str("user_id", suggestion.UserID).Msg("Failed to load suggestion author")
	}

	s.activity.Log(ctx, suggestion.UserID, "suggestion_responded", repository.CategorySuggestion,
		map[string]string{"admin_id": adminID, "suggestion_id": id}, repository.ResultSuccess)

	return suggestion, nil
}

func (s *SuggestionService) sendResponseMail(author *repository.User, suggestion *repository.Suggestion, response string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), mailTimeout)
		defer cancel()

		err := s.mail.Send(ctx, author.Email, mailer.KindAdminResponse, map[string]string{
			"name":     displayName(author),
			"title":    suggestion.Title,
			"response": response,
		})
		if err != nil {
			s.log.Error().Err(err).Str("suggestion_id", suggestion.ID).Msg("Mail delivery failed")
		}
	}()
}

func transitionAllowed(from, to repository.SuggestionStatus) bool {
	for _, allowed := range statusTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
