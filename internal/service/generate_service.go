package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/devtoolkit/auth-service/internal/ai"
)

// Tool names accepted by Generate.
const (
	ToolCode   = "code"
	ToolReadme = "readme"
	ToolCommit = "commit"
)

var systemPrompts = map[string]string{
	ToolCode:   "You are a senior software engineer. Generate clean, idiomatic code for the user's request. Return only the code with brief comments where helpful.",
	ToolReadme: "You are a technical writer. Generate a well-structured README in Markdown for the project the user describes.",
	ToolCommit: "You are an experienced developer. Write a concise conventional commit message for the change the user describes. Return only the message.",
}

// QuotaError carries the denial reason from the usage gate so the transport
// layer can surface it with a 429.
type QuotaError struct {
	Reason string
}

func (e *QuotaError) Error() string { return e.Reason }

func (e *QuotaError) Unwrap() error { return ErrQuotaExceeded }

// GenerateService runs AI tool calls behind the quota gate. Usage counters
// advance even when the provider call fails.
type GenerateService struct {
	usage    *UsageService
	provider ai.Provider
	log      zerolog.Logger
}

func NewGenerateService(usage *UsageService, provider ai.Provider, log zerolog.Logger) *GenerateService {
	return &GenerateService{usage: usage, provider: provider, log: log}
}

// Generate checks the quota, runs the named tool against the provider and
// charges the call to the user.
func (s *GenerateService) Generate(ctx context.Context, userID, tool, prompt string) (string, error) {
	system, ok := systemPrompts[tool]
	if !ok {
		return "", ErrUnknownTool
	}

	decision, err := s.usage.CanUseAI(ctx, userID)
	if err != nil {
		return "", err
	}
	if !decision.CanUse {
		return "", &QuotaError{Reason: decision.Reason}
	}

	output, genErr := s.provider.Complete(ctx, system, prompt)

	if err := s.usage.UpdateUsage(ctx, userID, tool, genErr == nil); err != nil {
		s.log.Error().Err(err).Str("user_id", userID).Msg("Failed to record usage")
	}

	if genErr != nil {
		return "", fmt.Errorf("%s generation failed: %w", tool, genErr)
	}
	return output, nil
}
