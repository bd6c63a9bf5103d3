// Package ai wraps the third-party text-generation HTTP endpoint the tool
// catalogue calls. The endpoint is an opaque request/response dependency; the
// interesting logic (quota gating, usage accounting) lives in the service
// layer.
package ai

import "context"

// Provider produces a completion for a prompt. Implementations must honor
// ctx cancellation and bound their own request time.
type Provider interface {
	Name() string
	Complete(ctx context.Context, systemPrompt, prompt string) (string, error)
}
