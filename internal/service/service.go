// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes the stores
//
// Services also own the calls to the external collaborators (the LLM, the
// SMS gateway, object storage). Each collaborator is an interface so tests
// can pass a fake, and each call gets an explicit deadline here rather than
// relying on whatever the HTTP client happens to use.
//
// ERRORS:
// Services return apperror values. They never pick HTTP status codes; the
// handler package does that in one place (writeError).
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spanisami/cv-backend/internal/apperror"
	"github.com/spanisami/cv-backend/internal/llm"
)

// DefaultLLMTimeout applies when a service is built with a zero timeout.
const DefaultLLMTimeout = 60 * time.Second

// generation wraps an llm.Generator with a per-call deadline and maps its
// failures onto the error taxonomy:
//
//	deadline exceeded → apperror.UpstreamTimeout (504, retryable)
//	anything else     → apperror.Upstream        (500)
//
// The provider's own error text is logged and carried in AppError.Details;
// whether clients get to see it is decided by the handler.
type generation struct {
	gen     llm.Generator
	timeout time.Duration
	logger  *slog.Logger
}

func newGeneration(gen llm.Generator, timeout time.Duration, logger *slog.Logger) generation {
	if timeout <= 0 {
		timeout = DefaultLLMTimeout
	}
	return generation{gen: gen, timeout: timeout, logger: logger}
}

// generate runs a single-prompt call. failMsg is the client-facing summary
// used when the call fails, e.g. "Failed to build profile".
func (g generation) generate(ctx context.Context, failMsg, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	text, err := g.gen.Generate(ctx, prompt)
	if err != nil {
		return "", g.fail(ctx, failMsg, err, time.Since(start))
	}
	return text, nil
}

func (g generation) chat(ctx context.Context, failMsg string, msgs []llm.Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	text, err := g.gen.Chat(ctx, msgs)
	if err != nil {
		return "", g.fail(ctx, failMsg, err, time.Since(start))
	}
	return text, nil
}

func (g generation) fail(ctx context.Context, failMsg string, err error, took time.Duration) error {
	g.logger.Error("llm call failed",
		slog.String("op", failMsg),
		slog.Duration("duration", took),
		slog.String("error", err.Error()),
	)

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperror.UpstreamTimeout(fmt.Sprintf("%s: the language model timed out", failMsg))
	}
	return apperror.Upstream(failMsg, err)
}
