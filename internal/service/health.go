package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/spanisami/cv-backend/internal/llm"
)

// HealthService checks that the LLM credentials work end to end.
type HealthService struct {
	gen generation
}

func NewHealthService(gen llm.Generator, llmTimeout time.Duration, logger *slog.Logger) *HealthService {
	return &HealthService{gen: newGeneration(gen, llmTimeout, logger)}
}

// Greet asks the model for a one-sentence greeting.
func (s *HealthService) Greet(ctx context.Context) (string, error) {
	return s.gen.generate(ctx, "OpenAI test failed", llm.GreetingPrompt)
}
