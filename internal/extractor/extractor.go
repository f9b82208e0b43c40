package extractor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Wilson0406/Self-Improving-LLM-Agent/internal/anthropic"
)

// Extractor is the adapter around the language-model extraction capability.
// It never caches: every call is a live request, and failures propagate to
// the caller so a version can be marked Error instead of silently emptied.
type Extractor struct {
	llm    *anthropic.Client
	logger *slog.Logger
}

func New(llm *anthropic.Client, logger *slog.Logger) *Extractor {
	return &Extractor{llm: llm, logger: logger}
}

// Extract sends the fully composed request and returns the raw model output,
// expected (but not guaranteed) to be a JSON object keyed by column name.
func (e *Extractor) Extract(ctx context.Context, request string) (string, error) {
	messages := []anthropic.Message{
		{Role: "user", Content: request},
	}

	e.logger.Info("running extraction", "request_len", len(request))

	raw, err := e.llm.Complete(ctx, systemPrompt, messages, 4096)
	if err != nil {
		return "", fmt.Errorf("llm extraction: %w", err)
	}

	e.logger.Info("extraction complete", "output_len", len(raw))
	return raw, nil
}
