package revision

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Wilson0406/Self-Improving-LLM-Agent/internal/anthropic"
)

const maxTitleLen = 200

const systemPrompt = `You are an assistant that rewrites or enhances extraction instructions ` +
	`to directly address user corrections. Given the original extraction output and user feedback, ` +
	`generate a revised instruction set for the extraction agent that incorporates the feedback.`

const contextTemplate = `Previous Extraction JSON:
%s
User Feedback:
%s
Original Prompt:
%s
Based on this, generate a new instruction set for the extraction agent that incorporates the feedback.
Output ONLY instruction text. Do not include document content or specific extracted values.
Respond with a JSON object of this exact shape: {"Prompt Title": "short title", "Prompt": "the full instructions"}.`

// RevisedInstructions is a replacement instruction set produced from
// feedback. It is never a patch on the previous prompt; callers must re-run
// extraction with it. The shape invariant always holds: Title and
// Instructions are non-empty even when the model reply was unparseable.
type RevisedInstructions struct {
	Title        string
	Instructions string
	Parsed       bool   // false when the fallback wrapper was applied
	Raw          string // verbatim model reply
}

// Reviser is the adapter around the language-model revision capability.
type Reviser struct {
	llm    *anthropic.Client
	logger *slog.Logger
}

func New(llm *anthropic.Client, logger *slog.Logger) *Reviser {
	return &Reviser{llm: llm, logger: logger}
}

// Revise asks the model for an improved instruction set given the prior
// extraction, the user's feedback, and the prompt that produced the prior
// extraction.
func (r *Reviser) Revise(ctx context.Context, priorExtraction, feedback, priorPrompt string) (RevisedInstructions, error) {
	request := fmt.Sprintf(contextTemplate, priorExtraction, feedback, priorPrompt)

	messages := []anthropic.Message{
		{Role: "user", Content: request},
	}

	r.logger.Info("requesting instruction revision", "feedback_len", len(feedback))

	raw, err := r.llm.Complete(ctx, systemPrompt, messages, 2048)
	if err != nil {
		return RevisedInstructions{}, fmt.Errorf("llm revision: %w", err)
	}

	rev := parseReply(raw)
	if !rev.Parsed {
		r.logger.Warn("revision reply was not structured, wrapped verbatim", "raw_len", len(raw))
	}
	r.logger.Info("revision complete", "title", rev.Title, "parsed", rev.Parsed)
	return rev, nil
}

type structuredReply struct {
	Title  string `json:"Prompt Title"`
	Prompt string `json:"Prompt"`
}

// parseReply attempts a structured parse of the model output. On any failure
// or missing key the raw text is wrapped verbatim under a default title so
// callers never see malformed output.
func parseReply(raw string) RevisedInstructions {
	cleaned := stripFences(raw)

	var reply structuredReply
	if err := json.Unmarshal([]byte(cleaned), &reply); err == nil &&
		strings.TrimSpace(reply.Title) != "" && strings.TrimSpace(reply.Prompt) != "" {
		return RevisedInstructions{
			Title:        clampTitle(strings.TrimSpace(reply.Title)),
			Instructions: strings.TrimSpace(reply.Prompt),
			Parsed:       true,
			Raw:          raw,
		}
	}

	return RevisedInstructions{
		Title:        "Improved Prompt",
		Instructions: strings.TrimSpace(raw),
		Parsed:       false,
		Raw:          raw,
	}
}

func clampTitle(title string) string {
	if len(title) <= maxTitleLen {
		return title
	}
	return title[:maxTitleLen]
}

func stripFences(raw string) string {
	out := strings.TrimSpace(raw)
	if !strings.HasPrefix(out, "```") {
		return out
	}
	out = strings.TrimPrefix(out, "```json")
	out = strings.TrimPrefix(out, "```")
	out = strings.TrimSuffix(strings.TrimSpace(out), "```")
	return strings.TrimSpace(out)
}
