package prompt

import (
	"strings"

	"github.com/Wilson0406/Self-Improving-LLM-Agent/internal/schema"
)

const formatDirective = `Return your answer as a JSON object. ` +
	`Do not write any commentary—output only the JSON in this format: ` +
	`{"column1": "extractedValue", ...}`

// TaskBlock renders the extraction task: every column name and instruction in
// schema order, followed by the full document text. The text is never
// truncated here; dropping extractable content silently is a correctness bug.
func TaskBlock(s schema.Schema, docText string) string {
	var b strings.Builder
	b.WriteString("Extract the following columns from the PDF text:\n")
	b.WriteString("Columns: ")
	b.WriteString(strings.Join(s.Names(), ", "))
	b.WriteString("\nInstructions: ")
	b.WriteString(strings.Join(s.Instructions(), "; "))
	b.WriteString("\nPDF Content:\n")
	b.WriteString(docText)
	b.WriteString("\n")
	return b.String()
}

// Build composes the full extraction request. When activeInstructions is
// non-empty the stored instruction set is layered above the task block;
// otherwise the default format directive closes the prompt.
func Build(s schema.Schema, docText, activeInstructions string) string {
	if activeInstructions != "" {
		return activeInstructions + "\n\nCurrent Task:\n" + TaskBlock(s, docText)
	}
	return TaskBlock(s, docText) + formatDirective
}

// Clip caps document text at max bytes when a cap is configured. max <= 0
// disables clipping. Exposed as a tunable; the default behavior embeds the
// entire document in every request.
func Clip(docText string, max int) string {
	if max <= 0 || len(docText) <= max {
		return docText
	}
	return docText[:max]
}
