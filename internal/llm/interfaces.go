// Package llm provides the model-tier collaborator for intent
// classification: a TextGenerator interface, an Ollama-backed
// implementation with circuit breaker protection, strict JSON-only prompt
// templates, and tolerant response parsing.
package llm

import "context"

// TextGenerator is the interface for LLM text completion. The
// classification prompt uses single-string completion style (not chat).
type TextGenerator interface {
	Complete(ctx context.Context, prompt string) (string, error)
	GetModel() string
}
