// Package llm is the boundary to the external generative-text service. The
// rest of the system treats it as an opaque request/response call: prompt
// in, free text out, typed error on failure. Nothing downstream parses or
// validates the generated text.
package llm

import "context"

// GenerationConfig carries the sampling parameters for one request. The
// analyzer uses fixed low-randomness settings so repeated runs over the same
// metrics stay close.
type GenerationConfig struct {
	Temperature     float32
	TopP            float32
	TopK            float32
	MaxOutputTokens int32
}

// Provider generates a text completion for a prompt.
type Provider interface {
	GenerateResponse(ctx context.Context, prompt string, cfg GenerationConfig) (string, error)
}
