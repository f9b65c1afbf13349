// Package extraction turns a voice-agent transcript into a structured booking
// intent using an LLM.
package extraction

import "context"

// Prompt is a single-turn completion request.
type Prompt struct {
	System      string
	User        string
	MaxTokens   int32
	Temperature float32
}

// Completer returns the model's text reply.
type Completer interface {
	Complete(ctx context.Context, p Prompt) (string, error)
}
