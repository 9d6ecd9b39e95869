// Package llm abstracts the chat-completion backends behind the Student and
// Expert agents. Providers are opaque oracles: they return untrusted text
// which the agent layer parses strictly. Every call carries a bounded
// timeout so a stalled backend resolves to the agents' retry/fallback policy
// instead of blocking the event loop.
package llm

import (
	"context"
	"errors"
	"time"
)

// TimeoutLLMCall bounds a single provider call when the caller supplies no
// tighter deadline.
const TimeoutLLMCall = 60 * time.Second

// Domain errors for the llm package.
var (
	ErrUnknownProvider = errors.New("unknown llm provider")
	ErrMissingAPIKey   = errors.New("provider requires an api key")
)

// Provider is the interface all chat-completion backends implement.
type Provider interface {
	// Name returns the provider identifier (e.g. "ollama", "together").
	Name() string
	// Generate sends a completion request and returns the raw response.
	Generate(ctx context.Context, req *Request) (*Response, error)
	// EstimateCost estimates the cost in USD for the given model and token counts.
	EstimateCost(model string, inputTokens, outputTokens int) float64
}

// Request is a chat-completion request.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
	// ForceJSON asks the backend for a JSON-object response where supported.
	ForceJSON bool
}

// Message is one chat message.
type Message struct {
	Role    string // "system", "user", "assistant"
	Content string
}

// Response is a chat-completion response.
type Response struct {
	Content      string
	FinishReason string
	InputTokens  int
	OutputTokens int
	Model        string
}

// callTimeout derives the per-call context: the caller's deadline when one
// is set, TimeoutLLMCall otherwise.
func callTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, TimeoutLLMCall)
}
