package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Options configure provider resolution.
type Options struct {
	// APIKey authenticates against hosted providers. Ignored for ollama.
	APIKey string
	// OllamaBaseURL overrides the local Ollama endpoint.
	OllamaBaseURL string
	// RequestsPerSecond throttles outbound calls when > 0.
	RequestsPerSecond float64
}

// New resolves a provider name to a Provider. Hosted providers require an
// API key. When opts.RequestsPerSecond is set the provider is wrapped with a
// shared rate limiter.
func New(name string, opts Options) (Provider, error) {
	var p Provider
	switch name {
	case "ollama":
		p = NewOllamaProvider(opts.OllamaBaseURL)
	case "anthropic":
		if opts.APIKey == "" {
			return nil, fmt.Errorf("%w: anthropic", ErrMissingAPIKey)
		}
		p = NewAnthropicProvider(opts.APIKey)
	case "openai":
		if opts.APIKey == "" {
			return nil, fmt.Errorf("%w: openai", ErrMissingAPIKey)
		}
		p = NewOpenAIProvider(opts.APIKey)
	case "together":
		if opts.APIKey == "" {
			return nil, fmt.Errorf("%w: together", ErrMissingAPIKey)
		}
		p = NewTogetherProvider(opts.APIKey)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}

	if opts.RequestsPerSecond > 0 {
		p = RateLimited(p, rate.Limit(opts.RequestsPerSecond))
	}
	return p, nil
}

// rateLimitedProvider throttles Generate calls through a token bucket.
type rateLimitedProvider struct {
	Provider
	limiter *rate.Limiter
}

// RateLimited wraps a provider so Generate blocks until the limiter admits
// the call. Burst of 1 keeps calls evenly spaced.
func RateLimited(p Provider, limit rate.Limit) Provider {
	return &rateLimitedProvider{
		Provider: p,
		limiter:  rate.NewLimiter(limit, 1),
	}
}

func (p *rateLimitedProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}
	return p.Provider.Generate(ctx, req)
}
