package llm

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/trace"

	wardenotel "github.com/dativo-io/warden/internal/otel"
)

var tracer = wardenotel.Tracer("github.com/dativo-io/warden/internal/llm")

// OpenAIProvider implements Provider for OpenAI and OpenAI-compatible
// endpoints (Together, vLLM, ...). The provider name reflects the endpoint
// so costs and spans can be told apart.
type OpenAIProvider struct {
	client *openai.Client
	name   string
	prices map[string]pricing
}

type pricing struct {
	input  float64
	output float64
}

// openaiPrices are USD per 1K tokens (approximate, mid 2026).
var openaiPrices = map[string]pricing{
	"gpt-4o":      {input: 0.0025, output: 0.01},
	"gpt-4o-mini": {input: 0.00015, output: 0.0006},
}

// togetherPrices are USD per 1K tokens for the Together-hosted models the
// Student and Expert default to.
var togetherPrices = map[string]pricing{
	"Qwen/Qwen2.5-7B-Instruct-Turbo":          {input: 0.0003, output: 0.0003},
	"meta-llama/Llama-3.3-70B-Instruct-Turbo": {input: 0.00088, output: 0.00088},
}

// NewOpenAIProvider creates a provider against the official OpenAI API.
func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	return &OpenAIProvider{
		client: openai.NewClient(apiKey),
		name:   "openai",
		prices: openaiPrices,
	}
}

// NewTogetherProvider creates a provider against the Together OpenAI-compatible API.
func NewTogetherProvider(apiKey string) *OpenAIProvider {
	return NewCompatibleProvider("together", apiKey, "https://api.together.xyz/v1", togetherPrices)
}

// NewCompatibleProvider creates a provider for any OpenAI-compatible endpoint.
// baseURL must include the /v1 path. A nil price table estimates zero cost.
func NewCompatibleProvider(name, apiKey, baseURL string, prices map[string]pricing) *OpenAIProvider {
	config := openai.DefaultConfig(apiKey)
	config.BaseURL = baseURL
	return &OpenAIProvider{
		client: openai.NewClientWithConfig(config),
		name:   name,
		prices: prices,
	}
}

// Name returns the provider identifier.
func (p *OpenAIProvider) Name() string {
	return p.name
}

// Generate sends a chat completion request.
func (p *OpenAIProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	ctx, span := tracer.Start(ctx, "gen_ai.generate",
		trace.WithAttributes(wardenotel.LLMRequestAttributes(p.name, req.Model, req.Temperature, req.MaxTokens)...))
	defer span.End()

	ctx, cancel := callTimeout(ctx)
	defer cancel()

	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, msg := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	}
	if req.ForceJSON {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%s api call: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s api call: no choices returned", p.name)
	}

	span.SetAttributes(wardenotel.LLMUsageAttributes(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)...)
	span.SetAttributes(wardenotel.GenAIResponseFinishReason.String(string(resp.Choices[0].FinishReason)))

	return &Response{
		Content:      resp.Choices[0].Message.Content,
		FinishReason: string(resp.Choices[0].FinishReason),
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		Model:        resp.Model,
	}, nil
}

// EstimateCost estimates the cost in USD for the given model and token counts.
func (p *OpenAIProvider) EstimateCost(model string, inputTokens, outputTokens int) float64 {
	pr, ok := p.prices[model]
	if !ok {
		return 0
	}
	return (float64(inputTokens)/1000.0)*pr.input + (float64(outputTokens)/1000.0)*pr.output
}
