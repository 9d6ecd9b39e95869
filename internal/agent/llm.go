package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/dativo-io/warden/internal/costs"
	"github.com/dativo-io/warden/internal/events"
	"github.com/dativo-io/warden/internal/llm"
	"github.com/dativo-io/warden/internal/memory"
	"github.com/dativo-io/warden/internal/plan"
	"github.com/dativo-io/warden/internal/state"
)

// LLMConfig selects the model and sampling parameters for one agent role.
type LLMConfig struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// llmCaller is the shared remote-call machinery for both roles.
type llmCaller struct {
	provider llm.Provider
	cfg      LLMConfig
	tracker  *costs.Tracker
	role     string
}

// generate performs one provider call, recording cost and usage metrics.
// Any provider error is a transport failure for the current event.
func (c *llmCaller) generate(ctx context.Context, messages []llm.Message) (*llm.Response, error) {
	resp, err := c.provider.Generate(ctx, &llm.Request{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
		ForceJSON:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrTransport, c.role, err)
	}
	if c.tracker != nil {
		cost := c.provider.EstimateCost(resp.Model, resp.InputTokens, resp.OutputTokens)
		c.tracker.Record(c.role, resp.Model, resp.InputTokens, resp.OutputTokens, cost)
	}
	llm.RecordUsageMetrics(ctx, c.role, c.provider, resp)
	return resp, nil
}

// extractJSON trims anything around the outermost JSON object. Some models
// wrap output in markdown fences even when asked not to.
func extractJSON(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return content
	}
	return content[start : end+1]
}

// errSchema marks a decode that violated the decision payload schema.
var errSchema = errors.New("schema violation")

// LLMStudent proposes plans via a chat-completion backend.
type LLMStudent struct {
	caller llmCaller
}

// NewLLMStudent creates the Student over a provider. tracker may be nil.
func NewLLMStudent(provider llm.Provider, cfg LLMConfig, tracker *costs.Tracker) *LLMStudent {
	return &LLMStudent{caller: llmCaller{provider: provider, cfg: cfg, tracker: tracker, role: "student"}}
}

// Propose asks the backend for a plan. Malformed payloads get one stricter
// retry, then the deterministic fallback; transport failures return an error.
func (s *LLMStudent) Propose(ctx context.Context, st state.UserState, ev events.Event, neighbors []memory.Result) (*Proposal, error) {
	messages := []llm.Message{
		{Role: "system", Content: studentSystemPrompt},
		{Role: "user", Content: studentUserPrompt(st, ev, neighbors)},
	}

	for attempt := 0; attempt < 2; attempt++ {
		if attempt == 1 {
			messages = append(messages, llm.Message{Role: "user", Content: strictRetryInstruction})
		}
		resp, err := s.caller.generate(ctx, messages)
		if err != nil {
			return nil, err
		}
		p, perr := parseStudentPayload(resp.Content)
		if perr != nil {
			log.Warn().Err(perr).Int("attempt", attempt+1).Msg("student_schema_error")
			continue
		}
		return &Proposal{Plan: *p}, nil
	}

	log.Warn().Msg("student_schema_fallback")
	return &Proposal{
		Plan:     plan.Fallback("fallback after malformed student output"),
		FellBack: true,
	}, nil
}

// parseStudentPayload validates {reasoning: string, plan: [string...]}.
func parseStudentPayload(content string) (*plan.Plan, error) {
	var payload struct {
		Reasoning *string  `json:"reasoning"`
		Plan      []string `json:"plan"`
	}
	if err := json.Unmarshal([]byte(extractJSON(content)), &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", errSchema, err)
	}
	if payload.Reasoning == nil {
		return nil, fmt.Errorf("%w: missing reasoning", errSchema)
	}
	if len(payload.Plan) == 0 {
		return nil, fmt.Errorf("%w: missing or empty plan", errSchema)
	}
	return &plan.Plan{
		Reasoning: *payload.Reasoning,
		Actions:   plan.ParseActions(payload.Plan),
	}, nil
}

// LLMExpert reviews Student plans via a chat-completion backend.
type LLMExpert struct {
	caller llmCaller
}

// NewLLMExpert creates the Expert over a provider. tracker may be nil.
func NewLLMExpert(provider llm.Provider, cfg LLMConfig, tracker *costs.Tracker) *LLMExpert {
	return &LLMExpert{caller: llmCaller{provider: provider, cfg: cfg, tracker: tracker, role: "expert"}}
}

// Review asks the backend for a verdict. The fallback verdict is agree, so a
// persistently malformed Expert defers to the Student rather than overriding.
func (e *LLMExpert) Review(ctx context.Context, st state.UserState, ev events.Event, proposed plan.Plan) (*Review, error) {
	messages := []llm.Message{
		{Role: "system", Content: expertSystemPrompt},
		{Role: "user", Content: expertUserPrompt(st, ev, proposed)},
	}

	for attempt := 0; attempt < 2; attempt++ {
		if attempt == 1 {
			messages = append(messages, llm.Message{Role: "user", Content: strictRetryInstruction})
		}
		resp, err := e.caller.generate(ctx, messages)
		if err != nil {
			return nil, err
		}
		review, perr := parseExpertPayload(resp.Content)
		if perr != nil {
			log.Warn().Err(perr).Int("attempt", attempt+1).Msg("expert_schema_error")
			continue
		}
		return review, nil
	}

	log.Warn().Msg("expert_schema_fallback")
	return &Review{Verdict: VerdictAgree, FellBack: true}, nil
}

// parseExpertPayload validates the verdict payload: reasoning and plan are
// required on disagree and must be null or absent on agree.
func parseExpertPayload(content string) (*Review, error) {
	var payload struct {
		Verdict   *string  `json:"verdict"`
		Reasoning *string  `json:"reasoning"`
		Plan      []string `json:"plan"`
	}
	if err := json.Unmarshal([]byte(extractJSON(content)), &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", errSchema, err)
	}
	if payload.Verdict == nil {
		return nil, fmt.Errorf("%w: missing verdict", errSchema)
	}

	switch Verdict(*payload.Verdict) {
	case VerdictAgree:
		if payload.Reasoning != nil || len(payload.Plan) > 0 {
			return nil, fmt.Errorf("%w: agree verdict must not carry reasoning or plan", errSchema)
		}
		return &Review{Verdict: VerdictAgree}, nil
	case VerdictDisagree:
		if payload.Reasoning == nil || *payload.Reasoning == "" {
			return nil, fmt.Errorf("%w: disagree verdict requires reasoning", errSchema)
		}
		if len(payload.Plan) == 0 {
			return nil, fmt.Errorf("%w: disagree verdict requires a plan", errSchema)
		}
		return &Review{
			Verdict: VerdictDisagree,
			Plan: plan.Plan{
				Reasoning: *payload.Reasoning,
				Actions:   plan.ParseActions(payload.Plan),
			},
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown verdict %q", errSchema, *payload.Verdict)
	}
}
