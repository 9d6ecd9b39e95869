package agent

import (
	"context"
	"strings"

	"github.com/dativo-io/warden/internal/events"
	"github.com/dativo-io/warden/internal/memory"
	"github.com/dativo-io/warden/internal/plan"
	"github.com/dativo-io/warden/internal/state"
)

// Deterministic keyword backend for offline operation and tests. The
// Student is lenient and the Expert is stricter on repeat offenders, so
// the pair produces both agreements and disagreements without a network.

type severity int

const (
	severityClean severity = iota
	severitySpam
	severityAbusive
)

var abusiveTerms = []string{"kys", "kill yourself", "idiot", "trash human", "slur"}

var spamTerms = []string{"http://", "https://", "free coins", "follow me for", "buy now"}

func classify(comment string) severity {
	norm := strings.ToLower(comment)
	for _, term := range abusiveTerms {
		if strings.Contains(norm, term) {
			return severityAbusive
		}
	}
	for _, term := range spamTerms {
		if strings.Contains(norm, term) {
			return severitySpam
		}
	}
	return severityClean
}

// RulesStudent is the deterministic Student backend.
type RulesStudent struct{}

// NewRulesStudent returns the keyword-heuristic Student.
func NewRulesStudent() *RulesStudent { return &RulesStudent{} }

// Propose never fails and ignores retrieved context.
func (s *RulesStudent) Propose(ctx context.Context, st state.UserState, ev events.Event, neighbors []memory.Result) (*Proposal, error) {
	var p plan.Plan
	switch classify(ev.Comment) {
	case severityAbusive:
		if st.WarningCount+ev.Meta.Strikes >= 2 {
			p = plan.Plan{
				Reasoning: "abusive language from a repeat offender",
				Actions: []plan.ActionCall{
					{Action: plan.DeleteComment},
					{Action: plan.TimeoutUser5m},
				},
			}
		} else {
			p = plan.Plan{
				Reasoning: "abusive language, first occurrence",
				Actions:   []plan.ActionCall{{Action: plan.WarnUser}},
			}
		}
	case severitySpam:
		p = plan.Plan{
			Reasoning: "spam or promotional link",
			Actions: []plan.ActionCall{
				{Action: plan.DeleteComment},
				{Action: plan.WarnUser},
			},
		}
	default:
		p = plan.Plan{
			Reasoning: "no violation detected",
			Actions:   []plan.ActionCall{{Action: plan.LetCommentStand}},
		}
	}
	return &Proposal{Plan: p}, nil
}

// RulesExpert is the deterministic Expert backend.
type RulesExpert struct {
	compare plan.Comparator
}

// NewRulesExpert returns the keyword-heuristic Expert using the given plan
// comparator, StrictEqual when nil.
func NewRulesExpert(compare plan.Comparator) *RulesExpert {
	if compare == nil {
		compare = plan.StrictEqual
	}
	return &RulesExpert{compare: compare}
}

// Review recomputes its own plan from the same heuristics with a harsher
// escalation ladder and agrees only when the plans match.
func (e *RulesExpert) Review(ctx context.Context, st state.UserState, ev events.Event, proposed plan.Plan) (*Review, error) {
	var own plan.Plan
	switch classify(ev.Comment) {
	case severityAbusive:
		if st.TimeoutCount > 0 || ev.Meta.Strikes >= 2 {
			own = plan.Plan{
				Reasoning: "abusive language after prior enforcement, removing from chat",
				Actions: []plan.ActionCall{
					{Action: plan.DeleteComment},
					{Action: plan.BanUser},
				},
			}
		} else {
			own = plan.Plan{
				Reasoning: "abusive language warrants removal and a cooldown",
				Actions: []plan.ActionCall{
					{Action: plan.DeleteComment},
					{Action: plan.TimeoutUser10m},
				},
			}
		}
	case severitySpam:
		own = plan.Plan{
			Reasoning: "spam requires removal and a cooldown to deter reposting",
			Actions: []plan.ActionCall{
				{Action: plan.DeleteComment},
				{Action: plan.TimeoutUser5m},
			},
		}
	default:
		own = plan.Plan{
			Reasoning: "no violation detected",
			Actions:   []plan.ActionCall{{Action: plan.LetCommentStand}},
		}
	}

	if e.compare(proposed, own) {
		return &Review{Verdict: VerdictAgree}, nil
	}
	return &Review{Verdict: VerdictDisagree, Plan: own}, nil
}
