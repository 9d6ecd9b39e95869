// Package agent defines the Student and Expert decision-makers and their
// swappable backends. Both roles are one capability, decide from (state,
// event, role context), but their contexts and outputs differ: the Student
// sees retrieved neighbor entries and proposes a plan; the Expert sees the
// Student's proposed actions, never the Student's reasoning, and returns a
// verdict with its own plan only on disagreement.
//
// Backend failure policy: malformed structured output is retried once with
// a stricter instruction, then resolved to a deterministic fallback, never
// surfaced as an error. Transport failures (unreachable, unauthorized,
// timed out) return an error wrapping ErrTransport and are fatal for the
// current event only.
package agent

import (
	"context"
	"errors"

	"github.com/dativo-io/warden/internal/events"
	"github.com/dativo-io/warden/internal/memory"
	"github.com/dativo-io/warden/internal/plan"
	"github.com/dativo-io/warden/internal/state"
)

// ErrTransport marks backend failures that skip the current event.
var ErrTransport = errors.New("agent backend unavailable")

// Verdict is the Expert's judgment of the Student's plan.
type Verdict string

const (
	VerdictAgree    Verdict = "agree"
	VerdictDisagree Verdict = "disagree"
)

// Proposal is the Student's decision.
type Proposal struct {
	Plan plan.Plan
	// FellBack is set when both decode attempts failed schema validation
	// and the deterministic default was substituted.
	FellBack bool
}

// Review is the Expert's decision. Plan carries the Expert's independent
// reasoning and actions and is populated only when Verdict is disagree.
type Review struct {
	Verdict  Verdict
	Plan     plan.Plan
	FellBack bool
}

// Student proposes a moderation plan from state, event, and retrieved
// neighbor cases.
type Student interface {
	Propose(ctx context.Context, st state.UserState, ev events.Event, neighbors []memory.Result) (*Proposal, error)
}

// Expert reviews the Student's proposed actions against state and event.
type Expert interface {
	Review(ctx context.Context, st state.UserState, ev events.Event, proposed plan.Plan) (*Review, error)
}
