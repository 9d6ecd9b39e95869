// Package loop runs the per-event arbitration state machine: update state,
// retrieve context, ask the Student, have the Expert review, apply the
// winning plan, and write a memory entry only on disagreement.
//
// Processing is strictly sequential. One event's machine completes (or is
// skipped) before the next begins, so state mutations and memory inserts
// for an identity are visible to its next event. A cancelled context stops
// the run after the in-flight event reaches its terminal state.
package loop

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dativo-io/warden/internal/agent"
	"github.com/dativo-io/warden/internal/costs"
	"github.com/dativo-io/warden/internal/events"
	"github.com/dativo-io/warden/internal/memory"
	"github.com/dativo-io/warden/internal/otel"
	"github.com/dativo-io/warden/internal/plan"
	"github.com/dativo-io/warden/internal/state"
)

var tracer = otel.Tracer("github.com/dativo-io/warden/internal/loop")

// Memory modes select the retrieval key: the state fingerprint alone, or
// the fingerprint concatenated with the event text.
const (
	MemoryModeState        = "state"
	MemoryModeStateComment = "state+comment"
)

// Options tune a Loop.
type Options struct {
	TopK       int
	MemoryMode string
	// AuditEvery logs a progress summary every n events; 0 disables.
	AuditEvery int
}

// Loop owns the per-event lifecycle over injected long-lived stores.
type Loop struct {
	tracker   *state.Tracker
	retrieval *memory.Retrieval
	student   agent.Student
	expert    agent.Expert
	costs     *costs.Tracker
	results   *ResultLog
	opts      Options
}

// Summary aggregates one run.
type Summary struct {
	Processed     int
	Skipped       int
	Disagreements int
	MemoryWrites  int
	MemorySize    int
	TotalCostUSD  float64
	TotalCalls    int
}

// New wires a loop. results and costTracker may be nil.
func New(tracker *state.Tracker, retrieval *memory.Retrieval, student agent.Student, expert agent.Expert, costTracker *costs.Tracker, results *ResultLog, opts Options) *Loop {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.MemoryMode == "" {
		opts.MemoryMode = MemoryModeStateComment
	}
	return &Loop{
		tracker:   tracker,
		retrieval: retrieval,
		student:   student,
		expert:    expert,
		costs:     costTracker,
		results:   results,
		opts:      opts,
	}
}

// Run processes events in order. It returns early only on a persistence
// error or after finishing the event in flight when ctx is cancelled.
func (l *Loop) Run(ctx context.Context, evs []events.Event) (*Summary, error) {
	summary := &Summary{}
	for idx, ev := range evs {
		if ctx.Err() != nil {
			log.Info().Int("processed", summary.Processed).Msg("graceful_stop")
			break
		}
		if err := l.processEvent(ctx, idx, ev, summary); err != nil {
			return summary, err
		}
		if l.opts.AuditEvery > 0 && (idx+1)%l.opts.AuditEvery == 0 {
			log.Info().
				Int("events", idx+1).
				Int("disagreements", summary.Disagreements).
				Int("memory_size", l.retrieval.Size()).
				Float64("cost_usd", l.totalCost()).
				Msg("audit_checkpoint")
		}
	}
	summary.MemorySize = l.retrieval.Size()
	if l.costs != nil {
		summary.TotalCostUSD = l.costs.TotalCost()
		summary.TotalCalls = l.costs.TotalCalls()
	}
	return summary, nil
}

// processEvent drives one event through the state machine. A returned error
// is a persistence failure and fatal for the run; agent transport failures
// are absorbed as a skipped event.
func (l *Loop) processEvent(ctx context.Context, idx int, ev events.Event, summary *Summary) error {
	eventID := uuid.NewString()
	ctx, span := tracer.Start(ctx, "loop.event",
		trace.WithAttributes(attribute.String("event.id", eventID)))
	defer span.End()

	identity := ev.Identity()
	rec := Record{Idx: idx, EventID: eventID, User: identity, Comment: ev.Comment}

	// STATE_UPDATED: fold the event's stream context into the identity's
	// state, creating it lazily, and read the pre-action state.
	followers, viewers := -1, -1
	if ev.Meta.FollowerCount > 0 {
		followers = ev.Meta.FollowerCount
	}
	if ev.Meta.ViewerCount > 0 {
		viewers = ev.Meta.ViewerCount
	}
	preState, err := l.tracker.UpdateContext(ctx, identity, followers, viewers, ev.Meta.Topic)
	if err != nil {
		return fmt.Errorf("persisting event context: %w", err)
	}
	fingerprint := l.retrievalKey(preState, ev)

	// CONTEXT_RETRIEVED
	neighbors := l.retrieval.Query(ctx, fingerprint, l.opts.TopK)
	rec.RetrievedCount = len(neighbors)

	// STUDENT_PROPOSED
	proposal, err := l.student.Propose(ctx, preState, ev, neighbors)
	if err != nil {
		return l.skip(ctx, rec, summary, fmt.Errorf("student: %w", err))
	}
	rec.StudentPlan = proposal.Plan.Canonical()
	rec.StudentFell = proposal.FellBack

	// EXPERT_REVIEWED
	review, err := l.expert.Review(ctx, preState, ev, proposal.Plan)
	if err != nil {
		return l.skip(ctx, rec, summary, fmt.Errorf("expert: %w", err))
	}
	rec.ExpertVerdict = string(review.Verdict)
	rec.ExpertFell = review.FellBack

	// RESOLVED: the Expert's verdict picks the effective plan.
	effective := proposal.Plan
	disagreed := review.Verdict == agent.VerdictDisagree
	if disagreed {
		effective = review.Plan
		rec.ExpertPlan = review.Plan.Canonical()
		summary.Disagreements++
	}

	// ACTIONS_APPLIED: sequence order, no rollback. Unknown actions are
	// absorbed by the tracker; only a write failure is fatal.
	for _, call := range effective.Actions {
		if _, err := l.tracker.Apply(ctx, identity, call); err != nil {
			return fmt.Errorf("applying action %s: %w", call.Canonical(), err)
		}
		rec.ActionsApplied = append(rec.ActionsApplied, call.Canonical())
	}

	// MEMORY_WRITTEN: disagreement is the only write trigger, and the entry
	// keys on the pre-action fingerprint.
	if disagreed {
		entry := memory.Entry{
			Fingerprint: fingerprint,
			Reasoning:   review.Plan.Reasoning,
			Plan:        review.Plan.Canonical(),
			Persona:     ev.Persona,
		}
		if err := l.retrieval.Insert(ctx, &entry); err != nil {
			return fmt.Errorf("writing memory entry: %w", err)
		}
		rec.MemAdded = true
		summary.MemoryWrites++
	}

	// LOGGED
	rec.TerminalState = StateLogged
	summary.Processed++
	return l.logRecord(ctx, rec)
}

// skip records a transport-level agent failure: fatal for this event only.
func (l *Loop) skip(ctx context.Context, rec Record, summary *Summary, cause error) error {
	log.Warn().Err(cause).Str("event_id", rec.EventID).Msg("event_skipped")
	rec.TerminalState = StateSkipped
	rec.Error = cause.Error()
	summary.Skipped++
	return l.logRecord(ctx, rec)
}

// logRecord emits the terminal record to the structured log and the result
// log. A result-log write failure is a persistence error.
func (l *Loop) logRecord(ctx context.Context, rec Record) error {
	rec.MemorySize = l.retrieval.Size()
	if l.costs != nil {
		rec.CumulativeCost = l.costs.TotalCost()
		rec.CumulativeCalls = l.costs.TotalCalls()
	}

	evt := log.Info()
	if rec.TerminalState == StateSkipped {
		evt = log.Warn()
	}
	evt.Func(otel.LogTraceFields(ctx)).
		Int("idx", rec.Idx).
		Str("event_id", rec.EventID).
		Str("terminal_state", rec.TerminalState).
		Str("student_plan", rec.StudentPlan).
		Str("expert_verdict", rec.ExpertVerdict).
		Bool("mem_added", rec.MemAdded).
		Int("memory_size", rec.MemorySize).
		Msg("event_processed")

	if err := l.results.Append(rec); err != nil {
		return fmt.Errorf("appending result record: %w", err)
	}
	return nil
}

// retrievalKey builds the similarity key per the configured memory mode.
func (l *Loop) retrievalKey(st state.UserState, ev events.Event) string {
	if l.opts.MemoryMode == MemoryModeState {
		return st.Fingerprint()
	}
	return st.Fingerprint() + ", comment:" + ev.Comment
}

func (l *Loop) totalCost() float64 {
	if l.costs == nil {
		return 0
	}
	return l.costs.TotalCost()
}

// DisagreementRate computes the disagreement rate over a result log by
// comparing the recorded plans structurally, never the verdict field: a
// disagree verdict whose plan matches the Student's counts as agreement.
// compare defaults to plan.StrictEqual when nil.
func DisagreementRate(records []Record, compare plan.Comparator) float64 {
	if compare == nil {
		compare = plan.StrictEqual
	}
	var logged, disagreed int
	for _, rec := range records {
		if rec.TerminalState != StateLogged {
			continue
		}
		logged++
		// ExpertPlan is only recorded when the Expert overrode; an empty
		// plan means the Student's plan stood unchallenged.
		if rec.ExpertPlan == "" {
			continue
		}
		if !compare(planFromCanonical(rec.StudentPlan), planFromCanonical(rec.ExpertPlan)) {
			disagreed++
		}
	}
	if logged == 0 {
		return 0
	}
	return float64(disagreed) / float64(logged)
}

// planFromCanonical rebuilds a plan from the canonical action string a
// Record stores. Reasoning is not recorded and stays empty.
func planFromCanonical(s string) plan.Plan {
	if s == "" {
		return plan.Plan{}
	}
	return plan.Plan{Actions: plan.ParseActions(strings.Split(s, "; "))}
}

// ErrNoEvents is returned by callers that require a non-empty dataset.
var ErrNoEvents = errors.New("no events to process")
