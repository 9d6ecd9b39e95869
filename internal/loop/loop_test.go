package loop

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dativo-io/warden/internal/agent"
	"github.com/dativo-io/warden/internal/events"
	"github.com/dativo-io/warden/internal/memory"
	"github.com/dativo-io/warden/internal/plan"
	"github.com/dativo-io/warden/internal/state"
)

// stubStudent returns queued proposals, or err on every call.
type stubStudent struct {
	proposals []agent.Proposal
	err       error
	calls     int
	seen      []state.UserState
}

func (s *stubStudent) Propose(ctx context.Context, st state.UserState, ev events.Event, neighbors []memory.Result) (*agent.Proposal, error) {
	s.seen = append(s.seen, st)
	if s.err != nil {
		return nil, s.err
	}
	p := s.proposals[s.calls%len(s.proposals)]
	s.calls++
	return &p, nil
}

// stubExpert returns queued reviews, or err on every call.
type stubExpert struct {
	reviews []agent.Review
	err     error
	calls   int
}

func (e *stubExpert) Review(ctx context.Context, st state.UserState, ev events.Event, proposed plan.Plan) (*agent.Review, error) {
	if e.err != nil {
		return nil, e.err
	}
	r := e.reviews[e.calls%len(e.reviews)]
	e.calls++
	return &r, nil
}

type fixture struct {
	tracker   *state.Tracker
	retrieval *memory.Retrieval
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	tracker, err := state.NewTracker(filepath.Join(dir, "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { tracker.Close() })

	retrieval, err := memory.Open(filepath.Join(dir, "memory.db"), memory.NewTFIDFIndex(), 0)
	require.NoError(t, err)
	t.Cleanup(func() { retrieval.Close() })

	return &fixture{tracker: tracker, retrieval: retrieval}
}

func planOf(actions ...plan.Action) plan.Plan {
	calls := make([]plan.ActionCall, len(actions))
	for i, a := range actions {
		calls[i] = plan.ActionCall{Action: a}
	}
	return plan.Plan{Reasoning: "test", Actions: calls}
}

func event(user, comment string) events.Event {
	return events.Event{Comment: comment, Meta: events.Meta{User: user}}
}

func TestRun_AgreementAppliesStudentPlanWithoutMemoryWrite(t *testing.T) {
	// An agree verdict makes the Student's plan effective and never
	// touches the memory.
	fx := newFixture(t)
	student := &stubStudent{proposals: []agent.Proposal{{Plan: planOf(plan.WarnUser)}}}
	expert := &stubExpert{reviews: []agent.Review{{Verdict: agent.VerdictAgree}}}
	l := New(fx.tracker, fx.retrieval, student, expert, nil, nil, Options{})

	summary, err := l.Run(context.Background(), []events.Event{event("u1", "hmm")})
	require.NoError(t, err)

	st, err := fx.tracker.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, st.WarningCount)
	assert.Equal(t, 0, fx.retrieval.Size())
	assert.Equal(t, 1, summary.Processed)
	assert.Zero(t, summary.MemoryWrites)
}

func TestRun_DisagreementAppliesExpertPlanAndWritesMemory(t *testing.T) {
	// An override applies the Expert's plan and writes one memory entry
	// keyed on the pre-action state.
	fx := newFixture(t)
	require.NoError(t, fx.tracker.Reset(context.Background(), "u1"))
	_, err := fx.tracker.Apply(context.Background(), "u1", plan.ActionCall{Action: plan.WarnUser})
	require.NoError(t, err)

	student := &stubStudent{proposals: []agent.Proposal{{Plan: planOf(plan.LetCommentStand)}}}
	expertPlan := planOf(plan.TimeoutUser5m)
	expertPlan.Reasoning = "needs a cooldown"
	expert := &stubExpert{reviews: []agent.Review{{Verdict: agent.VerdictDisagree, Plan: expertPlan}}}
	l := New(fx.tracker, fx.retrieval, student, expert, nil, nil, Options{MemoryMode: MemoryModeState})

	summary, err := l.Run(context.Background(), []events.Event{event("u1", "whatever")})
	require.NoError(t, err)

	st, err := fx.tracker.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, st.TimeoutCount)
	assert.Equal(t, 1, fx.retrieval.Size())
	assert.Equal(t, 1, summary.Disagreements)

	entries, err := fx.retrieval.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	// Pre-action state: one warning, no timeout yet.
	assert.Contains(t, entries[0].Fingerprint, "warnings:1")
	assert.Contains(t, entries[0].Fingerprint, "timeouts:0")
	assert.Equal(t, "timeout_user_5m", entries[0].Plan)
	assert.Equal(t, "needs a cooldown", entries[0].Reasoning)
	assert.NotContains(t, entries[0].Fingerprint, "u1")
}

func TestRun_TransportFailureSkipsEventAndContinues(t *testing.T) {
	fx := newFixture(t)
	student := &stubStudent{err: agent.ErrTransport}
	expert := &stubExpert{reviews: []agent.Review{{Verdict: agent.VerdictAgree}}}
	l := New(fx.tracker, fx.retrieval, student, expert, nil, nil, Options{})

	evs := []events.Event{event("u1", "a"), event("u2", "b")}
	summary, err := l.Run(context.Background(), evs)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Skipped)
	assert.Zero(t, summary.Processed)

	// No actions applied for skipped events.
	st, err := fx.tracker.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, st.LastAction)
}

func TestRun_SchemaFallbackIsNotSkipped(t *testing.T) {
	// The agents absorbed a schema failure and handed back a fallback
	// decision; the loop treats it as a normal event.
	fx := newFixture(t)
	student := &stubStudent{proposals: []agent.Proposal{{Plan: plan.Fallback("bad payload"), FellBack: true}}}
	expert := &stubExpert{reviews: []agent.Review{{Verdict: agent.VerdictAgree}}}

	dir := t.TempDir()
	results, err := OpenResultLog(filepath.Join(dir, "results.jsonl"))
	require.NoError(t, err)
	l := New(fx.tracker, fx.retrieval, student, expert, nil, results, Options{})

	summary, err := l.Run(context.Background(), []events.Event{event("u1", "x")})
	require.NoError(t, err)
	require.NoError(t, results.Close())
	assert.Equal(t, 1, summary.Processed)
	assert.Zero(t, summary.Skipped)

	records, err := ReadRecords(filepath.Join(dir, "results.jsonl"))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, StateLogged, records[0].TerminalState)
	assert.True(t, records[0].StudentFell)
	assert.Equal(t, "let_comment_stand", records[0].StudentPlan)
}

func TestRun_MultiActionPlanAppliedInOrder(t *testing.T) {
	fx := newFixture(t)
	student := &stubStudent{proposals: []agent.Proposal{{Plan: planOf(plan.DeleteComment, plan.WarnUser)}}}
	expert := &stubExpert{reviews: []agent.Review{{Verdict: agent.VerdictAgree}}}
	l := New(fx.tracker, fx.retrieval, student, expert, nil, nil, Options{})

	_, err := l.Run(context.Background(), []events.Event{event("u1", "spam")})
	require.NoError(t, err)

	st, err := fx.tracker.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, st.DeletedComments)
	assert.Equal(t, 1, st.WarningCount)
	assert.Equal(t, "warn_user", st.LastAction)
}

func TestRun_UnknownActionInPlanIsAbsorbed(t *testing.T) {
	fx := newFixture(t)
	p := plan.Plan{Reasoning: "r", Actions: []plan.ActionCall{
		{Action: plan.Action("escalate_to_council")},
		{Action: plan.WarnUser},
	}}
	student := &stubStudent{proposals: []agent.Proposal{{Plan: p}}}
	expert := &stubExpert{reviews: []agent.Review{{Verdict: agent.VerdictAgree}}}
	l := New(fx.tracker, fx.retrieval, student, expert, nil, nil, Options{})

	summary, err := l.Run(context.Background(), []events.Event{event("u1", "x")})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)

	st, err := fx.tracker.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, st.WarningCount)
	assert.Equal(t, "warn_user", st.LastAction)
}

func TestRun_StudentSeesPreActionState(t *testing.T) {
	fx := newFixture(t)
	student := &stubStudent{proposals: []agent.Proposal{{Plan: planOf(plan.WarnUser)}}}
	expert := &stubExpert{reviews: []agent.Review{{Verdict: agent.VerdictAgree}}}
	l := New(fx.tracker, fx.retrieval, student, expert, nil, nil, Options{})

	evs := []events.Event{event("u1", "first"), event("u1", "second")}
	_, err := l.Run(context.Background(), evs)
	require.NoError(t, err)

	require.Len(t, student.seen, 2)
	assert.Equal(t, 0, student.seen[0].WarningCount)
	assert.Equal(t, 1, student.seen[1].WarningCount)
}

func TestRun_EventContextUpdatesState(t *testing.T) {
	fx := newFixture(t)
	student := &stubStudent{proposals: []agent.Proposal{{Plan: planOf(plan.LetCommentStand)}}}
	expert := &stubExpert{reviews: []agent.Review{{Verdict: agent.VerdictAgree}}}
	l := New(fx.tracker, fx.retrieval, student, expert, nil, nil, Options{})

	ev := events.Event{Comment: "hi", Meta: events.Meta{
		User: "u1", FollowerCount: 250, ViewerCount: 40, Topic: "chess",
	}}
	_, err := l.Run(context.Background(), []events.Event{ev})
	require.NoError(t, err)

	require.Len(t, student.seen, 1)
	assert.Equal(t, 250, student.seen[0].FollowerCount)
	assert.Equal(t, "chess", student.seen[0].CurrentTopic)
}

func TestRun_CancelledContextStopsBeforeNextEvent(t *testing.T) {
	fx := newFixture(t)
	student := &stubStudent{proposals: []agent.Proposal{{Plan: planOf(plan.WarnUser)}}}
	expert := &stubExpert{reviews: []agent.Review{{Verdict: agent.VerdictAgree}}}
	l := New(fx.tracker, fx.retrieval, student, expert, nil, nil, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	summary, err := l.Run(ctx, []events.Event{event("u1", "a"), event("u2", "b")})
	require.NoError(t, err)
	assert.Zero(t, summary.Processed)
}

func TestRun_MemoryModeStateCommentKeysOnComment(t *testing.T) {
	fx := newFixture(t)
	expertPlan := planOf(plan.WarnUser)
	student := &stubStudent{proposals: []agent.Proposal{{Plan: planOf(plan.LetCommentStand)}}}
	expert := &stubExpert{reviews: []agent.Review{{Verdict: agent.VerdictDisagree, Plan: expertPlan}}}
	l := New(fx.tracker, fx.retrieval, student, expert, nil, nil, Options{MemoryMode: MemoryModeStateComment})

	_, err := l.Run(context.Background(), []events.Event{event("u1", "free coins here")})
	require.NoError(t, err)

	entries, err := fx.retrieval.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Fingerprint, "comment:free coins here")
}

func TestRun_RulesAgentsEndToEnd(t *testing.T) {
	// The deterministic backends drive the full machine without a network:
	// clean comments agree, abusive ones disagree and grow the memory.
	fx := newFixture(t)
	l := New(fx.tracker, fx.retrieval, agent.NewRulesStudent(), agent.NewRulesExpert(nil), nil, nil, Options{})

	evs := []events.Event{
		event("u1", "great stream!"),
		event("u2", "go kys lol"),
		event("u3", "nice play"),
	}
	summary, err := l.Run(context.Background(), evs)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Processed)
	assert.Equal(t, 1, summary.Disagreements)
	assert.Equal(t, 1, summary.MemoryWrites)

	st, err := fx.tracker.Get(context.Background(), "u2")
	require.NoError(t, err)
	assert.Equal(t, 1, st.DeletedComments)
	assert.Equal(t, 1, st.TimeoutCount)
}

func TestDisagreementRate(t *testing.T) {
	records := []Record{
		{TerminalState: StateLogged, StudentPlan: "warn_user", ExpertVerdict: "agree"},
		{TerminalState: StateLogged, StudentPlan: "warn_user", ExpertVerdict: "disagree", ExpertPlan: "ban_user"},
		{TerminalState: StateSkipped},
	}
	assert.InDelta(t, 0.5, DisagreementRate(records, nil), 1e-9)
	assert.Zero(t, DisagreementRate(nil, nil))
}

func TestDisagreementRate_IgnoresVerdictField(t *testing.T) {
	// The rate is computed from the plans alone. A disagree verdict whose
	// plan lands on the Student's own plan is an agreement; an agree
	// verdict is an agreement even if mislabeled downstream.
	records := []Record{
		{TerminalState: StateLogged, StudentPlan: "warn_user", ExpertVerdict: "disagree", ExpertPlan: "warn_user"},
	}
	assert.Zero(t, DisagreementRate(records, nil))

	records = append(records,
		Record{TerminalState: StateLogged, StudentPlan: "warn_user", ExpertVerdict: "disagree", ExpertPlan: "delete_comment; warn_user"})
	assert.InDelta(t, 0.5, DisagreementRate(records, nil), 1e-9)
}

func TestDisagreementRate_CustomComparator(t *testing.T) {
	// A comparator that treats any timeout duration as equivalent.
	timeoutBlind := func(a, b plan.Plan) bool {
		norm := func(p plan.Plan) string {
			parts := make([]string, len(p.Actions))
			for i, c := range p.Actions {
				s := c.Canonical()
				if c.Action == plan.TimeoutUser5m || c.Action == plan.TimeoutUser10m {
					s = "timeout"
				}
				parts[i] = s
			}
			return strings.Join(parts, "; ")
		}
		return norm(a) == norm(b)
	}

	records := []Record{
		{TerminalState: StateLogged, StudentPlan: "timeout_user_5m", ExpertVerdict: "disagree", ExpertPlan: "timeout_user_10m"},
	}
	assert.InDelta(t, 1.0, DisagreementRate(records, nil), 1e-9)
	assert.Zero(t, DisagreementRate(records, timeoutBlind))
}

func TestResultLog_AppendAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "results.jsonl")
	rl, err := OpenResultLog(path)
	require.NoError(t, err)

	require.NoError(t, rl.Append(Record{Idx: 0, EventID: "e1", TerminalState: StateLogged}))
	require.NoError(t, rl.Append(Record{Idx: 1, EventID: "e2", TerminalState: StateSkipped, Error: "boom"}))
	require.NoError(t, rl.Close())

	records, err := ReadRecords(path)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "e1", records[0].EventID)
	assert.Equal(t, "boom", records[1].Error)
}

func TestRun_ExpertTransportFailureSkips(t *testing.T) {
	fx := newFixture(t)
	student := &stubStudent{proposals: []agent.Proposal{{Plan: planOf(plan.WarnUser)}}}
	expert := &stubExpert{err: errors.New("timeout")}
	l := New(fx.tracker, fx.retrieval, student, expert, nil, nil, Options{})

	summary, err := l.Run(context.Background(), []events.Event{event("u1", "x")})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)

	// The student proposal happened but no actions were applied.
	st, err := fx.tracker.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, st.WarningCount)
}
