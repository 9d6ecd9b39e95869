package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dativo-io/warden/internal/events"
	"github.com/dativo-io/warden/internal/plan"
	"github.com/dativo-io/warden/internal/state"
)

func TestRulesStudent_CleanComment(t *testing.T) {
	student := NewRulesStudent()
	ev := events.Event{Comment: "great stream today!", Meta: events.Meta{User: "u1"}}

	prop, err := student.Propose(context.Background(), state.UserState{}, ev, nil)
	require.NoError(t, err)
	assert.Equal(t, "let_comment_stand", prop.Plan.Canonical())
}

func TestRulesStudent_AbusiveEscalatesOnStrikes(t *testing.T) {
	student := NewRulesStudent()
	ev := events.Event{Comment: "go kys lol", Meta: events.Meta{User: "u1", Strikes: 2}}

	prop, err := student.Propose(context.Background(), state.UserState{}, ev, nil)
	require.NoError(t, err)
	assert.Equal(t, "delete_comment; timeout_user_5m", prop.Plan.Canonical())

	first, err := student.Propose(context.Background(), state.UserState{},
		events.Event{Comment: "go kys lol", Meta: events.Meta{User: "u2"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "warn_user", first.Plan.Canonical())
}

func TestRulesStudent_Spam(t *testing.T) {
	student := NewRulesStudent()
	ev := events.Event{Comment: "follow me for free coins!!! http://spam.link", Meta: events.Meta{User: "u1"}}

	prop, err := student.Propose(context.Background(), state.UserState{}, ev, nil)
	require.NoError(t, err)
	assert.Equal(t, "delete_comment; warn_user", prop.Plan.Canonical())
}

func TestRulesExpert_AgreesOnCleanComment(t *testing.T) {
	student := NewRulesStudent()
	expert := NewRulesExpert(nil)
	ev := events.Event{Comment: "nice play!", Meta: events.Meta{User: "u1"}}

	prop, err := student.Propose(context.Background(), state.UserState{}, ev, nil)
	require.NoError(t, err)
	review, err := expert.Review(context.Background(), state.UserState{}, ev, prop.Plan)
	require.NoError(t, err)
	assert.Equal(t, VerdictAgree, review.Verdict)
}

func TestRulesExpert_DisagreesOnAbuse(t *testing.T) {
	student := NewRulesStudent()
	expert := NewRulesExpert(nil)
	ev := events.Event{Comment: "go kys lol", Meta: events.Meta{User: "u1"}}

	prop, err := student.Propose(context.Background(), state.UserState{}, ev, nil)
	require.NoError(t, err)
	review, err := expert.Review(context.Background(), state.UserState{}, ev, prop.Plan)
	require.NoError(t, err)
	assert.Equal(t, VerdictDisagree, review.Verdict)
	assert.Equal(t, "delete_comment; timeout_user_10m", review.Plan.Canonical())
	assert.NotEmpty(t, review.Plan.Reasoning)
}

func TestRulesExpert_BansRepeatOffenders(t *testing.T) {
	expert := NewRulesExpert(nil)
	ev := events.Event{Comment: "go kys lol", Meta: events.Meta{User: "u1"}}
	st := state.UserState{TimeoutCount: 1}

	review, err := expert.Review(context.Background(), st, ev, plan.Fallback("x"))
	require.NoError(t, err)
	assert.Equal(t, VerdictDisagree, review.Verdict)
	assert.Equal(t, "delete_comment; ban_user", review.Plan.Canonical())
}

func TestRulesExpert_CustomComparator(t *testing.T) {
	// A comparator that treats everything as equal forces agreement.
	always := func(a, b plan.Plan) bool { return true }
	expert := NewRulesExpert(always)
	ev := events.Event{Comment: "go kys lol", Meta: events.Meta{User: "u1"}}

	review, err := expert.Review(context.Background(), state.UserState{}, ev, plan.Fallback("x"))
	require.NoError(t, err)
	assert.Equal(t, VerdictAgree, review.Verdict)
}
