// Package plan defines the moderation action vocabulary and the plan
// artifacts exchanged between the Student and Expert agents.
//
// A Plan is an ordered action sequence plus free-text reasoning. Equality
// between plans is purely structural: canonicalized action sequences are
// compared order-sensitively and reasoning text is ignored. This is a
// deliberately strict syntactic comparison — "timeout_user_5m" and
// "timeout_user_10m" disagree even though both are timeouts.
package plan

import (
	"regexp"
	"strings"
)

// Action identifies one moderation action from the closed vocabulary.
type Action string

// The closed action set. Every action has a defined effect on user state
// (see internal/state); anything outside this set is applied as a no-op
// with a warning.
const (
	WarnUser        Action = "warn_user"
	DeleteComment   Action = "delete_comment"
	TimeoutUser5m   Action = "timeout_user_5m"
	TimeoutUser10m  Action = "timeout_user_10m"
	BanUser         Action = "ban_user"
	Reply           Action = "reply"
	LogIncident     Action = "log_incident"
	LetCommentStand Action = "let_comment_stand"
)

// Known reports whether the action is part of the closed vocabulary.
func (a Action) Known() bool {
	switch a {
	case WarnUser, DeleteComment, TimeoutUser5m, TimeoutUser10m,
		BanUser, Reply, LogIncident, LetCommentStand:
		return true
	}
	return false
}

// ActionCall is one action invocation. Message is only meaningful for Reply.
type ActionCall struct {
	Action  Action `json:"action"`
	Message string `json:"message,omitempty"`
}

// replyArgPattern extracts the message from forms like reply('msg') or reply(msg).
var replyArgPattern = regexp.MustCompile(`reply\(['"]?([^'")]+)['"]?\)`)

// DefaultReplyMessage is used when a reply action carries no message.
const DefaultReplyMessage = "Please follow community guidelines"

// ParseActionCall normalizes one raw action string from an agent payload.
// Agents emit loosely formatted identifiers ("Warn_User", "timeout user 10m",
// "reply('be nice')"); parsing is deliberately lenient so near-miss spellings
// still land on the closed vocabulary. Strings that match nothing come back
// with Known() == false and are handled by the action applier.
func ParseActionCall(raw string) ActionCall {
	norm := strings.ToLower(strings.TrimSpace(raw))

	switch {
	case strings.Contains(norm, "ban_user") || strings.Contains(norm, "ban user"):
		return ActionCall{Action: BanUser}
	case strings.Contains(norm, "timeout"):
		if strings.Contains(norm, "10m") {
			return ActionCall{Action: TimeoutUser10m}
		}
		return ActionCall{Action: TimeoutUser5m}
	case strings.Contains(norm, "delete"):
		return ActionCall{Action: DeleteComment}
	case strings.Contains(norm, "warn"):
		return ActionCall{Action: WarnUser}
	case strings.Contains(norm, "reply"):
		msg := DefaultReplyMessage
		if m := replyArgPattern.FindStringSubmatch(norm); m != nil {
			msg = strings.TrimSpace(m[1])
		}
		return ActionCall{Action: Reply, Message: msg}
	case strings.Contains(norm, "log_incident") || strings.Contains(norm, "log incident"):
		return ActionCall{Action: LogIncident}
	case strings.Contains(norm, "let_comment_stand") || strings.Contains(norm, "let_stand") ||
		strings.Contains(norm, "no action") || strings.Contains(norm, "no_action"):
		return ActionCall{Action: LetCommentStand}
	}
	return ActionCall{Action: Action(norm)}
}

// ParseActions normalizes a raw action list into ordered calls.
func ParseActions(raw []string) []ActionCall {
	calls := make([]ActionCall, 0, len(raw))
	for _, r := range raw {
		calls = append(calls, ParseActionCall(r))
	}
	return calls
}

// Canonical renders the call in its normal form: the bare action identifier,
// or reply(message) with the message verbatim.
func (c ActionCall) Canonical() string {
	if c.Action == Reply {
		return "reply(" + c.Message + ")"
	}
	return string(c.Action)
}

// Plan is a decision artifact: ordered actions plus the agent's reasoning.
type Plan struct {
	Reasoning string       `json:"reasoning"`
	Actions   []ActionCall `json:"actions"`
}

// Canonical renders the ordered action sequence as a single comparable
// string. Reasoning is excluded — two plans with identical actions and
// different reasoning are the same plan.
func (p Plan) Canonical() string {
	if len(p.Actions) == 0 {
		return ""
	}
	parts := make([]string, len(p.Actions))
	for i, c := range p.Actions {
		parts[i] = c.Canonical()
	}
	return strings.Join(parts, "; ")
}

// Fallback returns the deterministic default plan applied when an agent
// backend produces no usable decision: leave the comment alone.
func Fallback(reason string) Plan {
	return Plan{
		Reasoning: reason,
		Actions:   []ActionCall{{Action: LetCommentStand}},
	}
}

// Comparator decides whether two plans propose the same moderation outcome.
// The loop and eval tooling take a Comparator so a future action-equivalence
// comparison can be swapped in; StrictEqual is the only one shipped.
type Comparator func(a, b Plan) bool

// StrictEqual compares canonicalized ordered action sequences.
func StrictEqual(a, b Plan) bool {
	if len(a.Actions) != len(b.Actions) {
		return false
	}
	for i := range a.Actions {
		if a.Actions[i].Canonical() != b.Actions[i].Canonical() {
			return false
		}
	}
	return true
}
