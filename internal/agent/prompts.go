package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dativo-io/warden/internal/events"
	"github.com/dativo-io/warden/internal/memory"
	"github.com/dativo-io/warden/internal/plan"
	"github.com/dativo-io/warden/internal/state"
)

const actionVocabulary = "warn_user, delete_comment, timeout_user_5m, timeout_user_10m, " +
	"ban_user, reply(message), log_incident, let_comment_stand"

const studentSystemPrompt = "You are a fast moderation assistant for a live chat stream. " +
	"You will be given a user's state (their history: ban count, warning count, etc.), " +
	"the current comment, and similar past cases as examples. " +
	"Study the examples to understand how similar situations were handled. " +
	"Propose a brief reasoning and a concise action plan. " +
	"Actions can include: " + actionVocabulary + ". " +
	"You MUST respond with valid JSON only, with these exact keys: reasoning, plan. " +
	"The 'reasoning' is a string. The 'plan' is an array of action strings."

const expertSystemPrompt = "You are the authoritative expert moderator for a live chat stream. " +
	"You will review a Student agent's proposed action plan. " +
	"You will be given the user's state (their history) and the current comment. " +
	"You must decide if the Student's plan is appropriate. " +
	"You MUST respond with valid JSON only, with these exact keys: verdict, reasoning, plan. " +
	"If you agree, set verdict to \"agree\" and reasoning and plan to null. " +
	"If you disagree, set verdict to \"disagree\" and provide your own reasoning " +
	"and plan (an array of action strings). " +
	"Actions can include: " + actionVocabulary + "."

// strictRetryInstruction is appended on the second attempt after a schema
// violation.
const strictRetryInstruction = "Your previous response did not match the required JSON schema. " +
	"Respond with ONLY a single JSON object containing exactly the required keys. " +
	"No prose, no markdown fences, no extra keys."

// stateJSON renders the user state for prompts. The fingerprint invariant
// holds here too: the identity key is not a field of UserState.
func stateJSON(st state.UserState) string {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// formatNeighbors renders retrieved cases as worked examples.
func formatNeighbors(neighbors []memory.Result) string {
	if len(neighbors) == 0 {
		return "No similar cases found."
	}
	var b strings.Builder
	for _, n := range neighbors {
		fmt.Fprintf(&b, "Example Case:\n")
		fmt.Fprintf(&b, "  Situation: %s\n", n.Fingerprint)
		fmt.Fprintf(&b, "  Reasoning: %s\n", n.Reasoning)
		fmt.Fprintf(&b, "  Action Plan: %s\n", n.Plan)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func studentUserPrompt(st state.UserState, ev events.Event, neighbors []memory.Result) string {
	return fmt.Sprintf(
		"User State (history and context):\n%s\n\n"+
			"Current Comment: %s\n\n"+
			"Similar Past Cases (examples to learn from):\n%s\n\n"+
			"Respond with JSON only (no other text):\n"+
			"{\n"+
			"  \"reasoning\": \"your reasoning here\",\n"+
			"  \"plan\": [\"action1\", \"action2\"]\n"+
			"}",
		stateJSON(st), ev.Comment, formatNeighbors(neighbors))
}

func expertUserPrompt(st state.UserState, ev events.Event, proposed plan.Plan) string {
	return fmt.Sprintf(
		"User State (history and context):\n%s\n\n"+
			"Current Comment: %s\n\n"+
			"Student's Proposed Plan: %s\n\n"+
			"Do you agree with the Student's plan? Respond with JSON only (no other text):\n"+
			"If you AGREE:\n"+
			"{\n"+
			"  \"verdict\": \"agree\",\n"+
			"  \"reasoning\": null,\n"+
			"  \"plan\": null\n"+
			"}\n\n"+
			"If you DISAGREE:\n"+
			"{\n"+
			"  \"verdict\": \"disagree\",\n"+
			"  \"reasoning\": \"your reasoning here\",\n"+
			"  \"plan\": [\"action1\", \"action2\"]\n"+
			"}",
		stateJSON(st), ev.Comment, proposed.Canonical())
}
