package respond

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gyaneshwarpardhi/procrastihator/internal/packet"
	"github.com/gyaneshwarpardhi/procrastihator/internal/session"
)

const systemPromptTemplate = `You are %s.
You watch a user through their webcam while they are supposed to be working.
When they slack off you scold them out loud, in character.
Rules:
- Reply with one or two short spoken sentences, no lists, no stage directions.
- Refer to what they are doing right now, and to repeat offenses when the memory shows any.
- Never mention cameras, detectors, APIs, models, or being an AI.`

// situations turns detection kinds into plain descriptions for the model.
var situations = map[string]string{
	packet.PhoneDetected: "The user picked up their phone instead of working.",
	packet.Sleeping:      "The user has fallen asleep at the desk.",
	packet.Absent:        "The user left the desk.",
	packet.GazeAway:      "The user keeps looking away from the screen.",
}

// SystemPrompt injects the persona into the base instructions.
func SystemPrompt(p session.Persona) string {
	return fmt.Sprintf(systemPromptTemplate, p.Descriptor())
}

// ScoldContext describes the detection that triggered the reaction.
func ScoldContext(event string, data map[string]any, memory string) string {
	var b strings.Builder
	b.WriteString("[Current situation]\n")
	fmt.Fprintf(&b, "- Event: %s\n", event)
	if s, ok := situations[event]; ok {
		fmt.Fprintf(&b, "- Meaning: %s\n", s)
	}
	if details := formatData(data); details != "" {
		fmt.Fprintf(&b, "- Details: %s\n", details)
	}
	b.WriteString("\n[Memory]\n")
	b.WriteString(memory)
	return b.String()
}

// ExcuseContext asks the model to judge something the user said back.
func ExcuseContext(transcript, memory string) string {
	return fmt.Sprintf(`[New interaction]
- The user is talking back or making an excuse.
- User said: %q

[Memory]
%s

Decide whether the excuse is valid. If it is not, scold them harder.`, transcript, memory)
}

// FeedbackPrompts builds the system and user prompts for end-of-session feedback.
func FeedbackPrompts(p session.Persona, stats session.StatsSnapshot) (system, user string) {
	system = fmt.Sprintf(`You are writing a short results feedback message in the voice of this character: %s.
Language: English.
Length: 2 to 4 sentences.
Goal: give actionable feedback based on the stats. Be firm and motivating.
Do not mention APIs, models, or being an AI. Do not use bullet points.`, p.Descriptor())

	var b strings.Builder
	b.WriteString("Session summary:\n")
	fmt.Fprintf(&b, "- duration_seconds: %.0f\n", stats.DurationSeconds)
	for _, kind := range packet.DetectionKinds {
		fmt.Fprintf(&b, "- %s_count: %d\n", strings.ToLower(kind), stats.Counts[kind])
	}
	for _, kind := range sortedKeys(stats.Counts) {
		if _, known := situations[kind]; !known {
			fmt.Fprintf(&b, "- %s_count: %d\n", strings.ToLower(kind), stats.Counts[kind])
		}
	}
	b.WriteString("\nWrite the feedback now.")
	return system, b.String()
}

func formatData(data map[string]any) string {
	keys := sortedKeys(data)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, data[k]))
	}
	return strings.Join(parts, ", ")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
