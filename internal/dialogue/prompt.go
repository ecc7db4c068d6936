// Prompt construction for LLM-backed generators.
package dialogue

import (
	"fmt"
	"strings"
)

// BuildPrompt returns the system and user prompts for a chat-completion
// style model. The model is asked for a brief opener the speaker says to
// the listener, in character. Providers plugged in through
// town.WithDialogueFactory build their chat messages from it.
func BuildPrompt(req Request) (system, user string) {
	system = fmt.Sprintf("You are %s, a %s resident of a small town. Be conversational and natural. "+
		"Never mention that you are simulated.", req.Speaker.Name, req.Speaker.Personality)

	var b strings.Builder
	fmt.Fprintf(&b, "You are %s talking to %s.\n", req.Speaker.Name, req.Listener.Name)
	fmt.Fprintf(&b, "Your personality: %s\n", req.Speaker.Personality)
	fmt.Fprintf(&b, "Their personality: %s\n", req.Listener.Personality)
	fmt.Fprintf(&b, "Current location: %s\n", req.Location)
	fmt.Fprintf(&b, "Your relationship: %s\n\n", describeRelationship(req.Relationship))

	if len(req.Speaker.Memories) > 0 {
		b.WriteString("Recent memories:\n")
		for _, m := range req.Speaker.Memories {
			fmt.Fprintf(&b, "- %s\n", m)
		}
		b.WriteString("\n")
	}

	b.WriteString("Start a natural conversation. Keep it brief (1-2 sentences).")
	return system, b.String()
}

func describeRelationship(score float64) string {
	switch {
	case score >= 0.5:
		return "close friends"
	case score > 0:
		return "friendly"
	case score <= -0.3:
		return "strained"
	default:
		return "neutral"
	}
}

// CleanLine trims model output down to a single printable line.
func CleanLine(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "\"")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	return s
}
