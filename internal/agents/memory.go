// Agent memory log — a bounded record of recent experiences, used as
// dialogue context.
package agents

import "strings"

const MaxMemories = 50

// Memory records one experience.
type Memory struct {
	Tick    uint64  `json:"tick"`
	Content string  `json:"content"`
	Related AgentID `json:"related,omitempty"` // The other agent involved, if any
}

// MemoryLog holds at most MaxMemories entries, oldest first.
type MemoryLog []Memory

// AddMemory appends a memory to the agent's log. When full, the oldest
// memory is dropped to make room.
func AddMemory(a *Agent, tick uint64, content string, related AgentID) {
	m := Memory{Tick: tick, Content: content, Related: related}

	if len(a.Memories) < MaxMemories {
		a.Memories = append(a.Memories, m)
		return
	}

	copy(a.Memories, a.Memories[1:])
	a.Memories[len(a.Memories)-1] = m
}

// RecentMemories returns up to count of the newest memories, newest first.
func RecentMemories(a *Agent, count int) []Memory {
	if count > len(a.Memories) {
		count = len(a.Memories)
	}
	out := make([]Memory, 0, count)
	for i := len(a.Memories) - 1; i >= 0 && len(out) < count; i-- {
		out = append(out, a.Memories[i])
	}
	return out
}

// MemoriesAbout returns up to count of the newest memories that involve the
// other agent, either by relation or by mentioning their name, newest first.
func MemoriesAbout(a *Agent, other AgentID, name string, count int) []Memory {
	var out []Memory
	lower := strings.ToLower(name)
	for i := len(a.Memories) - 1; i >= 0 && len(out) < count; i-- {
		m := a.Memories[i]
		if (m.Related != "" && m.Related == other) || (lower != "" && strings.Contains(strings.ToLower(m.Content), lower)) {
			out = append(out, m)
		}
	}
	return out
}
