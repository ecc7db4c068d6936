// Package dialogue defines how the town asks an external generator (usually
// an LLM) for a line of conversation, and provides an offline generator for
// running without one.
package dialogue

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
)

// ErrEmptyReply is returned by generators that produced nothing usable.
var ErrEmptyReply = goerr.New("empty dialogue reply")

// Tone classifies how a conversation went. It drives the relationship
// change applied to both participants.
type Tone uint8

const (
	ToneNeutral Tone = iota
	ToneFriendly
	ToneTense
)

var toneNames = [...]string{"neutral", "friendly", "tense"}

func (t Tone) String() string {
	if int(t) < len(toneNames) {
		return toneNames[t]
	}
	return "unknown"
}

// Participant is one side of a conversation as seen by the generator.
type Participant struct {
	Name        string
	Personality string
	Memories    []string // Most relevant first
}

// Request asks for the opening line the speaker says to the listener.
type Request struct {
	Tick         uint64
	Speaker      Participant
	Listener     Participant
	Location     string  // Building type, or "outside"
	Relationship float64 // Speaker's sentiment towards the listener, -1 to 1
}

// Reply is a generated line of dialogue.
type Reply struct {
	Line string
	Tone Tone
}

// Generator produces dialogue. Implementations must honor ctx cancellation;
// the engine abandons calls that run past their deadline.
type Generator interface {
	Converse(ctx context.Context, req Request) (Reply, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, req Request) (Reply, error)

// Converse calls f.
func (f GeneratorFunc) Converse(ctx context.Context, req Request) (Reply, error) {
	return f(ctx, req)
}
