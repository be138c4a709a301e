// Package brain abstracts the language-model backend. The orchestrator
// talks to a Session only; the concrete adapter normalizes whatever
// shapes its backend returns into the canonical Message here, so the
// control loop never sees backend-specific ambiguity.
package brain

import (
	"context"

	"github.com/kompanion-dev/kompanion/pkg/chat"
)

// Message is the canonical result of a non-streaming model call.
type Message struct {
	// Content is the textual answer, possibly empty when the model
	// requested tools instead.
	Content string

	// ToolCalls are structured tool invocations in the order the
	// model emitted them.
	ToolCalls []chat.ToolCall
}

// Fragment is one element of a streamed response. The channel is
// closed by the adapter when the stream completes; Err is set on the
// last fragment if the stream failed mid-way.
type Fragment struct {
	Content string
	Err     error
}

// Session is the model backend. Streaming and tool calling are
// mutually exclusive for one request: Complete attaches tools and
// returns one message, Stream yields fragments and never returns
// structured tool calls. This drives the loop's non-streaming-then-
// streaming two-phase design.
//
// Implementations must be safe for concurrent use.
type Session interface {
	// Complete performs a non-streaming call. The backend may attach
	// zero or more structured tool calls when specs is non-empty.
	// specs may be nil.
	Complete(ctx context.Context, skill string, turns []chat.Turn, specs []chat.ToolSpec) (*Message, error)

	// Stream performs a streaming call with tools disabled. The
	// returned channel is closed when the stream ends.
	Stream(ctx context.Context, skill string, turns []chat.Turn) (<-chan Fragment, error)
}

// Skill binds a persona to a model and system prompt, resolved by the
// adapter per call.
type Skill struct {
	Model  string
	Prompt string
}
