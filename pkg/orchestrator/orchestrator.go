package orchestrator

import (
	"context"
	"fmt"

	"github.com/kompanion-dev/kompanion/pkg/brain"
	"github.com/kompanion-dev/kompanion/pkg/chat"
	"github.com/kompanion-dev/kompanion/pkg/tools"
)

// EventWriter receives the event stream for one invocation. The caller
// drives consumption: a writer error or a cancelled context halts
// further model and tool calls.
type EventWriter interface {
	WriteEvent(ctx context.Context, ev chat.Event) error
}

// Memory is the RAG provider consulted once per invocation. Both
// methods are best-effort from the loop's point of view.
type Memory interface {
	// RetrieveContext returns relevant past context for the query,
	// possibly empty.
	RetrieveContext(ctx context.Context, query string) (string, error)

	// StoreInteraction records a resolved query/answer pair.
	StoreInteraction(ctx context.Context, query, resolution string) error
}

// Config tunes the control loop.
type Config struct {
	// MaxRounds caps the number of non-streaming model calls per
	// invocation. Zero or negative means the default of 5. Exceeding
	// the cap is not an error: the loop degrades to one last streamed
	// call with tools disabled.
	MaxRounds int

	// MaxHistoryTurns truncates forwarded prior turns to the most
	// recent N. Zero or negative means the default of 40.
	MaxHistoryTurns int

	// DisableFastPath turns off the literal-pattern shortcut.
	DisableFastPath bool

	// AutoApplyManifests enables the implicit-apply safety net: a
	// declarative document detected in final text that was never
	// submitted through a tool call is applied via ApplyTool and the
	// result re-summarized. Off by default: silently executing a
	// mutating action inferred from free text is a trust decision the
	// operator must opt into.
	AutoApplyManifests bool

	// ApplyTool names the mutating tool used by the auto-apply net.
	// Defaults to "resources_apply".
	ApplyTool string
}

func (c Config) maxRounds() int {
	if c.MaxRounds <= 0 {
		return 5
	}
	return c.MaxRounds
}

func (c Config) maxHistoryTurns() int {
	if c.MaxHistoryTurns <= 0 {
		return 40
	}
	return c.MaxHistoryTurns
}

func (c Config) applyTool() string {
	if c.ApplyTool == "" {
		return "resources_apply"
	}
	return c.ApplyTool
}

// Orchestrator runs the tool-use control loop. The registry is shared
// and read-only; each invocation owns a private transcript copy.
type Orchestrator struct {
	session   brain.Session
	registry  *tools.Registry
	memory    Memory
	gate      *IntentGate
	extractor *Extractor
	cfg       Config
}

// New creates an Orchestrator. The session and registry must not be
// nil; memory may be nil for RAG-less operation.
func New(session brain.Session, registry *tools.Registry, memory Memory, cfg Config) (*Orchestrator, error) {
	if session == nil {
		return nil, fmt.Errorf("orchestrator: session must not be nil")
	}
	if registry == nil {
		return nil, fmt.Errorf("orchestrator: registry must not be nil")
	}
	return &Orchestrator{
		session:   session,
		registry:  registry,
		memory:    memory,
		gate:      NewIntentGate(),
		extractor: NewExtractor(registry),
		cfg:       cfg,
	}, nil
}
