package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kompanion-dev/kompanion/pkg/brain"
	"github.com/kompanion-dev/kompanion/pkg/chat"
	"github.com/kompanion-dev/kompanion/pkg/observability"
	"github.com/kompanion-dev/kompanion/pkg/tools"
)

// Canned responses for degraded paths.
const (
	emptyResponseText = "I wasn't able to generate a response. Please try rephrasing your question."

	processingText = "I'm processing the data from your cluster. One moment..."

	apologyText = "I tried to fetch that information for you but encountered a formatting issue. " +
		"Could you please specify which pods or namespace you're interested in? " +
		"You can also ask again and I'll answer from general knowledge."
)

// RunStep processes one user turn to completion, writing status,
// content, and exactly one terminal final event to w. Prior turns are
// copied; the caller's history is never mutated. Tool calls within one
// round execute sequentially in the order the model requested them,
// because later calls may depend on earlier results.
func (o *Orchestrator) RunStep(ctx context.Context, skill, query string, history []chat.Turn, w EventWriter) error {
	transcript := o.seedTranscript(ctx, query, history)

	// Fast path: a literal query shape selects the tool directly,
	// skipping the model for the decision but not for presentation.
	if !o.cfg.DisableFastPath {
		if name, args, ok := o.gate.MatchFastPath(query); ok && o.registry.Has(name) {
			if err := w.WriteEvent(ctx, chat.StatusEvent(fmt.Sprintf("Executing %s...", name))); err != nil {
				return err
			}
			res := o.registry.Dispatch(ctx, name, args)
			observability.LoopRounds.Observe(1)
			return o.summarizeResult(ctx, skill, query, "", name, res, w)
		}
	}

	// No-tool path: answer from model knowledge with one streamed call.
	if !o.gate.NeedsTools(query) {
		observability.LoopRounds.Observe(1)
		return o.streamFinal(ctx, skill, query, transcript, w)
	}

	specs := o.registry.Specs()
	manifestApplied := false

	for round := 0; round < o.cfg.maxRounds(); round++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		msg, err := o.complete(ctx, skill, transcript, specs)
		if err != nil {
			// Backend unavailability degrades to a single textual
			// error turn; never an unhandled fault.
			observability.LoopRounds.Observe(float64(round + 1))
			return o.finish(ctx, w, query, "Error communicating with the model backend: "+err.Error(), "")
		}

		// Structured tool calls: execute all, in order, and loop.
		if len(msg.ToolCalls) > 0 {
			transcript = append(transcript, chat.Turn{
				Role:      chat.RoleAssistant,
				Content:   msg.Content,
				ToolCalls: msg.ToolCalls,
			})
			for _, tc := range msg.ToolCalls {
				if err := w.WriteEvent(ctx, chat.StatusEvent(fmt.Sprintf("Executing %s...", tc.Function.Name))); err != nil {
					return err
				}
				res := o.registry.Dispatch(ctx, tc.Function.Name, tc.Function.Arguments)
				if tc.Function.Name == o.cfg.applyTool() {
					manifestApplied = true
				}
				transcript = append(transcript, chat.Turn{
					Role:    chat.RoleTool,
					Name:    tc.Function.Name,
					Content: res.JSON(),
				})
			}
			continue
		}

		content := msg.Content

		// Fallback: a tool call embedded as JSON text. Only attempted
		// when no structured calls arrived, so the same logical
		// request is never executed twice in one round.
		if call, ok := o.extractor.Extract(content); ok {
			observability.FallbackExtractionsTotal.Inc()
			if err := w.WriteEvent(ctx, chat.StatusEvent(fmt.Sprintf("Intercepted tool call: %s...", call.Name))); err != nil {
				return err
			}
			res := o.registry.Dispatch(ctx, call.Name, call.Arguments)
			observability.LoopRounds.Observe(float64(round + 1))
			return o.summarizeResult(ctx, skill, query, content, call.Name, res, w)
		}

		if content != "" {
			observability.LoopRounds.Observe(float64(round + 1))

			// Unresolved call syntax the extractor could not map to a
			// registered tool is never surfaced verbatim.
			if strings.Contains(content, `"name"`) && strings.Contains(content, `"arguments"`) {
				return o.finish(ctx, w, query, apologyText, "")
			}

			// A declarative document in final text that never went
			// through a tool call is an implicit apply-intent.
			if doc, ok := detectManifest(content); ok && !manifestApplied && o.registry.Has(o.cfg.applyTool()) {
				if o.cfg.AutoApplyManifests {
					if err := w.WriteEvent(ctx, chat.StatusEvent("Applying generated manifest...")); err != nil {
						return err
					}
					res := o.registry.Dispatch(ctx, o.cfg.applyTool(), map[string]any{"manifest": doc})
					return o.summarizeResult(ctx, skill, query, content, o.cfg.applyTool(), res, w)
				}
				if err := w.WriteEvent(ctx, chat.StatusEvent("A manifest was generated but not applied. Review it and apply explicitly.")); err != nil {
					return err
				}
			}

			reasoning, visible := ExtractReasoning(content)
			return o.finish(ctx, w, query, visible, reasoning)
		}

		// Empty response: after tool results a streamed retry usually
		// produces the answer; on the very first round there is
		// nothing to retry against.
		if round > 0 {
			observability.LoopRounds.Observe(float64(round + 2))
			return o.streamFinal(ctx, skill, query, transcript, w)
		}
		observability.LoopRounds.Observe(1)
		return o.finish(ctx, w, query, emptyResponseText, "")
	}

	// Iteration exhausted: not an error. One last best-effort streamed
	// call with tools disabled guarantees a terminal final event.
	observability.LoopRounds.Observe(float64(o.cfg.maxRounds() + 1))
	return o.streamFinal(ctx, skill, query, transcript, w)
}

// seedTranscript builds the private working transcript: truncated prior
// turns plus the RAG-augmented user turn.
func (o *Orchestrator) seedTranscript(ctx context.Context, query string, history []chat.Turn) []chat.Turn {
	if max := o.cfg.maxHistoryTurns(); len(history) > max {
		history = history[len(history)-max:]
	}

	transcript := make([]chat.Turn, len(history), len(history)+1)
	copy(transcript, history)

	content := "User Query: " + query
	if o.memory != nil {
		ragCtx, err := o.memory.RetrieveContext(ctx, query)
		if err != nil {
			slog.Warn("memory retrieval failed", "error", err.Error())
		} else if ragCtx != "" {
			content = "Relevant Context from Documentation/History:\n" + ragCtx + "\n\n" + content
		}
	}

	return append(transcript, chat.Turn{Role: chat.RoleUser, Content: content})
}

// complete wraps the non-streaming session call with metrics.
func (o *Orchestrator) complete(ctx context.Context, skill string, turns []chat.Turn, specs []chat.ToolSpec) (*brain.Message, error) {
	start := time.Now()
	msg, err := o.session.Complete(ctx, skill, turns, specs)
	observability.BrainLatency.WithLabelValues(skill, "complete").Observe(time.Since(start).Seconds())
	if err != nil {
		observability.BrainRequestsTotal.WithLabelValues(skill, "complete", "error").Inc()
		return nil, err
	}
	observability.BrainRequestsTotal.WithLabelValues(skill, "complete", "success").Inc()
	return msg, nil
}

// streamFinal issues one streaming call with tools disabled, assembles
// the fragments, and emits the terminal event.
func (o *Orchestrator) streamFinal(ctx context.Context, skill, query string, transcript []chat.Turn, w EventWriter) error {
	start := time.Now()
	ch, err := o.session.Stream(ctx, skill, transcript)
	if err != nil {
		observability.BrainRequestsTotal.WithLabelValues(skill, "stream", "error").Inc()
		observability.BrainLatency.WithLabelValues(skill, "stream").Observe(time.Since(start).Seconds())
		return o.finish(ctx, w, query, "Error communicating with the model backend: "+err.Error(), "")
	}

	text, werr := assemble(ctx, ch, w)
	observability.BrainRequestsTotal.WithLabelValues(skill, "stream", "success").Inc()
	observability.BrainLatency.WithLabelValues(skill, "stream").Observe(time.Since(start).Seconds())
	if werr != nil {
		return werr
	}

	reasoning, visible := ExtractReasoning(text)
	if visible == "" {
		visible = processingText
	}
	return o.finish(ctx, w, query, visible, reasoning)
}

// summarizeResult issues one streaming call whose prompt is only the
// tool result, discarding the rest of the transcript. This bounds the
// blast radius of a malformed model turn: whatever state led here, the
// summarization sees just the result it must describe.
func (o *Orchestrator) summarizeResult(ctx context.Context, skill, query, assistantContent, toolName string, res tools.Result, w EventWriter) error {
	prompt := fmt.Sprintf(
		"The tool '%s' returned:\n%s\n\nSummarize this for me in a natural, helpful way. Skip any raw technical details.",
		toolName, res.JSON(),
	)

	summary := make([]chat.Turn, 0, 2)
	if assistantContent != "" {
		summary = append(summary, chat.Turn{Role: chat.RoleAssistant, Content: assistantContent})
	}
	summary = append(summary, chat.Turn{Role: chat.RoleUser, Content: prompt})

	return o.streamFinal(ctx, skill, query, summary, w)
}

// finish emits the terminal event and records the interaction in
// memory, best-effort.
func (o *Orchestrator) finish(ctx context.Context, w EventWriter, query, visible, reasoning string) error {
	if err := w.WriteEvent(ctx, chat.FinalEvent(visible, reasoning)); err != nil {
		return err
	}
	if o.memory != nil && visible != "" {
		if err := o.memory.StoreInteraction(ctx, query, visible); err != nil {
			slog.Warn("memory store failed", "error", err.Error())
		}
	}
	return nil
}
