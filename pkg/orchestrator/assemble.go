package orchestrator

import (
	"context"
	"regexp"
	"strings"

	"github.com/kompanion-dev/kompanion/pkg/brain"
	"github.com/kompanion-dev/kompanion/pkg/chat"
)

var thinkRE = regexp.MustCompile(`(?s)<think>(.*?)</think>`)

// ExtractReasoning separates a delimited reasoning trace from the
// visible answer. Text without markers is returned unchanged with an
// empty trace, which makes the extraction idempotent.
func ExtractReasoning(text string) (reasoning, visible string) {
	if text == "" {
		return "", ""
	}
	m := thinkRE.FindStringSubmatchIndex(text)
	if m == nil {
		return "", text
	}
	reasoning = strings.TrimSpace(text[m[2]:m[3]])
	visible = strings.TrimSpace(text[:m[0]] + text[m[1]:])
	return reasoning, visible
}

// suppressFragment reports whether a streamed fragment is raw
// tool-call syntax that must never be shown, even partially: a complete
// JSON object carrying an "arguments" key, bare or inside a JSON code
// fence.
func suppressFragment(fragment string) bool {
	s := strings.TrimSpace(fragment)
	if s == "" {
		return false
	}
	if strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") && strings.Contains(s, `"arguments"`) {
		return true
	}
	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "```json") || strings.HasPrefix(lower, "``` json") {
		return strings.Contains(s, `"arguments"`)
	}
	return false
}

const (
	thinkOpen  = "<think>"
	thinkClose = "</think>"
)

// thinkFilter withholds reasoning-delimited text from a fragment
// stream. Tags may arrive split across fragment boundaries, so a
// possible partial tag is held back until the next fragment decides it.
type thinkFilter struct {
	inThink bool
	pending string
}

// filter returns the displayable part of one fragment, possibly empty.
func (f *thinkFilter) filter(fragment string) string {
	s := f.pending + fragment
	f.pending = ""

	var out strings.Builder
	for s != "" {
		if f.inThink {
			i := strings.Index(s, thinkClose)
			if i < 0 {
				// Reasoning text is dropped; only a possible partial
				// closing tag is kept for the next fragment.
				if n := partialTagLen(s, thinkClose); n > 0 {
					f.pending = s[len(s)-n:]
				}
				return out.String()
			}
			s = s[i+len(thinkClose):]
			f.inThink = false
			continue
		}

		i := strings.Index(s, thinkOpen)
		if i < 0 {
			if n := partialTagLen(s, thinkOpen); n > 0 {
				out.WriteString(s[:len(s)-n])
				f.pending = s[len(s)-n:]
			} else {
				out.WriteString(s)
			}
			return out.String()
		}
		out.WriteString(s[:i])
		s = s[i+len(thinkOpen):]
		f.inThink = true
	}
	return out.String()
}

// flush returns held-back text that turned out not to be a tag. Text
// held inside an unclosed reasoning span stays suppressed.
func (f *thinkFilter) flush() string {
	if f.inThink {
		f.pending = ""
		return ""
	}
	out := f.pending
	f.pending = ""
	return out
}

// partialTagLen returns the length of the longest suffix of s that is
// a proper prefix of tag.
func partialTagLen(s, tag string) int {
	max := len(tag) - 1
	if max > len(s) {
		max = len(s)
	}
	for n := max; n > 0; n-- {
		if strings.HasPrefix(tag, s[len(s)-n:]) {
			return n
		}
	}
	return 0
}

// assemble drains a fragment stream, forwarding unsuppressed fragments
// as content events and returning the concatenated text. Reasoning
// spans are withheld from content events but kept in the returned text
// so the terminal event can carry them separately. A fragment error
// ends assembly with whatever arrived before it; a writer error stops
// the stream consumption entirely.
func assemble(ctx context.Context, ch <-chan brain.Fragment, w EventWriter) (string, error) {
	var b strings.Builder
	var think thinkFilter
	for frag := range ch {
		if frag.Err != nil {
			// Partial output is still useful; the terminal event
			// reports what was assembled so far.
			break
		}
		if suppressFragment(frag.Content) {
			continue
		}
		b.WriteString(frag.Content)
		visible := think.filter(frag.Content)
		if visible == "" {
			continue
		}
		if err := w.WriteEvent(ctx, chat.ContentEvent(visible)); err != nil {
			return b.String(), err
		}
	}
	if tail := think.flush(); tail != "" {
		if err := w.WriteEvent(ctx, chat.ContentEvent(tail)); err != nil {
			return b.String(), err
		}
	}
	return b.String(), nil
}
