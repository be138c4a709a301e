package chat

// EventKind classifies a stream event.
type EventKind int

const (
	// EventStatus is a progress notice (e.g. a tool being executed).
	EventStatus EventKind = iota

	// EventContent is an incremental fragment of the answer.
	EventContent

	// EventFinal carries the complete answer and ends the stream.
	EventFinal
)

// Event is one element of the stream delivered to the caller. Exactly
// one of Status or Message is set; Done marks the terminal event.
// Every invocation produces exactly one terminal event.
type Event struct {
	Status  string        `json:"status,omitempty"`
	Message *EventMessage `json:"message,omitempty"`
	Done    bool          `json:"done,omitempty"`
}

// EventMessage holds answer content. Reasoning carries a separated
// reasoning trace, only ever set on the terminal event.
type EventMessage struct {
	Content   string `json:"content"`
	Reasoning string `json:"reasoning,omitempty"`
}

// StatusEvent returns a progress event.
func StatusEvent(text string) Event {
	return Event{Status: text}
}

// ContentEvent returns an incremental content event.
func ContentEvent(fragment string) Event {
	return Event{Message: &EventMessage{Content: fragment}}
}

// FinalEvent returns the terminal event with the visible answer and an
// optional reasoning trace.
func FinalEvent(content, reasoning string) Event {
	return Event{
		Message: &EventMessage{Content: content, Reasoning: reasoning},
		Done:    true,
	}
}

// Kind reports what kind of event this is.
func (e Event) Kind() EventKind {
	switch {
	case e.Done:
		return EventFinal
	case e.Message != nil:
		return EventContent
	default:
		return EventStatus
	}
}

// Terminal reports whether this event ends the stream.
func (e Event) Terminal() bool {
	return e.Done
}
