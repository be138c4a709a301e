package tools

import (
	"context"
	"encoding/json"

	"github.com/kompanion-dev/kompanion/pkg/chat"
)

// Dispatcher executes a tool with the given arguments. Missing argument
// keys are forwarded as-is; providers supply their own defaults.
type Dispatcher func(ctx context.Context, args map[string]any) (any, error)

// Param describes one tool parameter for the model-facing schema.
type Param struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// Tool is a named, schema-described external action the model may
// request. Tools are immutable once registered.
type Tool struct {
	Name        string
	Description string

	// Params and Required describe the parameter schema advertised to
	// the model. Required is advisory: dispatch does not enforce it.
	Params   map[string]Param
	Required []string

	// RawSchema, when set, is used verbatim as the JSON parameter
	// schema instead of Params/Required. Used for tools discovered
	// from remote servers that ship their own schema.
	RawSchema json.RawMessage

	// Dispatch invokes the underlying provider.
	Dispatch Dispatcher
}

// Spec renders the tool definition in the shape the model backend
// consumes.
func (t Tool) Spec() chat.ToolSpec {
	params := t.RawSchema
	if params == nil {
		schema := map[string]any{
			"type":       "object",
			"properties": t.Params,
		}
		if t.Params == nil {
			schema["properties"] = map[string]Param{}
		}
		if len(t.Required) > 0 {
			schema["required"] = t.Required
		}
		// Marshaling a map of simple types cannot fail.
		params, _ = json.Marshal(schema)
	}

	return chat.ToolSpec{
		Type: "function",
		Function: chat.FunctionSpec{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  params,
		},
	}
}

// Result is the outcome of one dispatch: either a success payload or an
// error message, never both.
type Result struct {
	Value any
	Err   string
}

// IsError reports whether the result carries an error.
func (r Result) IsError() bool {
	return r.Err != ""
}

// JSON serializes the result for a tool-role transcript turn. Errors
// render as {"error": "..."} so the model can reason about the failure.
func (r Result) JSON() string {
	if r.IsError() {
		data, _ := json.Marshal(map[string]string{"error": r.Err})
		return string(data)
	}
	data, err := json.Marshal(r.Value)
	if err != nil {
		data, _ = json.Marshal(map[string]string{"error": "unserializable tool result: " + err.Error()})
	}
	return string(data)
}

// ErrorResult returns a Result carrying the given error message.
func ErrorResult(msg string) Result {
	return Result{Err: msg}
}
