// Package tools defines the tool registry: a process-wide, read-only
// mapping from tool name to parameter schema and dispatch target.
//
// Dispatch is a total function: unknown names, dispatcher errors, and
// dispatcher panics all produce an error Result instead of a fault, so
// the control loop can feed failures back to the model as ordinary
// tool output.
package tools
