// Package orchestrator implements the tool-use control loop: it
// alternates model calls and tool executions, intercepts tool calls the
// model embedded as plain text, bounds iteration, and assembles the
// final answer so raw action-protocol syntax never reaches the user.
package orchestrator
