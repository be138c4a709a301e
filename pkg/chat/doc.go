// Package chat defines the conversation data model shared across the
// gateway: transcript turns, tool call wire shapes, tool schemas, and
// the stream events delivered to the presentation layer.
package chat
