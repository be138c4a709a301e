// Package mcp connects to Model Context Protocol servers and surfaces
// their tools through the shared tool registry. Discovered tools carry
// the server's own JSON schema and dispatch back to the providing
// session.
package mcp
