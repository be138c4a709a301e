// Package transport provides HTTP-level middleware shared by the
// gateway's handlers: panic recovery, request ID propagation, and
// structured request logging.
package transport
