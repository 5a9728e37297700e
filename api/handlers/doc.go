// Package handlers implements the HTTP and WebSocket handlers for the
// memflow search service.
package handlers
