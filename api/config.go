// Package api provides the HTTP server for the assistant: the streaming
// chat endpoint, job polling, image generation, and the proactive session
// event stream.
package api

import "time"

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8080")
	ListenAddr string

	// KeepAliveInterval is the SSE comment ping interval for open streams.
	KeepAliveInterval time.Duration
}
