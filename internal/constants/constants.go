// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Event channel constants
const (
	// EventChannelBuffer is the buffer size for job event listeners
	EventChannelBuffer = 100
)

// Run listing constants
const (
	// DefaultRunListLimit is the number of journal runs returned when no limit is given
	DefaultRunListLimit = 20

	// MaxRunListLimit caps the limit query parameter
	MaxRunListLimit = 500
)

// Server constants
const (
	// ShutdownTimeout bounds the graceful shutdown of the HTTP server
	ShutdownTimeout = 10 * time.Second

	// MaxRequestBodySize limits JSON request bodies (1MB)
	MaxRequestBodySize = 1 << 20
)

// Journal constants
const (
	// JournalPingTimeout bounds the initial connectivity check
	JournalPingTimeout = 10 * time.Second
)
