package mcp

import "errors"

var (
	// ErrAlreadyServing is returned when Serve is called on a server
	// that has already left the idle state.
	ErrAlreadyServing = errors.New("mcp: server already started")
)
