package coord

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// ID prefix constants for different entity types.
const (
	PrefixRun  = "run"
	PrefixCall = "call"
)

// NewSessionID returns a fresh session identifier. Sessions group every
// record written by a call tree, so the ID must be unique across hosts.
func NewSessionID() string {
	return uuid.NewString()
}

// NewRunID returns an identifier for one top-level execution.
func NewRunID() string { return generateID(PrefixRun) }

// NewCallID returns an identifier for one tool call.
func NewCallID() string { return generateID(PrefixCall) }

// generateID produces a unique identifier with the given prefix and embedded timestamp.
// Format: {prefix}_{YYYYMMDDTHHmmss}_{16 hex chars}  e.g. "run_20260208T150405_a1b2c3d4e5f6a7b8"
func generateID(prefix string) string {
	ts := time.Now().UTC().Format("20060102T150405")
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return prefix + "_" + ts + "_" + hex.EncodeToString(b)
}
