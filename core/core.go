package core

import "github.com/google/uuid"

// NewID generates a new unique identifier for plans, runs and log entries.
//
// This function creates a UUID-based unique identifier that can be used
// for tracking and correlation throughout the engine.
//
// Returns a string representation of a new UUID.
func NewID() string { return uuid.NewString() }
