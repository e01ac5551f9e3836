package domain

import "context"

// Adapter is the interface every {provider, input-kind} extractor
// implements. CanHandle must be pure: no I/O, no side effects, same
// answer for the same input.
type Adapter interface {
	// ID is globally unique across the registry; registering the same
	// ID twice is a hard error.
	ID() string
	Version() string
	CanHandle(in Input) bool
	Parse(ctx context.Context, in Input) (*Conversation, error)
}

// ParseResult is what the registry returns on a successful dispatch.
type ParseResult struct {
	Conversation   *Conversation
	AdapterID      string
	AdapterVersion string
}
