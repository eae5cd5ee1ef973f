package controlplane

import "errors"

// Sentinel errors for control plane operations.
var (
	// ErrAgentStopped rejects mutating intake while the agent is stopped.
	ErrAgentStopped = errors.New("agent is not running")
	// ErrInvalidRequest marks request payloads that fail validation.
	ErrInvalidRequest = errors.New("invalid request")
)
