// Package runerr defines the closed error taxonomy used across the agent
// run loop, per the disposition table in spec.md §7.
package runerr

import "fmt"

// Kind classifies a run-time error for disposition purposes.
type Kind int

const (
	// UserInputDenied is a guard rejection (path or command policy).
	UserInputDenied Kind = iota
	// ToolExecution is a non-zero exit or timeout from the executor.
	ToolExecution
	// TransportTransient is a retryable chat-transport failure (5xx, network).
	TransportTransient
	// BackendRateLimited signals the LLM backend asked for a retry.
	BackendRateLimited
	// BackendFatal signals a non-retryable LLM backend failure.
	BackendFatal
	// Aborted marks a run ended by abort().
	Aborted
	// Internal marks an unexpected error inside the orchestrator itself.
	Internal
)

func (k Kind) String() string {
	switch k {
	case UserInputDenied:
		return "UserInputDenied"
	case ToolExecution:
		return "ToolExecution"
	case TransportTransient:
		return "TransportTransient"
	case BackendRateLimited:
		return "BackendRateLimited"
	case BackendFatal:
		return "BackendFatal"
	case Aborted:
		return "Aborted"
	case Internal:
		return "Internal"
	default:
		return "Unknown"
	}
}

// Error carries a Kind alongside the wrapped cause. Never leaked to end
// users as a stack trace — callers type-switch on Kind to pick a
// disposition and render a short, actionable message instead.
type Error struct {
	Kind    Kind
	Channel string
	Cause   error
}

func (e *Error) Error() string {
	if e.Channel != "" {
		return fmt.Sprintf("%s [channel=%s]: %v", e.Kind, e.Channel, e.Cause)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// New wraps cause with kind and an optional channel for logging context.
func New(kind Kind, channel string, cause error) *Error {
	return &Error{Kind: kind, Channel: channel, Cause: cause}
}

// AsError extracts a *Error from err, if any.
func AsError(err error) (*Error, bool) {
	re, ok := err.(*Error)
	return re, ok
}
