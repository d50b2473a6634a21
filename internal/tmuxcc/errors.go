package tmuxcc

import "fmt"

// ErrorKind classifies a CCError against the wire error taxonomy: every
// failure a connection can produce maps to exactly one of these, and the
// kind (not the message) is what callers branch on.
type ErrorKind int

const (
	// InvalidTarget means a -t target string did not parse.
	InvalidTarget ErrorKind = iota
	// EmptyCommand means a command line was empty or whitespace-only.
	EmptyCommand
	// UnknownCommand means the first word of a command line matched no verb.
	UnknownCommand
	// UnexpectedArgument means a flag or positional argument was malformed
	// for its verb (e.g. not a valid word, wrong arity).
	UnexpectedArgument
	// MissingFlagValue means a flag that takes a value was the last token.
	MissingFlagValue
	// InvalidNumber means a numeric argument failed to parse.
	InvalidNumber
	// NotFound means a resolved target does not exist in the host.
	NotFound
	// HostOperationFailed means the host rejected or failed an operation
	// (write, resize, split, spawn, ...) after the target resolved fine.
	HostOperationFailed
)

func (k ErrorKind) String() string {
	switch k {
	case InvalidTarget:
		return "InvalidTarget"
	case EmptyCommand:
		return "EmptyCommand"
	case UnknownCommand:
		return "UnknownCommand"
	case UnexpectedArgument:
		return "UnexpectedArgument"
	case MissingFlagValue:
		return "MissingFlagValue"
	case InvalidNumber:
		return "InvalidNumber"
	case NotFound:
		return "NotFound"
	case HostOperationFailed:
		return "HostOperationFailed"
	default:
		return "Unknown"
	}
}

// CCError is the error type returned by every component in this package
// that can fail in a way the %error guard block needs to report. Message
// is the exact text written into the guard block body.
type CCError struct {
	Kind    ErrorKind
	Message string
}

func (e *CCError) Error() string { return e.Message }

func newError(kind ErrorKind, format string, args ...any) *CCError {
	return &CCError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
