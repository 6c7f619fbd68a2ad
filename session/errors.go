package session

import "fmt"

// Kind classifies a session-level error. Every error the engine surfaces
// to a caller or uses to drive a state transition is one of these kinds.
type Kind int

const (
	KindConnectError Kind = iota
	KindAuthError
	KindIntegrityError
	KindFramingError
	KindResponseTimeout
	KindRefreshFailed
	KindHeartbeatTimeout
	KindNotConnected
)

func (k Kind) String() string {
	switch k {
	case KindConnectError:
		return "ConnectError"
	case KindAuthError:
		return "AuthError"
	case KindIntegrityError:
		return "IntegrityError"
	case KindFramingError:
		return "FramingError"
	case KindResponseTimeout:
		return "ResponseTimeout"
	case KindRefreshFailed:
		return "RefreshFailed"
	case KindHeartbeatTimeout:
		return "HeartbeatTimeout"
	case KindNotConnected:
		return "NotConnected"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// Error is the single error type the session engine produces. It wraps
// an optional underlying cause and records whether the condition is one
// the background loop will retry on its own.
type Error struct {
	Kind      Kind
	Message   string
	Err       error
	Retryable bool
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is supports errors.Is(err, &Error{Kind: K}) style comparisons that
// only care about the kind.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return other.Kind == e.Kind
}

func newError(kind Kind, retryable bool, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause, Retryable: retryable}
}

func NewConnectError(message string, cause error) *Error {
	return newError(KindConnectError, true, message, cause)
}

func NewAuthError(message string, cause error) *Error {
	return newError(KindAuthError, false, message, cause)
}

func NewIntegrityError(message string, cause error) *Error {
	return newError(KindIntegrityError, true, message, cause)
}

func NewFramingError(message string, cause error) *Error {
	return newError(KindFramingError, true, message, cause)
}

func NewResponseTimeout(message string) *Error {
	return newError(KindResponseTimeout, true, message, nil)
}

func NewRefreshFailed(message string) *Error {
	return newError(KindRefreshFailed, true, message, nil)
}

func NewHeartbeatTimeout(message string) *Error {
	return newError(KindHeartbeatTimeout, true, message, nil)
}

func NewNotConnected() *Error {
	return newError(KindNotConnected, false, "session is not in the Ready state", nil)
}

// IsKind reports whether err is a *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	serr, ok := err.(*Error)
	if !ok {
		return false
	}
	return serr.Kind == kind
}
