// Package shared contains the error taxonomy used across the engine.
package shared

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Sentinel errors for the SQL engine. Builder and translator errors are
// raised before any I/O happens; execution errors always carry the backend
// error in their chain.
var (
	// ErrEmptyParams indicates a builder was invoked with no columns or no
	// where-clause. Caller bug, never retried.
	ErrEmptyParams = errors.New("empty parameters")

	// ErrParamMissing indicates a template references an identifier absent
	// from the supplied parameter set.
	ErrParamMissing = errors.New("parameter missing")

	// ErrPoolClosed indicates an acquire was attempted after pool teardown.
	ErrPoolClosed = errors.New("pool closed")

	// ErrAcquireTimeout indicates the pool acquire deadline was exceeded.
	ErrAcquireTimeout = errors.New("pool acquire timeout")

	// ErrConnUnavailable indicates an operation was attempted without a live
	// connection (for example on an already closed session).
	ErrConnUnavailable = errors.New("connection unavailable")

	// ErrExecution indicates that the backend rejected a statement.
	ErrExecution = errors.New("execution failed")

	// ErrNotFound indicates that a requested row was not found.
	ErrNotFound = errors.New("not found")

	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = errors.New("operation timed out")
)

// Kind classifies an error for logging and caller-side handling.
type Kind int

const (
	// KindUnknown represents an unclassified error
	KindUnknown Kind = iota
	// KindEmptyParams represents builder calls with empty column/where sets
	KindEmptyParams
	// KindParamMissing represents unmapped template identifiers
	KindParamMissing
	// KindPoolClosed represents acquires after pool teardown
	KindPoolClosed
	// KindAcquireTimeout represents exceeded acquire deadlines
	KindAcquireTimeout
	// KindConnUnavailable represents operations without a live connection
	KindConnUnavailable
	// KindExecution represents statements rejected by the backend
	KindExecution
	// KindNotFound represents missing rows
	KindNotFound
	// KindTimeout represents timeouts
	KindTimeout
	// KindCanceled represents context cancellation
	KindCanceled
)

// String returns the string representation of the Kind.
func (k Kind) String() string {
	switch k {
	case KindEmptyParams:
		return "EmptyParams"
	case KindParamMissing:
		return "ParamMissing"
	case KindPoolClosed:
		return "PoolClosed"
	case KindAcquireTimeout:
		return "AcquireTimeout"
	case KindConnUnavailable:
		return "ConnUnavailable"
	case KindExecution:
		return "Execution"
	case KindNotFound:
		return "NotFound"
	case KindTimeout:
		return "Timeout"
	case KindCanceled:
		return "Canceled"
	default:
		return "Unknown"
	}
}

// kindPriorities defines the deterministic order for error classification.
// Cancellation and timeouts are checked before most domain sentinels so that
// a canceled acquire never masquerades as a pool failure; ErrAcquireTimeout
// wraps a deadline error and must win over the generic timeout kind.
var kindPriorities = []struct {
	kind Kind
	err  error
}{
	{KindCanceled, nil},
	{KindAcquireTimeout, ErrAcquireTimeout},
	{KindTimeout, ErrTimeout},
	{KindPoolClosed, ErrPoolClosed},
	{KindConnUnavailable, ErrConnUnavailable},
	{KindEmptyParams, ErrEmptyParams},
	{KindParamMissing, ErrParamMissing},
	{KindNotFound, ErrNotFound},
	{KindExecution, ErrExecution},
}

// KindOf returns the Kind of the given error by traversing its chain and
// checking against the known sentinels in priority order. Returns KindUnknown
// for unrecognized errors.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	for _, priority := range kindPriorities {
		switch priority.kind {
		case KindCanceled:
			if IsCanceled(err) {
				return KindCanceled
			}
		case KindTimeout:
			if IsTimeout(err) {
				return KindTimeout
			}
		default:
			if errors.Is(err, priority.err) {
				return priority.kind
			}
		}
	}
	return KindUnknown
}

// HasKind reports whether the given error has the specified kind.
func HasKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Wrap wraps an error with additional context.
// It returns a new error that formats as "context: err".
// If err is nil, Wrap returns nil.
func Wrap(err error, context string) error {
	if err == nil {
		return nil
	}
	if context == "" {
		return err
	}
	return fmt.Errorf("%s: %w", context, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// IsCanceled reports whether the error indicates a canceled context.
func IsCanceled(err error) bool {
	return err != nil && errors.Is(err, context.Canceled)
}

// IsTimeout reports whether the error indicates a timeout. It checks for
// context.DeadlineExceeded, net.Error timeouts, and ErrTimeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrTimeout) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsNotFound reports whether the error indicates a missing row.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsExecution reports whether the error came from the backend rejecting a
// statement.
func IsExecution(err error) bool {
	return errors.Is(err, ErrExecution)
}

// IsRetryable reports whether an error may be worth retrying by a caller.
// Builder, translator and pool-closed errors are caller bugs or final states;
// nothing inside the engine retries on its own behalf.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindTimeout, KindAcquireTimeout:
		return true
	default:
		return false
	}
}
