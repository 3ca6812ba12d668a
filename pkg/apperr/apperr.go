package apperr

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/zeebo/errs"
)

// Kind groups errors by the subsystem that raised them.
type Kind string

const (
	KindAuth      Kind = "auth"
	KindNetwork   Kind = "network"
	KindLibrary   Kind = "library"
	KindSync      Kind = "sync"
	KindArchive   Kind = "archive"
	KindInterrupt Kind = "interrupt"
)

// Severity decides what the enclosing operation does with the error.
type Severity int

const (
	// SeverityWarn is reported and skipped.
	SeverityWarn Severity = iota
	// SeverityFatal aborts the current operation.
	SeverityFatal
	// SeverityInterrupt shuts the process down after lock release.
	SeverityInterrupt
)

func (s Severity) String() string {
	switch s {
	case SeverityWarn:
		return "WARN"
	case SeverityFatal:
		return "FATAL"
	case SeverityInterrupt:
		return "INTERRUPT"
	}
	return "UNKNOWN"
}

// Error carries the kind, severity, recoverability, a scalar context map,
// and the wrapped cause chain.
type Error struct {
	Kind        Kind
	Severity    Severity
	Recoverable bool
	Msg         string
	Context     map[string]interface{}
	cause       error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	b.WriteString(": ")
	b.WriteString(e.Msg)
	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%v", k, e.Context[k])
		}
		b.WriteString(")")
	}
	if e.cause != nil {
		b.WriteString(": ")
		b.WriteString(e.cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.cause }

// With attaches a scalar attribute and returns the same error.
func (e *Error) With(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a fatal error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Severity: SeverityFatal, Msg: msg}
}

// Wrap creates a fatal error of the given kind wrapping cause.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Severity: SeverityFatal, Msg: msg, cause: cause}
}

// Recoverable creates an error that the sync retry loop may absorb.
func Recoverable(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Severity: SeverityFatal, Recoverable: true, Msg: msg, cause: cause}
}

// Warning creates a continue-and-report error.
func Warning(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Severity: SeverityWarn, Msg: msg}
}

// Interrupted creates the signal-delivered shutdown error. It is never
// retried and never shipped as a crash report.
func Interrupted(cause error) *Error {
	return &Error{
		Kind:     KindInterrupt,
		Severity: SeverityInterrupt,
		Msg:      "shutdown requested",
		cause:    cause,
	}
}

// IsKind reports whether any typed error in the chain has the given kind.
func IsKind(err error, kind Kind) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.cause
	}
	return false
}

// IsRecoverable reports whether any error in the chain is marked recoverable.
// Interrupts are never recoverable.
func IsRecoverable(err error) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Severity == SeverityInterrupt {
			return false
		}
		if e.Recoverable {
			return true
		}
		err = e.cause
	}
	return false
}

// IsInterrupt reports whether the chain carries a shutdown request.
func IsInterrupt(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Severity == SeverityInterrupt
}

// SeverityOf extracts the severity of the outermost typed error,
// defaulting to fatal for plain errors.
func SeverityOf(err error) Severity {
	var e *Error
	if errors.As(err, &e) {
		return e.Severity
	}
	return SeverityFatal
}

// Group collects errors from concurrent work.
type Group = errs.Group
