// Package errs defines the error taxonomy shared by the import and search
// paths. Every failure the operator can see maps to one Kind; the CLI turns
// the kind into a one-line diagnostic and an exit code.
package errs

import (
	"context"
	"errors"
	"fmt"
)

type Kind uint8

const (
	KindUnknown Kind = iota
	KindIO
	KindDecode
	KindSeparatorCompile
	KindCodecUnsupported
	KindTokenMissing
	KindCancelled
	KindCatalogCorrupt
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindDecode:
		return "decode"
	case KindSeparatorCompile:
		return "separator"
	case KindCodecUnsupported:
		return "codec"
	case KindTokenMissing:
		return "token-missing"
	case KindCancelled:
		return "cancelled"
	case KindCatalogCorrupt:
		return "catalog-corrupt"
	default:
		return "unknown"
	}
}

// Error wraps a cause with a Kind and, for decode/IO failures, the byte
// offset in the decoded stream where the failure was observed.
type Error struct {
	kind      Kind
	offset    int64
	hasOffset bool
	err       error
}

func E(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{kind: promote(kind, err), err: err}
}

// promote keeps cancellation visible no matter which layer wrapped it: an
// ExecContext aborted by ctx is a cancellation, not an IO failure.
func promote(kind Kind, err error) Kind {
	if kind != KindCancelled && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return KindCancelled
	}
	return kind
}

func Errorf(kind Kind, format string, args ...any) error {
	return &Error{kind: kind, err: fmt.Errorf(format, args...)}
}

// At attaches a decoded-stream offset to a decode or IO error.
func At(kind Kind, offset int64, err error) error {
	if err == nil {
		return nil
	}
	return &Error{kind: promote(kind, err), offset: offset, hasOffset: true, err: err}
}

func (e *Error) Error() string {
	if e.hasOffset {
		return fmt.Sprintf("%s: %v (offset %d)", e.kind, e.err, e.offset)
	}
	return fmt.Sprintf("%s: %v", e.kind, e.err)
}

func (e *Error) Unwrap() error { return e.err }

func (e *Error) Kind() Kind { return e.kind }

// Offset reports the decoded-stream offset carried by the error, if any.
func (e *Error) Offset() (int64, bool) { return e.offset, e.hasOffset }

// KindOf walks the wrap chain and reports the outermost Kind. Plain context
// cancellation counts as KindCancelled so callers at suspension points don't
// need to re-wrap.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCancelled
	}
	return KindUnknown
}

func IsCancelled(err error) bool { return KindOf(err) == KindCancelled }
