package order

import (
	"errors"
	"fmt"
)

// Gate rejections. Recoverable: the submitter may retry once the
// market reopens.
var (
	ErrMarketHalted = errors.New("market halted")
	ErrMarketClosed = errors.New("market closed")
)

// ErrInternal marks invariant violations (terminal-state transition,
// crossed book). These are never user-facing and freeze the affected
// instrument until investigated.
var ErrInternal = errors.New("internal consistency violation")

// ErrUnknownOrder is returned by lookups for IDs the engine has
// never seen or has already retired.
var ErrUnknownOrder = errors.New("unknown order")

// ValidationError rejects an order at admission. The order never
// enters the book and no side effects are produced.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

func Invalidf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
