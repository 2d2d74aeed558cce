package rates

import "errors"

// ErrUnavailable is the soft, retryable failure every lookup error maps to.
var ErrUnavailable = errors.New("rate unavailable")

// ErrSuperseded is returned when a newer request for the same subject replaced this one.
var ErrSuperseded = errors.New("superseded by a newer request")

type unavailableError struct{ msg string }

func (e *unavailableError) Error() string { return e.msg }

func (e *unavailableError) Is(target error) bool { return target == ErrUnavailable }

var (
	// ErrNotFound means the symbol has no market-data mapping or no quote.
	ErrNotFound error = &unavailableError{msg: "rate unavailable: symbol not found"}
	// ErrTimeout means the upstream did not answer within the bound.
	ErrTimeout error = &unavailableError{msg: "rate unavailable: market data timeout"}
)
