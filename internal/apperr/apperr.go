// Package apperr defines the sentinel error kinds shared across the
// options engine. Every suspension point returns one of these (wrapped
// with context via fmt.Errorf("%w", ...)) rather than an ad hoc error
// string, so callers can branch with errors.Is/errors.As.
package apperr

import "errors"

var (
	// ErrConfigInvalid is fatal at startup.
	ErrConfigInvalid = errors.New("config invalid")

	// ErrBrokerUnreachable is transient; the adapter reconnects with
	// exponential backoff and only surfaces this as fatal after three
	// failed attempts at startup.
	ErrBrokerUnreachable = errors.New("broker unreachable")

	// ErrDelayedData is returned per-call when allow_delayed_data is
	// false and a quote carries data_type DELAYED or DELAYED_FROZEN.
	ErrDelayedData = errors.New("delayed market data not permitted")

	// ErrBrokerPacing is returned per-call after the adapter exhausts
	// its retry budget on a broker pacing violation.
	ErrBrokerPacing = errors.New("broker pacing violation")

	// ErrAIUnavailable signals an advisor in silent mode or otherwise
	// unreachable; the pipeline proceeds without it and never treats
	// the absence as an approval.
	ErrAIUnavailable = errors.New("ai advisor unavailable")

	// ErrOrderRejected is logged; no Position is created and the
	// proposal is instead recorded as a ShadowTrade.
	ErrOrderRejected = errors.New("order rejected")

	// ErrPartialFill signals a broker-side inconsistency on a BAG
	// contract that is supposed to be atomic.
	ErrPartialFill = errors.New("partial fill on atomic combo")

	// ErrCircuitBreakerActive is gate-level; it never escapes the
	// pipeline as an exception, only as a rejection reason.
	ErrCircuitBreakerActive = errors.New("circuit breaker active")

	// ErrReconciliationMismatch is reported as a diff; it never stops
	// the service.
	ErrReconciliationMismatch = errors.New("reconciliation mismatch")
)

// PacingError carries the number of retries already attempted when an
// ErrBrokerPacing is finally surfaced to the caller.
type PacingError struct {
	Attempts int
	Err      error
}

func (e *PacingError) Error() string {
	return ErrBrokerPacing.Error()
}

func (e *PacingError) Unwrap() error { return ErrBrokerPacing }
