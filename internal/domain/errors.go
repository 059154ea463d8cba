package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrSigningFailed     = errors.New("signing failed")
	ErrLockHeld          = errors.New("lock already held")
	ErrUnknownAsset      = errors.New("unknown asset variant")
	ErrChainResponse     = errors.New("chain rejected request")
	ErrMalformedResponse = errors.New("malformed chain response")
	ErrInvalidAmount     = errors.New("invalid amount")
)

// transientError marks an error as safe to retry on the next cycle.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// MarkTransient wraps err so that IsTransient reports true. A nil err stays nil.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err (or anything it wraps) is retry-worthy:
// connectivity failures, throttling, chain-side rejections and a held account
// lock. Everything else is treated as fatal by the scheduler.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *transientError
	if errors.As(err, &te) {
		return true
	}
	return errors.Is(err, ErrChainResponse) || errors.Is(err, ErrLockHeld)
}
