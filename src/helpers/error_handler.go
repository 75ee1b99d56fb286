package helpers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"market-pulse/src/models"

	"github.com/cenkalti/backoff/v4"
)

// -----------------------------------------------------------------------------
// Custom Error Types
// -----------------------------------------------------------------------------

type MarketPulseError struct {
	Message string
	Cause   error
}

func (e *MarketPulseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *MarketPulseError) Unwrap() error {
	return e.Cause
}

type ConfigurationError struct{ MarketPulseError }
type NetworkError struct{ MarketPulseError }
type CacheError struct{ MarketPulseError }

// UpstreamError is a per-symbol (or per-list) provider failure
type UpstreamError struct {
	MarketPulseError
	Symbol string
}

// ProtocolError carries the code sent back to the client in an error frame
type ProtocolError struct {
	MarketPulseError
	Code string
}

// -----------------------------------------------------------------------------

func NewUpstreamError(symbol, message string, cause error) *UpstreamError {
	return &UpstreamError{MarketPulseError: MarketPulseError{Message: message, Cause: cause}, Symbol: symbol}
}

func NewProtocolError(code, message string, cause error) *ProtocolError {
	return &ProtocolError{MarketPulseError: MarketPulseError{Message: message, Cause: cause}, Code: code}
}

func NewCacheError(message string, cause error) *CacheError {
	return &CacheError{MarketPulseError{Message: message, Cause: cause}}
}

func NewNetworkError(message string, cause error) *NetworkError {
	return &NetworkError{MarketPulseError{Message: message, Cause: cause}}
}

// -----------------------------------------------------------------------------

// ErrorCode picks the client-facing code for err, falling back to def
func ErrorCode(err error, def string) string {
	var pe *ProtocolError
	if errors.As(err, &pe) && pe.Code != "" {
		return pe.Code
	}
	if def == "" {
		return models.ErrCodeInvalidRequest
	}
	return def
}

// -----------------------------------------------------------------------------
// Retry Logic
// -----------------------------------------------------------------------------

// Permanent marks err as not worth retrying
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// -----------------------------------------------------------------------------

// RetryWithBackoff runs fn up to maxRetries+1 times, doubling the delay after
// every failure. Context cancellation stops the loop.
func RetryWithBackoff[T any](ctx context.Context, maxRetries int, baseDelay time.Duration, fn func() (T, error)) (T, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = baseDelay
	policy.Multiplier = 2
	policy.RandomizationFactor = 0
	policy.MaxElapsedTime = 0

	var result T
	op := func() error {
		res, err := fn()
		if err != nil {
			var pe *ProtocolError
			if errors.As(err, &pe) {
				return backoff.Permanent(err)
			}
			return err
		}
		result = res
		return nil
	}

	var b backoff.BackOff = policy
	if maxRetries >= 0 {
		b = backoff.WithMaxRetries(policy, uint64(maxRetries))
	}

	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}
