package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ekaya-inc/cleansing-engine/pkg/apperrors"
)

// PostgreSQL SQLSTATE codes that indicate a transient failure.
const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
	sqlStateTooManyConnections   = "53300"
	sqlStateCannotConnectNow     = "57P03"
	sqlStateAdminShutdown        = "57P01"
)

// Config defines retry behavior with exponential backoff
type Config struct {
	MaxRetries       int
	InitialDelay     time.Duration
	MaxDelay         time.Duration
	Multiplier       float64
	JitterFactor     float64 // 0.0-1.0, default 0.1 for +/-10% jitter to prevent thundering herd
	MaxSameErrorType int     // After N consecutive same-type errors, treat as permanent (default: 5)
}

// DefaultConfig returns sensible defaults for database operations
// 3 retries with 100ms initial delay, capped at 5s, doubling each time, with 10% jitter
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:       3,
		InitialDelay:     100 * time.Millisecond,
		MaxDelay:         5 * time.Second,
		Multiplier:       2.0,
		JitterFactor:     0.1,
		MaxSameErrorType: 5,
	}
}

// applyJitter returns delay +/- (delay * jitterFactor * random(-1 to +1)).
func applyJitter(delay time.Duration, jitterFactor float64) time.Duration {
	if jitterFactor <= 0 {
		return delay
	}
	jitter := float64(delay) * jitterFactor * (rand.Float64()*2 - 1)
	return time.Duration(float64(delay) + jitter)
}

// backoff waits for the current delay and returns the next one, or the
// context error if ctx is done first.
func backoff(ctx context.Context, cfg *Config, delay time.Duration) (time.Duration, error) {
	select {
	case <-time.After(applyJitter(delay, cfg.JitterFactor)):
		next := time.Duration(float64(delay) * cfg.Multiplier)
		if next > cfg.MaxDelay {
			next = cfg.MaxDelay
		}
		return next, nil
	case <-ctx.Done():
		return delay, ctx.Err()
	}
}

// Do executes fn with exponential backoff retry logic
// Returns nil on success, or last error after all retries exhausted
// Respects context cancellation during wait periods
func Do(ctx context.Context, cfg *Config, fn func() error) error {
	_, err := DoWithResult(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// DoWithResult executes fn and returns both result and error
// Useful for functions that return values (like pgxpool.New)
func DoWithResult[T any](ctx context.Context, cfg *Config, fn func() (T, error)) (T, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var result T
	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		r, err := fn()
		if err == nil {
			return r, nil
		}

		lastErr = err
		result = r // Keep last result even on error

		if attempt < cfg.MaxRetries {
			if delay, err = backoff(ctx, cfg, delay); err != nil {
				return result, err
			}
		}
	}

	return result, lastErr
}

// RetryableError is an interface for errors that explicitly declare their retryability.
type RetryableError interface {
	error
	IsRetryable() bool
}

// IsRetryable determines if an error is transient and worth retrying.
// This prevents wasting retries on permanent failures (constraint violations,
// bad requests, validation errors).
//
// The function checks errors in this order:
//  1. RetryableError implementations decide for themselves
//  2. PostgreSQL errors are judged by SQLSTATE
//  3. Transport errors retry when unreachable or on 429/5xx
//  4. Otherwise, pattern-match against known retryable error strings
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var re RetryableError
	if errors.As(err, &re) {
		return re.IsRetryable()
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlStateSerializationFailure, sqlStateDeadlockDetected,
			sqlStateTooManyConnections, sqlStateCannotConnectNow, sqlStateAdminShutdown:
			return true
		}
		// Class 08: connection exception
		return strings.HasPrefix(pgErr.Code, "08")
	}

	if apperrors.IsValidation(err) {
		return false
	}

	var te *apperrors.TransportError
	if errors.As(err, &te) {
		return te.Unreachable() || te.StatusCode == 429 || te.StatusCode >= 500
	}

	errStr := strings.ToLower(err.Error())

	retryablePatterns := []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"no such host",
		"timeout",
		"timed out",
		"temporary failure",
		"too many connections",
		"deadlock",
		"i/o timeout",
		"network is unreachable",
		"connection timed out",
		"unexpected eof",
	}

	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// classifyErrorType extracts a category from err to detect repeated failures
// of the same kind, e.g. "40001", "transport_503", "connection", "unknown".
func classifyErrorType(err error) string {
	if err == nil {
		return "nil"
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}

	var te *apperrors.TransportError
	if errors.As(err, &te) {
		if te.Unreachable() {
			return "unreachable"
		}
		return fmt.Sprintf("transport_%d", te.StatusCode)
	}

	errStr := strings.ToLower(err.Error())

	if strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "connection reset") {
		return "connection"
	}
	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "timed out") {
		return "timeout"
	}
	if strings.Contains(errStr, "broken pipe") {
		return "broken_pipe"
	}
	if strings.Contains(errStr, "deadlock") {
		return "deadlock"
	}

	return "unknown"
}

// DoIfRetryable only retries if the error is transient.
// For permanent errors it returns immediately.
// After N consecutive failures of the same error type, escalates to permanent failure.
func DoIfRetryable(ctx context.Context, cfg *Config, fn func() error) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var lastErr error
	delay := cfg.InitialDelay
	sameErrorCount := 0
	var lastErrorType string

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return err
		}

		currentErrorType := classifyErrorType(err)
		if currentErrorType == lastErrorType {
			sameErrorCount++
			if cfg.MaxSameErrorType > 0 && sameErrorCount >= cfg.MaxSameErrorType {
				return fmt.Errorf("repeated error (%d times, type=%s): %w", sameErrorCount, currentErrorType, err)
			}
		} else {
			sameErrorCount = 1
			lastErrorType = currentErrorType
		}

		if attempt < cfg.MaxRetries {
			if delay, err = backoff(ctx, cfg, delay); err != nil {
				return err
			}
		}
	}

	return lastErr
}
