package session

import (
	"context"
	"errors"
	"io"
	"math"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/shelfwatch/shelfwatch/internal/types"
)

// classifyStatus maps an HTTP status code to an outcome class. Soft blocks
// are the statuses the anti-bot layer serves when it dislikes a session.
func classifyStatus(code int) types.ErrorClass {
	switch {
	case code == http.StatusTooManyRequests:
		return types.ClassRateLimited
	case code == http.StatusForbidden,
		code == http.StatusMethodNotAllowed,
		code == http.StatusServiceUnavailable:
		return types.ClassSoftBlock
	case code >= 500:
		return types.ClassTransient
	default:
		return types.ClassFatal
	}
}

// isRetryableNetErr checks if a network error warrants a retry. Covers
// timeouts, connection resets, unexpected EOF, and connection refused.
// Context cancellation is NOT retryable.
func isRetryableNetErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if errors.Is(opErr.Err, syscall.ECONNRESET) ||
			errors.Is(opErr.Err, syscall.ECONNREFUSED) {
			return true
		}
	}
	return false
}

// backoffFor computes the wait before retry number attempt (1-based).
// Rate limiting escalates much faster than ordinary transient failures so a
// 429 at the same attempt always waits longer than a timeout would.
func backoffFor(class types.ErrorClass, base time.Duration, attempt int) time.Duration {
	switch class {
	case types.ClassRateLimited:
		d := time.Duration(float64(base) * math.Pow(5, float64(attempt)))
		return d + jitterBetween(5*time.Second, 10*time.Second)
	default:
		d := time.Duration(float64(base) * math.Pow(2, float64(attempt-1)))
		return d + jitterBetween(1*time.Second, 3*time.Second)
	}
}

// jitterBetween returns a uniformly random duration in [min, max].
func jitterBetween(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}

// parseRetryAfter parses the Retry-After header value. Supports both integer
// seconds and HTTP-date formats, capped at 2 minutes.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(header)); err == nil {
		if secs > 120 {
			secs = 120
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		d := time.Until(t)
		if d < 0 {
			return time.Second
		}
		if d > 2*time.Minute {
			return 2 * time.Minute
		}
		return d
	}
	return 0
}

// sleepFor waits for d or until the context is done.
func sleepFor(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
