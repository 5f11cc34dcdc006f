package session

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"syscall"
	"testing"
	"time"

	"github.com/shelfwatch/shelfwatch/internal/types"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status   int
		expected types.ErrorClass
	}{
		{status: http.StatusTooManyRequests, expected: types.ClassRateLimited},
		{status: http.StatusForbidden, expected: types.ClassSoftBlock},
		{status: http.StatusMethodNotAllowed, expected: types.ClassSoftBlock},
		{status: http.StatusServiceUnavailable, expected: types.ClassSoftBlock},
		{status: http.StatusInternalServerError, expected: types.ClassTransient},
		{status: http.StatusBadGateway, expected: types.ClassTransient},
		{status: http.StatusNotFound, expected: types.ClassFatal},
		{status: http.StatusBadRequest, expected: types.ClassFatal},
		{status: http.StatusUnauthorized, expected: types.ClassFatal},
	}

	for _, tt := range tests {
		if got := classifyStatus(tt.status); got != tt.expected {
			t.Errorf("classifyStatus(%d) = %s, want %s", tt.status, got, tt.expected)
		}
	}
}

func TestIsRetryableNetErr(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "nil", err: nil, expected: false},
		{name: "context canceled", err: context.Canceled, expected: false},
		{name: "deadline exceeded", err: context.DeadlineExceeded, expected: false},
		{name: "unexpected EOF", err: io.ErrUnexpectedEOF, expected: true},
		{name: "EOF", err: io.EOF, expected: true},
		{name: "timeout", err: &net.DNSError{IsTimeout: true}, expected: true},
		{name: "connection reset", err: &net.OpError{Op: "read", Net: "tcp", Err: syscall.ECONNRESET}, expected: true},
		{name: "connection refused", err: &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}, expected: true},
		{name: "other", err: errors.New("boom"), expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryableNetErr(tt.err); got != tt.expected {
				t.Fatalf("isRetryableNetErr(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

// A rate-limit backoff must always outlast a transient backoff at the same
// attempt, whatever the jitter draws.
func TestBackoffRateLimitedOutlastsTransient(t *testing.T) {
	base := 2 * time.Second
	for attempt := 1; attempt <= 3; attempt++ {
		for i := 0; i < 50; i++ {
			rate := backoffFor(types.ClassRateLimited, base, attempt)
			transient := backoffFor(types.ClassTransient, base, attempt)
			if rate <= transient {
				t.Fatalf("attempt %d: rate-limited backoff %v not greater than transient %v", attempt, rate, transient)
			}
		}
	}
}

func TestBackoffGrowsWithAttempts(t *testing.T) {
	base := time.Second
	// Growth factor dominates jitter for both schedules from attempt 2 on.
	for attempt := 2; attempt <= 4; attempt++ {
		slow := backoffFor(types.ClassRateLimited, base, attempt)
		fast := backoffFor(types.ClassRateLimited, base, attempt-1)
		if slow <= fast {
			t.Fatalf("rate-limited backoff did not grow: attempt %d gave %v, attempt %d gave %v",
				attempt-1, fast, attempt, slow)
		}
	}
}

func TestJitterBetweenBounds(t *testing.T) {
	min, max := time.Second, 3*time.Second
	for i := 0; i < 100; i++ {
		d := jitterBetween(min, max)
		if d < min || d > max {
			t.Fatalf("jitter %v outside [%v, %v]", d, min, max)
		}
	}
	if got := jitterBetween(max, min); got != max {
		t.Fatalf("inverted window should return min bound, got %v", got)
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		header   string
		expected time.Duration
	}{
		{header: "", expected: 0},
		{header: "7", expected: 7 * time.Second},
		{header: "500", expected: 120 * time.Second},
		{header: "garbage", expected: 0},
	}

	for _, tt := range tests {
		if got := parseRetryAfter(tt.header); got != tt.expected {
			t.Errorf("parseRetryAfter(%q) = %v, want %v", tt.header, got, tt.expected)
		}
	}
}
