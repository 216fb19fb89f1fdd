package pipeline

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dgallion1/notegest/internal/imagesvc"
)

func TestIsRetryable(t *testing.T) {
	retry := &imagesvc.RetryableError{StatusCode: 503, Message: "busy"}
	if !IsRetryable(retry) {
		t.Error("expected RetryableError to be retryable")
	}
	if !IsRetryable(fmt.Errorf("submit: %w", retry)) {
		t.Error("expected wrapped RetryableError to be retryable")
	}
	if IsRetryable(errors.New("bad request")) {
		t.Error("plain errors should not be retryable")
	}
}

func TestBackoff_Bounds(t *testing.T) {
	tests := []struct {
		attempt  int
		min, max time.Duration
	}{
		{0, time.Second, 1500 * time.Millisecond},
		{1, 2 * time.Second, 3 * time.Second},
		{2, 4 * time.Second, 6 * time.Second},
		{10, 30 * time.Second, 45 * time.Second},
	}
	for _, tt := range tests {
		for range 20 {
			d := Backoff(tt.attempt)
			if d < tt.min || d >= tt.max {
				t.Errorf("Backoff(%d) = %v, want [%v, %v)", tt.attempt, d, tt.min, tt.max)
			}
		}
	}
}
