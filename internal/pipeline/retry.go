package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/dgallion1/notegest/internal/imagesvc"
	"github.com/dgallion1/notegest/internal/render"
)

// IsRetryable checks if an error is worth retrying.
func IsRetryable(err error) bool {
	var retryErr *imagesvc.RetryableError
	return errors.As(err, &retryErr)
}

// Backoff returns a duration for attempt n (0-indexed) with jitter.
func Backoff(attempt int) time.Duration {
	base := time.Duration(1<<uint(attempt)) * time.Second
	if base > 30*time.Second {
		base = 30 * time.Second
	}
	jitter := time.Duration(rand.Int64N(int64(base) / 2))
	return base + jitter
}

const MaxRetries = 3

// SubmitImageMap hands the image map of run runID to the image service,
// retrying transient failures with backoff.
func SubmitImageMap(ctx context.Context, client *imagesvc.Client, log *slog.Logger, runID string, dialect render.Dialect, images render.ImageMap) error {
	var lastErr error
	for attempt := range MaxRetries {
		var resp *imagesvc.SubmitResponse
		resp, lastErr = client.SubmitMap(ctx, runID, dialect, images)
		if lastErr == nil {
			log.Info("image map submitted", "run_id", runID, "accepted", resp.Accepted, "images", len(images))
			return nil
		}
		if !IsRetryable(lastErr) {
			return lastErr
		}
		log.Warn("retryable image service error", "attempt", attempt, "error", lastErr)
		select {
		case <-time.After(Backoff(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}
