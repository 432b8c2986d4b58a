package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/inkwellhq/inkwell/internal/core"
)

// EmbedWithRetry embeds one text, retrying transient provider failures with
// exponential backoff (baseDelay, 2*baseDelay, 4*baseDelay, ...). Validation
// and auth failures abort immediately without consuming retry budget. After
// maxAttempts the last error is returned wrapped with the attempt count.
func EmbedWithRetry(ctx context.Context, provider core.EmbeddingProvider, text string, maxAttempts int, baseDelay time.Duration) ([]float32, error) {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		vec, err := provider.EmbedText(ctx, text)
		if err == nil {
			if attempt > 1 {
				slog.Debug("embed succeeded after retry", "attempt", attempt)
			}
			return vec, nil
		}
		lastErr = err

		if !core.IsRetryable(err) {
			return nil, err
		}

		slog.Debug("embed failed, will retry", "attempt", attempt, "maxAttempts", maxAttempts, "error", err)

		if attempt == maxAttempts {
			break
		}

		delay := baseDelay << (attempt - 1)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	return nil, fmt.Errorf("embedding failed after %d attempts: %w", maxAttempts, lastErr)
}
