package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	appErr "github.com/xxxsen/insightai/internal/pkg/errors"
)

var ErrUnavailable = errors.New("ai provider not configured")

// classifyStatus maps a failed HTTP exchange with an embedding service onto
// the retryable / fatal error kinds.
func classifyStatus(provider string, status int, message string) error {
	err := fmt.Errorf("%s request failed: status %d: %s", provider, status, strings.TrimSpace(message))
	lower := strings.ToLower(message)
	switch {
	case status == http.StatusTooManyRequests && (strings.Contains(lower, "quota") || strings.Contains(lower, "billing")):
		return fmt.Errorf("%w: %w", appErr.ErrEmbeddingQuota, err)
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout, status >= 500:
		return fmt.Errorf("%w: %w", appErr.ErrEmbeddingService, err)
	default:
		return fmt.Errorf("%w: %w", appErr.ErrEmbeddingQuota, err)
	}
}

// classifyTransport tags errors raised before or while talking to the
// service. Unknown failures count as transient.
func classifyTransport(provider string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, appErr.ErrEmbeddingService), errors.Is(err, appErr.ErrEmbeddingQuota), errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, ErrUnavailable):
		return fmt.Errorf("%w: %w", appErr.ErrEmbeddingQuota, err)
	default:
		return fmt.Errorf("%w: %s: %w", appErr.ErrEmbeddingService, provider, err)
	}
}
