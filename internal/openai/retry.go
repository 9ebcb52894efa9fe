package openai

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// retry calls fn until it succeeds, fails with a non-retryable error, or the
// attempt budget is spent. The wait doubles after every retry.
func (c *Client) retry(ctx context.Context, fn func() error) error {
	wait := c.backoff
	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(); err == nil || !retryable(err) || attempt >= c.maxAttempts {
			return err
		}
		log.Printf("openai: attempt %d/%d failed, retrying in %s: %v", attempt, c.maxAttempts, wait, err)
		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(wait):
		}
		wait *= 2
	}
}

// retryable reports rate limiting and server-side failures.
func retryable(err error) bool {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	default:
		return false
	}
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}
