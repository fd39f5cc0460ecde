package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var (
	ErrUnavailable = errors.New("ai provider unavailable")
	ErrRateLimited = errors.New("ai provider rate limited")
	ErrTimeout     = errors.New("ai provider timeout")
)

const maxErrorBody = 4096

// statusError turns a non-2xx response into an error wrapping the matching
// sentinel.
func statusError(provider string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(body))
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%s request failed: %s: %w", provider, msg, ErrRateLimited)
	case resp.StatusCode == http.StatusGatewayTimeout || resp.StatusCode == http.StatusRequestTimeout:
		return fmt.Errorf("%s request failed: %s: %w", provider, msg, ErrTimeout)
	case resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("%s request failed: %s: %s: %w", provider, resp.Status, msg, ErrUnavailable)
	}
	return fmt.Errorf("%s request failed: %s: %s", provider, resp.Status, msg)
}

// transportError maps a failed round trip or body read onto the sentinels.
func transportError(ctx context.Context, provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTimeout) || errors.Is(err, ErrUnavailable) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s: %v: %w", provider, err, ErrTimeout)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%s: %v: %w", provider, err, ErrUnavailable)
}
