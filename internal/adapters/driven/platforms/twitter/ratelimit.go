package twitter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/oauth2"

	"github.com/custodia-labs/sercha-social/internal/adapters/driven/platforms"
	"github.com/custodia-labs/sercha-social/internal/core/domain"
)

// MinRateLimitWait is the floor applied to the reported reset time.
const MinRateLimitWait = 60 * time.Second

// RateLimitError is returned for an HTTP 429. Reset is zero when the
// response carried no x-rate-limit-reset header.
type RateLimitError struct {
	Reset time.Time
}

func (e *RateLimitError) Error() string {
	if e.Reset.IsZero() {
		return "x rate limit exceeded"
	}
	return fmt.Sprintf("x rate limit exceeded, resets at %s", e.Reset.UTC().Format(time.RFC3339))
}

// Is makes RateLimitError match domain.ErrRateLimited.
func (e *RateLimitError) Is(target error) bool {
	return target == domain.ErrRateLimited
}

// asRateLimit converts a 429 from the API or the token endpoint into a
// RateLimitError. Other errors are returned unchanged.
func asRateLimit(err error) error {
	var header http.Header
	var ue *platforms.UpstreamError
	var re *oauth2.RetrieveError
	switch {
	case errors.As(err, &ue) && ue.StatusCode == http.StatusTooManyRequests:
		header = ue.Header
	case errors.As(err, &re) && re.Response != nil && re.Response.StatusCode == http.StatusTooManyRequests:
		header = re.Response.Header
	default:
		return err
	}
	rle := &RateLimitError{}
	if v := header.Get("x-rate-limit-reset"); v != "" {
		if epoch, perr := strconv.ParseInt(v, 10, 64); perr == nil {
			rle.Reset = time.Unix(epoch, 0)
		}
	}
	return rle
}

// RateLimiter holds the wait policy used by WithRateLimit.
type RateLimiter struct {
	Now    func() time.Time
	Sleep  func(ctx context.Context, d time.Duration) error
	OnWait func(d time.Duration)
	Logger *slog.Logger
}

// NewRateLimiter returns a limiter on the wall clock.
func NewRateLimiter(logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimiter{Now: time.Now, Sleep: sleepContext, Logger: logger}
}

// Wait returns how long to back off for err.
func (r *RateLimiter) Wait(err *RateLimitError) time.Duration {
	wait := MinRateLimitWait
	if !err.Reset.IsZero() {
		if d := err.Reset.Sub(r.Now()); d > wait {
			wait = d
		}
	}
	return wait
}

// WithRateLimit calls fn and, if it is rate limited, waits for the
// reset and calls it exactly once more. Any other error, or a second
// failure, is returned unchanged.
func WithRateLimit[T any](ctx context.Context, r *RateLimiter, fn func(context.Context) (T, error)) (T, error) {
	v, err := fn(ctx)

	var rle *RateLimitError
	if err == nil || !errors.As(err, &rle) {
		return v, err
	}

	wait := r.Wait(rle)
	r.Logger.Warn("x rate limited, waiting before retry", "wait", wait)
	if r.OnWait != nil {
		r.OnWait(wait)
	}

	if serr := r.Sleep(ctx, wait); serr != nil {
		var zero T
		return zero, serr
	}
	return fn(ctx)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
