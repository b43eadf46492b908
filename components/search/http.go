package search

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// DefaultTimeout is the HTTP timeout used when a provider is built without a client
const DefaultTimeout = 15 * time.Second

// DefaultHTTPClient returns an http.Client with DefaultTimeout
func DefaultHTTPClient() *http.Client {
	return &http.Client{Timeout: DefaultTimeout}
}

// NewLimiter returns a limiter allowing rps requests per second, nil when rps is not positive
func NewLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// Do waits for the limiter and sends req. Every failure and every non-200 response is
// returned as a ProviderError; the response body must be closed by the caller.
func Do(ctx context.Context, kind Kind, clt *http.Client, limiter *rate.Limiter, req *http.Request) (*http.Response, error) {
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return nil, Unavailable(kind, 0, err)
		}
	}
	resp, err := clt.Do(req.WithContext(ctx))
	if err != nil {
		return nil, Unavailable(kind, 0, err)
	}
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, Unavailable(kind, resp.StatusCode, errors.New(statusReason(resp.StatusCode)))
	}
	return resp, nil
}

// DoJSON sends req and decodes the JSON response into out
func DoJSON(ctx context.Context, kind Kind, clt *http.Client, limiter *rate.Limiter, req *http.Request, out any) error {
	resp, err := Do(ctx, kind, clt, limiter, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return Unavailable(kind, resp.StatusCode, err)
	}
	return nil
}

func statusReason(code int) string {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return "authentication failed"
	case http.StatusTooManyRequests:
		return "rate limited"
	}
	if txt := http.StatusText(code); txt != "" {
		return txt
	}
	return "unexpected status"
}
