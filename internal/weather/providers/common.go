package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-assistant/internal/retry"
	"github.com/i474232898/weather-assistant/internal/weather"
)

const (
	// DefaultTimeout bounds every single upstream attempt.
	DefaultTimeout = 10 * time.Second

	defaultRetries    = 3
	defaultRetryDelay = 1 * time.Second
	maxBodyBytes      = 4 << 20
)

// errorParser extracts the provider's error message from a non-2xx body.
type errorParser func(body []byte) string

// httpCaller executes GET requests with a per-attempt timeout, an explicit retry
// policy for transport failures, and a circuit breaker.
type httpCaller struct {
	provider   string
	client     *http.Client
	breaker    *gobreaker.CircuitBreaker
	retry      retry.Policy
	timeout    time.Duration
	parseError errorParser
}

func newHTTPCaller(provider string, client *http.Client, parseError errorParser) *httpCaller {
	if client == nil {
		client = &http.Client{}
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        provider,
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
		// Only transport failures count against the breaker; a 400 for an unknown
		// place says nothing about provider health.
		IsSuccessful: func(err error) bool {
			return err == nil || !weather.IsTransport(err)
		},
	})

	return &httpCaller{
		provider:   provider,
		client:     client,
		breaker:    cb,
		retry:      retry.Fixed(defaultRetries, defaultRetryDelay, retryable),
		timeout:    DefaultTimeout,
		parseError: parseError,
	}
}

// retryable accepts transport failures except an open circuit.
func retryable(err error) bool {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	return weather.IsTransport(err)
}

// get performs the request built by url and returns the 2xx response body.
func (h *httpCaller) get(ctx context.Context, url string) ([]byte, error) {
	var body []byte
	err := h.retry.Do(ctx, func(ctx context.Context) error {
		b, err := h.attempt(ctx, url)
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (h *httpCaller) attempt(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	result, err := h.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := h.client.Do(req)
		if err != nil {
			return nil, &weather.UpstreamError{Provider: h.provider, Transport: true, Err: err}
		}
		defer resp.Body.Close()

		b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return nil, &weather.UpstreamError{Provider: h.provider, Transport: true, Err: err}
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			msg := ""
			if h.parseError != nil {
				msg = h.parseError(b)
			}
			return nil, &weather.UpstreamError{
				Provider:   h.provider,
				StatusCode: resp.StatusCode,
				Message:    msg,
			}
		}
		return b, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &weather.UpstreamError{
				Provider:   h.provider,
				StatusCode: http.StatusServiceUnavailable,
				Transport:  true,
				Err:        err,
			}
		}
		return nil, err
	}

	b, ok := result.([]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from circuit breaker")
	}
	return b, nil
}
