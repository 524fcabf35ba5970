// Package purpleair reads the local JSON endpoint of a PurpleAir outdoor
// air-quality sensor. Calls are wrapped in a circuit breaker and retried on
// transport errors and 5xx responses.
package purpleair

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
)

// ErrUnavailable is returned when the breaker is open or retries are exhausted.
var ErrUnavailable = errors.New("purpleair: sensor unavailable")

// DefaultURL is the sensor's address on the local network.
const DefaultURL = "http://192.168.4.4"

// Reading is the subset of the live JSON document the controller uses.
// Pointer fields are nil when the device omits them.
type Reading struct {
	SensorID  string   `json:"SensorId"`
	DateTime  string   `json:"DateTime"`
	Place     string   `json:"place"`
	Version   string   `json:"version"`
	RSSI      int      `json:"rssi"`
	Uptime    int64    `json:"uptime"`
	TempF     *float64 `json:"current_temp_f"`
	Humidity  *float64 `json:"current_humidity"`
	DewpointF *float64 `json:"current_dewpoint_f"`
	Pressure  *float64 `json:"pressure"`
	PM25AQI   *float64 `json:"pm2.5_aqi"`
	PM25AQIB  *float64 `json:"pm2.5_aqi_b"`
}

// AQI returns the PM2.5 AQI, averaging both laser channels when the device
// reports channel B.
func (r Reading) AQI() (float64, bool) {
	if r.PM25AQI == nil {
		return 0, false
	}
	if r.PM25AQIB == nil {
		return *r.PM25AQI, true
	}
	return (*r.PM25AQI + *r.PM25AQIB) / 2, true
}

// RetryPolicy configures retries around a single Fetch.
type RetryPolicy struct {
	MaxRetries int
	Wait       time.Duration
}

// DefaultRetryPolicy returns the retry policy used in production.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 2, Wait: 500 * time.Millisecond}
}

// Client fetches readings from one sensor.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[Reading]
	retry   RetryPolicy
	sleepFn func(ctx context.Context, d time.Duration) error
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithRetryPolicy overrides the retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) {
		c.retry = p
	}
}

// WithBreakerSettings overrides the circuit breaker settings.
func WithBreakerSettings(s gobreaker.Settings) Option {
	return func(c *Client) {
		c.breaker = gobreaker.NewCircuitBreaker[Reading](s)
	}
}

// WithSleepFunc overrides the wait between retries. Intended for tests.
func WithSleepFunc(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) {
		c.sleepFn = fn
	}
}

// DefaultBreakerSettings trips after five consecutive failures and probes
// again after a minute.
func DefaultBreakerSettings(name string) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
}

// New creates a Client for the sensor at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		breaker: gobreaker.NewCircuitBreaker[Reading](DefaultBreakerSettings("purpleair")),
		retry:   DefaultRetryPolicy(),
		sleepFn: sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BreakerState reports the circuit breaker state, for status reporting.
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}

// Fetch returns the current live reading.
func (c *Client) Fetch(ctx context.Context) (Reading, error) {
	var lastErr error
	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := c.sleepFn(ctx, c.retry.Wait); err != nil {
				return Reading{}, fmt.Errorf("fetch purpleair: %w", err)
			}
		}

		r, err := c.breaker.Execute(func() (Reading, error) {
			return c.fetchOnce(ctx)
		})
		if err == nil {
			return r, nil
		}
		lastErr = err

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return Reading{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if ctx.Err() != nil || !retryable(err) {
			return Reading{}, fmt.Errorf("fetch purpleair: %w", err)
		}
	}
	return Reading{}, fmt.Errorf("%w: %d attempts: %v", ErrUnavailable, c.retry.MaxRetries+1, lastErr)
}

// statusError is a non-2xx response.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.code)
}

// decodeError marks a malformed body; retrying will not help.
type decodeError struct {
	err error
}

func (e *decodeError) Error() string { return "decode body: " + e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }

func (c *Client) fetchOnce(ctx context.Context) (Reading, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/json?live=true", nil)
	if err != nil {
		return Reading{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Reading{}, fmt.Errorf("get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return Reading{}, &statusError{code: resp.StatusCode}
	}

	var r Reading
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return Reading{}, &decodeError{err: err}
	}
	return r, nil
}

func retryable(err error) bool {
	var de *decodeError
	if errors.As(err, &de) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= 500
	}
	return true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
