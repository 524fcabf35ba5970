package dht

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Sensor wraps a Reader with retries and a minimum interval between bus
// transactions. Inside the interval the last good reading is returned.
type Sensor struct {
	reader      Reader
	attempts    int
	retryWait   time.Duration
	minInterval time.Duration
	now         func() time.Time
	sleepFn     func(ctx context.Context, d time.Duration) error

	mu   sync.Mutex
	last Reading
	ok   bool
}

// SensorOption configures a Sensor.
type SensorOption func(*Sensor)

// WithAttempts sets how many reads are tried before giving up.
func WithAttempts(n int) SensorOption {
	return func(s *Sensor) {
		if n > 0 {
			s.attempts = n
		}
	}
}

// WithMinInterval sets the minimum time between bus transactions.
func WithMinInterval(d time.Duration) SensorOption {
	return func(s *Sensor) {
		s.minInterval = d
	}
}

// WithClock injects the time source and retry sleep, for tests.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) SensorOption {
	return func(s *Sensor) {
		s.now = now
		s.sleepFn = sleep
	}
}

// NewSensor wraps r: 3 attempts 500ms apart, 2s minimum interval.
func NewSensor(r Reader, opts ...SensorOption) *Sensor {
	s := &Sensor{
		reader:      r,
		attempts:    3,
		retryWait:   500 * time.Millisecond,
		minInterval: 2 * time.Second,
		now:         time.Now,
		sleepFn:     sleepCtx,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Read returns a validated reading.
func (s *Sensor) Read(ctx context.Context) (Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.ok && now.Sub(s.last.At) < s.minInterval {
		return s.last, nil
	}

	var lastErr error
	for attempt := 0; attempt < s.attempts; attempt++ {
		if attempt > 0 {
			if err := s.sleepFn(ctx, s.retryWait); err != nil {
				return Reading{}, fmt.Errorf("read dht: %w", err)
			}
		}
		r, err := s.reader.Read(ctx)
		if err == nil {
			err = r.Validate()
		}
		if err == nil {
			r.At = s.now()
			s.last, s.ok = r, true
			return r, nil
		}
		lastErr = err
	}
	return Reading{}, fmt.Errorf("read dht after %d attempts: %w", s.attempts, lastErr)
}

// Close closes the underlying reader.
func (s *Sensor) Close() error {
	return s.reader.Close()
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
