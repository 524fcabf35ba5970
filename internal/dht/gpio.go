//go:build linux

package dht

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

const (
	startPulse    = 20 * time.Millisecond
	captureWindow = 10 * time.Millisecond
)

// GPIOReader bit-bangs the DHT11 protocol on one GPIO line.
type GPIOReader struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line

	mu    sync.Mutex
	edges []edge
}

// NewGPIOReader requests the data line on gpiochip0, idling high.
func NewGPIOReader(pin int) (*GPIOReader, error) {
	chip, err := gpiocdev.NewChip("gpiochip0")
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	r := &GPIOReader{chip: chip}
	line, err := chip.RequestLine(pin,
		gpiocdev.AsOutput(1),
		gpiocdev.WithConsumer("vent-controller-dht"),
		gpiocdev.WithEventHandler(r.handle),
		gpiocdev.WithEventBufferSize(256),
	)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request dht pin %d: %w", pin, err)
	}
	r.line = line
	return r, nil
}

func (r *GPIOReader) handle(evt gpiocdev.LineEvent) {
	r.mu.Lock()
	r.edges = append(r.edges, edge{
		rising: evt.Type == gpiocdev.LineEventRisingEdge,
		at:     evt.Timestamp,
	})
	r.mu.Unlock()
}

// Read sends the start pulse, captures the response edges and decodes them.
func (r *GPIOReader) Read(ctx context.Context) (Reading, error) {
	r.mu.Lock()
	r.edges = r.edges[:0]
	r.mu.Unlock()

	if err := r.line.SetValue(0); err != nil {
		return Reading{}, fmt.Errorf("start pulse: %w", err)
	}
	if err := sleepCtx(ctx, startPulse); err != nil {
		r.line.SetValue(1)
		return Reading{}, err
	}
	if err := r.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullUp, gpiocdev.WithBothEdges); err != nil {
		return Reading{}, fmt.Errorf("switch to input: %w", err)
	}
	time.Sleep(captureWindow)
	if err := r.line.Reconfigure(gpiocdev.AsOutput(1)); err != nil {
		return Reading{}, fmt.Errorf("restore output: %w", err)
	}

	r.mu.Lock()
	captured := append([]edge(nil), r.edges...)
	r.mu.Unlock()

	data, err := decode(highPulses(captured))
	if err != nil {
		return Reading{}, err
	}
	h, c := parse(data)
	return Reading{Humidity: h, TempC: c, At: time.Now()}, nil
}

// Close returns the line to a pulled-up input and releases the chip.
func (r *GPIOReader) Close() error {
	var errs []error
	if r.line != nil {
		if err := r.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullUp); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure dht pin: %w", err))
		}
		if err := r.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close dht pin: %w", err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
