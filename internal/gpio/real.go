//go:build linux

package gpio

import (
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

// RealRelay drives relays through the Linux GPIO character device.
type RealRelay struct {
	chip      *gpiocdev.Chip
	ventLine  *gpiocdev.Line
	dehumLine *gpiocdev.Line
	activeLow bool
	policy    ShutdownPolicy

	mu          sync.Mutex
	vent, dehum bool
}

// NewRealRelay requests both lines as outputs, initially de-energized.
func NewRealRelay(pinVent, pinDehum int, activeLow bool, policy ShutdownPolicy) (*RealRelay, error) {
	chip, err := gpiocdev.NewChip("gpiochip0")
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	off := rawValue(false, activeLow)
	ventLine, err := chip.RequestLine(pinVent, gpiocdev.AsOutput(off), gpiocdev.WithConsumer("vent-controller-vent"))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request vent pin %d: %w", pinVent, err)
	}

	dehumLine, err := chip.RequestLine(pinDehum, gpiocdev.AsOutput(off), gpiocdev.WithConsumer("vent-controller-dehum"))
	if err != nil {
		ventLine.Close()
		chip.Close()
		return nil, fmt.Errorf("request dehumidifier pin %d: %w", pinDehum, err)
	}

	return &RealRelay{
		chip:      chip,
		ventLine:  ventLine,
		dehumLine: dehumLine,
		activeLow: activeLow,
		policy:    policy,
	}, nil
}

// Set drives both lines. On error the recorded state reflects only the
// lines that were written.
func (r *RealRelay) Set(vent, dehum bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ventLine.SetValue(rawValue(vent, r.activeLow)); err != nil {
		return fmt.Errorf("set vent pin: %w", err)
	}
	r.vent = vent

	if err := r.dehumLine.SetValue(rawValue(dehum, r.activeLow)); err != nil {
		return fmt.Errorf("set dehumidifier pin: %w", err)
	}
	r.dehum = dehum
	return nil
}

// State returns the last written outputs.
func (r *RealRelay) State() (bool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.vent, r.dehum
}

// Close applies the shutdown policy, then releases the lines. Released
// output lines keep their last level on the Pi.
func (r *RealRelay) Close() error {
	var errs []error

	if r.policy == ShutdownOff {
		if err := r.Set(false, false); err != nil {
			errs = append(errs, fmt.Errorf("de-energize: %w", err))
		}
	}
	if r.ventLine != nil {
		if err := r.ventLine.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close vent pin: %w", err))
		}
	}
	if r.dehumLine != nil {
		if err := r.dehumLine.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close dehumidifier pin: %w", err))
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
