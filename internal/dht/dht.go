// Package dht reads the indoor DHT11 temperature/humidity sensor.
//
// Two readers exist: GPIOReader times the single-wire protocol itself using
// kernel-timestamped edge events from the GPIO character device, and
// IIOReader reads the values published by the kernel dht11 driver. Sensor
// wraps either with retries, range checks and a minimum read interval.
package dht

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrChecksum is returned when the fifth byte does not match the data.
	ErrChecksum = errors.New("dht: checksum mismatch")

	// ErrShortRead is returned when fewer than 40 data bits were captured.
	ErrShortRead = errors.New("dht: short read")

	// ErrOutOfRange is returned for readings outside the DHT11 datasheet range.
	ErrOutOfRange = errors.New("dht: reading out of range")
)

// DefaultPin is the BCM line the DHT11 data pin is wired to.
const DefaultPin = 4

// Reading is a single temperature/humidity measurement.
type Reading struct {
	Humidity float64 // %RH
	TempC    float64
	At       time.Time
}

// TempF returns the temperature in °F.
func (r Reading) TempF() float64 {
	return r.TempC*9/5 + 32
}

// Validate checks the reading against the sensor's rated range.
func (r Reading) Validate() error {
	if r.Humidity < 0 || r.Humidity > 100 {
		return fmt.Errorf("%w: humidity %.1f%%", ErrOutOfRange, r.Humidity)
	}
	if r.TempC < -40 || r.TempC > 80 {
		return fmt.Errorf("%w: temperature %.1f°C", ErrOutOfRange, r.TempC)
	}
	return nil
}

// Reader performs one raw sensor read.
type Reader interface {
	Read(ctx context.Context) (Reading, error)
	Close() error
}
