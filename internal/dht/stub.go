//go:build !linux

package dht

import (
	"context"
	"errors"
)

var errUnsupported = errors.New("dht: gpio reader requires linux")

// GPIOReader is not available on non-Linux platforms.
type GPIOReader struct{}

// NewGPIOReader returns an error on non-Linux platforms.
func NewGPIOReader(pin int) (*GPIOReader, error) {
	return nil, errUnsupported
}

// Read is not implemented on non-Linux platforms.
func (r *GPIOReader) Read(ctx context.Context) (Reading, error) {
	return Reading{}, errUnsupported
}

// Close is a no-op on non-Linux platforms.
func (r *GPIOReader) Close() error {
	return nil
}
