package dht

import (
	"fmt"
	"time"
)

// bitThreshold separates a 0 bit (~26µs high) from a 1 bit (~70µs high).
const bitThreshold = 50 * time.Microsecond

// edge is one captured line transition, timestamped by the kernel.
type edge struct {
	rising bool
	at     time.Duration
}

// highPulses returns the width of each complete high pulse in edges.
func highPulses(edges []edge) []time.Duration {
	var pulses []time.Duration
	var riseAt time.Duration
	high := false
	for _, e := range edges {
		switch {
		case e.rising:
			riseAt = e.at
			high = true
		case high:
			pulses = append(pulses, e.at-riseAt)
			high = false
		}
	}
	return pulses
}

// decode turns high-pulse widths into the five data bytes. The sensor's
// response preamble also produces a high pulse, so only the last 40 pulses
// carry data.
func decode(pulses []time.Duration) ([5]byte, error) {
	var data [5]byte
	if len(pulses) < 40 {
		return data, fmt.Errorf("%w: %d bits", ErrShortRead, len(pulses))
	}
	bits := pulses[len(pulses)-40:]
	for i, w := range bits {
		data[i/8] <<= 1
		if w > bitThreshold {
			data[i/8] |= 1
		}
	}
	sum := data[0] + data[1] + data[2] + data[3]
	if sum != data[4] {
		return data, fmt.Errorf("%w: got %#02x want %#02x", ErrChecksum, data[4], sum)
	}
	return data, nil
}

// parse converts the data bytes to humidity and °C. Bit 7 of the temperature
// decimal byte marks a negative temperature.
func parse(data [5]byte) (humidity, tempC float64) {
	humidity = float64(data[0]) + float64(data[1])/10
	tempC = float64(data[2]) + float64(data[3]&0x7f)/10
	if data[3]&0x80 != 0 {
		tempC = -tempC
	}
	return humidity, tempC
}
