package dht

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// DefaultIIODevice is where the kernel dht11 overlay usually registers.
const DefaultIIODevice = "/sys/bus/iio/devices/iio:device0"

// IIOReader reads the kernel dht11 driver through sysfs. Values there are
// milli-degrees and milli-percent.
type IIOReader struct {
	dir string
	now func() time.Time
}

// NewIIOReader returns a reader for the IIO device directory dir.
func NewIIOReader(dir string) *IIOReader {
	return &IIOReader{dir: dir, now: time.Now}
}

// Read reads temperature then humidity. The driver performs the bus
// transaction on the first file read and caches it briefly for the second.
func (r *IIOReader) Read(ctx context.Context) (Reading, error) {
	if err := ctx.Err(); err != nil {
		return Reading{}, err
	}
	temp, err := readMilli(filepath.Join(r.dir, "in_temp_input"))
	if err != nil {
		return Reading{}, err
	}
	hum, err := readMilli(filepath.Join(r.dir, "in_humidityrelative_input"))
	if err != nil {
		return Reading{}, err
	}
	return Reading{Humidity: hum, TempC: temp, At: r.now()}, nil
}

// Close is a no-op; nothing is held open between reads.
func (r *IIOReader) Close() error {
	return nil
}

func readMilli(path string) (float64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	v, err := strconv.ParseInt(strings.TrimSpace(string(b)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return float64(v) / 1000, nil
}
