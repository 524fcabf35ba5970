package dht

import (
	"context"
	"errors"
)

// FakeResult is one scripted outcome of FakeReader.Read.
type FakeResult struct {
	Reading Reading
	Err     error
}

// FakeReader is a test double that returns scripted results.
// Once exhausted, the last result repeats.
type FakeReader struct {
	Results []FakeResult
	Calls   int
	Closed  bool

	index int
}

// NewFakeReader creates a FakeReader with the given results.
func NewFakeReader(results ...FakeResult) *FakeReader {
	return &FakeReader{Results: results}
}

// Read returns the next scripted result.
func (f *FakeReader) Read(ctx context.Context) (Reading, error) {
	f.Calls++
	if len(f.Results) == 0 {
		return Reading{}, errors.New("no results configured")
	}
	r := f.Results[f.index]
	if f.index < len(f.Results)-1 {
		f.index++
	}
	return r.Reading, r.Err
}

// Close marks the reader as closed.
func (f *FakeReader) Close() error {
	f.Closed = true
	return nil
}
