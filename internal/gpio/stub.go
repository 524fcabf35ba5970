//go:build !linux

package gpio

// RealRelay is not available on non-Linux platforms.
type RealRelay struct{}

// NewRealRelay returns ErrUnsupported on non-Linux platforms.
func NewRealRelay(pinVent, pinDehum int, activeLow bool, policy ShutdownPolicy) (*RealRelay, error) {
	return nil, ErrUnsupported
}

// Set is not implemented on non-Linux platforms.
func (r *RealRelay) Set(vent, dehum bool) error {
	return ErrUnsupported
}

// State always reports both outputs off.
func (r *RealRelay) State() (bool, bool) {
	return false, false
}

// Close is a no-op on non-Linux platforms.
func (r *RealRelay) Close() error {
	return nil
}
