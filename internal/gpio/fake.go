package gpio

// Command is one recorded Set call.
type Command struct {
	Vent  bool
	Dehum bool
}

// FakeRelay is a test double that records commands.
type FakeRelay struct {
	// Commands contains every successful Set, in order.
	Commands []Command

	// SetError, if set, will be returned by Set() and the state is left unchanged.
	SetError error

	// Policy is applied by Close, as the real relay does.
	Policy ShutdownPolicy

	// Closed tracks if Close was called
	Closed bool

	vent, dehum bool
}

// NewFakeRelay creates a FakeRelay with both outputs off.
func NewFakeRelay(policy ShutdownPolicy) *FakeRelay {
	return &FakeRelay{Policy: policy}
}

// Set records the command.
func (f *FakeRelay) Set(vent, dehum bool) error {
	if f.SetError != nil {
		return f.SetError
	}
	f.vent, f.dehum = vent, dehum
	f.Commands = append(f.Commands, Command{Vent: vent, Dehum: dehum})
	return nil
}

// State returns the last recorded command.
func (f *FakeRelay) State() (bool, bool) {
	return f.vent, f.dehum
}

// Close applies the shutdown policy and marks the relay closed.
func (f *FakeRelay) Close() error {
	if f.Policy == ShutdownOff {
		f.vent, f.dehum = false, false
	}
	f.Closed = true
	return nil
}
