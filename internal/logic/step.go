package logic

import (
	"strings"
	"time"
)

// ControlState is the authoritative actuation state threaded through Step.
type ControlState struct {
	Mode Mode
	// DehumRequested latches the dehumidifier rule across its hysteresis band.
	DehumRequested bool
	Cycle          CycleState
	Vent           Gate
	Dehum          Gate
	Counts         TransitionCounts
}

// NewControlState returns the state for a controller started at start: both
// outputs off, and the start time counting as the last transition.
func NewControlState(start time.Time) ControlState {
	return ControlState{
		Mode:  ModeIdleClosed,
		Vent:  Gate{LastTransition: start},
		Dehum: Gate{LastTransition: start},
	}
}

// Step runs one decision tick. It is a pure function of its arguments.
func Step(cfg Config, prev ControlState, m Metrics, now time.Time) (ControlState, Snapshot) {
	d := Decide(cfg, m)
	next := prev
	next.Mode = d.Mode

	var wantOpen bool
	next.Cycle, wantOpen = AdvanceCycle(cfg, prev.Cycle, d.Mode, now)

	safety := d.Mode == ModeSafetyClosed
	override := safety && prev.Vent.Output
	var ventHeld bool
	next.Vent, ventHeld = prev.Vent.Apply(wantOpen, now, cfg.DebounceInterval, override)

	switch d.Dehum {
	case DehumOn:
		next.DehumRequested = true
	case DehumOff:
		next.DehumRequested = false
	}
	var dehumHeld bool
	next.Dehum, dehumHeld = prev.Dehum.Apply(next.DehumRequested, now, cfg.DebounceInterval, false)

	countTransitions(&next.Counts, prev, next, override)

	snap := Snapshot{
		Timestamp:    now,
		VentOpen:     next.Vent.Output,
		DehumidifyOn: next.Dehum.Output,
		Mode:         d.Mode,
		Phase:        next.Cycle.Phase,
		VentHeld:     ventHeld,
		DehumHeld:    dehumHeld,
		Safety:       safety,
		Metrics:      m,
		Reason:       formatReason(d, next.Cycle, ventHeld, dehumHeld),
	}
	return next, snap
}

func countTransitions(c *TransitionCounts, prev, next ControlState, override bool) {
	if prev.Vent.Output != next.Vent.Output {
		if next.Vent.Output {
			c.VentOpen++
		} else {
			c.VentClose++
		}
		if override {
			c.SafetyOverrides++
		}
	}
	if prev.Dehum.Output != next.Dehum.Output {
		if next.Dehum.Output {
			c.DehumOn++
		} else {
			c.DehumOff++
		}
	}
}

func formatReason(d Decision, c CycleState, ventHeld, dehumHeld bool) string {
	var b strings.Builder
	b.WriteString("vent ")
	b.WriteString(string(d.Mode))
	if c.Active() {
		b.WriteString(" (")
		b.WriteString(string(c.Phase))
		b.WriteString(" phase)")
	}
	b.WriteString(": ")
	b.WriteString(d.VentReason)
	if ventHeld {
		b.WriteString(" [held by debounce]")
	}
	b.WriteString("; dehumidifier ")
	b.WriteString(d.Dehum.String())
	b.WriteString(": ")
	b.WriteString(d.DehumReason)
	if dehumHeld {
		b.WriteString(" [held by debounce]")
	}
	return b.String()
}
