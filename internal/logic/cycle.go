package logic

import "time"

// CycleState is the duty-cycle phase owned by the scheduler.
// The zero value means no cycle is active.
type CycleState struct {
	Mode       Mode
	Phase      Phase
	PhaseStart time.Time
}

// Active reports whether a cycle is running.
func (c CycleState) Active() bool {
	return c.Mode.Cycling()
}

// AdvanceCycle moves the duty cycle forward to now for the given mode and
// reports whether the vent should be open. Leaving a cycling mode discards
// the phase; entering one (or switching between limited and quick) starts a
// fresh ON phase at now.
func AdvanceCycle(cfg Config, c CycleState, mode Mode, now time.Time) (CycleState, bool) {
	if !mode.Cycling() {
		return CycleState{}, mode == ModeFreeVent
	}

	if c.Mode != mode {
		c = CycleState{Mode: mode, Phase: PhaseOn, PhaseStart: now}
	}

	on, off := cfg.cycleDurations(mode)
	for {
		d := on
		if c.Phase == PhaseOff {
			d = off
		}
		if now.Sub(c.PhaseStart) < d {
			break
		}
		// Phase boundaries stay on the original timeline even if ticks were missed.
		c.PhaseStart = c.PhaseStart.Add(d)
		c.Phase = flip(c.Phase)
	}

	return c, c.Phase == PhaseOn
}

func flip(p Phase) Phase {
	if p == PhaseOn {
		return PhaseOff
	}
	return PhaseOn
}
