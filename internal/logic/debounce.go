package logic

import "time"

// Gate holds an actuation output and suppresses flips that come sooner than
// the debounce interval after the previous transition.
type Gate struct {
	Output         bool
	LastTransition time.Time
}

// Apply proposes a new output. It returns the updated gate and whether the
// proposal was held back. A zero LastTransition never holds, and override
// bypasses the interval entirely.
func (g Gate) Apply(desired bool, now time.Time, interval time.Duration, override bool) (Gate, bool) {
	if desired == g.Output {
		return g, false
	}
	if !override && !g.LastTransition.IsZero() && now.Sub(g.LastTransition) < interval {
		return g, true
	}
	return Gate{Output: desired, LastTransition: now}, false
}
