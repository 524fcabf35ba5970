package logic

import (
	"fmt"
	"time"
)

// Decision is the engine's desired outcome for one tick, before cycling and
// debounce are applied.
type Decision struct {
	Mode        Mode
	VentReason  string
	Dehum       DehumCommand
	DehumReason string
}

// Decide maps smoothed metrics to a venting mode and a dehumidifier command.
// Rules are evaluated in priority order and the first match wins; every
// branch is total over its inputs.
func Decide(cfg Config, m Metrics) Decision {
	d := Decision{}
	d.Mode, d.VentReason = decideVent(cfg, m)
	d.Dehum, d.DehumReason = decideDehum(cfg, m, d.Mode)
	return d
}

func decideVent(cfg Config, m Metrics) (Mode, string) {
	// Safety: air quality protection.
	aqi := m[OutdoorAQI]
	if ok, why := usable(cfg, aqi); !ok {
		return ModeSafetyClosed, "outdoor AQI " + why + ": failing safe"
	}
	if aqi.Value >= cfg.AQIThreshold {
		return ModeSafetyClosed, fmt.Sprintf("outdoor AQI %.1f >= threshold %.1f", aqi.Value, cfg.AQIThreshold)
	}

	// Range guard.
	out := m[OutdoorTemp]
	if ok, why := usable(cfg, out); !ok {
		return ModeIdleClosed, "outdoor temperature " + why
	}
	outHum := m[OutdoorHumidity]
	if ok, why := usable(cfg, outHum); !ok {
		return ModeIdleClosed, "outdoor humidity " + why
	}
	if outHum.Value >= cfg.MaxOutdoorHumidity {
		return ModeIdleClosed, fmt.Sprintf("outdoor humidity %.1f%% >= max %.1f%%", outHum.Value, cfg.MaxOutdoorHumidity)
	}
	if out.Value < cfg.MinOutdoorTemp {
		return ModeIdleClosed, fmt.Sprintf("outdoor temperature %.1f°F below min %.1f°F", out.Value, cfg.MinOutdoorTemp)
	}
	if out.Value > cfg.MaxOutdoorTemp {
		return ModeIdleClosed, fmt.Sprintf("outdoor temperature %.1f°F above max %.1f°F", out.Value, cfg.MaxOutdoorTemp)
	}

	// Comfort-directed venting.
	in := m[IndoorTemp]
	if ok, why := usable(cfg, in); !ok {
		return ModeIdleClosed, "indoor temperature " + why + ": cannot evaluate venting benefit"
	}
	extreme := isExtreme(cfg, out.Value)
	if helps(cfg, in.Value, out.Value) && !extreme {
		return ModeFreeVent, fmt.Sprintf("outdoor %.1f°F moves indoor %.1f°F toward ideal %.1f°F", out.Value, in.Value, cfg.IdealTemperature)
	}

	// Extreme but safe.
	if extreme {
		return ModeQuickCycle, fmt.Sprintf("outdoor %.1f°F within %.1f°F of bounds [%.1f, %.1f]: quick air exchange",
			out.Value, cfg.ExtremeMargin, cfg.MinOutdoorTemp, cfg.MaxOutdoorTemp)
	}

	return ModeLimitedCycle, fmt.Sprintf("outdoor %.1f°F neutral for indoor %.1f°F: limited air exchange", out.Value, in.Value)
}

func decideDehum(cfg Config, m Metrics, mode Mode) (DehumCommand, string) {
	in := m[IndoorHumidity]
	if ok, why := usable(cfg, in); !ok {
		return DehumOff, "indoor humidity " + why + ": not running blind"
	}

	onAt := cfg.IdealHumidity + cfg.HumidityHysteresis
	offAt := cfg.IdealHumidity - cfg.HumidityHysteresis

	switch {
	case in.Value >= onAt:
		if mode == ModeFreeVent {
			out := m[OutdoorHumidity]
			if ok, _ := usable(cfg, out); ok && out.Value <= in.Value-cfg.DryAirMargin {
				return DehumOff, fmt.Sprintf("indoor humidity %.1f%% high but free venting with drier outdoor air %.1f%%", in.Value, out.Value)
			}
		}
		return DehumOn, fmt.Sprintf("indoor humidity %.1f%% >= %.1f%%", in.Value, onAt)
	case in.Value <= offAt:
		return DehumOff, fmt.Sprintf("indoor humidity %.1f%% <= %.1f%%", in.Value, offAt)
	default:
		return DehumHold, fmt.Sprintf("indoor humidity %.1f%% within hysteresis band", in.Value)
	}
}

// usable reports whether a smoothed value may be used by a rule. A metric
// running on fallback for longer than StaleTimeout counts as unavailable.
func usable(cfg Config, sv SmoothedValue) (bool, string) {
	if !sv.Available {
		return false, "unavailable"
	}
	if sv.Fallback && sv.Age > cfg.StaleTimeout {
		return false, fmt.Sprintf("stale (last valid %s ago)", sv.Age.Truncate(time.Second))
	}
	return true, ""
}

// helps reports whether outdoor air moves indoor temperature toward ideal.
func helps(cfg Config, indoor, outdoor float64) bool {
	if indoor > cfg.IdealTemperature+cfg.ComfortBand && outdoor < indoor {
		return true
	}
	if indoor < cfg.IdealTemperature-cfg.ComfortBand && outdoor > indoor {
		return true
	}
	return false
}

// isExtreme reports whether an in-range outdoor temperature sits in the
// sub-band next to either bound.
func isExtreme(cfg Config, outdoor float64) bool {
	return outdoor < cfg.MinOutdoorTemp+cfg.ExtremeMargin || outdoor > cfg.MaxOutdoorTemp-cfg.ExtremeMargin
}
