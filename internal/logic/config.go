package logic

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidConfig is returned when a Config violates its invariants.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds the immutable per-run decision parameters.
// Temperatures are °F, humidities %RH.
type Config struct {
	AQIThreshold       float64
	IdealHumidity      float64
	HumidityHysteresis float64
	IdealTemperature   float64
	ComfortBand        float64
	MaxOutdoorHumidity float64
	MinOutdoorTemp     float64
	MaxOutdoorTemp     float64
	// ExtremeMargin is the width of the sub-band just inside each outdoor
	// temperature bound where only quick cycling is allowed.
	ExtremeMargin float64
	// DryAirMargin is how much drier (in %RH) outdoor air must be than indoor
	// air before free venting suppresses the dehumidifier.
	DryAirMargin float64

	LimitedOn  time.Duration
	LimitedOff time.Duration
	QuickOn    time.Duration
	QuickOff   time.Duration

	DebounceInterval time.Duration
	StaleTimeout     time.Duration
}

// DefaultConfig returns the built-in tuning.
func DefaultConfig() Config {
	return Config{
		AQIThreshold:       50,
		IdealHumidity:      50,
		HumidityHysteresis: 5,
		IdealTemperature:   72,
		ComfortBand:        2,
		MaxOutdoorHumidity: 85,
		MinOutdoorTemp:     32,
		MaxOutdoorTemp:     95,
		ExtremeMargin:      10,
		DryAirMargin:       5,
		LimitedOn:          10 * time.Minute,
		LimitedOff:         50 * time.Minute,
		QuickOn:            5 * time.Minute,
		QuickOff:           55 * time.Minute,
		DebounceInterval:   60 * time.Second,
		StaleTimeout:       10 * time.Minute,
	}
}

// Validate checks every invariant the decision engine relies on.
// All comparisons in Decide are well defined once Validate returns nil.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	for _, f := range []struct {
		name string
		v    float64
	}{
		{"aqi_threshold", c.AQIThreshold},
		{"ideal_humidity", c.IdealHumidity},
		{"humidity_hysteresis", c.HumidityHysteresis},
		{"ideal_temperature", c.IdealTemperature},
		{"comfort_band", c.ComfortBand},
		{"max_outdoor_humidity", c.MaxOutdoorHumidity},
		{"min_outdoor_temp", c.MinOutdoorTemp},
		{"max_outdoor_temp", c.MaxOutdoorTemp},
		{"extreme_margin", c.ExtremeMargin},
		{"dry_air_margin", c.DryAirMargin},
	} {
		check(!math.IsNaN(f.v) && !math.IsInf(f.v, 0), "%s must be a finite number", f.name)
	}

	aqiMin, aqiMax := OutdoorAQI.ValidRange()
	check(c.AQIThreshold > aqiMin && c.AQIThreshold <= aqiMax, "aqi_threshold %.1f outside (%.0f, %.0f]", c.AQIThreshold, aqiMin, aqiMax)

	hMin, hMax := IndoorHumidity.ValidRange()
	check(c.IdealHumidity > hMin && c.IdealHumidity < hMax, "ideal_humidity %.1f outside (%.0f, %.0f)", c.IdealHumidity, hMin, hMax)
	check(c.HumidityHysteresis >= 0, "humidity_hysteresis must be >= 0")
	check(c.IdealHumidity-c.HumidityHysteresis > hMin && c.IdealHumidity+c.HumidityHysteresis < hMax,
		"ideal_humidity ± humidity_hysteresis must stay inside (%.0f, %.0f)", hMin, hMax)
	check(c.MaxOutdoorHumidity > hMin && c.MaxOutdoorHumidity <= hMax, "max_outdoor_humidity %.1f outside (%.0f, %.0f]", c.MaxOutdoorHumidity, hMin, hMax)
	check(c.DryAirMargin >= 0, "dry_air_margin must be >= 0")

	tMin, tMax := OutdoorTemp.ValidRange()
	check(c.MinOutdoorTemp >= tMin && c.MinOutdoorTemp <= tMax, "min_outdoor_temp %.1f outside [%.0f, %.0f]", c.MinOutdoorTemp, tMin, tMax)
	check(c.MaxOutdoorTemp >= tMin && c.MaxOutdoorTemp <= tMax, "max_outdoor_temp %.1f outside [%.0f, %.0f]", c.MaxOutdoorTemp, tMin, tMax)
	check(c.MinOutdoorTemp < c.MaxOutdoorTemp, "min_outdoor_temp %.1f must be below max_outdoor_temp %.1f", c.MinOutdoorTemp, c.MaxOutdoorTemp)
	check(c.ExtremeMargin >= 0, "extreme_margin must be >= 0")
	check(2*c.ExtremeMargin < c.MaxOutdoorTemp-c.MinOutdoorTemp, "extreme_margin %.1f leaves no neutral band between %.1f and %.1f",
		c.ExtremeMargin, c.MinOutdoorTemp, c.MaxOutdoorTemp)

	iMin, iMax := IndoorTemp.ValidRange()
	check(c.IdealTemperature > iMin && c.IdealTemperature < iMax, "ideal_temperature %.1f outside (%.0f, %.0f)", c.IdealTemperature, iMin, iMax)
	check(c.ComfortBand >= 0, "comfort_band must be >= 0")

	check(c.LimitedOn > 0 && c.LimitedOff > 0, "limited cycle durations must be > 0")
	check(c.QuickOn > 0 && c.QuickOff > 0, "quick cycle durations must be > 0")
	check(c.DebounceInterval >= 0, "debounce_interval must be >= 0")
	check(c.StaleTimeout > 0, "stale_timeout must be > 0")

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// cycleDurations returns the on/off durations for a cycling mode.
func (c Config) cycleDurations(m Mode) (on, off time.Duration) {
	if m == ModeQuickCycle {
		return c.QuickOn, c.QuickOff
	}
	return c.LimitedOn, c.LimitedOff
}
