// Package config loads the decision tuning file for the vent controller.
//
// The file is YAML and every key is optional; absent keys keep the built-in
// defaults from logic.DefaultConfig. Unknown keys are rejected. Values are
// checked twice: field ranges through struct tags, then the cross-field
// invariants through logic.Config.Validate. Any failure is fatal at startup.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"

	"github.com/sweeney/vent-controller/internal/logic"
)

// File mirrors the YAML tuning file. Temperatures are °F, humidities %RH.
type File struct {
	AQIThreshold       float64 `yaml:"aqi_threshold" validate:"gt=0,lte=500"`
	IdealHumidity      float64 `yaml:"ideal_humidity" validate:"gt=0,lt=100"`
	HumidityHysteresis float64 `yaml:"humidity_hysteresis" validate:"gte=0,lt=50"`
	IdealTemperature   float64 `yaml:"ideal_temperature" validate:"gte=40,lte=100"`
	ComfortBand        float64 `yaml:"temperature_comfort_band" validate:"gte=0,lte=20"`
	MaxOutdoorHumidity float64 `yaml:"max_outdoor_humidity" validate:"gt=0,lte=100"`
	MinOutdoorTemp     float64 `yaml:"min_outdoor_temp" validate:"gte=-40,lte=185"`
	MaxOutdoorTemp     float64 `yaml:"max_outdoor_temp" validate:"gte=-40,lte=185,gtfield=MinOutdoorTemp"`
	ExtremeMargin      float64 `yaml:"extreme_margin" validate:"gte=0"`
	DryAirMargin       float64 `yaml:"dry_air_margin" validate:"gte=0,lte=100"`

	LimitedCycle Cycle `yaml:"limited_cycle"`
	QuickCycle   Cycle `yaml:"quick_cycle"`

	DebounceInterval time.Duration `yaml:"debounce_interval" validate:"gte=0"`
	StaleTimeout     time.Duration `yaml:"stale_timeout" validate:"gt=0"`
}

// Cycle is an on/off duty-cycle pair.
type Cycle struct {
	On  time.Duration `yaml:"on" validate:"gt=0"`
	Off time.Duration `yaml:"off" validate:"gt=0"`
}

// ErrorType categorizes configuration loading failures.
type ErrorType string

const (
	ErrRead       ErrorType = "READ_FAILED"
	ErrParsing    ErrorType = "PARSING_FAILED"
	ErrValidation ErrorType = "VALIDATION_FAILED"
)

// Error is returned by Load and Parse.
type Error struct {
	Type    ErrorType
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Defaults returns the tuning file equivalent of logic.DefaultConfig.
func Defaults() File {
	return FromLogic(logic.DefaultConfig())
}

// FromLogic converts a logic.Config into its file form.
func FromLogic(c logic.Config) File {
	return File{
		AQIThreshold:       c.AQIThreshold,
		IdealHumidity:      c.IdealHumidity,
		HumidityHysteresis: c.HumidityHysteresis,
		IdealTemperature:   c.IdealTemperature,
		ComfortBand:        c.ComfortBand,
		MaxOutdoorHumidity: c.MaxOutdoorHumidity,
		MinOutdoorTemp:     c.MinOutdoorTemp,
		MaxOutdoorTemp:     c.MaxOutdoorTemp,
		ExtremeMargin:      c.ExtremeMargin,
		DryAirMargin:       c.DryAirMargin,
		LimitedCycle:       Cycle{On: c.LimitedOn, Off: c.LimitedOff},
		QuickCycle:         Cycle{On: c.QuickOn, Off: c.QuickOff},
		DebounceInterval:   c.DebounceInterval,
		StaleTimeout:       c.StaleTimeout,
	}
}

// Logic converts the file into the decision engine's config.
func (f File) Logic() logic.Config {
	return logic.Config{
		AQIThreshold:       f.AQIThreshold,
		IdealHumidity:      f.IdealHumidity,
		HumidityHysteresis: f.HumidityHysteresis,
		IdealTemperature:   f.IdealTemperature,
		ComfortBand:        f.ComfortBand,
		MaxOutdoorHumidity: f.MaxOutdoorHumidity,
		MinOutdoorTemp:     f.MinOutdoorTemp,
		MaxOutdoorTemp:     f.MaxOutdoorTemp,
		ExtremeMargin:      f.ExtremeMargin,
		DryAirMargin:       f.DryAirMargin,
		LimitedOn:          f.LimitedCycle.On,
		LimitedOff:         f.LimitedCycle.Off,
		QuickOn:            f.QuickCycle.On,
		QuickOff:           f.QuickCycle.Off,
		DebounceInterval:   f.DebounceInterval,
		StaleTimeout:       f.StaleTimeout,
	}
}

// Load reads and validates the tuning file at path. An empty path yields the
// defaults.
func Load(path string) (logic.Config, error) {
	if path == "" {
		return Parse(nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return logic.Config{}, &Error{Type: ErrRead, Message: "read " + path, Err: err}
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (logic.Config, error) {
	f := Defaults()
	if err := yaml.UnmarshalStrict(data, &f); err != nil {
		return logic.Config{}, &Error{Type: ErrParsing, Message: "decode tuning file", Err: err}
	}

	if err := validator.New().Struct(f); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return logic.Config{}, &Error{Type: ErrValidation, Message: "field validation failed", Err: describe(verrs)}
		}
		return logic.Config{}, &Error{Type: ErrValidation, Message: "field validation failed", Err: err}
	}

	cfg := f.Logic()
	if err := cfg.Validate(); err != nil {
		return logic.Config{}, &Error{Type: ErrValidation, Message: "invariant check failed", Err: err}
	}
	return cfg, nil
}

// Marshal renders the config as a tuning file, for --print-config.
func Marshal(c logic.Config) ([]byte, error) {
	return yaml.Marshal(FromLogic(c))
}

func describe(verrs validator.ValidationErrors) error {
	errs := make([]error, 0, len(verrs))
	for _, fe := range verrs {
		errs = append(errs, fmt.Errorf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag()+paramSuffix(fe.Param()), fe.Value()))
	}
	return errors.Join(errs...)
}

func paramSuffix(p string) string {
	if p == "" {
		return ""
	}
	return "=" + p
}
