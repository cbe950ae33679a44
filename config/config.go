// Package config loads the INI configuration file (§6) into typed
// sections using a hand-rolled tokenizer (ini.go) paired with
// github.com/mitchellh/mapstructure for the map-to-struct decode step —
// the same division of labor nasa-jpl-golaborate's koanf-based config
// stack uses (tokenize/parse the source format, then mapstructure the
// result into a Go struct), adapted here from JSON
// (standalone/config/config.go before this rewrite) to the restricted
// INI dialect this spec requires.
package config

import (
	"fmt"
	"io"
	"strings"

	"github.com/mitchellh/mapstructure"

	"cncmotion/motion"
)

// EMCSection is the [EMC] block.
type EMCSection struct {
	Debug   int    `mapstructure:"DEBUG"`
	NMLFile string `mapstructure:"NML_FILE"`
}

// TrajSection is the [TRAJ] block.
type TrajSection struct {
	Axes            int     `mapstructure:"AXES"`
	LinearUnits     string  `mapstructure:"LINEAR_UNITS"`
	AngularUnits    string  `mapstructure:"ANGULAR_UNITS"`
	DefaultVelocity float64 `mapstructure:"DEFAULT_VELOCITY"`
	MaxVelocity     float64 `mapstructure:"MAX_VELOCITY"`
	MaxAcceleration float64 `mapstructure:"MAX_ACCELERATION"`
}

// AxisSection is one [AXIS_n] block, decoded directly into the subset of
// motion.Joint's static fields an INI file configures.
type AxisSection struct {
	Type            string  `mapstructure:"TYPE"`
	Units           float64 `mapstructure:"UNITS"`
	MaxVelocity     float64 `mapstructure:"MAX_VELOCITY"`
	MaxAcceleration float64 `mapstructure:"MAX_ACCELERATION"`
	Backlash        float64 `mapstructure:"BACKLASH"`
	MinLimit        float64 `mapstructure:"MIN_LIMIT"`
	MaxLimit        float64 `mapstructure:"MAX_LIMIT"`
	Ferror          float64 `mapstructure:"FERROR"`
	MinFerror       float64 `mapstructure:"MIN_FERROR"`
	Home            float64 `mapstructure:"HOME"`
	HomeOffset      float64 `mapstructure:"HOME_OFFSET"`
	HomeSearchVel   float64 `mapstructure:"HOME_SEARCH_VEL"`
	HomeLatchVel    float64 `mapstructure:"HOME_LATCH_VEL"`
	HomeUseIndex    bool    `mapstructure:"HOME_USE_INDEX"`
	HomeIgnoreLimits bool   `mapstructure:"HOME_IGNORE_LIMITS"`
	HomeSequence    int     `mapstructure:"HOME_SEQUENCE"`
	CompFile        string  `mapstructure:"COMP_FILE"`
	CompFileType    int     `mapstructure:"COMP_FILE_TYPE"`
}

// EMCIOSection is the [EMCIO] block.
type EMCIOSection struct {
	CycleTime          float64 `mapstructure:"CYCLE_TIME"`
	ToolTable          string  `mapstructure:"TOOL_TABLE"`
	ToolChangePosition string  `mapstructure:"TOOL_CHANGE_POSITION"`
	ToolHolderClear    string  `mapstructure:"TOOL_HOLDER_CLEAR"`
}

// TaskSection is the [TASK] block.
type TaskSection struct {
	CycleTime float64 `mapstructure:"CYCLE_TIME"`
}

// Config is the fully decoded INI configuration (§6).
type Config struct {
	EMC   EMCSection
	Traj  TrajSection
	Axes  []AxisSection
	EMCIO EMCIOSection
	Task  TaskSection
}

// decodeSection mapstructure-decodes a flattened INI section into dst,
// weakly typing string values (every INI value starts life as a string).
func decodeSection(m map[string]interface{}, dst interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           dst,
	})
	if err != nil {
		return err
	}
	return dec.Decode(m)
}

// Load parses an INI configuration document (§6). Missing sections
// decode to their zero value; Load itself does not reject configuration
// that is incomplete for a component, so the caller is responsible for
// that, matching the spec's "Config: bad/missing ini entry — fatal
// at init" error kind (§7).
func Load(r io.Reader) (*Config, error) {
	doc, err := parseINI(r)
	if err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}

	cfg := &Config{}
	if err := decodeSection(doc.asMap("EMC"), &cfg.EMC); err != nil {
		return nil, fmt.Errorf("config: [EMC]: %w", err)
	}
	if err := decodeSection(doc.asMap("TRAJ"), &cfg.Traj); err != nil {
		return nil, fmt.Errorf("config: [TRAJ]: %w", err)
	}
	if err := decodeSection(doc.asMap("EMCIO"), &cfg.EMCIO); err != nil {
		return nil, fmt.Errorf("config: [EMCIO]: %w", err)
	}
	if err := decodeSection(doc.asMap("TASK"), &cfg.Task); err != nil {
		return nil, fmt.Errorf("config: [TASK]: %w", err)
	}

	for _, name := range doc.axisSections() {
		var axis AxisSection
		if err := decodeSection(doc.asMap(name), &axis); err != nil {
			return nil, fmt.Errorf("config: [%s]: %w", name, err)
		}
		cfg.Axes = append(cfg.Axes, axis)
	}

	return cfg, nil
}

// ToJoint converts one decoded [AXIS_n] section into a motion.Joint's
// static configuration fields, applying the LinuxCNC defaults recovered
// from original_source/src/emc/motion/motion.c (min_ferror=0.01,
// max_ferror=1.0) when the INI omits them.
func (a *AxisSection) ToJoint() motion.Joint {
	j := motion.Joint{
		UnitsPerCanonical: a.Units,
		MinPosLimit:       a.MinLimit,
		MaxPosLimit:       a.MaxLimit,
		VelocityLimit:     a.MaxVelocity,
		AccelLimit:        a.MaxAcceleration,
		Backlash:          a.Backlash,
		Home:              a.Home,
		HomeOffset:        a.HomeOffset,
		HomeSearchVel:     a.HomeSearchVel,
		HomeLatchVel:      a.HomeLatchVel,
		HomeSequence:      a.HomeSequence,
		CompTable:         motion.NewCompTable(),
	}
	if strings.EqualFold(a.Type, "ANGULAR") {
		j.Type = motion.JointAngular
	}
	j.MaxFerror = a.Ferror
	if j.MaxFerror == 0 {
		j.MaxFerror = 1.0
	}
	j.MinFerror = a.MinFerror
	if j.MinFerror == 0 {
		j.MinFerror = 0.01
	}
	if a.HomeUseIndex {
		j.HomeFlags |= motion.HomeUseIndex
	}
	if a.HomeIgnoreLimits {
		j.HomeFlags |= motion.HomeIgnoreLimits
	}
	return j
}
