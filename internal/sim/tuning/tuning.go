package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// MaxDelaySpanTicks bounds max_delay_ticks - min_delay_ticks.
const MaxDelaySpanTicks = 1 << 32

type Tuning struct {
	TickRateHz         int `yaml:"tick_rate_hz"`
	SnapshotEveryTicks int `yaml:"snapshot_every_ticks"`
	LureStepEveryTicks int `yaml:"lure_step_every_ticks"`

	Input  InputTuning  `yaml:"input"`
	Output OutputTuning `yaml:"output"`

	Eligibility EligibilityTuning `yaml:"eligibility"`
}

type InputTuning struct {
	BufferSize    int `yaml:"buffer_size"`
	LureRadius    int `yaml:"lure_radius"`
	CaptureRadius int `yaml:"capture_radius"`

	LureEveryTicks     int `yaml:"lure_every_ticks"`
	CaptureEveryTicks  int `yaml:"capture_every_ticks"`
	TransferEveryTicks int `yaml:"transfer_every_ticks"`
	ChompTicks         int `yaml:"chomp_ticks"`

	MinDelayTicks uint64 `yaml:"min_delay_ticks"`
	MaxDelayTicks uint64 `yaml:"max_delay_ticks"`

	BackoffBaseTicks uint64 `yaml:"backoff_base_ticks"`
	BackoffCapTicks  uint64 `yaml:"backoff_cap_ticks"`
}

type OutputTuning struct {
	ReleaseEveryTicks    int    `yaml:"release_every_ticks"`
	ReleaseImmunityTicks uint64 `yaml:"release_immunity_ticks"`
	MaxInputs            int    `yaml:"max_inputs"`
}

type EligibilityTuning struct {
	AllowUnbondedCapture bool     `yaml:"allow_unbonded_capture"`
	ExcludedActorTypes   []string `yaml:"excluded_actor_types"`
}

func Defaults() Tuning {
	return Tuning{
		TickRateHz:         20,
		SnapshotEveryTicks: 6000,
		LureStepEveryTicks: 5,
		Input: InputTuning{
			BufferSize:         8,
			LureRadius:         8,
			CaptureRadius:      2,
			LureEveryTicks:     10,
			CaptureEveryTicks:  20,
			TransferEveryTicks: 20,
			ChompTicks:         10,
			MinDelayTicks:      100,
			MaxDelayTicks:      200,
			BackoffBaseTicks:   20,
			BackoffCapTicks:    600,
		},
		Output: OutputTuning{
			ReleaseEveryTicks:    10,
			ReleaseImmunityTicks: 100,
			MaxInputs:            4,
		},
		Eligibility: EligibilityTuning{
			ExcludedActorTypes: []string{"ENDER_DRAGON", "WITHER", "WARDEN", "ELDER_GUARDIAN"},
		},
	}
}

// Load reads path on top of Defaults, so a partial file only overrides what it names.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	switch {
	case t.TickRateHz <= 0:
		return fmt.Errorf("tick_rate_hz must be > 0")
	case t.Input.BufferSize <= 0:
		return fmt.Errorf("input.buffer_size must be > 0")
	case t.Input.CaptureRadius < 0 || t.Input.LureRadius < 0:
		return fmt.Errorf("input radii must be >= 0")
	case t.Input.MaxDelayTicks < t.Input.MinDelayTicks:
		return fmt.Errorf("input.max_delay_ticks must be >= min_delay_ticks")
	case t.Input.MaxDelayTicks-t.Input.MinDelayTicks > MaxDelaySpanTicks:
		return fmt.Errorf("input.max_delay_ticks - min_delay_ticks must be <= %d", uint64(MaxDelaySpanTicks))
	case t.Input.BackoffBaseTicks == 0:
		return fmt.Errorf("input.backoff_base_ticks must be > 0")
	case t.Input.BackoffCapTicks < t.Input.BackoffBaseTicks:
		return fmt.Errorf("input.backoff_cap_ticks must be >= backoff_base_ticks")
	case t.Output.MaxInputs <= 0:
		return fmt.Errorf("output.max_inputs must be > 0")
	}
	return nil
}
