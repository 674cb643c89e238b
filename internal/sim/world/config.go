package world

import (
	"mobtransit.ai/internal/sim/catalogs"
	"mobtransit.ai/internal/sim/tuning"
	"mobtransit.ai/internal/sim/world/feature/transit/backoff"
	"mobtransit.ai/internal/sim/world/feature/transit/runtime"
)

type WorldConfig struct {
	ID         string
	TickRateHz int
	Seed       int64

	// Operational parameters. These are included in snapshots for resume.
	SnapshotEveryTicks int
	LureStepEveryTicks int

	Transit runtime.Params

	// Capture eligibility.
	ExcludedActorTypes   []string
	AllowUnbondedCapture bool
}

func (c *WorldConfig) applyDefaults() {
	if c.ID == "" {
		c.ID = "world_1"
	}
	if c.TickRateHz <= 0 {
		c.TickRateHz = 20
	}
	if c.LureStepEveryTicks <= 0 {
		c.LureStepEveryTicks = 5
	}
	d := runtime.DefaultParams()
	p := &c.Transit
	if p.LureRadius <= 0 {
		p.LureRadius = d.LureRadius
	}
	if p.CaptureRadius <= 0 {
		p.CaptureRadius = d.CaptureRadius
	}
	if p.LureEveryTicks <= 0 {
		p.LureEveryTicks = d.LureEveryTicks
	}
	if p.CaptureEveryTicks <= 0 {
		p.CaptureEveryTicks = d.CaptureEveryTicks
	}
	if p.TransferEveryTicks <= 0 {
		p.TransferEveryTicks = d.TransferEveryTicks
	}
	if p.ReleaseEveryTicks <= 0 {
		p.ReleaseEveryTicks = d.ReleaseEveryTicks
	}
	if p.ChompTicks < 0 {
		p.ChompTicks = 0
	}
	if p.MaxDelayTicks < p.MinDelayTicks {
		p.MaxDelayTicks = p.MinDelayTicks
	}
	if p.BufferSize <= 0 {
		p.BufferSize = d.BufferSize
	}
	if p.Backoff.Base == 0 {
		p.Backoff = d.Backoff
	}
	if p.Backoff.Cap < p.Backoff.Base {
		p.Backoff.Cap = p.Backoff.Base
	}
	if p.MaxInputs <= 0 {
		p.MaxInputs = d.MaxInputs
	}
}

// ConfigFromTuning merges the YAML tuning with the catalog's capture exclusions.
func ConfigFromTuning(id string, seed int64, t tuning.Tuning, cats *catalogs.Catalogs) WorldConfig {
	excluded := append([]string(nil), t.Eligibility.ExcludedActorTypes...)
	if cats != nil {
		excluded = append(excluded, cats.Actors.Excluded()...)
	}
	return WorldConfig{
		ID:                 id,
		TickRateHz:         t.TickRateHz,
		Seed:               seed,
		SnapshotEveryTicks: t.SnapshotEveryTicks,
		LureStepEveryTicks: t.LureStepEveryTicks,
		Transit: runtime.Params{
			LureRadius:           t.Input.LureRadius,
			CaptureRadius:        t.Input.CaptureRadius,
			LureEveryTicks:       t.Input.LureEveryTicks,
			CaptureEveryTicks:    t.Input.CaptureEveryTicks,
			TransferEveryTicks:   t.Input.TransferEveryTicks,
			ReleaseEveryTicks:    t.Output.ReleaseEveryTicks,
			ChompTicks:           t.Input.ChompTicks,
			MinDelayTicks:        t.Input.MinDelayTicks,
			MaxDelayTicks:        t.Input.MaxDelayTicks,
			BufferSize:           t.Input.BufferSize,
			Backoff:              backoff.Policy{Base: t.Input.BackoffBaseTicks, Cap: t.Input.BackoffCapTicks},
			ReleaseImmunityTicks: t.Output.ReleaseImmunityTicks,
			MaxInputs:            t.Output.MaxInputs,
		},
		ExcludedActorTypes:   excluded,
		AllowUnbondedCapture: t.Eligibility.AllowUnbondedCapture,
	}
}
