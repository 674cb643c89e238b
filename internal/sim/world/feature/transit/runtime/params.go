package runtime

import "mobtransit.ai/internal/sim/world/feature/transit/backoff"

type Params struct {
	LureRadius    int
	CaptureRadius int

	LureEveryTicks     int
	CaptureEveryTicks  int
	TransferEveryTicks int
	ReleaseEveryTicks  int

	ChompTicks int

	MinDelayTicks uint64
	MaxDelayTicks uint64

	BufferSize int
	Backoff    backoff.Policy

	ReleaseImmunityTicks uint64
	MaxInputs            int
}

func DefaultParams() Params {
	return Params{
		LureRadius:           8,
		CaptureRadius:        2,
		LureEveryTicks:       10,
		CaptureEveryTicks:    20,
		TransferEveryTicks:   20,
		ReleaseEveryTicks:    10,
		ChompTicks:           10,
		MinDelayTicks:        100,
		MaxDelayTicks:        200,
		BufferSize:           8,
		Backoff:              backoff.Policy{Base: 20, Cap: 600},
		ReleaseImmunityTicks: 100,
		MaxInputs:            4,
	}
}

// Cooldown gates a phase to run once every N ticks.
type Cooldown struct {
	Left int
}

func (c *Cooldown) Ready(every int) bool {
	if c.Left > 0 {
		c.Left--
		return false
	}
	if every > 1 {
		c.Left = every - 1
	}
	return true
}
