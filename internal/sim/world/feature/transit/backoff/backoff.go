package backoff

// Policy maps the previous backoff to the next one, doubling up to Cap.
type Policy struct {
	Base uint64
	Cap  uint64
}

func (p Policy) Next(current uint64) uint64 {
	limit := p.Cap
	if limit == 0 {
		limit = p.Base
	}
	if current == 0 {
		if p.Base > limit {
			return limit
		}
		return p.Base
	}
	if current > limit/2 {
		return limit
	}
	return current * 2
}

// State is the per-node countdown. While Remaining > 0 the node skips every phase.
type State struct {
	Current   uint64
	Remaining uint64
}

// Fail advances to the next backoff and starts its countdown.
func (s *State) Fail(p Policy) uint64 {
	s.Current = p.Next(s.Current)
	s.Remaining = s.Current
	return s.Current
}

func (s *State) Succeed() {
	s.Current = 0
	s.Remaining = 0
}

// Tick consumes one tick of the countdown and reports whether the node is paused.
func (s *State) Tick() bool {
	if s.Remaining == 0 {
		return false
	}
	s.Remaining--
	return true
}

func (s State) Paused() bool { return s.Remaining > 0 }
