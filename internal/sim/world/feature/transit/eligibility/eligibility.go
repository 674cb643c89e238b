package eligibility

import modelpkg "mobtransit.ai/internal/sim/world/kernel/model"

type Reason string

const (
	ReasonEligible  Reason = "ELIGIBLE"
	ReasonPlayer    Reason = "PLAYER"
	ReasonNotMobile Reason = "NOT_MOBILE"
	ReasonExcluded  Reason = "EXCLUDED_TYPE"
	ReasonImmune    Reason = "IMMUNE"
	ReasonUnbonded  Reason = "UNBONDED"
)

type Result struct {
	Eligible bool
	Reason   Reason
}

// Filter decides whether an actor may be captured. It keeps no state of its own;
// immunity is read through ImmuneUntil so the filter can be shared by every node.
type Filter struct {
	Excluded      map[string]bool
	AllowUnbonded bool
	ImmuneUntil   func(actorID string) uint64
}

func New(excluded []string, allowUnbonded bool, immuneUntil func(string) uint64) Filter {
	f := Filter{
		Excluded:      make(map[string]bool, len(excluded)),
		AllowUnbonded: allowUnbonded,
		ImmuneUntil:   immuneUntil,
	}
	for _, t := range excluded {
		if t != "" {
			f.Excluded[t] = true
		}
	}
	return f
}

func (f Filter) Check(a *modelpkg.Actor, now uint64) Result {
	switch {
	case a == nil:
		return Result{Reason: ReasonNotMobile}
	case a.IsPlayer():
		return Result{Reason: ReasonPlayer}
	case !a.IsMobile():
		return Result{Reason: ReasonNotMobile}
	case f.Excluded[a.Type]:
		return Result{Reason: ReasonExcluded}
	}
	if f.ImmuneUntil != nil && now < f.ImmuneUntil(a.ID) {
		return Result{Reason: ReasonImmune}
	}
	if !a.Bonded && !f.AllowUnbonded {
		return Result{Reason: ReasonUnbonded}
	}
	return Result{Eligible: true, Reason: ReasonEligible}
}

func (f Filter) Eligible(a *modelpkg.Actor, now uint64) bool { return f.Check(a, now).Eligible }

// HasPriorityMarker only affects candidate ordering, never eligibility.
func HasPriorityMarker(a *modelpkg.Actor) bool { return a != nil && a.Priority }
