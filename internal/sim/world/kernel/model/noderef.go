package model

import "sort"

// NodeRef identifies a pipeline node by the world it lives in and its block position.
// Nodes never hold pointers to their peers, only refs resolved at use time.
type NodeRef struct {
	WorldID string
	Pos     Vec3i
}

func (r NodeRef) IsZero() bool { return r.WorldID == "" && r.Pos == (Vec3i{}) }

func (r NodeRef) String() string { return r.WorldID + "@" + r.Pos.String() }

func SortNodeRefs(refs []NodeRef) {
	sort.Slice(refs, func(i, j int) bool { return LessNodeRef(refs[i], refs[j]) })
}

func LessNodeRef(a, b NodeRef) bool {
	if a.WorldID != b.WorldID {
		return a.WorldID < b.WorldID
	}
	return LessPos(a.Pos, b.Pos)
}

func LessPos(a, b Vec3i) bool {
	if a.X != b.X {
		return a.X < b.X
	}
	if a.Y != b.Y {
		return a.Y < b.Y
	}
	return a.Z < b.Z
}
