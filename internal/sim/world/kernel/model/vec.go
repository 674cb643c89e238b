package model

import "fmt"

type Vec3i struct {
	X int
	Y int
	Z int
}

func (v Vec3i) ToArray() [3]int { return [3]int{v.X, v.Y, v.Z} }

func (v Vec3i) Add(o Vec3i) Vec3i { return Vec3i{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z} }

func (v Vec3i) String() string { return fmt.Sprintf("%d,%d,%d", v.X, v.Y, v.Z) }

func Vec3iFromArray(a [3]int) Vec3i { return Vec3i{X: a[0], Y: a[1], Z: a[2]} }

func Manhattan(a, b Vec3i) int {
	return absInt(a.X-b.X) + absInt(a.Y-b.Y) + absInt(a.Z-b.Z)
}

// DistSq is the squared euclidean distance; radius checks compare against r*r.
func DistSq(a, b Vec3i) int {
	dx := a.X - b.X
	dy := a.Y - b.Y
	dz := a.Z - b.Z
	return dx*dx + dy*dy + dz*dz
}

func InRadius(center, p Vec3i, radius int) bool {
	if radius < 0 {
		return false
	}
	return DistSq(center, p) <= radius*radius
}

// StepToward moves one block along the dominant axis toward target.
func StepToward(from, target Vec3i) Vec3i {
	dx := target.X - from.X
	dy := target.Y - from.Y
	dz := target.Z - from.Z
	ax, ay, az := absInt(dx), absInt(dy), absInt(dz)
	switch {
	case ax == 0 && ay == 0 && az == 0:
		return from
	case ax >= az && ax >= ay:
		from.X += sign(dx)
	case az >= ay:
		from.Z += sign(dz)
	default:
		from.Y += sign(dy)
	}
	return from
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func sign(x int) int {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	}
	return 0
}
