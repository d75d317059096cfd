// Package transform provides the bone-space transform type shared by the
// skeleton and mesh mergers.
package transform

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"gonum.org/v1/gonum/spatial/r3"
)

// Transform is a translation/rotation/scale triple expressed relative to a
// parent space (a bone reference pose, a socket offset, a component offset).
type Transform struct {
	Translation r3.Vec
	Rotation    mgl64.Quat
	Scale       r3.Vec
}

// Identity returns the neutral transform.
func Identity() Transform {
	return Transform{
		Rotation: mgl64.QuatIdent(),
		Scale:    r3.Vec{X: 1, Y: 1, Z: 1},
	}
}

// FromTranslation returns a pure translation transform.
func FromTranslation(v r3.Vec) Transform {
	t := Identity()
	t.Translation = v
	return t
}

// TransformPoint applies scale, rotation, and translation to a point.
func (t Transform) TransformPoint(p r3.Vec) r3.Vec {
	scaled := r3.Vec{X: p.X * t.Scale.X, Y: p.Y * t.Scale.Y, Z: p.Z * t.Scale.Z}
	rotated := t.Rotation.Rotate(mgl64.Vec3{scaled.X, scaled.Y, scaled.Z})
	return r3.Vec{
		X: rotated.X() + t.Translation.X,
		Y: rotated.Y() + t.Translation.Y,
		Z: rotated.Z() + t.Translation.Z,
	}
}

// Compose returns the transform equivalent to applying child first, then t.
func (t Transform) Compose(child Transform) Transform {
	return Transform{
		Translation: t.TransformPoint(child.Translation),
		Rotation:    t.Rotation.Mul(child.Rotation).Normalize(),
		Scale: r3.Vec{
			X: t.Scale.X * child.Scale.X,
			Y: t.Scale.Y * child.Scale.Y,
			Z: t.Scale.Z * child.Scale.Z,
		},
	}
}

// ApproxEqual reports whether two transforms match within tol on every
// component. Rotations compare by orientation, so q and -q are equal.
func (t Transform) ApproxEqual(other Transform, tol float64) bool {
	if !vecApproxEqual(t.Translation, other.Translation, tol) {
		return false
	}
	if !vecApproxEqual(t.Scale, other.Scale, tol) {
		return false
	}
	dot := t.Rotation.Normalize().Dot(other.Rotation.Normalize())
	return math.Abs(dot) >= 1-tol
}

func vecApproxEqual(a, b r3.Vec, tol float64) bool {
	return math.Abs(a.X-b.X) <= tol &&
		math.Abs(a.Y-b.Y) <= tol &&
		math.Abs(a.Z-b.Z) <= tol
}
