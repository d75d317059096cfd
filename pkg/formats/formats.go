// Package formats reads and writes the YAML documents the merge tool works
// with: rig files, mesh files, and job descriptions.
package formats

import (
	"github.com/go-gl/mathgl/mgl64"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/rigtools/skelmerge/pkg/transform"
)

// TransformDoc is the YAML form of a transform. Rotation is w, x, y, z.
// The zero value decodes to the identity transform.
type TransformDoc struct {
	Translation [3]float64 `yaml:"translation,flow,omitempty"`
	Rotation    [4]float64 `yaml:"rotation,flow,omitempty"`
	Scale       [3]float64 `yaml:"scale,flow,omitempty"`
}

// Transform converts the document to a transform value.
func (d TransformDoc) Transform() transform.Transform {
	t := transform.Identity()
	t.Translation = r3.Vec{X: d.Translation[0], Y: d.Translation[1], Z: d.Translation[2]}
	if d.Rotation != ([4]float64{}) {
		t.Rotation = mgl64.Quat{
			W: d.Rotation[0],
			V: mgl64.Vec3{d.Rotation[1], d.Rotation[2], d.Rotation[3]},
		}
	}
	if d.Scale != ([3]float64{}) {
		t.Scale = r3.Vec{X: d.Scale[0], Y: d.Scale[1], Z: d.Scale[2]}
	}
	return t
}

// NewTransformDoc converts a transform value to its document form.
func NewTransformDoc(t transform.Transform) TransformDoc {
	d := TransformDoc{
		Translation: [3]float64{t.Translation.X, t.Translation.Y, t.Translation.Z},
		Scale:       [3]float64{t.Scale.X, t.Scale.Y, t.Scale.Z},
	}
	if t.Rotation != mgl64.QuatIdent() {
		d.Rotation = [4]float64{t.Rotation.W, t.Rotation.V[0], t.Rotation.V[1], t.Rotation.V[2]}
	}
	return d
}

// boundPoses converts a named transform map, nil in and nil out.
func boundPoses(docs map[string]TransformDoc) map[string]transform.Transform {
	if len(docs) == 0 {
		return nil
	}
	out := make(map[string]transform.Transform, len(docs))
	for name, d := range docs {
		out[name] = d.Transform()
	}
	return out
}
