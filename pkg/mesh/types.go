// Package mesh provides the skinned mesh data model and the geometry
// merger: concatenating several skinned meshes into one, per LOD, with
// their bone references re-based onto a merged rig.
package mesh

import (
	"errors"

	"github.com/rigtools/skelmerge/pkg/skeleton"
)

// MaxInfluences is the per-vertex skinning influence budget. Vertices
// carrying more are trimmed to the heaviest influences and renormalized
// during a merge.
const MaxInfluences = 8

// Errors returned by MergeMeshes. All are fatal; the geometry merger has no
// partial-success mode.
var (
	ErrInsufficientInputs    = errors.New("need at least two source meshes")
	ErrBoneNotFound          = errors.New("bone not present in target rig")
	ErrInvalidSectionMapping = errors.New("section mapping does not match source sections")
	ErrSharedRigRequired     = errors.New("sources bind different rigs and no merged rig was given")
	ErrNoLODs                = errors.New("source mesh has no LODs")
)

// Influence weights one bone's contribution to a vertex. Bone indexes the
// owning section's BoneMap, not the rig directly.
type Influence struct {
	Bone   int
	Weight float32
}

// Vertex is one skinned vertex. TangentX/Y/Z are the tangent, bitangent,
// and normal of the tangent basis. UVs holds one entry per texture channel.
type Vertex struct {
	Position   [3]float32
	TangentX   [3]float32
	TangentY   [3]float32
	TangentZ   [3]float32
	Color      [4]float32
	UVs        [][2]float32
	Influences []Influence
}

// BasisSign reports the handedness of the vertex tangent basis: +1 when
// TangentY agrees with cross(TangentZ, TangentX), -1 when mirrored.
func (v Vertex) BasisSign() float32 {
	cx := v.TangentZ[1]*v.TangentX[2] - v.TangentZ[2]*v.TangentX[1]
	cy := v.TangentZ[2]*v.TangentX[0] - v.TangentZ[0]*v.TangentX[2]
	cz := v.TangentZ[0]*v.TangentX[1] - v.TangentZ[1]*v.TangentX[0]
	if cx*v.TangentY[0]+cy*v.TangentY[1]+cz*v.TangentY[2] < 0 {
		return -1
	}
	return 1
}

// Section is a contiguous run of triangles sharing one material slot.
// BoneMap translates the section-local bone indices used by vertex
// influences into rig bone indices.
type Section struct {
	MaterialSlot int
	BaseVertex   int
	NumVertices  int
	BaseIndex    int
	NumTriangles int
	BoneMap      []int

	// Provenance, filled on merged outputs: which source mesh and which of
	// its sections this range came from. Merged sections covering several
	// source sections record the first.
	SourceMesh      int
	OriginalSection int
}

// LOD is one level of detail: a shared vertex/index pool plus the sections
// partitioning it.
type LOD struct {
	Vertices []Vertex
	Indices  []uint32
	Sections []Section
}

// Mesh is a skinned mesh asset bound to a rig. HasVertexColors marks
// whether the Color fields carry authored data.
type Mesh struct {
	Name            string
	Rig             *skeleton.Skeleton
	LODs            []LOD
	HasVertexColors bool
}

// Bounds is an axis-aligned box accumulated while streaming vertices.
type Bounds struct {
	Min [3]float32
	Max [3]float32
}

func newBounds() Bounds {
	const inf = float32(3.4e38)
	return Bounds{
		Min: [3]float32{inf, inf, inf},
		Max: [3]float32{-inf, -inf, -inf},
	}
}

func (b *Bounds) extend(p [3]float32) {
	for i := 0; i < 3; i++ {
		if p[i] < b.Min[i] {
			b.Min[i] = p[i]
		}
		if p[i] > b.Max[i] {
			b.Max[i] = p[i]
		}
	}
}

// Center returns the midpoint of the box.
func (b Bounds) Center() [3]float32 {
	return [3]float32{
		(b.Min[0] + b.Max[0]) / 2,
		(b.Min[1] + b.Max[1]) / 2,
		(b.Min[2] + b.Max[2]) / 2,
	}
}

// Extent returns the half-size of the box.
func (b Bounds) Extent() [3]float32 {
	return [3]float32{
		(b.Max[0] - b.Min[0]) / 2,
		(b.Max[1] - b.Min[1]) / 2,
		(b.Max[2] - b.Min[2]) / 2,
	}
}

// MergedMesh is the output of MergeMeshes: a regular mesh bound to the
// merged rig, plus its bounds and the buffer-access flag carried through
// from the merge options.
type MergedMesh struct {
	Mesh
	Bounds        Bounds
	NeedCPUAccess bool
}
