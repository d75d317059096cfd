package mesh

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/rigtools/skelmerge/pkg/skeleton"
	"github.com/rigtools/skelmerge/pkg/transform"
)

// Options configures a geometry merge.
type Options struct {
	// Rig is the skeleton the output binds to; source bone maps are re-based
	// onto it by bone name. When nil, every source must already bind the same
	// rig and that rig is carried through.
	Rig *skeleton.Skeleton

	// SectionMappings re-keys source sections onto output material slots:
	// SectionMappings[source][section] is the output slot. Nil keeps each
	// section's own slot. Sections landing on the same slot concatenate into
	// one output section.
	SectionMappings [][]int

	// UVTransforms[source][channel] transforms that source's UVs. Missing
	// channels pass through untouched.
	UVTransforms [][]transform.Transform

	// StripTopLODs drops that many of each source's highest-detail LODs,
	// always keeping at least one.
	StripTopLODs int

	// NeedCPUAccess is carried through to the output for callers that keep
	// buffer copies readable after upload.
	NeedCPUAccess bool
}

// MergeMeshes concatenates the source meshes into one, LOD by LOD. Sources
// convert in parallel; appending happens serially in input order, so output
// buffers are deterministic. Sources with fewer LODs than the output
// contribute their last LOD to the deeper levels.
func MergeMeshes(ctx context.Context, sources []*Mesh, opts Options) (*MergedMesh, error) {
	if len(sources) < 2 {
		return nil, fmt.Errorf("merge meshes: %w", ErrInsufficientInputs)
	}
	for i, src := range sources {
		if src == nil {
			return nil, fmt.Errorf("merge meshes: source %d is nil: %w", i, ErrInsufficientInputs)
		}
		if len(src.LODs) == 0 {
			return nil, fmt.Errorf("merge meshes: source %q: %w", src.Name, ErrNoLODs)
		}
	}

	rig, err := targetRig(sources, opts.Rig)
	if err != nil {
		return nil, err
	}
	if opts.SectionMappings != nil && len(opts.SectionMappings) != len(sources) {
		return nil, fmt.Errorf("merge meshes: %d mappings for %d sources: %w",
			len(opts.SectionMappings), len(sources), ErrInvalidSectionMapping)
	}

	channels := 0
	anyColors := false
	for _, src := range sources {
		anyColors = anyColors || src.HasVertexColors
		for _, lod := range src.LODs {
			for i := range lod.Vertices {
				if n := len(lod.Vertices[i].UVs); n > channels {
					channels = n
				}
			}
		}
	}

	converted := make([]*Mesh, len(sources))
	g, ctx := errgroup.WithContext(ctx)
	for i := range sources {
		i := i
		g.Go(func() error {
			c := &converter{
				source:    sources[i],
				index:     i,
				rig:       rig,
				opts:      opts,
				channels:  channels,
				anyColors: anyColors,
			}
			out, err := c.run(ctx)
			if err != nil {
				return err
			}
			converted[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return assemble(converted, rig, opts, anyColors)
}

func targetRig(sources []*Mesh, rig *skeleton.Skeleton) (*skeleton.Skeleton, error) {
	if rig != nil {
		return rig, nil
	}
	shared := sources[0].Rig
	if shared == nil {
		return nil, fmt.Errorf("merge meshes: source %q has no rig: %w",
			sources[0].Name, ErrSharedRigRequired)
	}
	for _, src := range sources[1:] {
		if src.Rig != shared {
			return nil, fmt.Errorf("merge meshes: %w", ErrSharedRigRequired)
		}
	}
	return shared, nil
}

// converter rewrites one source mesh in isolation: LODs stripped, bone maps
// re-based onto the target rig, UVs transformed and padded, colors
// defaulted, tangent bases re-orthogonalized, influences trimmed. The
// result still uses source-local section layout; assemble regroups it.
type converter struct {
	source    *Mesh
	index     int
	rig       *skeleton.Skeleton
	opts      Options
	channels  int
	anyColors bool
}

func (c *converter) run(ctx context.Context) (*Mesh, error) {
	src := c.source

	// Only bones a section actually skins to need to exist in the target
	// rig; bones unified away during the hierarchy merge may be absent.
	remap := make(map[int]int)
	resolve := func(b int) (int, error) {
		if idx, ok := remap[b]; ok {
			return idx, nil
		}
		if b < 0 || b >= len(src.Rig.Bones) {
			return 0, fmt.Errorf("merge meshes: source %q bone map entry %d out of range: %w",
				src.Name, b, ErrBoneNotFound)
		}
		name := src.Rig.Bones[b].Name
		idx := c.rig.BoneIndex(name)
		if idx < 0 {
			return 0, fmt.Errorf("merge meshes: source %q bone %q: %w",
				src.Name, name, ErrBoneNotFound)
		}
		remap[b] = idx
		return idx, nil
	}

	strip := c.opts.StripTopLODs
	if strip > len(src.LODs)-1 {
		strip = len(src.LODs) - 1
	}
	if strip < 0 {
		strip = 0
	}

	var uvXforms []transform.Transform
	if c.opts.UVTransforms != nil && c.index < len(c.opts.UVTransforms) {
		uvXforms = c.opts.UVTransforms[c.index]
	}

	out := &Mesh{
		Name: src.Name,
		Rig:  c.rig,
		LODs: make([]LOD, 0, len(src.LODs)-strip),
	}
	for li := strip; li < len(src.LODs); li++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		lod := src.LODs[li]

		cl := LOD{
			Vertices: make([]Vertex, len(lod.Vertices)),
			Indices:  append([]uint32(nil), lod.Indices...),
			Sections: make([]Section, len(lod.Sections)),
		}
		for vi := range lod.Vertices {
			cl.Vertices[vi] = c.convertVertex(lod.Vertices[vi], uvXforms)
		}
		for si := range lod.Sections {
			sec := lod.Sections[si]
			slot := sec.MaterialSlot
			if c.opts.SectionMappings != nil {
				mapping := c.opts.SectionMappings[c.index]
				if si >= len(mapping) {
					return nil, fmt.Errorf("merge meshes: source %q section %d: %w",
						src.Name, si, ErrInvalidSectionMapping)
				}
				slot = mapping[si]
			}
			boneMap := make([]int, len(sec.BoneMap))
			for bi, b := range sec.BoneMap {
				idx, err := resolve(b)
				if err != nil {
					return nil, err
				}
				boneMap[bi] = idx
			}
			cl.Sections[si] = Section{
				MaterialSlot:    slot,
				BaseVertex:      sec.BaseVertex,
				NumVertices:     sec.NumVertices,
				BaseIndex:       sec.BaseIndex,
				NumTriangles:    sec.NumTriangles,
				BoneMap:         boneMap,
				SourceMesh:      c.index,
				OriginalSection: si,
			}
		}
		out.LODs = append(out.LODs, cl)
	}
	return out, nil
}

func (c *converter) convertVertex(v Vertex, uvXforms []transform.Transform) Vertex {
	out := v
	out.Influences = trimInfluences(v.Influences)

	out.UVs = make([][2]float32, c.channels)
	for ch := 0; ch < c.channels && ch < len(v.UVs); ch++ {
		uv := v.UVs[ch]
		if ch < len(uvXforms) {
			p := uvXforms[ch].TransformPoint(r3.Vec{X: float64(uv[0]), Y: float64(uv[1])})
			uv = [2]float32{float32(p.X), float32(p.Y)}
		}
		out.UVs[ch] = uv
	}

	if !c.source.HasVertexColors && c.anyColors {
		out.Color = [4]float32{1, 1, 1, 1}
	}

	// Rebuild the bitangent from normal and tangent, keeping the authored
	// handedness.
	sign := v.BasisSign()
	out.TangentY = [3]float32{
		(v.TangentZ[1]*v.TangentX[2] - v.TangentZ[2]*v.TangentX[1]) * sign,
		(v.TangentZ[2]*v.TangentX[0] - v.TangentZ[0]*v.TangentX[2]) * sign,
		(v.TangentZ[0]*v.TangentX[1] - v.TangentZ[1]*v.TangentX[0]) * sign,
	}
	return out
}

func trimInfluences(in []Influence) []Influence {
	out := append([]Influence(nil), in...)
	if len(out) <= MaxInfluences {
		return out
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Weight > out[j].Weight
	})
	out = out[:MaxInfluences]

	var total float32
	for _, inf := range out {
		total += inf.Weight
	}
	if total > 0 {
		for i := range out {
			out[i].Weight /= total
		}
	}
	return out
}

// assemble lays the converted sources out into the output LODs. Sections
// sharing an output material slot concatenate into one section whose
// vertex and index ranges stay contiguous.
func assemble(converted []*Mesh, rig *skeleton.Skeleton, opts Options, anyColors bool) (*MergedMesh, error) {
	levels := 0
	for _, src := range converted {
		if len(src.LODs) > levels {
			levels = len(src.LODs)
		}
	}

	names := make([]string, len(converted))
	for i, src := range converted {
		names[i] = src.Name
	}

	merged := &MergedMesh{
		Mesh: Mesh{
			Name:            strings.Join(names, "+"),
			Rig:             rig,
			LODs:            make([]LOD, levels),
			HasVertexColors: anyColors,
		},
		NeedCPUAccess: opts.NeedCPUAccess,
	}
	bounds := newBounds()

	for level := 0; level < levels; level++ {
		type contribution struct {
			source  int
			section Section
		}
		var slotOrder []int
		bySlot := make(map[int][]contribution)

		lods := make([]*LOD, len(converted))
		for si, src := range converted {
			li := level
			if li > len(src.LODs)-1 {
				li = len(src.LODs) - 1
			}
			lods[si] = &src.LODs[li]
			for _, sec := range lods[si].Sections {
				if _, ok := bySlot[sec.MaterialSlot]; !ok {
					slotOrder = append(slotOrder, sec.MaterialSlot)
				}
				bySlot[sec.MaterialSlot] = append(bySlot[sec.MaterialSlot], contribution{
					source:  si,
					section: sec,
				})
			}
		}

		var out LOD
		for _, slot := range slotOrder {
			contribs := bySlot[slot]
			sec := Section{
				MaterialSlot:    slot,
				BaseVertex:      len(out.Vertices),
				BaseIndex:       len(out.Indices),
				SourceMesh:      contribs[0].source,
				OriginalSection: contribs[0].section.OriginalSection,
			}
			var boneMap []int
			boneMapIndex := make(map[int]int)

			for _, c := range contribs {
				src := c.section
				lod := lods[c.source]

				// Re-key each contributing section's local bone indices into
				// the merged section's bone map.
				local := make([]int, len(src.BoneMap))
				for i, rigBone := range src.BoneMap {
					mi, ok := boneMapIndex[rigBone]
					if !ok {
						mi = len(boneMap)
						boneMapIndex[rigBone] = mi
						boneMap = append(boneMap, rigBone)
					}
					local[i] = mi
				}

				vertexBase := len(out.Vertices)
				for vi := src.BaseVertex; vi < src.BaseVertex+src.NumVertices; vi++ {
					v := lod.Vertices[vi]
					v.Influences = append([]Influence(nil), v.Influences...)
					for ii := range v.Influences {
						b := v.Influences[ii].Bone
						if b < 0 || b >= len(local) {
							return nil, fmt.Errorf("merge meshes: source %d vertex %d influence outside bone map: %w",
								c.source, vi, ErrBoneNotFound)
						}
						v.Influences[ii].Bone = local[b]
					}
					bounds.extend(v.Position)
					out.Vertices = append(out.Vertices, v)
				}

				indexShift := vertexBase - src.BaseVertex
				for ii := src.BaseIndex; ii < src.BaseIndex+src.NumTriangles*3; ii++ {
					out.Indices = append(out.Indices, uint32(int(lod.Indices[ii])+indexShift))
				}

				sec.NumVertices += src.NumVertices
				sec.NumTriangles += src.NumTriangles
			}

			sec.BoneMap = boneMap
			out.Sections = append(out.Sections, sec)
		}
		merged.LODs[level] = out
	}

	merged.Bounds = bounds
	return merged, nil
}
