package formats

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/rigtools/skelmerge/pkg/mesh"
)

// Mesh document errors.
var (
	ErrMeshNoLODs        = errors.New("mesh document has no LODs")
	ErrMeshNoRig         = errors.New("mesh document names no rig")
	ErrIndexOutOfRange   = errors.New("index outside vertex buffer")
	ErrSectionOutOfRange = errors.New("section range outside buffers")
)

type meshDoc struct {
	Name            string   `yaml:"name"`
	Rig             string   `yaml:"rig"`
	HasVertexColors bool     `yaml:"has_vertex_colors,omitempty"`
	LODs            []lodDoc `yaml:"lods"`
}

type lodDoc struct {
	Vertices []vertexDoc  `yaml:"vertices"`
	Indices  []uint32     `yaml:"indices,flow"`
	Sections []sectionDoc `yaml:"sections"`
}

// vertexDoc uses the authoring names normal/tangent/bitangent for the
// tangent basis. A missing bitangent is derived from the other two.
type vertexDoc struct {
	Position   [3]float32     `yaml:"position,flow"`
	Normal     [3]float32     `yaml:"normal,flow,omitempty"`
	Tangent    [3]float32     `yaml:"tangent,flow,omitempty"`
	Bitangent  [3]float32     `yaml:"bitangent,flow,omitempty"`
	Color      [4]float32     `yaml:"color,flow,omitempty"`
	UVs        [][2]float32   `yaml:"uvs,flow,omitempty"`
	Influences []influenceDoc `yaml:"influences,omitempty"`
}

type influenceDoc struct {
	Bone   int     `yaml:"bone"`
	Weight float32 `yaml:"weight"`
}

type sectionDoc struct {
	Slot         int   `yaml:"slot"`
	BaseVertex   int   `yaml:"base_vertex"`
	NumVertices  int   `yaml:"num_vertices"`
	BaseIndex    int   `yaml:"base_index"`
	NumTriangles int   `yaml:"num_triangles"`
	BoneMap      []int `yaml:"bone_map,flow"`
}

// ParseMesh decodes a mesh document. The mesh comes back unbound; the
// second return value names the rig it expects.
func ParseMesh(data []byte) (*mesh.Mesh, string, error) {
	var doc meshDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, "", fmt.Errorf("parse mesh: %w", err)
	}
	if doc.Rig == "" {
		return nil, "", fmt.Errorf("parse mesh %q: %w", doc.Name, ErrMeshNoRig)
	}
	if len(doc.LODs) == 0 {
		return nil, "", fmt.Errorf("parse mesh %q: %w", doc.Name, ErrMeshNoLODs)
	}

	m := &mesh.Mesh{Name: doc.Name, HasVertexColors: doc.HasVertexColors}
	for li, ld := range doc.LODs {
		lod := mesh.LOD{
			Indices: append([]uint32(nil), ld.Indices...),
		}
		for _, vd := range ld.Vertices {
			lod.Vertices = append(lod.Vertices, decodeVertex(vd))
		}
		for _, idx := range ld.Indices {
			if int(idx) >= len(ld.Vertices) {
				return nil, "", fmt.Errorf("parse mesh %q LOD %d: index %d: %w",
					doc.Name, li, idx, ErrIndexOutOfRange)
			}
		}
		for si, sd := range ld.Sections {
			if sd.BaseVertex+sd.NumVertices > len(ld.Vertices) ||
				sd.BaseIndex+sd.NumTriangles*3 > len(ld.Indices) {
				return nil, "", fmt.Errorf("parse mesh %q LOD %d section %d: %w",
					doc.Name, li, si, ErrSectionOutOfRange)
			}
			lod.Sections = append(lod.Sections, mesh.Section{
				MaterialSlot: sd.Slot,
				BaseVertex:   sd.BaseVertex,
				NumVertices:  sd.NumVertices,
				BaseIndex:    sd.BaseIndex,
				NumTriangles: sd.NumTriangles,
				BoneMap:      append([]int(nil), sd.BoneMap...),
			})
		}
		m.LODs = append(m.LODs, lod)
	}
	return m, doc.Rig, nil
}

func decodeVertex(vd vertexDoc) mesh.Vertex {
	v := mesh.Vertex{
		Position: vd.Position,
		TangentX: vd.Tangent,
		TangentY: vd.Bitangent,
		TangentZ: vd.Normal,
		Color:    vd.Color,
		UVs:      append([][2]float32(nil), vd.UVs...),
	}
	if v.TangentY == ([3]float32{}) {
		n, t := vd.Normal, vd.Tangent
		v.TangentY = [3]float32{
			n[1]*t[2] - n[2]*t[1],
			n[2]*t[0] - n[0]*t[2],
			n[0]*t[1] - n[1]*t[0],
		}
	}
	for _, i := range vd.Influences {
		v.Influences = append(v.Influences, mesh.Influence{Bone: i.Bone, Weight: i.Weight})
	}
	return v
}

// EncodeMesh produces the YAML document for a mesh, recording the rig it
// binds by name.
func EncodeMesh(m *mesh.Mesh, rigName string) ([]byte, error) {
	doc := meshDoc{
		Name:            m.Name,
		Rig:             rigName,
		HasVertexColors: m.HasVertexColors,
	}
	for _, lod := range m.LODs {
		ld := lodDoc{Indices: append([]uint32(nil), lod.Indices...)}
		for _, v := range lod.Vertices {
			vd := vertexDoc{
				Position:  v.Position,
				Normal:    v.TangentZ,
				Tangent:   v.TangentX,
				Bitangent: v.TangentY,
				Color:     v.Color,
				UVs:       append([][2]float32(nil), v.UVs...),
			}
			for _, i := range v.Influences {
				vd.Influences = append(vd.Influences, influenceDoc{Bone: i.Bone, Weight: i.Weight})
			}
			ld.Vertices = append(ld.Vertices, vd)
		}
		for _, s := range lod.Sections {
			ld.Sections = append(ld.Sections, sectionDoc{
				Slot:         s.MaterialSlot,
				BaseVertex:   s.BaseVertex,
				NumVertices:  s.NumVertices,
				BaseIndex:    s.BaseIndex,
				NumTriangles: s.NumTriangles,
				BoneMap:      append([]int(nil), s.BoneMap...),
			})
		}
		doc.LODs = append(doc.LODs, ld)
	}
	return yaml.Marshal(&doc)
}

// LoadMesh reads a mesh document from disk.
func LoadMesh(path string) (*mesh.Mesh, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("load mesh: %w", err)
	}
	m, rigName, err := ParseMesh(data)
	if err != nil {
		return nil, "", fmt.Errorf("load mesh %s: %w", path, err)
	}
	return m, rigName, nil
}

// SaveMesh writes a mesh document, creating parent directories as needed.
func SaveMesh(path string, m *mesh.Mesh, rigName string) error {
	data, err := EncodeMesh(m, rigName)
	if err != nil {
		return fmt.Errorf("save mesh: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("save mesh: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
