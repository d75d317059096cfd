package formats

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/rigtools/skelmerge/pkg/skeleton"
)

// Rig document errors.
var (
	ErrRigNoBones     = errors.New("rig document has no bones")
	ErrUnknownParent  = errors.New("bone references an unknown parent")
	ErrParentAfterUse = errors.New("bone declared before its parent")
)

type rigDoc struct {
	Name          string               `yaml:"name"`
	Bones         []boneDoc            `yaml:"bones"`
	Sockets       []socketDoc          `yaml:"sockets,omitempty"`
	DerivedBones  []derivedBoneDoc     `yaml:"derived_bones,omitempty"`
	Curves        map[string]*curveDoc `yaml:"curves,omitempty"`
	BlendProfiles []blendProfileDoc    `yaml:"blend_profiles,omitempty"`
	SlotGroups    []slotGroupDoc       `yaml:"slot_groups,omitempty"`
}

// boneDoc names its parent instead of indexing it; an empty parent marks
// the root.
type boneDoc struct {
	Name   string       `yaml:"name"`
	Parent string       `yaml:"parent,omitempty"`
	Pose   TransformDoc `yaml:"pose,omitempty"`
}

type socketDoc struct {
	Name   string       `yaml:"name"`
	Bone   string       `yaml:"bone"`
	Offset TransformDoc `yaml:"offset,omitempty"`
}

type derivedBoneDoc struct {
	Name   string `yaml:"name"`
	Source string `yaml:"source"`
	Target string `yaml:"target"`
}

type curveDoc struct {
	Material bool `yaml:"material,omitempty"`
	Morph    bool `yaml:"morph,omitempty"`
	MaxLOD   int  `yaml:"max_lod,omitempty"`
}

type blendProfileDoc struct {
	Name    string                 `yaml:"name"`
	Entries []blendProfileEntryDoc `yaml:"entries"`
}

type blendProfileEntryDoc struct {
	Bone  string  `yaml:"bone"`
	Scale float64 `yaml:"scale"`
}

type slotGroupDoc struct {
	Name  string   `yaml:"name"`
	Slots []string `yaml:"slots,flow"`
}

// ParseRig decodes a rig document and resolves parent names to indices.
func ParseRig(data []byte) (*skeleton.Skeleton, error) {
	var doc rigDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse rig: %w", err)
	}
	if len(doc.Bones) == 0 {
		return nil, fmt.Errorf("parse rig %q: %w", doc.Name, ErrRigNoBones)
	}

	rig := &skeleton.Skeleton{Name: doc.Name}

	indexByName := make(map[string]int, len(doc.Bones))
	for i, b := range doc.Bones {
		parent := -1
		if b.Parent != "" {
			pi, ok := indexByName[b.Parent]
			if !ok {
				for j := i + 1; j < len(doc.Bones); j++ {
					if doc.Bones[j].Name == b.Parent {
						return nil, fmt.Errorf("parse rig %q: bone %q: %w",
							doc.Name, b.Name, ErrParentAfterUse)
					}
				}
				return nil, fmt.Errorf("parse rig %q: bone %q parent %q: %w",
					doc.Name, b.Name, b.Parent, ErrUnknownParent)
			}
			parent = pi
		}
		indexByName[b.Name] = i
		rig.Bones = append(rig.Bones, skeleton.Bone{
			Name:        b.Name,
			ParentIndex: parent,
			RefPose:     b.Pose.Transform(),
		})
	}

	for _, s := range doc.Sockets {
		rig.Sockets = append(rig.Sockets, skeleton.Socket{
			Name:   s.Name,
			Bone:   s.Bone,
			Offset: s.Offset.Transform(),
		})
	}
	for _, d := range doc.DerivedBones {
		rig.DerivedBones = append(rig.DerivedBones, skeleton.DerivedBone{
			Name:       d.Name,
			SourceBone: d.Source,
			TargetBone: d.Target,
		})
	}
	if len(doc.Curves) > 0 {
		rig.Curves = make(map[string]*skeleton.CurveMeta, len(doc.Curves))
		for name, c := range doc.Curves {
			if c == nil {
				rig.Curves[name] = nil
				continue
			}
			rig.Curves[name] = &skeleton.CurveMeta{
				Material: c.Material,
				Morph:    c.Morph,
				MaxLOD:   c.MaxLOD,
			}
		}
	}
	for _, p := range doc.BlendProfiles {
		profile := skeleton.BlendProfile{Name: p.Name}
		for _, e := range p.Entries {
			profile.Entries = append(profile.Entries, skeleton.BlendProfileEntry{
				Bone:  e.Bone,
				Scale: e.Scale,
			})
		}
		rig.BlendProfiles = append(rig.BlendProfiles, profile)
	}
	for _, g := range doc.SlotGroups {
		rig.SlotGroups = append(rig.SlotGroups, skeleton.SlotGroup{
			Name:  g.Name,
			Slots: g.Slots,
		})
	}

	if err := rig.Validate(); err != nil {
		return nil, fmt.Errorf("parse rig: %w", err)
	}
	return rig, nil
}

// EncodeRig produces the YAML document for a rig.
func EncodeRig(rig *skeleton.Skeleton) ([]byte, error) {
	doc := rigDoc{Name: rig.Name}

	for _, b := range rig.Bones {
		bd := boneDoc{Name: b.Name, Pose: NewTransformDoc(b.RefPose)}
		if b.ParentIndex >= 0 {
			bd.Parent = rig.Bones[b.ParentIndex].Name
		}
		doc.Bones = append(doc.Bones, bd)
	}
	for _, s := range rig.Sockets {
		doc.Sockets = append(doc.Sockets, socketDoc{
			Name:   s.Name,
			Bone:   s.Bone,
			Offset: NewTransformDoc(s.Offset),
		})
	}
	for _, d := range rig.DerivedBones {
		doc.DerivedBones = append(doc.DerivedBones, derivedBoneDoc{
			Name:   d.Name,
			Source: d.SourceBone,
			Target: d.TargetBone,
		})
	}
	if len(rig.Curves) > 0 {
		doc.Curves = make(map[string]*curveDoc, len(rig.Curves))
		for name, c := range rig.Curves {
			if c == nil {
				doc.Curves[name] = nil
				continue
			}
			doc.Curves[name] = &curveDoc{Material: c.Material, Morph: c.Morph, MaxLOD: c.MaxLOD}
		}
	}
	for _, p := range rig.BlendProfiles {
		pd := blendProfileDoc{Name: p.Name}
		for _, e := range p.Entries {
			pd.Entries = append(pd.Entries, blendProfileEntryDoc{Bone: e.Bone, Scale: e.Scale})
		}
		doc.BlendProfiles = append(doc.BlendProfiles, pd)
	}
	for _, g := range rig.SlotGroups {
		doc.SlotGroups = append(doc.SlotGroups, slotGroupDoc{Name: g.Name, Slots: g.Slots})
	}

	return yaml.Marshal(&doc)
}

// LoadRig reads a rig document from disk.
func LoadRig(path string) (*skeleton.Skeleton, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load rig: %w", err)
	}
	rig, err := ParseRig(data)
	if err != nil {
		return nil, fmt.Errorf("load rig %s: %w", path, err)
	}
	return rig, nil
}

// SaveRig writes a rig document, creating parent directories as needed.
func SaveRig(path string, rig *skeleton.Skeleton) error {
	data, err := EncodeRig(rig)
	if err != nil {
		return fmt.Errorf("save rig: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("save rig: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
