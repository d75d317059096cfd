// Package skeleton provides the rig data model and the bone hierarchy
// merger: building one consistent bone tree out of several independently
// authored rigs, together with their sockets, derived bones, curves, blend
// profiles, and animation slot groups.
package skeleton

import (
	"fmt"

	"github.com/rigtools/skelmerge/pkg/transform"
)

// Bone is a single joint in a rig. ParentIndex is -1 for the root and
// otherwise refers to an earlier entry in the bone list.
type Bone struct {
	Name        string
	ParentIndex int
	RefPose     transform.Transform
}

// Socket is a named attachment point offset from a bone.
type Socket struct {
	Name   string
	Bone   string
	Offset transform.Transform
}

// DerivedBone is a named shortcut transform spanning two existing bones.
type DerivedBone struct {
	Name       string
	SourceBone string
	TargetBone string
}

// CurveMeta carries metadata for a named animation curve.
type CurveMeta struct {
	Material bool
	Morph    bool
	MaxLOD   int
}

// BlendProfileEntry scales blend weight for one bone.
type BlendProfileEntry struct {
	Bone  string
	Scale float64
}

// BlendProfile is a named per-bone scale table used to bias blending.
type BlendProfile struct {
	Name    string
	Entries []BlendProfileEntry
}

// SlotGroup maps an animation group name to its slot names.
type SlotGroup struct {
	Name  string
	Slots []string
}

// Skeleton is a rig: an ordered bone tree (parent entries always precede
// their children) plus its auxiliary collections.
type Skeleton struct {
	Name          string
	Bones         []Bone
	Sockets       []Socket
	DerivedBones  []DerivedBone
	Curves        map[string]*CurveMeta
	BlendProfiles []BlendProfile
	SlotGroups    []SlotGroup
}

// BoneIndex returns the index of the named bone, or -1 if absent.
func (s *Skeleton) BoneIndex(name string) int {
	for i := range s.Bones {
		if s.Bones[i].Name == name {
			return i
		}
	}
	return -1
}

// RootIndex returns the index of the first root-parented bone, or -1.
func (s *Skeleton) RootIndex() int {
	for i := range s.Bones {
		if s.Bones[i].ParentIndex < 0 {
			return i
		}
	}
	return -1
}

// Validate checks the structural invariants of a source rig: unique bone
// names, every parent declared before its children, and exactly one root.
func (s *Skeleton) Validate() error {
	if len(s.Bones) == 0 {
		return fmt.Errorf("rig %q: no bones", s.Name)
	}

	seen := make(map[string]struct{}, len(s.Bones))
	roots := 0
	for i, b := range s.Bones {
		if b.Name == "" {
			return fmt.Errorf("rig %q: bone %d has no name", s.Name, i)
		}
		if _, dup := seen[b.Name]; dup {
			return fmt.Errorf("rig %q: duplicate bone name %q", s.Name, b.Name)
		}
		seen[b.Name] = struct{}{}

		switch {
		case b.ParentIndex < 0:
			roots++
		case b.ParentIndex >= i:
			return fmt.Errorf("rig %q: bone %q declared before its parent", s.Name, b.Name)
		}
	}
	if roots != 1 {
		return fmt.Errorf("rig %q: expected exactly one root bone, found %d", s.Name, roots)
	}
	return nil
}
