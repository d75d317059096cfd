package skeleton

import (
	"fmt"

	"github.com/rigtools/skelmerge/pkg/transform"
)

const defaultPoseTolerance = 1e-4

// Source wraps one input rig for a hierarchy merge.
type Source struct {
	Rig *Skeleton

	// AttachBone names a bone already merged from an earlier source. When set
	// on a secondary source the rig's root is unified with that bone: the
	// root itself is not re-emitted, its direct children re-parent onto the
	// attach bone, and the root's local transform is folded into them. When
	// empty the rig keeps its own root as an independent tree.
	AttachBone string

	// ComponentOffset places the rig relative to the space it is attached in
	// (the visually authored, component-relative transform). The zero value
	// means identity.
	ComponentOffset transform.Transform

	// BoundPose optionally overrides reference poses with those of the mesh
	// asset actually bound to this rig, keyed by bone name. Only consulted
	// for secondary sources.
	BoundPose map[string]transform.Transform
}

// Options selects which parts of the sources participate in a merge.
type Options struct {
	CheckCompatibility bool

	MergeSockets       bool
	MergeDerivedBones  bool
	MergeCurves        bool
	MergeBlendProfiles bool
	MergeSlotGroups    bool

	// PoseTolerance bounds per-component pose drift before a
	// ConflictingReferencePose warning is recorded. Zero selects 1e-4.
	PoseTolerance float64
}

// Merge combines the source rigs into a single skeleton. Bones are unified
// by ancestor-path hash; a bone name reused with a different ancestor chain
// fails only the offending rig, which is excluded while the rest still
// merge. The returned issues carry those per-rig failures and any non-fatal
// warnings. Merge fails outright only when no usable bones remain.
func Merge(sources []Source, opts Options) (*Skeleton, []Issue, error) {
	tol := opts.PoseTolerance
	if tol <= 0 {
		tol = defaultPoseTolerance
	}

	// Drop nil and repeated rigs, preserving input order.
	uniq := make([]Source, 0, len(sources))
	seen := make(map[*Skeleton]struct{}, len(sources))
	for _, src := range sources {
		if src.Rig == nil {
			continue
		}
		if _, dup := seen[src.Rig]; dup {
			continue
		}
		seen[src.Rig] = struct{}{}
		uniq = append(uniq, src)
	}
	if len(uniq) == 0 {
		return nil, nil, fmt.Errorf("merge skeletons: %w", ErrEmptyInput)
	}

	total := 0
	for _, src := range uniq {
		total += len(src.Rig.Bones)
	}
	if total == 0 {
		return nil, nil, fmt.Errorf("merge skeletons: %w", ErrEmptyInput)
	}

	for _, src := range uniq {
		if err := src.Rig.Validate(); err != nil {
			return nil, nil, fmt.Errorf("merge skeletons: %w", err)
		}
	}

	hb := newHierarchyBuilder(total)
	aux := newAuxAccumulator()
	var issues []Issue

	for i, src := range uniq {
		rigIssues, ok := mergeRig(hb, i, src, opts, tol)
		issues = append(issues, rigIssues...)
		if !ok {
			continue
		}
		issues = append(issues, aux.collect(src.Rig, opts)...)
	}

	bones, flatIssues := hb.flatten()
	issues = append(issues, flatIssues...)
	if len(bones) == 0 {
		return nil, issues, fmt.Errorf("merge skeletons: %w", ErrEmptyInput)
	}

	out := &Skeleton{Name: "merged", Bones: bones}
	aux.apply(out, opts)
	return out, issues, nil
}

type stagedBone struct {
	name       string
	pose       transform.Transform
	parentPath uint32
}

// mergeRig stages one rig's bones against the accumulated hierarchy and
// commits them only if the whole rig is compatible. Returns false when the
// rig was excluded.
func mergeRig(hb *hierarchyBuilder, rigIndex int, src Source, opts Options, tol float64) ([]Issue, bool) {
	rig := src.Rig

	offset := src.ComponentOffset
	if offset == (transform.Transform{}) {
		offset = transform.Identity()
	}

	rootIdx := rig.RootIndex()
	attach := ""
	if rigIndex > 0 {
		attach = src.AttachBone
	}

	// Local transform of a unified root, folded into its children so their
	// placement survives the root being dropped.
	var rootLocal transform.Transform
	if attach != "" {
		rootPose := rig.Bones[rootIdx].RefPose
		if bp, ok := src.BoundPose[rig.Bones[rootIdx].Name]; ok {
			rootPose = bp
		}
		rootLocal = offset.Compose(rootPose)
	}

	var issues []Issue
	staged := make([]stagedBone, 0, len(rig.Bones))
	stagedPath := make(map[string]uint32, len(rig.Bones))
	stagedPose := make(map[string]transform.Transform, len(rig.Bones))

	lookupPath := func(name string) (uint32, bool) {
		if h, ok := stagedPath[name]; ok {
			return h, true
		}
		return hb.pathOf(name)
	}
	lookupPose := func(name string) (transform.Transform, bool) {
		if p, ok := stagedPose[name]; ok {
			return p, true
		}
		return hb.poseOf(name)
	}

	fail := func(bone, detail string) ([]Issue, bool) {
		issues = append(issues, Issue{
			Kind:   IssueConflictingHierarchy,
			Rig:    rig.Name,
			Bone:   bone,
			Detail: detail,
			Fatal:  true,
		})
		return issues, false
	}

	for bi := range rig.Bones {
		b := rig.Bones[bi]
		pose := b.RefPose

		// Visually authored placement on the bound mesh asset takes
		// precedence over the rig's nominal pose for secondary sources.
		if rigIndex > 0 {
			if bp, ok := src.BoundPose[b.Name]; ok {
				pose = bp
			}
		}

		var parentPath uint32
		switch {
		case b.ParentIndex < 0 && attach != "":
			// Root unified with the attach bone; not re-emitted.
			continue
		case b.ParentIndex < 0:
			parentPath = rootParentHash()
			if rigIndex > 0 {
				pose = offset.Compose(pose)
			}
		case b.ParentIndex == rootIdx && attach != "":
			ah, ok := lookupPath(attach)
			if !ok {
				return fail(b.Name, fmt.Sprintf("attach bone %q not found in merged hierarchy", attach))
			}
			parentPath = ah
			pose = rootLocal.Compose(pose)
		default:
			parentName := rig.Bones[b.ParentIndex].Name
			ph, ok := lookupPath(parentName)
			if !ok {
				return fail(b.Name, fmt.Sprintf("parent bone %q missing", parentName))
			}
			parentPath = ph
		}

		own := hashCombine(parentPath, nameHash(b.Name))

		if opts.CheckCompatibility {
			if existing, ok := lookupPath(b.Name); ok {
				if existing != own {
					return fail(b.Name, "bone name reused with a different ancestor chain")
				}
				if prev, ok := lookupPose(b.Name); ok && !prev.ApproxEqual(pose, tol) {
					issues = append(issues, Issue{
						Kind:   IssueConflictingReferencePose,
						Rig:    rig.Name,
						Bone:   b.Name,
						Detail: "reference pose differs; later source wins",
					})
				}
			}
		}

		staged = append(staged, stagedBone{name: b.Name, pose: pose, parentPath: parentPath})
		stagedPath[b.Name] = own
		stagedPose[b.Name] = pose
	}

	for _, sb := range staged {
		hb.add(sb.name, sb.pose, sb.parentPath)
	}
	return issues, true
}
