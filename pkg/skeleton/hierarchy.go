package skeleton

import "github.com/rigtools/skelmerge/pkg/transform"

// hierarchyBuilder accumulates bones from several source rigs keyed by name
// and ancestor-path hash, then flattens them once into an ordered bone list.
// It lives for a single merge operation.
type hierarchyBuilder struct {
	poseByName     map[string]transform.Transform
	pathByName     map[string]uint32
	childrenByPath map[uint32][]string
	childSeen      map[uint32]map[string]struct{}
}

func newHierarchyBuilder(expectedBones int) *hierarchyBuilder {
	return &hierarchyBuilder{
		poseByName:     make(map[string]transform.Transform, expectedBones),
		pathByName:     make(map[string]uint32, expectedBones),
		childrenByPath: make(map[uint32][]string, expectedBones),
		childSeen:      make(map[uint32]map[string]struct{}, expectedBones),
	}
}

// pathOf returns the accumulated path hash for a bone name already added.
func (hb *hierarchyBuilder) pathOf(name string) (uint32, bool) {
	h, ok := hb.pathByName[name]
	return h, ok
}

func (hb *hierarchyBuilder) poseOf(name string) (transform.Transform, bool) {
	p, ok := hb.poseByName[name]
	return p, ok
}

// add records a bone under its parent's path hash and returns the bone's own
// path hash. Re-adding the same name overwrites the stored pose (later
// sources win) without duplicating the child entry.
func (hb *hierarchyBuilder) add(name string, pose transform.Transform, parentPath uint32) uint32 {
	hb.poseByName[name] = pose

	seen := hb.childSeen[parentPath]
	if seen == nil {
		seen = make(map[string]struct{})
		hb.childSeen[parentPath] = seen
	}
	if _, dup := seen[name]; !dup {
		seen[name] = struct{}{}
		hb.childrenByPath[parentPath] = append(hb.childrenByPath[parentPath], name)
	}

	own := hashCombine(parentPath, nameHash(name))
	hb.pathByName[name] = own
	return own
}

// flatten walks the accumulated hierarchy from the virtual root and emits
// bones in parent-before-child order. Children keep insertion order, so the
// output is deterministic for a given input sequence. More than one
// root-parented bone yields a forest: every tree is emitted, first root
// first, and an AmbiguousRoot warning is recorded.
func (hb *hierarchyBuilder) flatten() ([]Bone, []Issue) {
	roots := hb.childrenByPath[rootParentHash()]
	if len(roots) == 0 {
		return nil, nil
	}

	var issues []Issue
	if len(roots) > 1 {
		issues = append(issues, Issue{
			Kind:   IssueAmbiguousRoot,
			Detail: "multiple root bones; trees kept in input order",
		})
	}

	bones := make([]Bone, 0, len(hb.pathByName))
	indexByName := make(map[string]int, len(hb.pathByName))

	type frame struct {
		name   string
		parent int
	}

	// Iterative preorder walk; an explicit stack bounds depth for
	// pathologically deep rigs. Children are pushed in reverse so they pop
	// in insertion order.
	var stack []frame
	for i := len(roots) - 1; i >= 0; i-- {
		stack = append(stack, frame{name: roots[i], parent: -1})
	}

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		index := len(bones)
		indexByName[top.name] = index
		bones = append(bones, Bone{
			Name:        top.name,
			ParentIndex: top.parent,
			RefPose:     hb.poseByName[top.name],
		})

		children := hb.childrenByPath[hb.pathByName[top.name]]
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, frame{name: children[i], parent: index})
		}
	}

	return bones, issues
}
