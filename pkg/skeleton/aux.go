package skeleton

import "sort"

// auxAccumulator unions the auxiliary rig collections across sources.
// Sockets and derived bones dedupe by composite name hashes (last source
// wins on true duplicates); curves keep the last non-nil metadata per name;
// blend profiles concatenate entries per profile name; slot groups union
// their slot sets per group name. Insertion order is preserved everywhere so
// repeated merges produce identical output.
type auxAccumulator struct {
	socketOrder []uint32
	sockets     map[uint32]Socket

	derivedOrder []uint32
	derived      map[uint32]DerivedBone

	curveOrder []string
	curves     map[string]*CurveMeta

	profileOrder []string
	profiles     map[string][]BlendProfileEntry
	profileBones map[string]map[string]struct{}

	groupOrder []string
	groups     map[string][]string
	groupSeen  map[string]map[string]struct{}
}

func newAuxAccumulator() *auxAccumulator {
	return &auxAccumulator{
		sockets:      make(map[uint32]Socket),
		derived:      make(map[uint32]DerivedBone),
		curves:       make(map[string]*CurveMeta),
		profiles:     make(map[string][]BlendProfileEntry),
		profileBones: make(map[string]map[string]struct{}),
		groups:       make(map[string][]string),
		groupSeen:    make(map[string]map[string]struct{}),
	}
}

func (a *auxAccumulator) collect(rig *Skeleton, opts Options) []Issue {
	var issues []Issue

	if opts.MergeSockets {
		for _, s := range rig.Sockets {
			// Identity is name+bone, so same-named sockets on different
			// bones stay distinct.
			key := hashCombine(nameHash(s.Name), nameHash(s.Bone))
			if _, ok := a.sockets[key]; !ok {
				a.socketOrder = append(a.socketOrder, key)
			}
			a.sockets[key] = s
		}
	}

	if opts.MergeDerivedBones {
		for _, d := range rig.DerivedBones {
			key := hashCombine(nameHash(d.SourceBone), nameHash(d.TargetBone))
			if _, ok := a.derived[key]; !ok {
				a.derivedOrder = append(a.derivedOrder, key)
			}
			a.derived[key] = d
		}
	}

	if opts.MergeCurves {
		names := make([]string, 0, len(rig.Curves))
		for name := range rig.Curves {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if _, ok := a.curves[name]; !ok {
				a.curveOrder = append(a.curveOrder, name)
				a.curves[name] = rig.Curves[name]
				continue
			}
			if meta := rig.Curves[name]; meta != nil {
				a.curves[name] = meta
			}
		}
	}

	if opts.MergeBlendProfiles {
		for _, p := range rig.BlendProfiles {
			bones := a.profileBones[p.Name]
			if bones == nil {
				bones = make(map[string]struct{})
				a.profileBones[p.Name] = bones
				a.profileOrder = append(a.profileOrder, p.Name)
			}
			for _, e := range p.Entries {
				if _, dup := bones[e.Bone]; dup {
					issues = append(issues, Issue{
						Kind:   IssueDuplicateProfileBone,
						Rig:    rig.Name,
						Bone:   e.Bone,
						Detail: "bone already scaled by blend profile " + p.Name,
					})
					continue
				}
				bones[e.Bone] = struct{}{}
				a.profiles[p.Name] = append(a.profiles[p.Name], e)
			}
		}
	}

	if opts.MergeSlotGroups {
		for _, g := range rig.SlotGroups {
			seen := a.groupSeen[g.Name]
			if seen == nil {
				seen = make(map[string]struct{})
				a.groupSeen[g.Name] = seen
				a.groupOrder = append(a.groupOrder, g.Name)
			}
			for _, slot := range g.Slots {
				if _, dup := seen[slot]; dup {
					continue
				}
				seen[slot] = struct{}{}
				a.groups[g.Name] = append(a.groups[g.Name], slot)
			}
		}
	}

	return issues
}

func (a *auxAccumulator) apply(out *Skeleton, opts Options) {
	if opts.MergeSockets {
		out.Sockets = make([]Socket, 0, len(a.socketOrder))
		for _, key := range a.socketOrder {
			out.Sockets = append(out.Sockets, a.sockets[key])
		}
	}
	if opts.MergeDerivedBones {
		out.DerivedBones = make([]DerivedBone, 0, len(a.derivedOrder))
		for _, key := range a.derivedOrder {
			out.DerivedBones = append(out.DerivedBones, a.derived[key])
		}
	}
	if opts.MergeCurves && len(a.curves) > 0 {
		out.Curves = make(map[string]*CurveMeta, len(a.curves))
		for _, name := range a.curveOrder {
			out.Curves[name] = a.curves[name]
		}
	}
	if opts.MergeBlendProfiles {
		out.BlendProfiles = make([]BlendProfile, 0, len(a.profileOrder))
		for _, name := range a.profileOrder {
			out.BlendProfiles = append(out.BlendProfiles, BlendProfile{
				Name:    name,
				Entries: a.profiles[name],
			})
		}
	}
	if opts.MergeSlotGroups {
		out.SlotGroups = make([]SlotGroup, 0, len(a.groupOrder))
		for _, name := range a.groupOrder {
			out.SlotGroups = append(out.SlotGroups, SlotGroup{
				Name:  name,
				Slots: a.groups[name],
			})
		}
	}
}
