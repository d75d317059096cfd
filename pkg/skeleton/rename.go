package skeleton

// RenameCollidingBones suffixes bones in later rigs whose names already
// appear in an earlier rig with "_<rig name>", updating socket, derived-bone,
// and blend-profile references to match. It mutates the given rigs and
// returns how many bones were renamed. Callers wanting same-named bones kept
// distinct run this before Merge instead of relying on path-hash unification.
func RenameCollidingBones(rigs []*Skeleton) int {
	taken := make(map[string]struct{})
	renamed := 0

	for _, rig := range rigs {
		if rig == nil {
			continue
		}
		mapping := make(map[string]string)
		for i := range rig.Bones {
			name := rig.Bones[i].Name
			if _, clash := taken[name]; clash {
				next := name + "_" + rig.Name
				mapping[name] = next
				rig.Bones[i].Name = next
				renamed++
				name = next
			}
			taken[name] = struct{}{}
		}
		if len(mapping) == 0 {
			continue
		}

		rename := func(name string) string {
			if next, ok := mapping[name]; ok {
				return next
			}
			return name
		}
		for i := range rig.Sockets {
			rig.Sockets[i].Bone = rename(rig.Sockets[i].Bone)
		}
		for i := range rig.DerivedBones {
			rig.DerivedBones[i].SourceBone = rename(rig.DerivedBones[i].SourceBone)
			rig.DerivedBones[i].TargetBone = rename(rig.DerivedBones[i].TargetBone)
		}
		for i := range rig.BlendProfiles {
			for j := range rig.BlendProfiles[i].Entries {
				rig.BlendProfiles[i].Entries[j].Bone = rename(rig.BlendProfiles[i].Entries[j].Bone)
			}
		}
	}

	return renamed
}
