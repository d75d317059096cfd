package skeleton

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/rigtools/skelmerge/pkg/transform"
)

func vec(x, y, z float64) r3.Vec {
	return r3.Vec{X: x, Y: y, Z: z}
}

func testBone(name string, parent int, at r3.Vec) Bone {
	return Bone{Name: name, ParentIndex: parent, RefPose: transform.FromTranslation(at)}
}

func heroRig() *Skeleton {
	return &Skeleton{
		Name: "hero",
		Bones: []Bone{
			testBone("pelvis", -1, vec(0, 1, 0)),
			testBone("spine", 0, vec(0, 0.5, 0)),
			testBone("hand", 1, vec(0.5, 0, 0)),
		},
	}
}

func weaponRig() *Skeleton {
	return &Skeleton{
		Name: "weapon",
		Bones: []Bone{
			testBone("mount", -1, vec(0, 1, 0)),
			testBone("grip", 0, vec(0, 0, 3)),
			testBone("grip_end", 1, vec(0, 0, 1)),
			testBone("barrel", 0, vec(1, 0, 0)),
			testBone("sight", 3, vec(0, 0.2, 0)),
			testBone("sight_tip", 4, vec(0, 0.1, 0)),
		},
	}
}

func TestMergeAttachUnifiesRoot(t *testing.T) {
	out, issues, err := Merge([]Source{
		{Rig: heroRig()},
		{
			Rig:             weaponRig(),
			AttachBone:      "hand",
			ComponentOffset: transform.FromTranslation(vec(2, 0, 0)),
		},
	}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(issues) != 0 {
		t.Fatalf("unexpected issues: %v", issues)
	}

	// The attached rig's root is unified with the attach bone, so of its six
	// bones five survive.
	want := []struct {
		name   string
		parent int
	}{
		{"pelvis", -1},
		{"spine", 0},
		{"hand", 1},
		{"grip", 2},
		{"grip_end", 3},
		{"barrel", 2},
		{"sight", 5},
		{"sight_tip", 6},
	}
	if len(out.Bones) != len(want) {
		t.Fatalf("got %d bones, want %d", len(out.Bones), len(want))
	}
	for i, w := range want {
		if out.Bones[i].Name != w.name || out.Bones[i].ParentIndex != w.parent {
			t.Errorf("bone %d = %q parent %d, want %q parent %d",
				i, out.Bones[i].Name, out.Bones[i].ParentIndex, w.name, w.parent)
		}
	}
	if out.BoneIndex("mount") != -1 {
		t.Error("unified root must not be emitted")
	}

	// The dropped root's placement (component offset composed with its pose)
	// folds into its direct children.
	got := out.Bones[3].RefPose.Translation
	if math.Abs(got.X-2) > 1e-9 || math.Abs(got.Y-1) > 1e-9 || math.Abs(got.Z-3) > 1e-9 {
		t.Errorf("grip translation = %+v, want (2 1 3)", got)
	}
}

func TestMergeWithoutAttachKeepsIndependentTree(t *testing.T) {
	out, issues, err := Merge([]Source{
		{Rig: heroRig()},
		{Rig: weaponRig(), ComponentOffset: transform.FromTranslation(vec(2, 0, 0))},
	}, Options{})
	if err != nil {
		t.Fatal(err)
	}

	if len(out.Bones) != 9 {
		t.Fatalf("got %d bones, want 9", len(out.Bones))
	}
	mi := out.BoneIndex("mount")
	if mi == -1 || out.Bones[mi].ParentIndex != -1 {
		t.Fatalf("detached rig must keep its own root, mount index %d", mi)
	}
	got := out.Bones[mi].RefPose.Translation
	if math.Abs(got.X-2) > 1e-9 || math.Abs(got.Y-1) > 1e-9 {
		t.Errorf("component offset not applied to detached root: %+v", got)
	}

	found := false
	for _, issue := range issues {
		if issue.Kind == IssueAmbiguousRoot {
			found = true
			if issue.Fatal {
				t.Error("AmbiguousRoot must be a warning")
			}
		}
	}
	if !found {
		t.Error("expected an AmbiguousRoot warning for the two-tree result")
	}
}

func TestMergeAttachBoneMissingFailsRig(t *testing.T) {
	out, issues, err := Merge([]Source{
		{Rig: heroRig()},
		{Rig: weaponRig(), AttachBone: "no_such_bone"},
	}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Bones) != 3 {
		t.Fatalf("failing rig must be excluded entirely, got %d bones", len(out.Bones))
	}
	if len(issues) != 1 || issues[0].Kind != IssueConflictingHierarchy || !issues[0].Fatal {
		t.Fatalf("expected one fatal ConflictingHierarchy issue, got %v", issues)
	}
	if issues[0].Rig != "weapon" {
		t.Errorf("issue names rig %q, want weapon", issues[0].Rig)
	}
}

func TestMergeConflictingHierarchyExcludesOnlyThatRig(t *testing.T) {
	armRig := &Skeleton{
		Name: "hero",
		Bones: []Bone{
			testBone("root", -1, vec(0, 0, 0)),
			testBone("arm", 0, vec(1, 0, 0)),
			testBone("hand", 1, vec(1, 0, 0)),
		},
	}
	// Re-declares hand directly under root, a different ancestor chain.
	gloveRig := &Skeleton{
		Name: "glove",
		Bones: []Bone{
			testBone("root", -1, vec(0, 0, 0)),
			testBone("hand", 0, vec(2, 0, 0)),
		},
		Sockets: []Socket{{Name: "strap", Bone: "hand"}},
	}
	capeRig := &Skeleton{
		Name: "cape",
		Bones: []Bone{
			testBone("root", -1, vec(0, 0, 0)),
			testBone("arm", 0, vec(1, 0, 0)),
			testBone("cape", 1, vec(0, -1, 0)),
		},
	}

	out, issues, err := Merge([]Source{
		{Rig: armRig},
		{Rig: gloveRig},
		{Rig: capeRig},
	}, Options{CheckCompatibility: true, MergeSockets: true})
	if err != nil {
		t.Fatal(err)
	}

	wantBones := []string{"root", "arm", "hand", "cape"}
	if len(out.Bones) != len(wantBones) {
		t.Fatalf("got %d bones, want %d", len(out.Bones), len(wantBones))
	}
	for i, name := range wantBones {
		if out.Bones[i].Name != name {
			t.Errorf("bone %d = %q, want %q", i, out.Bones[i].Name, name)
		}
	}

	fatal := 0
	for _, issue := range issues {
		if issue.Fatal {
			fatal++
			if issue.Kind != IssueConflictingHierarchy || issue.Rig != "glove" {
				t.Errorf("unexpected fatal issue %v", issue)
			}
		}
	}
	if fatal != 1 {
		t.Fatalf("expected exactly one fatal issue, got %d (%v)", fatal, issues)
	}

	// Excluded rigs contribute nothing, sockets included.
	if len(out.Sockets) != 0 {
		t.Errorf("socket of an excluded rig leaked into the output: %v", out.Sockets)
	}
}

func TestMergeConflictingPoseWarnsAndLaterWins(t *testing.T) {
	first := &Skeleton{
		Name: "a",
		Bones: []Bone{
			testBone("root", -1, vec(0, 0, 0)),
			testBone("arm", 0, vec(1, 0, 0)),
		},
	}
	second := &Skeleton{
		Name: "b",
		Bones: []Bone{
			testBone("root", -1, vec(0, 0, 0)),
			testBone("arm", 0, vec(5, 0, 0)),
		},
	}

	out, issues, err := Merge([]Source{{Rig: first}, {Rig: second}},
		Options{CheckCompatibility: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Bones) != 2 {
		t.Fatalf("got %d bones, want 2", len(out.Bones))
	}
	if got := out.Bones[1].RefPose.Translation.X; got != 5 {
		t.Errorf("later pose should win, got x=%v", got)
	}

	if len(issues) != 1 || issues[0].Kind != IssueConflictingReferencePose {
		t.Fatalf("expected one ConflictingReferencePose warning, got %v", issues)
	}
	if issues[0].Fatal {
		t.Error("pose conflicts are warnings, not failures")
	}
}

func TestMergeReportsEveryConflictingPose(t *testing.T) {
	first := &Skeleton{
		Name: "a",
		Bones: []Bone{
			testBone("root", -1, vec(0, 0, 0)),
			testBone("arm", 0, vec(1, 0, 0)),
			testBone("leg", 0, vec(0, -1, 0)),
		},
	}
	second := &Skeleton{
		Name: "b",
		Bones: []Bone{
			testBone("root", -1, vec(0, 0, 0)),
			testBone("arm", 0, vec(5, 0, 0)),
			testBone("leg", 0, vec(0, -5, 0)),
		},
	}

	_, issues, err := Merge([]Source{{Rig: first}, {Rig: second}},
		Options{CheckCompatibility: true})
	if err != nil {
		t.Fatal(err)
	}

	conflicting := map[string]bool{}
	for _, issue := range issues {
		if issue.Kind == IssueConflictingReferencePose {
			conflicting[issue.Bone] = true
		}
	}
	if len(conflicting) != 2 || !conflicting["arm"] || !conflicting["leg"] {
		t.Errorf("want a warning per conflicting bone (arm, leg), got %v", issues)
	}
}

func TestMergeBoundPoseOverridesSecondaryRig(t *testing.T) {
	base := heroRig()
	addon := &Skeleton{
		Name: "addon",
		Bones: []Bone{
			testBone("addon_root", -1, vec(0, 0, 0)),
			testBone("fin", 0, vec(1, 0, 0)),
		},
	}

	out, _, err := Merge([]Source{
		{Rig: base},
		{
			Rig:       addon,
			BoundPose: map[string]transform.Transform{"fin": transform.FromTranslation(vec(9, 0, 0))},
		},
	}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	fi := out.BoneIndex("fin")
	if fi == -1 {
		t.Fatal("fin missing from merge")
	}
	if got := out.Bones[fi].RefPose.Translation.X; got != 9 {
		t.Errorf("bound pose should override the rig pose, got x=%v", got)
	}
}

func TestMergeIdempotent(t *testing.T) {
	rig := heroRig()
	dup, err := rig.Clone()
	if err != nil {
		t.Fatal(err)
	}

	out, issues, err := Merge([]Source{{Rig: rig}, {Rig: dup}},
		Options{CheckCompatibility: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(issues) != 0 {
		t.Fatalf("merging a rig with its copy should be clean, got %v", issues)
	}
	if !reflect.DeepEqual(out.Bones, rig.Bones) {
		t.Errorf("merged bones differ from the source rig:\n got %+v\nwant %+v", out.Bones, rig.Bones)
	}
}

func TestMergeDeterministic(t *testing.T) {
	build := func() (*Skeleton, []Issue, error) {
		return Merge([]Source{
			{Rig: heroRig()},
			{Rig: weaponRig(), AttachBone: "hand"},
		}, Options{CheckCompatibility: true, MergeSockets: true, MergeCurves: true})
	}

	a, aIssues, err := build()
	if err != nil {
		t.Fatal(err)
	}
	b, bIssues, err := build()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Error("repeated merges of the same inputs diverged")
	}
	if !reflect.DeepEqual(aIssues, bIssues) {
		t.Error("repeated merges reported different issues")
	}
}

func TestMergeSockets(t *testing.T) {
	left := heroRig()
	left.Sockets = []Socket{
		{Name: "weapon", Bone: "hand", Offset: transform.FromTranslation(vec(1, 0, 0))},
		{Name: "flag", Bone: "spine", Offset: transform.FromTranslation(vec(0, 1, 0))},
	}
	right := heroRig()
	right.Name = "hero_b"
	right.Sockets = []Socket{
		{Name: "weapon", Bone: "spine", Offset: transform.FromTranslation(vec(2, 0, 0))},
		{Name: "flag", Bone: "spine", Offset: transform.FromTranslation(vec(0, 2, 0))},
	}

	out, _, err := Merge([]Source{{Rig: left}, {Rig: right}},
		Options{MergeSockets: true})
	if err != nil {
		t.Fatal(err)
	}

	// Same socket name on different bones stays distinct; the same name on
	// the same bone dedupes with the later offset winning.
	if len(out.Sockets) != 3 {
		t.Fatalf("got %d sockets, want 3: %v", len(out.Sockets), out.Sockets)
	}
	byKey := make(map[string]Socket)
	for _, s := range out.Sockets {
		byKey[s.Name+"/"+s.Bone] = s
	}
	if _, ok := byKey["weapon/hand"]; !ok {
		t.Error("weapon socket on hand lost")
	}
	if _, ok := byKey["weapon/spine"]; !ok {
		t.Error("weapon socket on spine lost")
	}
	if flag, ok := byKey["flag/spine"]; !ok || flag.Offset.Translation.Y != 2 {
		t.Errorf("duplicate flag socket should keep the later offset, got %+v", flag)
	}
}

func TestMergeAuxCollections(t *testing.T) {
	first := heroRig()
	first.Curves = map[string]*CurveMeta{
		"smile": nil,
		"blink": {Morph: true},
	}
	first.BlendProfiles = []BlendProfile{
		{Name: "fast", Entries: []BlendProfileEntry{{Bone: "spine", Scale: 0.5}}},
	}
	first.SlotGroups = []SlotGroup{
		{Name: "DefaultGroup", Slots: []string{"UpperBody"}},
	}

	second := heroRig()
	second.Name = "hero_b"
	second.Curves = map[string]*CurveMeta{
		"smile": {Material: true},
	}
	second.BlendProfiles = []BlendProfile{
		{Name: "fast", Entries: []BlendProfileEntry{
			{Bone: "spine", Scale: 0.9},
			{Bone: "hand", Scale: 1},
		}},
	}
	second.SlotGroups = []SlotGroup{
		{Name: "DefaultGroup", Slots: []string{"UpperBody", "FullBody"}},
	}

	out, issues, err := Merge([]Source{{Rig: first}, {Rig: second}}, Options{
		MergeCurves:        true,
		MergeBlendProfiles: true,
		MergeSlotGroups:    true,
	})
	if err != nil {
		t.Fatal(err)
	}

	if meta := out.Curves["smile"]; meta == nil || !meta.Material {
		t.Errorf("last non-nil curve metadata should win, got %+v", meta)
	}
	if meta := out.Curves["blink"]; meta == nil || !meta.Morph {
		t.Errorf("blink curve lost, got %+v", meta)
	}

	if len(out.BlendProfiles) != 1 {
		t.Fatalf("got %d blend profiles, want 1", len(out.BlendProfiles))
	}
	entries := out.BlendProfiles[0].Entries
	if len(entries) != 2 || entries[0].Bone != "spine" || entries[0].Scale != 0.5 || entries[1].Bone != "hand" {
		t.Errorf("blend profile entries = %+v, want spine@0.5 then hand", entries)
	}

	dup := 0
	for _, issue := range issues {
		if issue.Kind == IssueDuplicateProfileBone {
			dup++
			if issue.Rig != "hero_b" || issue.Bone != "spine" {
				t.Errorf("duplicate profile issue names %q/%q", issue.Rig, issue.Bone)
			}
		}
	}
	if dup != 1 {
		t.Errorf("expected one DuplicateProfileBone warning, got %d", dup)
	}

	if len(out.SlotGroups) != 1 {
		t.Fatalf("got %d slot groups, want 1", len(out.SlotGroups))
	}
	slots := out.SlotGroups[0].Slots
	if len(slots) != 2 || slots[0] != "UpperBody" || slots[1] != "FullBody" {
		t.Errorf("slot group union = %v", slots)
	}
}

func TestMergeEmptyInput(t *testing.T) {
	if _, _, err := Merge(nil, Options{}); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("nil sources: got %v, want ErrEmptyInput", err)
	}
	if _, _, err := Merge([]Source{{Rig: nil}}, Options{}); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("nil rigs: got %v, want ErrEmptyInput", err)
	}
	if _, _, err := Merge([]Source{{Rig: &Skeleton{Name: "bare"}}}, Options{}); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("boneless rigs: got %v, want ErrEmptyInput", err)
	}
}

func TestMergeDropsNilAndRepeatedSources(t *testing.T) {
	rig := heroRig()
	out, issues, err := Merge([]Source{{Rig: nil}, {Rig: rig}, {Rig: rig}}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(issues) != 0 {
		t.Fatalf("unexpected issues: %v", issues)
	}
	if len(out.Bones) != 3 {
		t.Errorf("got %d bones, want 3", len(out.Bones))
	}
}

func TestMergeRejectsInvalidRig(t *testing.T) {
	bad := &Skeleton{
		Name: "bad",
		Bones: []Bone{
			testBone("root", -1, vec(0, 0, 0)),
			testBone("root", 0, vec(1, 0, 0)),
		},
	}
	_, _, err := Merge([]Source{{Rig: heroRig()}, {Rig: bad}}, Options{})
	if err == nil {
		t.Fatal("expected validation error for duplicate bone names")
	}
}
