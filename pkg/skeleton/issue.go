package skeleton

import (
	"errors"
	"fmt"
)

// ErrEmptyInput is returned when a merge receives no usable source rigs.
var ErrEmptyInput = errors.New("no usable source rigs")

// IssueKind classifies a per-source diagnostic recorded during a merge.
type IssueKind int

const (
	// IssueConflictingHierarchy marks a bone name reused with a different
	// ancestor chain. Fatal for the offending rig only.
	IssueConflictingHierarchy IssueKind = iota
	// IssueConflictingReferencePose marks a re-declared bone whose pose
	// differs beyond tolerance. The later pose wins.
	IssueConflictingReferencePose
	// IssueAmbiguousRoot marks a merge that produced more than one
	// root-parented bone. Trees are kept in input order.
	IssueAmbiguousRoot
	// IssueDuplicateProfileBone marks a bone listed twice within one merged
	// blend profile. The first entry wins.
	IssueDuplicateProfileBone
)

func (k IssueKind) String() string {
	switch k {
	case IssueConflictingHierarchy:
		return "ConflictingHierarchy"
	case IssueConflictingReferencePose:
		return "ConflictingReferencePose"
	case IssueAmbiguousRoot:
		return "AmbiguousRoot"
	case IssueDuplicateProfileBone:
		return "DuplicateProfileBone"
	default:
		return fmt.Sprintf("IssueKind(%d)", int(k))
	}
}

// Issue is a structured warning or per-rig failure collected alongside a
// merge result. Fatal issues exclude the named rig's bones from the output;
// the merge itself still succeeds for the remaining rigs.
type Issue struct {
	Kind   IssueKind
	Rig    string
	Bone   string
	Detail string
	Fatal  bool
}

func (i Issue) String() string {
	s := i.Kind.String()
	if i.Rig != "" {
		s += " rig=" + i.Rig
	}
	if i.Bone != "" {
		s += " bone=" + i.Bone
	}
	if i.Detail != "" {
		s += ": " + i.Detail
	}
	return s
}
