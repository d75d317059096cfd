package skeleton

import (
	"fmt"

	"github.com/tiendc/go-deepcopy"
)

// Clone returns a deep copy of the skeleton. Mergers never mutate their
// inputs, but callers that rename bones (RenameCollidingBones) should work
// on a copy.
func (s *Skeleton) Clone() (*Skeleton, error) {
	dst := &Skeleton{}
	if err := deepcopy.Copy(dst, s); err != nil {
		return nil, fmt.Errorf("clone skeleton %q: %w", s.Name, err)
	}
	return dst, nil
}
