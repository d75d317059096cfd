package skeleton

import "hash/fnv"

// nameHash fingerprints a bone name. FNV-1a keeps merged results stable
// across runs and platforms, which the determinism guarantees depend on.
func nameHash(name string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(name))
	return h.Sum32()
}

// hashCombine folds value into seed, order-sensitively.
func hashCombine(seed, value uint32) uint32 {
	return seed ^ (value + 0x9e3779b9 + (seed << 6) + (seed >> 2))
}

// rootParentHash is the path hash of the virtual parent sitting above every
// root bone. A bone's path hash is hashCombine(parent path hash, name hash),
// so identical name chains from the root always collide here and any rename
// or reposition diverges.
func rootParentHash() uint32 {
	return hashCombine(0, 0)
}
