package rv32

import "github.com/basil-lang/basil/internal/bitset"

// regsUsedVirt collects virtual registers of both classes.
type regsUsedVirt struct {
	Int  bitset.Set
	Real bitset.Set
}

// intLiveIn reports whether reg's first reference in [from, to] is a read,
// i.e. whether the range consumes a value produced before it.
func intLiveIn(s *Section, reg Reg, from, to int) bool {
	return intNextUse(s, reg, from, to, 0) != -1
}

func realLiveIn(s *Section, reg Reg, from, to int) bool {
	return realNextUse(s, reg, from, to, 0) != -1
}

// virtualsLiveIn fills used with every virtual register (of either class)
// whose first reference in [from, to] is a read. These are the range's
// inputs.
func virtualsLiveIn(s *Section, from, to int, used *regsUsedVirt) {
	for i := uint32(VirtStart); i < s.MaxIntRegs(); i++ {
		if intLiveIn(s, Reg(i), from, to) {
			used.Int.Set(uint(i))
		}
	}
	for i := uint32(VirtStart); i < s.MaxRealRegs(); i++ {
		if realLiveIn(s, Reg(i), from, to) {
			used.Real.Set(uint(i))
		}
	}
}

// virtualsReferenced fills used with every virtual register referenced at
// all in [from, to]. A register referenced in a block prefix holds a live
// value at the prefix's end, because block entry reloads every input and
// everything else must have been defined in the block.
func virtualsReferenced(s *Section, from, to int, used *regsUsedVirt) {
	for i := uint32(VirtStart); i < s.MaxIntRegs(); i++ {
		if intReferenced(s, Reg(i), from, to) {
			used.Int.Set(uint(i))
		}
	}
	for i := uint32(VirtStart); i < s.MaxRealRegs(); i++ {
		if realReferenced(s, Reg(i), from, to) {
			used.Real.Set(uint(i))
		}
	}
}
