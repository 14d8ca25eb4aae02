package rv32

import (
	"github.com/basil-lang/basil/internal/bitset"
	"github.com/basil-lang/basil/internal/diag"
)

// SSLink is one outbound edge of a sub-section: the taken edge of a
// conditional branch, an unconditional jump, or the fall-through into the
// next block's label.
type SSLink struct {
	// Label is the target label; Op the op the edge leaves from (the
	// branch, or the fall-through label itself).
	Label uint32
	Op    int

	// IntOutputs/RealOutputs are the virtual registers holding live values
	// at the edge. IntSave/RealSave are the subset that some block
	// reachable through this edge actually consumes, i.e. what must be
	// stored to the seam slots.
	IntOutputs  bitset.Set
	RealOutputs bitset.Set
	IntSave     bitset.Set
	RealSave    bitset.Set
}

// SubSection is a basic block: a maximal straight-line op range with a
// single entry and at most two exits.
type SubSection struct {
	Start int
	End   int
	Size  int

	IntInputs  bitset.Set
	RealInputs bitset.Set

	Links []SSLink
}

// SubSections is the per-section control-flow analysis.
type SubSections struct {
	List []SubSection
	// labelToSS maps a label id to the block it starts.
	labelToSS map[uint32]int

	// IntSave/RealSave are the unions of every edge's must-save sets; they
	// size the pre-spill stack area.
	IntSave  bitset.Set
	RealSave bitset.Set
}

// SSForLabel returns the index of the block the label starts, or -1.
func (sss *SubSections) SSForLabel(label uint32) int {
	if i, ok := sss.labelToSS[label]; ok {
		return i
	}
	return -1
}

// branchTargetLabel reports whether op transfers control to a label and
// which one: a conditional branch, or an unconditional jal/jalr with rd=x0.
func branchTargetLabel(op *Op) (uint32, bool) {
	if op.Kind != OpInstr {
		return 0, false
	}
	i := &op.Instr
	if i.Etype == EtypeB {
		if !i.IsLabel {
			return 0, false
		}
		return i.Label, true
	}
	if i.Itype == Jal && i.Rd == RegZero && i.IsLabel {
		return i.Label, true
	}
	if i.Itype == Jalr && i.Rd == RegZero && i.IsLabel {
		return i.Label, true
	}
	return 0, false
}

// isUncondJump reports a terminator with no fall-through.
func isUncondJump(op *Op) bool {
	if op.Kind != OpInstr {
		return false
	}
	return (op.Instr.Itype == Jal || op.Instr.Itype == Jalr) && op.Instr.Rd == RegZero
}

func (sss *SubSections) newSubSection(start int) int {
	sss.List = append(sss.List, SubSection{Start: start, End: NilOp})
	return len(sss.List) - 1
}

func (sss *SubSections) addLink(s *Section, ss *SubSection, ptr int, label uint32) error {
	if len(ss.Links) >= 2 {
		return diag.Errorf(diag.KindAssertionFailed, "sub-section with more than two edges")
	}

	link := SSLink{Label: label, Op: ptr}
	if len(ss.Links) == 0 {
		var used regsUsedVirt
		virtualsReferenced(s, ss.Start, ptr, &used)
		link.IntOutputs = used.Int
		link.RealOutputs = used.Real
	} else {
		// A two-edge block ends with a conditional branch followed by the
		// fall-through label; both edges see the same values, so reuse the
		// first edge's outputs rather than re-walking the block.
		link.IntOutputs = ss.Links[0].IntOutputs.Clone()
		link.RealOutputs = ss.Links[0].RealOutputs.Clone()
	}
	ss.Links = append(ss.Links, link)
	return nil
}

func (sss *SubSections) finalize(s *Section, ssIdx, end, count int) {
	ss := &sss.List[ssIdx]
	ss.End = end
	ss.Size = count

	var used regsUsedVirt
	virtualsLiveIn(s, ss.Start, end, &used)
	ss.IntInputs = used.Int
	ss.RealInputs = used.Real
}

// fallThroughPoint returns the op after which the fall-through label of a
// branch at ptr belongs: the branch itself, or the relaxation nop glued
// after a conditional branch.
func (s *Section) fallThroughPoint(ptr int) int {
	op := s.At(ptr)
	if op.Kind == OpInstr && op.Instr.Etype == EtypeB && op.Next != NilOp {
		next := s.At(op.Next)
		if next.Kind == OpInstr && next.Instr.Itype == Addi &&
			next.Instr.Rd == RegZero && next.Instr.Rs1 == RegZero && next.Instr.Imm == 0 {
			return op.Next
		}
	}
	return ptr
}

// CalculateSubSections splits the section into basic blocks, synthesising
// fall-through labels where a branch has none, and computes the live-in
// and must-save sets.
func CalculateSubSections(s *Section) (*SubSections, error) {
	if s.FirstOp == NilOp || s.FirstOp == s.LastOp {
		return nil, diag.Errorf(diag.KindAssertionFailed, "sub-section analysis on empty section")
	}

	sss := &SubSections{labelToSS: make(map[uint32]int)}

	cur := sss.newSubSection(s.FirstOp)
	count := 0
	for ptr := s.FirstOp; ptr != NilOp; {
		op := s.At(ptr)
		if op.Kind == OpLabel {
			if count > 0 {
				sss.finalize(s, cur, op.Prev, count)
				count = 0
				cur = sss.newSubSection(ptr)
			}
			if op.Label >= s.LabelCounter {
				return nil, diag.Errorf(diag.KindAssertionFailed, "label %d out of range", op.Label)
			}
			sss.labelToSS[op.Label] = cur
		} else if label, ok := branchTargetLabel(op); ok {
			if err := sss.addLink(s, &sss.List[cur], ptr, label); err != nil {
				return nil, err
			}
			after := s.fallThroughPoint(ptr)
			afterOp := s.At(after)
			if !isUncondJump(s.At(ptr)) && afterOp.Next != NilOp {
				if s.At(afterOp.Next).Kind != OpLabel {
					// Make the fall-through addressable.
					fresh := s.AcquireLabel()
					s.InsertLabelBefore(s.At(after).Next, fresh)
				}
			}
		}

		count++
		if ptr == s.LastOp {
			break
		}
		ptr = s.At(ptr).Next
	}
	if count > 0 {
		sss.finalize(s, cur, s.LastOp, count)
	}

	// A block closed by a label it falls into, rather than by a jump, has
	// an implicit edge to that label.
	for i := range sss.List {
		ss := &sss.List[i]
		if ss.End == NilOp {
			continue
		}
		end := s.At(ss.End)
		if isUncondJump(end) || end.Next == NilOp {
			continue
		}
		next := s.At(end.Next)
		if next.Kind == OpLabel {
			if err := sss.addLink(s, ss, end.Next, next.Label); err != nil {
				return nil, err
			}
		}
	}

	// The first block's outputs include the section's arguments, which
	// arrive in registers and must survive like any other live value.
	for i := range sss.List[0].Links {
		link := &sss.List[0].Links[i]
		for a := 0; a < sss.List[0].argCount(s, false); a++ {
			link.IntOutputs.Set(uint(VirtStart + a))
		}
		for a := 0; a < sss.List[0].argCount(s, true); a++ {
			link.RealOutputs.Set(uint(VirtStart + a))
		}
	}

	if err := sss.computeMustSave(); err != nil {
		return nil, err
	}
	return sss, nil
}

func (ss *SubSection) argCount(s *Section, real bool) int {
	if real {
		return s.SType.RealArgs
	}
	return s.SType.IntArgs
}

// visit accumulates start's outputs intersected with the inputs of every
// block reachable from ssIdx, marking visited labels so loops terminate.
func (sss *SubSections) visit(ssIdx int, start *SSLink, intSave, realSave *bitset.Set, visited *bitset.Set) error {
	ss := &sss.List[ssIdx]

	intScratch := start.IntOutputs.Clone()
	intScratch.And(&ss.IntInputs)
	intSave.Or(&intScratch)

	realScratch := start.RealOutputs.Clone()
	realScratch.And(&ss.RealInputs)
	realSave.Or(&realScratch)

	for i := range ss.Links {
		label := ss.Links[i].Label
		if visited.IsSet(uint(label)) {
			continue
		}
		visited.Set(uint(label))
		next := sss.SSForLabel(label)
		if next < 0 {
			return diag.Errorf(diag.KindAssertionFailed, "edge to unknown label %d", label)
		}
		if err := sss.visit(next, start, intSave, realSave, visited); err != nil {
			return err
		}
	}
	return nil
}

func (sss *SubSections) computeMustSave() error {
	for i := range sss.List {
		ss := &sss.List[i]
		for j := range ss.Links {
			link := &ss.Links[j]
			target := sss.SSForLabel(link.Label)
			if target < 0 {
				return diag.Errorf(diag.KindAssertionFailed, "edge to unknown label %d", link.Label)
			}
			visited := bitset.New()
			visited.Set(uint(link.Label))
			if err := sss.visit(target, link, &link.IntSave, &link.RealSave, &visited); err != nil {
				return err
			}
			sss.IntSave.Or(&link.IntSave)
			sss.RealSave.Or(&link.RealSave)
		}
	}
	return nil
}

// computeSaveSets splits the two edges' save sets of a conditional block
// into what both need (stored before the branch) and what only one needs
// (stored on that edge alone).
func computeSaveSets(link1, link2 *bitset.Set) (common, only1, only2 bitset.Set) {
	common = link1.Clone()
	common.And(link2)
	only1 = link1.Clone()
	only1.Sub(&common)
	only2 = link2.Clone()
	only2.Sub(&common)
	return common, only1, only2
}
