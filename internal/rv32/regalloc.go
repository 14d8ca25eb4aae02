package rv32

import (
	"math"

	"github.com/basil-lang/basil/internal/diag"
)

// The allocator runs in three phases over one section. First the section
// is split into basic blocks and seam code is inserted: stores of each
// edge's must-save registers before the terminator, loads of each block's
// live-in registers after its label. Then a single walk assigns physical
// registers, recording where spill loads and stores will be needed without
// inserting them, so the distance calculations stay stable. Finally the
// recorded spill points are materialised in order and the total stack
// requirement is returned.

const (
	// noVirt marks a free physical register.
	noVirt Reg = math.MaxUint32
	// notSpilt marks a virtual register currently living in a physical.
	notSpilt int32 = math.MaxInt32
	// slotTaken marks an occupied spill-stack slot.
	slotTaken int32 = math.MaxInt32
)

type spillKind int

const (
	spillLoad spillKind = iota
	spillStore
)

type spillPoint struct {
	kind   spillKind
	pos    int
	offset int32
	phys   Reg
}

// regClass is the per-class allocator state, instantiated once for the
// integer registers and once for the floats.
type regClass struct {
	firstFree int
	maxRegs   int
	regSize   int32

	physToVirt []Reg
	next       []int

	vrRegCount int
	spiltRegs  []int32
	spillStack []int32
	spillTop   int
	spillMax   int
	spiltArgs  int32

	spillPoints []spillPoint

	nextUse  func(s *Section, reg Reg, from, to, start int) int
	loadFar  func(s *Section, pos int, dest, base, tmp Reg, offset int32)
	storeFar func(s *Section, pos int, val, base, tmp Reg, offset int32)
}

func newRegClass(vrCount uint32, maxRegs, firstFree int, regSize int32,
	args int, argBase Reg,
	nextUse func(*Section, Reg, int, int, int) int,
	loadFar func(*Section, int, Reg, Reg, Reg, int32),
	storeFar func(*Section, int, Reg, Reg, Reg, int32)) *regClass {

	c := &regClass{
		firstFree:  firstFree,
		maxRegs:    maxRegs,
		regSize:    regSize,
		physToVirt: make([]Reg, maxRegs),
		next:       make([]int, maxRegs),
		vrRegCount: int(vrCount),
		spiltRegs:  make([]int32, vrCount),
		spillStack: make([]int32, vrCount),
		nextUse:    nextUse,
		loadFar:    loadFar,
		storeFar:   storeFar,
	}

	for i := range c.spiltRegs {
		c.spiltRegs[i] = notSpilt
		c.spillStack[i] = int32(i) * regSize
	}

	regArgs := args
	if regArgs > MaxRegArgs {
		regArgs = MaxRegArgs
	}

	for i := 0; i < maxRegs; i++ {
		c.next[i] = -1
		c.physToVirt[i] = noVirt
	}
	// Reserved registers own themselves so a fixed-use reference never
	// tries to spill them.
	for i := 0; i < firstFree; i++ {
		c.physToVirt[i] = Reg(i)
	}
	// The first MaxRegArgs arguments arrive in registers, pre-bound to the
	// argument virtuals.
	for i := 0; i < regArgs; i++ {
		c.physToVirt[int(argBase)+i] = Reg(VirtStart + i)
	}
	// The rest arrive on the caller's stack and start out spilled. Their
	// slots sit above the frame, so they are never handed to ordinary
	// spills: the stack entries stay taken for the whole allocation.
	if args > regArgs {
		c.spiltArgs = int32(args - regArgs)
		for i := regArgs; i < args; i++ {
			c.spiltRegs[VirtStart+i] = int32(i-regArgs) * regSize
		}
		for i := int32(0); i < c.spiltArgs; i++ {
			c.spillStack[i] = slotTaken
		}
		c.spillTop = int(c.spiltArgs)
		c.spillMax = c.spillTop
	}

	return c
}

func (c *regClass) addSpillPoint(kind spillKind, pos int, offset int32, phys Reg) {
	c.spillPoints = append(c.spillPoints, spillPoint{kind: kind, pos: pos, offset: offset, phys: phys})
}

// spillReg evicts the value of virt (currently in phys) to a fresh stack
// slot, recording the store for later materialisation.
func (c *regClass) spillReg(pos int, virt, phys Reg) error {
	if c.spillTop >= c.vrRegCount {
		return diag.Errorf(diag.KindAssertionFailed, "spill stack exhausted")
	}

	i := 0
	for ; i < c.spillTop; i++ {
		if c.spillStack[i] != slotTaken {
			break
		}
	}
	offset := c.spillStack[i]
	c.spillStack[i] = slotTaken
	if i == c.spillTop {
		c.spillTop++
		if c.spillMax < c.spillTop {
			c.spillMax = c.spillTop
		}
	}

	c.spiltRegs[virt] = offset
	c.addSpillPoint(spillStore, pos, offset, phys)
	return nil
}

// loadSpilled brings virt back from its stack slot into phys.
func (c *regClass) loadSpilled(pos int, virt, phys Reg) error {
	offset := c.spiltRegs[virt]
	if offset == notSpilt {
		return diag.Errorf(diag.KindAssertionFailed, "%s read before definition", virt)
	}

	c.addSpillPoint(spillLoad, pos, offset, phys)
	c.physToVirt[phys] = virt
	c.spiltRegs[virt] = notSpilt
	c.next[phys] = -1

	// Return the slot to the free pool, unless it belongs to the
	// caller-pushed argument area above the frame.
	if offset < c.spiltArgs*c.regSize {
		return nil
	}
	i := int(offset / c.regSize)
	c.spillStack[i] = offset
	if i == c.spillTop-1 {
		c.spillTop--
		for i--; i >= 0; i-- {
			if c.spillStack[i] == slotTaken {
				break
			}
			c.spillTop--
		}
	}
	return nil
}

func (c *regClass) virtToPhys(virt Reg) Reg {
	for i := c.firstFree; i < c.maxRegs; i++ {
		if c.physToVirt[i] == virt {
			return Reg(i)
		}
	}
	return noVirt
}

// allocateFixed makes a fixed-use physical register available, spilling
// whichever virtual currently owns it.
func (c *regClass) allocateFixed(pos int, reg Reg) error {
	assigned := c.physToVirt[reg]
	if assigned == noVirt || assigned == reg {
		return nil
	}
	return c.spillReg(pos, assigned, reg)
}

// allocateFloating picks a physical register for a virtual: a free one,
// highest numbered first, else the one whose owner is used furthest in the
// future.
func (c *regClass) allocateFloating(pos int) (Reg, error) {
	for i := c.maxRegs - 1; i >= c.firstFree; i-- {
		if c.physToVirt[i] == noVirt {
			return Reg(i), nil
		}
	}

	victim, maxNext := -1, -1
	for i := c.firstFree; i < c.maxRegs; i++ {
		if c.next[i] > maxNext {
			maxNext = c.next[i]
			victim = i
		}
	}
	if victim < 0 {
		return 0, diag.Errorf(diag.KindAssertionFailed, "no allocatable register")
	}
	if err := c.spillReg(pos, c.physToVirt[victim], Reg(victim)); err != nil {
		return 0, err
	}
	return Reg(victim), nil
}

// allocUD is the walking state of one allocation pass.
type allocUD struct {
	s          *Section
	intRegs    *regClass
	realRegs   *regClass
	sss        *SubSections
	currentSS  int
	instrCount int
	bbSpill    int32
}

// useInfo remembers what ensure found so the next-use table can be updated
// after the destination has been allocated.
type useInfo struct {
	vreg  Reg
	phys  Reg
	fixed bool
	dist  int
}

func (ud *allocUD) distBound(vreg Reg) int {
	// Virtual live ranges end at the basic-block seam; fixed registers are
	// not preserved across blocks and must be tracked to the section end.
	if vreg.IsVirtual() && ud.sss != nil {
		return ud.sss.List[ud.currentSS].End
	}
	return NilOp
}

func (ud *allocUD) calcDist(c *regClass, vreg Reg, opIdx int) int {
	from := ud.s.At(opIdx).Next
	if from == NilOp {
		return -1
	}
	return c.nextUse(ud.s, vreg, from, ud.distBound(vreg), ud.instrCount+1)
}

// ensure makes sure a source operand is readable in a physical register,
// renaming *r in place. It returns the bookkeeping needed by commitUse,
// with fixed set for reserved registers that need no tracking.
func (ud *allocUD) ensure(c *regClass, opIdx int, r *Reg) (useInfo, error) {
	info := useInfo{vreg: *r}

	if *r < Reg(c.maxRegs) {
		if int(*r) < c.firstFree {
			info.fixed = true
			return info, nil
		}
		assigned := c.physToVirt[*r]
		if assigned != *r {
			if assigned != noVirt {
				if err := c.spillReg(opIdx, assigned, *r); err != nil {
					return info, err
				}
			}
			if c.spiltRegs[*r] != notSpilt {
				if err := c.loadSpilled(opIdx, *r, *r); err != nil {
					return info, err
				}
			} else {
				c.physToVirt[*r] = *r
			}
		}
	} else {
		if int(*r) >= c.vrRegCount {
			return info, diag.Errorf(diag.KindAssertionFailed, "%s out of range", *r)
		}
		if phys := c.virtToPhys(*r); phys != noVirt {
			*r = phys
		} else {
			target, err := c.allocateFloating(opIdx)
			if err != nil {
				return info, err
			}
			if err := c.loadSpilled(opIdx, info.vreg, target); err != nil {
				return info, err
			}
			*r = target
		}
	}

	info.phys = *r
	return info, nil
}

// finishUse computes the operand's next-use distance once every source of
// the instruction has been ensured, releasing the physical at once when
// the value is dead after this instruction.
func (ud *allocUD) finishUse(c *regClass, info *useInfo, opIdx int) {
	if info.fixed {
		return
	}
	info.dist = ud.calcDist(c, info.vreg, opIdx)
	if info.dist == -1 && c.physToVirt[info.phys] == info.vreg {
		c.physToVirt[info.phys] = noVirt
	}
}

// commitUse publishes the next-use distance computed by finishUse, unless the
// physical register has changed hands in between (a destination may have
// reused a freed source).
func (c *regClass) commitUse(info useInfo) {
	if info.fixed {
		return
	}
	if c.physToVirt[info.phys] == info.vreg {
		c.next[info.phys] = info.dist
	}
}

// allocDest assigns a physical register to a destination operand.
func (ud *allocUD) allocDest(c *regClass, opIdx int, r *Reg) error {
	vreg := *r
	if int(vreg) < c.firstFree {
		return nil
	}

	if vreg < Reg(c.maxRegs) {
		if err := c.allocateFixed(opIdx, vreg); err != nil {
			return err
		}
	} else {
		if int(vreg) >= c.vrRegCount {
			return diag.Errorf(diag.KindAssertionFailed, "%s out of range", vreg)
		}
		if phys := c.virtToPhys(vreg); phys != noVirt {
			*r = phys
		} else {
			target, err := c.allocateFloating(opIdx)
			if err != nil {
				return err
			}
			*r = target
		}
		// A redefinition of a spilled virtual supersedes the stale slot.
		if c.spiltRegs[vreg] != notSpilt {
			offset := c.spiltRegs[vreg]
			c.spiltRegs[vreg] = notSpilt
			if offset >= c.spiltArgs*c.regSize {
				c.spillStack[offset/c.regSize] = offset
			}
		}
	}

	c.physToVirt[*r] = vreg
	dist := ud.calcDist(c, vreg, opIdx)
	if dist == -1 {
		c.physToVirt[*r] = noVirt
	}
	c.next[*r] = dist
	return nil
}

// spillAcrossCall evicts every virtual still living in an allocatable
// physical register: the callee is free to clobber all of them, so live
// values must sit in stack slots across the call.
func (ud *allocUD) spillAcrossCall(opIdx int) error {
	for _, c := range []*regClass{ud.intRegs, ud.realRegs} {
		for i := c.firstFree; i < c.maxRegs; i++ {
			v := c.physToVirt[i]
			if v == noVirt || !v.IsVirtual() {
				continue
			}
			if err := c.spillReg(opIdx, v, Reg(i)); err != nil {
				return err
			}
			c.physToVirt[i] = noVirt
			c.next[i] = -1
		}
	}
	return nil
}

func (ud *allocUD) Label(opIdx int, label uint32) error {
	if ud.sss != nil {
		if ss := ud.sss.SSForLabel(label); ss >= 0 {
			ud.currentSS = ss
		}
	}
	ud.instrCount++
	return nil
}

func (ud *allocUD) Directive(int, *Op) error { return nil }

func (ud *allocUD) R(opIdx int, i *Instr) error {
	rs1, err := ud.ensure(ud.intRegs, opIdx, &i.Rs1)
	if err != nil {
		return err
	}
	rs2, err := ud.ensure(ud.intRegs, opIdx, &i.Rs2)
	if err != nil {
		return err
	}
	ud.finishUse(ud.intRegs, &rs1, opIdx)
	ud.finishUse(ud.intRegs, &rs2, opIdx)
	if err := ud.allocDest(ud.intRegs, opIdx, &i.Rd); err != nil {
		return err
	}
	ud.intRegs.commitUse(rs1)
	ud.intRegs.commitUse(rs2)
	ud.instrCount++
	return nil
}

func (ud *allocUD) I(opIdx int, i *Instr) error {
	rs1, err := ud.ensure(ud.intRegs, opIdx, &i.Rs1)
	if err != nil {
		return err
	}
	ud.finishUse(ud.intRegs, &rs1, opIdx)
	if i.Itype == Jalr && i.Rd != RegZero {
		if err := ud.spillAcrossCall(opIdx); err != nil {
			return err
		}
	}
	if err := ud.allocDest(ud.intRegs, opIdx, &i.Rd); err != nil {
		return err
	}
	ud.intRegs.commitUse(rs1)
	ud.instrCount++
	return nil
}

func (ud *allocUD) SB(opIdx int, i *Instr) error {
	rs1, err := ud.ensure(ud.intRegs, opIdx, &i.Rs1)
	if err != nil {
		return err
	}
	rs2, err := ud.ensure(ud.intRegs, opIdx, &i.Rs2)
	if err != nil {
		return err
	}
	ud.finishUse(ud.intRegs, &rs1, opIdx)
	ud.finishUse(ud.intRegs, &rs2, opIdx)
	ud.intRegs.commitUse(rs1)
	ud.intRegs.commitUse(rs2)
	ud.instrCount++
	return nil
}

func (ud *allocUD) UJ(opIdx int, i *Instr) error {
	if i.Itype == Jal && i.Rd != RegZero && i.IsLabel {
		if err := ud.spillAcrossCall(opIdx); err != nil {
			return err
		}
	}
	if err := ud.allocDest(ud.intRegs, opIdx, &i.Rd); err != nil {
		return err
	}
	ud.instrCount++
	return nil
}

func (ud *allocUD) RealR(opIdx int, i *Instr) error {
	var uses []struct {
		c    *regClass
		info useInfo
	}
	use := func(c *regClass, r *Reg) error {
		info, err := ud.ensure(c, opIdx, r)
		if err != nil {
			return err
		}
		uses = append(uses, struct {
			c    *regClass
			info useInfo
		}{c, info})
		return nil
	}
	finishUses := func() {
		for idx := range uses {
			ud.finishUse(uses[idx].c, &uses[idx].info, opIdx)
		}
	}

	switch i.Itype {
	case FcvtSW, FcvtSWu, FcvtDW, FcvtDWu, FmvWX:
		// Integer source, float destination.
		if err := use(ud.intRegs, &i.Rs1); err != nil {
			return err
		}
		finishUses()
		if err := ud.allocDest(ud.realRegs, opIdx, &i.Rd); err != nil {
			return err
		}
	case FcvtWS, FcvtWuS, FcvtWD, FcvtWuD, FmvXW, FclassS, FclassD:
		// Float source, integer destination.
		if err := use(ud.realRegs, &i.Rs1); err != nil {
			return err
		}
		finishUses()
		if err := ud.allocDest(ud.intRegs, opIdx, &i.Rd); err != nil {
			return err
		}
	case FeqS, FltS, FleS, FeqD, FltD, FleD:
		if err := use(ud.realRegs, &i.Rs1); err != nil {
			return err
		}
		if err := use(ud.realRegs, &i.Rs2); err != nil {
			return err
		}
		finishUses()
		if err := ud.allocDest(ud.intRegs, opIdx, &i.Rd); err != nil {
			return err
		}
	case FsqrtS, FsqrtD, FcvtSD, FcvtDS:
		if err := use(ud.realRegs, &i.Rs1); err != nil {
			return err
		}
		finishUses()
		if err := ud.allocDest(ud.realRegs, opIdx, &i.Rd); err != nil {
			return err
		}
	default:
		if err := use(ud.realRegs, &i.Rs1); err != nil {
			return err
		}
		if err := use(ud.realRegs, &i.Rs2); err != nil {
			return err
		}
		finishUses()
		if err := ud.allocDest(ud.realRegs, opIdx, &i.Rd); err != nil {
			return err
		}
	}

	for _, u := range uses {
		u.c.commitUse(u.info)
	}
	ud.instrCount++
	return nil
}

func (ud *allocUD) RealR4(opIdx int, i *Instr) error {
	rs1, err := ud.ensure(ud.realRegs, opIdx, &i.Rs1)
	if err != nil {
		return err
	}
	rs2, err := ud.ensure(ud.realRegs, opIdx, &i.Rs2)
	if err != nil {
		return err
	}
	rs3, err := ud.ensure(ud.realRegs, opIdx, &i.Rs3)
	if err != nil {
		return err
	}
	ud.finishUse(ud.realRegs, &rs1, opIdx)
	ud.finishUse(ud.realRegs, &rs2, opIdx)
	ud.finishUse(ud.realRegs, &rs3, opIdx)
	if err := ud.allocDest(ud.realRegs, opIdx, &i.Rd); err != nil {
		return err
	}
	ud.realRegs.commitUse(rs1)
	ud.realRegs.commitUse(rs2)
	ud.realRegs.commitUse(rs3)
	ud.instrCount++
	return nil
}

func (ud *allocUD) RealI(opIdx int, i *Instr) error {
	rs1, err := ud.ensure(ud.intRegs, opIdx, &i.Rs1)
	if err != nil {
		return err
	}
	ud.finishUse(ud.intRegs, &rs1, opIdx)
	if err := ud.allocDest(ud.realRegs, opIdx, &i.Rd); err != nil {
		return err
	}
	ud.intRegs.commitUse(rs1)
	ud.instrCount++
	return nil
}

func (ud *allocUD) RealS(opIdx int, i *Instr) error {
	rs1, err := ud.ensure(ud.intRegs, opIdx, &i.Rs1)
	if err != nil {
		return err
	}
	rs2, err := ud.ensure(ud.realRegs, opIdx, &i.Rs2)
	if err != nil {
		return err
	}
	ud.finishUse(ud.intRegs, &rs1, opIdx)
	ud.finishUse(ud.realRegs, &rs2, opIdx)
	ud.intRegs.commitUse(rs1)
	ud.realRegs.commitUse(rs2)
	ud.instrCount++
	return nil
}

func (ud *allocUD) LdrcF(opIdx int, i *Instr) error {
	if err := ud.allocDest(ud.intRegs, opIdx, &i.Rd2); err != nil {
		return err
	}
	if err := ud.allocDest(ud.realRegs, opIdx, &i.Rd); err != nil {
		return err
	}
	ud.instrCount++
	return nil
}

// seam code -----------------------------------------------------------

func (ud *allocUD) storeSeamInt(save []uint, off *prespillOffsets, pos int) error {
	for _, reg := range save {
		offset, err := off.intOffset(reg)
		if err != nil {
			return err
		}
		offset += ud.s.Locals
		if offset > MaxOffset || offset < MinOffset {
			tmp := ud.s.AcquireReg()
			ud.s.InsertSwFarBefore(pos, Reg(reg), RegLocal, tmp, offset)
		} else {
			ud.s.InsertSwBefore(pos, Reg(reg), RegLocal, offset)
		}
	}
	return nil
}

func (ud *allocUD) storeSeamReal(save []uint, off *prespillOffsets, pos int) error {
	for _, reg := range save {
		offset, err := off.realOffset(reg)
		if err != nil {
			return err
		}
		offset += ud.s.Locals
		if offset > MaxOffset || offset < MinOffset {
			tmp := ud.s.AcquireReg()
			ud.s.InsertFsdFarBefore(pos, Reg(reg), RegLocal, tmp, offset)
		} else {
			ud.s.InsertFsdBefore(pos, Reg(reg), RegLocal, offset)
		}
	}
	return nil
}

func (ud *allocUD) initLinks(ss *SubSection, off *prespillOffsets) error {
	switch len(ss.Links) {
	case 0:
		return nil
	case 1:
		link := &ss.Links[0]
		if err := ud.storeSeamInt(link.IntSave.Values(), off, link.Op); err != nil {
			return err
		}
		return ud.storeSeamReal(link.RealSave.Values(), off, link.Op)
	case 2:
		link1, link2 := &ss.Links[0], &ss.Links[1]
		op1 := ud.s.At(link1.Op)
		if op1.Kind != OpInstr || op1.Instr.Etype != EtypeB {
			return diag.Errorf(diag.KindAssertionFailed, "two-edge block without conditional terminator")
		}
		if ud.s.At(link2.Op).Kind != OpLabel {
			return diag.Errorf(diag.KindAssertionFailed, "two-edge block without fall-through label")
		}

		common, only1, only2 := computeSaveSets(&link1.IntSave, &link2.IntSave)
		if err := ud.storeSeamInt(common.Values(), off, link1.Op); err != nil {
			return err
		}
		if err := ud.storeSeamInt(only1.Values(), off, link1.Op); err != nil {
			return err
		}
		if err := ud.storeSeamInt(only2.Values(), off, link2.Op); err != nil {
			return err
		}

		common, only1, only2 = computeSaveSets(&link1.RealSave, &link2.RealSave)
		if err := ud.storeSeamReal(common.Values(), off, link1.Op); err != nil {
			return err
		}
		if err := ud.storeSeamReal(only1.Values(), off, link1.Op); err != nil {
			return err
		}
		return ud.storeSeamReal(only2.Values(), off, link2.Op)
	default:
		return diag.Errorf(diag.KindAssertionFailed, "sub-section with %d edges", len(ss.Links))
	}
}

// initSubSection reloads a block's live-in registers just after its label.
func (ud *allocUD) initSubSection(ss *SubSection, off *prespillOffsets) error {
	start := ud.s.At(ss.Start)
	if start.Next == NilOp {
		return nil
	}
	pos := start.Next

	for _, reg := range ss.IntInputs.Values() {
		offset, err := off.intOffset(reg)
		if err != nil {
			return err
		}
		ud.s.InsertLwFarBefore(pos, Reg(reg), RegLocal, offset+ud.s.Locals)
	}
	for _, reg := range ss.RealInputs.Values() {
		offset, err := off.realOffset(reg)
		if err != nil {
			return err
		}
		tmp := ud.s.AcquireReg()
		ud.s.InsertFldFarBefore(pos, Reg(reg), RegLocal, tmp, offset+ud.s.Locals)
	}
	return nil
}

func (ud *allocUD) linkBasicBlocks() error {
	sss, err := CalculateSubSections(ud.s)
	if err != nil {
		return err
	}
	ud.sss = sss

	off, space := calculatePrespill(&sss.IntSave, &sss.RealSave)
	ud.bbSpill = space

	if err := ud.initLinks(&sss.List[0], &off); err != nil {
		return err
	}
	for i := 1; i < len(sss.List); i++ {
		if err := ud.initSubSection(&sss.List[i], &off); err != nil {
			return err
		}
		if err := ud.initLinks(&sss.List[i], &off); err != nil {
			return err
		}
	}
	return nil
}

// insertSpillCode materialises the recorded spill points, in recording
// order. Offsets below the class's argument watermark address the
// caller-pushed argument area above the frame.
func (ud *allocUD) insertSpillCode(c *regClass, adjusted, argOffset int32) {
	for _, sp := range c.spillPoints {
		base := adjusted
		if sp.offset < c.spiltArgs*c.regSize {
			base = argOffset
		}
		offset := base + sp.offset
		if sp.kind == spillLoad {
			c.loadFar(ud.s, sp.pos, sp.phys, RegLocal, RegT0, offset)
		} else {
			c.storeFar(ud.s, sp.pos, sp.phys, RegLocal, RegT0, offset)
		}
	}
}

// Allocate assigns physical registers to every virtual in the section and
// inserts the required spill traffic. It returns the stack bytes the
// section needs for spills and basic-block seams, excluding locals.
func Allocate(s *Section) (int32, error) {
	ud := &allocUD{s: s}

	if err := ud.linkBasicBlocks(); err != nil {
		return 0, err
	}

	// Class construction happens after seam insertion so scratch virtuals
	// acquired for far offsets are tracked too.
	ud.intRegs = newRegClass(s.MaxIntRegs(), MaxIntRegs, IntFirstFree, 4,
		s.SType.IntArgs, RegA0, intNextUse,
		func(sec *Section, pos int, dest, base, _ Reg, offset int32) {
			sec.InsertLwFarBefore(pos, dest, base, offset)
		},
		func(sec *Section, pos int, val, base, tmp Reg, offset int32) {
			sec.InsertSwFarBefore(pos, val, base, tmp, offset)
		})
	ud.realRegs = newRegClass(s.MaxRealRegs(), MaxRealRegs, RealFirstFree, 8,
		s.SType.RealArgs, RegFA0, realNextUse,
		func(sec *Section, pos int, dest, base, tmp Reg, offset int32) {
			sec.InsertFldFarBefore(pos, dest, base, tmp, offset)
		},
		func(sec *Section, pos int, val, base, tmp Reg, offset int32) {
			sec.InsertFsdFarBefore(pos, val, base, tmp, offset)
		})

	if err := Walk(s, ud); err != nil {
		return 0, err
	}

	intSpill := (int32(ud.intRegs.spillMax) - ud.intRegs.spiltArgs) * ud.intRegs.regSize
	realSpill := (int32(ud.realRegs.spillMax) - ud.realRegs.spiltArgs) * ud.realRegs.regSize

	offset := ud.bbSpill + s.Locals
	argOffset := offset + realSpill + intSpill

	// Real spills live below the integer ones; each class records offsets
	// as if it owned the whole area, so rebase past its argument slots.
	adjusted := offset - ud.realRegs.spiltArgs*ud.realRegs.regSize
	ud.insertSpillCode(ud.realRegs, adjusted, argOffset)

	offset += realSpill
	adjusted = offset - ud.intRegs.spiltArgs*ud.intRegs.regSize
	argOffset += ud.realRegs.spiltArgs * ud.realRegs.regSize
	ud.insertSpillCode(ud.intRegs, adjusted, argOffset)

	s.RegCounter = MaxIntRegs
	s.FregCounter = MaxRealRegs

	total := intSpill + realSpill + ud.bbSpill
	return total, nil
}
