package rv32

import (
	"github.com/basil-lang/basil/internal/bitset"
	"github.com/basil-lang/basil/internal/diag"
)

// prespillOffsets assigns a stable stack slot to every virtual register
// that crosses a basic-block boundary. Integer slots pack 4-byte aligned
// from offset 0; the real region follows, padded so it starts 8-byte
// aligned.
type prespillOffsets struct {
	ints  []uint
	reals []uint
}

func calculatePrespill(intSave, realSave *bitset.Set) (prespillOffsets, int32) {
	off := prespillOffsets{
		ints:  intSave.Values(),
		reals: realSave.Values(),
	}
	space := int32(len(off.ints))* 4 + int32(len(off.reals))*8
	if len(off.ints)&1 == 1 && len(off.reals) > 0 {
		space += 4
	}
	return off, space
}

func (p *prespillOffsets) intOffset(reg uint) (int32, error) {
	for i, r := range p.ints {
		if r == reg {
			return int32(i) * 4, nil
		}
	}
	return 0, diag.Errorf(diag.KindAssertionFailed, "no pre-spill slot for v%d", reg-VirtStart)
}

func (p *prespillOffsets) realOffset(reg uint) (int32, error) {
	base := int32(len(p.ints)) * 4
	if len(p.ints)&1 == 1 {
		base += 4
	}
	for i, r := range p.reals {
		if r == reg {
			return base + int32(i)*8, nil
		}
	}
	return 0, diag.Errorf(diag.KindAssertionFailed, "no pre-spill slot for fv%d", reg-VirtStart)
}
