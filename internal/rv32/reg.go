package rv32

import "fmt"

// Reg names a register. Values below MaxIntRegs (MaxRealRegs for the float
// class) are physical; virtual registers start at VirtStart in each class
// and are rewritten to physicals by the allocator.
type Reg uint32

// Fixed integer registers. x0-x8 are never handed out by the allocator:
// x0 is the architectural zero, x1 holds return addresses, x2/x3/x4/x8 are
// the stack, global, heap and local pointers, and x5-x7 stay free as
// scratch for the prologue and for far spill addressing.
const (
	RegZero   Reg = 0
	RegRA     Reg = 1
	RegStack  Reg = 2
	RegGlobal Reg = 3
	RegHeap   Reg = 4
	RegT0     Reg = 5
	RegT1     Reg = 6
	RegT2     Reg = 7
	RegLocal  Reg = 8

	RegA0 Reg = 10
	RegA1 Reg = 11
	RegA2 Reg = 12
	RegA3 Reg = 13
	RegA4 Reg = 14
	RegA5 Reg = 15
	RegA6 Reg = 16
	RegA7 Reg = 17
)

// RegFA0 is the first float argument register.
const RegFA0 Reg = 10

const (
	// MaxIntRegs and MaxRealRegs bound the physical namespaces.
	MaxIntRegs  = 32
	MaxRealRegs = 32
	// VirtStart is the first virtual register number in each class.
	VirtStart = 32
	// IntFirstFree is the lowest integer register the allocator may assign.
	IntFirstFree = 9
	// RealFirstFree is the lowest float register the allocator may assign.
	RealFirstFree = 10
	// MaxRegArgs is how many arguments of each class travel in registers.
	MaxRegArgs = 8
)

// Load/store immediates are 12-bit signed.
const (
	MaxOffset = 2047
	MinOffset = -2048
)

// IsVirtual reports whether r is a virtual register.
func (r Reg) IsVirtual() bool { return r >= VirtStart }

func (r Reg) String() string {
	if r.IsVirtual() {
		return fmt.Sprintf("v%d", uint32(r-VirtStart))
	}
	return fmt.Sprintf("x%d", uint32(r))
}
