package rv32

// opcodeInfo is one row of the encoding table: the 7-bit major opcode,
// funct3, funct7, and whether funct3 is replaced by the rounding mode.
type opcodeInfo struct {
	opcode uint32
	funct3 uint32
	funct7 uint32
	useFrm bool
}

var opcodes = [itypeCount]opcodeInfo{
	Addi:   {opcode: 0x13, funct3: 0x0},
	Slti:   {opcode: 0x13, funct3: 0x2},
	Sltiu:  {opcode: 0x13, funct3: 0x3},
	Andi:   {opcode: 0x13, funct3: 0x7},
	Ori:    {opcode: 0x13, funct3: 0x6},
	Xori:   {opcode: 0x13, funct3: 0x4},
	Slli:   {opcode: 0x13, funct3: 0x1},
	Srli:   {opcode: 0x13, funct3: 0x5},
	Srai:   {opcode: 0x13, funct3: 0x5, funct7: 0x20},
	Lui:    {opcode: 0x37},
	Auipc:  {opcode: 0x17},
	Add:    {opcode: 0x33, funct3: 0x0},
	Slt:    {opcode: 0x33, funct3: 0x2},
	Sltu:   {opcode: 0x33, funct3: 0x3},
	And:    {opcode: 0x33, funct3: 0x7},
	Or:     {opcode: 0x33, funct3: 0x6},
	Xor:    {opcode: 0x33, funct3: 0x4},
	Sll:    {opcode: 0x33, funct3: 0x1},
	Srl:    {opcode: 0x33, funct3: 0x5},
	Sub:    {opcode: 0x33, funct3: 0x0, funct7: 0x20},
	Sra:    {opcode: 0x33, funct3: 0x5, funct7: 0x20},
	Jal:    {opcode: 0x6f},
	Jalr:   {opcode: 0x67},
	Beq:    {opcode: 0x63, funct3: 0x0},
	Bne:    {opcode: 0x63, funct3: 0x1},
	Blt:    {opcode: 0x63, funct3: 0x4},
	Bltu:   {opcode: 0x63, funct3: 0x6},
	Bge:    {opcode: 0x63, funct3: 0x5},
	Bgeu:   {opcode: 0x63, funct3: 0x7},
	Lw:     {opcode: 0x03, funct3: 0x2},
	Lh:     {opcode: 0x03, funct3: 0x1},
	Lhu:    {opcode: 0x03, funct3: 0x5},
	Lb:     {opcode: 0x03, funct3: 0x0},
	Lbu:    {opcode: 0x03, funct3: 0x4},
	Sw:     {opcode: 0x23, funct3: 0x2},
	Sh:     {opcode: 0x23, funct3: 0x1},
	Sb:     {opcode: 0x23, funct3: 0x0},
	Fence:  {opcode: 0x0f},
	Ecall:  {opcode: 0x73},
	Ebreak: {opcode: 0x73},
	Mul:    {opcode: 0x33, funct3: 0x0, funct7: 0x1},
	Mulh:   {opcode: 0x33, funct3: 0x1, funct7: 0x1},
	Mulhsu: {opcode: 0x33, funct3: 0x2, funct7: 0x1},
	Mulhu:  {opcode: 0x33, funct3: 0x3, funct7: 0x1},
	Div:    {opcode: 0x33, funct3: 0x4, funct7: 0x1},
	Divu:   {opcode: 0x33, funct3: 0x5, funct7: 0x1},
	Rem:    {opcode: 0x33, funct3: 0x6, funct7: 0x1},
	Remu:   {opcode: 0x33, funct3: 0x7, funct7: 0x1},

	// lc/lp encode as auipc+addi; the table rows exist so the walker can
	// treat them uniformly.
	LC: {opcode: 0x17},
	LP: {opcode: 0x17},
	LG: {opcode: 0x37},

	Flw: {opcode: 0x07, funct3: 0x2},
	Fsw: {opcode: 0x27, funct3: 0x2},
	Fld: {opcode: 0x07, funct3: 0x3},
	Fsd: {opcode: 0x27, funct3: 0x3},

	FaddS:   {opcode: 0x53, funct7: 0x00, useFrm: true},
	FsubS:   {opcode: 0x53, funct7: 0x04, useFrm: true},
	FmulS:   {opcode: 0x53, funct7: 0x08, useFrm: true},
	FdivS:   {opcode: 0x53, funct7: 0x0c, useFrm: true},
	FsqrtS:  {opcode: 0x53, funct7: 0x2c, useFrm: true},
	FsgnjS:  {opcode: 0x53, funct3: 0x0, funct7: 0x10},
	FsgnjnS: {opcode: 0x53, funct3: 0x1, funct7: 0x10},
	FsgnjxS: {opcode: 0x53, funct3: 0x2, funct7: 0x10},
	FminS:   {opcode: 0x53, funct3: 0x0, funct7: 0x14},
	FmaxS:   {opcode: 0x53, funct3: 0x1, funct7: 0x14},
	FcvtWS:  {opcode: 0x53, funct7: 0x60, useFrm: true},
	FcvtWuS: {opcode: 0x53, funct7: 0x60, useFrm: true},
	FmvXW:   {opcode: 0x53, funct3: 0x0, funct7: 0x70},
	FeqS:    {opcode: 0x53, funct3: 0x2, funct7: 0x50},
	FltS:    {opcode: 0x53, funct3: 0x1, funct7: 0x50},
	FleS:    {opcode: 0x53, funct3: 0x0, funct7: 0x50},
	FclassS: {opcode: 0x53, funct3: 0x1, funct7: 0x70},
	FcvtSW:  {opcode: 0x53, funct7: 0x68, useFrm: true},
	FcvtSWu: {opcode: 0x53, funct7: 0x68, useFrm: true},
	FmvWX:   {opcode: 0x53, funct3: 0x0, funct7: 0x78},

	FaddD:   {opcode: 0x53, funct7: 0x01, useFrm: true},
	FsubD:   {opcode: 0x53, funct7: 0x05, useFrm: true},
	FmulD:   {opcode: 0x53, funct7: 0x09, useFrm: true},
	FdivD:   {opcode: 0x53, funct7: 0x0d, useFrm: true},
	FsqrtD:  {opcode: 0x53, funct7: 0x2d, useFrm: true},
	FsgnjD:  {opcode: 0x53, funct3: 0x0, funct7: 0x11},
	FsgnjnD: {opcode: 0x53, funct3: 0x1, funct7: 0x11},
	FsgnjxD: {opcode: 0x53, funct3: 0x2, funct7: 0x11},
	FminD:   {opcode: 0x53, funct3: 0x0, funct7: 0x15},
	FmaxD:   {opcode: 0x53, funct3: 0x1, funct7: 0x15},
	FcvtSD:  {opcode: 0x53, funct7: 0x20, useFrm: true},
	FcvtDS:  {opcode: 0x53, funct7: 0x21, useFrm: true},
	FeqD:    {opcode: 0x53, funct3: 0x2, funct7: 0x51},
	FltD:    {opcode: 0x53, funct3: 0x1, funct7: 0x51},
	FleD:    {opcode: 0x53, funct3: 0x0, funct7: 0x51},
	FclassD: {opcode: 0x53, funct3: 0x1, funct7: 0x71},
	FcvtWD:  {opcode: 0x53, funct7: 0x61, useFrm: true},
	FcvtWuD: {opcode: 0x53, funct7: 0x61, useFrm: true},
	FcvtDW:  {opcode: 0x53, funct7: 0x69, useFrm: true},
	FcvtDWu: {opcode: 0x53, funct7: 0x69, useFrm: true},

	FmaddS:  {opcode: 0x43, useFrm: true},
	FmsubS:  {opcode: 0x47, useFrm: true},
	FnmsubS: {opcode: 0x4b, useFrm: true},
	FnmaddS: {opcode: 0x4f, useFrm: true},
	FmaddD:  {opcode: 0x43, useFrm: true},
	FmsubD:  {opcode: 0x47, useFrm: true},
	FnmsubD: {opcode: 0x4b, useFrm: true},
	FnmaddD: {opcode: 0x4f, useFrm: true},
}

// realRS2 returns the rs2 field for the FP R-type instructions that encode
// a sub-operation there instead of a source register, or the instruction's
// own rs2.
func realRS2(itype Itype, i *Instr) uint32 {
	switch itype {
	case FsqrtS, FcvtWS, FmvXW, FclassS, FcvtSW, FmvWX,
		FsqrtD, FcvtDS, FclassD, FcvtWD, FcvtDW:
		return 0
	case FcvtWuS, FcvtSWu, FcvtSD, FcvtWuD, FcvtDWu:
		return 1
	default:
		return uint32(i.Rs2) & 0x1f
	}
}
