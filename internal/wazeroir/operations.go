package wazeroir

import (
	"fmt"
	"math"
	"strings"
)

// OperationKind is the opcode of an Operation. Kinds are dense so the interpreter can dispatch with one switch.
type OperationKind uint16

const (
	// OperationKindUnreachable traps with ErrRuntimeUnreachable.
	OperationKindUnreachable OperationKind = iota
	// OperationKindBr moves Operation.U2 slots from Src1 to Dst, then jumps to U1.
	OperationKindBr
	// OperationKindBrIf is OperationKindBr, taken only when the slot Src3 is non-zero.
	OperationKindBrIf
	// OperationKindBrIfNot jumps to U1 when the slot Src3 is zero. It never moves values.
	OperationKindBrIfNot
	// OperationKindBrTable selects CompilationResult.BranchTables[U1] entry by the slot Src3, clamped to the
	// last (default) entry.
	OperationKindBrTable
	// OperationKindReturn moves U2 slots from Src1 to slot zero and returns to the caller.
	OperationKindReturn
	// OperationKindCall calls function U1 of the module. Arguments start at slot Src1, which is where the callee's
	// frame begins, so results are left starting at Src1.
	OperationKindCall
	// OperationKindCallIndirect is OperationKindCall for the function in table U2 at the index in slot Src3, which
	// must have the type U1 of the module.
	OperationKindCallIndirect
	// OperationKindLoopHeader marks the start of a loop. It is only emitted for an interceptor.
	OperationKindLoopHeader

	// OperationKindCopy copies the slot Src1 to Dst.
	OperationKindCopy
	// OperationKindConst sets the slot Dst to U1.
	OperationKindConst
	// OperationKindSelect sets Dst to Src1 when the slot Src3 is non-zero, otherwise Src2.
	OperationKindSelect
	// OperationKindGlobalGet sets Dst to the global U1.
	OperationKindGlobalGet
	// OperationKindGlobalSet sets the global U1 to Src1.
	OperationKindGlobalSet

	// Loads read memory at the address in Src1 plus the offset U1 into Dst. The name is the width, and the
	// sign-extending variants name the width extended to. Unsigned variants zero-extend.

	OperationKindLoad8U
	OperationKindLoad8S32
	OperationKindLoad8S64
	OperationKindLoad16U
	OperationKindLoad16S32
	OperationKindLoad16S64
	OperationKindLoad32
	OperationKindLoad32S64
	OperationKindLoad64

	// Stores write the low bits of Src2 to memory at the address in Src1 plus the offset U1.

	OperationKindStore8
	OperationKindStore16
	OperationKindStore32
	OperationKindStore64

	// OperationKindMemorySize sets Dst to the page count of the memory.
	OperationKindMemorySize
	// OperationKindMemoryGrow grows the memory by Src1 pages, setting Dst to the previous count or -1.
	OperationKindMemoryGrow
	// OperationKindMemoryInit copies Src3 bytes of data segment U1 from offset Src2 to the memory at Src1.
	OperationKindMemoryInit
	// OperationKindDataDrop empties data segment U1.
	OperationKindDataDrop
	// OperationKindMemoryCopy copies Src3 bytes of memory from Src2 to Src1.
	OperationKindMemoryCopy
	// OperationKindMemoryFill sets Src3 bytes of memory from Src1 to the value Src2.
	OperationKindMemoryFill

	// OperationKindTableGet sets Dst to the element of table U1 at Src1.
	OperationKindTableGet
	// OperationKindTableSet sets the element of table U1 at Src1 to Src2.
	OperationKindTableSet
	// OperationKindTableSize sets Dst to the size of table U1.
	OperationKindTableSize
	// OperationKindTableGrow grows table U1 by Src2 elements of Src1, setting Dst to the previous size or -1.
	OperationKindTableGrow
	// OperationKindTableFill sets Src3 elements of table U1 from Src1 to Src2.
	OperationKindTableFill
	// OperationKindTableCopy copies Src3 elements from table U2 at Src2 to table U1 at Src1.
	OperationKindTableCopy
	// OperationKindTableInit copies Src3 elements of element segment U1 from Src2 to table U2 at Src1.
	OperationKindTableInit
	// OperationKindElemDrop empties element segment U1.
	OperationKindElemDrop
	// OperationKindRefFunc sets Dst to a reference to function U1 of the module.
	OperationKindRefFunc
	// OperationKindRefIsNull sets Dst to one if Src1 is a null reference.
	OperationKindRefIsNull

	// Integer operations whose result doesn't depend on the width, as i32 slots are zero-extended.

	OperationKindEqz
	OperationKindEq
	OperationKindNe
	OperationKindLtU
	OperationKindGtU
	OperationKindLeU
	OperationKindGeU
	OperationKindAnd
	OperationKindOr
	OperationKindXor
	OperationKindPopcnt

	// Unary operations read Src1, binary operations read Src1 and Src2, and both write Dst.

	OperationKindI32LtS
	OperationKindI32GtS
	OperationKindI32LeS
	OperationKindI32GeS
	OperationKindI32Clz
	OperationKindI32Ctz
	OperationKindI32Add
	OperationKindI32Sub
	OperationKindI32Mul
	OperationKindI32DivS
	OperationKindI32DivU
	OperationKindI32RemS
	OperationKindI32RemU
	OperationKindI32Shl
	OperationKindI32ShrS
	OperationKindI32ShrU
	OperationKindI32Rotl
	OperationKindI32Rotr

	OperationKindI64LtS
	OperationKindI64GtS
	OperationKindI64LeS
	OperationKindI64GeS
	OperationKindI64Clz
	OperationKindI64Ctz
	OperationKindI64Add
	OperationKindI64Sub
	OperationKindI64Mul
	OperationKindI64DivS
	OperationKindI64DivU
	OperationKindI64RemS
	OperationKindI64RemU
	OperationKindI64Shl
	OperationKindI64ShrS
	OperationKindI64ShrU
	OperationKindI64Rotl
	OperationKindI64Rotr

	OperationKindF32Eq
	OperationKindF32Ne
	OperationKindF32Lt
	OperationKindF32Gt
	OperationKindF32Le
	OperationKindF32Ge
	OperationKindF32Abs
	OperationKindF32Neg
	OperationKindF32Ceil
	OperationKindF32Floor
	OperationKindF32Trunc
	OperationKindF32Nearest
	OperationKindF32Sqrt
	OperationKindF32Add
	OperationKindF32Sub
	OperationKindF32Mul
	OperationKindF32Div
	OperationKindF32Min
	OperationKindF32Max
	OperationKindF32Copysign

	OperationKindF64Eq
	OperationKindF64Ne
	OperationKindF64Lt
	OperationKindF64Gt
	OperationKindF64Le
	OperationKindF64Ge
	OperationKindF64Abs
	OperationKindF64Neg
	OperationKindF64Ceil
	OperationKindF64Floor
	OperationKindF64Trunc
	OperationKindF64Nearest
	OperationKindF64Sqrt
	OperationKindF64Add
	OperationKindF64Sub
	OperationKindF64Mul
	OperationKindF64Div
	OperationKindF64Min
	OperationKindF64Max
	OperationKindF64Copysign

	OperationKindI32WrapI64
	OperationKindI32TruncF32S
	OperationKindI32TruncF32U
	OperationKindI32TruncF64S
	OperationKindI32TruncF64U
	OperationKindI64TruncF32S
	OperationKindI64TruncF32U
	OperationKindI64TruncF64S
	OperationKindI64TruncF64U
	OperationKindI32TruncSatF32S
	OperationKindI32TruncSatF32U
	OperationKindI32TruncSatF64S
	OperationKindI32TruncSatF64U
	OperationKindI64TruncSatF32S
	OperationKindI64TruncSatF32U
	OperationKindI64TruncSatF64S
	OperationKindI64TruncSatF64U
	OperationKindF32ConvertI32S
	OperationKindF32ConvertI32U
	OperationKindF32ConvertI64S
	OperationKindF32ConvertI64U
	OperationKindF32DemoteF64
	OperationKindF64ConvertI32S
	OperationKindF64ConvertI32U
	OperationKindF64ConvertI64S
	OperationKindF64ConvertI64U
	OperationKindF64PromoteF32
	OperationKindI32Extend8S
	OperationKindI32Extend16S
	OperationKindI64Extend8S
	OperationKindI64Extend16S
	// OperationKindI64Extend32S also implements i64.extend_i32_s.
	OperationKindI64Extend32S

	// operationKindEnd is always placed at the bottom of this iota definition to be used in the test.
	operationKindEnd
)

var operationKindNames = [operationKindEnd]string{
	OperationKindUnreachable:     "unreachable",
	OperationKindBr:              "br",
	OperationKindBrIf:            "br_if",
	OperationKindBrIfNot:         "br_if_not",
	OperationKindBrTable:         "br_table",
	OperationKindReturn:          "return",
	OperationKindCall:            "call",
	OperationKindCallIndirect:    "call_indirect",
	OperationKindLoopHeader:      "loop_header",
	OperationKindCopy:            "copy",
	OperationKindConst:           "const",
	OperationKindSelect:          "select",
	OperationKindGlobalGet:       "global.get",
	OperationKindGlobalSet:       "global.set",
	OperationKindLoad8U:          "load8_u",
	OperationKindLoad8S32:        "load8_s32",
	OperationKindLoad8S64:        "load8_s64",
	OperationKindLoad16U:         "load16_u",
	OperationKindLoad16S32:       "load16_s32",
	OperationKindLoad16S64:       "load16_s64",
	OperationKindLoad32:          "load32",
	OperationKindLoad32S64:       "load32_s64",
	OperationKindLoad64:          "load64",
	OperationKindStore8:          "store8",
	OperationKindStore16:         "store16",
	OperationKindStore32:         "store32",
	OperationKindStore64:         "store64",
	OperationKindMemorySize:      "memory.size",
	OperationKindMemoryGrow:      "memory.grow",
	OperationKindMemoryInit:      "memory.init",
	OperationKindDataDrop:        "data.drop",
	OperationKindMemoryCopy:      "memory.copy",
	OperationKindMemoryFill:      "memory.fill",
	OperationKindTableGet:        "table.get",
	OperationKindTableSet:        "table.set",
	OperationKindTableSize:       "table.size",
	OperationKindTableGrow:       "table.grow",
	OperationKindTableFill:       "table.fill",
	OperationKindTableCopy:       "table.copy",
	OperationKindTableInit:       "table.init",
	OperationKindElemDrop:        "elem.drop",
	OperationKindRefFunc:         "ref.func",
	OperationKindRefIsNull:       "ref.is_null",
	OperationKindEqz:             "eqz",
	OperationKindEq:              "eq",
	OperationKindNe:              "ne",
	OperationKindLtU:             "lt_u",
	OperationKindGtU:             "gt_u",
	OperationKindLeU:             "le_u",
	OperationKindGeU:             "ge_u",
	OperationKindAnd:             "and",
	OperationKindOr:              "or",
	OperationKindXor:             "xor",
	OperationKindPopcnt:          "popcnt",
	OperationKindI32LtS:          "i32.lt_s",
	OperationKindI32GtS:          "i32.gt_s",
	OperationKindI32LeS:          "i32.le_s",
	OperationKindI32GeS:          "i32.ge_s",
	OperationKindI32Clz:          "i32.clz",
	OperationKindI32Ctz:          "i32.ctz",
	OperationKindI32Add:          "i32.add",
	OperationKindI32Sub:          "i32.sub",
	OperationKindI32Mul:          "i32.mul",
	OperationKindI32DivS:         "i32.div_s",
	OperationKindI32DivU:         "i32.div_u",
	OperationKindI32RemS:         "i32.rem_s",
	OperationKindI32RemU:         "i32.rem_u",
	OperationKindI32Shl:          "i32.shl",
	OperationKindI32ShrS:         "i32.shr_s",
	OperationKindI32ShrU:         "i32.shr_u",
	OperationKindI32Rotl:         "i32.rotl",
	OperationKindI32Rotr:         "i32.rotr",
	OperationKindI64LtS:          "i64.lt_s",
	OperationKindI64GtS:          "i64.gt_s",
	OperationKindI64LeS:          "i64.le_s",
	OperationKindI64GeS:          "i64.ge_s",
	OperationKindI64Clz:          "i64.clz",
	OperationKindI64Ctz:          "i64.ctz",
	OperationKindI64Add:          "i64.add",
	OperationKindI64Sub:          "i64.sub",
	OperationKindI64Mul:          "i64.mul",
	OperationKindI64DivS:         "i64.div_s",
	OperationKindI64DivU:         "i64.div_u",
	OperationKindI64RemS:         "i64.rem_s",
	OperationKindI64RemU:         "i64.rem_u",
	OperationKindI64Shl:          "i64.shl",
	OperationKindI64ShrS:         "i64.shr_s",
	OperationKindI64ShrU:         "i64.shr_u",
	OperationKindI64Rotl:         "i64.rotl",
	OperationKindI64Rotr:         "i64.rotr",
	OperationKindF32Eq:           "f32.eq",
	OperationKindF32Ne:           "f32.ne",
	OperationKindF32Lt:           "f32.lt",
	OperationKindF32Gt:           "f32.gt",
	OperationKindF32Le:           "f32.le",
	OperationKindF32Ge:           "f32.ge",
	OperationKindF32Abs:          "f32.abs",
	OperationKindF32Neg:          "f32.neg",
	OperationKindF32Ceil:         "f32.ceil",
	OperationKindF32Floor:        "f32.floor",
	OperationKindF32Trunc:        "f32.trunc",
	OperationKindF32Nearest:      "f32.nearest",
	OperationKindF32Sqrt:         "f32.sqrt",
	OperationKindF32Add:          "f32.add",
	OperationKindF32Sub:          "f32.sub",
	OperationKindF32Mul:          "f32.mul",
	OperationKindF32Div:          "f32.div",
	OperationKindF32Min:          "f32.min",
	OperationKindF32Max:          "f32.max",
	OperationKindF32Copysign:     "f32.copysign",
	OperationKindF64Eq:           "f64.eq",
	OperationKindF64Ne:           "f64.ne",
	OperationKindF64Lt:           "f64.lt",
	OperationKindF64Gt:           "f64.gt",
	OperationKindF64Le:           "f64.le",
	OperationKindF64Ge:           "f64.ge",
	OperationKindF64Abs:          "f64.abs",
	OperationKindF64Neg:          "f64.neg",
	OperationKindF64Ceil:         "f64.ceil",
	OperationKindF64Floor:        "f64.floor",
	OperationKindF64Trunc:        "f64.trunc",
	OperationKindF64Nearest:      "f64.nearest",
	OperationKindF64Sqrt:         "f64.sqrt",
	OperationKindF64Add:          "f64.add",
	OperationKindF64Sub:          "f64.sub",
	OperationKindF64Mul:          "f64.mul",
	OperationKindF64Div:          "f64.div",
	OperationKindF64Min:          "f64.min",
	OperationKindF64Max:          "f64.max",
	OperationKindF64Copysign:     "f64.copysign",
	OperationKindI32WrapI64:      "i32.wrap_i64",
	OperationKindI32TruncF32S:    "i32.trunc_f32_s",
	OperationKindI32TruncF32U:    "i32.trunc_f32_u",
	OperationKindI32TruncF64S:    "i32.trunc_f64_s",
	OperationKindI32TruncF64U:    "i32.trunc_f64_u",
	OperationKindI64TruncF32S:    "i64.trunc_f32_s",
	OperationKindI64TruncF32U:    "i64.trunc_f32_u",
	OperationKindI64TruncF64S:    "i64.trunc_f64_s",
	OperationKindI64TruncF64U:    "i64.trunc_f64_u",
	OperationKindI32TruncSatF32S: "i32.trunc_sat_f32_s",
	OperationKindI32TruncSatF32U: "i32.trunc_sat_f32_u",
	OperationKindI32TruncSatF64S: "i32.trunc_sat_f64_s",
	OperationKindI32TruncSatF64U: "i32.trunc_sat_f64_u",
	OperationKindI64TruncSatF32S: "i64.trunc_sat_f32_s",
	OperationKindI64TruncSatF32U: "i64.trunc_sat_f32_u",
	OperationKindI64TruncSatF64S: "i64.trunc_sat_f64_s",
	OperationKindI64TruncSatF64U: "i64.trunc_sat_f64_u",
	OperationKindF32ConvertI32S:  "f32.convert_i32_s",
	OperationKindF32ConvertI32U:  "f32.convert_i32_u",
	OperationKindF32ConvertI64S:  "f32.convert_i64_s",
	OperationKindF32ConvertI64U:  "f32.convert_i64_u",
	OperationKindF32DemoteF64:    "f32.demote_f64",
	OperationKindF64ConvertI32S:  "f64.convert_i32_s",
	OperationKindF64ConvertI32U:  "f64.convert_i32_u",
	OperationKindF64ConvertI64S:  "f64.convert_i64_s",
	OperationKindF64ConvertI64U:  "f64.convert_i64_u",
	OperationKindF64PromoteF32:   "f64.promote_f32",
	OperationKindI32Extend8S:     "i32.extend8_s",
	OperationKindI32Extend16S:    "i32.extend16_s",
	OperationKindI64Extend8S:     "i64.extend8_s",
	OperationKindI64Extend16S:    "i64.extend16_s",
	OperationKindI64Extend32S:    "i64.extend32_s",
}

// String returns the name of the kind, which is the text format name when there is a direct equivalent.
func (o OperationKind) String() string {
	if o < operationKindEnd {
		return operationKindNames[o]
	}
	return fmt.Sprintf("unknown(%d)", uint16(o))
}

// Operation is one instruction of a compiled function. Operands are slots of the current frame: slot i of a frame
// starting at base is stack[base+i]. The meaning of each field is documented on the Kind.
//
// Operation holds no pointers, so a function compiles to one contiguous []Operation.
type Operation struct {
	Kind                  OperationKind
	Dst, Src1, Src2, Src3 uint32
	U1, U2                uint64
}

// String implements fmt.Stringer.
func (o Operation) String() string {
	return fmt.Sprintf("%s dst=%d src=%d,%d,%d u1=%d u2=%d", o.Kind, o.Dst, o.Src1, o.Src2, o.Src3, o.U1, o.U2)
}

// ReturnTarget is the BranchTarget.Target of a br_table entry that returns from the function.
const ReturnTarget = math.MaxUint64

// BranchTarget is one entry of a br_table. When taken, Count slots move from Src to Dst before jumping to Target.
type BranchTarget struct {
	Target          uint64
	Src, Dst, Count uint32
}

// IsReturnTarget returns true when taking this branch returns from the function.
func (b BranchTarget) IsReturnTarget() bool {
	return b.Target == ReturnTarget
}

// String implements fmt.Stringer.
func (b BranchTarget) String() string {
	if b.IsReturnTarget() {
		return fmt.Sprintf(".return(%d..%d)", b.Src, b.Src+b.Count)
	}
	return fmt.Sprintf(".L%d(%d..%d->%d)", b.Target, b.Src, b.Src+b.Count, b.Dst)
}

// CompilationResult is the compiled form of one function. It is immutable once returned by Compile, so it is
// shared by every engine and goroutine calling the function.
type CompilationResult struct {
	// Operations is the function body, executed from index zero.
	Operations []Operation

	// BranchTables are the targets of each OperationKindBrTable, indexed by Operation.U1. The last target of each
	// is the default.
	BranchTables [][]BranchTarget

	// NumLocals is the count of parameters and declared locals, which occupy the lowest slots.
	NumLocals uint32

	// FrameSize is the count of slots the function uses: NumLocals plus its maximum operand height.
	FrameSize uint32

	ParamCount, ResultCount uint32

	// HasMemory is true when any operation reads or writes the memory.
	HasMemory bool

	// UsesInterceptor is true when the result contains OperationKindLoopHeader.
	UsesInterceptor bool
}

// Format returns a listing of the operations, one per line, prefixed by their index.
func Format(result *CompilationResult) string {
	var b strings.Builder
	for i := range result.Operations {
		op := &result.Operations[i]
		fmt.Fprintf(&b, "%04d %s", i, op)
		if op.Kind == OperationKindBrTable {
			b.WriteString(" [")
			for j, t := range result.BranchTables[op.U1] {
				if j > 0 {
					b.WriteString(" ")
				}
				b.WriteString(t.String())
			}
			b.WriteString("]")
		}
		b.WriteString("\n")
	}
	return b.String()
}
