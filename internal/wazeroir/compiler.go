package wazeroir

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	"github.com/wasmcore/wasmcore/internal/ieee754"
	"github.com/wasmcore/wasmcore/internal/leb128"
	"github.com/wasmcore/wasmcore/internal/wasm"
)

type controlFrameKind byte

const (
	controlFrameKindFunction controlFrameKind = iota
	controlFrameKindBlock
	controlFrameKindLoop
	controlFrameKindIf
)

// label is a jump target. Until it is bound, the operations and branch table entries jumping to it are recorded,
// then patched when its position is known.
type label struct {
	pc      uint64
	bound   bool
	ops     []int
	entries [][2]int
}

type controlFrame struct {
	kind      controlFrameKind
	blockType *wasm.FunctionType
	// height is the operand height at entry, below any block parameters.
	height int
	// label is the start of a loop, or the end of any other block.
	label *label
	// elseLabel is where an if jumps when its condition is false.
	elseLabel *label
	hasElse   bool
	// unreachable is set after an unconditional branch, until the else or end of this frame. Meanwhile the operand
	// stack is polymorphic below the values pushed since.
	unreachable bool
	// dead is set when the frame was entered from unreachable code, so nothing within it is emitted.
	dead bool
}

// branchTypes returns the types of the values carried by a branch to this frame.
func (f *controlFrame) branchTypes() []wasm.ValueType {
	if f.kind == controlFrameKindLoop {
		return f.blockType.Params
	}
	return f.blockType.Results
}

// operand is a value on the type stack at translation time. Its value lives in slot, which is the slot assigned to
// its height, unless it is an unmodified local read by local.get.
type operand struct {
	typ  wasm.ValueType
	slot uint32
}

// valueTypeAny matches any operand when popping. It is also the type of operands popped from the polymorphic stack
// of an unreachable frame, which match any expected type.
const valueTypeAny wasm.ValueType = 0

var (
	blockTypeEmpty     = &wasm.FunctionType{}
	blockTypeI32       = &wasm.FunctionType{Results: []wasm.ValueType{wasm.ValueTypeI32}}
	blockTypeI64       = &wasm.FunctionType{Results: []wasm.ValueType{wasm.ValueTypeI64}}
	blockTypeF32       = &wasm.FunctionType{Results: []wasm.ValueType{wasm.ValueTypeF32}}
	blockTypeF64       = &wasm.FunctionType{Results: []wasm.ValueType{wasm.ValueTypeF64}}
	blockTypeFuncref   = &wasm.FunctionType{Results: []wasm.ValueType{wasm.ValueTypeFuncref}}
	blockTypeExternref = &wasm.FunctionType{Results: []wasm.ValueType{wasm.ValueTypeExternref}}
)

type compiler struct {
	enabledFeatures wasm.Features
	module          *wasm.Module
	withInterceptor bool

	r          *bytes.Reader
	localTypes []wasm.ValueType
	numLocals  uint32

	stack     []operand
	maxHeight int
	frames    []*controlFrame

	// producer is the index of the last operation when it wrote the top operand, or -1.
	producer int

	result CompilationResult
}

// Compile translates the body of the function at funcIdx, in the function index space of module, into operations
// over the slots of its frame. The module must have passed wasm.Module Validate.
//
// Compile also validates the body, so any error means the module is invalid. Translation is a pure function of its
// inputs, so results for the same function are interchangeable.
func Compile(enabledFeatures wasm.Features, module *wasm.Module, funcIdx wasm.Index, withInterceptor bool) (*CompilationResult, error) {
	if funcIdx < module.ImportFunctionCount || funcIdx-module.ImportFunctionCount >= uint32(len(module.CodeSection)) {
		return nil, fmt.Errorf("function[%d] is not defined in the module", funcIdx)
	}
	ft := module.TypeOfFunction(funcIdx)
	if ft == nil {
		return nil, fmt.Errorf("function[%d] has an invalid type", funcIdx)
	}
	code := &module.CodeSection[funcIdx-module.ImportFunctionCount]

	localCount := uint64(len(ft.Params)) + uint64(len(code.LocalTypes))
	if localCount > math.MaxUint32 {
		return nil, fmt.Errorf("too many locals: %d", localCount)
	}

	c := &compiler{
		enabledFeatures: enabledFeatures,
		module:          module,
		withInterceptor: withInterceptor,
		r:               bytes.NewReader(code.Body),
		localTypes:      append(append(make([]wasm.ValueType, 0, localCount), ft.Params...), code.LocalTypes...),
		numLocals:       uint32(localCount),
		producer:        -1,
	}
	c.result.NumLocals = c.numLocals
	c.result.ParamCount = uint32(len(ft.Params))
	c.result.ResultCount = uint32(len(ft.Results))
	c.frames = append(c.frames, &controlFrame{kind: controlFrameKindFunction, blockType: ft, label: &label{}})

	if err := c.compile(); err != nil {
		return nil, err
	}
	return &c.result, nil
}

func (c *compiler) compile() error {
	for len(c.frames) > 0 {
		pc := c.pc()
		op, err := c.r.ReadByte()
		if err != nil {
			return fmt.Errorf("unexpected end of function body at offset %d", pc)
		}
		if err = c.handleInstruction(op); err != nil {
			return fmt.Errorf("%s at offset %d: %w", wasm.InstructionName(op), pc, err)
		}
	}
	if c.r.Len() > 0 {
		return fmt.Errorf("unexpected %d bytes after the end of function body", c.r.Len())
	}
	c.result.FrameSize = c.numLocals + uint32(c.maxHeight)
	return nil
}

func (c *compiler) pc() int {
	return int(c.r.Size()) - c.r.Len()
}

// handleInstruction validates and translates one instruction, whose opcode was already read. Unreachable code is
// validated the same way, but emits nothing.
func (c *compiler) handleInstruction(op wasm.Opcode) error {
	switch op {
	case wasm.OpcodeUnreachable:
		c.emit(Operation{Kind: OperationKindUnreachable})
		c.markUnreachable()
	case wasm.OpcodeNop:
	case wasm.OpcodeBlock, wasm.OpcodeLoop, wasm.OpcodeIf:
		return c.handleBlock(op)
	case wasm.OpcodeElse:
		return c.handleElse()
	case wasm.OpcodeEnd:
		return c.handleEnd()
	case wasm.OpcodeBr:
		return c.handleBr()
	case wasm.OpcodeBrIf:
		return c.handleBrIf()
	case wasm.OpcodeBrTable:
		return c.handleBrTable()
	case wasm.OpcodeReturn:
		results := c.frames[0].blockType.Results
		if err := c.checkTop(results); err != nil {
			return err
		}
		c.emitReturn(len(results))
		c.markUnreachable()
	case wasm.OpcodeCall:
		funcIdx, err := c.readU32()
		if err != nil {
			return err
		}
		ft := c.module.TypeOfFunction(funcIdx)
		if ft == nil {
			return fmt.Errorf("function index %d out of range", funcIdx)
		}
		return c.emitCall(Operation{Kind: OperationKindCall, U1: uint64(funcIdx)}, ft)
	case wasm.OpcodeCallIndirect:
		return c.handleCallIndirect()
	case wasm.OpcodeDrop:
		if _, err := c.pop(valueTypeAny); err != nil {
			return err
		}
		c.producer = -1
	case wasm.OpcodeSelect:
		return c.handleSelect(false)
	case wasm.OpcodeTypedSelect:
		if err := c.enabledFeatures.Require(wasm.FeatureReferenceTypes); err != nil {
			return err
		}
		return c.handleSelect(true)
	case wasm.OpcodeLocalGet:
		idx, err := c.readLocalIndex()
		if err != nil {
			return err
		}
		c.pushOperand(operand{typ: c.localTypes[idx], slot: idx})
	case wasm.OpcodeLocalSet:
		idx, err := c.readLocalIndex()
		if err != nil {
			return err
		}
		return c.setLocal(idx, false)
	case wasm.OpcodeLocalTee:
		idx, err := c.readLocalIndex()
		if err != nil {
			return err
		}
		return c.setLocal(idx, true)
	case wasm.OpcodeGlobalGet:
		idx, gt, err := c.readGlobalIndex()
		if err != nil {
			return err
		}
		c.emitPush(Operation{Kind: OperationKindGlobalGet, U1: uint64(idx)}, gt.ValType)
	case wasm.OpcodeGlobalSet:
		idx, gt, err := c.readGlobalIndex()
		if err != nil {
			return err
		}
		if !gt.Mutable {
			return fmt.Errorf("global[%d] is immutable", idx)
		}
		v, err := c.pop(gt.ValType)
		if err != nil {
			return err
		}
		c.emit(Operation{Kind: OperationKindGlobalSet, U1: uint64(idx), Src1: v.slot})
	case wasm.OpcodeTableGet, wasm.OpcodeTableSet:
		if err := c.enabledFeatures.Require(wasm.FeatureReferenceTypes); err != nil {
			return err
		}
		idx, table, err := c.readTableIndex()
		if err != nil {
			return err
		}
		if op == wasm.OpcodeTableGet {
			i, err := c.pop(wasm.ValueTypeI32)
			if err != nil {
				return err
			}
			c.emitPush(Operation{Kind: OperationKindTableGet, U1: uint64(idx), Src1: i.slot}, table.Type)
			return nil
		}
		v, err := c.pop(table.Type)
		if err != nil {
			return err
		}
		i, err := c.pop(wasm.ValueTypeI32)
		if err != nil {
			return err
		}
		c.emit(Operation{Kind: OperationKindTableSet, U1: uint64(idx), Src1: i.slot, Src2: v.slot})
	case wasm.OpcodeMemorySize, wasm.OpcodeMemoryGrow:
		if err := c.readZeroByte(); err != nil {
			return err
		}
		if err := c.requireMemory(); err != nil {
			return err
		}
		if op == wasm.OpcodeMemorySize {
			c.emitPush(Operation{Kind: OperationKindMemorySize}, wasm.ValueTypeI32)
			return nil
		}
		n, err := c.pop(wasm.ValueTypeI32)
		if err != nil {
			return err
		}
		c.emitPush(Operation{Kind: OperationKindMemoryGrow, Src1: n.slot}, wasm.ValueTypeI32)
	case wasm.OpcodeI32Const:
		v, _, err := leb128.DecodeInt32(c.r)
		if err != nil {
			return fmt.Errorf("read immediate: %w", err)
		}
		c.emitPush(Operation{Kind: OperationKindConst, U1: uint64(uint32(v))}, wasm.ValueTypeI32)
	case wasm.OpcodeI64Const:
		v, _, err := leb128.DecodeInt64(c.r)
		if err != nil {
			return fmt.Errorf("read immediate: %w", err)
		}
		c.emitPush(Operation{Kind: OperationKindConst, U1: uint64(v)}, wasm.ValueTypeI64)
	case wasm.OpcodeF32Const:
		v, err := ieee754.DecodeFloat32Bits(c.r)
		if err != nil {
			return fmt.Errorf("read immediate: %w", err)
		}
		c.emitPush(Operation{Kind: OperationKindConst, U1: uint64(v)}, wasm.ValueTypeF32)
	case wasm.OpcodeF64Const:
		v, err := ieee754.DecodeFloat64Bits(c.r)
		if err != nil {
			return fmt.Errorf("read immediate: %w", err)
		}
		c.emitPush(Operation{Kind: OperationKindConst, U1: v}, wasm.ValueTypeF64)
	case wasm.OpcodeRefNull:
		if err := c.enabledFeatures.Require(wasm.FeatureReferenceTypes); err != nil {
			return err
		}
		t, err := c.r.ReadByte()
		if err != nil {
			return fmt.Errorf("read immediate: %w", err)
		}
		if t != wasm.ValueTypeFuncref && t != wasm.ValueTypeExternref {
			return fmt.Errorf("invalid reference type %#x", t)
		}
		c.emitPush(Operation{Kind: OperationKindConst}, t)
	case wasm.OpcodeRefIsNull:
		if err := c.enabledFeatures.Require(wasm.FeatureReferenceTypes); err != nil {
			return err
		}
		v, err := c.pop(valueTypeAny)
		if err != nil {
			return err
		}
		if v.typ != valueTypeAny && !isReference(v.typ) {
			return fmt.Errorf("type mismatch: expected reference, but was %s", wasm.ValueTypeName(v.typ))
		}
		c.emitPush(Operation{Kind: OperationKindRefIsNull, Src1: v.slot}, wasm.ValueTypeI32)
	case wasm.OpcodeRefFunc:
		if err := c.enabledFeatures.Require(wasm.FeatureReferenceTypes); err != nil {
			return err
		}
		funcIdx, err := c.readU32()
		if err != nil {
			return err
		}
		if c.module.TypeOfFunction(funcIdx) == nil {
			return fmt.Errorf("function index %d out of range", funcIdx)
		}
		if !c.module.IsDeclaredFunction(funcIdx) {
			return fmt.Errorf("undeclared function reference %d", funcIdx)
		}
		c.emitPush(Operation{Kind: OperationKindRefFunc, U1: uint64(funcIdx)}, wasm.ValueTypeFuncref)
	case wasm.OpcodeMiscPrefix:
		return c.handleMisc()
	default:
		if ma, ok := memoryOps[op]; ok {
			return c.handleMemoryAccess(ma)
		}
		if n, ok := numericOps[op]; ok {
			return c.emitNumeric(n)
		}
		return fmt.Errorf("invalid instruction %#x", op)
	}
	return nil
}

func (c *compiler) handleBlock(op wasm.Opcode) error {
	bt, err := c.readBlockType()
	if err != nil {
		return err
	}
	var cond operand
	if op == wasm.OpcodeIf {
		if cond, err = c.pop(wasm.ValueTypeI32); err != nil {
			return err
		}
	}
	if err = c.checkTop(bt.Params); err != nil {
		return err
	}

	// Values may be branched to from inside the block, so every operand must be in its own slot on entry.
	c.materializeAll()

	frame := &controlFrame{blockType: bt, height: len(c.stack) - len(bt.Params), label: &label{}, dead: !c.emitting()}
	switch op {
	case wasm.OpcodeBlock:
		frame.kind = controlFrameKindBlock
	case wasm.OpcodeLoop:
		frame.kind = controlFrameKindLoop
		c.bind(frame.label)
		if c.withInterceptor && !frame.dead {
			c.emit(Operation{Kind: OperationKindLoopHeader})
			c.result.UsesInterceptor = true
		}
	case wasm.OpcodeIf:
		frame.kind = controlFrameKindIf
		frame.elseLabel = &label{}
		c.emitJump(Operation{Kind: OperationKindBrIfNot, Src3: cond.slot}, frame.elseLabel)
	}
	c.frames = append(c.frames, frame)
	return nil
}

func (c *compiler) handleElse() error {
	frame := c.frames[len(c.frames)-1]
	if frame.kind != controlFrameKindIf || frame.hasElse {
		return errors.New("else must follow if")
	}
	if err := c.checkEnd(frame); err != nil {
		return err
	}
	if c.emitting() {
		c.materializeTop(len(frame.blockType.Results))
		c.emitJump(Operation{Kind: OperationKindBr}, frame.label)
	}
	frame.hasElse = true
	c.bind(frame.elseLabel)
	c.resetStack(frame, frame.blockType.Params)
	return nil
}

func (c *compiler) handleEnd() error {
	frame := c.frames[len(c.frames)-1]
	results := frame.blockType.Results
	if err := c.checkEnd(frame); err != nil {
		return err
	}
	c.materializeTop(len(results))

	switch frame.kind {
	case controlFrameKindFunction:
		if c.emitting() {
			c.emitReturn(len(results))
		}
		c.frames = c.frames[:0]
		c.stack = c.stack[:0]
		return nil
	case controlFrameKindIf:
		if !frame.hasElse {
			// The parameters pass through when the condition is false.
			if !sameTypes(frame.blockType.Params, results) {
				return fmt.Errorf("type mismatch: if without else must have results %s", frame.blockType)
			}
			c.bind(frame.elseLabel)
		}
		c.bind(frame.label)
	case controlFrameKindBlock:
		c.bind(frame.label)
	}
	c.frames = c.frames[:len(c.frames)-1]
	c.resetStack(frame, results)
	return nil
}

func (c *compiler) handleBr() error {
	target, err := c.readBranchTarget()
	if err != nil {
		return err
	}
	types := target.branchTypes()
	if err = c.checkTop(types); err != nil {
		return err
	}
	c.materializeTop(len(types))
	c.emitBranch(OperationKindBr, target, len(types), 0)
	c.markUnreachable()
	return nil
}

func (c *compiler) handleBrIf() error {
	target, err := c.readBranchTarget()
	if err != nil {
		return err
	}
	cond, err := c.pop(wasm.ValueTypeI32)
	if err != nil {
		return err
	}
	types := target.branchTypes()
	if err = c.checkTop(types); err != nil {
		return err
	}
	c.materializeTop(len(types))
	if target.kind == controlFrameKindFunction {
		skip := &label{}
		c.emitJump(Operation{Kind: OperationKindBrIfNot, Src3: cond.slot}, skip)
		c.emitBranch(OperationKindBr, target, len(types), 0)
		c.bind(skip)
		return nil
	}
	c.emitBranch(OperationKindBrIf, target, len(types), cond.slot)
	return nil
}

func (c *compiler) handleBrTable() error {
	count, err := c.readU32()
	if err != nil {
		return err
	}
	if int(count) > c.r.Len() {
		return fmt.Errorf("too many targets: %d", count)
	}
	targets := make([]*controlFrame, count+1)
	for i := range targets {
		if targets[i], err = c.readBranchTarget(); err != nil {
			return err
		}
	}
	index, err := c.pop(wasm.ValueTypeI32)
	if err != nil {
		return err
	}
	arity := len(targets[count].branchTypes())
	for _, target := range targets {
		types := target.branchTypes()
		if len(types) != arity {
			return fmt.Errorf("type mismatch: targets carry %d and %d values", arity, len(types))
		}
		if err = c.checkTop(types); err != nil {
			return err
		}
	}
	if !c.emitting() {
		c.markUnreachable()
		return nil
	}
	c.materializeTop(arity)

	src := c.slotOf(len(c.stack) - arity)
	tableIdx := len(c.result.BranchTables)
	table := make([]BranchTarget, len(targets))
	for i, target := range targets {
		if target.kind == controlFrameKindFunction {
			table[i] = BranchTarget{Target: ReturnTarget, Src: src, Count: uint32(arity)}
			continue
		}
		table[i] = BranchTarget{Src: src, Dst: c.slotOf(target.height), Count: uint32(arity)}
		if target.label.bound {
			table[i].Target = target.label.pc
		} else {
			target.label.entries = append(target.label.entries, [2]int{tableIdx, i})
		}
	}
	c.result.BranchTables = append(c.result.BranchTables, table)
	c.emit(Operation{Kind: OperationKindBrTable, Src3: index.slot, U1: uint64(tableIdx)})
	c.markUnreachable()
	return nil
}

func (c *compiler) handleCallIndirect() error {
	typeIdx, err := c.readU32()
	if err != nil {
		return err
	}
	tableIdx, err := c.readU32()
	if err != nil {
		return err
	}
	if tableIdx != 0 {
		if err = c.enabledFeatures.Require(wasm.FeatureReferenceTypes); err != nil {
			return fmt.Errorf("table index must be zero as %w", err)
		}
	}
	if typeIdx >= uint32(len(c.module.TypeSection)) {
		return fmt.Errorf("type index %d out of range", typeIdx)
	}
	tables := c.module.AllTables()
	if tableIdx >= uint32(len(tables)) {
		return fmt.Errorf("table index %d out of range", tableIdx)
	}
	if tables[tableIdx].Type != wasm.ValueTypeFuncref {
		return fmt.Errorf("table[%d] is not a funcref table", tableIdx)
	}
	index, err := c.pop(wasm.ValueTypeI32)
	if err != nil {
		return err
	}
	op := Operation{Kind: OperationKindCallIndirect, U1: uint64(typeIdx), U2: uint64(tableIdx), Src3: index.slot}
	return c.emitCall(op, &c.module.TypeSection[typeIdx])
}

func (c *compiler) handleSelect(typed bool) error {
	t := valueTypeAny
	if typed {
		count, err := c.readU32()
		if err != nil {
			return err
		}
		if count != 1 {
			return fmt.Errorf("invalid result count %d", count)
		}
		if t, err = c.r.ReadByte(); err != nil {
			return fmt.Errorf("read immediate: %w", err)
		}
		if !isValueType(t) {
			return fmt.Errorf("invalid value type %#x", t)
		}
	}
	cond, err := c.pop(wasm.ValueTypeI32)
	if err != nil {
		return err
	}
	v2, err := c.pop(t)
	if err != nil {
		return err
	}
	v1, err := c.pop(v2.typ)
	if err != nil {
		return err
	}
	if t = v2.typ; t == valueTypeAny {
		t = v1.typ
	}
	if !typed && isReference(t) {
		return fmt.Errorf("type mismatch: select without type requires numeric values, but was %s", wasm.ValueTypeName(t))
	}
	c.emitPush(Operation{Kind: OperationKindSelect, Src1: v1.slot, Src2: v2.slot, Src3: cond.slot}, t)
	return nil
}

// setLocal pops the top operand into the local idx, pushing it back as a read of the local when tee is true.
func (c *compiler) setLocal(idx uint32, tee bool) error {
	v, err := c.pop(c.localTypes[idx])
	if err != nil {
		return err
	}
	if v.slot != idx {
		switch {
		case c.canRetarget(v, idx):
			// The value was just computed, so compute it into the local instead.
			c.result.Operations[c.producer].Dst = idx
			c.producer = -1
		default:
			// Reads of the local deferred on the stack must see the old value.
			c.materializeLocal(idx)
			c.emit(Operation{Kind: OperationKindCopy, Dst: idx, Src1: v.slot})
		}
	}
	if tee {
		c.pushOperand(operand{typ: v.typ, slot: idx})
	}
	return nil
}

func (c *compiler) canRetarget(v operand, idx uint32) bool {
	if c.producer < 0 || c.producer != len(c.result.Operations)-1 {
		return false
	}
	if v.slot != c.slotOf(len(c.stack)) || c.result.Operations[c.producer].Dst != v.slot {
		return false
	}
	for i := range c.stack {
		if c.stack[i].slot == idx {
			return false
		}
	}
	return true
}

func (c *compiler) handleMemoryAccess(ma memoryAccess) error {
	if err := c.requireMemory(); err != nil {
		return err
	}
	align, err := c.readU32()
	if err != nil {
		return err
	}
	offset, err := c.readU32()
	if err != nil {
		return err
	}
	if align > ma.alignment {
		return fmt.Errorf("alignment %d must not be larger than natural %d", uint64(1)<<align, 1<<ma.alignment)
	}
	if ma.store {
		v, err := c.pop(ma.valType)
		if err != nil {
			return err
		}
		base, err := c.pop(wasm.ValueTypeI32)
		if err != nil {
			return err
		}
		c.emit(Operation{Kind: ma.kind, Src1: base.slot, Src2: v.slot, U1: uint64(offset)})
		return nil
	}
	base, err := c.pop(wasm.ValueTypeI32)
	if err != nil {
		return err
	}
	c.emitPush(Operation{Kind: ma.kind, Src1: base.slot, U1: uint64(offset)}, ma.valType)
	return nil
}

func (c *compiler) emitNumeric(n numeric) error {
	if n.feature != 0 {
		if err := c.enabledFeatures.Require(n.feature); err != nil {
			return err
		}
	}
	var v1, v2 operand
	var err error
	if len(n.sig.in) == 2 {
		if v2, err = c.pop(n.sig.in[1]); err != nil {
			return err
		}
	}
	if v1, err = c.pop(n.sig.in[0]); err != nil {
		return err
	}
	if n.noop {
		// Keep the slot, and the producer, so a following local.set can still write it directly.
		c.stack = append(c.stack, operand{typ: n.sig.out, slot: v1.slot})
		return nil
	}
	c.emitPush(Operation{Kind: n.kind, Src1: v1.slot, Src2: v2.slot}, n.sig.out)
	return nil
}

func (c *compiler) handleMisc() error {
	miscOp, err := c.readU32()
	if err != nil {
		return err
	}
	if miscOp <= uint32(wasm.OpcodeMiscI64TruncSatF64U) {
		if err = c.enabledFeatures.Require(wasm.FeatureNonTrappingFloatToIntConversion); err != nil {
			return fmt.Errorf("%s invalid as %w", wasm.MiscInstructionName(byte(miscOp)), err)
		}
		return c.emitNumeric(truncSatOps[miscOp])
	}
	if miscOp > uint32(wasm.OpcodeMiscTableFill) {
		return fmt.Errorf("invalid misc instruction %#x", miscOp)
	}

	name := wasm.MiscInstructionName(byte(miscOp))
	switch byte(miscOp) {
	case wasm.OpcodeMiscTableGrow, wasm.OpcodeMiscTableSize, wasm.OpcodeMiscTableFill:
		err = c.enabledFeatures.Require(wasm.FeatureReferenceTypes)
	default:
		err = c.enabledFeatures.Require(wasm.FeatureBulkMemoryOperations)
	}
	if err != nil {
		return fmt.Errorf("%s invalid as %w", name, err)
	}
	if err = c.handleBulk(byte(miscOp)); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func (c *compiler) handleBulk(miscOp wasm.OpcodeMisc) error {
	switch miscOp {
	case wasm.OpcodeMiscMemoryInit, wasm.OpcodeMiscDataDrop:
		idx, err := c.readU32()
		if err != nil {
			return err
		}
		if c.module.DataCountSection == nil {
			return errors.New("data count section is required")
		}
		if idx >= *c.module.DataCountSection {
			return fmt.Errorf("data index %d out of range", idx)
		}
		if miscOp == wasm.OpcodeMiscDataDrop {
			c.emit(Operation{Kind: OperationKindDataDrop, U1: uint64(idx)})
			return nil
		}
		if err = c.readZeroByte(); err != nil {
			return err
		}
		if err = c.requireMemory(); err != nil {
			return err
		}
		d, s, n, err := c.pop3(wasm.ValueTypeI32, wasm.ValueTypeI32)
		if err != nil {
			return err
		}
		c.emit(Operation{Kind: OperationKindMemoryInit, U1: uint64(idx), Src1: d.slot, Src2: s.slot, Src3: n.slot})
	case wasm.OpcodeMiscMemoryCopy, wasm.OpcodeMiscMemoryFill:
		if err := c.readZeroByte(); err != nil {
			return err
		}
		kind, middle := OperationKindMemoryFill, wasm.ValueTypeI32
		if miscOp == wasm.OpcodeMiscMemoryCopy {
			if err := c.readZeroByte(); err != nil {
				return err
			}
			kind = OperationKindMemoryCopy
		}
		if err := c.requireMemory(); err != nil {
			return err
		}
		d, s, n, err := c.pop3(wasm.ValueTypeI32, middle)
		if err != nil {
			return err
		}
		c.emit(Operation{Kind: kind, Src1: d.slot, Src2: s.slot, Src3: n.slot})
	case wasm.OpcodeMiscTableInit:
		elemIdx, err := c.readU32()
		if err != nil {
			return err
		}
		tableIdx, table, err := c.readTableIndex()
		if err != nil {
			return err
		}
		if elemIdx >= uint32(len(c.module.ElementSection)) {
			return fmt.Errorf("element index %d out of range", elemIdx)
		}
		if et := c.module.ElementSection[elemIdx].Type; et != table.Type {
			return fmt.Errorf("type mismatch: element[%d] is %s, but table[%d] is %s",
				elemIdx, wasm.ValueTypeName(et), tableIdx, wasm.ValueTypeName(table.Type))
		}
		d, s, n, err := c.pop3(wasm.ValueTypeI32, wasm.ValueTypeI32)
		if err != nil {
			return err
		}
		c.emit(Operation{Kind: OperationKindTableInit, U1: uint64(elemIdx), U2: uint64(tableIdx), Src1: d.slot, Src2: s.slot, Src3: n.slot})
	case wasm.OpcodeMiscElemDrop:
		idx, err := c.readU32()
		if err != nil {
			return err
		}
		if idx >= uint32(len(c.module.ElementSection)) {
			return fmt.Errorf("element index %d out of range", idx)
		}
		c.emit(Operation{Kind: OperationKindElemDrop, U1: uint64(idx)})
	case wasm.OpcodeMiscTableCopy:
		dstIdx, dst, err := c.readTableIndex()
		if err != nil {
			return err
		}
		srcIdx, src, err := c.readTableIndex()
		if err != nil {
			return err
		}
		if dst.Type != src.Type {
			return fmt.Errorf("type mismatch: table[%d] is %s, but table[%d] is %s",
				dstIdx, wasm.ValueTypeName(dst.Type), srcIdx, wasm.ValueTypeName(src.Type))
		}
		d, s, n, err := c.pop3(wasm.ValueTypeI32, wasm.ValueTypeI32)
		if err != nil {
			return err
		}
		c.emit(Operation{Kind: OperationKindTableCopy, U1: uint64(dstIdx), U2: uint64(srcIdx), Src1: d.slot, Src2: s.slot, Src3: n.slot})
	case wasm.OpcodeMiscTableGrow:
		idx, table, err := c.readTableIndex()
		if err != nil {
			return err
		}
		n, err := c.pop(wasm.ValueTypeI32)
		if err != nil {
			return err
		}
		init, err := c.pop(table.Type)
		if err != nil {
			return err
		}
		c.emitPush(Operation{Kind: OperationKindTableGrow, U1: uint64(idx), Src1: init.slot, Src2: n.slot}, wasm.ValueTypeI32)
	case wasm.OpcodeMiscTableSize:
		idx, _, err := c.readTableIndex()
		if err != nil {
			return err
		}
		c.emitPush(Operation{Kind: OperationKindTableSize, U1: uint64(idx)}, wasm.ValueTypeI32)
	case wasm.OpcodeMiscTableFill:
		idx, table, err := c.readTableIndex()
		if err != nil {
			return err
		}
		i, v, n, err := c.pop3(wasm.ValueTypeI32, table.Type)
		if err != nil {
			return err
		}
		c.emit(Operation{Kind: OperationKindTableFill, U1: uint64(idx), Src1: i.slot, Src2: v.slot, Src3: n.slot})
	}
	return nil
}

// pop3 pops the three operands of a bulk instruction: an i32 destination, a value or source of type middle, and an
// i32 count.
func (c *compiler) pop3(first, middle wasm.ValueType) (d, s, n operand, err error) {
	if n, err = c.pop(wasm.ValueTypeI32); err != nil {
		return
	}
	if s, err = c.pop(middle); err != nil {
		return
	}
	d, err = c.pop(first)
	return
}

// markUnreachable drops the operands of the current frame, whose remaining code can't be reached.
func (c *compiler) markUnreachable() {
	frame := c.frames[len(c.frames)-1]
	frame.unreachable = true
	c.stack = c.stack[:frame.height]
	c.producer = -1
}

// emitting is false in unreachable code.
func (c *compiler) emitting() bool {
	frame := c.frames[len(c.frames)-1]
	return !frame.unreachable && !frame.dead
}

// resetStack drops what frame left on the stack, then pushes types, which are in their own slots.
func (c *compiler) resetStack(frame *controlFrame, types []wasm.ValueType) {
	c.stack = c.stack[:frame.height]
	frame.unreachable = false
	for _, t := range types {
		c.push(t)
	}
	c.producer = -1
}

func (c *compiler) slotOf(height int) uint32 {
	return c.numLocals + uint32(height)
}

// push adds an operand of type t in its own slot, returning the slot.
func (c *compiler) push(t wasm.ValueType) uint32 {
	slot := c.slotOf(len(c.stack))
	c.pushOperand(operand{typ: t, slot: slot})
	return slot
}

// pushOperand adds o, growing the frame unless the code is unreachable, whose slots are never written.
func (c *compiler) pushOperand(o operand) {
	c.stack = append(c.stack, o)
	if len(c.stack) > c.maxHeight && c.emitting() {
		c.maxHeight = len(c.stack)
	}
}

func (c *compiler) pop(expected wasm.ValueType) (operand, error) {
	frame := c.frames[len(c.frames)-1]
	if len(c.stack) <= frame.height {
		if frame.unreachable {
			return operand{typ: expected}, nil
		}
		return operand{}, errors.New("stack underflow")
	}
	o := c.stack[len(c.stack)-1]
	if !typeMatches(expected, o.typ) {
		return operand{}, fmt.Errorf("type mismatch: expected %s, but was %s",
			wasm.ValueTypeName(expected), wasm.ValueTypeName(o.typ))
	}
	c.stack = c.stack[:len(c.stack)-1]
	return o, nil
}

// checkTop ensures the top of the stack has types, without popping them. In an unreachable frame, missing values
// are added below the present ones as operands of any type.
func (c *compiler) checkTop(types []wasm.ValueType) error {
	frame := c.frames[len(c.frames)-1]
	if missing := len(types) - (len(c.stack) - frame.height); missing > 0 {
		if !frame.unreachable {
			return fmt.Errorf("stack underflow: expected %d values, but found %d", len(types), len(c.stack)-frame.height)
		}
		above := append([]operand(nil), c.stack[frame.height:]...)
		c.stack = c.stack[:frame.height]
		for i := 0; i < missing; i++ {
			c.push(valueTypeAny)
		}
		for _, o := range above {
			c.pushOperand(o)
		}
	}
	base := len(c.stack) - len(types)
	for i, t := range types {
		if actual := c.stack[base+i].typ; !typeMatches(t, actual) {
			return fmt.Errorf("type mismatch: expected %s, but was %s", wasm.ValueTypeName(t), wasm.ValueTypeName(actual))
		}
	}
	return nil
}

// checkEnd ensures the stack has exactly the results of frame above its height.
func (c *compiler) checkEnd(frame *controlFrame) error {
	results := frame.blockType.Results
	if actual := len(c.stack) - frame.height; actual > len(results) || (actual < len(results) && !frame.unreachable) {
		return fmt.Errorf("type mismatch: expected %d values at the end of the block, but found %d", len(results), actual)
	}
	return c.checkTop(results)
}

func (c *compiler) materialize(i int) {
	if o := &c.stack[i]; o.slot != c.slotOf(i) {
		c.emit(Operation{Kind: OperationKindCopy, Dst: c.slotOf(i), Src1: o.slot})
		o.slot = c.slotOf(i)
	}
}

func (c *compiler) materializeTop(n int) {
	for i := len(c.stack) - n; i < len(c.stack); i++ {
		c.materialize(i)
	}
}

func (c *compiler) materializeAll() {
	c.materializeTop(len(c.stack))
}

func (c *compiler) materializeLocal(idx uint32) {
	for i := range c.stack {
		if c.stack[i].slot == idx {
			c.materialize(i)
		}
	}
}

func (c *compiler) emit(op Operation) {
	c.producer = -1
	if c.emitting() {
		c.result.Operations = append(c.result.Operations, op)
	}
}

// emitPush emits op with its result written to a new operand of type t.
func (c *compiler) emitPush(op Operation, t wasm.ValueType) {
	op.Dst = c.push(t)
	if !c.emitting() {
		c.producer = -1
		return
	}
	c.result.Operations = append(c.result.Operations, op)
	c.producer = len(c.result.Operations) - 1
}

// emitJump emits op jumping to l, which is patched when l is bound.
func (c *compiler) emitJump(op Operation, l *label) {
	if !c.emitting() {
		return
	}
	if l.bound {
		op.U1 = l.pc
	} else {
		l.ops = append(l.ops, len(c.result.Operations))
	}
	c.emit(op)
}

// emitBranch emits a branch to target carrying the top n operands, which are already in their own slots.
func (c *compiler) emitBranch(kind OperationKind, target *controlFrame, n int, cond uint32) {
	src := c.slotOf(len(c.stack) - n)
	if target.kind == controlFrameKindFunction {
		c.emit(Operation{Kind: OperationKindReturn, Src1: src, U2: uint64(n)})
		return
	}
	dst := c.slotOf(target.height)
	op := Operation{Kind: kind, Src1: src, Dst: dst, Src3: cond}
	if src != dst {
		op.U2 = uint64(n)
	}
	c.emitJump(op, target.label)
}

func (c *compiler) emitReturn(n int) {
	c.materializeTop(n)
	c.emit(Operation{Kind: OperationKindReturn, Src1: c.slotOf(len(c.stack) - n), U2: uint64(n)})
}

// emitCall emits op with the arguments of ft on top of the stack, replacing them with its results.
func (c *compiler) emitCall(op Operation, ft *wasm.FunctionType) error {
	if err := c.checkTop(ft.Params); err != nil {
		return err
	}
	c.materializeTop(len(ft.Params))
	base := len(c.stack) - len(ft.Params)
	op.Src1 = c.slotOf(base)
	c.stack = c.stack[:base]
	c.emit(op)
	for _, t := range ft.Results {
		c.push(t)
	}
	return nil
}

func (c *compiler) bind(l *label) {
	l.pc = uint64(len(c.result.Operations))
	l.bound = true
	for _, i := range l.ops {
		c.result.Operations[i].U1 = l.pc
	}
	for _, e := range l.entries {
		c.result.BranchTables[e[0]][e[1]].Target = l.pc
	}
	l.ops, l.entries = nil, nil
	c.producer = -1
}

func (c *compiler) readU32() (uint32, error) {
	v, _, err := leb128.DecodeUint32(c.r)
	if err != nil {
		return 0, fmt.Errorf("read immediate: %w", err)
	}
	return v, nil
}

func (c *compiler) readZeroByte() error {
	b, err := c.r.ReadByte()
	if err != nil {
		return fmt.Errorf("read immediate: %w", err)
	}
	if b != 0 {
		return errors.New("memory index must be zero")
	}
	return nil
}

func (c *compiler) readLocalIndex() (uint32, error) {
	idx, err := c.readU32()
	if err != nil {
		return 0, err
	}
	if idx >= c.numLocals {
		return 0, fmt.Errorf("local index %d out of range", idx)
	}
	return idx, nil
}

func (c *compiler) readGlobalIndex() (uint32, wasm.GlobalType, error) {
	idx, err := c.readU32()
	if err != nil {
		return 0, wasm.GlobalType{}, err
	}
	globals := c.module.AllGlobalTypes()
	if idx >= uint32(len(globals)) {
		return 0, wasm.GlobalType{}, fmt.Errorf("global index %d out of range", idx)
	}
	return idx, globals[idx], nil
}

func (c *compiler) readTableIndex() (uint32, *wasm.Table, error) {
	idx, err := c.readU32()
	if err != nil {
		return 0, nil, err
	}
	tables := c.module.AllTables()
	if idx >= uint32(len(tables)) {
		return 0, nil, fmt.Errorf("table index %d out of range", idx)
	}
	return idx, &tables[idx], nil
}

func (c *compiler) readBranchTarget() (*controlFrame, error) {
	depth, err := c.readU32()
	if err != nil {
		return nil, err
	}
	if depth >= uint32(len(c.frames)) {
		return nil, fmt.Errorf("branch depth %d out of range for %d enclosing blocks", depth, len(c.frames))
	}
	return c.frames[len(c.frames)-1-int(depth)], nil
}

func (c *compiler) requireMemory() error {
	if c.module.MemoryType() == nil {
		return errors.New("memory must exist")
	}
	c.result.HasMemory = true
	return nil
}

func (c *compiler) readBlockType() (*wasm.FunctionType, error) {
	raw, _, err := leb128.DecodeInt33AsInt64(c.r)
	if err != nil {
		return nil, fmt.Errorf("read block type: %w", err)
	}
	switch raw {
	case -64: // 0x40
		return blockTypeEmpty, nil
	case -1: // 0x7f
		return blockTypeI32, nil
	case -2: // 0x7e
		return blockTypeI64, nil
	case -3: // 0x7d
		return blockTypeF32, nil
	case -4: // 0x7c
		return blockTypeF64, nil
	case -16, -17: // 0x70, 0x6f
		if err = c.enabledFeatures.Require(wasm.FeatureReferenceTypes); err != nil {
			return nil, fmt.Errorf("reference block type invalid as %w", err)
		}
		if raw == -16 {
			return blockTypeFuncref, nil
		}
		return blockTypeExternref, nil
	}
	if raw < 0 || raw >= int64(len(c.module.TypeSection)) {
		return nil, fmt.Errorf("invalid block type %d", raw)
	}
	if err = c.enabledFeatures.Require(wasm.FeatureMultiValue); err != nil {
		return nil, fmt.Errorf("block with function type invalid as %w", err)
	}
	return &c.module.TypeSection[raw], nil
}

func isReference(t wasm.ValueType) bool {
	return t == wasm.ValueTypeFuncref || t == wasm.ValueTypeExternref
}

func isValueType(t wasm.ValueType) bool {
	switch t {
	case wasm.ValueTypeI32, wasm.ValueTypeI64, wasm.ValueTypeF32, wasm.ValueTypeF64, wasm.ValueTypeFuncref,
		wasm.ValueTypeExternref:
		return true
	}
	return false
}

func typeMatches(expected, actual wasm.ValueType) bool {
	return expected == valueTypeAny || actual == valueTypeAny || expected == actual
}

func sameTypes(a, b []wasm.ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
