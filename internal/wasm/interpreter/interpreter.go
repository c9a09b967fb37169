package interpreter

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"math/bits"

	"go.uber.org/zap"

	"github.com/wasmcore/wasmcore/api"
	"github.com/wasmcore/wasmcore/internal/moremath"
	"github.com/wasmcore/wasmcore/internal/wasm"
	"github.com/wasmcore/wasmcore/internal/wasmdebug"
	"github.com/wasmcore/wasmcore/internal/wasmruntime"
	"github.com/wasmcore/wasmcore/internal/wazeroir"
)

const initialStackSize = 256

// callEngineKey is the context key of the callEngine running a call tree. Host functions receive it in their
// context, so their calls back into the engine continue on the same stack.
type callEngineKey struct{}

// callEngine holds the state of one call tree: a single stack of slots and the frames over it.
type callEngine struct {
	e *engine

	// stack holds the slots of every frame. It is reallocated when a frame doesn't fit, so slices of it must be
	// taken again after anything that may call.
	stack []uint64
	// top is the first slot above the innermost frame, where a reentrant call places its arguments.
	top int

	frames []callFrame
}

// callFrame is a function activation. Slot i of the function is stack[base+i].
type callFrame struct {
	pc   uint64
	base int
	f    *function
}

// Call implements the same method as documented on wasm.Engine.
func (e *engine) Call(ctx context.Context, f *wasm.FunctionInstance, params []uint64) ([]uint64, error) {
	ce, ok := ctx.Value(callEngineKey{}).(*callEngine)
	if !ok || ce.e != e {
		ce = &callEngine{e: e, stack: make([]uint64, initialStackSize)}
		ctx = context.WithValue(ctx, callEngineKey{}, ce)
	}
	return ce.call(ctx, e.lookupFunction(f), params)
}

// call invokes fn above the current top, recovering any trap raised by it or its callees into an error carrying the
// stack trace. The stack and frames are then restored, so an enclosing host function can continue.
func (ce *callEngine) call(ctx context.Context, fn *function, params []uint64) (results []uint64, err error) {
	base, frameCount := ce.top, len(ce.frames)
	defer func() {
		if r := recover(); r != nil {
			builder := wasmdebug.NewErrorBuilder()
			for i := len(ce.frames) - 1; i >= frameCount; i-- {
				def := ce.frames[i].f.source.FunctionDefinition()
				builder.AddFrame(def.DebugName(), def.ParamTypes(), def.ResultTypes())
			}
			err = builder.FromRecovered(r)
			ce.frames = ce.frames[:frameCount]
			ce.top = base
		}
	}()

	ft := fn.source.Type
	ce.grow(base + max(len(ft.Params), len(ft.Results)))
	// Operations on 32-bit values assume the upper bits of their slots are zero.
	for i, t := range ft.Params {
		ce.stack[base+i] = api.ValueFromBits(t, params[i]).Bits()
	}
	ce.callFunction(ctx, fn, base)

	results = make([]uint64, len(ft.Results))
	copy(results, ce.stack[base:])
	return results, nil
}

// grow ensures the stack has at least size slots.
func (ce *callEngine) grow(size int) {
	if size <= len(ce.stack) {
		return
	}
	n := 2 * len(ce.stack)
	if n < size {
		n = size
	}
	stack := make([]uint64, n)
	copy(stack, ce.stack)
	ce.stack = stack
}

// callFunction calls fn with its parameters at stack[base:], leaving its results there.
func (ce *callEngine) callFunction(ctx context.Context, fn *function, base int) {
	if len(ce.frames) >= ce.e.callStackLimit {
		panic(wasmruntime.ErrRuntimeStackOverflow)
	}
	ce.frames = append(ce.frames, callFrame{f: fn, base: base})
	prevTop := ce.top

	interceptor := ce.e.interceptor
	if interceptor != nil {
		if err := interceptor.EnterFunction(ctx, fn.source.Definition()); err != nil {
			panic(err)
		}
	}
	if fn.source.IsHostFunction() {
		ce.callHostFunction(ctx, fn, base)
	} else {
		ce.callGuestFunction(ctx, fn, base)
	}
	if interceptor != nil {
		if err := interceptor.ExitFunction(ctx, fn.source.Definition()); err != nil {
			panic(err)
		}
	}

	ce.top = prevTop
	ce.frames = ce.frames[:len(ce.frames)-1]
}

func (ce *callEngine) callHostFunction(ctx context.Context, fn *function, base int) {
	f := fn.source
	ft := f.Type
	params := make([]api.Value, len(ft.Params))
	for i, t := range ft.Params {
		params[i] = api.ValueFromBits(t, ce.stack[base+i])
	}

	// The caller is the module of the calling function, or the host module when called by the embedder.
	var caller api.Module = f.Module
	if n := len(ce.frames); n > 1 {
		caller = ce.frames[n-2].f.source.Module
	}

	ce.top = base + max(len(ft.Params), len(ft.Results))
	results, err := f.Host(ctx, caller, params)
	if err != nil {
		ce.e.logger.Debug("host function failed",
			zap.String("function", f.FunctionDefinition().DebugName()),
			zap.Error(err))
		panic(err)
	}
	if len(results) != len(ft.Results) {
		panic(fmt.Errorf("host function %s returned %d results, but expected %d",
			f.FunctionDefinition().DebugName(), len(results), len(ft.Results)))
	}
	for i, r := range results {
		if r.Type() != ft.Results[i] {
			panic(fmt.Errorf("host function %s returned %s for result[%d], but expected %s",
				f.FunctionDefinition().DebugName(), api.ValueTypeName(r.Type()), i, api.ValueTypeName(ft.Results[i])))
		}
		ce.stack[base+i] = r.Bits()
	}
}

// effectiveAddress returns base+offset, trapping unless width bytes from there are in buf.
func effectiveAddress(buf []byte, base, offset, width uint64) uint64 {
	ea := uint64(uint32(base)) + offset
	if ea+width > uint64(len(buf)) {
		panic(wasmruntime.ErrRuntimeOutOfBoundsMemoryAccess)
	}
	return ea
}

// checkRange traps with err unless [offset, offset+n) is within length. Operands are i32, so the sum can't overflow.
func checkRange(offset, n uint64, length int, err *wasmruntime.Error) {
	if offset+n > uint64(length) {
		panic(err)
	}
}

func (ce *callEngine) callGuestFunction(ctx context.Context, fn *function, base int) {
	c := ce.e.compiled(fn)
	frame := len(ce.frames) - 1
	end := base + int(c.FrameSize)
	ce.grow(end)
	ce.top = end

	s := ce.stack[base:end:end]
	clear(s[c.ParamCount:c.NumLocals])

	m := fn.source.Module
	mem := m.MemoryInstance
	ops := c.Operations
	var pc uint64
	for {
		op := &ops[pc]
		switch op.Kind {
		case wazeroir.OperationKindUnreachable:
			panic(wasmruntime.ErrRuntimeUnreachable)
		case wazeroir.OperationKindBr:
			copy(s[op.Dst:], s[op.Src1:op.Src1+uint32(op.U2)])
			pc = op.U1
			continue
		case wazeroir.OperationKindBrIf:
			if s[op.Src3] != 0 {
				copy(s[op.Dst:], s[op.Src1:op.Src1+uint32(op.U2)])
				pc = op.U1
				continue
			}
		case wazeroir.OperationKindBrIfNot:
			if s[op.Src3] == 0 {
				pc = op.U1
				continue
			}
		case wazeroir.OperationKindBrTable:
			table := c.BranchTables[op.U1]
			i := uint64(uint32(s[op.Src3]))
			if last := uint64(len(table) - 1); i > last {
				i = last
			}
			t := &table[i]
			// A return target has Dst zero, which is where results are returned.
			copy(s[t.Dst:], s[t.Src:t.Src+t.Count])
			if t.IsReturnTarget() {
				return
			}
			pc = t.Target
			continue
		case wazeroir.OperationKindReturn:
			copy(s, s[op.Src1:op.Src1+uint32(op.U2)])
			return
		case wazeroir.OperationKindCall:
			ce.frames[frame].pc = pc
			ce.callFunction(ctx, fn.parent.functions[op.U1], base+int(op.Src1))
			s = ce.stack[base:end:end]
		case wazeroir.OperationKindCallIndirect:
			table := m.Tables[op.U2]
			i := uint32(s[op.Src3])
			if i >= uint32(len(table.References)) {
				panic(wasmruntime.ErrRuntimeOutOfBoundsTableAccess)
			}
			ref := table.References[i]
			if ref == 0 {
				panic(wasmruntime.ErrRuntimeUninitializedTableElement)
			}
			callee := ce.e.lookupFunction(m.Store().Function(wasm.Address(ref - 1)))
			if callee.source.TypeID != m.TypeIDs[op.U1] {
				panic(wasmruntime.ErrRuntimeIndirectCallTypeMismatch)
			}
			ce.frames[frame].pc = pc
			ce.callFunction(ctx, callee, base+int(op.Src1))
			s = ce.stack[base:end:end]
		case wazeroir.OperationKindLoopHeader:
			if err := ce.e.interceptor.LoopHeader(ctx, fn.source.Definition()); err != nil {
				panic(err)
			}

		case wazeroir.OperationKindCopy:
			s[op.Dst] = s[op.Src1]
		case wazeroir.OperationKindConst:
			s[op.Dst] = op.U1
		case wazeroir.OperationKindSelect:
			if s[op.Src3] != 0 {
				s[op.Dst] = s[op.Src1]
			} else {
				s[op.Dst] = s[op.Src2]
			}
		case wazeroir.OperationKindGlobalGet:
			s[op.Dst] = m.Globals[op.U1].Val
		case wazeroir.OperationKindGlobalSet:
			m.Globals[op.U1].Val = s[op.Src1]

		case wazeroir.OperationKindLoad8U:
			buf := mem.Buffer
			s[op.Dst] = uint64(buf[effectiveAddress(buf, s[op.Src1], op.U1, 1)])
		case wazeroir.OperationKindLoad8S32:
			buf := mem.Buffer
			s[op.Dst] = uint64(uint32(int8(buf[effectiveAddress(buf, s[op.Src1], op.U1, 1)])))
		case wazeroir.OperationKindLoad8S64:
			buf := mem.Buffer
			s[op.Dst] = uint64(int8(buf[effectiveAddress(buf, s[op.Src1], op.U1, 1)]))
		case wazeroir.OperationKindLoad16U:
			buf := mem.Buffer
			s[op.Dst] = uint64(binary.LittleEndian.Uint16(buf[effectiveAddress(buf, s[op.Src1], op.U1, 2):]))
		case wazeroir.OperationKindLoad16S32:
			buf := mem.Buffer
			v := int16(binary.LittleEndian.Uint16(buf[effectiveAddress(buf, s[op.Src1], op.U1, 2):]))
			s[op.Dst] = uint64(uint32(v))
		case wazeroir.OperationKindLoad16S64:
			buf := mem.Buffer
			v := int16(binary.LittleEndian.Uint16(buf[effectiveAddress(buf, s[op.Src1], op.U1, 2):]))
			s[op.Dst] = uint64(v)
		case wazeroir.OperationKindLoad32:
			buf := mem.Buffer
			s[op.Dst] = uint64(binary.LittleEndian.Uint32(buf[effectiveAddress(buf, s[op.Src1], op.U1, 4):]))
		case wazeroir.OperationKindLoad32S64:
			buf := mem.Buffer
			v := int32(binary.LittleEndian.Uint32(buf[effectiveAddress(buf, s[op.Src1], op.U1, 4):]))
			s[op.Dst] = uint64(v)
		case wazeroir.OperationKindLoad64:
			buf := mem.Buffer
			s[op.Dst] = binary.LittleEndian.Uint64(buf[effectiveAddress(buf, s[op.Src1], op.U1, 8):])
		case wazeroir.OperationKindStore8:
			buf := mem.Buffer
			buf[effectiveAddress(buf, s[op.Src1], op.U1, 1)] = byte(s[op.Src2])
		case wazeroir.OperationKindStore16:
			buf := mem.Buffer
			binary.LittleEndian.PutUint16(buf[effectiveAddress(buf, s[op.Src1], op.U1, 2):], uint16(s[op.Src2]))
		case wazeroir.OperationKindStore32:
			buf := mem.Buffer
			binary.LittleEndian.PutUint32(buf[effectiveAddress(buf, s[op.Src1], op.U1, 4):], uint32(s[op.Src2]))
		case wazeroir.OperationKindStore64:
			buf := mem.Buffer
			binary.LittleEndian.PutUint64(buf[effectiveAddress(buf, s[op.Src1], op.U1, 8):], s[op.Src2])

		case wazeroir.OperationKindMemorySize:
			s[op.Dst] = uint64(mem.Pages())
		case wazeroir.OperationKindMemoryGrow:
			if prev, ok := mem.Grow(uint32(s[op.Src1])); ok {
				s[op.Dst] = uint64(prev)
			} else {
				s[op.Dst] = math.MaxUint32 // -1 as i32
			}
		case wazeroir.OperationKindMemoryInit:
			data := m.DataInstances[op.U1]
			buf := mem.Buffer
			d, src, n := uint64(uint32(s[op.Src1])), uint64(uint32(s[op.Src2])), uint64(uint32(s[op.Src3]))
			checkRange(src, n, len(data), wasmruntime.ErrRuntimeOutOfBoundsMemoryAccess)
			checkRange(d, n, len(buf), wasmruntime.ErrRuntimeOutOfBoundsMemoryAccess)
			copy(buf[d:d+n], data[src:])
		case wazeroir.OperationKindDataDrop:
			m.DataInstances[op.U1] = nil
		case wazeroir.OperationKindMemoryCopy:
			buf := mem.Buffer
			d, src, n := uint64(uint32(s[op.Src1])), uint64(uint32(s[op.Src2])), uint64(uint32(s[op.Src3]))
			checkRange(src, n, len(buf), wasmruntime.ErrRuntimeOutOfBoundsMemoryAccess)
			checkRange(d, n, len(buf), wasmruntime.ErrRuntimeOutOfBoundsMemoryAccess)
			copy(buf[d:d+n], buf[src:src+n])
		case wazeroir.OperationKindMemoryFill:
			buf := mem.Buffer
			d, n := uint64(uint32(s[op.Src1])), uint64(uint32(s[op.Src3]))
			checkRange(d, n, len(buf), wasmruntime.ErrRuntimeOutOfBoundsMemoryAccess)
			v := byte(s[op.Src2])
			for i := d; i < d+n; i++ {
				buf[i] = v
			}

		case wazeroir.OperationKindTableGet:
			refs := m.Tables[op.U1].References
			i := uint64(uint32(s[op.Src1]))
			checkRange(i, 1, len(refs), wasmruntime.ErrRuntimeOutOfBoundsTableAccess)
			s[op.Dst] = refs[i]
		case wazeroir.OperationKindTableSet:
			refs := m.Tables[op.U1].References
			i := uint64(uint32(s[op.Src1]))
			checkRange(i, 1, len(refs), wasmruntime.ErrRuntimeOutOfBoundsTableAccess)
			refs[i] = s[op.Src2]
		case wazeroir.OperationKindTableSize:
			s[op.Dst] = uint64(m.Tables[op.U1].Size())
		case wazeroir.OperationKindTableGrow:
			if prev, ok := m.Tables[op.U1].GrowReference(uint32(s[op.Src2]), s[op.Src1]); ok {
				s[op.Dst] = uint64(prev)
			} else {
				s[op.Dst] = math.MaxUint32 // -1 as i32
			}
		case wazeroir.OperationKindTableFill:
			refs := m.Tables[op.U1].References
			i, n := uint64(uint32(s[op.Src1])), uint64(uint32(s[op.Src3]))
			checkRange(i, n, len(refs), wasmruntime.ErrRuntimeOutOfBoundsTableAccess)
			v := s[op.Src2]
			for j := i; j < i+n; j++ {
				refs[j] = v
			}
		case wazeroir.OperationKindTableCopy:
			dst, src := m.Tables[op.U1].References, m.Tables[op.U2].References
			d, si, n := uint64(uint32(s[op.Src1])), uint64(uint32(s[op.Src2])), uint64(uint32(s[op.Src3]))
			checkRange(si, n, len(src), wasmruntime.ErrRuntimeOutOfBoundsTableAccess)
			checkRange(d, n, len(dst), wasmruntime.ErrRuntimeOutOfBoundsTableAccess)
			copy(dst[d:d+n], src[si:si+n])
		case wazeroir.OperationKindTableInit:
			elem, refs := m.ElementInstances[op.U1], m.Tables[op.U2].References
			d, si, n := uint64(uint32(s[op.Src1])), uint64(uint32(s[op.Src2])), uint64(uint32(s[op.Src3]))
			checkRange(si, n, len(elem), wasmruntime.ErrRuntimeOutOfBoundsTableAccess)
			checkRange(d, n, len(refs), wasmruntime.ErrRuntimeOutOfBoundsTableAccess)
			copy(refs[d:d+n], elem[si:])
		case wazeroir.OperationKindElemDrop:
			m.ElementInstances[op.U1] = nil
		case wazeroir.OperationKindRefFunc:
			s[op.Dst] = wasm.FunctionReference(m.Functions[op.U1].Address)
		case wazeroir.OperationKindRefIsNull:
			s[op.Dst] = b2u(s[op.Src1] == 0)

		// Integer operations of either width. i32 values are zero-extended, so unsigned comparisons and bitwise
		// operations give the same result on 64 bits.
		case wazeroir.OperationKindEqz:
			s[op.Dst] = b2u(s[op.Src1] == 0)
		case wazeroir.OperationKindEq:
			s[op.Dst] = b2u(s[op.Src1] == s[op.Src2])
		case wazeroir.OperationKindNe:
			s[op.Dst] = b2u(s[op.Src1] != s[op.Src2])
		case wazeroir.OperationKindLtU:
			s[op.Dst] = b2u(s[op.Src1] < s[op.Src2])
		case wazeroir.OperationKindGtU:
			s[op.Dst] = b2u(s[op.Src1] > s[op.Src2])
		case wazeroir.OperationKindLeU:
			s[op.Dst] = b2u(s[op.Src1] <= s[op.Src2])
		case wazeroir.OperationKindGeU:
			s[op.Dst] = b2u(s[op.Src1] >= s[op.Src2])
		case wazeroir.OperationKindAnd:
			s[op.Dst] = s[op.Src1] & s[op.Src2]
		case wazeroir.OperationKindOr:
			s[op.Dst] = s[op.Src1] | s[op.Src2]
		case wazeroir.OperationKindXor:
			s[op.Dst] = s[op.Src1] ^ s[op.Src2]
		case wazeroir.OperationKindPopcnt:
			s[op.Dst] = uint64(bits.OnesCount64(s[op.Src1]))

		case wazeroir.OperationKindI32LtS:
			s[op.Dst] = b2u(int32(s[op.Src1]) < int32(s[op.Src2]))
		case wazeroir.OperationKindI32GtS:
			s[op.Dst] = b2u(int32(s[op.Src1]) > int32(s[op.Src2]))
		case wazeroir.OperationKindI32LeS:
			s[op.Dst] = b2u(int32(s[op.Src1]) <= int32(s[op.Src2]))
		case wazeroir.OperationKindI32GeS:
			s[op.Dst] = b2u(int32(s[op.Src1]) >= int32(s[op.Src2]))
		case wazeroir.OperationKindI32Clz:
			s[op.Dst] = uint64(bits.LeadingZeros32(uint32(s[op.Src1])))
		case wazeroir.OperationKindI32Ctz:
			s[op.Dst] = uint64(bits.TrailingZeros32(uint32(s[op.Src1])))
		case wazeroir.OperationKindI32Add:
			s[op.Dst] = uint64(uint32(s[op.Src1]) + uint32(s[op.Src2]))
		case wazeroir.OperationKindI32Sub:
			s[op.Dst] = uint64(uint32(s[op.Src1]) - uint32(s[op.Src2]))
		case wazeroir.OperationKindI32Mul:
			s[op.Dst] = uint64(uint32(s[op.Src1]) * uint32(s[op.Src2]))
		case wazeroir.OperationKindI32DivS:
			a, b := int32(s[op.Src1]), int32(s[op.Src2])
			if b == 0 {
				panic(wasmruntime.ErrRuntimeIntegerDivideByZero)
			} else if a == math.MinInt32 && b == -1 {
				panic(wasmruntime.ErrRuntimeIntegerOverflow)
			}
			s[op.Dst] = uint64(uint32(a / b))
		case wazeroir.OperationKindI32DivU:
			a, b := uint32(s[op.Src1]), uint32(s[op.Src2])
			if b == 0 {
				panic(wasmruntime.ErrRuntimeIntegerDivideByZero)
			}
			s[op.Dst] = uint64(a / b)
		case wazeroir.OperationKindI32RemS:
			a, b := int32(s[op.Src1]), int32(s[op.Src2])
			if b == 0 {
				panic(wasmruntime.ErrRuntimeIntegerDivideByZero)
			}
			s[op.Dst] = uint64(uint32(a % b)) // math.MinInt32 % -1 is 0 in Go
		case wazeroir.OperationKindI32RemU:
			a, b := uint32(s[op.Src1]), uint32(s[op.Src2])
			if b == 0 {
				panic(wasmruntime.ErrRuntimeIntegerDivideByZero)
			}
			s[op.Dst] = uint64(a % b)
		case wazeroir.OperationKindI32Shl:
			s[op.Dst] = uint64(uint32(s[op.Src1]) << (uint32(s[op.Src2]) % 32))
		case wazeroir.OperationKindI32ShrS:
			s[op.Dst] = uint64(uint32(int32(s[op.Src1]) >> (uint32(s[op.Src2]) % 32)))
		case wazeroir.OperationKindI32ShrU:
			s[op.Dst] = uint64(uint32(s[op.Src1]) >> (uint32(s[op.Src2]) % 32))
		case wazeroir.OperationKindI32Rotl:
			s[op.Dst] = uint64(bits.RotateLeft32(uint32(s[op.Src1]), int(uint32(s[op.Src2])%32)))
		case wazeroir.OperationKindI32Rotr:
			s[op.Dst] = uint64(bits.RotateLeft32(uint32(s[op.Src1]), -int(uint32(s[op.Src2])%32)))

		case wazeroir.OperationKindI64LtS:
			s[op.Dst] = b2u(int64(s[op.Src1]) < int64(s[op.Src2]))
		case wazeroir.OperationKindI64GtS:
			s[op.Dst] = b2u(int64(s[op.Src1]) > int64(s[op.Src2]))
		case wazeroir.OperationKindI64LeS:
			s[op.Dst] = b2u(int64(s[op.Src1]) <= int64(s[op.Src2]))
		case wazeroir.OperationKindI64GeS:
			s[op.Dst] = b2u(int64(s[op.Src1]) >= int64(s[op.Src2]))
		case wazeroir.OperationKindI64Clz:
			s[op.Dst] = uint64(bits.LeadingZeros64(s[op.Src1]))
		case wazeroir.OperationKindI64Ctz:
			s[op.Dst] = uint64(bits.TrailingZeros64(s[op.Src1]))
		case wazeroir.OperationKindI64Add:
			s[op.Dst] = s[op.Src1] + s[op.Src2]
		case wazeroir.OperationKindI64Sub:
			s[op.Dst] = s[op.Src1] - s[op.Src2]
		case wazeroir.OperationKindI64Mul:
			s[op.Dst] = s[op.Src1] * s[op.Src2]
		case wazeroir.OperationKindI64DivS:
			a, b := int64(s[op.Src1]), int64(s[op.Src2])
			if b == 0 {
				panic(wasmruntime.ErrRuntimeIntegerDivideByZero)
			} else if a == math.MinInt64 && b == -1 {
				panic(wasmruntime.ErrRuntimeIntegerOverflow)
			}
			s[op.Dst] = uint64(a / b)
		case wazeroir.OperationKindI64DivU:
			if s[op.Src2] == 0 {
				panic(wasmruntime.ErrRuntimeIntegerDivideByZero)
			}
			s[op.Dst] = s[op.Src1] / s[op.Src2]
		case wazeroir.OperationKindI64RemS:
			a, b := int64(s[op.Src1]), int64(s[op.Src2])
			if b == 0 {
				panic(wasmruntime.ErrRuntimeIntegerDivideByZero)
			}
			s[op.Dst] = uint64(a % b)
		case wazeroir.OperationKindI64RemU:
			if s[op.Src2] == 0 {
				panic(wasmruntime.ErrRuntimeIntegerDivideByZero)
			}
			s[op.Dst] = s[op.Src1] % s[op.Src2]
		case wazeroir.OperationKindI64Shl:
			s[op.Dst] = s[op.Src1] << (s[op.Src2] % 64)
		case wazeroir.OperationKindI64ShrS:
			s[op.Dst] = uint64(int64(s[op.Src1]) >> (s[op.Src2] % 64))
		case wazeroir.OperationKindI64ShrU:
			s[op.Dst] = s[op.Src1] >> (s[op.Src2] % 64)
		case wazeroir.OperationKindI64Rotl:
			s[op.Dst] = bits.RotateLeft64(s[op.Src1], int(s[op.Src2]%64))
		case wazeroir.OperationKindI64Rotr:
			s[op.Dst] = bits.RotateLeft64(s[op.Src1], -int(s[op.Src2]%64))

		case wazeroir.OperationKindF32Eq:
			s[op.Dst] = b2u(f32(s[op.Src1]) == f32(s[op.Src2]))
		case wazeroir.OperationKindF32Ne:
			s[op.Dst] = b2u(f32(s[op.Src1]) != f32(s[op.Src2]))
		case wazeroir.OperationKindF32Lt:
			s[op.Dst] = b2u(f32(s[op.Src1]) < f32(s[op.Src2]))
		case wazeroir.OperationKindF32Gt:
			s[op.Dst] = b2u(f32(s[op.Src1]) > f32(s[op.Src2]))
		case wazeroir.OperationKindF32Le:
			s[op.Dst] = b2u(f32(s[op.Src1]) <= f32(s[op.Src2]))
		case wazeroir.OperationKindF32Ge:
			s[op.Dst] = b2u(f32(s[op.Src1]) >= f32(s[op.Src2]))
		case wazeroir.OperationKindF32Abs:
			s[op.Dst] = uint64(uint32(s[op.Src1]) &^ f32SignBit)
		case wazeroir.OperationKindF32Neg:
			s[op.Dst] = uint64(uint32(s[op.Src1]) ^ f32SignBit)
		case wazeroir.OperationKindF32Copysign:
			s[op.Dst] = uint64(uint32(s[op.Src1])&^f32SignBit | uint32(s[op.Src2])&f32SignBit)
		case wazeroir.OperationKindF32Ceil:
			s[op.Dst] = canonF32(float32(math.Ceil(float64(f32(s[op.Src1])))))
		case wazeroir.OperationKindF32Floor:
			s[op.Dst] = canonF32(float32(math.Floor(float64(f32(s[op.Src1])))))
		case wazeroir.OperationKindF32Trunc:
			s[op.Dst] = canonF32(float32(math.Trunc(float64(f32(s[op.Src1])))))
		case wazeroir.OperationKindF32Nearest:
			s[op.Dst] = canonF32(moremath.WasmCompatNearestF32(f32(s[op.Src1])))
		case wazeroir.OperationKindF32Sqrt:
			s[op.Dst] = canonF32(moremath.WasmCompatSqrt32(f32(s[op.Src1])))
		case wazeroir.OperationKindF32Add:
			s[op.Dst] = canonF32(f32(s[op.Src1]) + f32(s[op.Src2]))
		case wazeroir.OperationKindF32Sub:
			s[op.Dst] = canonF32(f32(s[op.Src1]) - f32(s[op.Src2]))
		case wazeroir.OperationKindF32Mul:
			s[op.Dst] = canonF32(f32(s[op.Src1]) * f32(s[op.Src2]))
		case wazeroir.OperationKindF32Div:
			s[op.Dst] = canonF32(f32(s[op.Src1]) / f32(s[op.Src2]))
		case wazeroir.OperationKindF32Min:
			s[op.Dst] = canonF32(moremath.WasmCompatMin32(f32(s[op.Src1]), f32(s[op.Src2])))
		case wazeroir.OperationKindF32Max:
			s[op.Dst] = canonF32(moremath.WasmCompatMax32(f32(s[op.Src1]), f32(s[op.Src2])))

		case wazeroir.OperationKindF64Eq:
			s[op.Dst] = b2u(f64(s[op.Src1]) == f64(s[op.Src2]))
		case wazeroir.OperationKindF64Ne:
			s[op.Dst] = b2u(f64(s[op.Src1]) != f64(s[op.Src2]))
		case wazeroir.OperationKindF64Lt:
			s[op.Dst] = b2u(f64(s[op.Src1]) < f64(s[op.Src2]))
		case wazeroir.OperationKindF64Gt:
			s[op.Dst] = b2u(f64(s[op.Src1]) > f64(s[op.Src2]))
		case wazeroir.OperationKindF64Le:
			s[op.Dst] = b2u(f64(s[op.Src1]) <= f64(s[op.Src2]))
		case wazeroir.OperationKindF64Ge:
			s[op.Dst] = b2u(f64(s[op.Src1]) >= f64(s[op.Src2]))
		case wazeroir.OperationKindF64Abs:
			s[op.Dst] = s[op.Src1] &^ f64SignBit
		case wazeroir.OperationKindF64Neg:
			s[op.Dst] = s[op.Src1] ^ f64SignBit
		case wazeroir.OperationKindF64Copysign:
			s[op.Dst] = s[op.Src1]&^f64SignBit | s[op.Src2]&f64SignBit
		case wazeroir.OperationKindF64Ceil:
			s[op.Dst] = canonF64(math.Ceil(f64(s[op.Src1])))
		case wazeroir.OperationKindF64Floor:
			s[op.Dst] = canonF64(math.Floor(f64(s[op.Src1])))
		case wazeroir.OperationKindF64Trunc:
			s[op.Dst] = canonF64(math.Trunc(f64(s[op.Src1])))
		case wazeroir.OperationKindF64Nearest:
			s[op.Dst] = canonF64(moremath.WasmCompatNearestF64(f64(s[op.Src1])))
		case wazeroir.OperationKindF64Sqrt:
			s[op.Dst] = canonF64(math.Sqrt(f64(s[op.Src1])))
		case wazeroir.OperationKindF64Add:
			s[op.Dst] = canonF64(f64(s[op.Src1]) + f64(s[op.Src2]))
		case wazeroir.OperationKindF64Sub:
			s[op.Dst] = canonF64(f64(s[op.Src1]) - f64(s[op.Src2]))
		case wazeroir.OperationKindF64Mul:
			s[op.Dst] = canonF64(f64(s[op.Src1]) * f64(s[op.Src2]))
		case wazeroir.OperationKindF64Div:
			s[op.Dst] = canonF64(f64(s[op.Src1]) / f64(s[op.Src2]))
		case wazeroir.OperationKindF64Min:
			s[op.Dst] = canonF64(moremath.WasmCompatMin(f64(s[op.Src1]), f64(s[op.Src2])))
		case wazeroir.OperationKindF64Max:
			s[op.Dst] = canonF64(moremath.WasmCompatMax(f64(s[op.Src1]), f64(s[op.Src2])))

		case wazeroir.OperationKindI32WrapI64:
			s[op.Dst] = uint64(uint32(s[op.Src1]))
		case wazeroir.OperationKindI32TruncF32S:
			s[op.Dst] = truncI32S(float64(f32(s[op.Src1])), false)
		case wazeroir.OperationKindI32TruncF32U:
			s[op.Dst] = truncI32U(float64(f32(s[op.Src1])), false)
		case wazeroir.OperationKindI32TruncF64S:
			s[op.Dst] = truncI32S(f64(s[op.Src1]), false)
		case wazeroir.OperationKindI32TruncF64U:
			s[op.Dst] = truncI32U(f64(s[op.Src1]), false)
		case wazeroir.OperationKindI64TruncF32S:
			s[op.Dst] = truncI64S(float64(f32(s[op.Src1])), false)
		case wazeroir.OperationKindI64TruncF32U:
			s[op.Dst] = truncI64U(float64(f32(s[op.Src1])), false)
		case wazeroir.OperationKindI64TruncF64S:
			s[op.Dst] = truncI64S(f64(s[op.Src1]), false)
		case wazeroir.OperationKindI64TruncF64U:
			s[op.Dst] = truncI64U(f64(s[op.Src1]), false)
		case wazeroir.OperationKindI32TruncSatF32S:
			s[op.Dst] = truncI32S(float64(f32(s[op.Src1])), true)
		case wazeroir.OperationKindI32TruncSatF32U:
			s[op.Dst] = truncI32U(float64(f32(s[op.Src1])), true)
		case wazeroir.OperationKindI32TruncSatF64S:
			s[op.Dst] = truncI32S(f64(s[op.Src1]), true)
		case wazeroir.OperationKindI32TruncSatF64U:
			s[op.Dst] = truncI32U(f64(s[op.Src1]), true)
		case wazeroir.OperationKindI64TruncSatF32S:
			s[op.Dst] = truncI64S(float64(f32(s[op.Src1])), true)
		case wazeroir.OperationKindI64TruncSatF32U:
			s[op.Dst] = truncI64U(float64(f32(s[op.Src1])), true)
		case wazeroir.OperationKindI64TruncSatF64S:
			s[op.Dst] = truncI64S(f64(s[op.Src1]), true)
		case wazeroir.OperationKindI64TruncSatF64U:
			s[op.Dst] = truncI64U(f64(s[op.Src1]), true)
		case wazeroir.OperationKindF32ConvertI32S:
			s[op.Dst] = uint64(math.Float32bits(float32(int32(s[op.Src1]))))
		case wazeroir.OperationKindF32ConvertI32U:
			s[op.Dst] = uint64(math.Float32bits(float32(uint32(s[op.Src1]))))
		case wazeroir.OperationKindF32ConvertI64S:
			s[op.Dst] = uint64(math.Float32bits(float32(int64(s[op.Src1]))))
		case wazeroir.OperationKindF32ConvertI64U:
			s[op.Dst] = uint64(math.Float32bits(float32(s[op.Src1])))
		case wazeroir.OperationKindF32DemoteF64:
			s[op.Dst] = canonF32(float32(f64(s[op.Src1])))
		case wazeroir.OperationKindF64ConvertI32S:
			s[op.Dst] = math.Float64bits(float64(int32(s[op.Src1])))
		case wazeroir.OperationKindF64ConvertI32U:
			s[op.Dst] = math.Float64bits(float64(uint32(s[op.Src1])))
		case wazeroir.OperationKindF64ConvertI64S:
			s[op.Dst] = math.Float64bits(float64(int64(s[op.Src1])))
		case wazeroir.OperationKindF64ConvertI64U:
			s[op.Dst] = math.Float64bits(float64(s[op.Src1]))
		case wazeroir.OperationKindF64PromoteF32:
			s[op.Dst] = canonF64(float64(f32(s[op.Src1])))
		case wazeroir.OperationKindI32Extend8S:
			s[op.Dst] = uint64(uint32(int32(int8(s[op.Src1]))))
		case wazeroir.OperationKindI32Extend16S:
			s[op.Dst] = uint64(uint32(int32(int16(s[op.Src1]))))
		case wazeroir.OperationKindI64Extend8S:
			s[op.Dst] = uint64(int64(int8(s[op.Src1])))
		case wazeroir.OperationKindI64Extend16S:
			s[op.Dst] = uint64(int64(int16(s[op.Src1])))
		case wazeroir.OperationKindI64Extend32S:
			s[op.Dst] = uint64(int64(int32(s[op.Src1])))
		default:
			panic(fmt.Errorf("BUG: invalid operation %s", op.Kind))
		}
		pc++
	}
}
