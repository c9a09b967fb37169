package wazeroir

import "github.com/wasmcore/wasmcore/internal/wasm"

const (
	i32 = wasm.ValueTypeI32
	i64 = wasm.ValueTypeI64
	f32 = wasm.ValueTypeF32
	f64 = wasm.ValueTypeF64
)

// signature represents how a Wasm opcode manipulates the value stack in terms of value types.
type signature struct {
	in  []wasm.ValueType
	out wasm.ValueType
}

var (
	signature_I32_I32    = &signature{in: []wasm.ValueType{i32}, out: i32}
	signature_I32_I64    = &signature{in: []wasm.ValueType{i32}, out: i64}
	signature_I32_F32    = &signature{in: []wasm.ValueType{i32}, out: f32}
	signature_I32_F64    = &signature{in: []wasm.ValueType{i32}, out: f64}
	signature_I64_I32    = &signature{in: []wasm.ValueType{i64}, out: i32}
	signature_I64_I64    = &signature{in: []wasm.ValueType{i64}, out: i64}
	signature_I64_F32    = &signature{in: []wasm.ValueType{i64}, out: f32}
	signature_I64_F64    = &signature{in: []wasm.ValueType{i64}, out: f64}
	signature_F32_I32    = &signature{in: []wasm.ValueType{f32}, out: i32}
	signature_F32_I64    = &signature{in: []wasm.ValueType{f32}, out: i64}
	signature_F32_F32    = &signature{in: []wasm.ValueType{f32}, out: f32}
	signature_F32_F64    = &signature{in: []wasm.ValueType{f32}, out: f64}
	signature_F64_I32    = &signature{in: []wasm.ValueType{f64}, out: i32}
	signature_F64_I64    = &signature{in: []wasm.ValueType{f64}, out: i64}
	signature_F64_F32    = &signature{in: []wasm.ValueType{f64}, out: f32}
	signature_F64_F64    = &signature{in: []wasm.ValueType{f64}, out: f64}
	signature_I32I32_I32 = &signature{in: []wasm.ValueType{i32, i32}, out: i32}
	signature_I64I64_I32 = &signature{in: []wasm.ValueType{i64, i64}, out: i32}
	signature_I64I64_I64 = &signature{in: []wasm.ValueType{i64, i64}, out: i64}
	signature_F32F32_I32 = &signature{in: []wasm.ValueType{f32, f32}, out: i32}
	signature_F32F32_F32 = &signature{in: []wasm.ValueType{f32, f32}, out: f32}
	signature_F64F64_I32 = &signature{in: []wasm.ValueType{f64, f64}, out: i32}
	signature_F64F64_F64 = &signature{in: []wasm.ValueType{f64, f64}, out: f64}
)

// numeric is an instruction that pops the inputs of sig and pushes its output by one operation of kind.
//
// When noop is true, the instruction only changes the type of the operand, as the slot bits are already the result.
type numeric struct {
	kind    OperationKind
	sig     *signature
	noop    bool
	feature wasm.Features
}

var numericOps = map[wasm.Opcode]numeric{
	wasm.OpcodeI32Eqz: {kind: OperationKindEqz, sig: signature_I32_I32},
	wasm.OpcodeI32Eq:  {kind: OperationKindEq, sig: signature_I32I32_I32},
	wasm.OpcodeI32Ne:  {kind: OperationKindNe, sig: signature_I32I32_I32},
	wasm.OpcodeI32LtS: {kind: OperationKindI32LtS, sig: signature_I32I32_I32},
	wasm.OpcodeI32LtU: {kind: OperationKindLtU, sig: signature_I32I32_I32},
	wasm.OpcodeI32GtS: {kind: OperationKindI32GtS, sig: signature_I32I32_I32},
	wasm.OpcodeI32GtU: {kind: OperationKindGtU, sig: signature_I32I32_I32},
	wasm.OpcodeI32LeS: {kind: OperationKindI32LeS, sig: signature_I32I32_I32},
	wasm.OpcodeI32LeU: {kind: OperationKindLeU, sig: signature_I32I32_I32},
	wasm.OpcodeI32GeS: {kind: OperationKindI32GeS, sig: signature_I32I32_I32},
	wasm.OpcodeI32GeU: {kind: OperationKindGeU, sig: signature_I32I32_I32},
	wasm.OpcodeI64Eqz: {kind: OperationKindEqz, sig: signature_I64_I32},
	wasm.OpcodeI64Eq:  {kind: OperationKindEq, sig: signature_I64I64_I32},
	wasm.OpcodeI64Ne:  {kind: OperationKindNe, sig: signature_I64I64_I32},
	wasm.OpcodeI64LtS: {kind: OperationKindI64LtS, sig: signature_I64I64_I32},
	wasm.OpcodeI64LtU: {kind: OperationKindLtU, sig: signature_I64I64_I32},
	wasm.OpcodeI64GtS: {kind: OperationKindI64GtS, sig: signature_I64I64_I32},
	wasm.OpcodeI64GtU: {kind: OperationKindGtU, sig: signature_I64I64_I32},
	wasm.OpcodeI64LeS: {kind: OperationKindI64LeS, sig: signature_I64I64_I32},
	wasm.OpcodeI64LeU: {kind: OperationKindLeU, sig: signature_I64I64_I32},
	wasm.OpcodeI64GeS: {kind: OperationKindI64GeS, sig: signature_I64I64_I32},
	wasm.OpcodeI64GeU: {kind: OperationKindGeU, sig: signature_I64I64_I32},
	wasm.OpcodeF32Eq:  {kind: OperationKindF32Eq, sig: signature_F32F32_I32},
	wasm.OpcodeF32Ne:  {kind: OperationKindF32Ne, sig: signature_F32F32_I32},
	wasm.OpcodeF32Lt:  {kind: OperationKindF32Lt, sig: signature_F32F32_I32},
	wasm.OpcodeF32Gt:  {kind: OperationKindF32Gt, sig: signature_F32F32_I32},
	wasm.OpcodeF32Le:  {kind: OperationKindF32Le, sig: signature_F32F32_I32},
	wasm.OpcodeF32Ge:  {kind: OperationKindF32Ge, sig: signature_F32F32_I32},
	wasm.OpcodeF64Eq:  {kind: OperationKindF64Eq, sig: signature_F64F64_I32},
	wasm.OpcodeF64Ne:  {kind: OperationKindF64Ne, sig: signature_F64F64_I32},
	wasm.OpcodeF64Lt:  {kind: OperationKindF64Lt, sig: signature_F64F64_I32},
	wasm.OpcodeF64Gt:  {kind: OperationKindF64Gt, sig: signature_F64F64_I32},
	wasm.OpcodeF64Le:  {kind: OperationKindF64Le, sig: signature_F64F64_I32},
	wasm.OpcodeF64Ge:  {kind: OperationKindF64Ge, sig: signature_F64F64_I32},

	wasm.OpcodeI32Clz:    {kind: OperationKindI32Clz, sig: signature_I32_I32},
	wasm.OpcodeI32Ctz:    {kind: OperationKindI32Ctz, sig: signature_I32_I32},
	wasm.OpcodeI32Popcnt: {kind: OperationKindPopcnt, sig: signature_I32_I32},
	wasm.OpcodeI32Add:    {kind: OperationKindI32Add, sig: signature_I32I32_I32},
	wasm.OpcodeI32Sub:    {kind: OperationKindI32Sub, sig: signature_I32I32_I32},
	wasm.OpcodeI32Mul:    {kind: OperationKindI32Mul, sig: signature_I32I32_I32},
	wasm.OpcodeI32DivS:   {kind: OperationKindI32DivS, sig: signature_I32I32_I32},
	wasm.OpcodeI32DivU:   {kind: OperationKindI32DivU, sig: signature_I32I32_I32},
	wasm.OpcodeI32RemS:   {kind: OperationKindI32RemS, sig: signature_I32I32_I32},
	wasm.OpcodeI32RemU:   {kind: OperationKindI32RemU, sig: signature_I32I32_I32},
	wasm.OpcodeI32And:    {kind: OperationKindAnd, sig: signature_I32I32_I32},
	wasm.OpcodeI32Or:     {kind: OperationKindOr, sig: signature_I32I32_I32},
	wasm.OpcodeI32Xor:    {kind: OperationKindXor, sig: signature_I32I32_I32},
	wasm.OpcodeI32Shl:    {kind: OperationKindI32Shl, sig: signature_I32I32_I32},
	wasm.OpcodeI32ShrS:   {kind: OperationKindI32ShrS, sig: signature_I32I32_I32},
	wasm.OpcodeI32ShrU:   {kind: OperationKindI32ShrU, sig: signature_I32I32_I32},
	wasm.OpcodeI32Rotl:   {kind: OperationKindI32Rotl, sig: signature_I32I32_I32},
	wasm.OpcodeI32Rotr:   {kind: OperationKindI32Rotr, sig: signature_I32I32_I32},

	wasm.OpcodeI64Clz:    {kind: OperationKindI64Clz, sig: signature_I64_I64},
	wasm.OpcodeI64Ctz:    {kind: OperationKindI64Ctz, sig: signature_I64_I64},
	wasm.OpcodeI64Popcnt: {kind: OperationKindPopcnt, sig: signature_I64_I64},
	wasm.OpcodeI64Add:    {kind: OperationKindI64Add, sig: signature_I64I64_I64},
	wasm.OpcodeI64Sub:    {kind: OperationKindI64Sub, sig: signature_I64I64_I64},
	wasm.OpcodeI64Mul:    {kind: OperationKindI64Mul, sig: signature_I64I64_I64},
	wasm.OpcodeI64DivS:   {kind: OperationKindI64DivS, sig: signature_I64I64_I64},
	wasm.OpcodeI64DivU:   {kind: OperationKindI64DivU, sig: signature_I64I64_I64},
	wasm.OpcodeI64RemS:   {kind: OperationKindI64RemS, sig: signature_I64I64_I64},
	wasm.OpcodeI64RemU:   {kind: OperationKindI64RemU, sig: signature_I64I64_I64},
	wasm.OpcodeI64And:    {kind: OperationKindAnd, sig: signature_I64I64_I64},
	wasm.OpcodeI64Or:     {kind: OperationKindOr, sig: signature_I64I64_I64},
	wasm.OpcodeI64Xor:    {kind: OperationKindXor, sig: signature_I64I64_I64},
	wasm.OpcodeI64Shl:    {kind: OperationKindI64Shl, sig: signature_I64I64_I64},
	wasm.OpcodeI64ShrS:   {kind: OperationKindI64ShrS, sig: signature_I64I64_I64},
	wasm.OpcodeI64ShrU:   {kind: OperationKindI64ShrU, sig: signature_I64I64_I64},
	wasm.OpcodeI64Rotl:   {kind: OperationKindI64Rotl, sig: signature_I64I64_I64},
	wasm.OpcodeI64Rotr:   {kind: OperationKindI64Rotr, sig: signature_I64I64_I64},

	wasm.OpcodeF32Abs:      {kind: OperationKindF32Abs, sig: signature_F32_F32},
	wasm.OpcodeF32Neg:      {kind: OperationKindF32Neg, sig: signature_F32_F32},
	wasm.OpcodeF32Ceil:     {kind: OperationKindF32Ceil, sig: signature_F32_F32},
	wasm.OpcodeF32Floor:    {kind: OperationKindF32Floor, sig: signature_F32_F32},
	wasm.OpcodeF32Trunc:    {kind: OperationKindF32Trunc, sig: signature_F32_F32},
	wasm.OpcodeF32Nearest:  {kind: OperationKindF32Nearest, sig: signature_F32_F32},
	wasm.OpcodeF32Sqrt:     {kind: OperationKindF32Sqrt, sig: signature_F32_F32},
	wasm.OpcodeF32Add:      {kind: OperationKindF32Add, sig: signature_F32F32_F32},
	wasm.OpcodeF32Sub:      {kind: OperationKindF32Sub, sig: signature_F32F32_F32},
	wasm.OpcodeF32Mul:      {kind: OperationKindF32Mul, sig: signature_F32F32_F32},
	wasm.OpcodeF32Div:      {kind: OperationKindF32Div, sig: signature_F32F32_F32},
	wasm.OpcodeF32Min:      {kind: OperationKindF32Min, sig: signature_F32F32_F32},
	wasm.OpcodeF32Max:      {kind: OperationKindF32Max, sig: signature_F32F32_F32},
	wasm.OpcodeF32Copysign: {kind: OperationKindF32Copysign, sig: signature_F32F32_F32},

	wasm.OpcodeF64Abs:      {kind: OperationKindF64Abs, sig: signature_F64_F64},
	wasm.OpcodeF64Neg:      {kind: OperationKindF64Neg, sig: signature_F64_F64},
	wasm.OpcodeF64Ceil:     {kind: OperationKindF64Ceil, sig: signature_F64_F64},
	wasm.OpcodeF64Floor:    {kind: OperationKindF64Floor, sig: signature_F64_F64},
	wasm.OpcodeF64Trunc:    {kind: OperationKindF64Trunc, sig: signature_F64_F64},
	wasm.OpcodeF64Nearest:  {kind: OperationKindF64Nearest, sig: signature_F64_F64},
	wasm.OpcodeF64Sqrt:     {kind: OperationKindF64Sqrt, sig: signature_F64_F64},
	wasm.OpcodeF64Add:      {kind: OperationKindF64Add, sig: signature_F64F64_F64},
	wasm.OpcodeF64Sub:      {kind: OperationKindF64Sub, sig: signature_F64F64_F64},
	wasm.OpcodeF64Mul:      {kind: OperationKindF64Mul, sig: signature_F64F64_F64},
	wasm.OpcodeF64Div:      {kind: OperationKindF64Div, sig: signature_F64F64_F64},
	wasm.OpcodeF64Min:      {kind: OperationKindF64Min, sig: signature_F64F64_F64},
	wasm.OpcodeF64Max:      {kind: OperationKindF64Max, sig: signature_F64F64_F64},
	wasm.OpcodeF64Copysign: {kind: OperationKindF64Copysign, sig: signature_F64F64_F64},

	wasm.OpcodeI32WrapI64:        {kind: OperationKindI32WrapI64, sig: signature_I64_I32},
	wasm.OpcodeI32TruncF32S:      {kind: OperationKindI32TruncF32S, sig: signature_F32_I32},
	wasm.OpcodeI32TruncF32U:      {kind: OperationKindI32TruncF32U, sig: signature_F32_I32},
	wasm.OpcodeI32TruncF64S:      {kind: OperationKindI32TruncF64S, sig: signature_F64_I32},
	wasm.OpcodeI32TruncF64U:      {kind: OperationKindI32TruncF64U, sig: signature_F64_I32},
	wasm.OpcodeI64ExtendI32S:     {kind: OperationKindI64Extend32S, sig: signature_I32_I64},
	wasm.OpcodeI64ExtendI32U:     {sig: signature_I32_I64, noop: true},
	wasm.OpcodeI64TruncF32S:      {kind: OperationKindI64TruncF32S, sig: signature_F32_I64},
	wasm.OpcodeI64TruncF32U:      {kind: OperationKindI64TruncF32U, sig: signature_F32_I64},
	wasm.OpcodeI64TruncF64S:      {kind: OperationKindI64TruncF64S, sig: signature_F64_I64},
	wasm.OpcodeI64TruncF64U:      {kind: OperationKindI64TruncF64U, sig: signature_F64_I64},
	wasm.OpcodeF32ConvertI32S:    {kind: OperationKindF32ConvertI32S, sig: signature_I32_F32},
	wasm.OpcodeF32ConvertI32U:    {kind: OperationKindF32ConvertI32U, sig: signature_I32_F32},
	wasm.OpcodeF32ConvertI64S:    {kind: OperationKindF32ConvertI64S, sig: signature_I64_F32},
	wasm.OpcodeF32ConvertI64U:    {kind: OperationKindF32ConvertI64U, sig: signature_I64_F32},
	wasm.OpcodeF32DemoteF64:      {kind: OperationKindF32DemoteF64, sig: signature_F64_F32},
	wasm.OpcodeF64ConvertI32S:    {kind: OperationKindF64ConvertI32S, sig: signature_I32_F64},
	wasm.OpcodeF64ConvertI32U:    {kind: OperationKindF64ConvertI32U, sig: signature_I32_F64},
	wasm.OpcodeF64ConvertI64S:    {kind: OperationKindF64ConvertI64S, sig: signature_I64_F64},
	wasm.OpcodeF64ConvertI64U:    {kind: OperationKindF64ConvertI64U, sig: signature_I64_F64},
	wasm.OpcodeF64PromoteF32:     {kind: OperationKindF64PromoteF32, sig: signature_F32_F64},
	wasm.OpcodeI32ReinterpretF32: {sig: signature_F32_I32, noop: true},
	wasm.OpcodeI64ReinterpretF64: {sig: signature_F64_I64, noop: true},
	wasm.OpcodeF32ReinterpretI32: {sig: signature_I32_F32, noop: true},
	wasm.OpcodeF64ReinterpretI64: {sig: signature_I64_F64, noop: true},

	wasm.OpcodeI32Extend8S:  {kind: OperationKindI32Extend8S, sig: signature_I32_I32, feature: wasm.FeatureSignExtensionOps},
	wasm.OpcodeI32Extend16S: {kind: OperationKindI32Extend16S, sig: signature_I32_I32, feature: wasm.FeatureSignExtensionOps},
	wasm.OpcodeI64Extend8S:  {kind: OperationKindI64Extend8S, sig: signature_I64_I64, feature: wasm.FeatureSignExtensionOps},
	wasm.OpcodeI64Extend16S: {kind: OperationKindI64Extend16S, sig: signature_I64_I64, feature: wasm.FeatureSignExtensionOps},
	wasm.OpcodeI64Extend32S: {kind: OperationKindI64Extend32S, sig: signature_I64_I64, feature: wasm.FeatureSignExtensionOps},
}

var truncSatOps = [...]numeric{
	wasm.OpcodeMiscI32TruncSatF32S: {kind: OperationKindI32TruncSatF32S, sig: signature_F32_I32},
	wasm.OpcodeMiscI32TruncSatF32U: {kind: OperationKindI32TruncSatF32U, sig: signature_F32_I32},
	wasm.OpcodeMiscI32TruncSatF64S: {kind: OperationKindI32TruncSatF64S, sig: signature_F64_I32},
	wasm.OpcodeMiscI32TruncSatF64U: {kind: OperationKindI32TruncSatF64U, sig: signature_F64_I32},
	wasm.OpcodeMiscI64TruncSatF32S: {kind: OperationKindI64TruncSatF32S, sig: signature_F32_I64},
	wasm.OpcodeMiscI64TruncSatF32U: {kind: OperationKindI64TruncSatF32U, sig: signature_F32_I64},
	wasm.OpcodeMiscI64TruncSatF64S: {kind: OperationKindI64TruncSatF64S, sig: signature_F64_I64},
	wasm.OpcodeMiscI64TruncSatF64U: {kind: OperationKindI64TruncSatF64U, sig: signature_F64_I64},
}

// memoryAccess is a load or store. alignment is the log2 of the access width, which is the maximum alignment hint.
type memoryAccess struct {
	kind      OperationKind
	valType   wasm.ValueType
	alignment uint32
	store     bool
}

var memoryOps = map[wasm.Opcode]memoryAccess{
	wasm.OpcodeI32Load:    {kind: OperationKindLoad32, valType: i32, alignment: 2},
	wasm.OpcodeI64Load:    {kind: OperationKindLoad64, valType: i64, alignment: 3},
	wasm.OpcodeF32Load:    {kind: OperationKindLoad32, valType: f32, alignment: 2},
	wasm.OpcodeF64Load:    {kind: OperationKindLoad64, valType: f64, alignment: 3},
	wasm.OpcodeI32Load8S:  {kind: OperationKindLoad8S32, valType: i32, alignment: 0},
	wasm.OpcodeI32Load8U:  {kind: OperationKindLoad8U, valType: i32, alignment: 0},
	wasm.OpcodeI32Load16S: {kind: OperationKindLoad16S32, valType: i32, alignment: 1},
	wasm.OpcodeI32Load16U: {kind: OperationKindLoad16U, valType: i32, alignment: 1},
	wasm.OpcodeI64Load8S:  {kind: OperationKindLoad8S64, valType: i64, alignment: 0},
	wasm.OpcodeI64Load8U:  {kind: OperationKindLoad8U, valType: i64, alignment: 0},
	wasm.OpcodeI64Load16S: {kind: OperationKindLoad16S64, valType: i64, alignment: 1},
	wasm.OpcodeI64Load16U: {kind: OperationKindLoad16U, valType: i64, alignment: 1},
	wasm.OpcodeI64Load32S: {kind: OperationKindLoad32S64, valType: i64, alignment: 2},
	wasm.OpcodeI64Load32U: {kind: OperationKindLoad32, valType: i64, alignment: 2},
	wasm.OpcodeI32Store:   {kind: OperationKindStore32, valType: i32, alignment: 2, store: true},
	wasm.OpcodeI64Store:   {kind: OperationKindStore64, valType: i64, alignment: 3, store: true},
	wasm.OpcodeF32Store:   {kind: OperationKindStore32, valType: f32, alignment: 2, store: true},
	wasm.OpcodeF64Store:   {kind: OperationKindStore64, valType: f64, alignment: 3, store: true},
	wasm.OpcodeI32Store8:  {kind: OperationKindStore8, valType: i32, alignment: 0, store: true},
	wasm.OpcodeI32Store16: {kind: OperationKindStore16, valType: i32, alignment: 1, store: true},
	wasm.OpcodeI64Store8:  {kind: OperationKindStore8, valType: i64, alignment: 0, store: true},
	wasm.OpcodeI64Store16: {kind: OperationKindStore16, valType: i64, alignment: 1, store: true},
	wasm.OpcodeI64Store32: {kind: OperationKindStore32, valType: i64, alignment: 2, store: true},
}
