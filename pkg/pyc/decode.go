package pyc

import (
	"errors"
	"fmt"
)

// The decoder maps raw instruction bytes onto the symbolic opcode set, one
// numeric table per dialect era. Adding a dialect means adding a table, not
// threading version checks through the decompiler.
//
// Three eras are supported:
//   - classic (2.x): one opcode byte, operands are 16-bit little-endian and
//     only present for opcodes at or above the have-argument threshold
//   - wordcode (3.6 through 3.10): every instruction is two bytes
//   - unified (3.11+): wordcode plus operator unification (BINARY_OP),
//     KW_NAMES call protocol, and inline cache slots

// ErrUnsupportedDialect is returned when no opcode table covers the version.
var ErrUnsupportedDialect = errors.New("unsupported bytecode dialect")

// ErrTruncated is returned when the instruction stream ends mid-instruction.
var ErrTruncated = errors.New("truncated instruction stream")

const classicHaveArgument = 90

type dialectTable struct {
	name     string
	wordcode bool
	toSym    [256]Opcode
	fromSym  map[Opcode]byte
}

func newDialectTable(name string, wordcode bool, ops map[byte]Opcode) *dialectTable {
	t := &dialectTable{
		name:     name,
		wordcode: wordcode,
		fromSym:  make(map[Opcode]byte, len(ops)),
	}
	for raw, sym := range ops {
		t.toSym[raw] = sym
		t.fromSym[sym] = raw
	}
	return t
}

// classicOps is the 2.x era table (CPython 2.7 numbering).
var classicOps = newDialectTable("classic", false, map[byte]Opcode{
	1:   OpPopTop,
	2:   OpRotTwo,
	3:   OpRotThree,
	4:   OpDupTop,
	9:   OpNop,
	10:  OpUnaryPositive,
	11:  OpUnaryNegative,
	12:  OpUnaryNot,
	15:  OpUnaryInvert,
	19:  OpBinaryPower,
	20:  OpBinaryMultiply,
	21:  OpBinaryDivide,
	22:  OpBinaryModulo,
	23:  OpBinaryAdd,
	24:  OpBinarySubtract,
	25:  OpBinarySubscr,
	26:  OpBinaryFloorDivide,
	27:  OpBinaryTrueDivide,
	28:  OpInplaceFloorDivide,
	29:  OpInplaceTrueDivide,
	54:  OpStoreMap,
	55:  OpInplaceAdd,
	56:  OpInplaceSubtract,
	57:  OpInplaceMultiply,
	58:  OpInplaceDivide,
	59:  OpInplaceModulo,
	60:  OpStoreSubscr,
	62:  OpBinaryLshift,
	63:  OpBinaryRshift,
	64:  OpBinaryAnd,
	65:  OpBinaryXor,
	66:  OpBinaryOr,
	67:  OpInplacePower,
	68:  OpGetIter,
	75:  OpInplaceLshift,
	76:  OpInplaceRshift,
	77:  OpInplaceAnd,
	78:  OpInplaceXor,
	79:  OpInplaceOr,
	80:  OpBreakLoop,
	81:  OpWithCleanup,
	83:  OpReturnValue,
	84:  OpImportStar,
	86:  OpYieldValue,
	87:  OpPopBlock,
	88:  OpEndFinally,
	89:  OpBuildClass,
	90:  OpStoreName,
	92:  OpUnpackSequence,
	93:  OpForIter,
	95:  OpStoreAttr,
	97:  OpStoreGlobal,
	100: OpLoadConst,
	101: OpLoadName,
	102: OpBuildTuple,
	103: OpBuildList,
	104: OpBuildSet,
	105: OpBuildMap,
	106: OpLoadAttr,
	107: OpCompareOp,
	108: OpImportName,
	109: OpImportFrom,
	110: OpJumpForward,
	111: OpJumpIfFalseOrPop,
	112: OpJumpIfTrueOrPop,
	113: OpJumpAbsolute,
	114: OpPopJumpIfFalse,
	115: OpPopJumpIfTrue,
	116: OpLoadGlobal,
	119: OpContinueLoop,
	120: OpSetupLoop,
	121: OpSetupExcept,
	122: OpSetupFinally,
	124: OpLoadFast,
	125: OpStoreFast,
	130: OpRaiseVarargs,
	131: OpCallFunction,
	132: OpMakeFunction,
	133: OpBuildSlice,
	143: OpSetupWith,
	145: OpExtendedArg,
})

// legacyOps is the 1.x era table. The earliest releases built functions and
// classes with dedicated opcodes instead of MAKE_FUNCTION/LOAD_BUILD_CLASS.
var legacyOps = newDialectTable("legacy", false, map[byte]Opcode{
	1:   OpPopTop,
	2:   OpRotTwo,
	3:   OpRotThree,
	4:   OpDupTop,
	10:  OpUnaryPositive,
	11:  OpUnaryNegative,
	12:  OpUnaryNot,
	15:  OpUnaryInvert,
	19:  OpBinaryPower,
	20:  OpBinaryMultiply,
	21:  OpBinaryDivide,
	22:  OpBinaryModulo,
	23:  OpBinaryAdd,
	24:  OpBinarySubtract,
	25:  OpBinarySubscr,
	26:  OpBuildFunction,
	60:  OpStoreSubscr,
	80:  OpBreakLoop,
	83:  OpReturnValue,
	87:  OpPopBlock,
	89:  OpBuildClass,
	90:  OpStoreName,
	92:  OpUnpackSequence,
	100: OpLoadConst,
	101: OpLoadName,
	102: OpBuildTuple,
	103: OpBuildList,
	105: OpBuildMap,
	106: OpLoadAttr,
	107: OpCompareOp,
	108: OpImportName,
	109: OpImportFrom,
	110: OpJumpForward,
	113: OpJumpAbsolute,
	114: OpPopJumpIfFalse,
	115: OpPopJumpIfTrue,
	116: OpLoadGlobal,
	120: OpSetupLoop,
	121: OpSetupExcept,
	122: OpSetupFinally,
	124: OpLoadFast,
	125: OpStoreFast,
	130: OpRaiseVarargs,
	131: OpCallFunction,
	133: OpBuildSlice,
})

// wordOps is the 3.6 through 3.10 era table (CPython 3.7 numbering).
var wordOps = newDialectTable("wordcode", true, map[byte]Opcode{
	1:   OpPopTop,
	2:   OpRotTwo,
	3:   OpRotThree,
	4:   OpDupTop,
	5:   OpDupTopTwo,
	9:   OpNop,
	10:  OpUnaryPositive,
	11:  OpUnaryNegative,
	12:  OpUnaryNot,
	15:  OpUnaryInvert,
	16:  OpBinaryMatrixMultiply,
	17:  OpInplaceMatrixMultiply,
	19:  OpBinaryPower,
	20:  OpBinaryMultiply,
	22:  OpBinaryModulo,
	23:  OpBinaryAdd,
	24:  OpBinarySubtract,
	25:  OpBinarySubscr,
	26:  OpBinaryFloorDivide,
	27:  OpBinaryTrueDivide,
	28:  OpInplaceFloorDivide,
	29:  OpInplaceTrueDivide,
	55:  OpInplaceAdd,
	56:  OpInplaceSubtract,
	57:  OpInplaceMultiply,
	59:  OpInplaceModulo,
	60:  OpStoreSubscr,
	62:  OpBinaryLshift,
	63:  OpBinaryRshift,
	64:  OpBinaryAnd,
	65:  OpBinaryXor,
	66:  OpBinaryOr,
	67:  OpInplacePower,
	68:  OpGetIter,
	71:  OpLoadBuildClass,
	75:  OpInplaceLshift,
	76:  OpInplaceRshift,
	77:  OpInplaceAnd,
	78:  OpInplaceXor,
	79:  OpInplaceOr,
	80:  OpBreakLoop,
	81:  OpWithCleanup,
	83:  OpReturnValue,
	84:  OpImportStar,
	86:  OpYieldValue,
	87:  OpPopBlock,
	88:  OpEndFinally,
	89:  OpPopExcept,
	90:  OpStoreName,
	92:  OpUnpackSequence,
	93:  OpForIter,
	95:  OpStoreAttr,
	97:  OpStoreGlobal,
	100: OpLoadConst,
	101: OpLoadName,
	102: OpBuildTuple,
	103: OpBuildList,
	104: OpBuildSet,
	105: OpBuildMap,
	106: OpLoadAttr,
	107: OpCompareOp,
	108: OpImportName,
	109: OpImportFrom,
	110: OpJumpForward,
	111: OpJumpIfFalseOrPop,
	112: OpJumpIfTrueOrPop,
	113: OpJumpAbsolute,
	114: OpPopJumpIfFalse,
	115: OpPopJumpIfTrue,
	116: OpLoadGlobal,
	119: OpContinueLoop,
	120: OpSetupLoop,
	121: OpSetupExcept,
	122: OpSetupFinally,
	124: OpLoadFast,
	125: OpStoreFast,
	130: OpRaiseVarargs,
	131: OpCallFunction,
	132: OpMakeFunction,
	133: OpBuildSlice,
	143: OpSetupWith,
	144: OpExtendedArg,
	155: OpFormatValue,
	156: OpBuildConstKeyMap,
	157: OpBuildString,
})

// unifiedOps is the 3.11+ era table.
var unifiedOps = newDialectTable("unified", true, map[byte]Opcode{
	0:   OpCache,
	1:   OpPopTop,
	2:   OpPushNull,
	9:   OpNop,
	10:  OpUnaryPositive,
	11:  OpUnaryNegative,
	12:  OpUnaryNot,
	15:  OpUnaryInvert,
	25:  OpBinarySubscr,
	60:  OpStoreSubscr,
	68:  OpGetIter,
	71:  OpLoadBuildClass,
	83:  OpReturnValue,
	86:  OpYieldValue,
	89:  OpPopExcept,
	90:  OpStoreName,
	92:  OpUnpackSequence,
	93:  OpForIter,
	95:  OpStoreAttr,
	97:  OpStoreGlobal,
	100: OpLoadConst,
	101: OpLoadName,
	102: OpBuildTuple,
	103: OpBuildList,
	104: OpBuildSet,
	105: OpBuildMap,
	106: OpLoadAttr,
	107: OpCompareOp,
	108: OpImportName,
	109: OpImportFrom,
	110: OpJumpForward,
	114: OpPopJumpIfFalse,
	115: OpPopJumpIfTrue,
	116: OpLoadGlobal,
	122: OpBinaryOp,
	124: OpLoadFast,
	125: OpStoreFast,
	130: OpRaiseVarargs,
	132: OpMakeFunction,
	133: OpBuildSlice,
	144: OpExtendedArg,
	151: OpResume,
	155: OpFormatValue,
	156: OpBuildConstKeyMap,
	157: OpBuildString,
	166: OpPrecall,
	171: OpCallFunction,
	172: OpKwNames,
})

// tableFor selects the dialect table covering a version, or nil.
func tableFor(v Version) *dialectTable {
	switch {
	case v.Major == 1:
		return legacyOps
	case v.Major == 2:
		return classicOps
	case v.Major == 3 && v.Minor >= 6 && v.Minor <= 10:
		return wordOps
	case v.Major == 3 && v.Minor >= 11:
		return unifiedOps
	default:
		return nil
	}
}

// Instruction is one decoded (opcode, operand, position) triple.
type Instruction struct {
	Opcode     Opcode
	Operand    int
	HasOperand bool
	RawByte    byte // original encoding, kept for diagnostics
	Pos        int  // offset of the first byte of this instruction
	Next       int  // offset of the following instruction
}

// Reader decodes one code object's instruction stream for one dialect.
type Reader struct {
	code    *Code
	version Version
	tab     *dialectTable
	pos     int
}

// NewReader creates a decoder over the code object's instruction bytes.
func NewReader(code *Code, v Version) (*Reader, error) {
	tab := tableFor(v)
	if tab == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDialect, v)
	}
	return &Reader{code: code, version: v, tab: tab}, nil
}

// AtEnd reports whether the whole stream has been decoded.
func (r *Reader) AtEnd() bool {
	return r.pos >= len(r.code.Bytecode)
}

// Pos returns the offset of the next undecoded instruction.
func (r *Reader) Pos() int {
	return r.pos
}

// Next decodes one instruction, folding any EXTENDED_ARG prefixes into the
// following instruction's operand. An opcode byte with no table entry is
// returned as OpInvalid with the raw byte preserved; only truncation is an
// error, since that indicates corrupt input rather than an unknown dialect
// construct.
func (r *Reader) Next() (Instruction, error) {
	code := r.code.Bytecode
	extended := 0
	for {
		if r.pos >= len(code) {
			return Instruction{}, fmt.Errorf("%w at offset %d", ErrTruncated, r.pos)
		}
		in := Instruction{Pos: r.pos, RawByte: code[r.pos]}
		in.Opcode = r.tab.toSym[in.RawByte] // unmapped bytes decode as OpInvalid

		if r.tab.wordcode {
			if r.pos+2 > len(code) {
				return Instruction{}, fmt.Errorf("%w at offset %d", ErrTruncated, r.pos)
			}
			in.Operand = extended<<8 | int(code[r.pos+1])
			in.HasOperand = true
			r.pos += 2
		} else if int(in.RawByte) >= classicHaveArgument {
			if r.pos+3 > len(code) {
				return Instruction{}, fmt.Errorf("%w at offset %d", ErrTruncated, r.pos)
			}
			in.Operand = extended<<16 | int(code[r.pos+1]) | int(code[r.pos+2])<<8
			in.HasOperand = true
			r.pos += 3
		} else {
			r.pos++
		}
		in.Next = r.pos

		if in.Opcode == OpExtendedArg {
			extended = in.Operand
			continue
		}
		return in, nil
	}
}

// jumpUnit returns the code-offset multiplier for jump operands.
// From 3.10 on, jump operands count instructions rather than bytes.
func (r *Reader) jumpUnit() int {
	if r.version.AtLeast(3, 10) {
		return 2
	}
	return 1
}

// isRelativeJump reports whether the operand is an offset from the following
// instruction rather than an absolute position.
func (r *Reader) isRelativeJump(op Opcode) bool {
	switch op {
	case OpJumpForward, OpForIter, OpSetupLoop, OpSetupExcept, OpSetupFinally, OpSetupWith:
		return true
	case OpPopJumpIfFalse, OpPopJumpIfTrue:
		// Conditional jumps became relative with the unified era.
		return r.version.AtLeast(3, 11)
	}
	return false
}

// Target resolves a jump instruction's operand to an absolute byte offset.
func (r *Reader) Target(in Instruction) int {
	delta := in.Operand * r.jumpUnit()
	if r.isRelativeJump(in.Opcode) {
		return in.Next + delta
	}
	return delta
}

// ---------------------------------------------------------------------------
// Assembler: the decoder's inverse, used by fixtures and tools
// ---------------------------------------------------------------------------

// Assembler emits instruction bytes for a dialect. It is the exact inverse
// of Reader for operands that fit without EXTENDED_ARG prefixes.
type Assembler struct {
	version Version
	tab     *dialectTable
	buf     []byte
}

// NewAssembler creates an assembler for the given dialect.
func NewAssembler(v Version) (*Assembler, error) {
	tab := tableFor(v)
	if tab == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDialect, v)
	}
	return &Assembler{version: v, tab: tab}, nil
}

// Pos returns the offset the next emitted instruction will start at.
func (a *Assembler) Pos() int {
	return len(a.buf)
}

// Bytes returns the assembled instruction stream.
func (a *Assembler) Bytes() []byte {
	return a.buf
}

func (a *Assembler) rawFor(op Opcode) byte {
	raw, ok := a.tab.fromSym[op]
	if !ok {
		panic(fmt.Sprintf("pyc: opcode %s not present in %s dialect", op, a.tab.name))
	}
	return raw
}

// Emit appends an instruction with no operand.
func (a *Assembler) Emit(op Opcode) int {
	pos := len(a.buf)
	raw := a.rawFor(op)
	a.buf = append(a.buf, raw)
	if a.tab.wordcode {
		a.buf = append(a.buf, 0)
	}
	return pos
}

// EmitArg appends an instruction with an operand.
// The operand must fit the encoding without EXTENDED_ARG.
func (a *Assembler) EmitArg(op Opcode, arg int) int {
	pos := len(a.buf)
	raw := a.rawFor(op)
	if a.tab.wordcode {
		if arg < 0 || arg > 0xFF {
			panic(fmt.Sprintf("pyc: operand %d out of range for wordcode", arg))
		}
		a.buf = append(a.buf, raw, byte(arg))
		return pos
	}
	if int(raw) < classicHaveArgument {
		panic(fmt.Sprintf("pyc: opcode %s takes no operand in %s dialect", op, a.tab.name))
	}
	if arg < 0 || arg > 0xFFFF {
		panic(fmt.Sprintf("pyc: operand %d out of range for classic encoding", arg))
	}
	a.buf = append(a.buf, raw, byte(arg), byte(arg>>8))
	return pos
}

// EmitJump appends a jump instruction whose operand resolves to target.
func (a *Assembler) EmitJump(op Opcode, target int) int {
	size := 3
	if a.tab.wordcode {
		size = 2
	}
	next := len(a.buf) + size
	unit := 1
	if a.version.AtLeast(3, 10) {
		unit = 2
	}
	rel := false
	switch op {
	case OpJumpForward, OpForIter, OpSetupLoop, OpSetupExcept, OpSetupFinally, OpSetupWith:
		rel = true
	case OpPopJumpIfFalse, OpPopJumpIfTrue:
		rel = a.version.AtLeast(3, 11)
	}
	operand := target
	if rel {
		operand = target - next
	}
	if operand%unit != 0 {
		panic(fmt.Sprintf("pyc: jump target %d not aligned to %d-byte units", target, unit))
	}
	return a.EmitArg(op, operand/unit)
}
