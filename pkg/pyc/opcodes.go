package pyc

import "fmt"

// Opcode is a dialect-independent instruction identifier. Raw instruction
// bytes mean different things in different releases; the decoder maps them
// onto this one symbolic set so the decompiler never sees raw encodings.
type Opcode int

const (
	OpInvalid Opcode = iota

	// ========================================================================
	// Stack manipulation
	// ========================================================================

	OpNop
	OpPopTop
	OpRotTwo
	OpRotThree
	OpDupTop
	OpDupTopTwo
	OpCache // post-3.10 inline cache slot, decoded and discarded

	// ========================================================================
	// Loads and stores
	// ========================================================================

	OpLoadConst
	OpLoadName
	OpLoadFast
	OpLoadGlobal
	OpLoadAttr
	OpStoreName
	OpStoreFast
	OpStoreGlobal
	OpStoreAttr
	OpStoreSubscr
	OpPushNull // post-unification call setup marker

	// ========================================================================
	// Unary operators
	// ========================================================================

	OpUnaryPositive
	OpUnaryNegative
	OpUnaryNot
	OpUnaryInvert

	// ========================================================================
	// Binary operators, pre-unification era (one opcode per operator)
	// ========================================================================

	OpBinaryAdd
	OpBinarySubtract
	OpBinaryMultiply
	OpBinaryDivide
	OpBinaryTrueDivide
	OpBinaryFloorDivide
	OpBinaryModulo
	OpBinaryPower
	OpBinaryLshift
	OpBinaryRshift
	OpBinaryAnd
	OpBinaryOr
	OpBinaryXor
	OpBinaryMatrixMultiply

	OpInplaceAdd
	OpInplaceSubtract
	OpInplaceMultiply
	OpInplaceDivide
	OpInplaceTrueDivide
	OpInplaceFloorDivide
	OpInplaceModulo
	OpInplacePower
	OpInplaceLshift
	OpInplaceRshift
	OpInplaceAnd
	OpInplaceOr
	OpInplaceXor
	OpInplaceMatrixMultiply

	// Post-unification era: one opcode, operand selects the operator.
	OpBinaryOp

	OpBinarySubscr
	OpCompareOp

	// ========================================================================
	// Container builders
	// ========================================================================

	OpBuildTuple
	OpBuildList
	OpBuildSet
	OpBuildMap
	OpBuildConstKeyMap
	OpBuildString
	OpBuildSlice
	OpStoreMap
	OpFormatValue

	// ========================================================================
	// Calls, functions, classes
	// ========================================================================

	OpCallFunction // operand packs positional (low byte) and keyword (high byte) counts
	OpKwNames      // associates a name tuple with the next call's keyword values
	OpPrecall      // post-unification call setup, no stack effect here
	OpMakeFunction
	OpBuildFunction // earliest dialects only
	OpBuildClass    // earliest dialects only
	OpLoadBuildClass
	OpReturnValue
	OpYieldValue

	// ========================================================================
	// Control flow
	// ========================================================================

	OpJumpForward
	OpJumpAbsolute
	OpPopJumpIfFalse
	OpPopJumpIfTrue
	OpJumpIfFalseOrPop
	OpJumpIfTrueOrPop
	OpGetIter
	OpForIter
	OpSetupLoop
	OpBreakLoop
	OpContinueLoop
	OpPopBlock
	OpSetupExcept
	OpSetupFinally
	OpEndFinally
	OpPopExcept
	OpSetupWith
	OpWithCleanup
	OpRaiseVarargs
	OpResume // post-3.10 frame entry marker, no effect

	// ========================================================================
	// Imports and unpacking
	// ========================================================================

	OpImportName
	OpImportFrom
	OpImportStar
	OpUnpackSequence

	OpExtendedArg
)

// opcodeNames maps symbolic opcodes to their canonical mnemonic.
var opcodeNames = map[Opcode]string{
	OpInvalid: "INVALID",

	OpNop:       "NOP",
	OpPopTop:    "POP_TOP",
	OpRotTwo:    "ROT_TWO",
	OpRotThree:  "ROT_THREE",
	OpDupTop:    "DUP_TOP",
	OpDupTopTwo: "DUP_TOP_TWO",
	OpCache:     "CACHE",

	OpLoadConst:   "LOAD_CONST",
	OpLoadName:    "LOAD_NAME",
	OpLoadFast:    "LOAD_FAST",
	OpLoadGlobal:  "LOAD_GLOBAL",
	OpLoadAttr:    "LOAD_ATTR",
	OpStoreName:   "STORE_NAME",
	OpStoreFast:   "STORE_FAST",
	OpStoreGlobal: "STORE_GLOBAL",
	OpStoreAttr:   "STORE_ATTR",
	OpStoreSubscr: "STORE_SUBSCR",
	OpPushNull:    "PUSH_NULL",

	OpUnaryPositive: "UNARY_POSITIVE",
	OpUnaryNegative: "UNARY_NEGATIVE",
	OpUnaryNot:      "UNARY_NOT",
	OpUnaryInvert:   "UNARY_INVERT",

	OpBinaryAdd:             "BINARY_ADD",
	OpBinarySubtract:        "BINARY_SUBTRACT",
	OpBinaryMultiply:        "BINARY_MULTIPLY",
	OpBinaryDivide:          "BINARY_DIVIDE",
	OpBinaryTrueDivide:      "BINARY_TRUE_DIVIDE",
	OpBinaryFloorDivide:     "BINARY_FLOOR_DIVIDE",
	OpBinaryModulo:          "BINARY_MODULO",
	OpBinaryPower:           "BINARY_POWER",
	OpBinaryLshift:          "BINARY_LSHIFT",
	OpBinaryRshift:          "BINARY_RSHIFT",
	OpBinaryAnd:             "BINARY_AND",
	OpBinaryOr:              "BINARY_OR",
	OpBinaryXor:             "BINARY_XOR",
	OpBinaryMatrixMultiply:  "BINARY_MATRIX_MULTIPLY",
	OpInplaceAdd:            "INPLACE_ADD",
	OpInplaceSubtract:       "INPLACE_SUBTRACT",
	OpInplaceMultiply:       "INPLACE_MULTIPLY",
	OpInplaceDivide:         "INPLACE_DIVIDE",
	OpInplaceTrueDivide:     "INPLACE_TRUE_DIVIDE",
	OpInplaceFloorDivide:    "INPLACE_FLOOR_DIVIDE",
	OpInplaceModulo:         "INPLACE_MODULO",
	OpInplacePower:          "INPLACE_POWER",
	OpInplaceLshift:         "INPLACE_LSHIFT",
	OpInplaceRshift:         "INPLACE_RSHIFT",
	OpInplaceAnd:            "INPLACE_AND",
	OpInplaceOr:             "INPLACE_OR",
	OpInplaceXor:            "INPLACE_XOR",
	OpInplaceMatrixMultiply: "INPLACE_MATRIX_MULTIPLY",
	OpBinaryOp:              "BINARY_OP",
	OpBinarySubscr:          "BINARY_SUBSCR",
	OpCompareOp:             "COMPARE_OP",

	OpBuildTuple:       "BUILD_TUPLE",
	OpBuildList:        "BUILD_LIST",
	OpBuildSet:         "BUILD_SET",
	OpBuildMap:         "BUILD_MAP",
	OpBuildConstKeyMap: "BUILD_CONST_KEY_MAP",
	OpBuildString:      "BUILD_STRING",
	OpBuildSlice:       "BUILD_SLICE",
	OpStoreMap:         "STORE_MAP",
	OpFormatValue:      "FORMAT_VALUE",

	OpCallFunction:   "CALL_FUNCTION",
	OpKwNames:        "KW_NAMES",
	OpPrecall:        "PRECALL",
	OpMakeFunction:   "MAKE_FUNCTION",
	OpBuildFunction:  "BUILD_FUNCTION",
	OpBuildClass:     "BUILD_CLASS",
	OpLoadBuildClass: "LOAD_BUILD_CLASS",
	OpReturnValue:    "RETURN_VALUE",
	OpYieldValue:     "YIELD_VALUE",

	OpJumpForward:      "JUMP_FORWARD",
	OpJumpAbsolute:     "JUMP_ABSOLUTE",
	OpPopJumpIfFalse:   "POP_JUMP_IF_FALSE",
	OpPopJumpIfTrue:    "POP_JUMP_IF_TRUE",
	OpJumpIfFalseOrPop: "JUMP_IF_FALSE_OR_POP",
	OpJumpIfTrueOrPop:  "JUMP_IF_TRUE_OR_POP",
	OpGetIter:          "GET_ITER",
	OpForIter:          "FOR_ITER",
	OpSetupLoop:        "SETUP_LOOP",
	OpBreakLoop:        "BREAK_LOOP",
	OpContinueLoop:     "CONTINUE_LOOP",
	OpPopBlock:         "POP_BLOCK",
	OpSetupExcept:      "SETUP_EXCEPT",
	OpSetupFinally:     "SETUP_FINALLY",
	OpEndFinally:       "END_FINALLY",
	OpPopExcept:        "POP_EXCEPT",
	OpSetupWith:        "SETUP_WITH",
	OpWithCleanup:      "WITH_CLEANUP",
	OpRaiseVarargs:     "RAISE_VARARGS",
	OpResume:           "RESUME",

	OpImportName:     "IMPORT_NAME",
	OpImportFrom:     "IMPORT_FROM",
	OpImportStar:     "IMPORT_STAR",
	OpUnpackSequence: "UNPACK_SEQUENCE",

	OpExtendedArg: "EXTENDED_ARG",
}

// String returns the canonical mnemonic for the opcode.
func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return fmt.Sprintf("Opcode(%d)", int(op))
}

// IsConditionalJump reports whether the opcode branches on the top of stack.
func (op Opcode) IsConditionalJump() bool {
	switch op {
	case OpPopJumpIfFalse, OpPopJumpIfTrue, OpJumpIfFalseOrPop, OpJumpIfTrueOrPop:
		return true
	}
	return false
}

// IsJump reports whether the opcode transfers control.
func (op Opcode) IsJump() bool {
	switch op {
	case OpJumpForward, OpJumpAbsolute, OpForIter, OpContinueLoop:
		return true
	}
	return op.IsConditionalJump()
}

// HasJumpTarget reports whether the operand encodes a code position.
func (op Opcode) HasJumpTarget() bool {
	switch op {
	case OpSetupLoop, OpSetupExcept, OpSetupFinally, OpSetupWith:
		return true
	}
	return op.IsJump()
}

// IsBinaryOp reports whether the opcode is a pre-unification binary or
// augmented operator.
func (op Opcode) IsBinaryOp() bool {
	return op >= OpBinaryAdd && op <= OpInplaceMatrixMultiply
}
