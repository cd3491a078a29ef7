package ast

import (
	"fmt"

	"github.com/chazu/retrograde/pkg/pyc"
)

// BinOp enumerates every binary operator the tree can express. The same
// enumeration serves the pre-unification dialects (one opcode per operator)
// and the post-unification dialect (one opcode, operand-selected), as well
// as comparisons.
type BinOp int

const (
	BinInvalid BinOp = iota

	BinAdd
	BinSubtract
	BinMultiply
	BinDivide
	BinTrueDivide
	BinFloorDivide
	BinModulo
	BinPower
	BinLshift
	BinRshift
	BinAnd
	BinOr
	BinXor
	BinMatMultiply
	BinAttr // attribute access, src.attr
	BinLogicalAnd
	BinLogicalOr

	// Augmented forms
	BinIPAdd
	BinIPSubtract
	BinIPMultiply
	BinIPDivide
	BinIPTrueDivide
	BinIPFloorDivide
	BinIPModulo
	BinIPPower
	BinIPLshift
	BinIPRshift
	BinIPAnd
	BinIPOr
	BinIPXor
	BinIPMatMultiply

	// Comparisons
	CmpLess
	CmpLessEqual
	CmpEqual
	CmpNotEqual
	CmpGreater
	CmpGreaterEqual
	CmpIn
	CmpNotIn
	CmpIs
	CmpIsNot
	CmpExcMatch
)

var binOpSymbols = map[BinOp]string{
	BinInvalid:       "<INVALID>",
	BinAdd:           "+",
	BinSubtract:      "-",
	BinMultiply:      "*",
	BinDivide:        "/",
	BinTrueDivide:    "/",
	BinFloorDivide:   "//",
	BinModulo:        "%",
	BinPower:         "**",
	BinLshift:        "<<",
	BinRshift:        ">>",
	BinAnd:           "&",
	BinOr:            "|",
	BinXor:           "^",
	BinMatMultiply:   "@",
	BinAttr:          ".",
	BinLogicalAnd:    "and",
	BinLogicalOr:     "or",
	BinIPAdd:         "+=",
	BinIPSubtract:    "-=",
	BinIPMultiply:    "*=",
	BinIPDivide:      "/=",
	BinIPTrueDivide:  "/=",
	BinIPFloorDivide: "//=",
	BinIPModulo:      "%=",
	BinIPPower:       "**=",
	BinIPLshift:      "<<=",
	BinIPRshift:      ">>=",
	BinIPAnd:         "&=",
	BinIPOr:          "|=",
	BinIPXor:         "^=",
	BinIPMatMultiply: "@=",
	CmpLess:          "<",
	CmpLessEqual:     "<=",
	CmpEqual:         "==",
	CmpNotEqual:      "!=",
	CmpGreater:       ">",
	CmpGreaterEqual:  ">=",
	CmpIn:            "in",
	CmpNotIn:         "not in",
	CmpIs:            "is",
	CmpIsNot:         "is not",
	CmpExcMatch:      "exception match",
}

// String returns the source spelling of the operator.
func (op BinOp) String() string {
	if s, ok := binOpSymbols[op]; ok {
		return s
	}
	return fmt.Sprintf("BinOp(%d)", int(op))
}

// IsAugmented reports whether the operator is an in-place form.
func (op BinOp) IsAugmented() bool {
	return op >= BinIPAdd && op <= BinIPMatMultiply
}

// IsCompare reports whether the operator is a comparison.
func (op BinOp) IsCompare() bool {
	return op >= CmpLess && op <= CmpExcMatch
}

// binOpFromOpcode maps pre-unification operator opcodes to BinOp.
var binOpFromOpcode = map[pyc.Opcode]BinOp{
	pyc.OpBinaryAdd:             BinAdd,
	pyc.OpBinarySubtract:        BinSubtract,
	pyc.OpBinaryMultiply:        BinMultiply,
	pyc.OpBinaryDivide:          BinDivide,
	pyc.OpBinaryTrueDivide:      BinTrueDivide,
	pyc.OpBinaryFloorDivide:     BinFloorDivide,
	pyc.OpBinaryModulo:          BinModulo,
	pyc.OpBinaryPower:           BinPower,
	pyc.OpBinaryLshift:          BinLshift,
	pyc.OpBinaryRshift:          BinRshift,
	pyc.OpBinaryAnd:             BinAnd,
	pyc.OpBinaryOr:              BinOr,
	pyc.OpBinaryXor:             BinXor,
	pyc.OpBinaryMatrixMultiply:  BinMatMultiply,
	pyc.OpInplaceAdd:            BinIPAdd,
	pyc.OpInplaceSubtract:       BinIPSubtract,
	pyc.OpInplaceMultiply:       BinIPMultiply,
	pyc.OpInplaceDivide:         BinIPDivide,
	pyc.OpInplaceTrueDivide:     BinIPTrueDivide,
	pyc.OpInplaceFloorDivide:    BinIPFloorDivide,
	pyc.OpInplaceModulo:         BinIPModulo,
	pyc.OpInplacePower:          BinIPPower,
	pyc.OpInplaceLshift:         BinIPLshift,
	pyc.OpInplaceRshift:         BinIPRshift,
	pyc.OpInplaceAnd:            BinIPAnd,
	pyc.OpInplaceOr:             BinIPOr,
	pyc.OpInplaceXor:            BinIPXor,
	pyc.OpInplaceMatrixMultiply: BinIPMatMultiply,
}

// BinOpFromOpcode resolves a pre-unification operator opcode.
// Returns BinInvalid for opcodes that are not operators.
func BinOpFromOpcode(op pyc.Opcode) BinOp {
	return binOpFromOpcode[op]
}

// binOpFromOperand maps the post-unification operator selector to BinOp.
// The selector numbering interleaves plain and in-place forms.
var binOpFromOperand = []BinOp{
	BinAdd,
	BinAnd,
	BinFloorDivide,
	BinLshift,
	BinMatMultiply,
	BinMultiply,
	BinModulo,
	BinOr,
	BinPower,
	BinRshift,
	BinSubtract,
	BinTrueDivide,
	BinXor,
	BinIPAdd,
	BinIPAnd,
	BinIPFloorDivide,
	BinIPLshift,
	BinIPMatMultiply,
	BinIPMultiply,
	BinIPModulo,
	BinIPOr,
	BinIPPower,
	BinIPRshift,
	BinIPSubtract,
	BinIPTrueDivide,
	BinIPXor,
}

// BinOpFromOperand resolves the unified-era operator selector.
// Out-of-range selectors return BinInvalid.
func BinOpFromOperand(operand int) BinOp {
	if operand < 0 || operand >= len(binOpFromOperand) {
		return BinInvalid
	}
	return binOpFromOperand[operand]
}

// compareFromOperand maps COMPARE_OP operands to comparison operators.
var compareFromOperand = []BinOp{
	CmpLess,
	CmpLessEqual,
	CmpEqual,
	CmpNotEqual,
	CmpGreater,
	CmpGreaterEqual,
	CmpIn,
	CmpNotIn,
	CmpIs,
	CmpIsNot,
	CmpExcMatch,
}

// CompareFromOperand resolves a COMPARE_OP operand.
// Out-of-range selectors return BinInvalid.
func CompareFromOperand(operand int) BinOp {
	if operand < 0 || operand >= len(compareFromOperand) {
		return BinInvalid
	}
	return compareFromOperand[operand]
}

// UnaryOp enumerates unary operators.
type UnaryOp int

const (
	UnaryPositive UnaryOp = iota
	UnaryNegative
	UnaryNot
	UnaryInvert
)

var unaryOpSymbols = map[UnaryOp]string{
	UnaryPositive: "+",
	UnaryNegative: "-",
	UnaryNot:      "not",
	UnaryInvert:   "~",
}

// String returns the source spelling of the operator.
func (op UnaryOp) String() string {
	if s, ok := unaryOpSymbols[op]; ok {
		return s
	}
	return fmt.Sprintf("UnaryOp(%d)", int(op))
}

// UnaryOpFromOpcode resolves a unary operator opcode.
func UnaryOpFromOpcode(op pyc.Opcode) (UnaryOp, bool) {
	switch op {
	case pyc.OpUnaryPositive:
		return UnaryPositive, true
	case pyc.OpUnaryNegative:
		return UnaryNegative, true
	case pyc.OpUnaryNot:
		return UnaryNot, true
	case pyc.OpUnaryInvert:
		return UnaryInvert, true
	}
	return 0, false
}
