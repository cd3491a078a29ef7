package ast

import (
	"testing"

	"github.com/chazu/retrograde/pkg/pyc"
)

func TestConstructorsRejectNil(t *testing.T) {
	tests := []struct {
		name string
		fn   func()
	}{
		{"NewObject", func() { NewObject(nil) }},
		{"NewBinary left", func() { NewBinary(nil, NewName("x"), BinAdd) }},
		{"NewBinary right", func() { NewBinary(NewName("x"), nil, BinAdd) }},
		{"NewUnary", func() { NewUnary(nil, UnaryNot) }},
		{"NewSubscript", func() { NewSubscript(nil, NewName("i")) }},
		{"NewCall", func() { NewCall(nil, nil, nil) }},
		{"NewStore", func() { NewStore(nil, NewName("x")) }},
		{"NewTernary", func() { NewTernary(nil, NewName("a"), NewName("b")) }},
		{"Block append", func() { NewBlock(BlockMain, 0).Append(nil) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("no panic on nil child")
				}
			}()
			tt.fn()
		})
	}
}

func TestSliceFormValidation(t *testing.T) {
	one := NewObject(pyc.NewInt(1))
	two := NewObject(pyc.NewInt(2))

	// consistent form/bound combinations construct fine
	NewSlice(SliceEmpty, nil, nil)
	NewSlice(SliceStartOnly, one, nil)
	NewSlice(SliceEndOnly, nil, two)
	NewSlice(SliceFull, one, two)

	defer func() {
		if recover() == nil {
			t.Error("no panic on a bound the form excludes")
		}
	}()
	NewSlice(SliceEmpty, one, nil)
}

func TestBlockEditing(t *testing.T) {
	b := NewBlock(BlockIf, 10)
	if b.Kind != BlockIf || b.End != 10 {
		t.Fatalf("NewBlock = %+v", b)
	}
	if b.Last() != nil || b.Size() != 0 {
		t.Error("fresh block is not empty")
	}

	n1 := NewName("a")
	n2 := NewName("b")
	b.Append(n1)
	b.Append(n2)
	if b.Size() != 2 || b.Last() != Node(n2) {
		t.Errorf("Size = %d, Last = %v", b.Size(), b.Last())
	}

	b.RemoveLast()
	if b.Size() != 1 || b.Last() != Node(n1) {
		t.Errorf("after RemoveLast: Size = %d, Last = %v", b.Size(), b.Last())
	}
	b.RemoveLast()
	b.RemoveLast() // removing from an empty block is a no-op
	if b.Size() != 0 {
		t.Errorf("Size = %d, want 0", b.Size())
	}
}

func TestChainStoreAppend(t *testing.T) {
	cs := NewChainStore(NewName("v"))
	cs.Append(NewName("a"))
	cs.Append(NewName("b"))
	if len(cs.Dests) != 2 {
		t.Fatalf("Dests = %d, want 2", len(cs.Dests))
	}
}

func TestMapAdd(t *testing.T) {
	m := &Map{}
	m.Add(NewObject(pyc.NewString("k")), NewObject(pyc.NewInt(1)))
	if len(m.Pairs) != 1 {
		t.Fatalf("Pairs = %d, want 1", len(m.Pairs))
	}
}

func TestConstMapPairing(t *testing.T) {
	keys := NewObject(pyc.NewTuple(pyc.NewString("a"), pyc.NewString("b")))
	vals := []Expr{NewObject(pyc.NewInt(1)), NewObject(pyc.NewInt(2))}
	cm := NewConstMap(keys, vals)
	if len(cm.Values) != 2 {
		t.Fatalf("Values = %d, want 2", len(cm.Values))
	}

	defer func() {
		if recover() == nil {
			t.Error("no panic on nil key tuple")
		}
	}()
	NewConstMap(nil, vals)
}

func TestFunctionCodeObject(t *testing.T) {
	code := &pyc.Code{Name: "f"}
	fn := NewFunction(NewObject(pyc.NewCodeObject(code)), nil)
	if fn.CodeObject() != code {
		t.Error("CodeObject did not unwrap the constant")
	}

	fn = NewFunction(NewName("dynamic"), nil)
	if fn.CodeObject() != nil {
		t.Error("CodeObject on a non-constant code expression should be nil")
	}
}

func TestBinOpFromOpcode(t *testing.T) {
	tests := []struct {
		op   pyc.Opcode
		want BinOp
	}{
		{pyc.OpBinaryAdd, BinAdd},
		{pyc.OpBinaryMatrixMultiply, BinMatMultiply},
		{pyc.OpInplaceAdd, BinIPAdd},
		{pyc.OpInplaceXor, BinIPXor},
		{pyc.OpLoadConst, BinInvalid},
	}
	for _, tt := range tests {
		if got := BinOpFromOpcode(tt.op); got != tt.want {
			t.Errorf("BinOpFromOpcode(%s) = %v, want %v", tt.op, got, tt.want)
		}
	}
}

func TestBinOpFromOperand(t *testing.T) {
	tests := []struct {
		operand int
		want    BinOp
	}{
		{0, BinAdd},
		{5, BinMultiply},
		{10, BinSubtract},
		{13, BinIPAdd},
		{25, BinIPXor},
		{-1, BinInvalid},
		{26, BinInvalid},
	}
	for _, tt := range tests {
		if got := BinOpFromOperand(tt.operand); got != tt.want {
			t.Errorf("BinOpFromOperand(%d) = %v, want %v", tt.operand, got, tt.want)
		}
	}
}

func TestCompareFromOperand(t *testing.T) {
	tests := []struct {
		operand int
		want    BinOp
	}{
		{0, CmpLess},
		{2, CmpEqual},
		{3, CmpNotEqual},
		{10, CmpExcMatch},
		{11, BinInvalid},
		{-1, BinInvalid},
	}
	for _, tt := range tests {
		if got := CompareFromOperand(tt.operand); got != tt.want {
			t.Errorf("CompareFromOperand(%d) = %v, want %v", tt.operand, got, tt.want)
		}
	}
}

func TestOperatorClasses(t *testing.T) {
	if !BinIPAdd.IsAugmented() || BinAdd.IsAugmented() || CmpLess.IsAugmented() {
		t.Error("IsAugmented misclassifies")
	}
	if !CmpExcMatch.IsCompare() || BinIPAdd.IsCompare() || BinAttr.IsCompare() {
		t.Error("IsCompare misclassifies")
	}
}

func TestOperatorSpelling(t *testing.T) {
	tests := []struct {
		op   BinOp
		want string
	}{
		{BinAdd, "+"},
		{BinFloorDivide, "//"},
		{BinIPPower, "**="},
		{CmpNotIn, "not in"},
		{BinLogicalAnd, "and"},
		{BinLogicalOr, "or"},
	}
	for _, tt := range tests {
		if got := tt.op.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", int(tt.op), got, tt.want)
		}
	}
	if UnaryInvert.String() != "~" || UnaryNot.String() != "not" {
		t.Error("unary spelling wrong")
	}
}

func TestUnaryOpFromOpcode(t *testing.T) {
	if op, ok := UnaryOpFromOpcode(pyc.OpUnaryNegative); !ok || op != UnaryNegative {
		t.Errorf("got (%v, %v)", op, ok)
	}
	if _, ok := UnaryOpFromOpcode(pyc.OpBinaryAdd); ok {
		t.Error("BINARY_ADD resolved as unary")
	}
}
