// Package ast defines the source-level tree the decompiler reconstructs
// from bytecode. Nodes are immutable once constructed; the two exceptions
// are the container nodes still under construction while their bytecode
// runs (Map accumulation, Block statement append).
package ast

import (
	"fmt"

	"github.com/chazu/retrograde/pkg/pyc"
)

// Node is the interface implemented by all tree nodes.
type Node interface {
	node() // marker method
}

// Expr is the interface for nodes that produce a value.
type Expr interface {
	Node
	expr() // marker method
}

// ---------------------------------------------------------------------------
// Leaf nodes
// ---------------------------------------------------------------------------

// Object wraps an immutable constant pool value. The same pool entry may be
// referenced from several Object nodes; the entry itself is never mutated.
type Object struct {
	Value *pyc.Object
}

func (n *Object) node() {}
func (n *Object) expr() {}

// NewObject wraps a constant pool value.
func NewObject(v *pyc.Object) *Object {
	if v == nil {
		panic("ast: nil constant in Object node")
	}
	return &Object{Value: v}
}

// IsNone reports whether the node wraps the none constant.
func (n *Object) IsNone() bool {
	return n.Value.IsNone()
}

// Name is an identifier reference (load or store target).
type Name struct {
	Ident string
}

func (n *Name) node() {}
func (n *Name) expr() {}

// NewName creates an identifier reference.
func NewName(ident string) *Name {
	return &Name{Ident: ident}
}

// LoadBuildClass is the sentinel pushed by the class-construction primitive.
// Its presence beneath a callee is what distinguishes a class definition
// from an ordinary call.
type LoadBuildClass struct{}

func (n *LoadBuildClass) node() {}
func (n *LoadBuildClass) expr() {}

// Unsupported substitutes for a construct the active dialect table cannot
// express: either a single unknown instruction or a whole abandoned
// code-object build.
type Unsupported struct {
	Pos int  // instruction offset, -1 for a whole code object
	Raw byte // raw opcode byte when a single instruction is at fault
}

func (n *Unsupported) node() {}
func (n *Unsupported) expr() {}

// ---------------------------------------------------------------------------
// Operators
// ---------------------------------------------------------------------------

// Binary combines two operands under one operator, including comparisons
// and augmented (in-place) forms.
type Binary struct {
	Left  Expr
	Right Expr
	Op    BinOp
}

func (n *Binary) node() {}
func (n *Binary) expr() {}

// NewBinary creates a binary operation node. Both children are required.
func NewBinary(left, right Expr, op BinOp) *Binary {
	if left == nil || right == nil {
		panic("ast: nil child in Binary node")
	}
	return &Binary{Left: left, Right: right, Op: op}
}

// Unary applies one operator to one operand.
type Unary struct {
	Operand Expr
	Op      UnaryOp
}

func (n *Unary) node() {}
func (n *Unary) expr() {}

// NewUnary creates a unary operation node.
func NewUnary(operand Expr, op UnaryOp) *Unary {
	if operand == nil {
		panic("ast: nil child in Unary node")
	}
	return &Unary{Operand: operand, Op: op}
}

// Subscript is src[index].
type Subscript struct {
	Src   Expr
	Index Expr
}

func (n *Subscript) node() {}
func (n *Subscript) expr() {}

// NewSubscript creates a subscript node.
func NewSubscript(src, index Expr) *Subscript {
	if src == nil || index == nil {
		panic("ast: nil child in Subscript node")
	}
	return &Subscript{Src: src, Index: index}
}

// SliceForm selects which bounds a slice carries.
type SliceForm int

const (
	SliceEmpty     SliceForm = iota // [:]
	SliceStartOnly                  // [a:]
	SliceEndOnly                    // [:b]
	SliceFull                       // [a:b]
)

// Slice is a slice expression. Absent bounds are nil; only the slots the
// form defines may be set. A three-bound slice is represented as a slice
// whose Start is itself a slice.
type Slice struct {
	Form  SliceForm
	Start Expr
	End   Expr
}

func (n *Slice) node() {}
func (n *Slice) expr() {}

// NewSlice creates a slice node, validating bounds against the form.
func NewSlice(form SliceForm, start, end Expr) *Slice {
	switch form {
	case SliceEmpty:
		if start != nil || end != nil {
			panic("ast: empty slice with bounds")
		}
	case SliceStartOnly:
		if start == nil {
			panic("ast: start-only slice without start")
		}
	case SliceEndOnly:
		if end == nil {
			panic("ast: end-only slice without end")
		}
	case SliceFull:
		if start == nil || end == nil {
			panic("ast: full slice missing a bound")
		}
	}
	return &Slice{Form: form, Start: start, End: end}
}

// ---------------------------------------------------------------------------
// Containers
// ---------------------------------------------------------------------------

// Tuple is a tuple display. Values are in source order.
type Tuple struct {
	Values []Expr
}

func (n *Tuple) node() {}
func (n *Tuple) expr() {}

// List is a list display. Values are in source order.
type List struct {
	Values []Expr
}

func (n *List) node() {}
func (n *List) expr() {}

// Set is a set display. Values are in source order.
type Set struct {
	Values []Expr
}

func (n *Set) node() {}
func (n *Set) expr() {}

// Pair is one key/value entry of a mapping display.
type Pair struct {
	Key   Expr
	Value Expr
}

// Map is a mapping display. Older dialects build it empty and accumulate
// entries with a follow-up store instruction, so Add is the one sanctioned
// mutation of an already-pushed node; the map is complete once its closing
// instruction has run.
type Map struct {
	Pairs []Pair
}

func (n *Map) node() {}
func (n *Map) expr() {}

// Add appends a key/value pair to a map still under construction.
func (n *Map) Add(key, value Expr) {
	if key == nil || value == nil {
		panic("ast: nil entry in Map node")
	}
	n.Pairs = append(n.Pairs, Pair{Key: key, Value: value})
}

// ConstMap is a mapping display whose keys are a single constant tuple.
type ConstMap struct {
	Keys   *Object // tuple of key literals
	Values []Expr  // in source order, parallel to Keys
}

func (n *ConstMap) node() {}
func (n *ConstMap) expr() {}

// NewConstMap pairs a key tuple with its values.
func NewConstMap(keys *Object, values []Expr) *ConstMap {
	if keys == nil {
		panic("ast: nil key tuple in ConstMap node")
	}
	return &ConstMap{Keys: keys, Values: values}
}

// JoinedStr is an interpolated string: the concatenation of literal and
// formatted parts, in source order.
type JoinedStr struct {
	Values []Expr
}

func (n *JoinedStr) node() {}
func (n *JoinedStr) expr() {}

// FormattedValue is one interpolated expression inside a JoinedStr.
type FormattedValue struct {
	Value      Expr
	Conversion int // raw conversion flags from the format instruction
}

func (n *FormattedValue) node() {}
func (n *FormattedValue) expr() {}

// ---------------------------------------------------------------------------
// Calls, functions, classes
// ---------------------------------------------------------------------------

// KwArg is one keyword argument of a call.
type KwArg struct {
	Key   Expr
	Value Expr
}

// Call is a call expression with positional and keyword argument lists.
type Call struct {
	Func   Expr
	Args   []Expr
	Kwargs []KwArg
}

func (n *Call) node() {}
func (n *Call) expr() {}

// NewCall creates a call node.
func NewCall(fn Expr, args []Expr, kwargs []KwArg) *Call {
	if fn == nil {
		panic("ast: nil callee in Call node")
	}
	return &Call{Func: fn, Args: args, Kwargs: kwargs}
}

// Function is a function object: the code constant it executes, any default
// argument values captured at definition time, and the reconstructed body.
type Function struct {
	Code     Expr // Object node wrapping a code constant
	Defaults []Expr
	Body     *Block // reconstructed body, nil when the code operand is opaque
}

func (n *Function) node() {}
func (n *Function) expr() {}

// NewFunction creates a function node.
func NewFunction(code Expr, defaults []Expr) *Function {
	if code == nil {
		panic("ast: nil code in Function node")
	}
	return &Function{Code: code, Defaults: defaults}
}

// CodeObject returns the wrapped code constant, or nil if the function's
// code operand is not a constant (degraded input).
func (n *Function) CodeObject() *pyc.Code {
	if obj, ok := n.Code.(*Object); ok && obj.Value.Kind == pyc.KindCode {
		return obj.Value.Code
	}
	return nil
}

// KwNamesMap is the keyword-name side table: a preceding instruction binds
// a constant tuple of names to the values the upcoming call will consume.
type KwNamesMap struct {
	Pairs []KwArg
}

func (n *KwNamesMap) node() {}
func (n *KwNamesMap) expr() {}

// Class is a class definition: the synthesized construction call, the base
// class tuple, and the class name.
type Class struct {
	Construct Expr // call of the class body
	Bases     Expr
	Name      Expr
}

func (n *Class) node() {}
func (n *Class) expr() {}

// NewClass creates a class definition node.
func NewClass(construct, bases, name Expr) *Class {
	if construct == nil || bases == nil || name == nil {
		panic("ast: nil child in Class node")
	}
	return &Class{Construct: construct, Bases: bases, Name: name}
}

// Ternary is a conditional expression. All three children are required.
type Ternary struct {
	Cond     Expr
	IfExpr   Expr
	ElseExpr Expr
}

func (n *Ternary) node() {}
func (n *Ternary) expr() {}

// NewTernary creates a conditional expression node.
func NewTernary(cond, ifExpr, elseExpr Expr) *Ternary {
	if cond == nil || ifExpr == nil || elseExpr == nil {
		panic("ast: nil child in Ternary node")
	}
	return &Ternary{Cond: cond, IfExpr: ifExpr, ElseExpr: elseExpr}
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

// KeywordKind is a bare keyword statement.
type KeywordKind int

const (
	KwBreak KeywordKind = iota
	KwContinue
	KwPass
)

// String returns the source spelling of the keyword.
func (k KeywordKind) String() string {
	switch k {
	case KwBreak:
		return "break"
	case KwContinue:
		return "continue"
	case KwPass:
		return "pass"
	default:
		return fmt.Sprintf("KeywordKind(%d)", int(k))
	}
}

// Keyword is a bare keyword statement (break, continue, pass).
type Keyword struct {
	Kind KeywordKind
}

func (n *Keyword) node() {}

// Return is a return statement. Value is required; a bare return carries
// the none constant.
type Return struct {
	Value Expr
}

func (n *Return) node() {}

// NewReturn creates a return statement.
func NewReturn(value Expr) *Return {
	if value == nil {
		panic("ast: nil value in Return node")
	}
	return &Return{Value: value}
}

// Store assigns Src to Dest.
type Store struct {
	Src  Expr
	Dest Expr
}

func (n *Store) node() {}

// NewStore creates an assignment statement.
func NewStore(src, dest Expr) *Store {
	if src == nil || dest == nil {
		panic("ast: nil child in Store node")
	}
	return &Store{Src: src, Dest: dest}
}

// ChainStore is a chained assignment: one source, several targets, filled
// in one at a time as the duplicated stores execute.
type ChainStore struct {
	Src   Expr
	Dests []Expr
}

func (n *ChainStore) node() {}

// NewChainStore starts a chained assignment for the given source.
func NewChainStore(src Expr) *ChainStore {
	if src == nil {
		panic("ast: nil source in ChainStore node")
	}
	return &ChainStore{Src: src}
}

// Append adds the next store target.
func (n *ChainStore) Append(dest Expr) {
	if dest == nil {
		panic("ast: nil target in ChainStore node")
	}
	n.Dests = append(n.Dests, dest)
}

// Yield produces one value from a generator body. It is an expression;
// a bare yield statement is a Yield consumed by a value discard.
type Yield struct {
	Value Expr
}

func (n *Yield) node() {}
func (n *Yield) expr() {}

// Unpack is a sequence-unpacking assignment still being filled in: each
// following store contributes one target until Want of them have arrived.
// It only ever lives on the operand stack, never in a finished tree.
type Unpack struct {
	Src     Expr
	Targets []Expr
	Want    int
}

func (n *Unpack) node() {}
func (n *Unpack) expr() {}

// Import is an import. It evaluates to the imported module, so it lives on
// the operand stack until a store or discard consumes it. Fromlist is the
// none constant for a plain import and a tuple constant for a from-import.
type Import struct {
	Name     Expr
	Fromlist Expr
}

func (n *Import) node() {}
func (n *Import) expr() {}

// Raise is a raise statement with zero or more arguments.
type Raise struct {
	Args []Expr
}

func (n *Raise) node() {}
