// Package pyc models compiled Python code objects: the constant pool value
// model, the code object itself, the dialect descriptor, and the per-dialect
// instruction decoder. The decompiler core consumes all of these read-only.
package pyc

import (
	"fmt"
	"strconv"
	"strings"
)

// ObjectKind identifies the concrete type of a constant pool entry.
type ObjectKind int

const (
	KindNone ObjectKind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindBytes
	KindTuple
	KindCode
	KindEllipsis
)

// String returns a human-readable name for ObjectKind.
func (k ObjectKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindTuple:
		return "tuple"
	case KindCode:
		return "code"
	case KindEllipsis:
		return "ellipsis"
	default:
		return fmt.Sprintf("ObjectKind(%d)", int(k))
	}
}

// Object is an immutable constant pool value. Exactly one of the payload
// fields is meaningful, selected by Kind. Objects are shared by reference
// between the pool and any AST that mentions them; nothing mutates an
// Object after construction.
type Object struct {
	Kind  ObjectKind
	Bool  bool
	Int   int64
	Float float64
	Str   string    // KindString and KindBytes
	Tuple []*Object // KindTuple
	Code  *Code     // KindCode
}

// None is the canonical none constant.
var None = &Object{Kind: KindNone}

// Ellipsis is the canonical ellipsis constant.
var Ellipsis = &Object{Kind: KindEllipsis}

// NewBool returns a bool constant.
func NewBool(v bool) *Object { return &Object{Kind: KindBool, Bool: v} }

// NewInt returns an integer constant.
func NewInt(v int64) *Object { return &Object{Kind: KindInt, Int: v} }

// NewFloat returns a float constant.
func NewFloat(v float64) *Object { return &Object{Kind: KindFloat, Float: v} }

// NewString returns a string constant.
func NewString(v string) *Object { return &Object{Kind: KindString, Str: v} }

// NewBytes returns a bytes constant.
func NewBytes(v []byte) *Object { return &Object{Kind: KindBytes, Str: string(v)} }

// NewTuple returns a tuple constant over the given elements.
func NewTuple(elems ...*Object) *Object { return &Object{Kind: KindTuple, Tuple: elems} }

// NewCodeObject wraps a code object as a constant pool entry.
func NewCodeObject(c *Code) *Object { return &Object{Kind: KindCode, Code: c} }

// IsNone reports whether the object is the none constant.
func (o *Object) IsNone() bool { return o != nil && o.Kind == KindNone }

// IsString reports whether the object is a string constant.
func (o *Object) IsString() bool { return o != nil && o.Kind == KindString }

// StringEquals reports whether the object is a string constant equal to s.
func (o *Object) StringEquals(s string) bool { return o.IsString() && o.Str == s }

// Repr renders the constant the way source code would spell it.
func (o *Object) Repr() string {
	if o == nil {
		return "<nil>"
	}
	switch o.Kind {
	case KindNone:
		return "None"
	case KindBool:
		if o.Bool {
			return "True"
		}
		return "False"
	case KindInt:
		return strconv.FormatInt(o.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(o.Float, 'g', -1, 64)
	case KindString:
		return strconv.Quote(o.Str)
	case KindBytes:
		return "b" + strconv.Quote(o.Str)
	case KindTuple:
		parts := make([]string, len(o.Tuple))
		for i, e := range o.Tuple {
			parts[i] = e.Repr()
		}
		if len(parts) == 1 {
			return "(" + parts[0] + ",)"
		}
		return "(" + strings.Join(parts, ", ") + ")"
	case KindCode:
		return fmt.Sprintf("<code %s>", o.Code.Name)
	case KindEllipsis:
		return "..."
	default:
		return fmt.Sprintf("<%s>", o.Kind)
	}
}
