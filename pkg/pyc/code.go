package pyc

import "fmt"

// Version is the bytecode dialect descriptor: the (major, minor) release the
// code object was compiled for. It selects every version-conditional behavior
// in the decoder and the decompiler and is never mutated during a build.
type Version struct {
	Major int
	Minor int
}

// Compare returns -1, 0, or 1 comparing the version against (major, minor).
func (v Version) Compare(major, minor int) int {
	if v.Major != major {
		if v.Major < major {
			return -1
		}
		return 1
	}
	if v.Minor != minor {
		if v.Minor < minor {
			return -1
		}
		return 1
	}
	return 0
}

// AtLeast reports whether the version is (major, minor) or newer.
func (v Version) AtLeast(major, minor int) bool {
	return v.Compare(major, minor) >= 0
}

// String returns the dotted form, e.g. "3.8".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// CodeFlags mirror the flag bits carried on a code object.
type CodeFlags uint32

const (
	// FlagVarargs indicates the code object accepts *args.
	FlagVarargs CodeFlags = 1 << 2

	// FlagVarkwargs indicates the code object accepts **kwargs.
	FlagVarkwargs CodeFlags = 1 << 3

	// FlagGenerator indicates the code object is a generator body.
	FlagGenerator CodeFlags = 1 << 5
)

// LambdaName is the qualified name the compiler assigns to anonymous
// function bodies. The decompiler uses it to distinguish a lambda argument
// from a named (decorated) function argument.
const LambdaName = "<lambda>"

// Code is one compiled code object: the instruction bytes plus the tables
// they index. It corresponds to one module, function, class, or lambda body.
// All fields are read-only after construction.
type Code struct {
	Name      string    // qualified name ("<module>", "f", "<lambda>", ...)
	Bytecode  []byte    // raw instruction stream
	Consts    []*Object // constant pool
	Names     []string  // global/attribute name table
	VarNames  []string  // local variable name table
	ArgCount  int       // declared positional parameter count
	StackSize int       // compiler-declared maximum operand stack depth
	Flags     CodeFlags
}

// Const returns the constant pool entry at index i.
// Out-of-range indices return nil; callers treat that as corrupt input.
func (c *Code) Const(i int) *Object {
	if i < 0 || i >= len(c.Consts) {
		return nil
	}
	return c.Consts[i]
}

// NameAt returns the name table entry at index i, or "" if out of range.
func (c *Code) NameAt(i int) string {
	if i < 0 || i >= len(c.Names) {
		return ""
	}
	return c.Names[i]
}

// VarNameAt returns the local variable name at index i, or "" if out of range.
func (c *Code) VarNameAt(i int) string {
	if i < 0 || i >= len(c.VarNames) {
		return ""
	}
	return c.VarNames[i]
}

// IsLambda reports whether this code object is an anonymous function body.
func (c *Code) IsLambda() bool {
	return c.Name == LambdaName
}

// CodeLen returns the length of the instruction stream in bytes.
func (c *Code) CodeLen() int {
	return len(c.Bytecode)
}
