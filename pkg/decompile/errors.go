package decompile

import (
	"errors"
	"fmt"
)

// ErrStackUnderflow is returned when an instruction pops more operands than
// the simulated stack holds. The stream is structurally inconsistent and the
// whole build fails.
var ErrStackUnderflow = errors.New("decompile: operand stack underflow")

// ErrHistoryUnderflow is returned when a region close finds no saved stack
// level to discard or restore.
var ErrHistoryUnderflow = errors.New("decompile: stack history underflow")

// ErrInconsistent is returned when the region structure implied by the
// instruction stream cannot be nested.
var ErrInconsistent = errors.New("decompile: inconsistent block structure")

// UnsupportedOpcodeError reports an instruction byte the dialect table has
// no mapping for. The offending code object is abandoned and substituted
// with a marker node; enclosing code objects keep building.
type UnsupportedOpcodeError struct {
	Raw byte
	Pos int
}

func (e *UnsupportedOpcodeError) Error() string {
	return fmt.Sprintf("decompile: unsupported opcode byte %d at offset %d", e.Raw, e.Pos)
}
