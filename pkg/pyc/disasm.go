package pyc

import (
	"fmt"
	"strings"
)

// Disassemble returns a human-readable listing of one code object's
// instruction stream for the given dialect. Nested code objects referenced
// from the constant pool are listed after their parent.
func Disassemble(code *Code, v Version) (string, error) {
	var sb strings.Builder
	if err := disassembleInto(&sb, code, v); err != nil {
		return "", err
	}
	for _, c := range code.Consts {
		if c.Kind == KindCode {
			sb.WriteString("\n")
			nested, err := Disassemble(c.Code, v)
			if err != nil {
				return "", err
			}
			sb.WriteString(nested)
		}
	}
	return sb.String(), nil
}

func disassembleInto(sb *strings.Builder, code *Code, v Version) error {
	fmt.Fprintf(sb, "; === %s ===\n", code.Name)
	fmt.Fprintf(sb, "; Dialect %s, stack size %d\n", v, code.StackSize)

	if len(code.Consts) > 0 {
		sb.WriteString("; Constants:\n")
		for i, c := range code.Consts {
			display := c.Repr()
			if len(display) > 40 {
				display = display[:37] + "..."
			}
			fmt.Fprintf(sb, ";   [%3d] %s\n", i, display)
		}
	}
	if len(code.Names) > 0 {
		fmt.Fprintf(sb, "; Names: %s\n", strings.Join(code.Names, ", "))
	}
	if len(code.VarNames) > 0 {
		fmt.Fprintf(sb, "; Varnames: %s\n", strings.Join(code.VarNames, ", "))
	}

	r, err := NewReader(code, v)
	if err != nil {
		return err
	}
	for !r.AtEnd() {
		in, err := r.Next()
		if err != nil {
			return err
		}
		line := in.Opcode.String()
		if in.Opcode == OpInvalid {
			line = fmt.Sprintf("<invalid 0x%02X>", in.RawByte)
		}
		switch {
		case in.Opcode.HasJumpTarget():
			line = fmt.Sprintf("%-24s -> %04X", line, r.Target(in))
		case in.HasOperand:
			line = fmt.Sprintf("%-24s %d", line, in.Operand)
			if in.Opcode == OpLoadConst {
				if c := code.Const(in.Operand); c != nil {
					line += fmt.Sprintf(" (%s)", c.Repr())
				}
			}
		}
		fmt.Fprintf(sb, "%04X  %s\n", in.Pos, line)
	}
	return nil
}
