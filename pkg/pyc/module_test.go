package pyc

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func sampleCode() *Code {
	nested := &Code{
		Name:     "f",
		ArgCount: 1,
		Bytecode: []byte{124, 0, 83, 0}, // LOAD_FAST 0; RETURN_VALUE
		VarNames: []string{"x"},
	}
	return &Code{
		Name:      "<module>",
		StackSize: 4,
		Bytecode:  []byte{100, 0, 83, 0}, // LOAD_CONST 0; RETURN_VALUE
		Consts: []*Object{
			None,
			NewBool(true),
			NewInt(-7),
			NewFloat(2.5),
			NewString("hello"),
			NewBytes([]byte{0, 1, 2}),
			NewTuple(NewInt(1), NewString("two")),
			NewCodeObject(nested),
			Ellipsis,
		},
		Names:    []string{"print", "f"},
		VarNames: nil,
	}
}

func objectsEqual(a, b *Object) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindNone, KindEllipsis:
		return true
	case KindBool:
		return a.Bool == b.Bool
	case KindInt:
		return a.Int == b.Int
	case KindFloat:
		return a.Float == b.Float
	case KindString, KindBytes:
		return a.Str == b.Str
	case KindTuple:
		if len(a.Tuple) != len(b.Tuple) {
			return false
		}
		for i := range a.Tuple {
			if !objectsEqual(a.Tuple[i], b.Tuple[i]) {
				return false
			}
		}
		return true
	case KindCode:
		return codesEqual(a.Code, b.Code)
	}
	return false
}

func codesEqual(a, b *Code) bool {
	if a.Name != b.Name || a.ArgCount != b.ArgCount || a.StackSize != b.StackSize || a.Flags != b.Flags {
		return false
	}
	if !bytes.Equal(a.Bytecode, b.Bytecode) {
		return false
	}
	if len(a.Consts) != len(b.Consts) {
		return false
	}
	for i := range a.Consts {
		if !objectsEqual(a.Consts[i], b.Consts[i]) {
			return false
		}
	}
	if len(a.Names) != len(b.Names) || len(a.VarNames) != len(b.VarNames) {
		return false
	}
	for i := range a.Names {
		if a.Names[i] != b.Names[i] {
			return false
		}
	}
	for i := range a.VarNames {
		if a.VarNames[i] != b.VarNames[i] {
			return false
		}
	}
	return true
}

func TestModuleRoundTrip(t *testing.T) {
	m := &Module{Version: Version{3, 8}, Code: sampleCode()}

	data := WriteModule(m)
	got, err := ReadModule(data)
	if err != nil {
		t.Fatalf("ReadModule: %v", err)
	}
	if got.Version != m.Version {
		t.Errorf("Version = %s, want %s", got.Version, m.Version)
	}
	if !codesEqual(got.Code, m.Code) {
		t.Errorf("code object did not survive the round trip")
	}
}

func TestReadModuleBadMagic(t *testing.T) {
	data := append([]byte("JUNK"), 0, 3, 0, 8)
	if _, err := ReadModule(data); !errors.Is(err, ErrInvalidMagic) {
		t.Errorf("error = %v, want ErrInvalidMagic", err)
	}
}

func TestReadModuleTruncated(t *testing.T) {
	m := &Module{Version: Version{3, 8}, Code: sampleCode()}
	data := WriteModule(m)
	for _, n := range []int{4, 9, len(data) / 2, len(data) - 1} {
		if _, err := ReadModule(data[:n]); !errors.Is(err, ErrCorruptData) {
			t.Errorf("ReadModule(data[:%d]) error = %v, want ErrCorruptData", n, err)
		}
	}
}

func TestReadModuleTopLevelNotCode(t *testing.T) {
	data := append([]byte{}, ModuleMagic...)
	data = append(data, 0, 3, 0, 8)
	data = appendObject(data, NewInt(42))
	if _, err := ReadModule(data); !errors.Is(err, ErrCorruptData) {
		t.Errorf("error = %v, want ErrCorruptData", err)
	}
}

func TestReadModuleBadTag(t *testing.T) {
	data := append([]byte{}, ModuleMagic...)
	data = append(data, 0, 3, 0, 8, '?')
	if _, err := ReadModule(data); !errors.Is(err, ErrBadTag) {
		t.Errorf("error = %v, want ErrBadTag", err)
	}
}

func TestReadModuleFile(t *testing.T) {
	m := &Module{Version: Version{2, 7}, Code: sampleCode()}
	path := filepath.Join(t.TempDir(), "sample.rpyc")
	if err := os.WriteFile(path, WriteModule(m), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := ReadModuleFile(path)
	if err != nil {
		t.Fatalf("ReadModuleFile: %v", err)
	}
	if got.Version != m.Version {
		t.Errorf("Version = %s, want %s", got.Version, m.Version)
	}

	if _, err := ReadModuleFile(filepath.Join(t.TempDir(), "missing.rpyc")); err == nil {
		t.Error("reading a missing file did not fail")
	}
}

func TestDisassembleListsNestedCode(t *testing.T) {
	out, err := Disassemble(sampleCode(), Version{3, 8})
	if err != nil {
		t.Fatalf("Disassemble: %v", err)
	}
	for _, want := range []string{"<module>", "LOAD_CONST", "RETURN_VALUE", "=== f ===", "LOAD_FAST"} {
		if !strings.Contains(out, want) {
			t.Errorf("listing missing %q:\n%s", want, out)
		}
	}
}

func TestVersionCompare(t *testing.T) {
	v := Version{3, 8}
	if !v.AtLeast(3, 8) || !v.AtLeast(2, 7) || v.AtLeast(3, 9) {
		t.Errorf("AtLeast comparisons wrong for %s", v)
	}
	if v.Compare(3, 8) != 0 || v.Compare(3, 11) != -1 || v.Compare(1, 5) != 1 {
		t.Errorf("Compare ordering wrong for %s", v)
	}
	if v.String() != "3.8" {
		t.Errorf("String() = %q, want 3.8", v.String())
	}
}
