package decompile

import (
	"errors"
	"testing"

	"github.com/chazu/retrograde/pkg/ast"
)

func TestStackPushPop(t *testing.T) {
	var s Stack
	a := ast.NewName("a")
	b := ast.NewName("b")
	s.Push(a)
	s.Push(b)
	if s.Len() != 2 {
		t.Fatalf("Len = %d, want 2", s.Len())
	}
	if s.Top() != b {
		t.Errorf("Top = %v, want b", s.Top())
	}
	n, err := s.Pop()
	if err != nil || n != b {
		t.Errorf("Pop = %v, %v, want b", n, err)
	}
	n, err = s.Pop()
	if err != nil || n != a {
		t.Errorf("Pop = %v, %v, want a", n, err)
	}
	if _, err := s.Pop(); !errors.Is(err, ErrStackUnderflow) {
		t.Errorf("Pop on empty = %v, want underflow", err)
	}
	if s.Top() != nil {
		t.Errorf("Top on empty = %v, want nil", s.Top())
	}
}

func TestNewStackCapacity(t *testing.T) {
	s := NewStack(8)
	if s.Len() != 0 {
		t.Fatalf("Len = %d, want 0", s.Len())
	}
	if cap(s.nodes) != 8 {
		t.Errorf("cap = %d, want 8", cap(s.nodes))
	}
	s = NewStack(-1)
	if cap(s.nodes) != 0 {
		t.Errorf("cap for negative hint = %d, want 0", cap(s.nodes))
	}
}

func TestStackPushNilPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("no panic on nil push")
		}
	}()
	var s Stack
	s.Push(nil)
}

func TestStackPopExpr(t *testing.T) {
	var s Stack
	s.Push(ast.NewName("a"))
	e, err := s.PopExpr()
	if err != nil {
		t.Fatalf("PopExpr: %v", err)
	}
	if nm, ok := e.(*ast.Name); !ok || nm.Ident != "a" {
		t.Errorf("PopExpr = %#v, want name a", e)
	}

	// statements are not expressions
	s.Push(ast.NewStore(ast.NewName("x"), ast.NewName("y")))
	if _, err := s.PopExpr(); !errors.Is(err, ErrInconsistent) {
		t.Errorf("PopExpr on statement = %v, want inconsistency", err)
	}
}

func TestStackHistoryRestore(t *testing.T) {
	var s Stack
	s.Push(ast.NewName("a"))
	s.PushHistory()
	s.Push(ast.NewName("b"))
	s.Push(ast.NewName("c"))

	if err := s.RestoreHistory(); err != nil {
		t.Fatalf("RestoreHistory: %v", err)
	}
	if s.Len() != 1 {
		t.Fatalf("Len after restore = %d, want 1", s.Len())
	}
	if nm := s.Top().(*ast.Name); nm.Ident != "a" {
		t.Errorf("Top after restore = %q, want a", nm.Ident)
	}
	if err := s.RestoreHistory(); !errors.Is(err, ErrHistoryUnderflow) {
		t.Errorf("RestoreHistory on empty history = %v, want underflow", err)
	}
}

func TestStackHistoryDropKeepsLive(t *testing.T) {
	var s Stack
	s.PushHistory()
	s.Push(ast.NewName("a"))
	if err := s.DropHistory(); err != nil {
		t.Fatalf("DropHistory: %v", err)
	}
	if s.Len() != 1 {
		t.Errorf("Len after drop = %d, want 1 (live stack kept)", s.Len())
	}
	if err := s.DropHistory(); !errors.Is(err, ErrHistoryUnderflow) {
		t.Errorf("DropHistory on empty history = %v, want underflow", err)
	}
}

func TestStackSaveRestore(t *testing.T) {
	var s Stack
	s.Push(ast.NewName("a"))
	m := s.Save()
	s.Push(ast.NewName("b"))
	if _, err := s.Pop(); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Pop(); err != nil {
		t.Fatal(err)
	}
	s.Restore(m)
	if s.Len() != 1 {
		t.Fatalf("Len after restore = %d, want 1", s.Len())
	}
	if nm := s.Top().(*ast.Name); nm.Ident != "a" {
		t.Errorf("Top after restore = %q, want a", nm.Ident)
	}
}

func TestReporterDiagnostics(t *testing.T) {
	rep := NewReporter()
	rep.Warningf(4, "constant index %d out of range", 9)
	rep.Errorf(-1, "abandoning body")

	diags := rep.Diagnostics()
	if len(diags) != 2 {
		t.Fatalf("got %d diagnostics, want 2", len(diags))
	}
	if diags[0].Severity != SevWarning || diags[0].Pos != 4 {
		t.Errorf("first diagnostic = %+v", diags[0])
	}
	if diags[1].Severity != SevError {
		t.Errorf("second diagnostic = %+v", diags[1])
	}
	if got := diags[0].String(); got != "warning at offset 4: constant index 9 out of range" {
		t.Errorf("String = %q", got)
	}
}
