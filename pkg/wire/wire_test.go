package wire

import (
	"strings"
	"testing"

	"github.com/chazu/retrograde/pkg/ast"
	"github.com/chazu/retrograde/pkg/decompile"
	"github.com/chazu/retrograde/pkg/pyc"
)

func TestFromNodeLeaves(t *testing.T) {
	n := FromNode(ast.NewName("x"))
	if n.Kind != "name" || n.Text != "x" {
		t.Errorf("FromNode(name) = %+v", n)
	}

	n = FromNode(ast.NewObject(pyc.NewInt(7)))
	if n.Kind != "object" || n.Text != "7" {
		t.Errorf("FromNode(object) = %+v", n)
	}

	n = FromNode(&ast.Unsupported{Pos: 12, Raw: 200})
	if n.Kind != "unsupported" || n.Num != 200 || !strings.Contains(n.Text, "12") {
		t.Errorf("FromNode(unsupported) = %+v", n)
	}

	if FromNode(nil) != nil {
		t.Error("FromNode(nil) != nil")
	}
}

func TestFromNodeBinary(t *testing.T) {
	bin := ast.NewBinary(ast.NewName("a"), ast.NewName("b"), ast.BinAdd)
	n := FromNode(bin)
	if n.Kind != "binary" || n.Op != "+" {
		t.Fatalf("FromNode(binary) = %+v", n)
	}
	if len(n.Children) != 2 {
		t.Fatalf("binary has %d children, want 2", len(n.Children))
	}
	if n.Children[0].Text != "a" || n.Children[1].Text != "b" {
		t.Errorf("children = %+v", n.Children)
	}
}

func TestFromNodeCallShape(t *testing.T) {
	call := ast.NewCall(
		ast.NewName("f"),
		[]ast.Expr{ast.NewName("p")},
		[]ast.KwArg{{Key: ast.NewObject(pyc.NewString("k")), Value: ast.NewName("v")}},
	)
	n := FromNode(call)
	if n.Kind != "call" || n.Num != 1 {
		t.Fatalf("FromNode(call) = %+v", n)
	}
	// callee, positional, kwarg
	if len(n.Children) != 3 {
		t.Fatalf("call has %d children, want 3", len(n.Children))
	}
	if n.Children[0].Text != "f" {
		t.Errorf("callee = %+v", n.Children[0])
	}
	kw := n.Children[2]
	if kw.Kind != "kwarg" || len(kw.Children) != 2 {
		t.Errorf("kwarg = %+v", kw)
	}
}

func TestFromNodeBlockHeader(t *testing.T) {
	blk := ast.NewBlock(ast.BlockFor, 24)
	blk.Iter = ast.NewName("seq")
	blk.Index = ast.NewName("i")
	blk.Append(ast.NewStore(ast.NewName("i"), ast.NewName("x")))

	n := FromNode(blk)
	if n.Kind != "block" || n.Text != "for" || n.Num != 24 {
		t.Fatalf("FromNode(block) = %+v", n)
	}
	// iter and index wrappers, then the statement
	if len(n.Children) != 3 {
		t.Fatalf("block has %d children, want 3", len(n.Children))
	}
	iter := n.Children[0]
	if iter.Kind != "iter" || len(iter.Children) != 1 || iter.Children[0].Text != "seq" {
		t.Errorf("iter wrapper = %+v", iter)
	}
	index := n.Children[1]
	if index.Kind != "index" || len(index.Children) != 1 || index.Children[0].Text != "i" {
		t.Errorf("index wrapper = %+v", index)
	}
	if n.Children[2].Kind != "store" {
		t.Errorf("statement child = %+v", n.Children[2])
	}
}

func TestFromNodeBlockHeaderRoles(t *testing.T) {
	ifBlk := ast.NewBlock(ast.BlockIf, 12)
	ifBlk.Cond = ast.NewName("c")
	n := FromNode(ifBlk)
	if len(n.Children) != 1 || n.Children[0].Kind != "cond" {
		t.Fatalf("if header children = %+v", n.Children)
	}
	if n.Children[0].Children[0].Text != "c" {
		t.Errorf("cond wrapper = %+v", n.Children[0])
	}

	with := ast.NewBlock(ast.BlockWith, 30)
	with.ContextExpr = ast.NewName("ctx")
	with.ContextVar = ast.NewName("v")
	n = FromNode(with)
	if len(n.Children) != 2 {
		t.Fatalf("with header has %d children, want 2", len(n.Children))
	}
	if n.Children[0].Kind != "ctxexpr" || n.Children[0].Children[0].Text != "ctx" {
		t.Errorf("ctxexpr wrapper = %+v", n.Children[0])
	}
	if n.Children[1].Kind != "ctxvar" || n.Children[1].Children[0].Text != "v" {
		t.Errorf("ctxvar wrapper = %+v", n.Children[1])
	}

	// a present variable with an absent expression still carries its role
	bare := ast.NewBlock(ast.BlockWith, 30)
	bare.ContextVar = ast.NewName("v")
	n = FromNode(bare)
	if len(n.Children) != 1 || n.Children[0].Kind != "ctxvar" {
		t.Fatalf("bare-var header children = %+v", n.Children)
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	body := ast.NewBlock(ast.BlockMain, 8)
	body.Append(ast.NewStore(ast.NewObject(pyc.NewInt(1)), ast.NewName("x")))
	body.Append(ast.NewReturn(ast.NewObject(pyc.None)))
	res := &decompile.Result{
		Body:  body,
		Clean: false,
		Diagnostics: []decompile.Diagnostic{
			{Severity: decompile.SevWarning, Pos: 4, Message: "degraded"},
		},
	}

	env := NewEnvelope("<module>", pyc.Version{Major: 3, Minor: 8}, res)
	if env.ID == "" {
		t.Error("envelope has no ID")
	}
	if env.FormatVersion != FormatVersion {
		t.Errorf("FormatVersion = %d, want %d", env.FormatVersion, FormatVersion)
	}
	if env.Dialect != "3.8" {
		t.Errorf("Dialect = %q, want 3.8", env.Dialect)
	}

	data, err := MarshalEnvelope(env)
	if err != nil {
		t.Fatalf("MarshalEnvelope: %v", err)
	}
	got, err := UnmarshalEnvelope(data)
	if err != nil {
		t.Fatalf("UnmarshalEnvelope: %v", err)
	}
	if got.ID != env.ID || got.CodeName != "<module>" || got.Clean {
		t.Errorf("round-trip envelope = %+v", got)
	}
	if len(got.Diagnostics) != 1 || got.Diagnostics[0].Severity != "warning" {
		t.Errorf("Diagnostics = %+v", got.Diagnostics)
	}
	if got.Root == nil || got.Root.Kind != "block" || len(got.Root.Children) != 2 {
		t.Fatalf("Root = %+v", got.Root)
	}
}

func TestMarshalIsDeterministic(t *testing.T) {
	body := ast.NewBlock(ast.BlockMain, 4)
	body.Append(ast.NewReturn(ast.NewObject(pyc.None)))
	res := &decompile.Result{Body: body, Clean: true}

	env := NewEnvelope("<module>", pyc.Version{Major: 2, Minor: 7}, res)
	a, err := MarshalEnvelope(env)
	if err != nil {
		t.Fatal(err)
	}
	b, err := MarshalEnvelope(env)
	if err != nil {
		t.Fatal(err)
	}
	if string(a) != string(b) {
		t.Error("repeated encodings of one envelope differ")
	}
}

func TestUnmarshalRejectsFormatVersion(t *testing.T) {
	body := ast.NewBlock(ast.BlockMain, 0)
	body.Append(ast.NewReturn(ast.NewObject(pyc.None)))
	env := NewEnvelope("<module>", pyc.Version{Major: 3, Minor: 8},
		&decompile.Result{Body: body, Clean: true})
	env.FormatVersion = FormatVersion + 1

	data, err := MarshalEnvelope(env)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := UnmarshalEnvelope(data); err == nil {
		t.Error("no error for a foreign format version")
	}
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
	if _, err := UnmarshalEnvelope([]byte{0xff, 0x00, 0x01}); err == nil {
		t.Error("no error for malformed data")
	}
}
