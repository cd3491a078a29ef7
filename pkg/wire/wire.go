// Package wire flattens decompiled trees into a self-describing interchange
// form. Downstream tools (diff viewers, indexers) consume envelopes without
// linking against the node types.
package wire

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/chazu/retrograde/pkg/ast"
	"github.com/chazu/retrograde/pkg/decompile"
	"github.com/chazu/retrograde/pkg/pyc"
)

// FormatVersion identifies the envelope layout.
const FormatVersion = 1

// cborEncMode is canonical mode for deterministic encoding.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("wire: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Node is one flattened tree node. Kind names the construct; the remaining
// fields carry whichever attributes that kind uses.
type Node struct {
	Kind     string  `cbor:"k"`
	Text     string  `cbor:"t,omitempty"` // identifier, literal repr, block kind
	Op       string  `cbor:"o,omitempty"` // operator spelling
	Num      int64   `cbor:"n,omitempty"` // offsets, counts, flags
	Flag     bool    `cbor:"f,omitempty"` // negation and similar toggles
	Children []*Node `cbor:"c,omitempty"`
}

// Diagnostic mirrors a build diagnostic.
type Diagnostic struct {
	Severity string `cbor:"s"`
	Pos      int    `cbor:"p"`
	Message  string `cbor:"m"`
}

// Envelope is one decompiled code object ready for interchange.
type Envelope struct {
	ID            string       `cbor:"id"`
	FormatVersion int          `cbor:"fv"`
	Dialect       string       `cbor:"d"`
	CodeName      string       `cbor:"cn"`
	Clean         bool         `cbor:"ok"`
	Diagnostics   []Diagnostic `cbor:"dg,omitempty"`
	Root          *Node        `cbor:"r"`
}

// NewEnvelope wraps a build result for interchange.
func NewEnvelope(codeName string, version pyc.Version, res *decompile.Result) *Envelope {
	env := &Envelope{
		ID:            uuid.New().String(),
		FormatVersion: FormatVersion,
		Dialect:       version.String(),
		CodeName:      codeName,
		Clean:         res.Clean,
		Root:          FromNode(res.Body),
	}
	for _, d := range res.Diagnostics {
		env.Diagnostics = append(env.Diagnostics, Diagnostic{
			Severity: d.Severity.String(),
			Pos:      d.Pos,
			Message:  d.Message,
		})
	}
	return env
}

// MarshalEnvelope serializes an Envelope to CBOR bytes.
func MarshalEnvelope(e *Envelope) ([]byte, error) {
	return cborEncMode.Marshal(e)
}

// UnmarshalEnvelope deserializes an Envelope from CBOR bytes.
func UnmarshalEnvelope(data []byte) (*Envelope, error) {
	var e Envelope
	if err := cbor.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("wire: unmarshal envelope: %w", err)
	}
	if e.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("wire: unsupported format version %d", e.FormatVersion)
	}
	return &e, nil
}

// FromNode flattens one tree node. Nil children flatten to nil.
func FromNode(n ast.Node) *Node {
	if n == nil {
		return nil
	}
	switch t := n.(type) {
	case *ast.Object:
		return &Node{Kind: "object", Text: t.Value.Repr()}
	case *ast.Name:
		return &Node{Kind: "name", Text: t.Ident}
	case *ast.LoadBuildClass:
		return &Node{Kind: "loadbuildclass"}
	case *ast.Unsupported:
		return &Node{Kind: "unsupported", Num: int64(t.Raw), Text: fmt.Sprintf("offset %d", t.Pos)}
	case *ast.Binary:
		return &Node{Kind: "binary", Op: t.Op.String(), Children: children(t.Left, t.Right)}
	case *ast.Unary:
		return &Node{Kind: "unary", Op: t.Op.String(), Children: children(t.Operand)}
	case *ast.Subscript:
		return &Node{Kind: "subscript", Children: children(t.Src, t.Index)}
	case *ast.Slice:
		return &Node{Kind: "slice", Num: int64(t.Form), Children: children(t.Start, t.End)}
	case *ast.Tuple:
		return &Node{Kind: "tuple", Children: exprChildren(t.Values)}
	case *ast.List:
		return &Node{Kind: "list", Children: exprChildren(t.Values)}
	case *ast.Set:
		return &Node{Kind: "set", Children: exprChildren(t.Values)}
	case *ast.Map:
		kids := make([]*Node, 0, len(t.Pairs)*2)
		for _, p := range t.Pairs {
			kids = append(kids, FromNode(p.Key), FromNode(p.Value))
		}
		return &Node{Kind: "map", Children: kids}
	case *ast.ConstMap:
		kids := append([]*Node{FromNode(t.Keys)}, exprChildren(t.Values)...)
		return &Node{Kind: "constmap", Children: kids}
	case *ast.JoinedStr:
		return &Node{Kind: "joinedstr", Children: exprChildren(t.Values)}
	case *ast.FormattedValue:
		return &Node{Kind: "formatted", Num: int64(t.Conversion), Children: children(t.Value)}
	case *ast.Call:
		kids := []*Node{FromNode(t.Func)}
		kids = append(kids, exprChildren(t.Args)...)
		for _, kw := range t.Kwargs {
			kids = append(kids, &Node{Kind: "kwarg", Children: children(kw.Key, kw.Value)})
		}
		return &Node{Kind: "call", Num: int64(len(t.Args)), Children: kids}
	case *ast.Function:
		kids := []*Node{FromNode(t.Code)}
		kids = append(kids, exprChildren(t.Defaults)...)
		if t.Body != nil {
			kids = append(kids, FromNode(t.Body))
		}
		return &Node{Kind: "function", Num: int64(len(t.Defaults)), Children: kids}
	case *ast.KwNamesMap:
		var kids []*Node
		for _, kw := range t.Pairs {
			kids = append(kids, &Node{Kind: "kwarg", Children: children(kw.Key, kw.Value)})
		}
		return &Node{Kind: "kwnames", Children: kids}
	case *ast.Class:
		return &Node{Kind: "class", Children: children(t.Name, t.Bases, t.Construct)}
	case *ast.Ternary:
		return &Node{Kind: "ternary", Children: children(t.Cond, t.IfExpr, t.ElseExpr)}
	case *ast.Keyword:
		return &Node{Kind: "keyword", Text: t.Kind.String()}
	case *ast.Return:
		return &Node{Kind: "return", Children: children(t.Value)}
	case *ast.Store:
		return &Node{Kind: "store", Children: children(t.Src, t.Dest)}
	case *ast.ChainStore:
		kids := []*Node{FromNode(t.Src)}
		kids = append(kids, exprChildren(t.Dests)...)
		return &Node{Kind: "chainstore", Children: kids}
	case *ast.Yield:
		return &Node{Kind: "yield", Children: children(t.Value)}
	case *ast.Import:
		return &Node{Kind: "import", Children: children(t.Name, t.Fromlist)}
	case *ast.Raise:
		return &Node{Kind: "raise", Children: exprChildren(t.Args)}
	case *ast.Block:
		return fromBlock(t)
	default:
		return &Node{Kind: "unknown", Text: fmt.Sprintf("%T", n)}
	}
}

func fromBlock(b *ast.Block) *Node {
	node := &Node{
		Kind: "block",
		Text: b.Kind.String(),
		Num:  int64(b.End),
		Flag: b.Negated,
	}
	// Header expressions travel in role-tagged wrappers so consumers can
	// tell a loop index from a condition without knowing block layouts.
	header := []struct {
		role string
		expr ast.Expr
	}{
		{"cond", b.Cond},
		{"iter", b.Iter},
		{"index", b.Index},
		{"ctxexpr", b.ContextExpr},
		{"ctxvar", b.ContextVar},
	}
	for _, h := range header {
		if h.expr == nil {
			continue
		}
		node.Children = append(node.Children, &Node{Kind: h.role, Children: children(h.expr)})
	}
	for _, child := range b.Nodes {
		node.Children = append(node.Children, FromNode(child))
	}
	return node
}

func children(nodes ...ast.Node) []*Node {
	out := make([]*Node, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, FromNode(n))
	}
	return out
}

func exprChildren[T ast.Node](nodes []T) []*Node {
	out := make([]*Node, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, FromNode(n))
	}
	return out
}
