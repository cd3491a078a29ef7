package ast

import "fmt"

// BlockKind identifies the structured construct a block region represents.
type BlockKind int

const (
	BlockMain BlockKind = iota
	BlockIf
	BlockElse
	BlockElif
	BlockTry
	BlockExcept
	BlockFinally
	BlockFor
	BlockWhile
	BlockWith
	BlockContainer // wrapper carrying a loop/try region's exit offset
)

// String returns a human-readable name for BlockKind.
func (k BlockKind) String() string {
	switch k {
	case BlockMain:
		return "main"
	case BlockIf:
		return "if"
	case BlockElse:
		return "else"
	case BlockElif:
		return "elif"
	case BlockTry:
		return "try"
	case BlockExcept:
		return "except"
	case BlockFinally:
		return "finally"
	case BlockFor:
		return "for"
	case BlockWhile:
		return "while"
	case BlockWith:
		return "with"
	case BlockContainer:
		return "container"
	default:
		return fmt.Sprintf("BlockKind(%d)", int(k))
	}
}

// Block is a structured region: a contiguous span of instructions that
// closes at a known end offset and owns an ordered statement sequence.
// Blocks accumulate children while their instructions replay and are
// immutable once popped off the block stack.
type Block struct {
	Kind BlockKind
	End  int // instruction offset at which the region closes; 0 never closes

	// Condition for if/elif/while regions; nil otherwise.
	Cond Expr

	// Iteration state for for regions.
	Iter  Expr // the iterated expression
	Index Expr // the loop target

	// Context manager state for with regions. ContextVar doubles as the
	// bound name of an except region.
	ContextExpr Expr
	ContextVar  Expr

	// Negated marks a condition that branched on true rather than false.
	Negated bool

	// Handler offsets for container regions wrapping try structures.
	ExceptStart  int
	FinallyStart int

	Nodes []Node
}

func (b *Block) node() {}

// NewBlock creates a region of the given kind closing at end.
func NewBlock(kind BlockKind, end int) *Block {
	return &Block{Kind: kind, End: end}
}

// Append adds a completed statement to the region.
func (b *Block) Append(n Node) {
	if n == nil {
		panic("ast: nil statement appended to block")
	}
	b.Nodes = append(b.Nodes, n)
}

// RemoveLast drops the most recently appended statement.
func (b *Block) RemoveLast() {
	if len(b.Nodes) > 0 {
		b.Nodes = b.Nodes[:len(b.Nodes)-1]
	}
}

// Last returns the most recently appended statement, or nil.
func (b *Block) Last() Node {
	if len(b.Nodes) == 0 {
		return nil
	}
	return b.Nodes[len(b.Nodes)-1]
}

// Size returns the number of statements in the region.
func (b *Block) Size() int {
	return len(b.Nodes)
}
