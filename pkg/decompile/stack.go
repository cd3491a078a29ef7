package decompile

import "github.com/chazu/retrograde/pkg/ast"

// Stack is the simulated operand stack. Instructions push and pop subtrees
// the way the interpreter would push and pop values.
//
// Alongside the live stack it keeps a history of full-stack snapshots, one
// per open structured region. Opening a region saves a snapshot; closing it
// either discards the snapshot (the region's stack effect is kept, which is
// what lets a conditional expression leave one value per branch) or restores
// it (a protected region's handler must see the stack as it was on entry).
type Stack struct {
	nodes []ast.Node
	hist  [][]ast.Node
}

// NewStack returns a stack whose live slice is pre-sized for the given
// depth hint, usually the code object's recorded maximum stack depth.
func NewStack(capacity int) Stack {
	if capacity < 0 {
		capacity = 0
	}
	return Stack{nodes: make([]ast.Node, 0, capacity)}
}

// Push adds a node to the top of the stack.
func (s *Stack) Push(n ast.Node) {
	if n == nil {
		panic("decompile: nil node pushed on operand stack")
	}
	s.nodes = append(s.nodes, n)
}

// Pop removes and returns the top node.
func (s *Stack) Pop() (ast.Node, error) {
	if len(s.nodes) == 0 {
		return nil, ErrStackUnderflow
	}
	n := s.nodes[len(s.nodes)-1]
	s.nodes = s.nodes[:len(s.nodes)-1]
	return n, nil
}

// PopExpr removes the top node, requiring it to be an expression.
func (s *Stack) PopExpr() (ast.Expr, error) {
	n, err := s.Pop()
	if err != nil {
		return nil, err
	}
	e, ok := n.(ast.Expr)
	if !ok {
		return nil, ErrInconsistent
	}
	return e, nil
}

// Top returns the top node without removing it, or nil when empty.
func (s *Stack) Top() ast.Node {
	if len(s.nodes) == 0 {
		return nil
	}
	return s.nodes[len(s.nodes)-1]
}

// Len returns the live stack depth.
func (s *Stack) Len() int {
	return len(s.nodes)
}

// PushHistory saves a snapshot of the live stack. The live stack is
// unchanged.
func (s *Stack) PushHistory() {
	snap := make([]ast.Node, len(s.nodes))
	copy(snap, s.nodes)
	s.hist = append(s.hist, snap)
}

// DropHistory discards the most recent snapshot, keeping the live stack.
func (s *Stack) DropHistory() error {
	if len(s.hist) == 0 {
		return ErrHistoryUnderflow
	}
	s.hist = s.hist[:len(s.hist)-1]
	return nil
}

// RestoreHistory replaces the live stack with the most recent snapshot and
// discards it.
func (s *Stack) RestoreHistory() error {
	if len(s.hist) == 0 {
		return ErrHistoryUnderflow
	}
	s.nodes = s.hist[len(s.hist)-1]
	s.hist = s.hist[:len(s.hist)-1]
	return nil
}

// Mark is an opaque saved stack state for speculative pops.
type Mark []ast.Node

// Save captures the live stack for a later Restore. Snapshots in the
// history are unaffected.
func (s *Stack) Save() Mark {
	snap := make([]ast.Node, len(s.nodes))
	copy(snap, s.nodes)
	return snap
}

// Restore rewinds the live stack to a saved mark, undoing every push and
// pop made since Save.
func (s *Stack) Restore(m Mark) {
	s.nodes = m
}
