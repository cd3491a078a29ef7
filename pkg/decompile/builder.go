// Package decompile reconstructs source-level trees from bytecode. It
// replays each code object's instruction stream against a simulated operand
// stack, folding instructions into expression subtrees as their operands
// become available and nesting completed statements into structured regions.
package decompile

import (
	"errors"
	"fmt"

	"github.com/chazu/retrograde/pkg/ast"
	"github.com/chazu/retrograde/pkg/pyc"
)

// Placeholder nodes stand in for values that exist only at runtime: the
// exception triple visible inside a handler and the result a context
// manager's entry protocol leaves behind. They are compared by identity, so
// the builder can tell them apart from real None constants.
var (
	excPlaceholder  = ast.NewName("<exception>")
	withPlaceholder = ast.NewName("<context>")
)

// Result is one finished build.
type Result struct {
	// Body is the reconstructed top-level region.
	Body *ast.Block

	// Clean reports whether every instruction was fully understood. A dirty
	// build still returns a tree; marker nodes and diagnostics say where it
	// degraded.
	Clean bool

	Diagnostics []Diagnostic
}

// Decompile rebuilds the body of a code object compiled for the given
// dialect version. Structural inconsistencies fail the whole build; an
// unsupported instruction abandons only the code object that contains it.
func Decompile(code *pyc.Code, version pyc.Version) (*Result, error) {
	rep := NewReporter()
	b := newBuilder(code, version, rep, buildContext{})
	body, err := b.run()
	if err != nil {
		var ue *UnsupportedOpcodeError
		if errors.As(err, &ue) {
			rep.Errorf(ue.Pos, "abandoning %s: unsupported opcode byte %d", code.Name, ue.Raw)
			blk := ast.NewBlock(ast.BlockMain, code.CodeLen())
			blk.Append(&ast.Unsupported{Pos: ue.Pos, Raw: ue.Raw})
			return &Result{Body: blk, Clean: false, Diagnostics: rep.Diagnostics()}, nil
		}
		return nil, err
	}
	return &Result{Body: body, Clean: b.clean, Diagnostics: rep.Diagnostics()}, nil
}

// builder replays one code object. Nested code objects get their own
// builder with its own context; only the reporter and the clean flag are
// threaded back up.
type builder struct {
	code    *pyc.Code
	version pyc.Version
	ctx     buildContext
	rep     *Reporter

	rdr    *pyc.Reader
	stack  Stack
	blocks []*ast.Block

	clean   bool
	needTry bool
	kwNames []string

	// short marks if-regions opened by the value-preserving conditional
	// jumps. Closing one folds into a logical operator instead of emitting
	// a statement.
	short map[*ast.Block]bool
}

func newBuilder(code *pyc.Code, version pyc.Version, rep *Reporter, ctx buildContext) *builder {
	// 1.x modules record no usable stack depth; a small fixed hint stands in.
	depth := code.StackSize
	if version.Major == 1 {
		depth = 20
	}
	return &builder{
		code:    code,
		version: version,
		ctx:     ctx,
		rep:     rep,
		stack:   NewStack(depth),
		clean:   true,
		short:   make(map[*ast.Block]bool),
	}
}

func (b *builder) run() (*ast.Block, error) {
	rdr, err := pyc.NewReader(b.code, b.version)
	if err != nil {
		return nil, err
	}
	b.rdr = rdr

	main := ast.NewBlock(ast.BlockMain, b.code.CodeLen())
	b.blocks = append(b.blocks, main)

	for !rdr.AtEnd() {
		in, err := rdr.Next()
		if err != nil {
			return nil, err
		}
		b.openPending(in)
		if err := b.exec(in); err != nil {
			return nil, err
		}
		if err := b.closeRegions(in.Next); err != nil {
			return nil, err
		}
	}

	for len(b.blocks) > 1 {
		if err := b.closeBlock(); err != nil {
			return nil, err
		}
	}
	return main, nil
}

// buildNested rebuilds a nested code object's body. An unsupported
// instruction abandons just that code object; structural errors propagate.
func (b *builder) buildNested(code *pyc.Code, classBody bool) (*ast.Block, error) {
	sub := newBuilder(code, b.version, b.rep, buildContext{classBody: classBody})
	body, err := sub.run()
	if err != nil {
		var ue *UnsupportedOpcodeError
		if errors.As(err, &ue) {
			b.clean = false
			b.rep.Warningf(ue.Pos, "abandoning nested code object %s: unsupported opcode byte %d", code.Name, ue.Raw)
			blk := ast.NewBlock(ast.BlockMain, code.CodeLen())
			blk.Append(&ast.Unsupported{Pos: ue.Pos, Raw: ue.Raw})
			return blk, nil
		}
		return nil, err
	}
	b.clean = b.clean && sub.clean
	return body, nil
}

// ---------------------------------------------------------------------------
// Region bookkeeping
// ---------------------------------------------------------------------------

func (b *builder) curBlock() *ast.Block {
	return b.blocks[len(b.blocks)-1]
}

// openBlock pushes a region and saves a stack level for it. Container
// regions own no level.
func (b *builder) openBlock(blk *ast.Block) {
	b.blocks = append(b.blocks, blk)
	if blk.Kind != ast.BlockContainer {
		b.stack.PushHistory()
	}
}

// openPending handles region opens that are keyed to a position rather than
// an instruction: the deferred try body after a finally setup, and the
// finally body itself.
func (b *builder) openPending(in pyc.Instruction) {
	if b.needTry && in.Opcode != pyc.OpSetupExcept {
		b.needTry = false
		end := 0
		if c := b.curBlock(); c.Kind == ast.BlockContainer {
			end = c.FinallyStart
		}
		b.openBlock(ast.NewBlock(ast.BlockTry, end))
	}
	if c := b.curBlock(); c.Kind == ast.BlockContainer && c.FinallyStart > 0 && c.FinallyStart == in.Pos {
		b.openBlock(ast.NewBlock(ast.BlockFinally, 0))
	}
}

// closeRegions closes every region whose end offset has been reached.
func (b *builder) closeRegions(next int) error {
	for {
		cur := b.curBlock()
		if cur.Kind == ast.BlockMain || cur.End == 0 || cur.End > next {
			return nil
		}
		if cur.Kind == ast.BlockContainer && cur.FinallyStart > 0 && next <= cur.FinallyStart {
			// the finally body still has to run inside this container
			return nil
		}
		if err := b.closeBlock(); err != nil {
			return err
		}
	}
}

func (b *builder) closeBlock() error {
	if len(b.blocks) < 2 {
		return fmt.Errorf("%w: close with no open region", ErrInconsistent)
	}
	cur := b.curBlock()
	b.blocks = b.blocks[:len(b.blocks)-1]

	switch cur.Kind {
	case ast.BlockContainer:
		for b.stack.Top() == ast.Node(excPlaceholder) {
			b.stack.Pop()
		}
	case ast.BlockTry:
		// the handler sees the stack as it was when the region opened
		if err := b.stack.RestoreHistory(); err != nil {
			return err
		}
	default:
		if err := b.stack.DropHistory(); err != nil {
			return err
		}
	}

	parent := b.curBlock()

	if b.short[cur] {
		delete(b.short, cur)
		if rhs, err := b.stack.PopExpr(); err == nil {
			op := ast.BinLogicalAnd
			if cur.Negated {
				op = ast.BinLogicalOr
			}
			b.stack.Push(ast.NewBinary(cur.Cond, rhs, op))
			return nil
		}
	}

	parent.Append(cur)

	switch {
	case cur.Kind == ast.BlockElse:
		b.checkTernary(parent)
	case cur.Kind == ast.BlockTry && parent.Kind == ast.BlockContainer && parent.ExceptStart > 0:
		b.openHandler(parent)
	case cur.Kind == ast.BlockExcept && parent.Kind == ast.BlockContainer &&
		parent.End > 0 && parent.End-cur.End > 2:
		// another handler follows before the construct ends
		b.openHandler(parent)
	}
	return nil
}

// openHandler enters an exception handler region. The runtime would have
// pushed the exception triple; placeholders stand in for it.
func (b *builder) openHandler(container *ast.Block) {
	exc := ast.NewBlock(ast.BlockExcept, container.End)
	b.blocks = append(b.blocks, exc)
	for i := 0; i < 3; i++ {
		b.stack.Push(excPlaceholder)
	}
	b.stack.PushHistory()
}

// checkTernary collapses a just-closed if/else pair whose branches each left
// one value on the stack into a conditional expression. A statement-level
// if/else never qualifies: its branches hold statements, not stack values.
func (b *builder) checkTernary(parent *ast.Block) {
	if b.stack.Len() < 2 || parent.Size() < 2 {
		return
	}
	nodes := parent.Nodes
	elseBlk, ok := nodes[len(nodes)-1].(*ast.Block)
	if !ok || elseBlk.Kind != ast.BlockElse || elseBlk.Size() != 0 {
		return
	}
	ifBlk, ok := nodes[len(nodes)-2].(*ast.Block)
	if !ok || ifBlk.Kind != ast.BlockIf || ifBlk.Cond == nil || ifBlk.Size() != 0 {
		return
	}

	mark := b.stack.Save()
	elseExpr, err1 := b.stack.PopExpr()
	ifExpr, err2 := b.stack.PopExpr()
	if err1 != nil || err2 != nil {
		b.stack.Restore(mark)
		return
	}

	parent.RemoveLast()
	parent.RemoveLast()
	cond := ifBlk.Cond
	if ifBlk.Negated {
		cond = ast.NewUnary(cond, ast.UnaryNot)
	}
	b.stack.Push(ast.NewTernary(cond, ifExpr, elseExpr))
}

// ---------------------------------------------------------------------------
// Instruction effects
// ---------------------------------------------------------------------------

func (b *builder) exec(in pyc.Instruction) error {
	op := in.Opcode

	if op.IsBinaryOp() {
		return b.execBinary(ast.BinOpFromOpcode(op), in)
	}

	switch op {
	case pyc.OpInvalid:
		return &UnsupportedOpcodeError{Raw: in.RawByte, Pos: in.Pos}

	case pyc.OpNop, pyc.OpCache, pyc.OpResume, pyc.OpPushNull, pyc.OpPrecall,
		pyc.OpPopBlock, pyc.OpPopExcept, pyc.OpGetIter:
		return nil

	// --- Stack shuffling ---

	case pyc.OpPopTop:
		return b.execPopTop()

	case pyc.OpDupTop:
		t := b.stack.Top()
		if t == nil {
			return ErrStackUnderflow
		}
		b.stack.Push(t)
		return nil

	case pyc.OpDupTopTwo:
		a, err := b.stack.Pop()
		if err != nil {
			return err
		}
		c, err := b.stack.Pop()
		if err != nil {
			return err
		}
		b.stack.Push(c)
		b.stack.Push(a)
		b.stack.Push(c)
		b.stack.Push(a)
		return nil

	case pyc.OpRotTwo:
		a, err := b.stack.Pop()
		if err != nil {
			return err
		}
		c, err := b.stack.Pop()
		if err != nil {
			return err
		}
		b.stack.Push(a)
		b.stack.Push(c)
		return nil

	case pyc.OpRotThree:
		a, err := b.stack.Pop()
		if err != nil {
			return err
		}
		c, err := b.stack.Pop()
		if err != nil {
			return err
		}
		d, err := b.stack.Pop()
		if err != nil {
			return err
		}
		b.stack.Push(a)
		b.stack.Push(d)
		b.stack.Push(c)
		return nil

	// --- Loads ---

	case pyc.OpLoadConst:
		obj := b.code.Const(in.Operand)
		if obj == nil {
			b.clean = false
			b.rep.Warningf(in.Pos, "constant index %d out of range in %s", in.Operand, b.code.Name)
			obj = pyc.None
		}
		b.stack.Push(ast.NewObject(obj))
		return nil

	case pyc.OpLoadName:
		b.stack.Push(ast.NewName(b.code.NameAt(in.Operand)))
		return nil

	case pyc.OpLoadGlobal:
		idx := in.Operand
		if b.version.AtLeast(3, 11) {
			// low bit selects the null-push call convention
			idx >>= 1
		}
		b.stack.Push(ast.NewName(b.code.NameAt(idx)))
		return nil

	case pyc.OpLoadFast:
		b.stack.Push(ast.NewName(b.code.VarNameAt(in.Operand)))
		return nil

	case pyc.OpLoadAttr:
		src, err := b.stack.PopExpr()
		if err != nil {
			return err
		}
		b.stack.Push(ast.NewBinary(src, ast.NewName(b.code.NameAt(in.Operand)), ast.BinAttr))
		return nil

	case pyc.OpLoadBuildClass:
		b.stack.Push(&ast.LoadBuildClass{})
		return nil

	// --- Operators ---

	case pyc.OpBinaryOp:
		bop := ast.BinOpFromOperand(in.Operand)
		if bop == ast.BinInvalid {
			b.clean = false
			b.rep.Warningf(in.Pos, "unknown operator selector %d", in.Operand)
		}
		return b.execBinary(bop, in)

	case pyc.OpCompareOp:
		cmp := ast.CompareFromOperand(in.Operand)
		if cmp == ast.BinInvalid {
			b.clean = false
			b.rep.Warningf(in.Pos, "unknown comparison selector %d", in.Operand)
		}
		return b.execBinary(cmp, in)

	case pyc.OpBinarySubscr:
		idx, err := b.stack.PopExpr()
		if err != nil {
			return err
		}
		src, err := b.stack.PopExpr()
		if err != nil {
			return err
		}
		b.stack.Push(ast.NewSubscript(src, idx))
		return nil

	case pyc.OpUnaryPositive, pyc.OpUnaryNegative, pyc.OpUnaryNot, pyc.OpUnaryInvert:
		uop, _ := ast.UnaryOpFromOpcode(op)
		operand, err := b.stack.PopExpr()
		if err != nil {
			return err
		}
		b.stack.Push(ast.NewUnary(operand, uop))
		return nil

	// --- Containers ---

	case pyc.OpBuildTuple, pyc.OpBuildList, pyc.OpBuildSet:
		if op == pyc.OpBuildTuple {
			if _, ok := b.stack.Top().(*ast.LoadBuildClass); ok {
				return nil
			}
		}
		vals, err := b.popExprs(in.Operand)
		if err != nil {
			return err
		}
		switch op {
		case pyc.OpBuildTuple:
			b.stack.Push(&ast.Tuple{Values: vals})
		case pyc.OpBuildList:
			b.stack.Push(&ast.List{Values: vals})
		default:
			b.stack.Push(&ast.Set{Values: vals})
		}
		return nil

	case pyc.OpBuildMap:
		// a dangling chained store can be left over from the accumulation
		// pattern of older dialects; it belongs to no statement
		if _, ok := b.stack.Top().(*ast.ChainStore); ok {
			b.stack.Pop()
		}
		m := &ast.Map{}
		if b.version.AtLeast(3, 5) {
			for i := 0; i < in.Operand; i++ {
				val, err := b.stack.PopExpr()
				if err != nil {
					return err
				}
				key, err := b.stack.PopExpr()
				if err != nil {
					return err
				}
				m.Pairs = append([]ast.Pair{{Key: key, Value: val}}, m.Pairs...)
			}
		}
		b.stack.Push(m)
		return nil

	case pyc.OpStoreMap:
		key, err := b.stack.PopExpr()
		if err != nil {
			return err
		}
		val, err := b.stack.PopExpr()
		if err != nil {
			return err
		}
		m, ok := b.stack.Top().(*ast.Map)
		if !ok {
			return fmt.Errorf("%w: map entry with no map under it", ErrInconsistent)
		}
		m.Add(key, val)
		return nil

	case pyc.OpBuildConstKeyMap:
		keysNode, err := b.stack.Pop()
		if err != nil {
			return err
		}
		keys, ok := keysNode.(*ast.Object)
		if !ok || keys.Value.Kind != pyc.KindTuple {
			return fmt.Errorf("%w: const-key map without a key tuple", ErrInconsistent)
		}
		vals, err := b.popExprs(in.Operand)
		if err != nil {
			return err
		}
		b.stack.Push(ast.NewConstMap(keys, vals))
		return nil

	case pyc.OpBuildString:
		vals, err := b.popExprs(in.Operand)
		if err != nil {
			return err
		}
		b.stack.Push(&ast.JoinedStr{Values: vals})
		return nil

	case pyc.OpFormatValue:
		if in.Operand&0x04 != 0 {
			if _, err := b.stack.Pop(); err != nil { // format spec
				return err
			}
		}
		val, err := b.stack.PopExpr()
		if err != nil {
			return err
		}
		b.stack.Push(&ast.FormattedValue{Value: val, Conversion: in.Operand & 0x03})
		return nil

	case pyc.OpBuildSlice:
		return b.execBuildSlice(in.Operand)

	// --- Calls, functions, classes ---

	case pyc.OpCallFunction:
		return b.execCall(in)

	case pyc.OpKwNames:
		obj := b.code.Const(in.Operand)
		if obj == nil || obj.Kind != pyc.KindTuple {
			return fmt.Errorf("%w: keyword name table is not a tuple", ErrInconsistent)
		}
		b.kwNames = b.kwNames[:0]
		for _, nm := range obj.Tuple {
			b.kwNames = append(b.kwNames, nm.Str)
		}
		return nil

	case pyc.OpMakeFunction:
		return b.execMakeFunction(in)

	case pyc.OpBuildFunction:
		codeNode, err := b.stack.PopExpr()
		if err != nil {
			return err
		}
		fn := ast.NewFunction(codeNode, nil)
		if c := fn.CodeObject(); c != nil {
			body, err := b.buildNested(c, false)
			if err != nil {
				return err
			}
			fn.Body = body
		}
		b.stack.Push(fn)
		return nil

	case pyc.OpBuildClass:
		construct, err := b.stack.PopExpr()
		if err != nil {
			return err
		}
		bases, err := b.stack.PopExpr()
		if err != nil {
			return err
		}
		name, err := b.stack.PopExpr()
		if err != nil {
			return err
		}
		b.stack.Push(ast.NewClass(construct, bases, name))
		return nil

	case pyc.OpReturnValue:
		val, err := b.stack.PopExpr()
		if err != nil {
			return err
		}
		b.curBlock().Append(ast.NewReturn(val))
		return nil

	case pyc.OpYieldValue:
		val, err := b.stack.PopExpr()
		if err != nil {
			return err
		}
		b.stack.Push(&ast.Yield{Value: val})
		return nil

	// --- Stores ---

	case pyc.OpStoreName, pyc.OpStoreGlobal:
		return b.execStore(ast.NewName(b.code.NameAt(in.Operand)))

	case pyc.OpStoreFast:
		return b.execStore(ast.NewName(b.code.VarNameAt(in.Operand)))

	case pyc.OpStoreAttr:
		obj, err := b.stack.PopExpr()
		if err != nil {
			return err
		}
		dest := ast.NewBinary(obj, ast.NewName(b.code.NameAt(in.Operand)), ast.BinAttr)
		return b.execStore(dest)

	case pyc.OpStoreSubscr:
		idx, err := b.stack.PopExpr()
		if err != nil {
			return err
		}
		obj, err := b.stack.PopExpr()
		if err != nil {
			return err
		}
		return b.execStore(ast.NewSubscript(obj, idx))

	case pyc.OpUnpackSequence:
		up := &ast.Unpack{Want: in.Operand}
		cur := b.curBlock()
		if !(cur.Kind == ast.BlockFor && cur.Index == nil) {
			src, err := b.stack.PopExpr()
			if err != nil {
				return err
			}
			up.Src = src
		}
		b.stack.Push(up)
		return nil

	// --- Jumps and structure ---

	case pyc.OpPopJumpIfFalse, pyc.OpPopJumpIfTrue,
		pyc.OpJumpIfFalseOrPop, pyc.OpJumpIfTrueOrPop:
		return b.execCondJump(in)

	case pyc.OpJumpForward:
		return b.execForwardJump(in, b.rdr.Target(in))

	case pyc.OpJumpAbsolute:
		target := b.rdr.Target(in)
		if target > in.Pos {
			return b.execForwardJump(in, target)
		}
		return b.execBackwardJump(in, target)

	case pyc.OpForIter:
		return b.execForIter(in)

	case pyc.OpSetupLoop:
		blk := ast.NewBlock(ast.BlockWhile, b.rdr.Target(in))
		b.openBlock(blk)
		return nil

	case pyc.OpBreakLoop:
		b.curBlock().Append(&ast.Keyword{Kind: ast.KwBreak})
		return nil

	case pyc.OpContinueLoop:
		b.curBlock().Append(&ast.Keyword{Kind: ast.KwContinue})
		return nil

	case pyc.OpSetupExcept:
		target := b.rdr.Target(in)
		if b.needTry {
			// try/except inside a try/finally shares the outer container
			b.needTry = false
			b.curBlock().ExceptStart = target
		} else {
			c := ast.NewBlock(ast.BlockContainer, target)
			c.ExceptStart = target
			b.blocks = append(b.blocks, c)
		}
		b.openBlock(ast.NewBlock(ast.BlockTry, target))
		return nil

	case pyc.OpSetupFinally:
		c := ast.NewBlock(ast.BlockContainer, 0)
		c.FinallyStart = b.rdr.Target(in)
		b.blocks = append(b.blocks, c)
		b.needTry = true
		return nil

	case pyc.OpEndFinally:
		return b.execEndFinally()

	case pyc.OpSetupWith:
		target := b.rdr.Target(in)
		ctx, err := b.stack.PopExpr()
		if err != nil {
			return err
		}
		blk := ast.NewBlock(ast.BlockWith, target)
		blk.ContextExpr = ctx
		b.openBlock(blk)
		b.stack.Push(withPlaceholder)
		return nil

	case pyc.OpWithCleanup:
		if o, ok := b.stack.Top().(*ast.Object); ok && o.IsNone() {
			b.stack.Pop()
		}
		return nil

	case pyc.OpRaiseVarargs:
		args, err := b.popExprs(in.Operand)
		if err != nil {
			return err
		}
		b.curBlock().Append(&ast.Raise{Args: args})
		return nil

	// --- Imports ---

	case pyc.OpImportName:
		return b.execImportName(in)

	case pyc.OpImportFrom:
		mod, ok := b.stack.Top().(ast.Expr)
		if !ok {
			return fmt.Errorf("%w: from-import with no module", ErrInconsistent)
		}
		b.stack.Push(ast.NewBinary(mod, ast.NewName(b.code.NameAt(in.Operand)), ast.BinAttr))
		return nil

	case pyc.OpImportStar:
		src, err := b.stack.PopExpr()
		if err != nil {
			return err
		}
		b.curBlock().Append(ast.NewStore(src, ast.NewName("*")))
		return nil

	default:
		return &UnsupportedOpcodeError{Raw: in.RawByte, Pos: in.Pos}
	}
}

func (b *builder) popExprs(n int) ([]ast.Expr, error) {
	vals := make([]ast.Expr, n)
	for i := n - 1; i >= 0; i-- {
		v, err := b.stack.PopExpr()
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}

func (b *builder) execBinary(bop ast.BinOp, in pyc.Instruction) error {
	right, err := b.stack.PopExpr()
	if err != nil {
		return err
	}
	left, err := b.stack.PopExpr()
	if err != nil {
		return err
	}
	b.stack.Push(ast.NewBinary(left, right, bop))
	return nil
}

func (b *builder) execPopTop() error {
	n, err := b.stack.Pop()
	if err != nil {
		return err
	}
	if n == ast.Node(excPlaceholder) || n == ast.Node(withPlaceholder) {
		return nil
	}
	switch n.(type) {
	case *ast.Call, *ast.Yield:
		// expression statement
		b.curBlock().Append(n)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Slices
// ---------------------------------------------------------------------------

func (b *builder) execBuildSlice(n int) error {
	var step ast.Expr
	if n == 3 {
		s, err := b.stack.PopExpr()
		if err != nil {
			return err
		}
		step = normalizeBound(s)
	}
	endRaw, err := b.stack.PopExpr()
	if err != nil {
		return err
	}
	startRaw, err := b.stack.PopExpr()
	if err != nil {
		return err
	}
	start := normalizeBound(startRaw)
	end := normalizeBound(endRaw)

	inner := ast.NewSlice(sliceForm(start, end), start, end)
	if step != nil {
		// the stride rides along as a slice of the two-bound slice
		b.stack.Push(ast.NewSlice(ast.SliceFull, inner, step))
		return nil
	}
	b.stack.Push(inner)
	return nil
}

// normalizeBound maps the none constant to an absent bound.
func normalizeBound(e ast.Expr) ast.Expr {
	if o, ok := e.(*ast.Object); ok && o.IsNone() {
		return nil
	}
	return e
}

func sliceForm(start, end ast.Expr) ast.SliceForm {
	switch {
	case start == nil && end == nil:
		return ast.SliceEmpty
	case end == nil:
		return ast.SliceStartOnly
	case start == nil:
		return ast.SliceEndOnly
	default:
		return ast.SliceFull
	}
}

// ---------------------------------------------------------------------------
// Calls, functions, classes
// ---------------------------------------------------------------------------

func (b *builder) execCall(in pyc.Instruction) error {
	pparams := in.Operand
	kwparams := 0
	var kwargs []ast.KwArg

	if b.version.AtLeast(3, 11) {
		if len(b.kwNames) > 0 {
			k := len(b.kwNames)
			if k > pparams {
				return fmt.Errorf("%w: keyword name table wider than the call", ErrInconsistent)
			}
			vals, err := b.popExprs(k)
			if err != nil {
				return err
			}
			for i, nm := range b.kwNames {
				kwargs = append(kwargs, ast.KwArg{Key: ast.NewObject(pyc.NewString(nm)), Value: vals[i]})
			}
			pparams -= k
			b.kwNames = nil
		}
	} else if !b.version.AtLeast(3, 6) {
		kwparams = (in.Operand >> 8) & 0xFF
		pparams = in.Operand & 0xFF
	}

	for i := 0; i < kwparams; i++ {
		val, err := b.stack.PopExpr()
		if err != nil {
			return err
		}
		key, err := b.stack.PopExpr()
		if err != nil {
			return err
		}
		kwargs = append([]ast.KwArg{{Key: key, Value: val}}, kwargs...)
	}

	if b.version.AtLeast(3, 0) {
		if cls := b.probeClass(); cls != nil {
			b.stack.Push(cls)
			return nil
		}
	}

	args, err := b.popExprs(pparams)
	if err != nil {
		return err
	}
	fn, err := b.stack.PopExpr()
	if err != nil {
		return err
	}
	call := ast.NewCall(fn, args, kwargs)

	// A named function passed positionally is a decorator application:
	// name the function first, then pass the name. Lambdas stay inline.
	for i, arg := range args {
		fnArg, ok := arg.(*ast.Function)
		if !ok {
			continue
		}
		if c := fnArg.CodeObject(); c != nil && !c.IsLambda() {
			nm := ast.NewName(c.Name)
			b.curBlock().Append(ast.NewStore(fnArg, nm))
			call.Args[i] = nm
		}
	}

	b.stack.Push(call)
	return nil
}

// probeClass speculatively disassembles the stack shape of a class
// definition call: bases on top, then the class name, the body function,
// and the class-construction sentinel. Anything else rewinds every pop and
// lets the generic call path run.
func (b *builder) probeClass() ast.Node {
	mark := b.stack.Save()
	var bases []ast.Expr

scan:
	for {
		switch t := b.stack.Top().(type) {
		case *ast.Name:
			bases = append([]ast.Expr{t}, bases...)
			b.stack.Pop()
		case *ast.Binary:
			if t.Op != ast.BinAttr {
				break scan
			}
			bases = append([]ast.Expr{t}, bases...)
			b.stack.Pop()
		default:
			break scan
		}
	}

	nameNode, _ := b.stack.Pop()
	name, ok := nameNode.(*ast.Object)
	if !ok || !name.Value.IsString() {
		b.stack.Restore(mark)
		return nil
	}
	fnNode, _ := b.stack.Pop()
	fn, ok := fnNode.(*ast.Function)
	if !ok {
		b.stack.Restore(mark)
		return nil
	}
	sentinel, _ := b.stack.Pop()
	if _, ok := sentinel.(*ast.LoadBuildClass); !ok {
		b.stack.Restore(mark)
		return nil
	}

	construct := ast.NewCall(fn, nil, nil)
	return ast.NewClass(construct, &ast.Tuple{Values: bases}, name)
}

func (b *builder) execMakeFunction(in pyc.Instruction) error {
	if b.version.AtLeast(3, 3) {
		if _, err := b.stack.Pop(); err != nil { // qualified name
			return err
		}
	}
	codeNode, err := b.stack.PopExpr()
	if err != nil {
		return err
	}

	var defaults []ast.Expr
	if b.version.AtLeast(3, 6) {
		if in.Operand&0x08 != 0 { // closure cells
			if _, err := b.stack.Pop(); err != nil {
				return err
			}
		}
		if in.Operand&0x04 != 0 { // annotations
			if _, err := b.stack.Pop(); err != nil {
				return err
			}
		}
		if in.Operand&0x02 != 0 { // keyword-only defaults
			if _, err := b.stack.Pop(); err != nil {
				return err
			}
		}
		if in.Operand&0x01 != 0 {
			d, err := b.stack.PopExpr()
			if err != nil {
				return err
			}
			if t, ok := d.(*ast.Tuple); ok {
				defaults = t.Values
			} else {
				defaults = []ast.Expr{d}
			}
		}
	} else {
		defaults, err = b.popExprs(in.Operand)
		if err != nil {
			return err
		}
	}

	fn := ast.NewFunction(codeNode, defaults)
	if c := fn.CodeObject(); c != nil {
		_, classBody := b.stack.Top().(*ast.LoadBuildClass)
		body, err := b.buildNested(c, classBody)
		if err != nil {
			return err
		}
		fn.Body = body
	}
	b.stack.Push(fn)
	return nil
}

// ---------------------------------------------------------------------------
// Stores
// ---------------------------------------------------------------------------

func (b *builder) execStore(dest ast.Expr) error {
	cur := b.curBlock()

	// a store right after the loop header names the iteration variable
	if cur.Kind == ast.BlockFor && cur.Index == nil {
		if up, ok := b.stack.Top().(*ast.Unpack); !ok || up.Src != nil {
			cur.Index = dest
			return nil
		}
	}

	src, err := b.stack.Pop()
	if err != nil {
		return err
	}

	switch src {
	case ast.Node(excPlaceholder):
		if cur.Kind == ast.BlockExcept && cur.ContextVar == nil {
			cur.ContextVar = dest
		}
		return nil
	case ast.Node(withPlaceholder):
		if cur.Kind == ast.BlockWith && cur.ContextVar == nil {
			cur.ContextVar = dest
		}
		return nil
	}

	if up, ok := src.(*ast.Unpack); ok {
		up.Targets = append(up.Targets, dest)
		if len(up.Targets) < up.Want {
			b.stack.Push(up)
			return nil
		}
		if up.Src == nil {
			if cur.Kind == ast.BlockFor && cur.Index == nil {
				cur.Index = &ast.Tuple{Values: up.Targets}
				return nil
			}
			return fmt.Errorf("%w: unpack targets outside a loop", ErrInconsistent)
		}
		cur.Append(ast.NewStore(up.Src, &ast.Tuple{Values: up.Targets}))
		return nil
	}

	if cs, ok := src.(*ast.ChainStore); ok {
		cs.Append(dest)
		if top := b.stack.Top(); top != nil && top == cs.Src {
			// one duplicate of the source per remaining target
			b.stack.Pop()
			b.stack.Push(cs)
			return nil
		}
		cur.Append(cs)
		return nil
	}

	srcExpr, ok := src.(ast.Expr)
	if !ok {
		return fmt.Errorf("%w: stored value is not an expression", ErrInconsistent)
	}

	if b.ctx.classBody {
		if nm, ok := dest.(*ast.Name); ok && (nm.Ident == "__module__" || nm.Ident == "__qualname__") {
			return nil
		}
	}

	if b.stack.Top() == src {
		b.stack.Pop()
		cs := ast.NewChainStore(srcExpr)
		cs.Append(dest)
		b.stack.Push(cs)
		return nil
	}

	cur.Append(ast.NewStore(srcExpr, dest))
	return nil
}

// ---------------------------------------------------------------------------
// Jumps
// ---------------------------------------------------------------------------

func (b *builder) execCondJump(in pyc.Instruction) error {
	target := b.rdr.Target(in)
	negated := in.Opcode == pyc.OpPopJumpIfTrue || in.Opcode == pyc.OpJumpIfTrueOrPop
	orPop := in.Opcode == pyc.OpJumpIfFalseOrPop || in.Opcode == pyc.OpJumpIfTrueOrPop

	cond, err := b.stack.PopExpr()
	if err != nil {
		return err
	}
	cur := b.curBlock()

	// the first conditional jump of a pending loop is its condition
	if cur.Kind == ast.BlockWhile && cur.Cond == nil && cur.Size() == 0 {
		cur.Cond = cond
		cur.Negated = negated
		cur.End = target
		return nil
	}

	// an exception-match test names the handler's exception type
	if cur.Kind == ast.BlockExcept && cur.Cond == nil {
		if bin, ok := cond.(*ast.Binary); ok && bin.Op == ast.CmpExcMatch {
			cur.Cond = bin.Right
			cur.End = target
			return nil
		}
	}

	blk := ast.NewBlock(ast.BlockIf, target)
	blk.Cond = cond
	blk.Negated = negated
	b.openBlock(blk)
	if orPop {
		b.short[blk] = true
	}
	return nil
}

func (b *builder) execForwardJump(in pyc.Instruction, target int) error {
	cur := b.curBlock()

	switch cur.Kind {
	case ast.BlockTry, ast.BlockExcept:
		// the jump over the handlers marks where the construct ends
		if len(b.blocks) >= 2 {
			if c := b.blocks[len(b.blocks)-2]; c.Kind == ast.BlockContainer && c.End < target {
				c.End = target
			}
		}
		return nil

	case ast.BlockIf, ast.BlockElif:
		if target > in.Next && cur.End == in.Next {
			// transition into the false branch; the saved stack level
			// carries over
			b.blocks = b.blocks[:len(b.blocks)-1]
			b.curBlock().Append(cur)
			b.blocks = append(b.blocks, ast.NewBlock(ast.BlockElse, target))
			return nil
		}
	}

	// a forward jump out of a loop body is a break
	for i := len(b.blocks) - 1; i >= 0; i-- {
		blk := b.blocks[i]
		if blk.Kind == ast.BlockFor || blk.Kind == ast.BlockWhile {
			if blk.End > 0 && target >= blk.End {
				b.curBlock().Append(&ast.Keyword{Kind: ast.KwBreak})
			}
			return nil
		}
	}
	return nil
}

func (b *builder) execBackwardJump(in pyc.Instruction, target int) error {
	cur := b.curBlock()

	// a loop compiled without a setup instruction looks like an if-region
	// until its back edge appears
	if cur.Kind == ast.BlockIf && cur.End <= in.Next && target <= cur.End {
		cur.Kind = ast.BlockWhile
		return nil
	}

	if cur.End > 0 && in.Next >= cur.End {
		// the loop's own back edge
		return nil
	}
	b.curBlock().Append(&ast.Keyword{Kind: ast.KwContinue})
	return nil
}

func (b *builder) execForIter(in pyc.Instruction) error {
	target := b.rdr.Target(in)
	iter, err := b.stack.PopExpr()
	if err != nil {
		return err
	}
	cur := b.curBlock()
	if cur.Kind == ast.BlockWhile && cur.Cond == nil && cur.Size() == 0 {
		// loop setup already opened the region; shape it into a for
		cur.Kind = ast.BlockFor
		cur.Iter = iter
		cur.End = target
		return nil
	}
	blk := ast.NewBlock(ast.BlockFor, target)
	blk.Iter = iter
	b.openBlock(blk)
	return nil
}

func (b *builder) execEndFinally() error {
	// the value the protocol left for the unwinder
	if o, ok := b.stack.Top().(*ast.Object); ok && o.IsNone() {
		b.stack.Pop()
	}
	switch b.curBlock().Kind {
	case ast.BlockFinally:
		if err := b.closeBlock(); err != nil {
			return err
		}
		if b.curBlock().Kind == ast.BlockContainer {
			return b.closeBlock()
		}
	case ast.BlockContainer:
		return b.closeBlock()
	}
	// inside a handler chain this is the reraise path; structure is closed
	// positionally
	return nil
}

// ---------------------------------------------------------------------------
// Imports
// ---------------------------------------------------------------------------

func (b *builder) execImportName(in pyc.Instruction) error {
	var fromlist ast.Expr = ast.NewObject(pyc.None)
	if b.version.AtLeast(2, 0) {
		f, err := b.stack.PopExpr()
		if err != nil {
			return err
		}
		fromlist = f
	}
	if b.version.AtLeast(2, 5) {
		if _, err := b.stack.Pop(); err != nil { // relative import level
			return err
		}
	}
	b.stack.Push(&ast.Import{Name: ast.NewName(b.code.NameAt(in.Operand)), Fromlist: fromlist})
	return nil
}
