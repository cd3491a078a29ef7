package decompile

// buildContext carries the per-code-object state that shapes how a body is
// reconstructed. Every nested build gets its own value; nothing here is
// shared, so builds of sibling code objects cannot influence each other.
type buildContext struct {
	// classBody marks a body that executes as a class definition, where the
	// leading docstring store is part of the definition rather than code.
	classBody bool
}
