package decompile

import (
	"fmt"

	"github.com/tliron/commonlog"
)

// Severity grades a diagnostic.
type Severity int

const (
	SevWarning Severity = iota
	SevError
)

// String returns a human-readable name for Severity.
func (s Severity) String() string {
	switch s {
	case SevWarning:
		return "warning"
	case SevError:
		return "error"
	default:
		return fmt.Sprintf("Severity(%d)", int(s))
	}
}

// Diagnostic records one degradation encountered during a build: an operator
// the dialect table cannot name, an abandoned code object, and so on. The
// build carries on; the diagnostic explains why the output is marked dirty.
type Diagnostic struct {
	Severity Severity
	Pos      int // instruction offset, -1 when not tied to one instruction
	Message  string
}

func (d Diagnostic) String() string {
	if d.Pos < 0 {
		return fmt.Sprintf("%s: %s", d.Severity, d.Message)
	}
	return fmt.Sprintf("%s at offset %d: %s", d.Severity, d.Pos, d.Message)
}

// Reporter collects diagnostics for one build and mirrors them to the
// process log.
type Reporter struct {
	log   commonlog.Logger
	diags []Diagnostic
}

// NewReporter creates an empty reporter.
func NewReporter() *Reporter {
	return &Reporter{log: commonlog.GetLogger("retrograde.decompile")}
}

// Warningf records a warning-grade diagnostic.
func (r *Reporter) Warningf(pos int, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.diags = append(r.diags, Diagnostic{Severity: SevWarning, Pos: pos, Message: msg})
	r.log.Warning(msg)
}

// Errorf records an error-grade diagnostic.
func (r *Reporter) Errorf(pos int, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.diags = append(r.diags, Diagnostic{Severity: SevError, Pos: pos, Message: msg})
	r.log.Error(msg)
}

// Diagnostics returns everything recorded so far, in order.
func (r *Reporter) Diagnostics() []Diagnostic {
	return r.diags
}
