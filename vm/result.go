package vm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Interpret results and runtime errors
// ---------------------------------------------------------------------------

// InterpretResult reports the outcome of one Interpret call.
type InterpretResult int

const (
	// ResultSuccess: the source compiled and ran to completion.
	ResultSuccess InterpretResult = iota

	// ResultCompileError: the source did not compile; nothing executed.
	ResultCompileError

	// ResultRuntimeError: execution aborted partway through.
	ResultRuntimeError
)

var resultNames = map[InterpretResult]string{
	ResultSuccess:      "success",
	ResultCompileError: "compile error",
	ResultRuntimeError: "runtime error",
}

// String returns a human-readable result name.
func (r InterpretResult) String() string {
	if name, ok := resultNames[r]; ok {
		return name
	}
	return "unknown"
}

// TraceEntry is one frame of a runtime error's stack trace, innermost
// first.
type TraceEntry struct {
	Function string
	Module   string
	Line     int
}

// RuntimeError describes an aborted execution: a message plus the call
// stack at the point of failure.
type RuntimeError struct {
	Message string
	Trace   []TraceEntry
}

// Error formats the message with its trace, one frame per line.
func (e *RuntimeError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	for _, t := range e.Trace {
		if t.Module == "" {
			fmt.Fprintf(&b, "\n  at %s (line %d)", t.Function, t.Line)
		} else {
			fmt.Fprintf(&b, "\n  at %s (%s:%d)", t.Function, t.Module, t.Line)
		}
	}
	return b.String()
}
