// Package kierrors defines the diagnostic type shared by every compiler
// pass and the VM.
package kierrors

import (
	"fmt"
	"strings"
)

// Kind names which pass taxonomy category an error belongs to (§7).
type Kind string

const (
	Lex            Kind = "LexError"
	Parse          Kind = "ParseError"
	Symbol         Kind = "SymbolError"
	Trait          Kind = "TraitError"
	Type           Kind = "TypeError"
	Exhaustiveness Kind = "ExhaustivenessError"
	Capability     Kind = "CapabilityError"
	Borrow         Kind = "BorrowError"
	Monomorphize   Kind = "MonomorphizationError"
	Validator      Kind = "ValidatorError"
	Reactive       Kind = "ReactiveError"
	Runtime        Kind = "RuntimeError"
)

// Location pins a diagnostic to a source line (no column tracking, §3).
type Location struct {
	File string
	Line int
}

// KineticError is the diagnostic type returned by every pass.
type KineticError struct {
	Kind     Kind
	Message  string
	Location Location
	Source   string // offending source line, if available
}

func New(kind Kind, line int, format string, args ...interface{}) *KineticError {
	return &KineticError{Kind: kind, Message: fmt.Sprintf(format, args...), Location: Location{Line: line}}
}

func (e *KineticError) WithFile(file string) *KineticError {
	e.Location.File = file
	return e
}

func (e *KineticError) WithSource(line string) *KineticError {
	e.Source = line
	return e
}

// Error renders a file:line header, the message, and a caret-underlined
// source excerpt when available.
func (e *KineticError) Error() string {
	var sb strings.Builder
	if e.Location.File != "" {
		sb.WriteString(fmt.Sprintf("%s:%d: %s: %s\n", e.Location.File, e.Location.Line, e.Kind, e.Message))
	} else {
		sb.WriteString(fmt.Sprintf("Line %d: %s\n", e.Location.Line, e.Message))
	}
	if e.Source != "" {
		prefix := fmt.Sprintf("  %d | ", e.Location.Line)
		sb.WriteString(prefix)
		sb.WriteString(e.Source)
		sb.WriteString("\n")
		sb.WriteString(strings.Repeat(" ", len(prefix)))
		sb.WriteString("^\n")
	}
	return sb.String()
}

// List is an accumulated set of diagnostics from a single pass.
type List []*KineticError

func (l List) Error() string {
	var sb strings.Builder
	for _, e := range l {
		sb.WriteString(e.Error())
	}
	return sb.String()
}

func (l List) HasErrors() bool { return len(l) > 0 }
