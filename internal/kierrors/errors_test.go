package kierrors

import (
	"strings"
	"testing"
)

func TestErrorRendersLineOnlyWithoutFile(t *testing.T) {
	e := New(Symbol, 3, "Undeclared variable: '%s'", "x")
	got := e.Error()
	if !strings.Contains(got, "Line 3:") {
		t.Fatalf("expected a bare line header, got %q", got)
	}
	if !strings.Contains(got, "Undeclared variable: 'x'") {
		t.Fatalf("expected the formatted message, got %q", got)
	}
}

func TestErrorRendersFileLineHeaderOnceFileIsSet(t *testing.T) {
	e := New(Type, 10, "Type mismatch").WithFile("main.kix")
	got := e.Error()
	if !strings.Contains(got, "main.kix:10: TypeError: Type mismatch") {
		t.Fatalf("expected a file:line:kind:message header, got %q", got)
	}
}

func TestErrorRendersCaretUnderSourceExcerpt(t *testing.T) {
	e := New(Parse, 5, "unexpected token").WithSource("let x = ")
	got := e.Error()
	lines := strings.Split(strings.TrimRight(got, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + source + caret lines, got %v", lines)
	}
	if !strings.Contains(lines[1], "let x = ") {
		t.Fatalf("expected the source excerpt on the second line, got %q", lines[1])
	}
	if !strings.HasSuffix(lines[2], "^") {
		t.Fatalf("expected the caret line to end with ^, got %q", lines[2])
	}
}

func TestListConcatenatesEveryError(t *testing.T) {
	l := List{New(Lex, 1, "bad token"), New(Parse, 2, "unexpected eof")}
	got := l.Error()
	if !strings.Contains(got, "bad token") || !strings.Contains(got, "unexpected eof") {
		t.Fatalf("expected both messages present, got %q", got)
	}
}

func TestListHasErrorsReflectsLength(t *testing.T) {
	if (List{}).HasErrors() {
		t.Fatal("expected an empty list to report no errors")
	}
	if !(List{New(Runtime, 0, "boom")}).HasErrors() {
		t.Fatal("expected a non-empty list to report errors")
	}
}
