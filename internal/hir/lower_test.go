package hir

import (
	"testing"

	"kinetix/internal/lexer"
	"kinetix/internal/parser"
	"kinetix/internal/types"
)

func lowerSource(t *testing.T, src string) *Program {
	t.Helper()
	toks := lexer.NewScanner(src).ScanTokens()
	p := parser.NewParser(toks)
	prog := p.Parse()
	if len(p.Errors) != 0 {
		t.Fatalf("unexpected parse errors: %v", p.Errors)
	}
	return NewLowerer().LowerProgram(prog)
}

func TestLiteralTypesAreStamped(t *testing.T) {
	prog := lowerSource(t, `let x = 42`)
	let := prog.Stmts[0].(*LetStmt)
	if let.Value.Type().Kind != types.KInt {
		t.Fatalf("expected Int, got %s", let.Value.Type())
	}
}

func TestRangeProducesArrayOfInt(t *testing.T) {
	prog := lowerSource(t, `let r = 1..5`)
	let := prog.Stmts[0].(*LetStmt)
	rng, ok := let.Value.(*Range)
	if !ok {
		t.Fatalf("expected *Range, got %T", let.Value)
	}
	if rng.Type().Kind != types.KArray || rng.Type().Elem.Kind != types.KInt {
		t.Fatalf("expected Array<Int>, got %s", rng.Type())
	}
}

func TestForLoopVariableIsInt(t *testing.T) {
	prog := lowerSource(t, `for i in 1..3 { let x = i }`)
	forStmt := prog.Stmts[0].(*ForStmt)
	inner := forStmt.Body[0].(*LetStmt)
	if inner.Value.Type().Kind != types.KInt {
		t.Fatalf("expected loop variable typed Int, got %s", inner.Value.Type())
	}
}
