package exhaustive

import (
	"testing"

	"kinetix/internal/hir"
	"kinetix/internal/lexer"
	"kinetix/internal/parser"
	"kinetix/internal/typecheck"
)

func TestBoolMatchMissingArmReported(t *testing.T) {
	toks := lexer.NewScanner(`
		let b = true
		match b { true => 1 }
	`).ScanTokens()
	p := parser.NewParser(toks)
	astProg := p.Parse()
	prog := hir.NewLowerer().LowerProgram(astProg)
	checker := typecheck.NewChecker(32)
	checker.Check(prog)
	ex := NewChecker(checker.Subst, EnumRegistry(prog))
	errs := ex.Check(prog)
	if len(errs) == 0 {
		t.Fatalf("expected missing coverage error for false arm")
	}
}

func TestBoolMatchBothArmsPasses(t *testing.T) {
	toks := lexer.NewScanner(`
		let b = true
		match b { true => 1, false => 0 }
	`).ScanTokens()
	p := parser.NewParser(toks)
	astProg := p.Parse()
	prog := hir.NewLowerer().LowerProgram(astProg)
	checker := typecheck.NewChecker(32)
	checker.Check(prog)
	ex := NewChecker(checker.Subst, EnumRegistry(prog))
	errs := ex.Check(prog)
	if len(errs) != 0 {
		t.Fatalf("unexpected coverage errors: %v", errs)
	}
}

func TestWildcardArmIsTriviallyExhaustive(t *testing.T) {
	toks := lexer.NewScanner(`
		let n = 5
		match n { _ => 0 }
	`).ScanTokens()
	p := parser.NewParser(toks)
	astProg := p.Parse()
	prog := hir.NewLowerer().LowerProgram(astProg)
	checker := typecheck.NewChecker(32)
	checker.Check(prog)
	ex := NewChecker(checker.Subst, EnumRegistry(prog))
	errs := ex.Check(prog)
	if len(errs) != 0 {
		t.Fatalf("unexpected coverage errors: %v", errs)
	}
}

func TestIntMatchWithoutCatchAllReported(t *testing.T) {
	toks := lexer.NewScanner(`
		let n = 5
		match n { 0 => 1 }
	`).ScanTokens()
	p := parser.NewParser(toks)
	astProg := p.Parse()
	prog := hir.NewLowerer().LowerProgram(astProg)
	checker := typecheck.NewChecker(32)
	checker.Check(prog)
	ex := NewChecker(checker.Subst, EnumRegistry(prog))
	errs := ex.Check(prog)
	if len(errs) == 0 {
		t.Fatalf("expected a missing catch-all error for Int match")
	}
}

func TestUserEnumMissingVariantReported(t *testing.T) {
	toks := lexer.NewScanner(`
		enum Light { Red, Yellow, Green }
		fn classify(l: Light) -> Int {
			match l {
				Red() => 0,
				Green() => 2,
			}
		}
	`).ScanTokens()
	p := parser.NewParser(toks)
	astProg := p.Parse()
	if len(p.Errors) != 0 {
		t.Fatalf("unexpected parse errors: %v", p.Errors)
	}
	prog := hir.NewLowerer().LowerProgram(astProg)
	checker := typecheck.NewChecker(32)
	checker.Check(prog)
	ex := NewChecker(checker.Subst, EnumRegistry(prog))
	errs := ex.Check(prog)
	if len(errs) == 0 {
		t.Fatalf("expected missing coverage error for Yellow variant")
	}
}
