package parser

import (
	"testing"

	"kinetix/internal/ast"
	"kinetix/internal/lexer"
)

func parseString(input string) (*ast.Program, []error) {
	toks := lexer.NewScanner(input).ScanTokens()
	p := NewParser(toks)
	prog := p.Parse()
	return prog, p.Errors
}

func assertParseSuccess(t *testing.T, input string) *ast.Program {
	t.Helper()
	prog, errs := parseString(input)
	if len(errs) != 0 {
		t.Fatalf("expected no parse errors for %q, got %v", input, errs)
	}
	return prog
}

func assertParseError(t *testing.T, input string) {
	t.Helper()
	_, errs := parseString(input)
	if len(errs) == 0 {
		t.Fatalf("expected a parse error for %q, got none", input)
	}
}

func TestLetStatements(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		shouldPass bool
	}{
		{"simple let", `let x = 1`, true},
		{"mut let", `let mut x = 1`, true},
		{"typed let", `let x: Int = 1`, true},
		{"missing equals", `let x 1`, false},
		{"missing name", `let = 1`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.shouldPass {
				assertParseSuccess(t, tt.input)
			} else {
				assertParseError(t, tt.input)
			}
		})
	}
}

func TestFunctionStatement(t *testing.T) {
	prog := assertParseSuccess(t, `fn add(a: Int, b: Int) -> Int { return a + b }`)
	if len(prog.Stmts) != 1 {
		t.Fatalf("expected 1 statement, got %d", len(prog.Stmts))
	}
	fn, ok := prog.Stmts[0].(*ast.FunctionStmt)
	if !ok {
		t.Fatalf("expected *ast.FunctionStmt, got %T", prog.Stmts[0])
	}
	if fn.Name != "add" || len(fn.Params) != 2 {
		t.Fatalf("unexpected function shape: %+v", fn)
	}
}

func TestRangeLiteralParsesAsRange(t *testing.T) {
	prog := assertParseSuccess(t, `let r = 1..5`)
	let := prog.Stmts[0].(*ast.LetStmt)
	if _, ok := let.Value.(*ast.Range); !ok {
		t.Fatalf("expected *ast.Range, got %T", let.Value)
	}
}

func TestIfElseChain(t *testing.T) {
	prog := assertParseSuccess(t, `if x { let a = 1 } else if y { let b = 2 } else { let c = 3 }`)
	stmt, ok := prog.Stmts[0].(*ast.ExpressionStmt)
	if !ok {
		t.Fatalf("expected *ast.ExpressionStmt, got %T", prog.Stmts[0])
	}
	ifExpr, ok := stmt.Expr.(*ast.If)
	if !ok {
		t.Fatalf("expected *ast.If, got %T", stmt.Expr)
	}
	if len(ifExpr.Else) != 1 {
		t.Fatalf("expected a single chained else-if statement, got %d", len(ifExpr.Else))
	}
}

func TestMatchExpression(t *testing.T) {
	prog := assertParseSuccess(t, `
		let r = match x {
			Some(v) => v,
			None => 0,
			_ => -1,
		}
	`)
	let := prog.Stmts[0].(*ast.LetStmt)
	m, ok := let.Value.(*ast.Match)
	if !ok {
		t.Fatalf("expected *ast.Match, got %T", let.Value)
	}
	if len(m.Arms) != 3 {
		t.Fatalf("expected 3 match arms, got %d", len(m.Arms))
	}
	if _, ok := m.Arms[0].Pattern.(*ast.VariantPattern); !ok {
		t.Fatalf("expected first arm to be a variant pattern, got %T", m.Arms[0].Pattern)
	}
	if _, ok := m.Arms[2].Pattern.(*ast.WildcardPattern); !ok {
		t.Fatalf("expected last arm to be a wildcard pattern, got %T", m.Arms[2].Pattern)
	}
}

func TestClassWithSuperclassAndFields(t *testing.T) {
	prog := assertParseSuccess(t, `
		class Dog: Animal {
			pub name: Str
			age: Int

			fn bark() {
				return 1
			}
		}
	`)
	cls := prog.Stmts[0].(*ast.ClassStmt)
	if cls.Superclass != "Animal" {
		t.Fatalf("expected superclass Animal, got %q", cls.Superclass)
	}
	if len(cls.Fields) != 2 || len(cls.Methods) != 1 {
		t.Fatalf("unexpected class shape: %+v", cls)
	}
}

func TestEnumWithPayload(t *testing.T) {
	prog := assertParseSuccess(t, `
		enum Shape {
			Circle(Float),
			Rect(Float, Float),
			Point,
		}
	`)
	e := prog.Stmts[0].(*ast.EnumStmt)
	if len(e.Variants) != 3 {
		t.Fatalf("expected 3 variants, got %d", len(e.Variants))
	}
	if len(e.Variants[0].Payload) != 1 || len(e.Variants[1].Payload) != 2 || len(e.Variants[2].Payload) != 0 {
		t.Fatalf("unexpected variant payloads: %+v", e.Variants)
	}
}

func TestImplForTrait(t *testing.T) {
	prog := assertParseSuccess(t, `
		impl Speaker for Dog {
			fn speak() {
				return 1
			}
		}
	`)
	impl := prog.Stmts[0].(*ast.ImplStmt)
	if impl.TraitName != "Speaker" || impl.Target != "Dog" {
		t.Fatalf("unexpected impl shape: %+v", impl)
	}
}

func TestIncludeDirectives(t *testing.T) {
	prog := assertParseSuccess(t, `
		#include <math>
		#include "./util.kx" as util
		#version 1
	`)
	if len(prog.Stmts) != 3 {
		t.Fatalf("expected 3 statements, got %d", len(prog.Stmts))
	}
	stdlib := prog.Stmts[0].(*ast.IncludeStmt)
	if !stdlib.IsStdlib || stdlib.Path != "math" {
		t.Fatalf("unexpected stdlib include: %+v", stdlib)
	}
	aliased := prog.Stmts[1].(*ast.IncludeStmt)
	if aliased.Alias != "util" {
		t.Fatalf("unexpected alias: %+v", aliased)
	}
	version := prog.Stmts[2].(*ast.VersionStmt)
	if version.Value != 1 {
		t.Fatalf("unexpected version: %+v", version)
	}
}

func TestReactiveDeclarations(t *testing.T) {
	prog := assertParseSuccess(t, `
		state count = 0
		computed doubled = count * 2
		effect {
			let x = doubled
		}
	`)
	if len(prog.Stmts) != 3 {
		t.Fatalf("expected 3 statements, got %d", len(prog.Stmts))
	}
	if _, ok := prog.Stmts[0].(*ast.StateStmt); !ok {
		t.Fatalf("expected *ast.StateStmt, got %T", prog.Stmts[0])
	}
	if _, ok := prog.Stmts[1].(*ast.ComputedStmt); !ok {
		t.Fatalf("expected *ast.ComputedStmt, got %T", prog.Stmts[1])
	}
	if _, ok := prog.Stmts[2].(*ast.EffectStmt); !ok {
		t.Fatalf("expected *ast.EffectStmt, got %T", prog.Stmts[2])
	}
}

// TestErrorRecoveryContinuesPastFaultyStatement is the parser-locality
// property: a malformed statement must not prevent later, well-formed
// statements from parsing.
func TestErrorRecoveryContinuesPastFaultyStatement(t *testing.T) {
	prog, errs := parseString(`
		let a 1
		let b = 2
	`)
	if len(errs) == 0 {
		t.Fatal("expected at least one parse error")
	}
	found := false
	for _, stmt := range prog.Stmts {
		if let, ok := stmt.(*ast.LetStmt); ok && let.Name == "b" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected recovery to still parse 'let b = 2', got %+v", prog.Stmts)
	}
}

func TestMemberAccessAndMethodCall(t *testing.T) {
	prog := assertParseSuccess(t, `let y = obj.field.method(1, 2)`)
	let := prog.Stmts[0].(*ast.LetStmt)
	call, ok := let.Value.(*ast.MethodCall)
	if !ok {
		t.Fatalf("expected *ast.MethodCall, got %T", let.Value)
	}
	if call.Name != "method" || len(call.Args) != 2 {
		t.Fatalf("unexpected method call shape: %+v", call)
	}
	if _, ok := call.Object.(*ast.MemberAccess); !ok {
		t.Fatalf("expected object to be *ast.MemberAccess, got %T", call.Object)
	}
}
