package traits

import (
	"testing"

	"kinetix/internal/ast"
	"kinetix/internal/lexer"
	"kinetix/internal/parser"
)

func registerSrc(t *testing.T, src string) *Environment {
	t.Helper()
	toks := lexer.NewScanner(src).ScanTokens()
	p := parser.NewParser(toks)
	prog := p.Parse()
	if len(p.Errors) != 0 {
		t.Fatalf("unexpected parse errors: %v", p.Errors)
	}
	env := NewEnvironment()
	if errs := env.Register(prog); len(errs) != 0 {
		t.Fatalf("unexpected register errors: %v", errs)
	}
	return env
}

func TestRegisterRecordsTraitMethodSignatures(t *testing.T) {
	env := registerSrc(t, `
trait Shape {
	fn area() -> float
}
`)
	tr, ok := env.Traits["Shape"]
	if !ok {
		t.Fatal("expected Shape to be registered")
	}
	if _, ok := tr.Methods["area"]; !ok {
		t.Fatal("expected area to be recorded on Shape")
	}
}

func TestResolvePrefersInherentOverTraitImpl(t *testing.T) {
	env := registerSrc(t, `
trait Greeter {
	fn greet() -> str
}
impl Greeter for Widget {
	fn greet() {
		return "from trait"
	}
}
impl Widget {
	fn greet() {
		return "from inherent"
	}
}
`)
	fn, ok := env.Resolve("Widget", "greet")
	if !ok {
		t.Fatal("expected greet to resolve on Widget")
	}
	ret, ok := fn.Body[0].(*ast.ReturnStmt)
	if !ok {
		t.Fatalf("expected greet's body to be a return statement, got %T", fn.Body[0])
	}
	str, ok := ret.Value.(*ast.StrLit)
	if !ok || str.Value != "from inherent" {
		t.Fatalf("expected the inherent impl's greet to win, got %+v", ret.Value)
	}
}

func TestResolveFallsBackToTraitImplWhenNoInherentMethod(t *testing.T) {
	env := registerSrc(t, `
trait Greeter {
	fn greet() -> str
}
impl Greeter for Widget {
	fn greet() {
		return "from trait"
	}
}
`)
	if _, ok := env.Resolve("Widget", "greet"); !ok {
		t.Fatal("expected greet to resolve via the trait impl")
	}
}

func TestResolveReturnsFalseForUnknownMethod(t *testing.T) {
	env := registerSrc(t, `
impl Widget {
	fn greet() {
		return "hi"
	}
}
`)
	if _, ok := env.Resolve("Widget", "missing"); ok {
		t.Fatal("expected Resolve to fail for an unregistered method")
	}
}

func TestRegisterFlagsOverlappingTraitImpl(t *testing.T) {
	toks := lexer.NewScanner(`
trait Greeter {
	fn greet() -> str
}
impl Greeter for Widget {
	fn greet() {
		return "one"
	}
}
impl Greeter for Widget {
	fn greet() {
		return "two"
	}
}
`).ScanTokens()
	p := parser.NewParser(toks)
	prog := p.Parse()
	if len(p.Errors) != 0 {
		t.Fatalf("unexpected parse errors: %v", p.Errors)
	}
	env := NewEnvironment()
	errs := env.Register(prog)
	if len(errs) == 0 {
		t.Fatal("expected an overlapping-impl error")
	}
}

func TestRegisterFlagsDuplicateInherentMethod(t *testing.T) {
	toks := lexer.NewScanner(`
impl Widget {
	fn greet() {
		return "one"
	}
}
impl Widget {
	fn greet() {
		return "two"
	}
}
`).ScanTokens()
	p := parser.NewParser(toks)
	prog := p.Parse()
	if len(p.Errors) != 0 {
		t.Fatalf("unexpected parse errors: %v", p.Errors)
	}
	env := NewEnvironment()
	errs := env.Register(prog)
	if len(errs) == 0 {
		t.Fatal("expected a duplicate inherent method error")
	}
}
