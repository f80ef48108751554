package symbols

import (
	"strings"
	"testing"

	"kinetix/internal/lexer"
	"kinetix/internal/parser"
)

func resolveSrc(t *testing.T, src string) *Resolver {
	t.Helper()
	toks := lexer.NewScanner(src).ScanTokens()
	p := parser.NewParser(toks)
	prog := p.Parse()
	if len(p.Errors) != 0 {
		t.Fatalf("unexpected parse errors: %v", p.Errors)
	}
	r := NewResolver()
	r.Resolve(prog)
	return r
}

func TestResolveAcceptsDeclaredLocals(t *testing.T) {
	r := resolveSrc(t, "let x = 1\nlet y = x + 1")
	if len(r.Errors) != 0 {
		t.Fatalf("expected no errors, got %v", r.Errors)
	}
}

func TestResolveFlagsUndeclaredIdentifier(t *testing.T) {
	r := resolveSrc(t, "let y = x + 1")
	if len(r.Errors) == 0 {
		t.Fatal("expected an undeclared-variable error")
	}
	if !strings.Contains(r.Errors[0].Error(), "Undeclared variable") {
		t.Fatalf("expected an undeclared-variable message, got %v", r.Errors[0])
	}
}

func TestResolveAllowsBuiltinModulePrefixes(t *testing.T) {
	r := resolveSrc(t, `data.read_text("foo.txt")`)
	if len(r.Errors) != 0 {
		t.Fatalf("expected builtin module names to resolve without error, got %v", r.Errors)
	}
}

func TestResolveSeesFunctionsDeclaredLater(t *testing.T) {
	r := resolveSrc(t, "helper()\nfn helper() { return 1 }")
	if len(r.Errors) != 0 {
		t.Fatalf("expected forward reference to a top-level function to resolve, got %v", r.Errors)
	}
}

func TestResolveScopesParametersToFunctionBody(t *testing.T) {
	r := resolveSrc(t, "fn add(a, b) { return a + b }\nadd(1, 2)")
	if len(r.Errors) != 0 {
		t.Fatalf("expected no errors, got %v", r.Errors)
	}
}

func TestResolveRejectsParameterLeakingOutsideFunction(t *testing.T) {
	r := resolveSrc(t, "fn add(a, b) { return a + b }\nlet z = a")
	if len(r.Errors) == 0 {
		t.Fatal("expected a parameter used outside its function to be undeclared")
	}
}

func TestTableScopeStack(t *testing.T) {
	tbl := NewTable()
	tbl.Define("x", false)
	if _, ok := tbl.Resolve("x"); !ok {
		t.Fatal("expected x to resolve in the outer scope")
	}

	tbl.EnterScope()
	tbl.Define("y", true)
	if sym, ok := tbl.Resolve("y"); !ok || !sym.Mutable {
		t.Fatal("expected y to resolve as mutable in the inner scope")
	}
	if _, ok := tbl.Resolve("x"); !ok {
		t.Fatal("expected the inner scope to still see the outer x")
	}

	tbl.ExitScope()
	if _, ok := tbl.Resolve("y"); ok {
		t.Fatal("expected y to be gone once its scope exits")
	}
}
