package typecheck

import (
	"testing"

	"kinetix/internal/hir"
	"kinetix/internal/lexer"
	"kinetix/internal/parser"
	"kinetix/internal/traits"
	"kinetix/internal/types"
)

func checkSource(t *testing.T, src string) (*hir.Program, *Checker) {
	t.Helper()
	toks := lexer.NewScanner(src).ScanTokens()
	p := parser.NewParser(toks)
	astProg := p.Parse()
	if len(p.Errors) != 0 {
		t.Fatalf("unexpected parse errors: %v", p.Errors)
	}
	prog := hir.NewLowerer().LowerProgram(astProg)
	c := NewChecker(32)
	c.Check(prog)
	return prog, c
}

func TestLetAssignsConsistentType(t *testing.T) {
	_, c := checkSource(t, `let x: Int = 42`)
	if len(c.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", c.Errors)
	}
}

func TestLetTypeMismatchReported(t *testing.T) {
	_, c := checkSource(t, `let x: Int = "hi"`)
	if len(c.Errors) == 0 {
		t.Fatalf("expected a type error for Int/Str mismatch")
	}
}

func TestComparisonOperandsMustUnify(t *testing.T) {
	_, c := checkSource(t, `let ok = 1 < "nope"`)
	if len(c.Errors) == 0 {
		t.Fatalf("expected a type error comparing Int and Str")
	}
}

func TestArithmeticOperandsUnify(t *testing.T) {
	_, c := checkSource(t, `let total = 1 + 2`)
	if len(c.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", c.Errors)
	}
}

func TestWhileConditionMustBeBool(t *testing.T) {
	_, c := checkSource(t, `while 1 { let x = 1 }`)
	if len(c.Errors) == 0 {
		t.Fatalf("expected a type error for non-bool while condition")
	}
}

func TestCapabilityCallResultIsFresh(t *testing.T) {
	prog, c := checkSource(t, `
		let a = net.get("http://x")
		let b = net.get("http://y")
	`)
	if len(c.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", c.Errors)
	}
	letA := prog.Stmts[0].(*hir.LetStmt)
	letB := prog.Stmts[1].(*hir.LetStmt)
	ta := c.Subst.Apply(letA.Value.Type())
	tb := c.Subst.Apply(letB.Value.Type())
	if ta.Kind != types.KCustom || ta.Name != "Result" {
		t.Fatalf("expected Result<_, Str>, got %s", ta)
	}
	if ta.Args[0].Kind == types.KVar && tb.Args[0].Kind == types.KVar && ta.Args[0].VarID == tb.Args[0].VarID {
		t.Fatalf("distinct capability calls must not share a fresh result variable")
	}
}

func TestNormalizePostRewritesInherentMethodCall(t *testing.T) {
	src := `
		struct Point { x: Int, y: Int }
		impl Point {
			fn magnitude(self) -> Int {
				return self.x
			}
		}
		fn use_point(p: Point) -> Int {
			return p.magnitude()
		}
	`
	toks := lexer.NewScanner(src).ScanTokens()
	p := parser.NewParser(toks)
	astProg := p.Parse()
	if len(p.Errors) != 0 {
		t.Fatalf("unexpected parse errors: %v", p.Errors)
	}
	env := traits.NewEnvironment()
	if errs := env.Register(astProg); len(errs) != 0 {
		t.Fatalf("unexpected trait errors: %v", errs)
	}

	prog := hir.NewLowerer().LowerProgram(astProg)
	c := NewChecker(32)
	c.Check(prog)

	var fn *hir.FunctionStmt
	for _, s := range prog.Stmts {
		if f, ok := s.(*hir.FunctionStmt); ok && f.Name == "use_point" {
			fn = f
		}
	}
	if fn == nil {
		t.Fatalf("expected use_point function in lowered program")
	}
	ret := fn.Body[0].(*hir.ReturnStmt)
	if _, ok := ret.Value.(*hir.MethodCall); !ok {
		t.Fatalf("expected a MethodCall prior to normalization, got %T", ret.Value)
	}

	normalized := NormalizePost(prog, c.Subst, env)
	var normFn *hir.FunctionStmt
	for _, s := range normalized.Stmts {
		if f, ok := s.(*hir.FunctionStmt); ok && f.Name == "use_point" {
			normFn = f
		}
	}
	normRet := normFn.Body[0].(*hir.ReturnStmt)
	if _, ok := normRet.Value.(*hir.Call); !ok {
		t.Fatalf("expected normalizer to rewrite MethodCall into Call, got %T", normRet.Value)
	}
}
