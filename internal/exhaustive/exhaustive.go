// Package exhaustive verifies match-arm coverage after type inference (§4.8).
package exhaustive

import (
	"kinetix/internal/hir"
	"kinetix/internal/kierrors"
	"kinetix/internal/types"
)

// builtinVariants lists the tagged unions the checker recognizes without a
// user enum declaration.
var builtinVariants = map[string][]string{
	"Option": {"Some", "None"},
	"Result": {"Ok", "Err"},
}

// Checker walks a program's match expressions, reporting any scrutinee whose
// resolved type demands coverage the arms don't provide.
type Checker struct {
	Subst  *types.Substitution
	Enums  map[string][]string // user enum name -> variant names
	Errors kierrors.List
}

func NewChecker(subst *types.Substitution, enums map[string][]string) *Checker {
	return &Checker{Subst: subst, Enums: enums}
}

// EnumRegistry collects variant names per enum declared in a program.
func EnumRegistry(prog *hir.Program) map[string][]string {
	out := map[string][]string{}
	for _, s := range prog.Stmts {
		if e, ok := s.(*hir.EnumStmt); ok {
			names := make([]string, len(e.Variants))
			for i, v := range e.Variants {
				names[i] = v.Name
			}
			out[e.Name] = names
		}
	}
	return out
}

func (c *Checker) Check(prog *hir.Program) kierrors.List {
	for _, s := range prog.Stmts {
		c.stmt(s)
	}
	return c.Errors
}

func (c *Checker) block(stmts []hir.Stmt) {
	for _, s := range stmts {
		c.stmt(s)
	}
}

func (c *Checker) stmt(stmt hir.Stmt) {
	switch s := stmt.(type) {
	case *hir.LetStmt:
		c.expr(s.Value)
	case *hir.ReturnStmt:
		if s.Value != nil {
			c.expr(s.Value)
		}
	case *hir.ExpressionStmt:
		c.expr(s.Expr)
	case *hir.FunctionStmt:
		c.block(s.Body)
	case *hir.WhileStmt:
		c.expr(s.Cond)
		c.block(s.Body)
	case *hir.ForStmt:
		c.expr(s.Iterable)
		c.block(s.Body)
	case *hir.ClassStmt:
		for _, m := range s.Methods {
			c.stmt(m)
		}
	case *hir.StateStmt:
		c.expr(s.Value)
	case *hir.ComputedStmt:
		c.expr(s.Value)
	case *hir.EffectStmt:
		c.block(s.Body)
	}
}

func (c *Checker) expr(expr hir.Expr) {
	if expr == nil {
		return
	}
	switch e := expr.(type) {
	case *hir.Prefix:
		c.expr(e.Operand)
	case *hir.Infix:
		c.expr(e.Left)
		c.expr(e.Right)
	case *hir.If:
		c.expr(e.Cond)
		c.block(e.Then)
		c.block(e.Else)
	case *hir.Call:
		c.expr(e.Callee)
		for _, a := range e.Args {
			c.expr(a)
		}
	case *hir.MethodCall:
		c.expr(e.Object)
		for _, a := range e.Args {
			c.expr(a)
		}
	case *hir.FunctionLiteral:
		c.block(e.Body)
	case *hir.ArrayLiteral:
		for _, el := range e.Elements {
			c.expr(el)
		}
	case *hir.MapLiteral:
		for i := range e.Keys {
			c.expr(e.Keys[i])
			c.expr(e.Values[i])
		}
	case *hir.StructLiteral:
		for _, v := range e.FieldValues {
			c.expr(v)
		}
	case *hir.Index:
		c.expr(e.Object)
		c.expr(e.Idx)
	case *hir.MemberAccess:
		c.expr(e.Object)
	case *hir.Assign:
		c.expr(e.Target)
		c.expr(e.Value)
	case *hir.Range:
		c.expr(e.Start)
		c.expr(e.End)
	case *hir.Match:
		c.expr(e.Scrutinee)
		for _, arm := range e.Arms {
			c.expr(arm.Body)
		}
		c.checkMatch(e)
	}
}

func (c *Checker) checkMatch(m *hir.Match) {
	for _, arm := range m.Arms {
		switch arm.Pattern.(type) {
		case *hir.WildcardPattern, *hir.BindingPattern:
			return // trivially exhaustive
		}
	}

	scrutType := c.Subst.Apply(m.Scrutinee.Type())
	switch scrutType.Kind {
	case types.KBool:
		covered := map[bool]bool{}
		for _, arm := range m.Arms {
			if lp, ok := arm.Pattern.(*hir.LiteralPattern); ok {
				if bl, ok := lp.Value.(*hir.BoolLit); ok {
					covered[bl.Value] = true
				}
			}
		}
		if !covered[true] {
			c.missing(m, "true")
		}
		if !covered[false] {
			c.missing(m, "false")
		}
	case types.KCustom:
		variants, known := builtinVariants[scrutType.Name]
		if !known {
			variants, known = c.Enums[scrutType.Name]
		}
		if !known {
			return
		}
		covered := map[string]bool{}
		for _, arm := range m.Arms {
			if vp, ok := arm.Pattern.(*hir.VariantPattern); ok {
				covered[vp.Variant] = true
			}
		}
		for _, v := range variants {
			if !covered[v] {
				c.missing(m, v)
			}
		}
	case types.KInt, types.KFloat, types.KStr:
		c.missing(m, "_")
	}
}

func (c *Checker) missing(m *hir.Match, name string) {
	c.Errors = append(c.Errors, kierrors.New(kierrors.Exhaustiveness, m.Line(), "Missing coverage for: %s", name))
}
