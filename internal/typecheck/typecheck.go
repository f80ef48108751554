// Package typecheck implements the pre-inference type normalizer, the
// Hindley-Milner checker with Robinson unification, and the post-inference
// method-resolution normalizer (§4.6, §4.7).
package typecheck

import (
	"kinetix/internal/hir"
	"kinetix/internal/kierrors"
	"kinetix/internal/types"
)

// CanonicalizeType flattens a Custom type's argument list depth-first so
// structurally-identical aliases compare equal (§4.6, pre-check pass).
func CanonicalizeType(t *types.Type) *types.Type {
	if t == nil {
		return nil
	}
	switch t.Kind {
	case types.KCustom:
		args := make([]*types.Type, len(t.Args))
		for i, a := range t.Args {
			args[i] = CanonicalizeType(a)
		}
		return types.Custom(t.Name, args)
	case types.KArray:
		return types.Array(CanonicalizeType(t.Elem))
	case types.KMap:
		return types.Map(CanonicalizeType(t.Key), CanonicalizeType(t.Val))
	case types.KRef:
		return types.Ref(CanonicalizeType(t.Elem))
	case types.KMutRef:
		return types.MutRef(CanonicalizeType(t.Elem))
	case types.KFn:
		params := make([]*types.Type, len(t.Params))
		for i, p := range t.Params {
			params[i] = CanonicalizeType(p)
		}
		return types.Fn(params, CanonicalizeType(t.Ret))
	default:
		return t
	}
}

// resultOf models a capability-module call's result as Result<T, Str>,
// matching the Rust checker's treatment of capability calls as fallible.
func resultOf(t *types.Type) *types.Type {
	return types.Custom("Result", []*types.Type{t, types.Str()})
}

// Checker collects unification constraints while walking the HIR.
type Checker struct {
	Subst       *types.Substitution
	MaxDepth    int
	Errors      kierrors.List
	funcReturns []*types.Type // return-type stack for nested function bodies
	vars        *types.FreshVarGen
}

// checkerVarBase keeps Result<T,...> placeholders from colliding with the
// unification variables the HIR lowerer already minted.
const checkerVarBase = 1 << 20

func NewChecker(maxDepth int) *Checker {
	return &Checker{Subst: types.NewSubstitution(), MaxDepth: maxDepth, vars: types.NewFreshVarGenFrom(checkerVarBase)}
}

func (c *Checker) unify(line int, a, b *types.Type) {
	if err := c.Subst.Unify(a, b, c.MaxDepth); err != nil {
		c.Errors = append(c.Errors, kierrors.New(kierrors.Type, line, "%s", err.Error()))
	}
}

// Check walks the program, collecting and solving constraints.
func (c *Checker) Check(prog *hir.Program) kierrors.List {
	for _, s := range prog.Stmts {
		c.checkStmt(s)
	}
	return c.Errors
}

func (c *Checker) checkBlock(stmts []hir.Stmt) {
	for _, s := range stmts {
		c.checkStmt(s)
	}
}

func (c *Checker) checkStmt(stmt hir.Stmt) {
	switch s := stmt.(type) {
	case *hir.LetStmt:
		c.checkExpr(s.Value)
		c.unify(s.Line(), s.Type(), s.Value.Type())
	case *hir.ReturnStmt:
		if s.Value != nil {
			c.checkExpr(s.Value)
			if len(c.funcReturns) > 0 {
				c.unify(s.Line(), s.Value.Type(), c.funcReturns[len(c.funcReturns)-1])
			}
		}
	case *hir.ExpressionStmt:
		c.checkExpr(s.Expr)
	case *hir.FunctionStmt:
		c.funcReturns = append(c.funcReturns, s.ReturnType)
		c.checkBlock(s.Body)
		c.funcReturns = c.funcReturns[:len(c.funcReturns)-1]
	case *hir.WhileStmt:
		c.checkExpr(s.Cond)
		c.unify(s.Cond.Line(), s.Cond.Type(), types.Bool())
		c.checkBlock(s.Body)
	case *hir.ForStmt:
		c.checkExpr(s.Iterable)
		c.checkBlock(s.Body)
	case *hir.ClassStmt:
		for _, m := range s.Methods {
			c.checkStmt(m)
		}
	case *hir.StateStmt:
		c.checkExpr(s.Value)
	case *hir.ComputedStmt:
		c.checkExpr(s.Value)
	case *hir.EffectStmt:
		c.checkBlock(s.Body)
	}
}

func (c *Checker) checkExpr(expr hir.Expr) {
	if expr == nil {
		return
	}
	switch e := expr.(type) {
	case *hir.Prefix:
		c.checkExpr(e.Operand)
		switch e.Operator {
		case "!":
			c.unify(e.Line(), e.Operand.Type(), types.Bool())
		}
	case *hir.Infix:
		c.checkExpr(e.Left)
		c.checkExpr(e.Right)
		switch e.Operator {
		case "&&", "||":
			c.unify(e.Line(), e.Left.Type(), types.Bool())
			c.unify(e.Line(), e.Right.Type(), types.Bool())
		case "==", "!=", "<", "<=", ">", ">=":
			c.unify(e.Line(), e.Left.Type(), e.Right.Type())
		default: // + - * / %
			c.unify(e.Line(), e.Left.Type(), e.Right.Type())
			c.unify(e.Line(), e.Type(), e.Left.Type())
		}
	case *hir.If:
		c.checkExpr(e.Cond)
		c.unify(e.Cond.Line(), e.Cond.Type(), types.Bool())
		c.checkBlock(e.Then)
		c.checkBlock(e.Else)
	case *hir.Call:
		c.checkExpr(e.Callee)
		argTypes := make([]*types.Type, len(e.Args))
		for i, a := range e.Args {
			c.checkExpr(a)
			argTypes[i] = a.Type()
		}
		c.unify(e.Line(), e.Callee.Type(), types.Fn(argTypes, e.Type()))
	case *hir.MethodCall:
		c.checkExpr(e.Object)
		for _, a := range e.Args {
			c.checkExpr(a)
		}
		if isCapabilityModule(e.Object) && !infoOnlyMethod(e.Name) {
			c.unify(e.Line(), e.Type(), resultOf(c.vars.Fresh()))
		}
	case *hir.FunctionLiteral:
		c.checkBlock(e.Body)
	case *hir.ArrayLiteral:
		for i := 1; i < len(e.Elements); i++ {
			c.checkExpr(e.Elements[i])
			c.unify(e.Line(), e.Elements[0].Type(), e.Elements[i].Type())
		}
		if len(e.Elements) > 0 {
			c.checkExpr(e.Elements[0])
		}
	case *hir.MapLiteral:
		for _, v := range e.Values {
			c.checkExpr(v)
		}
	case *hir.StructLiteral:
		for _, v := range e.FieldValues {
			c.checkExpr(v)
		}
	case *hir.Index:
		c.checkExpr(e.Object)
		c.checkExpr(e.Idx)
		c.unify(e.Line(), e.Idx.Type(), types.Int())
		c.unify(e.Line(), e.Object.Type(), types.Array(e.Type()))
	case *hir.MemberAccess:
		c.checkExpr(e.Object)
	case *hir.Assign:
		c.checkExpr(e.Target)
		c.checkExpr(e.Value)
		c.unify(e.Line(), e.Target.Type(), e.Value.Type())
	case *hir.Range:
		c.checkExpr(e.Start)
		c.checkExpr(e.End)
		c.unify(e.Line(), e.Start.Type(), types.Int())
		c.unify(e.Line(), e.End.Type(), types.Int())
	case *hir.Match:
		c.checkExpr(e.Scrutinee)
		for _, arm := range e.Arms {
			c.checkExpr(arm.Body)
			c.unify(e.Line(), e.Type(), arm.Body.Type())
		}
	}
}

var capabilityModuleNames = map[string]bool{
	"data": true, "net": true, "system": true, "db": true,
}

func isCapabilityModule(obj hir.Expr) bool {
	id, ok := obj.(*hir.Identifier)
	return ok && capabilityModuleNames[id.Name]
}

// infoOnlyMethod lists capability-module calls the checker does not wrap in
// Result — purely informational reads with no failure mode worth modeling.
var infoOnlyMethods = map[string]bool{
	"exists": true,
}

func infoOnlyMethod(name string) bool { return infoOnlyMethods[name] }
