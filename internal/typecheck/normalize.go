package typecheck

import (
	"kinetix/internal/hir"
	"kinetix/internal/traits"
	"kinetix/internal/types"
)

// NormalizePost rewrites every MethodCall(object, name, args) into
// Call(StaticFn, object :: args) once the object's concrete type is known
// via substitution (§4.6). Calls whose receiver type can't be resolved to a
// registered impl (capability-module calls, dynamically-typed receivers)
// are left as MethodCall for the bytecode emitter's module-flattening path
// (§4.15, §9).
func NormalizePost(prog *hir.Program, subst *types.Substitution, env *traits.Environment) *hir.Program {
	n := &normalizer{subst: subst, env: env}
	out := &hir.Program{}
	for _, s := range prog.Stmts {
		out.Stmts = append(out.Stmts, n.stmt(s))
	}
	return out
}

type normalizer struct {
	subst *types.Substitution
	env   *traits.Environment
}

func (n *normalizer) block(stmts []hir.Stmt) []hir.Stmt {
	out := make([]hir.Stmt, len(stmts))
	for i, s := range stmts {
		out[i] = n.stmt(s)
	}
	return out
}

func (n *normalizer) stmt(stmt hir.Stmt) hir.Stmt {
	switch s := stmt.(type) {
	case *hir.LetStmt:
		s.Value = n.expr(s.Value)
		return s
	case *hir.ReturnStmt:
		if s.Value != nil {
			s.Value = n.expr(s.Value)
		}
		return s
	case *hir.ExpressionStmt:
		s.Expr = n.expr(s.Expr)
		return s
	case *hir.FunctionStmt:
		s.Body = n.block(s.Body)
		return s
	case *hir.WhileStmt:
		s.Cond = n.expr(s.Cond)
		s.Body = n.block(s.Body)
		return s
	case *hir.ForStmt:
		s.Iterable = n.expr(s.Iterable)
		s.Body = n.block(s.Body)
		return s
	case *hir.ClassStmt:
		for i, m := range s.Methods {
			s.Methods[i] = n.stmt(m).(*hir.FunctionStmt)
		}
		return s
	case *hir.StateStmt:
		s.Value = n.expr(s.Value)
		return s
	case *hir.ComputedStmt:
		s.Value = n.expr(s.Value)
		return s
	case *hir.EffectStmt:
		s.Body = n.block(s.Body)
		return s
	default:
		return stmt
	}
}

func (n *normalizer) expr(expr hir.Expr) hir.Expr {
	if expr == nil {
		return nil
	}
	switch e := expr.(type) {
	case *hir.Prefix:
		e.Operand = n.expr(e.Operand)
		return e
	case *hir.Infix:
		e.Left = n.expr(e.Left)
		e.Right = n.expr(e.Right)
		return e
	case *hir.If:
		e.Cond = n.expr(e.Cond)
		e.Then = n.block(e.Then)
		e.Else = n.block(e.Else)
		return e
	case *hir.Call:
		e.Callee = n.expr(e.Callee)
		for i, a := range e.Args {
			e.Args[i] = n.expr(a)
		}
		return e
	case *hir.MethodCall:
		e.Object = n.expr(e.Object)
		for i, a := range e.Args {
			e.Args[i] = n.expr(a)
		}
		objType := n.subst.Apply(e.Object.Type())
		if objType.Kind == types.KCustom {
			if _, ok := n.env.Resolve(objType.Name, e.Name); ok {
				args := append([]hir.Expr{e.Object}, e.Args...)
				return &hir.Call{Callee: e.Object, Args: args}
			}
		}
		return e
	case *hir.FunctionLiteral:
		e.Body = n.block(e.Body)
		return e
	case *hir.ArrayLiteral:
		for i, el := range e.Elements {
			e.Elements[i] = n.expr(el)
		}
		return e
	case *hir.MapLiteral:
		for i := range e.Keys {
			e.Keys[i] = n.expr(e.Keys[i])
			e.Values[i] = n.expr(e.Values[i])
		}
		return e
	case *hir.StructLiteral:
		for i, v := range e.FieldValues {
			e.FieldValues[i] = n.expr(v)
		}
		return e
	case *hir.Index:
		e.Object = n.expr(e.Object)
		e.Idx = n.expr(e.Idx)
		return e
	case *hir.MemberAccess:
		e.Object = n.expr(e.Object)
		return e
	case *hir.Assign:
		e.Target = n.expr(e.Target)
		e.Value = n.expr(e.Value)
		return e
	case *hir.Range:
		e.Start = n.expr(e.Start)
		e.End = n.expr(e.End)
		return e
	case *hir.Match:
		e.Scrutinee = n.expr(e.Scrutinee)
		for i, arm := range e.Arms {
			arm.Body = n.expr(arm.Body)
			e.Arms[i] = arm
		}
		return e
	default:
		return expr
	}
}
