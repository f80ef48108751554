// Package mono monomorphizes generic function declarations into concrete,
// name-mangled specializations (§4.12). It runs over the HIR/MIR boundary:
// it reads generic hir.FunctionStmt declarations and rewrites hir.Call sites
// that target them, producing one concrete clone per distinct argument
// tuple actually observed at a call site.
//
// Mirrors the Rust monomorphize.rs pass: a worklist of (name, concrete args)
// pairs seeded by walking <main>, deduplicated by mangled name, with the
// concrete clone's Params/ReturnType substituted and its body re-walked so
// any calls it makes to other generics are queued too.
package mono

import (
	"strings"

	"kinetix/internal/hir"
	"kinetix/internal/types"
)

// Mangle reproduces the Rust mangle_name helper exactly: empty args return
// the base name unchanged; otherwise "<base>_" followed by each concrete
// type's mangled segment, each followed by a trailing '_'. Only a
// primitive's display name is lowercased (Rust's Display for `int`/`str`/
// etc. happens to be lowercase); a `Custom` type's name keeps its original
// casing and is mangled recursively the same way its own type arguments
// would be, so `Option<Str>` nested inside `Result<Int, Option<Str>>`
// mangles to `Option_str_`, not `option_str_`.
func Mangle(base string, args []*types.Type) string {
	if len(args) == 0 {
		return base
	}
	var b strings.Builder
	b.WriteString(base)
	b.WriteByte('_')
	for _, a := range args {
		b.WriteString(mangleArg(a))
		b.WriteByte('_')
	}
	return b.String()
}

// mangleArg mangles a single type argument's segment.
func mangleArg(t *types.Type) string {
	switch t.Kind {
	case types.KInt, types.KFloat, types.KBool, types.KStr, types.KVoid:
		return strings.ToLower(t.String())
	case types.KCustom:
		return Mangle(t.Name, t.Args)
	case types.KArray:
		return Mangle("Array", []*types.Type{t.Elem})
	case types.KMap:
		return Mangle("Map", []*types.Type{t.Key, t.Val})
	case types.KRef:
		return Mangle("Ref", []*types.Type{t.Elem})
	case types.KMutRef:
		return Mangle("MutRef", []*types.Type{t.Elem})
	default:
		s := t.String()
		s = strings.ReplaceAll(s, "<", "_")
		s = strings.ReplaceAll(s, ">", "_")
		s = strings.ReplaceAll(s, ", ", "_")
		s = strings.ReplaceAll(s, " ", "_")
		return s
	}
}

type workItem struct {
	name string
	args []*types.Type
}

// Monomorphizer walks a program's generic functions and produces concrete
// specializations for every argument tuple reachable from <main>.
type Monomorphizer struct {
	subst    *types.Substitution
	generics map[string]*hir.FunctionStmt
	done     map[string]bool
	worklist []workItem
	out      []*hir.FunctionStmt
}

func NewMonomorphizer(subst *types.Substitution) *Monomorphizer {
	return &Monomorphizer{
		subst:    subst,
		generics: map[string]*hir.FunctionStmt{},
		done:     map[string]bool{},
	}
}

// Run monomorphizes prog in place: generic function declarations are
// removed from the top-level statement list and replaced by their concrete
// specializations, with every call site rewritten to the mangled name.
func (m *Monomorphizer) Run(prog *hir.Program) {
	m.collectGenerics(prog.Stmts)
	if len(m.generics) == 0 {
		return
	}

	var kept []hir.Stmt
	for _, s := range prog.Stmts {
		if fn, ok := s.(*hir.FunctionStmt); ok && len(fn.Generics) > 0 {
			continue
		}
		kept = append(kept, s)
	}

	for _, s := range kept {
		m.rewriteStmt(s)
	}

	for len(m.worklist) > 0 {
		n := len(m.worklist) - 1
		item := m.worklist[n]
		m.worklist = m.worklist[:n]

		mangled := Mangle(item.name, item.args)
		if m.done[mangled] {
			continue
		}
		m.done[mangled] = true

		generic, ok := m.generics[item.name]
		if !ok {
			continue
		}
		concrete := m.specialize(generic, mangled, item.args)
		m.out = append(m.out, concrete)
		for _, stmt := range concrete.Body {
			m.rewriteStmt(stmt)
		}
	}

	prog.Stmts = append(kept, specializationsToStmts(m.out)...)
}

func specializationsToStmts(fns []*hir.FunctionStmt) []hir.Stmt {
	stmts := make([]hir.Stmt, len(fns))
	for i, f := range fns {
		stmts[i] = f
	}
	return stmts
}

func (m *Monomorphizer) collectGenerics(stmts []hir.Stmt) {
	for _, s := range stmts {
		switch fn := s.(type) {
		case *hir.FunctionStmt:
			if len(fn.Generics) > 0 {
				m.generics[fn.Name] = fn
			}
		case *hir.ClassStmt:
			for _, meth := range fn.Methods {
				if len(meth.Generics) > 0 {
					m.generics[meth.Name] = meth
				}
			}
		}
	}
}

// specialize builds a concrete clone of a generic function's signature
// and body by binding each declared generic name to the concrete type
// inferred for it, substituting through Params and ReturnType. Body
// expression types are left as originally inferred by the type checker
// (they were already resolved against the call's own unification variables
// during Check) rather than being re-derived per specialization; this keeps
// the pass a pure rewrite of declarations and call sites, matching the
// original's comment that concrete types are "resolved pre-MIR by HM
// substitution".
func (m *Monomorphizer) specialize(generic *hir.FunctionStmt, mangled string, args []*types.Type) *hir.FunctionStmt {
	binding := map[string]*types.Type{}
	for i, name := range generic.Generics {
		if i < len(args) {
			binding[name] = args[i]
		}
	}

	params := make([]hir.Param, len(generic.Params))
	for i, p := range generic.Params {
		params[i] = hir.Param{Name: p.Name, Type: substituteGeneric(p.Type, binding)}
	}

	return &hir.FunctionStmt{
		Name:       mangled,
		Params:     params,
		ReturnType: substituteGeneric(generic.ReturnType, binding),
		Body:       generic.Body,
	}
}

func substituteGeneric(t *types.Type, binding map[string]*types.Type) *types.Type {
	if t == nil {
		return nil
	}
	if t.Kind == types.KCustom {
		if concrete, ok := binding[t.Name]; ok && len(t.Args) == 0 {
			return concrete
		}
		newArgs := make([]*types.Type, len(t.Args))
		for i, a := range t.Args {
			newArgs[i] = substituteGeneric(a, binding)
		}
		return types.Custom(t.Name, newArgs)
	}
	return t
}

// rewriteStmt walks a statement looking for calls to generic functions,
// queues a specialization work item for each, and rewrites the call's
// callee identifier to the mangled concrete name.
func (m *Monomorphizer) rewriteStmt(s hir.Stmt) {
	switch st := s.(type) {
	case *hir.LetStmt:
		m.rewriteExpr(st.Value)
	case *hir.ReturnStmt:
		m.rewriteExpr(st.Value)
	case *hir.ExpressionStmt:
		m.rewriteExpr(st.Expr)
	case *hir.FunctionStmt:
		m.rewriteBlock(st.Body)
	case *hir.WhileStmt:
		m.rewriteExpr(st.Cond)
		m.rewriteBlock(st.Body)
	case *hir.ForStmt:
		m.rewriteExpr(st.Iterable)
		m.rewriteBlock(st.Body)
	case *hir.ClassStmt:
		for _, meth := range st.Methods {
			m.rewriteBlock(meth.Body)
		}
	case *hir.EffectStmt:
		m.rewriteBlock(st.Body)
	case *hir.StateStmt:
		m.rewriteExpr(st.Value)
	case *hir.ComputedStmt:
		m.rewriteExpr(st.Value)
	}
}

func (m *Monomorphizer) rewriteBlock(stmts []hir.Stmt) {
	for _, s := range stmts {
		m.rewriteStmt(s)
	}
}

func (m *Monomorphizer) rewriteExpr(e hir.Expr) {
	switch ex := e.(type) {
	case *hir.Prefix:
		m.rewriteExpr(ex.Operand)
	case *hir.Infix:
		m.rewriteExpr(ex.Left)
		m.rewriteExpr(ex.Right)
	case *hir.If:
		m.rewriteExpr(ex.Cond)
		m.rewriteBlock(ex.Then)
		m.rewriteBlock(ex.Else)
	case *hir.Call:
		m.rewriteExpr(ex.Callee)
		for _, a := range ex.Args {
			m.rewriteExpr(a)
		}
		m.tryQueueCall(ex)
	case *hir.MethodCall:
		m.rewriteExpr(ex.Object)
		for _, a := range ex.Args {
			m.rewriteExpr(a)
		}
	case *hir.ArrayLiteral:
		for _, el := range ex.Elements {
			m.rewriteExpr(el)
		}
	case *hir.MapLiteral:
		for _, k := range ex.Keys {
			m.rewriteExpr(k)
		}
		for _, v := range ex.Values {
			m.rewriteExpr(v)
		}
	case *hir.StructLiteral:
		for _, v := range ex.FieldValues {
			m.rewriteExpr(v)
		}
	case *hir.Index:
		m.rewriteExpr(ex.Object)
		m.rewriteExpr(ex.Idx)
	case *hir.MemberAccess:
		m.rewriteExpr(ex.Object)
	case *hir.Assign:
		m.rewriteExpr(ex.Target)
		m.rewriteExpr(ex.Value)
	case *hir.Range:
		m.rewriteExpr(ex.Start)
		m.rewriteExpr(ex.End)
	case *hir.Match:
		m.rewriteExpr(ex.Scrutinee)
		for _, arm := range ex.Arms {
			m.rewriteExpr(arm.Body)
		}
	}
}

// tryQueueCall checks whether call targets a known generic function; if so
// it infers the concrete type arguments positionally (matching each generic
// parameter name against the declared type of the first formal parameter
// bound to it, then reading the corresponding actual argument's resolved
// type) and rewrites the callee to the mangled name. Nested generic
// positions (e.g. a declared parameter of type Array<T>) are not unified
// against the actual argument's element type in this baseline; only a
// parameter whose declared type is exactly Custom(genericName) with no
// arguments contributes a binding.
func (m *Monomorphizer) tryQueueCall(call *hir.Call) {
	ident, ok := call.Callee.(*hir.Identifier)
	if !ok {
		return
	}
	generic, ok := m.generics[ident.Name]
	if !ok {
		return
	}

	concreteArgs := make([]*types.Type, len(generic.Generics))
	for i, genericName := range generic.Generics {
		for pi, p := range generic.Params {
			if p.Type != nil && p.Type.Kind == types.KCustom && p.Type.Name == genericName && len(p.Type.Args) == 0 {
				if pi < len(call.Args) {
					concreteArgs[i] = m.subst.Apply(call.Args[pi].Type())
				}
				break
			}
		}
		if concreteArgs[i] == nil {
			concreteArgs[i] = types.Void()
		}
	}

	ident.Name = Mangle(generic.Name, concreteArgs)
	m.worklist = append(m.worklist, workItem{name: generic.Name, args: concreteArgs})
}
