// Package symbols implements the two-pass scoped symbol resolver (§4.3).
package symbols

import (
	"kinetix/internal/ast"
	"kinetix/internal/kierrors"
)

// Symbol is a single resolved name.
type Symbol struct {
	Name       string
	Mutable    bool
	ScopeDepth int
}

// Table is a stack of scope frames; resolution searches innermost outward.
type Table struct {
	scopes []map[string]*Symbol
}

func NewTable() *Table {
	return &Table{scopes: []map[string]*Symbol{{}}}
}

func (t *Table) EnterScope() { t.scopes = append(t.scopes, map[string]*Symbol{}) }

func (t *Table) ExitScope() { t.scopes = t.scopes[:len(t.scopes)-1] }

func (t *Table) Depth() int { return len(t.scopes) - 1 }

func (t *Table) Define(name string, mutable bool) {
	t.scopes[len(t.scopes)-1][name] = &Symbol{Name: name, Mutable: mutable, ScopeDepth: t.Depth()}
}

func (t *Table) Resolve(name string) (*Symbol, bool) {
	for i := len(t.scopes) - 1; i >= 0; i-- {
		if sym, ok := t.scopes[i][name]; ok {
			return sym, true
		}
	}
	return nil, false
}

// builtinModules are always-resolved name prefixes (§4.3).
var builtinModules = map[string]bool{
	"math": true, "system": true, "data": true, "net": true, "db": true,
	"string": true, "json": true, "csv": true, "audio": true, "graph": true,
	"term": true, "crypto": true, "llm": true,
}

func IsBuiltinModule(name string) bool { return builtinModules[name] }

// Resolver walks the AST, reporting "Undeclared variable: 'X'" per
// unresolved identifier that is not a known builtin module.
type Resolver struct {
	Table  *Table
	Errors kierrors.List
}

func NewResolver() *Resolver {
	return &Resolver{Table: NewTable()}
}

// Resolve runs both passes described in §4.3.
func (r *Resolver) Resolve(prog *ast.Program) kierrors.List {
	r.registerTopLevel(prog.Stmts)
	for _, stmt := range prog.Stmts {
		r.resolveStmt(stmt)
	}
	return r.Errors
}

func (r *Resolver) registerTopLevel(stmts []ast.Stmt) {
	for _, stmt := range stmts {
		switch s := stmt.(type) {
		case *ast.FunctionStmt:
			r.Table.Define(s.Name, false)
		case *ast.ClassStmt:
			r.Table.Define(s.Name, false)
		case *ast.StructStmt:
			r.Table.Define(s.Name, false)
		case *ast.EnumStmt:
			r.Table.Define(s.Name, false)
		case *ast.TraitStmt:
			r.Table.Define(s.Name, false)
		}
	}
}

func (r *Resolver) undeclared(name string, line int) {
	if IsBuiltinModule(name) {
		return
	}
	if _, ok := r.Table.Resolve(name); ok {
		return
	}
	r.Errors = append(r.Errors, kierrors.New(kierrors.Symbol, line, "Undeclared variable: '%s'", name))
}

func (r *Resolver) resolveStmt(stmt ast.Stmt) {
	switch s := stmt.(type) {
	case *ast.LetStmt:
		r.resolveExpr(s.Value)
		r.Table.Define(s.Name, s.Mutable)
	case *ast.ReturnStmt:
		if s.Value != nil {
			r.resolveExpr(s.Value)
		}
	case *ast.ExpressionStmt:
		r.resolveExpr(s.Expr)
	case *ast.FunctionStmt:
		r.Table.EnterScope()
		for _, p := range s.Params {
			r.Table.Define(p.Name, false)
		}
		r.resolveBlock(s.Body)
		r.Table.ExitScope()
	case *ast.WhileStmt:
		r.resolveExpr(s.Cond)
		r.Table.EnterScope()
		r.resolveBlock(s.Body)
		r.Table.ExitScope()
	case *ast.ForStmt:
		r.resolveExpr(s.Iterable)
		r.Table.EnterScope()
		r.Table.Define(s.Variable, false)
		r.resolveBlock(s.Body)
		r.Table.ExitScope()
	case *ast.ClassStmt:
		for _, m := range s.Methods {
			r.resolveStmt(m)
		}
	case *ast.ImplStmt:
		for _, m := range s.Methods {
			r.resolveStmt(m)
		}
	case *ast.StateStmt:
		r.resolveExpr(s.Value)
		r.Table.Define(s.Name, true)
	case *ast.ComputedStmt:
		r.resolveExpr(s.Value)
		r.Table.Define(s.Name, false)
	case *ast.EffectStmt:
		r.Table.EnterScope()
		r.resolveBlock(s.Body)
		r.Table.ExitScope()
	}
}

func (r *Resolver) resolveBlock(stmts []ast.Stmt) {
	for _, s := range stmts {
		r.resolveStmt(s)
	}
}

func (r *Resolver) resolveExpr(expr ast.Expr) {
	if expr == nil {
		return
	}
	switch e := expr.(type) {
	case *ast.Identifier:
		r.undeclared(e.Name, e.Line())
	case *ast.Prefix:
		r.resolveExpr(e.Operand)
	case *ast.Infix:
		r.resolveExpr(e.Left)
		r.resolveExpr(e.Right)
	case *ast.If:
		r.resolveExpr(e.Cond)
		r.Table.EnterScope()
		r.resolveBlock(e.Then)
		r.Table.ExitScope()
		r.Table.EnterScope()
		r.resolveBlock(e.Else)
		r.Table.ExitScope()
	case *ast.Call:
		r.resolveExpr(e.Callee)
		for _, a := range e.Args {
			r.resolveExpr(a)
		}
	case *ast.MethodCall:
		r.resolveExpr(e.Object)
		for _, a := range e.Args {
			r.resolveExpr(a)
		}
	case *ast.FunctionLiteral:
		r.Table.EnterScope()
		for _, p := range e.Params {
			r.Table.Define(p, false)
		}
		r.resolveBlock(e.Body)
		r.Table.ExitScope()
	case *ast.ArrayLiteral:
		for _, el := range e.Elements {
			r.resolveExpr(el)
		}
	case *ast.MapLiteral:
		for _, k := range e.Keys {
			r.resolveExpr(k)
		}
		for _, v := range e.Values {
			r.resolveExpr(v)
		}
	case *ast.StructLiteral:
		for _, v := range e.FieldValues {
			r.resolveExpr(v)
		}
	case *ast.Index:
		r.resolveExpr(e.Object)
		r.resolveExpr(e.Index)
	case *ast.MemberAccess:
		r.resolveExpr(e.Object)
	case *ast.Assign:
		r.resolveExpr(e.Target)
		r.resolveExpr(e.Value)
	case *ast.Range:
		r.resolveExpr(e.Start)
		r.resolveExpr(e.End)
	case *ast.Match:
		r.resolveExpr(e.Scrutinee)
		for _, arm := range e.Arms {
			r.Table.EnterScope()
			if bp, ok := arm.Pattern.(*ast.BindingPattern); ok {
				r.Table.Define(bp.Name, false)
			}
			if vp, ok := arm.Pattern.(*ast.VariantPattern); ok {
				for _, b := range vp.Bindings {
					r.Table.Define(b, false)
				}
			}
			r.resolveExpr(arm.Body)
			r.Table.ExitScope()
		}
	}
}
