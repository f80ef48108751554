// Package traits records trait definitions and impls, and checks coherence
// (§4.5).
package traits

import (
	"kinetix/internal/ast"
	"kinetix/internal/kierrors"
	"kinetix/internal/types"
)

type MethodSig struct {
	Name       string
	ParamTypes []*types.Type
	ReturnType *types.Type
}

type Trait struct {
	Name    string
	Methods map[string]MethodSig
}

// Impl is one `impl [Trait for] Target { fns }` block. TraitName is empty
// for an inherent impl.
type Impl struct {
	TraitName string
	Target    string
	Methods   map[string]*ast.FunctionStmt
	Order     []string // method names in registration order
}

// Environment holds every trait definition and impl registered across a
// program, and resolves method calls once a receiver's type is known.
type Environment struct {
	Traits map[string]*Trait
	Impls  []*Impl // registration order
}

func NewEnvironment() *Environment {
	return &Environment{Traits: map[string]*Trait{}}
}

func typeFromExpr(te *ast.TypeExpr) *types.Type {
	if te == nil {
		return nil
	}
	switch te.Kind {
	case ast.TEInt:
		return types.Int()
	case ast.TEFloat:
		return types.Float()
	case ast.TEBool:
		return types.Bool()
	case ast.TEStr:
		return types.Str()
	case ast.TEVoid:
		return types.Void()
	default:
		return types.Custom(te.Name, nil)
	}
}

// Register walks the program's TraitStmt and ImplStmt nodes, populating the
// environment and reporting coherence violations.
func (e *Environment) Register(prog *ast.Program) kierrors.List {
	var errs kierrors.List
	for _, stmt := range prog.Stmts {
		if t, ok := stmt.(*ast.TraitStmt); ok {
			methods := map[string]MethodSig{}
			for _, m := range t.Methods {
				params := make([]*types.Type, len(m.ParamTypes))
				for i, p := range m.ParamTypes {
					params[i] = typeFromExpr(p)
				}
				methods[m.Name] = MethodSig{Name: m.Name, ParamTypes: params, ReturnType: typeFromExpr(m.ReturnType)}
			}
			e.Traits[t.Name] = &Trait{Name: t.Name, Methods: methods}
		}
	}
	for _, stmt := range prog.Stmts {
		impl, ok := stmt.(*ast.ImplStmt)
		if !ok {
			continue
		}
		methods := map[string]*ast.FunctionStmt{}
		var order []string
		for _, m := range impl.Methods {
			methods[m.Name] = m
			order = append(order, m.Name)
		}
		if impl.TraitName != "" {
			for _, existing := range e.Impls {
				if existing.TraitName == impl.TraitName && existing.Target == impl.Target {
					errs = append(errs, kierrors.New(kierrors.Trait, impl.Line(),
						"Overlapping impl: trait '%s' already implemented for '%s'", impl.TraitName, impl.Target))
				}
			}
		} else {
			for _, existing := range e.Impls {
				if existing.TraitName == "" && existing.Target == impl.Target {
					for name := range methods {
						if _, dup := existing.Methods[name]; dup {
							errs = append(errs, kierrors.New(kierrors.Trait, impl.Line(),
								"Duplicate inherent method '%s' for '%s'", name, impl.Target))
						}
					}
				}
			}
		}
		e.Impls = append(e.Impls, &Impl{TraitName: impl.TraitName, Target: impl.Target, Methods: methods, Order: order})
	}
	return errs
}

// Resolve finds the method body for `target.name`, preferring inherent
// impls over trait impls in registration order (§4.6).
func (e *Environment) Resolve(target, name string) (*ast.FunctionStmt, bool) {
	for _, impl := range e.Impls {
		if impl.TraitName == "" && impl.Target == target {
			if fn, ok := impl.Methods[name]; ok {
				return fn, true
			}
		}
	}
	for _, impl := range e.Impls {
		if impl.TraitName != "" && impl.Target == target {
			if fn, ok := impl.Methods[name]; ok {
				return fn, true
			}
		}
	}
	return nil, false
}
