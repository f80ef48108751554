// Package types implements the Kinetix type union, substitutions, and
// Robinson unification (§3, §4.7).
package types

import "fmt"

type Kind int

const (
	KInt Kind = iota
	KFloat
	KBool
	KStr
	KVoid
	KFn
	KArray
	KMap
	KRef
	KMutRef
	KVar
	KCustom
)

// Type is the tagged union described in §3. Two types are equal iff
// structurally identical after substitution.
type Type struct {
	Kind Kind

	// Fn
	Params []*Type
	Ret    *Type

	// Array / Ref / MutRef element
	Elem *Type

	// Map
	Key *Type
	Val *Type

	// Var
	VarID uint32

	// Custom
	Name string
	Args []*Type
}

func Int() *Type   { return &Type{Kind: KInt} }
func Float() *Type { return &Type{Kind: KFloat} }
func Bool() *Type  { return &Type{Kind: KBool} }
func Str() *Type   { return &Type{Kind: KStr} }
func Void() *Type  { return &Type{Kind: KVoid} }

func Fn(params []*Type, ret *Type) *Type { return &Type{Kind: KFn, Params: params, Ret: ret} }
func Array(elem *Type) *Type             { return &Type{Kind: KArray, Elem: elem} }
func Map(key, val *Type) *Type           { return &Type{Kind: KMap, Key: key, Val: val} }
func Ref(elem *Type) *Type               { return &Type{Kind: KRef, Elem: elem} }
func MutRef(elem *Type) *Type            { return &Type{Kind: KMutRef, Elem: elem} }
func Var(id uint32) *Type                { return &Type{Kind: KVar, VarID: id} }
func Custom(name string, args []*Type) *Type {
	return &Type{Kind: KCustom, Name: name, Args: args}
}

// TriviallyCopyable ≡ Int | Float | Bool | Void | Fn(_) | Ref(_).
func (t *Type) TriviallyCopyable() bool {
	switch t.Kind {
	case KInt, KFloat, KBool, KVoid, KFn, KRef:
		return true
	default:
		return false
	}
}

func (t *Type) String() string {
	switch t.Kind {
	case KInt:
		return "Int"
	case KFloat:
		return "Float"
	case KBool:
		return "Bool"
	case KStr:
		return "Str"
	case KVoid:
		return "Void"
	case KFn:
		params := ""
		for i, p := range t.Params {
			if i > 0 {
				params += ", "
			}
			params += p.String()
		}
		return fmt.Sprintf("Fn(%s) -> %s", params, t.Ret)
	case KArray:
		return fmt.Sprintf("Array<%s>", t.Elem)
	case KMap:
		return fmt.Sprintf("Map<%s, %s>", t.Key, t.Val)
	case KRef:
		return fmt.Sprintf("&%s", t.Elem)
	case KMutRef:
		return fmt.Sprintf("&mut %s", t.Elem)
	case KVar:
		return fmt.Sprintf("?%d", t.VarID)
	case KCustom:
		if len(t.Args) == 0 {
			return t.Name
		}
		args := ""
		for i, a := range t.Args {
			if i > 0 {
				args += ", "
			}
			args += a.String()
		}
		return fmt.Sprintf("%s<%s>", t.Name, args)
	default:
		return "?"
	}
}

// Substitution maps Var ids to Types; bindings are chased transitively.
type Substitution struct {
	bindings map[uint32]*Type
}

func NewSubstitution() *Substitution {
	return &Substitution{bindings: make(map[uint32]*Type)}
}

// Chase walks var bindings to the representative term.
func (s *Substitution) Chase(t *Type) *Type {
	for t.Kind == KVar {
		next, ok := s.bindings[t.VarID]
		if !ok {
			return t
		}
		t = next
	}
	return t
}

// Apply substitutes recursively through a resolved term.
func (s *Substitution) Apply(t *Type) *Type {
	t = s.Chase(t)
	switch t.Kind {
	case KFn:
		params := make([]*Type, len(t.Params))
		for i, p := range t.Params {
			params[i] = s.Apply(p)
		}
		return Fn(params, s.Apply(t.Ret))
	case KArray:
		return Array(s.Apply(t.Elem))
	case KMap:
		return Map(s.Apply(t.Key), s.Apply(t.Val))
	case KRef:
		return Ref(s.Apply(t.Elem))
	case KMutRef:
		return MutRef(s.Apply(t.Elem))
	case KCustom:
		args := make([]*Type, len(t.Args))
		for i, a := range t.Args {
			args[i] = s.Apply(a)
		}
		return Custom(t.Name, args)
	default:
		return t
	}
}

func (s *Substitution) bind(id uint32, t *Type) { s.bindings[id] = t }

// occurs reports whether var id occurs free in t (post-chase).
func (s *Substitution) occurs(id uint32, t *Type) bool {
	t = s.Chase(t)
	switch t.Kind {
	case KVar:
		return t.VarID == id
	case KFn:
		for _, p := range t.Params {
			if s.occurs(id, p) {
				return true
			}
		}
		return s.occurs(id, t.Ret)
	case KArray, KRef, KMutRef:
		return s.occurs(id, t.Elem)
	case KMap:
		return s.occurs(id, t.Key) || s.occurs(id, t.Val)
	case KCustom:
		for _, a := range t.Args {
			if s.occurs(id, a) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// UnifyError reports a structural mismatch, arity mismatch, occurs-check
// failure, or instantiation-depth overflow.
type UnifyError struct {
	Message string
}

func (e *UnifyError) Error() string { return e.Message }

// Unify solves t1 ≡ t2 structurally, binding unification variables with an
// occurs check. maxDepth bounds recursive instantiation depth (§4.7).
func (s *Substitution) Unify(t1, t2 *Type, maxDepth int) error {
	return s.unify(t1, t2, 0, maxDepth)
}

func (s *Substitution) unify(t1, t2 *Type, depth, maxDepth int) error {
	if depth > maxDepth {
		return &UnifyError{Message: fmt.Sprintf("Instantiation too deep (limit %d)", maxDepth)}
	}
	t1 = s.Chase(t1)
	t2 = s.Chase(t2)

	if t1.Kind == KVar && t2.Kind == KVar && t1.VarID == t2.VarID {
		return nil
	}
	if t1.Kind == KVar {
		if s.occurs(t1.VarID, t2) {
			return &UnifyError{Message: fmt.Sprintf("Infinite type: ?%d occurs in %s", t1.VarID, t2)}
		}
		s.bind(t1.VarID, t2)
		return nil
	}
	if t2.Kind == KVar {
		if s.occurs(t2.VarID, t1) {
			return &UnifyError{Message: fmt.Sprintf("Infinite type: ?%d occurs in %s", t2.VarID, t1)}
		}
		s.bind(t2.VarID, t1)
		return nil
	}
	if t1.Kind != t2.Kind {
		return &UnifyError{Message: fmt.Sprintf("Type mismatch: %s vs %s", t1, t2)}
	}
	switch t1.Kind {
	case KInt, KFloat, KBool, KStr, KVoid:
		return nil
	case KFn:
		if len(t1.Params) != len(t2.Params) {
			return &UnifyError{Message: fmt.Sprintf("Function arity mismatch: %d vs %d", len(t1.Params), len(t2.Params))}
		}
		for i := range t1.Params {
			if err := s.unify(t1.Params[i], t2.Params[i], depth+1, maxDepth); err != nil {
				return err
			}
		}
		return s.unify(t1.Ret, t2.Ret, depth+1, maxDepth)
	case KArray, KRef, KMutRef:
		return s.unify(t1.Elem, t2.Elem, depth+1, maxDepth)
	case KMap:
		if err := s.unify(t1.Key, t2.Key, depth+1, maxDepth); err != nil {
			return err
		}
		return s.unify(t1.Val, t2.Val, depth+1, maxDepth)
	case KCustom:
		if t1.Name != t2.Name || len(t1.Args) != len(t2.Args) {
			return &UnifyError{Message: fmt.Sprintf("Type mismatch: %s vs %s", t1, t2)}
		}
		for i := range t1.Args {
			if err := s.unify(t1.Args[i], t2.Args[i], depth+1, maxDepth); err != nil {
				return err
			}
		}
		return nil
	default:
		return &UnifyError{Message: fmt.Sprintf("Type mismatch: %s vs %s", t1, t2)}
	}
}

// FreshVarGen hands out ascending unification-variable ids.
type FreshVarGen struct{ next uint32 }

// NewFreshVarGenFrom starts the generator at a given id, so generators
// minting ids for unrelated purposes (e.g. a later pass) don't collide.
func NewFreshVarGenFrom(start uint32) *FreshVarGen {
	return &FreshVarGen{next: start}
}

func (g *FreshVarGen) Fresh() *Type {
	v := Var(g.next)
	g.next++
	return v
}
