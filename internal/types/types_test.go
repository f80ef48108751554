package types

import "testing"

func TestStringRendersCompositeTypes(t *testing.T) {
	cases := []struct {
		t    *Type
		want string
	}{
		{Int(), "Int"},
		{Array(Int()), "Array<Int>"},
		{Map(Str(), Bool()), "Map<Str, Bool>"},
		{Ref(Float()), "&Float"},
		{MutRef(Float()), "&mut Float"},
		{Fn([]*Type{Int(), Str()}, Bool()), "Fn(Int, Str) -> Bool"},
		{Custom("Option", []*Type{Int()}), "Option<Int>"},
		{Custom("Widget", nil), "Widget"},
		{Var(7), "?7"},
	}
	for _, c := range cases {
		if got := c.t.String(); got != c.want {
			t.Errorf("String() = %q, want %q", got, c.want)
		}
	}
}

func TestTriviallyCopyable(t *testing.T) {
	copyable := []*Type{Int(), Float(), Bool(), Void(), Fn(nil, Void()), Ref(Int())}
	for _, ty := range copyable {
		if !ty.TriviallyCopyable() {
			t.Errorf("expected %s to be trivially copyable", ty)
		}
	}
	notCopyable := []*Type{Str(), Array(Int()), Map(Str(), Int()), MutRef(Int()), Custom("Widget", nil)}
	for _, ty := range notCopyable {
		if ty.TriviallyCopyable() {
			t.Errorf("expected %s to not be trivially copyable", ty)
		}
	}
}

func TestUnifyBindsVariablesToConcreteTypes(t *testing.T) {
	s := NewSubstitution()
	v := Var(0)
	if err := s.Unify(v, Int(), 100); err != nil {
		t.Fatalf("unexpected unify error: %v", err)
	}
	if got := s.Chase(v); got.Kind != KInt {
		t.Fatalf("expected ?0 to resolve to Int, got %s", got)
	}
}

func TestUnifyRejectsMismatchedPrimitives(t *testing.T) {
	s := NewSubstitution()
	if err := s.Unify(Int(), Str(), 100); err == nil {
		t.Fatal("expected a type mismatch error")
	}
}

func TestUnifyChecksFunctionArity(t *testing.T) {
	s := NewSubstitution()
	a := Fn([]*Type{Int()}, Void())
	b := Fn([]*Type{Int(), Int()}, Void())
	if err := s.Unify(a, b, 100); err == nil {
		t.Fatal("expected an arity mismatch error")
	}
}

func TestUnifyRecursesThroughCompositeTypes(t *testing.T) {
	s := NewSubstitution()
	v := Var(0)
	a := Array(v)
	b := Array(Int())
	if err := s.Unify(a, b, 100); err != nil {
		t.Fatalf("unexpected unify error: %v", err)
	}
	if got := s.Chase(v); got.Kind != KInt {
		t.Fatalf("expected ?0 to resolve to Int through Array<_>, got %s", got)
	}
}

func TestUnifyDetectsOccursCheckFailure(t *testing.T) {
	s := NewSubstitution()
	v := Var(0)
	cyclic := Array(v)
	if err := s.Unify(v, cyclic, 100); err == nil {
		t.Fatal("expected an occurs-check (infinite type) error")
	}
}

func TestUnifyEnforcesMaxDepth(t *testing.T) {
	s := NewSubstitution()
	deep := Array(Array(Array(Int())))
	if err := s.Unify(deep, deep, 1); err == nil {
		t.Fatal("expected an instantiation-depth error")
	}
}

func TestApplySubstitutesRecursively(t *testing.T) {
	s := NewSubstitution()
	v := Var(0)
	if err := s.Unify(v, Str(), 100); err != nil {
		t.Fatalf("unexpected unify error: %v", err)
	}
	applied := s.Apply(Array(v))
	if applied.Kind != KArray || applied.Elem.Kind != KStr {
		t.Fatalf("expected Array<?0> to resolve to Array<Str>, got %s", applied)
	}
}

func TestFreshVarGenProducesAscendingIDs(t *testing.T) {
	g := NewFreshVarGenFrom(5)
	a, b := g.Fresh(), g.Fresh()
	if a.VarID != 5 || b.VarID != 6 {
		t.Fatalf("expected ids 5 then 6, got %d then %d", a.VarID, b.VarID)
	}
}
