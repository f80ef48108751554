package vm

import "testing"

func TestIsTruthyMatchesTheZeroValueRule(t *testing.T) {
	cases := []struct {
		v    Value
		want bool
	}{
		{Null(), false},
		{Bool(false), false},
		{Bool(true), true},
		{Int(0), false},
		{Int(1), true},
		{Float(0), false},
		{Float(0.1), true},
		{Str(""), false},
		{Str("x"), true},
		{Array(nil), false},
		{Array([]Value{Int(1)}), true},
		{Map(map[string]Value{}), false},
		{Map(map[string]Value{"a": Int(1)}), true},
	}
	for _, c := range cases {
		if got := IsTruthy(c.v); got != c.want {
			t.Errorf("IsTruthy(%+v) = %v, want %v", c.v, got, c.want)
		}
	}
}

func TestEqualComparesPrimitivesByValue(t *testing.T) {
	if !Equal(Int(5), Int(5)) {
		t.Fatal("expected Int(5) == Int(5)")
	}
	if Equal(Int(5), Int(6)) {
		t.Fatal("expected Int(5) != Int(6)")
	}
	if Equal(Int(5), Float(5)) {
		t.Fatal("expected different kinds to never be equal")
	}
	if !Equal(Str("a"), Str("a")) {
		t.Fatal("expected equal strings to compare equal")
	}
}

func TestEqualComparesHeapValuesByIdentity(t *testing.T) {
	a := Array([]Value{Int(1)})
	b := Array([]Value{Int(1)})
	if Equal(a, b) {
		t.Fatal("expected two distinct array allocations to not be equal")
	}
	if !Equal(a, a) {
		t.Fatal("expected an array to equal itself")
	}
}

func TestEqualComparesBoundMethodsByReceiverAndName(t *testing.T) {
	recv := Int(1)
	a := BoundMethod(recv, "foo")
	b := BoundMethod(recv, "foo")
	if !Equal(a, b) {
		t.Fatal("expected bound methods with equal receivers and names to be equal")
	}
	c := BoundMethod(recv, "bar")
	if Equal(a, c) {
		t.Fatal("expected bound methods with different names to not be equal")
	}
}

func TestCompareOrdersIntsWithoutFloatConversion(t *testing.T) {
	if cmp, ok := Compare(Int(1), Int(2)); !ok || cmp != -1 {
		t.Fatalf("expected Int(1) < Int(2), got cmp=%d ok=%v", cmp, ok)
	}
	if cmp, ok := Compare(Int(2), Int(2)); !ok || cmp != 0 {
		t.Fatalf("expected Int(2) == Int(2), got cmp=%d ok=%v", cmp, ok)
	}
}

func TestCompareOrdersMixedNumericKinds(t *testing.T) {
	cmp, ok := Compare(Int(1), Float(1.5))
	if !ok || cmp != -1 {
		t.Fatalf("expected Int(1) < Float(1.5), got cmp=%d ok=%v", cmp, ok)
	}
}

func TestCompareOrdersStringsLexically(t *testing.T) {
	cmp, ok := Compare(Str("apple"), Str("banana"))
	if !ok || cmp != -1 {
		t.Fatalf("expected apple < banana, got cmp=%d ok=%v", cmp, ok)
	}
}

func TestCompareRejectsIncomparableKinds(t *testing.T) {
	if _, ok := Compare(Int(1), Str("1")); ok {
		t.Fatal("expected Int and Str to not be comparable")
	}
	if _, ok := Compare(Bool(true), Bool(false)); ok {
		t.Fatal("expected Bool to not be comparable")
	}
}

func TestToDisplayStringRendersEachKind(t *testing.T) {
	cases := []struct {
		v    Value
		want string
	}{
		{Null(), "null"},
		{Int(42), "42"},
		{Bool(true), "true"},
		{Bool(false), "false"},
		{Str("hi"), "hi"},
		{Array([]Value{Int(1), Int(2)}), "[1, 2]"},
		{Function(3), "<function #3>"},
		{NativeFn("print"), "<native print>"},
		{NativeModule("math"), "<module math>"},
	}
	for _, c := range cases {
		if got := ToDisplayString(c.v); got != c.want {
			t.Errorf("ToDisplayString(%+v) = %q, want %q", c.v, got, c.want)
		}
	}
}
