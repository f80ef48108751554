package config

import "testing"

func TestNewAppliesDefaults(t *testing.T) {
	c := New()
	if c.MaxTicks != MaxTicks {
		t.Fatalf("expected default MaxTicks %d, got %d", MaxTicks, c.MaxTicks)
	}
	if c.MaxInstantiationDepth != MaxInstantiationDepth {
		t.Fatalf("expected default MaxInstantiationDepth %d, got %d", MaxInstantiationDepth, c.MaxInstantiationDepth)
	}
	if !c.Granted(FsRead) {
		t.Fatal("expected FsRead granted by default")
	}
	if c.Granted(ThreadControl) {
		t.Fatal("expected ThreadControl denied by default")
	}
}

func TestWithGrantsOverridesDefaults(t *testing.T) {
	c := New(WithGrants(map[Capability]bool{NetAccess: false}))
	if c.Granted(NetAccess) {
		t.Fatal("expected NetAccess denied by the overriding grant map")
	}
	if c.Granted(FsRead) {
		t.Fatal("expected an overriding grant map to fully replace the defaults, not merge")
	}
}

func TestWithMaxTicksOverridesDefault(t *testing.T) {
	c := New(WithMaxTicks(5))
	if c.MaxTicks != 5 {
		t.Fatalf("expected MaxTicks 5, got %d", c.MaxTicks)
	}
}
