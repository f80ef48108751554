package main

import (
	"os"
	"path/filepath"
	"testing"

	"kinetix/internal/config"
	"kinetix/internal/pipeline"
)

func TestGrantsFromFlagsAppliesOverrides(t *testing.T) {
	grants, rest := grantsFromFlags([]string{"--grant=net", "--deny=fs_write", "script.kix"})
	if !grants[config.Capability("net")] {
		t.Fatal("expected --grant=net to set the net capability")
	}
	if grants[config.Capability("fs_write")] {
		t.Fatal("expected --deny=fs_write to clear the fs_write capability")
	}
	if len(rest) != 1 || rest[0] != "script.kix" {
		t.Fatalf("expected non-flag args to pass through, got %v", rest)
	}
}

func TestGrantsFromFlagsStartsFromDefaults(t *testing.T) {
	grants, _ := grantsFromFlags(nil)
	defaults := config.DefaultGrants()
	for capability, want := range defaults {
		if grants[capability] != want {
			t.Fatalf("expected default grant for %s to be %v, got %v", capability, want, grants[capability])
		}
	}
}

func TestCompileErrReturnsRawErrorWhenResultIsNil(t *testing.T) {
	want := os.ErrNotExist
	if got := compileErr(nil, want); got != want {
		t.Fatalf("expected the raw error back, got %v", got)
	}
}

func TestCompileErrReturnsDiagnosticsWhenResultExists(t *testing.T) {
	res := &pipeline.Result{}
	if got := compileErr(res, os.ErrNotExist); got != nil {
		if got.Error() == "" {
			t.Fatal("expected a non-empty diagnostics error")
		}
	}
}

func TestDiscoverTestFilesFindsKixFilesRecursively(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.kix"), []byte("print(1)"), 0o644); err != nil {
		t.Fatalf("unexpected write error: %v", err)
	}
	sub := filepath.Join(dir, "nested")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatalf("unexpected mkdir error: %v", err)
	}
	if err := os.WriteFile(filepath.Join(sub, "b.kix"), []byte("print(2)"), 0o644); err != nil {
		t.Fatalf("unexpected write error: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "readme.md"), []byte("ignore me"), 0o644); err != nil {
		t.Fatalf("unexpected write error: %v", err)
	}

	files, err := discoverTestFiles(dir)
	if err != nil {
		t.Fatalf("unexpected discover error: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 .kix files, got %v", files)
	}
}

func TestDiscoverTestFilesAcceptsSingleFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "only.kix")
	if err := os.WriteFile(path, []byte("print(1)"), 0o644); err != nil {
		t.Fatalf("unexpected write error: %v", err)
	}

	files, err := discoverTestFiles(path)
	if err != nil {
		t.Fatalf("unexpected discover error: %v", err)
	}
	if len(files) != 1 || files[0] != path {
		t.Fatalf("expected [%s], got %v", path, files)
	}
}
