// Package bytecode emits register-based bytecode by walking the AST
// directly (§4.15 — the MIR/borrowck/mono/validate branch is a separate
// static-verification concern, not a codegen input in this baseline).
package bytecode

import "kinetix/internal/vm"

// ConstKind tags a constant pool entry.
type ConstKind uint8

const (
	ConstInteger ConstKind = iota
	ConstFloat
	ConstString
	ConstBoolean
	ConstNull
	ConstFunction
	ConstClass
)

// ClassConst describes a class constant pool entry: its method table
// (ordered by declaration) and field/parent metadata.
type ClassConst struct {
	Name    string
	Methods []int // function indices, declaration order
	Fields  []string
	Parent  string
}

// Constant is a deduplicated constant pool entry (§3).
type Constant struct {
	Kind     ConstKind
	Int      int64
	Float    float64
	Str      string
	Bool     bool
	FnIndex  int
	Class    ClassConst
}

// CompiledFunction is one function's compiled body.
type CompiledFunction struct {
	Name         string
	Arity        int
	Locals       int // max register count, tracked via max_temp across scopes
	Instructions []vm.Instruction
	Constants    []Constant
	ParamNames   []string
	LineMap      []int // LineMap[pc] is the source line of Instructions[pc]
}

// ReactiveGraphInfo is the serialized shape of a reactive.Graph, carried on
// CompiledProgram so the VM's tick loop (§4.17) doesn't need to re-derive it.
type ReactiveGraphInfo struct {
	Nodes       map[string]string // name -> "state" | "computed"
	Deps        map[string][]string
	Dependents  map[string][]string
	UpdateOrder []string
}

// CompiledProgram is the VM-ready artifact produced by the emitter and
// consumed by the bundle codec (§4.16).
type CompiledProgram struct {
	Main          *CompiledFunction
	Functions     []*CompiledFunction
	Version       int
	ReactiveGraph *ReactiveGraphInfo
	VTable        map[string][]int // class name -> method function indices, for dynamic dispatch
}
