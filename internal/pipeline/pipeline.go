package pipeline

import (
	"kinetix/internal/ast"
	"kinetix/internal/borrowck"
	"kinetix/internal/bytecode"
	"kinetix/internal/capability"
	"kinetix/internal/config"
	"kinetix/internal/exhaustive"
	"kinetix/internal/hir"
	"kinetix/internal/kierrors"
	"kinetix/internal/lexer"
	"kinetix/internal/mir"
	"kinetix/internal/mono"
	"kinetix/internal/parser"
	"kinetix/internal/reactive"
	"kinetix/internal/symbols"
	"kinetix/internal/traits"
	"kinetix/internal/typecheck"
	"kinetix/internal/validate"
)

// Result bundles everything a successful compile produces. Diagnostics
// collects every stage's errors, also on failure, so a caller can print
// every error found rather than just the first; it is nil when no stage
// reported anything.
type Result struct {
	Program     *ast.Program
	HIR         *hir.Program
	MIR         *mir.Program
	Reactive    *reactive.Graph
	Compiled    *bytecode.CompiledProgram
	Diagnostics kierrors.List
}

// Options configures a single compile. Grants is consulted by the
// capability auditor (§4.9); MaxDepth bounds unification and generic
// instantiation (§4.7).
type Options struct {
	Grants   map[config.Capability]bool
	MaxDepth int
}

// DefaultOptions grants every capability and uses the configured default
// instantiation depth, matching what the CLI collaborator hands a plain
// `kinetix run` invocation (§6).
func DefaultOptions() Options {
	return Options{Grants: config.DefaultGrants(), MaxDepth: config.MaxInstantiationDepth}
}

// CompileFile preprocesses, lexes, parses and statically verifies the
// program rooted at path, then emits bytecode for it. Every stage's
// diagnostics are collected; lexing/parsing errors abort immediately since
// nothing downstream can be trusted once the grammar didn't recognize the
// source, but every static-verification pass after parsing runs to
// completion and contributes to the combined diagnostic list.
func CompileFile(path string, opts Options) (*Result, error) {
	src, err := Preprocess(path)
	if err != nil {
		return nil, err
	}
	return Compile(src, opts)
}

// Compile runs the full pipeline over already-preprocessed source text.
func Compile(src string, opts Options) (*Result, error) {
	res := &Result{}

	toks := lexer.NewScanner(src).ScanTokens()
	p := parser.NewParser(toks)
	prog := p.Parse()
	if len(p.Errors) != 0 {
		var diags kierrors.List
		for _, e := range p.Errors {
			diags = append(diags, kierrors.New(kierrors.Parse, 0, "%s", e))
		}
		res.Diagnostics = diags
		return res, diags
	}
	res.Program = prog

	var diags kierrors.List

	diags = append(diags, symbols.NewResolver().Resolve(prog)...)

	traitsEnv := traits.NewEnvironment()
	diags = append(diags, traitsEnv.Register(prog)...)

	hirProg := hir.NewLowerer().LowerProgram(prog)
	res.HIR = hirProg

	checker := typecheck.NewChecker(opts.MaxDepth)
	diags = append(diags, checker.Check(hirProg)...)
	subst := checker.Subst

	normalized := typecheck.NormalizePost(hirProg, subst, traitsEnv)
	res.HIR = normalized

	enums := exhaustive.EnumRegistry(normalized)
	exhaustiveChecker := exhaustive.NewChecker(subst, enums)
	diags = append(diags, exhaustiveChecker.Check(normalized)...)

	auditor := capability.NewAuditor(opts.Grants)
	diags = append(diags, auditor.Audit(normalized)...)

	monomorphizer := mono.NewMonomorphizer(subst)
	monomorphizer.Run(normalized)

	mirProg := mir.Build(normalized, subst)
	res.MIR = mirProg

	diags = append(diags, borrowck.CheckProgram(mirProg)...)
	diags = append(diags, validate.CheckProgram(mirProg)...)

	graph, reactiveDiags := reactive.Build(normalized)
	diags = append(diags, reactiveDiags...)
	res.Reactive = graph

	res.Diagnostics = diags
	if diags.HasErrors() {
		return res, diags
	}

	compiled, compileErrs := bytecode.CompileProgram(prog)
	if len(compileErrs) != 0 {
		var cdiags kierrors.List
		for _, e := range compileErrs {
			cdiags = append(cdiags, kierrors.New(kierrors.Parse, 0, "%s", e))
		}
		res.Diagnostics = append(res.Diagnostics, cdiags...)
		return res, res.Diagnostics
	}
	compiled.ReactiveGraph = reactiveGraphInfo(graph)
	res.Compiled = compiled

	return res, nil
}

// reactiveGraphInfo flattens a reactive.Graph's set-valued maps into the
// sorted-slice shape bytecode.CompiledProgram carries, since a serialized
// program (§4.16) needs a stable, deterministic encoding.
func reactiveGraphInfo(g *reactive.Graph) *bytecode.ReactiveGraphInfo {
	if g == nil {
		return nil
	}
	info := &bytecode.ReactiveGraphInfo{
		Nodes:       map[string]string{},
		Deps:        map[string][]string{},
		Dependents:  map[string][]string{},
		UpdateOrder: append([]string(nil), g.UpdateOrder...),
	}
	for name, node := range g.Nodes {
		if node.Kind == reactive.NodeState {
			info.Nodes[name] = "state"
		} else {
			info.Nodes[name] = "computed"
		}
	}
	for name, deps := range g.Dependencies {
		for dep := range deps {
			info.Deps[name] = append(info.Deps[name], dep)
		}
	}
	for name, dependents := range g.Dependents {
		for dep := range dependents {
			info.Dependents[name] = append(info.Dependents[name], dep)
		}
	}
	return info
}
