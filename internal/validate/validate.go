// Package validate runs structural sanity checks over monomorphized MIR
// (§4.13): every declared type must have bounded depth and contain no
// surviving unification variable, every local is dropped at most once per
// block, and aggregates are never split into per-field locals.
package validate

import (
	"kinetix/internal/kierrors"
	"kinetix/internal/mir"
	"kinetix/internal/types"
)

const maxTypeDepth = 32

// CheckProgram runs all three validators over every function plus <main>,
// collecting violations from all of them rather than stopping at the first.
func CheckProgram(prog *mir.Program) kierrors.List {
	var errs kierrors.List
	for _, fn := range prog.Functions {
		errs = append(errs, checkFunction(fn)...)
	}
	errs = append(errs, checkFunction(prog.Main)...)
	return errs
}

func checkFunction(fn *mir.Function) kierrors.List {
	var errs kierrors.List
	errs = append(errs, checkPostMono(fn)...)
	errs = append(errs, checkDrops(fn)...)
	errs = append(errs, checkSSA(fn)...)
	return errs
}

// checkPostMono verifies every local's declared type and the function's
// return type have bounded depth and no surviving Var.
func checkPostMono(fn *mir.Function) kierrors.List {
	var errs kierrors.List
	line := declLine(fn)
	for _, local := range fn.Locals {
		checkType(local.Type, local.Name, line, &errs)
	}
	checkType(fn.ReturnType, fn.Name+" return type", line, &errs)
	return errs
}

func declLine(fn *mir.Function) int {
	for _, b := range fn.Blocks {
		for _, s := range b.Statements {
			return s.Line
		}
		if b.Terminator != nil {
			return b.Terminator.Line
		}
	}
	return 0
}

func checkType(t *types.Type, name string, line int, errs *kierrors.List) {
	if t == nil {
		return
	}
	if depth(t, 0) > maxTypeDepth {
		*errs = append(*errs, kierrors.New(kierrors.Validator, line,
			"Type of '%s' exceeds maximum nesting depth of %d", name, maxTypeDepth))
		return
	}
	if hasVar(t) {
		*errs = append(*errs, kierrors.New(kierrors.Validator, line,
			"Unresolved type variable survived monomorphization in '%s'", name))
	}
}

func depth(t *types.Type, cur int) int {
	if t == nil || cur > maxTypeDepth {
		return cur
	}
	switch t.Kind {
	case types.KArray, types.KRef, types.KMutRef:
		return depth(t.Elem, cur+1)
	case types.KMap:
		kd := depth(t.Key, cur+1)
		vd := depth(t.Val, cur+1)
		if vd > kd {
			return vd
		}
		return kd
	case types.KFn:
		max := depth(t.Ret, cur+1)
		for _, p := range t.Params {
			if d := depth(p, cur+1); d > max {
				max = d
			}
		}
		return max
	case types.KCustom:
		max := cur
		for _, a := range t.Args {
			if d := depth(a, cur+1); d > max {
				max = d
			}
		}
		return max
	default:
		return cur
	}
}

func hasVar(t *types.Type) bool {
	if t == nil {
		return false
	}
	switch t.Kind {
	case types.KVar:
		return true
	case types.KArray, types.KRef, types.KMutRef:
		return hasVar(t.Elem)
	case types.KMap:
		return hasVar(t.Key) || hasVar(t.Val)
	case types.KFn:
		if hasVar(t.Ret) {
			return true
		}
		for _, p := range t.Params {
			if hasVar(p) {
				return true
			}
		}
		return false
	case types.KCustom:
		for _, a := range t.Args {
			if hasVar(a) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// checkDrops verifies that within any single block, no local is the target
// of two Drop statements.
func checkDrops(fn *mir.Function) kierrors.List {
	var errs kierrors.List
	for _, block := range fn.Blocks {
		dropped := map[mir.LocalID]bool{}
		for _, stmt := range block.Statements {
			if stmt.Kind != mir.StmtDrop {
				continue
			}
			if dropped[stmt.Place.Local] {
				errs = append(errs, kierrors.New(kierrors.Validator, stmt.Line,
					"Local '%s' is dropped more than once in the same block", localName(fn.Locals, stmt.Place.Local)))
				continue
			}
			dropped[stmt.Place.Local] = true
		}
	}
	return errs
}

// checkSSA verifies aggregate locals are never split into per-field
// locals. Place carries only a single LocalID with no field projection, so
// a field-split aggregate could only manifest as a local whose name encodes
// a field path (e.g. "point.x"); that is the one shape this pass can
// actually observe and reject.
func checkSSA(fn *mir.Function) kierrors.List {
	var errs kierrors.List
	line := declLine(fn)
	for _, local := range fn.Locals {
		for i, c := range local.Name {
			if c == '.' && i > 0 {
				errs = append(errs, kierrors.New(kierrors.Validator, line,
					"Local '%s' appears to be a field-split aggregate member", local.Name))
				break
			}
		}
	}
	return errs
}

func localName(locals []mir.LocalDecl, id mir.LocalID) string {
	if int(id) >= len(locals) || locals[id].Name == "" {
		return "unknown"
	}
	return locals[id].Name
}
