// Package engine executes a bytecode.CompiledProgram (§4.17). It sits above
// both internal/vm (instruction/value types) and internal/bytecode (the
// compiled program shape) rather than inside either of them, since the
// teacher's single vmregister package mixed value representation, codegen,
// and execution together in one file set; splitting the concerns this way
// also avoids the import cycle that would otherwise appear (bytecode already
// imports vm for vm.Instruction).
package engine

import (
	"fmt"

	"kinetix/internal/bytecode"
	"kinetix/internal/config"
	"kinetix/internal/database"
	"kinetix/internal/vm"
)

// frame is one call's activation record. The register file is a single flat
// slice shared by every frame (teacher's vm.go design); a frame only ever
// addresses registers at regBase+A, regBase+B, regBase+C.
type frame struct {
	fn        *bytecode.CompiledFunction
	ip        int
	regBase   int
	returnReg int
}

// BuiltinFunc implements one dotted built-in name (e.g. "data.read_text").
type BuiltinFunc func(eng *Engine, args []vm.Value) (vm.Value, error)

// Engine is a single-threaded, cooperative interpreter (§5): there is no
// preemption between instructions, and the only re-entrancy is the reactive
// tick loop re-running main to a fixed point.
type Engine struct {
	program *bytecode.CompiledProgram
	grants  map[config.Capability]bool

	registers []vm.Value
	frames    []frame

	globals map[string]vm.Value

	// reactiveState holds persistent `state` values across ticks (§4.17);
	// SetState only initializes a name the first time it runs, UpdateState
	// always overwrites and marks the name dirty when the value changed.
	reactiveState map[string]vm.Value
	dirty         map[string]bool

	builtins map[string]BuiltinFunc
	db       *database.DBManager

	// resourceLocks is this engine's LIFO stack of the built-in names being
	// called, pushed only for the duration of a single built-in call, never
	// across a re-entrant Call into user code (§5's shared-resource rule).
	resourceLocks []string

	out func(string)
}

// New constructs an Engine ready to run prog under the given capability
// grants (§6's default grant set, or a CLI-overridden one).
func New(prog *bytecode.CompiledProgram, grants map[config.Capability]bool) *Engine {
	e := &Engine{
		program:       prog,
		grants:        grants,
		globals:       map[string]vm.Value{},
		reactiveState: map[string]vm.Value{},
		dirty:         map[string]bool{},
		db:            database.NewDBManager(),
		out:           func(s string) { fmt.Print(s) },
	}
	e.builtins = defaultBuiltins()
	return e
}

// SetOutput overrides where Print writes; tests use this to capture output.
func (e *Engine) SetOutput(w func(string)) { e.out = w }

// Run executes main to completion, then re-runs it for every tick that left
// the dirty set non-empty, up to config.MaxTicks (§4.17's reactive loop).
// Within a tick, side effects occur in textual program order; across ticks,
// state written in tick N is visible when tick N+1 begins.
func (e *Engine) Run() error {
	for tick := 0; tick < config.MaxTicks; tick++ {
		e.dirty = map[string]bool{}
		if _, err := e.runFunction(e.program.Main, nil); err != nil {
			return err
		}
		if len(e.dirty) == 0 {
			return nil
		}
	}
	return fmt.Errorf("reactive infinite loop: exceeded %d ticks", config.MaxTicks)
}

// runFunction pushes a fresh frame for fn with args already placed in the
// frame's low registers, runs it to a Return/ReturnVoid, and returns the
// result.
func (e *Engine) runFunction(fn *bytecode.CompiledFunction, args []vm.Value) (vm.Value, error) {
	base := len(e.registers)
	regs := make([]vm.Value, fn.Locals)
	copy(regs, args)
	e.registers = append(e.registers, regs...)
	e.frames = append(e.frames, frame{fn: fn, regBase: base})

	result, err := e.dispatchLoop()

	e.registers = e.registers[:base]
	e.frames = e.frames[:len(e.frames)-1]
	return result, err
}

func (e *Engine) reg(f *frame, i uint16) vm.Value      { return e.registers[f.regBase+int(i)] }
func (e *Engine) setReg(f *frame, i uint16, v vm.Value) { e.registers[f.regBase+int(i)] = v }

// dispatchLoop runs instructions for the top frame until it returns.
func (e *Engine) dispatchLoop() (vm.Value, error) {
	for {
		f := &e.frames[len(e.frames)-1]
		if f.ip >= len(f.fn.Instructions) {
			return vm.Null(), nil
		}
		in := f.fn.Instructions[f.ip]
		f.ip++

		switch in.Op {
		case vm.OpLoadConst:
			e.setReg(f, in.A, e.constantValue(f.fn, in.B))
		case vm.OpLoadNull:
			e.setReg(f, in.A, vm.Null())
		case vm.OpLoadTrue:
			e.setReg(f, in.A, vm.Bool(true))
		case vm.OpLoadFalse:
			e.setReg(f, in.A, vm.Bool(false))

		case vm.OpAdd, vm.OpSub, vm.OpMul, vm.OpDiv, vm.OpMod:
			v, err := arith(in.Op, e.reg(f, in.B), e.reg(f, in.C))
			if err != nil {
				return vm.Null(), err
			}
			e.setReg(f, in.A, v)
		case vm.OpConcat:
			e.setReg(f, in.A, vm.Str(vm.ToDisplayString(e.reg(f, in.B))+vm.ToDisplayString(e.reg(f, in.C))))

		case vm.OpNeg:
			operand := e.reg(f, in.B)
			if operand.Kind == vm.KFloat {
				e.setReg(f, in.A, vm.Float(-operand.Float))
			} else {
				e.setReg(f, in.A, vm.Int(-operand.Int))
			}
		case vm.OpNot:
			e.setReg(f, in.A, vm.Bool(!vm.IsTruthy(e.reg(f, in.B))))

		case vm.OpEq:
			e.setReg(f, in.A, vm.Bool(vm.Equal(e.reg(f, in.B), e.reg(f, in.C))))
		case vm.OpNeq:
			e.setReg(f, in.A, vm.Bool(!vm.Equal(e.reg(f, in.B), e.reg(f, in.C))))
		case vm.OpLt, vm.OpGt, vm.OpLte, vm.OpGte:
			v, err := compareOp(in.Op, e.reg(f, in.B), e.reg(f, in.C))
			if err != nil {
				return vm.Null(), err
			}
			e.setReg(f, in.A, v)

		case vm.OpAnd:
			e.setReg(f, in.A, vm.Bool(vm.IsTruthy(e.reg(f, in.B)) && vm.IsTruthy(e.reg(f, in.C))))
		case vm.OpOr:
			e.setReg(f, in.A, vm.Bool(vm.IsTruthy(e.reg(f, in.B)) || vm.IsTruthy(e.reg(f, in.C))))

		case vm.OpGetLocal, vm.OpSetLocal:
			e.setReg(f, in.A, e.reg(f, in.B))

		case vm.OpGetGlobal:
			name := e.constantValue(f.fn, in.B).Str
			if v, ok := e.globals[name]; ok {
				e.setReg(f, in.A, v)
			} else {
				e.setReg(f, in.A, e.reactiveState[name])
			}
		case vm.OpSetGlobal:
			name := e.constantValue(f.fn, in.A).Str
			e.globals[name] = e.reg(f, in.B)

		case vm.OpSetState:
			name := e.constantValue(f.fn, in.A).Str
			v := e.reg(f, in.B)
			if existing, ok := e.reactiveState[name]; ok {
				e.setReg(f, in.B, existing)
			} else {
				e.reactiveState[name] = v
			}
		case vm.OpUpdateState:
			name := e.constantValue(f.fn, in.A).Str
			v := e.reg(f, in.B)
			if old, ok := e.reactiveState[name]; !ok || !vm.Equal(old, v) {
				e.dirty[name] = true
			}
			e.reactiveState[name] = v
		case vm.OpInitComputed:
			name := e.constantValue(f.fn, in.A).Str
			e.reactiveState[name] = e.reg(f, in.B)
		case vm.OpInitEffect:
			fnVal := e.reg(f, in.B)
			if fnVal.Kind == vm.KFunction {
				if _, err := e.runFunction(e.program.Functions[fnVal.FnIndex], nil); err != nil {
					return vm.Null(), err
				}
			}

		case vm.OpGetMember:
			obj := e.reg(f, in.B)
			name := e.constantValue(f.fn, in.C).Str
			e.setReg(f, in.A, e.getMember(obj, name))
		case vm.OpSetMember:
			obj := e.reg(f, in.A)
			name := e.constantValue(f.fn, in.B).Str
			if obj.Kind == vm.KMap {
				obj.Map.Items[name] = e.reg(f, in.C)
			}
		case vm.OpGetIndex:
			e.setReg(f, in.A, getIndex(e.reg(f, in.B), e.reg(f, in.C)))
		case vm.OpSetIndex:
			setIndex(e.reg(f, in.A), e.reg(f, in.B), e.reg(f, in.C))

		case vm.OpMakeArray:
			n := int(in.B)
			elems := make([]vm.Value, n)
			for i := 0; i < n; i++ {
				elems[i] = e.reg(f, in.A+1+uint16(i))
			}
			e.setReg(f, in.A, vm.Array(elems))
		case vm.OpMakeMap:
			e.setReg(f, in.A, vm.Map(map[string]vm.Value{}))
		case vm.OpMakeRange:
			start, end := e.reg(f, in.B), e.reg(f, in.C)
			elems := []vm.Value{}
			for i := start.Int; i < end.Int; i++ {
				elems = append(elems, vm.Int(i))
			}
			e.setReg(f, in.A, vm.Array(elems))

		case vm.OpGetIter:
			e.setReg(f, in.A, newIterator(e.reg(f, in.B)))
		case vm.OpIterNext:
			value, exhausted := advanceIterator(e.reg(f, in.B))
			e.setReg(f, in.A, value)
			e.setReg(f, in.C, vm.Bool(exhausted))

		case vm.OpJump:
			f.ip = int(in.JumpTarget())
		case vm.OpJumpIfFalse:
			if !vm.IsTruthy(e.reg(f, in.A)) {
				f.ip = int(in.JumpTarget())
			}
		case vm.OpJumpIfTrue:
			if vm.IsTruthy(e.reg(f, in.A)) {
				f.ip = int(in.JumpTarget())
			}

		case vm.OpCall, vm.OpTailCall:
			if err := e.call(f, in.A, int(in.B)); err != nil {
				return vm.Null(), err
			}

		case vm.OpReturn:
			return e.reg(f, in.A), nil
		case vm.OpReturnVoid:
			return vm.Null(), nil

		case vm.OpPrint:
			e.out(vm.ToDisplayString(e.reg(f, in.A)) + "\n")

		case vm.OpPop, vm.OpNop:
			// no-op

		case vm.OpHalt:
			return vm.Null(), nil

		default:
			return vm.Null(), fmt.Errorf("engine: unhandled opcode %s", in.Op)
		}
	}
}

func (e *Engine) constantValue(fn *bytecode.CompiledFunction, idx uint16) vm.Value {
	c := fn.Constants[idx]
	switch c.Kind {
	case bytecode.ConstInteger:
		return vm.Int(c.Int)
	case bytecode.ConstFloat:
		return vm.Float(c.Float)
	case bytecode.ConstString:
		return vm.Str(c.Str)
	case bytecode.ConstBoolean:
		return vm.Bool(c.Bool)
	case bytecode.ConstNull:
		return vm.Null()
	case bytecode.ConstFunction:
		return vm.Function(c.FnIndex)
	case bytecode.ConstClass:
		return vm.Str(c.Class.Name)
	default:
		return vm.Null()
	}
}

// call dispatches OpCall/OpTailCall: the callee sits in register base, its
// arguments fill base+1..base+argc (§4.15's call register layout). A string
// callee is a flattened "module.member" built-in dispatch; a bound method
// is looked up by name on its receiver; a Function callee pushes a real frame.
func (e *Engine) call(f *frame, base uint16, argc int) error {
	callee := e.reg(f, base)
	args := make([]vm.Value, argc)
	for i := 0; i < argc; i++ {
		args[i] = e.reg(f, base+1+uint16(i))
	}

	switch callee.Kind {
	case vm.KFunction:
		fn := e.program.Functions[callee.FnIndex]
		result, err := e.runFunction(fn, args)
		if err != nil {
			return err
		}
		e.setReg(f, base, result)
		return nil
	case vm.KStr, vm.KNativeFn:
		name := callee.Str
		if callee.Kind == vm.KNativeFn {
			name = callee.Name
		}
		result, err := e.callBuiltin(name, args)
		if err != nil {
			return err
		}
		e.setReg(f, base, result)
		return nil
	case vm.KBoundMethod:
		full := append([]vm.Value{*callee.Receiver}, args...)
		if fn := e.findMethod(callee.Method); fn != nil {
			result, err := e.runFunction(fn, full)
			if err != nil {
				return err
			}
			e.setReg(f, base, result)
			return nil
		}
		return fmt.Errorf("no method named %q", callee.Method)
	default:
		return fmt.Errorf("value of kind %d is not callable", callee.Kind)
	}
}

func (e *Engine) findMethod(name string) *bytecode.CompiledFunction {
	for _, fn := range e.program.Functions {
		if fn.Name == name {
			return fn
		}
	}
	return nil
}

// getMember reads a Map field, falling back to a BoundMethod if the name
// matches a registered function rather than a stored field (struct/class
// instances are Map-backed per §4.13; methods aren't copied into every
// instance's map, so a miss here means "look in the function table").
func (e *Engine) getMember(obj vm.Value, name string) vm.Value {
	if obj.Kind == vm.KMap {
		if v, ok := obj.Map.Items[name]; ok {
			return v
		}
	}
	if e.findMethod(name) != nil {
		return vm.BoundMethod(obj, name)
	}
	return vm.Null()
}

// newIterator wraps a range/array into an iterator handle with its own
// cursor, or a map into a handle iterating its keys, so two concurrent
// iterations over the same collection never share progress.
func newIterator(source vm.Value) vm.Value {
	switch source.Kind {
	case vm.KArray:
		return vm.Array(append([]vm.Value(nil), source.Array.Elements...))
	case vm.KMap:
		keys := make([]vm.Value, 0, len(source.Map.Items))
		for k := range source.Map.Items {
			keys = append(keys, vm.Str(k))
		}
		return vm.Array(keys)
	default:
		return vm.Array(nil)
	}
}

func advanceIterator(handle vm.Value) (value vm.Value, exhausted bool) {
	if handle.Kind != vm.KArray || handle.Array.Cursor >= len(handle.Array.Elements) {
		return vm.Null(), true
	}
	v := handle.Array.Elements[handle.Array.Cursor]
	handle.Array.Cursor++
	return v, false
}

func getIndex(obj, idx vm.Value) vm.Value {
	switch obj.Kind {
	case vm.KArray:
		i := int(idx.Int)
		if i < 0 || i >= len(obj.Array.Elements) {
			return vm.Null()
		}
		return obj.Array.Elements[i]
	case vm.KMap:
		return obj.Map.Items[idx.Str]
	default:
		return vm.Null()
	}
}

func setIndex(obj, idx, val vm.Value) {
	switch obj.Kind {
	case vm.KArray:
		i := int(idx.Int)
		if i >= 0 && i < len(obj.Array.Elements) {
			obj.Array.Elements[i] = val
		}
	case vm.KMap:
		obj.Map.Items[idx.Str] = val
	}
}

func arith(op vm.Opcode, a, b vm.Value) (vm.Value, error) {
	if a.Kind == vm.KStr || b.Kind == vm.KStr {
		if op == vm.OpAdd {
			return vm.Str(vm.ToDisplayString(a) + vm.ToDisplayString(b)), nil
		}
		return vm.Null(), fmt.Errorf("operator not defined for string operands")
	}
	if a.Kind == vm.KFloat || b.Kind == vm.KFloat {
		af, bf := toFloat(a), toFloat(b)
		switch op {
		case vm.OpAdd:
			return vm.Float(af + bf), nil
		case vm.OpSub:
			return vm.Float(af - bf), nil
		case vm.OpMul:
			return vm.Float(af * bf), nil
		case vm.OpDiv:
			return vm.Float(af / bf), nil
		case vm.OpMod:
			return vm.Float(float64(int64(af) % int64(bf))), nil
		}
	}
	ai, bi := a.Int, b.Int
	switch op {
	case vm.OpAdd:
		return vm.Int(ai + bi), nil
	case vm.OpSub:
		return vm.Int(ai - bi), nil
	case vm.OpMul:
		return vm.Int(ai * bi), nil
	case vm.OpDiv:
		if bi == 0 {
			return vm.Null(), fmt.Errorf("division by zero")
		}
		return vm.Int(ai / bi), nil
	case vm.OpMod:
		if bi == 0 {
			return vm.Null(), fmt.Errorf("division by zero")
		}
		return vm.Int(ai % bi), nil
	}
	return vm.Null(), fmt.Errorf("unreachable arithmetic opcode %s", op)
}

func toFloat(v vm.Value) float64 {
	if v.Kind == vm.KFloat {
		return v.Float
	}
	return float64(v.Int)
}

func compareOp(op vm.Opcode, a, b vm.Value) (vm.Value, error) {
	cmp, ok := vm.Compare(a, b)
	if !ok {
		return vm.Null(), fmt.Errorf("values are not comparable")
	}
	switch op {
	case vm.OpLt:
		return vm.Bool(cmp < 0), nil
	case vm.OpGt:
		return vm.Bool(cmp > 0), nil
	case vm.OpLte:
		return vm.Bool(cmp <= 0), nil
	case vm.OpGte:
		return vm.Bool(cmp >= 0), nil
	}
	return vm.Null(), fmt.Errorf("unreachable comparison opcode %s", op)
}

// callBuiltin dispatches a pooled "module.member" name or a NativeFn name to
// the built-ins table, holding the LIFO resource lock only for the call's
// duration (§5).
func (e *Engine) callBuiltin(name string, args []vm.Value) (vm.Value, error) {
	fn, ok := e.builtins[name]
	if !ok {
		return vm.Null(), fmt.Errorf("unknown built-in %q", name)
	}
	e.lockResource(name)
	defer e.unlockResource()
	return fn(e, args)
}

func (e *Engine) lockResource(name string) {
	e.resourceLocks = append(e.resourceLocks, name)
}

func (e *Engine) unlockResource() {
	e.resourceLocks = e.resourceLocks[:len(e.resourceLocks)-1]
}

// hasCapability reports whether a grant for cap is present; builtins guarded
// by the static capability.Auditor at compile time can treat a missing grant
// here as a defense-in-depth belt-and-braces check.
func (e *Engine) hasCapability(cap config.Capability) bool {
	return e.grants[cap]
}
