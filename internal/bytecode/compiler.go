package bytecode

import (
	"fmt"

	"kinetix/internal/ast"
	"kinetix/internal/vm"
)

// scope tracks local variable -> register bindings for one lexical block.
type scope struct {
	parent *scope
	locals map[string]uint16
}

// loopInfo tracks a loop's back-edge target and pending break jumps so they
// can be patched once the loop's end address is known.
type loopInfo struct {
	startPC    int
	breakJumps []int
}

// Compiler walks an AST program and emits register bytecode for it,
// following §4.15: no MIR, no borrow-checked input, just a direct AST walk.
// The register allocator is a simple monotonic counter with a free list
// (mirroring the teacher's RegisterAllocator), since this baseline has no
// optimizing scheduler to justify more.
type Compiler struct {
	code      []vm.Instruction
	lines     []int
	constants []Constant

	nextReg  int
	maxReg   int
	freeRegs []int

	scope      *scope
	scopeDepth int

	loopStack []loopInfo

	functions []*CompiledFunction
	errors    []error

	lastLine int

	// stateNames holds every `state` declaration's name found anywhere in
	// the program, collected up front so an assignment compiled long after
	// (or inside a function/effect compiled by its own sub-Compiler) still
	// knows to target the reactive store rather than an ordinary global.
	stateNames map[string]bool
}

func NewCompiler() *Compiler {
	c := &Compiler{stateNames: map[string]bool{}}
	c.scope = &scope{locals: map[string]uint16{}}
	return c
}

// newSub creates a Compiler for a nested function/effect body, sharing the
// parent's stateNames set (read-only past the initial collection pass) so
// assignments inside it still resolve against the same reactive names.
func (c *Compiler) newSub() *Compiler {
	sub := NewCompiler()
	sub.stateNames = c.stateNames
	return sub
}

// collectStateNames walks the whole program (including nested function,
// effect, class, and impl bodies) recording every `state` declaration's
// name, matching the scopes symbols.Resolver itself walks for the same
// statement kinds.
func collectStateNames(stmts []ast.Stmt) map[string]bool {
	names := map[string]bool{}
	var walk func([]ast.Stmt)
	walk = func(stmts []ast.Stmt) {
		for _, s := range stmts {
			switch st := s.(type) {
			case *ast.StateStmt:
				names[st.Name] = true
			case *ast.BlockStmt:
				walk(st.Stmts)
			case *ast.FunctionStmt:
				walk(st.Body)
			case *ast.WhileStmt:
				walk(st.Body)
			case *ast.ForStmt:
				walk(st.Body)
			case *ast.EffectStmt:
				walk(st.Body)
			case *ast.ClassStmt:
				for _, m := range st.Methods {
					walk(m.Body)
				}
			case *ast.ImplStmt:
				for _, m := range st.Methods {
					walk(m.Body)
				}
			}
		}
	}
	walk(stmts)
	return names
}

// CompileProgram compiles every top-level statement into the main function
// and returns the full program, including every function declared anywhere
// in the tree.
func CompileProgram(prog *ast.Program) (*CompiledProgram, []error) {
	c := NewCompiler()
	c.stateNames = collectStateNames(prog.Stmts)
	for _, s := range prog.Stmts {
		c.compileStmt(s)
	}
	c.emit(vm.New(vm.OpHalt), c.lastLine)

	main := &CompiledFunction{
		Name:         "<main>",
		Arity:        0,
		Locals:       c.maxReg,
		Instructions: c.code,
		Constants:    c.constants,
		LineMap:      c.lines,
	}

	if len(c.errors) > 0 {
		return nil, c.errors
	}
	return &CompiledProgram{Main: main, Functions: c.functions, Version: 1}, nil
}

// ---- register allocation ----

func (c *Compiler) alloc() uint16 {
	if n := len(c.freeRegs); n > 0 {
		r := c.freeRegs[n-1]
		c.freeRegs = c.freeRegs[:n-1]
		return uint16(r)
	}
	r := c.nextReg
	c.nextReg++
	if c.nextReg > c.maxReg {
		c.maxReg = c.nextReg
	}
	return uint16(r)
}

func (c *Compiler) free(r uint16) {
	c.freeRegs = append(c.freeRegs, int(r))
}

func (c *Compiler) pushScope() {
	c.scope = &scope{parent: c.scope, locals: map[string]uint16{}}
	c.scopeDepth++
}

func (c *Compiler) popScope() {
	c.scope = c.scope.parent
	c.scopeDepth--
}

func (c *Compiler) defineLocal(name string) uint16 {
	r := c.alloc()
	c.scope.locals[name] = r
	return r
}

func (c *Compiler) resolveLocal(name string) (uint16, bool) {
	for s := c.scope; s != nil; s = s.parent {
		if r, ok := s.locals[name]; ok {
			return r, true
		}
	}
	return 0, false
}

// ---- emission helpers ----

func (c *Compiler) emit(instr vm.Instruction, line int) int {
	pos := len(c.code)
	c.code = append(c.code, instr)
	c.lines = append(c.lines, line)
	c.lastLine = line
	return pos
}

func (c *Compiler) patchJump(pc int) {
	target := int32(len(c.code))
	c.code[pc] = vm.NewJump(c.code[pc].Op, c.code[pc].A, target)
}

func (c *Compiler) errorf(format string, args ...interface{}) {
	c.errors = append(c.errors, fmt.Errorf(format, args...))
}

func (c *Compiler) addConstant(ct Constant) uint16 {
	for i, existing := range c.constants {
		if ct.Kind != ConstClass && existing.Kind == ct.Kind && existing.Int == ct.Int &&
			existing.Float == ct.Float && existing.Str == ct.Str &&
			existing.Bool == ct.Bool && existing.FnIndex == ct.FnIndex {
			return uint16(i)
		}
	}
	idx := len(c.constants)
	c.constants = append(c.constants, ct)
	return uint16(idx)
}

func (c *Compiler) stringConst(s string) uint16 {
	return c.addConstant(Constant{Kind: ConstString, Str: s})
}

// ---- statements ----

func (c *Compiler) compileStmt(s ast.Stmt) {
	switch st := s.(type) {
	case *ast.LetStmt:
		c.compileLet(st)
	case *ast.ReturnStmt:
		c.compileReturn(st)
	case *ast.ExpressionStmt:
		r := c.compileExpr(st.Expr)
		c.free(uint16(r))
	case *ast.BlockStmt:
		c.pushScope()
		for _, inner := range st.Stmts {
			c.compileStmt(inner)
		}
		c.popScope()
	case *ast.FunctionStmt:
		c.compileFunction(st)
	case *ast.WhileStmt:
		c.compileWhile(st)
	case *ast.ForStmt:
		c.compileFor(st)
	case *ast.BreakStmt:
		c.compileBreak(st)
	case *ast.ContinueStmt:
		c.compileContinue(st)
	case *ast.ClassStmt:
		c.compileClass(st)
	case *ast.StructStmt, *ast.EnumStmt, *ast.TraitStmt, *ast.IncludeStmt, *ast.VersionStmt:
		// Compile-time only declarations; nothing to emit.
	case *ast.ImplStmt:
		for _, m := range st.Methods {
			c.compileFunction(m)
		}
	case *ast.StateStmt:
		c.compileState(st)
	case *ast.ComputedStmt:
		c.compileComputed(st)
	case *ast.EffectStmt:
		c.compileEffect(st)
	default:
		c.errorf("bytecode: unknown statement type %T", s)
	}
}

func (c *Compiler) compileLet(s *ast.LetStmt) {
	if c.scopeDepth == 0 {
		nameIdx := c.stringConst(s.Name)
		if s.Value != nil {
			r := c.compileExpr(s.Value)
			c.emit(vm.NewAB(vm.OpSetGlobal, nameIdx, uint16(r)), s.Line())
			c.free(uint16(r))
		} else {
			r := c.alloc()
			c.emit(vm.NewA(vm.OpLoadNull, uint16(r)), s.Line())
			c.emit(vm.NewAB(vm.OpSetGlobal, nameIdx, uint16(r)), s.Line())
			c.free(r)
		}
		return
	}

	if s.Value != nil {
		initReg := c.compileExpr(s.Value)
		reg := c.defineLocal(s.Name)
		if uint16(initReg) != reg {
			c.emit(vm.NewAB(vm.OpSetLocal, uint16(reg), uint16(initReg)), s.Line())
			c.free(uint16(initReg))
		}
	} else {
		reg := c.defineLocal(s.Name)
		c.emit(vm.NewA(vm.OpLoadNull, uint16(reg)), s.Line())
	}
}

func (c *Compiler) compileReturn(s *ast.ReturnStmt) {
	if s.Value == nil {
		c.emit(vm.New(vm.OpReturnVoid), s.Line())
		return
	}
	r := c.compileExpr(s.Value)
	c.emit(vm.NewA(vm.OpReturn, uint16(r)), s.Line())
	c.free(uint16(r))
}

func (c *Compiler) compileFunction(s *ast.FunctionStmt) {
	sub := c.newSub()
	sub.pushScope()
	for _, p := range s.Params {
		sub.defineLocal(p.Name)
	}
	for _, stmt := range s.Body {
		sub.compileStmt(stmt)
	}
	sub.emit(vm.New(vm.OpReturnVoid), s.Line())
	sub.popScope()

	paramNames := make([]string, len(s.Params))
	for i, p := range s.Params {
		paramNames[i] = p.Name
	}

	fn := &CompiledFunction{
		Name:         s.Name,
		Arity:        len(s.Params),
		Locals:       sub.maxReg,
		Instructions: sub.code,
		Constants:    sub.constants,
		ParamNames:   paramNames,
		LineMap:      sub.lines,
	}
	c.errors = append(c.errors, sub.errors...)
	c.functions = append(c.functions, fn)
	fnIndex := len(c.functions) - 1

	fnConstIdx := c.addConstant(Constant{Kind: ConstFunction, FnIndex: fnIndex})

	if c.scopeDepth == 0 {
		nameIdx := c.stringConst(s.Name)
		r := c.alloc()
		c.emit(vm.NewAB(vm.OpLoadConst, uint16(r), fnConstIdx), s.Line())
		c.emit(vm.NewAB(vm.OpSetGlobal, nameIdx, uint16(r)), s.Line())
		c.free(r)
	} else {
		reg := c.defineLocal(s.Name)
		c.emit(vm.NewAB(vm.OpLoadConst, uint16(reg), fnConstIdx), s.Line())
	}
}

func (c *Compiler) compileWhile(s *ast.WhileStmt) {
	loopStart := len(c.code)
	c.loopStack = append(c.loopStack, loopInfo{startPC: loopStart})

	condReg := c.compileExpr(s.Cond)
	exitJump := c.emit(vm.NewJump(vm.OpJumpIfFalse, uint16(condReg), 0), s.Line())
	c.free(uint16(condReg))

	c.pushScope()
	for _, stmt := range s.Body {
		c.compileStmt(stmt)
	}
	c.popScope()

	c.emit(vm.NewJump(vm.OpJump, 0, int32(loopStart)), s.Line())
	c.patchJump(exitJump)
	c.patchBreaks()
}

func (c *Compiler) compileFor(s *ast.ForStmt) {
	c.pushScope()

	iterReg := c.compileExpr(s.Iterable)
	iterHandle := c.alloc()
	c.emit(vm.NewABC(vm.OpGetIter, uint16(iterHandle), uint16(iterReg), 0), s.Line())
	c.free(uint16(iterReg))

	varReg := c.defineLocal(s.Variable)
	doneReg := c.alloc()

	loopStart := len(c.code)
	c.loopStack = append(c.loopStack, loopInfo{startPC: loopStart})

	c.emit(vm.NewABC(vm.OpIterNext, uint16(varReg), uint16(iterHandle), uint16(doneReg)), s.Line())
	exitJump := c.emit(vm.NewJump(vm.OpJumpIfTrue, uint16(doneReg), 0), s.Line())

	for _, stmt := range s.Body {
		c.compileStmt(stmt)
	}

	c.emit(vm.NewJump(vm.OpJump, 0, int32(loopStart)), s.Line())
	c.patchJump(exitJump)
	c.patchBreaks()

	c.free(doneReg)
	c.free(iterHandle)
	c.popScope()
}

func (c *Compiler) patchBreaks() {
	info := c.loopStack[len(c.loopStack)-1]
	for _, pc := range info.breakJumps {
		c.patchJump(pc)
	}
	c.loopStack = c.loopStack[:len(c.loopStack)-1]
}

func (c *Compiler) compileBreak(s *ast.BreakStmt) {
	if len(c.loopStack) == 0 {
		c.errorf("break outside of loop at line %d", s.Line())
		return
	}
	pc := c.emit(vm.NewJump(vm.OpJump, 0, 0), s.Line())
	top := len(c.loopStack) - 1
	c.loopStack[top].breakJumps = append(c.loopStack[top].breakJumps, pc)
}

func (c *Compiler) compileContinue(s *ast.ContinueStmt) {
	if len(c.loopStack) == 0 {
		c.errorf("continue outside of loop at line %d", s.Line())
		return
	}
	target := c.loopStack[len(c.loopStack)-1].startPC
	c.emit(vm.NewJump(vm.OpJump, 0, int32(target)), s.Line())
}

// compileClass compiles each method as an ordinary function and registers a
// class constant recording the method indices, fields and parent (§3's
// Class{name, methods, fields, parent}). CompiledProgram.VTable is not
// populated here.
func (c *Compiler) compileClass(s *ast.ClassStmt) {
	methodIndices := make([]int, 0, len(s.Methods))
	for _, m := range s.Methods {
		c.compileFunction(m)
		methodIndices = append(methodIndices, len(c.functions)-1)
	}
	fields := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		fields[i] = f.Name
	}
	c.addConstant(Constant{Kind: ConstClass, Class: ClassConst{
		Name: s.Name, Methods: methodIndices, Fields: fields, Parent: s.Superclass,
	}})
}

func (c *Compiler) compileState(s *ast.StateStmt) {
	r := c.compileExpr(s.Value)
	nameIdx := c.stringConst(s.Name)
	c.emit(vm.NewAB(vm.OpSetState, nameIdx, uint16(r)), s.Line())
	c.free(uint16(r))
}

func (c *Compiler) compileComputed(s *ast.ComputedStmt) {
	r := c.compileExpr(s.Value)
	nameIdx := c.stringConst(s.Name)
	c.emit(vm.NewAB(vm.OpInitComputed, nameIdx, uint16(r)), s.Line())
	c.free(uint16(r))
}

func (c *Compiler) compileEffect(s *ast.EffectStmt) {
	sub := c.newSub()
	sub.pushScope()
	for _, stmt := range s.Body {
		sub.compileStmt(stmt)
	}
	sub.emit(vm.New(vm.OpReturnVoid), s.Line())
	sub.popScope()

	fn := &CompiledFunction{
		Name: "<effect>", Locals: sub.maxReg,
		Instructions: sub.code, Constants: sub.constants, LineMap: sub.lines,
	}
	c.errors = append(c.errors, sub.errors...)
	c.functions = append(c.functions, fn)
	fnIndex := len(c.functions) - 1
	fnConstIdx := c.addConstant(Constant{Kind: ConstFunction, FnIndex: fnIndex})
	nameIdx := c.stringConst("<effect>")
	r := c.alloc()
	c.emit(vm.NewAB(vm.OpLoadConst, uint16(r), fnConstIdx), s.Line())
	c.emit(vm.NewAB(vm.OpInitEffect, nameIdx, uint16(r)), s.Line())
	c.free(r)
}

// ---- expressions ----

func (c *Compiler) compileExpr(e ast.Expr) int {
	switch ex := e.(type) {
	case *ast.IntLit:
		r := c.alloc()
		idx := c.addConstant(Constant{Kind: ConstInteger, Int: ex.Value})
		c.emit(vm.NewAB(vm.OpLoadConst, uint16(r), idx), ex.Line())
		return int(r)
	case *ast.FloatLit:
		r := c.alloc()
		idx := c.addConstant(Constant{Kind: ConstFloat, Float: ex.Value})
		c.emit(vm.NewAB(vm.OpLoadConst, uint16(r), idx), ex.Line())
		return int(r)
	case *ast.BoolLit:
		r := c.alloc()
		if ex.Value {
			c.emit(vm.NewA(vm.OpLoadTrue, uint16(r)), ex.Line())
		} else {
			c.emit(vm.NewA(vm.OpLoadFalse, uint16(r)), ex.Line())
		}
		return int(r)
	case *ast.StrLit:
		r := c.alloc()
		idx := c.addConstant(Constant{Kind: ConstString, Str: ex.Value})
		c.emit(vm.NewAB(vm.OpLoadConst, uint16(r), idx), ex.Line())
		return int(r)
	case *ast.NullLit:
		r := c.alloc()
		c.emit(vm.NewA(vm.OpLoadNull, uint16(r)), ex.Line())
		return int(r)
	case *ast.Identifier:
		return c.compileIdentifier(ex)
	case *ast.Prefix:
		return c.compilePrefix(ex)
	case *ast.Infix:
		return c.compileInfix(ex)
	case *ast.If:
		return c.compileIfExpr(ex)
	case *ast.Call:
		return c.compileCall(ex)
	case *ast.MethodCall:
		return c.compileMethodCall(ex)
	case *ast.FunctionLiteral:
		return c.compileFunctionLiteral(ex)
	case *ast.ArrayLiteral:
		return c.compileArrayLiteral(ex)
	case *ast.MapLiteral:
		return c.compileMapLiteral(ex)
	case *ast.StructLiteral:
		return c.compileStructLiteral(ex)
	case *ast.Index:
		return c.compileIndex(ex)
	case *ast.MemberAccess:
		return c.compileMemberAccess(ex)
	case *ast.Assign:
		return c.compileAssign(ex)
	case *ast.Range:
		return c.compileRange(ex)
	case *ast.Match:
		return c.compileMatch(ex)
	default:
		c.errorf("bytecode: unknown expression type %T", e)
		return int(c.alloc())
	}
}

func (c *Compiler) compileIdentifier(e *ast.Identifier) int {
	if r, ok := c.resolveLocal(e.Name); ok {
		return int(r)
	}
	r := c.alloc()
	nameIdx := c.stringConst(e.Name)
	c.emit(vm.NewAB(vm.OpGetGlobal, uint16(r), nameIdx), e.Line())
	return int(r)
}

func (c *Compiler) compilePrefix(e *ast.Prefix) int {
	if e.Operator == "&" || e.Operator == "&mut" {
		// References don't change the runtime representation of a value
		// in this register machine; the register already holds the value.
		return c.compileExpr(e.Operand)
	}
	operand := c.compileExpr(e.Operand)
	result := c.alloc()
	switch e.Operator {
	case "-":
		c.emit(vm.NewABC(vm.OpNeg, uint16(result), uint16(operand), 0), e.Line())
	case "!":
		c.emit(vm.NewABC(vm.OpNot, uint16(result), uint16(operand), 0), e.Line())
	default:
		c.errorf("bytecode: unknown prefix operator %q at line %d", e.Operator, e.Line())
	}
	c.free(uint16(operand))
	return int(result)
}

var infixOps = map[string]vm.Opcode{
	"+": vm.OpAdd, "-": vm.OpSub, "*": vm.OpMul, "/": vm.OpDiv, "%": vm.OpMod,
	"==": vm.OpEq, "!=": vm.OpNeq, "<": vm.OpLt, "<=": vm.OpLte, ">": vm.OpGt, ">=": vm.OpGte,
	"&&": vm.OpAnd, "||": vm.OpOr,
}

func (c *Compiler) compileInfix(e *ast.Infix) int {
	left := c.compileExpr(e.Left)
	right := c.compileExpr(e.Right)
	result := c.alloc()

	op, ok := infixOps[e.Operator]
	if !ok {
		c.errorf("bytecode: unknown infix operator %q at line %d", e.Operator, e.Line())
		return int(result)
	}
	c.emit(vm.NewABC(op, uint16(result), uint16(left), uint16(right)), e.Line())
	c.free(uint16(left))
	c.free(uint16(right))
	return int(result)
}

func (c *Compiler) compileIfExpr(e *ast.If) int {
	result := c.alloc()

	condReg := c.compileExpr(e.Cond)
	jumpToElse := c.emit(vm.NewJump(vm.OpJumpIfFalse, uint16(condReg), 0), e.Line())
	c.free(uint16(condReg))

	c.pushScope()
	thenVal := c.compileBlockValue(e.Then)
	c.popScope()
	c.emit(vm.NewAB(vm.OpSetLocal, uint16(result), uint16(thenVal)), e.Line())
	c.free(uint16(thenVal))

	jumpToEnd := c.emit(vm.NewJump(vm.OpJump, 0, 0), e.Line())
	c.patchJump(jumpToElse)

	if len(e.Else) > 0 {
		c.pushScope()
		elseVal := c.compileBlockValue(e.Else)
		c.popScope()
		c.emit(vm.NewAB(vm.OpSetLocal, uint16(result), uint16(elseVal)), e.Line())
		c.free(uint16(elseVal))
	} else {
		c.emit(vm.NewA(vm.OpLoadNull, uint16(result)), e.Line())
	}

	c.patchJump(jumpToEnd)
	return int(result)
}

// compileBlockValue compiles a statement block, returning the register
// holding the last expression statement's value (or a fresh Null register
// if the block has none), since If is an expression in this grammar.
func (c *Compiler) compileBlockValue(stmts []ast.Stmt) uint16 {
	var last uint16
	hasValue := false
	for i, stmt := range stmts {
		if i == len(stmts)-1 {
			if es, ok := stmt.(*ast.ExpressionStmt); ok {
				last = uint16(c.compileExpr(es.Expr))
				hasValue = true
				continue
			}
		}
		c.compileStmt(stmt)
	}
	if !hasValue {
		last = c.alloc()
		c.emit(vm.NewA(vm.OpLoadNull, last), 0)
	}
	return last
}

// knownModules are recognized built-in module receivers whose calls flatten
// to a single pooled "module.member" dispatch string (§4.15).
var knownModules = map[string]bool{
	"data": true, "net": true, "system": true, "db": true, "db_conn": true, "math": true,
}

func (c *Compiler) compileCall(e *ast.Call) int {
	if ident, ok := e.Callee.(*ast.Identifier); ok && ident.Name == "print" && len(e.Args) == 1 {
		r := c.compileExpr(e.Args[0])
		c.emit(vm.NewA(vm.OpPrint, uint16(r)), e.Line())
		c.free(uint16(r))
		null := c.alloc()
		c.emit(vm.NewA(vm.OpLoadNull, uint16(null)), e.Line())
		return int(null)
	}

	argRegs := make([]uint16, len(e.Args))
	for i, a := range e.Args {
		argRegs[i] = uint16(c.compileExpr(a))
	}
	calleeReg := uint16(c.compileExpr(e.Callee))

	base := c.emitCallSequence(calleeReg, argRegs, e.Line())
	return int(base)
}

// compileMethodCall compiles `object.name(args)`. When the object is a
// recognized built-in module (possibly chained, e.g. `system.thread`), it
// flattens the whole access chain into a single pooled "module.member"
// dispatch string per §4.15; otherwise it treats it as a bound-method call
// on the receiver value.
func (c *Compiler) compileMethodCall(e *ast.MethodCall) int {
	if path, ok := dottedModulePath(e.Object); ok {
		fullName := path + "." + e.Name
		nameIdx := c.stringConst(fullName)
		calleeReg := c.alloc()
		c.emit(vm.NewAB(vm.OpLoadConst, uint16(calleeReg), nameIdx), e.Line())

		argRegs := make([]uint16, len(e.Args))
		for i, a := range e.Args {
			argRegs[i] = uint16(c.compileExpr(a))
		}
		return int(c.emitCallSequence(calleeReg, argRegs, e.Line()))
	}

	objReg := uint16(c.compileExpr(e.Object))
	nameIdx := c.stringConst(e.Name)
	boundReg := c.alloc()
	c.emit(vm.NewABC(vm.OpGetMember, uint16(boundReg), objReg, nameIdx), e.Line())
	c.free(objReg)

	argRegs := make([]uint16, len(e.Args))
	for i, a := range e.Args {
		argRegs[i] = uint16(c.compileExpr(a))
	}
	return int(c.emitCallSequence(boundReg, argRegs, e.Line()))
}

func dottedModulePath(e ast.Expr) (string, bool) {
	switch ex := e.(type) {
	case *ast.Identifier:
		if knownModules[ex.Name] {
			return ex.Name, true
		}
		return "", false
	case *ast.MemberAccess:
		base, ok := dottedModulePath(ex.Object)
		if !ok {
			return "", false
		}
		return base + "." + ex.Member, true
	default:
		return "", false
	}
}

// emitCallSequence moves the callee and arguments into a contiguous
// register run, emits Call, and returns the base register holding the
// result (§4.15: "emit callee into register R, each argument i into
// register R+1+i; emit Call R, argc").
func (c *Compiler) emitCallSequence(calleeReg uint16, argRegs []uint16, line int) uint16 {
	base := uint16(c.nextReg)
	c.nextReg += 1 + len(argRegs)
	if c.nextReg > c.maxReg {
		c.maxReg = c.nextReg
	}
	if calleeReg != base {
		c.emit(vm.NewAB(vm.OpSetLocal, uint16(base), calleeReg), line)
		c.free(calleeReg)
	}
	for i, a := range argRegs {
		target := base + 1 + uint16(i)
		if uint16(target) != a {
			c.emit(vm.NewAB(vm.OpSetLocal, uint16(target), a), line)
			c.free(a)
		}
	}
	c.emit(vm.NewAB(vm.OpCall, base, uint16(len(argRegs))), line)
	return base
}

func (c *Compiler) compileFunctionLiteral(e *ast.FunctionLiteral) int {
	sub := c.newSub()
	sub.pushScope()
	for _, p := range e.Params {
		sub.defineLocal(p)
	}
	for _, stmt := range e.Body {
		sub.compileStmt(stmt)
	}
	sub.emit(vm.New(vm.OpReturnVoid), e.Line())
	sub.popScope()

	fn := &CompiledFunction{
		Name: "<lambda>", Arity: len(e.Params), Locals: sub.maxReg,
		Instructions: sub.code, Constants: sub.constants, ParamNames: e.Params, LineMap: sub.lines,
	}
	c.errors = append(c.errors, sub.errors...)
	c.functions = append(c.functions, fn)
	fnIndex := len(c.functions) - 1
	fnConstIdx := c.addConstant(Constant{Kind: ConstFunction, FnIndex: fnIndex})

	r := c.alloc()
	c.emit(vm.NewAB(vm.OpLoadConst, uint16(r), fnConstIdx), e.Line())
	return int(r)
}

func (c *Compiler) compileArrayLiteral(e *ast.ArrayLiteral) int {
	elemRegs := make([]uint16, len(e.Elements))
	for i, el := range e.Elements {
		elemRegs[i] = uint16(c.compileExpr(el))
	}
	base := uint16(c.nextReg)
	c.nextReg += 1 + len(elemRegs)
	if c.nextReg > c.maxReg {
		c.maxReg = c.nextReg
	}
	for i, r := range elemRegs {
		target := base + 1 + uint16(i)
		if r != target {
			c.emit(vm.NewAB(vm.OpSetLocal, target, r), e.Line())
		}
		c.free(r)
	}
	c.emit(vm.NewAB(vm.OpMakeArray, uint16(base), uint16(len(elemRegs))), e.Line())
	return int(base)
}

func (c *Compiler) compileMapLiteral(e *ast.MapLiteral) int {
	base := c.alloc()
	c.emit(vm.NewAB(vm.OpMakeMap, uint16(base), 0), e.Line())
	for i := range e.Keys {
		keyReg := uint16(c.compileExpr(e.Keys[i]))
		valReg := uint16(c.compileExpr(e.Values[i]))
		c.emit(vm.NewABC(vm.OpSetIndex, uint16(base), keyReg, valReg), e.Line())
		c.free(keyReg)
		c.free(valReg)
	}
	return int(base)
}

// compileStructLiteral lowers a struct literal to a Map-backed aggregate
// (the open question in §8 notes either representation is spec-compliant
// provided §4.13's no-field-splitting invariant holds; each field is set as
// a whole map entry, never split into its own local).
func (c *Compiler) compileStructLiteral(e *ast.StructLiteral) int {
	base := c.alloc()
	c.emit(vm.NewAB(vm.OpMakeMap, uint16(base), uint16(len(e.FieldNames))), e.Line())
	for i, name := range e.FieldNames {
		valReg := uint16(c.compileExpr(e.FieldValues[i]))
		nameIdx := c.stringConst(name)
		c.emit(vm.NewABC(vm.OpSetMember, uint16(base), nameIdx, valReg), e.Line())
		c.free(valReg)
	}
	return int(base)
}

func (c *Compiler) compileIndex(e *ast.Index) int {
	objReg := uint16(c.compileExpr(e.Object))
	idxReg := uint16(c.compileExpr(e.Index))
	result := c.alloc()
	c.emit(vm.NewABC(vm.OpGetIndex, uint16(result), objReg, idxReg), e.Line())
	c.free(objReg)
	c.free(idxReg)
	return int(result)
}

func (c *Compiler) compileMemberAccess(e *ast.MemberAccess) int {
	objReg := uint16(c.compileExpr(e.Object))
	nameIdx := c.stringConst(e.Member)
	result := c.alloc()
	c.emit(vm.NewABC(vm.OpGetMember, uint16(result), objReg, nameIdx), e.Line())
	c.free(objReg)
	return int(result)
}

func (c *Compiler) compileAssign(e *ast.Assign) int {
	switch target := e.Target.(type) {
	case *ast.Identifier:
		valReg := uint16(c.compileExpr(e.Value))
		if r, ok := c.resolveLocal(target.Name); ok {
			if valReg != r {
				c.emit(vm.NewAB(vm.OpSetLocal, r, valReg), e.Line())
			}
			return int(r)
		}
		nameIdx := c.stringConst(target.Name)
		if c.stateNames[target.Name] {
			c.emit(vm.NewAB(vm.OpUpdateState, nameIdx, valReg), e.Line())
		} else {
			c.emit(vm.NewAB(vm.OpSetGlobal, nameIdx, valReg), e.Line())
		}
		return int(valReg)
	case *ast.MemberAccess:
		objReg := uint16(c.compileExpr(target.Object))
		valReg := uint16(c.compileExpr(e.Value))
		nameIdx := c.stringConst(target.Member)
		c.emit(vm.NewABC(vm.OpSetMember, objReg, nameIdx, valReg), e.Line())
		c.free(objReg)
		return int(valReg)
	case *ast.Index:
		objReg := uint16(c.compileExpr(target.Object))
		idxReg := uint16(c.compileExpr(target.Index))
		valReg := uint16(c.compileExpr(e.Value))
		c.emit(vm.NewABC(vm.OpSetIndex, objReg, idxReg, valReg), e.Line())
		c.free(objReg)
		c.free(idxReg)
		return int(valReg)
	default:
		c.errorf("bytecode: invalid assignment target %T at line %d", e.Target, e.Line())
		return int(c.alloc())
	}
}

func (c *Compiler) compileRange(e *ast.Range) int {
	startReg := uint16(c.compileExpr(e.Start))
	endReg := uint16(c.compileExpr(e.End))
	result := c.alloc()
	c.emit(vm.NewABC(vm.OpMakeRange, uint16(result), startReg, endReg), e.Line())
	c.free(startReg)
	c.free(endReg)
	return int(result)
}

// compileMatch compiles a match expression as a linear chain of guarded
// tests. Literal patterns compare by Eq; variant patterns compare the
// scrutinee's "__variant__" tag field (struct literals/enum values are
// Map-backed, consistent with compileStructLiteral); wildcard and binding
// patterns always match. Variant payload bindings are not extracted into
// registers in this baseline — only the tag is tested.
func (c *Compiler) compileMatch(e *ast.Match) int {
	scrutineeReg := uint16(c.compileExpr(e.Scrutinee))
	result := c.alloc()
	var endJumps []int

	for _, arm := range e.Arms {
		var nextArmJump = -1
		switch pat := arm.Pattern.(type) {
		case *ast.WildcardPattern:
			// always matches, no test
		case *ast.BindingPattern:
			c.pushScope()
			c.scope.locals[pat.Name] = scrutineeReg
		case *ast.LiteralPattern:
			litReg := uint16(c.compileExpr(pat.Value))
			eqReg := c.alloc()
			c.emit(vm.NewABC(vm.OpEq, uint16(eqReg), scrutineeReg, litReg), arm.Pattern.Line())
			c.free(litReg)
			nextArmJump = c.emit(vm.NewJump(vm.OpJumpIfFalse, uint16(eqReg), 0), arm.Pattern.Line())
			c.free(uint16(eqReg))
		case *ast.VariantPattern:
			tagIdx := c.stringConst("__variant__")
			tagReg := c.alloc()
			c.emit(vm.NewABC(vm.OpGetMember, uint16(tagReg), scrutineeReg, tagIdx), arm.Pattern.Line())
			litIdx := c.stringConst(pat.Variant)
			litReg := c.alloc()
			c.emit(vm.NewAB(vm.OpLoadConst, uint16(litReg), litIdx), arm.Pattern.Line())
			eqReg := c.alloc()
			c.emit(vm.NewABC(vm.OpEq, uint16(eqReg), uint16(tagReg), uint16(litReg)), arm.Pattern.Line())
			c.free(uint16(tagReg))
			c.free(uint16(litReg))
			nextArmJump = c.emit(vm.NewJump(vm.OpJumpIfFalse, uint16(eqReg), 0), arm.Pattern.Line())
			c.free(uint16(eqReg))
		}

		bodyReg := uint16(c.compileExpr(arm.Body))
		if _, ok := arm.Pattern.(*ast.BindingPattern); ok {
			c.popScope()
		}
		c.emit(vm.NewAB(vm.OpSetLocal, uint16(result), bodyReg), arm.Pattern.Line())
		c.free(bodyReg)
		endJumps = append(endJumps, c.emit(vm.NewJump(vm.OpJump, 0, 0), arm.Pattern.Line()))

		if nextArmJump >= 0 {
			c.patchJump(nextArmJump)
		}
	}

	for _, j := range endJumps {
		c.patchJump(j)
	}
	c.free(scrutineeReg)
	return int(result)
}
