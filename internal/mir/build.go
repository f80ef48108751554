package mir

import (
	"kinetix/internal/hir"
	"kinetix/internal/types"
)

// Builder accumulates locals and statements for a single function while
// walking its HIR body, mirroring the scope stack a real MIR lowering pass
// keeps to drive LIFO drop insertion.
type Builder struct {
	subst     *types.Substitution
	locals    []LocalDecl
	blocks    []BasicBlock
	current   BlockID
	localEnv  map[string]LocalID
	scopes    [][]LocalID
	functions []*Function
}

func NewBuilder(subst *types.Substitution) *Builder {
	return &Builder{
		subst:    subst,
		blocks:   []BasicBlock{{}},
		current:  0,
		localEnv: map[string]LocalID{},
		scopes:   [][]LocalID{{}},
	}
}

// Build lowers every top-level statement into the implicit <main> function,
// plus one Function per declared fn (recursively pulling up nested
// function/method definitions).
func Build(prog *hir.Program, subst *types.Substitution) *Program {
	b := NewBuilder(subst)
	for _, s := range prog.Stmts {
		b.lowerStmt(s)
	}
	b.dropScope(0)
	b.blocks[b.current].Terminator = &Terminator{Kind: TermReturn, Line: 0}

	main := &Function{
		Name:       "<main>",
		ReturnType: types.Void(),
		Locals:     b.locals,
		Blocks:     b.blocks,
	}
	return &Program{Functions: b.functions, Main: main}
}

func (b *Builder) pushLocal(name string, t *types.Type, mut Mutability) LocalID {
	resolved := t
	if t != nil {
		resolved = b.subst.Apply(t)
	}
	id := LocalID(len(b.locals))
	b.locals = append(b.locals, LocalDecl{Name: name, Type: resolved, Mutability: mut})
	if name != "" {
		b.localEnv[name] = id
	}
	top := len(b.scopes) - 1
	b.scopes[top] = append(b.scopes[top], id)
	return id
}

func (b *Builder) pushStmt(s Statement) {
	blk := &b.blocks[b.current]
	blk.Statements = append(blk.Statements, s)
}

// dropScope pops the innermost scope, emitting Drop statements in reverse
// declaration order for every non-trivially-copyable local it introduced.
func (b *Builder) dropScope(line int) {
	top := len(b.scopes) - 1
	scope := b.scopes[top]
	b.scopes = b.scopes[:top]
	for i := len(scope) - 1; i >= 0; i-- {
		id := scope[i]
		t := b.locals[id].Type
		if t == nil || !t.TriviallyCopyable() {
			b.pushStmt(Statement{Kind: StmtDrop, Place: Place{Local: id}, Line: line})
		}
	}
}

func (b *Builder) lowerStmt(stmt hir.Stmt) {
	switch s := stmt.(type) {
	case *hir.LetStmt:
		mut := Immutable
		if s.Mutable {
			mut = Mutable
		}
		id := b.pushLocal(s.Name, s.Type(), mut)
		rv := b.lowerExprToRValue(s.Value)
		b.pushStmt(Statement{Kind: StmtAssign, Place: Place{Local: id}, RValue: rv, Line: s.Line()})
	case *hir.ExpressionStmt:
		rv := b.lowerExprToRValue(s.Expr)
		b.pushStmt(Statement{Kind: StmtExpression, RValue: rv, Line: s.Line()})
	case *hir.ReturnStmt:
		if s.Value != nil {
			rv := b.lowerExprToRValue(s.Value)
			b.pushStmt(Statement{Kind: StmtExpression, RValue: rv, Line: s.Line()})
		}
	case *hir.FunctionStmt:
		b.lowerFunction(s)
	case *hir.WhileStmt:
		rv := b.lowerExprToRValue(s.Cond)
		b.pushStmt(Statement{Kind: StmtExpression, RValue: rv, Line: s.Line()})
		b.scopes = append(b.scopes, []LocalID{})
		for _, st := range s.Body {
			b.lowerStmt(st)
		}
		b.dropScope(s.Line())
	case *hir.ForStmt:
		rv := b.lowerExprToRValue(s.Iterable)
		b.pushStmt(Statement{Kind: StmtExpression, RValue: rv, Line: s.Line()})
		b.scopes = append(b.scopes, []LocalID{})
		b.pushLocal(s.Variable, types.Int(), Mutable)
		for _, st := range s.Body {
			b.lowerStmt(st)
		}
		b.dropScope(s.Line())
	case *hir.EffectStmt:
		b.scopes = append(b.scopes, []LocalID{})
		for _, st := range s.Body {
			b.lowerStmt(st)
		}
		b.dropScope(s.Line())
	case *hir.ClassStmt:
		for _, m := range s.Methods {
			b.lowerFunction(m)
		}
	case *hir.StateStmt:
		id := b.pushLocal(s.Name, s.Value.Type(), Mutable)
		rv := b.lowerExprToRValue(s.Value)
		b.pushStmt(Statement{Kind: StmtAssign, Place: Place{Local: id}, RValue: rv, Line: s.Line()})
	case *hir.ComputedStmt:
		id := b.pushLocal(s.Name, s.Value.Type(), Immutable)
		rv := b.lowerExprToRValue(s.Value)
		b.pushStmt(Statement{Kind: StmtAssign, Place: Place{Local: id}, RValue: rv, Line: s.Line()})
	case *hir.BreakStmt, *hir.ContinueStmt:
		// no operand to track
	default:
		// declarations (struct/enum) carry no executable MIR
	}
}

func (b *Builder) lowerFunction(s *hir.FunctionStmt) {
	sub := NewBuilder(b.subst)
	var argIDs []LocalID
	for _, p := range s.Params {
		argIDs = append(argIDs, sub.pushLocal(p.Name, p.Type, Immutable))
	}
	for _, st := range s.Body {
		sub.lowerStmt(st)
	}
	sub.dropScope(s.Line())
	sub.blocks[sub.current].Terminator = &Terminator{Kind: TermReturn, Line: s.Line()}

	fn := &Function{
		Name:       s.Name,
		Args:       argIDs,
		ReturnType: b.subst.Apply(s.ReturnType),
		Locals:     sub.locals,
		Blocks:     sub.blocks,
	}
	b.functions = append(b.functions, fn)
	b.functions = append(b.functions, sub.functions...)
}

func (b *Builder) lowerExprToRValue(expr hir.Expr) RValue {
	switch e := expr.(type) {
	case *hir.IntLit:
		return RValue{Kind: RVUse, Operand: Operand{Kind: OpConstant, Const: Constant{Kind: ConstInt, Int: e.Value}}}
	case *hir.FloatLit:
		return RValue{Kind: RVUse, Operand: Operand{Kind: OpConstant, Const: Constant{Kind: ConstFloat, Float: e.Value}}}
	case *hir.BoolLit:
		return RValue{Kind: RVUse, Operand: Operand{Kind: OpConstant, Const: Constant{Kind: ConstBool, Bool: e.Value}}}
	case *hir.StrLit:
		return RValue{Kind: RVUse, Operand: Operand{Kind: OpConstant, Const: Constant{Kind: ConstStr, Str: e.Value}}}
	case *hir.NullLit:
		return RValue{Kind: RVUse, Operand: Operand{Kind: OpConstant, Const: Constant{Kind: ConstNull}}}
	case *hir.Identifier:
		if id, ok := b.localEnv[e.Name]; ok {
			place := Place{Local: id}
			resolved := b.subst.Apply(e.Type())
			if resolved.TriviallyCopyable() {
				return RValue{Kind: RVUse, Operand: Operand{Kind: OpCopy, Place: place}}
			}
			return RValue{Kind: RVUse, Operand: Operand{Kind: OpMove, Place: place}}
		}
		// unresolved global/builtin reference
		return RValue{Kind: RVUse, Operand: Operand{Kind: OpConstant, Const: Constant{Kind: ConstNull}}}
	case *hir.Infix:
		l := b.lowerExprToOperand(e.Left)
		r := b.lowerExprToOperand(e.Right)
		return RValue{Kind: RVBinaryOp, Op: e.Operator, Left: l, Right: r}
	case *hir.Prefix:
		if e.Operator == "&" || e.Operator == "&mut" {
			mut := Immutable
			if e.Operator == "&mut" {
				mut = Mutable
			}
			if id, ok := identLocal(e.Operand, b.localEnv); ok {
				return RValue{Kind: RVUse, Operand: Operand{Kind: OpBorrow, Place: Place{Local: id}, Mutability: mut}}
			}
			opnd := b.lowerExprToOperand(e.Operand)
			if opnd.Kind == OpMove || opnd.Kind == OpCopy {
				return RValue{Kind: RVUse, Operand: Operand{Kind: OpBorrow, Place: opnd.Place, Mutability: mut}}
			}
		}
		opnd := b.lowerExprToOperand(e.Operand)
		return RValue{Kind: RVUnaryOp, Op: e.Operator, Operand: opnd}
	case *hir.Call:
		callee := b.lowerExprToOperand(e.Callee)
		var args []Operand
		for _, a := range e.Args {
			args = append(args, b.lowerExprToOperand(a))
		}
		return RValue{Kind: RVCall, Callee: callee, Args: args}
	case *hir.MethodCall:
		// A module-qualified capability call that survived normalization;
		// modeled identically to Call per §4.10.
		callee := b.lowerExprToOperand(e.Object)
		var args []Operand
		for _, a := range e.Args {
			args = append(args, b.lowerExprToOperand(a))
		}
		return RValue{Kind: RVCall, Callee: callee, Args: args}
	case *hir.ArrayLiteral:
		var ops []Operand
		for _, el := range e.Elements {
			ops = append(ops, b.lowerExprToOperand(el))
		}
		return RValue{Kind: RVArray, Args: ops}
	case *hir.StructLiteral:
		var ops []Operand
		for _, v := range e.FieldValues {
			ops = append(ops, b.lowerExprToOperand(v))
		}
		return RValue{Kind: RVAggregate, AggregateName: e.Name, Args: ops}
	default:
		// Index/MemberAccess/Assign/Range/Match/FunctionLiteral/If: placeholder,
		// matching the teacher's own treatment of not-yet-modeled expression
		// kinds as an inert constant rather than a crash.
		return RValue{Kind: RVUse, Operand: Operand{Kind: OpConstant, Const: Constant{Kind: ConstNull}}}
	}
}

func (b *Builder) lowerExprToOperand(expr hir.Expr) Operand {
	rv := b.lowerExprToRValue(expr)
	tempID := b.pushLocal("", expr.Type(), Immutable)
	place := Place{Local: tempID}
	b.pushStmt(Statement{Kind: StmtAssign, Place: place, RValue: rv, Line: expr.Line()})

	resolved := b.subst.Apply(expr.Type())
	if resolved.TriviallyCopyable() {
		return Operand{Kind: OpCopy, Place: place}
	}
	return Operand{Kind: OpMove, Place: place}
}

func identLocal(e hir.Expr, env map[string]LocalID) (LocalID, bool) {
	id, ok := e.(*hir.Identifier)
	if !ok {
		return 0, false
	}
	localID, found := env[id.Name]
	return localID, found
}
