package hir

import (
	"kinetix/internal/ast"
	"kinetix/internal/symbols"
	"kinetix/internal/types"
)

// Lowerer transforms the AST node-for-node, stamping every node with either
// a known type or a fresh unification variable (§4.4).
type Lowerer struct {
	vars *types.FreshVarGen
	env  []map[string]*types.Type
}

func NewLowerer() *Lowerer {
	return &Lowerer{vars: &types.FreshVarGen{}, env: []map[string]*types.Type{{}}}
}

func (l *Lowerer) pushEnv() { l.env = append(l.env, map[string]*types.Type{}) }
func (l *Lowerer) popEnv()  { l.env = l.env[:len(l.env)-1] }

func (l *Lowerer) define(name string, t *types.Type) {
	l.env[len(l.env)-1][name] = t
}

func (l *Lowerer) lookup(name string) *types.Type {
	for i := len(l.env) - 1; i >= 0; i-- {
		if t, ok := l.env[i][name]; ok {
			return t
		}
	}
	if symbols.IsBuiltinModule(name) {
		return l.vars.Fresh()
	}
	return l.vars.Fresh()
}

func typeFromExpr(te *ast.TypeExpr) *types.Type {
	if te == nil {
		return nil
	}
	switch te.Kind {
	case ast.TEInt:
		return types.Int()
	case ast.TEFloat:
		return types.Float()
	case ast.TEBool:
		return types.Bool()
	case ast.TEStr:
		return types.Str()
	case ast.TEVoid:
		return types.Void()
	case ast.TEArray:
		return types.Array(typeFromExpr(te.Elem))
	case ast.TEMap:
		return types.Map(typeFromExpr(te.Key), typeFromExpr(te.Elem))
	case ast.TERef:
		return types.Ref(typeFromExpr(te.Elem))
	case ast.TEMutRef:
		return types.MutRef(typeFromExpr(te.Elem))
	case ast.TECustom:
		args := make([]*types.Type, len(te.Args))
		for i, a := range te.Args {
			args[i] = typeFromExpr(a)
		}
		return types.Custom(te.Name, args)
	default:
		return nil
	}
}

func (l *Lowerer) LowerProgram(prog *ast.Program) *Program {
	out := &Program{}
	for _, s := range prog.Stmts {
		if hs := l.LowerStmt(s); hs != nil {
			out.Stmts = append(out.Stmts, hs)
		}
	}
	return out
}

func (l *Lowerer) lowerBlock(stmts []ast.Stmt) []Stmt {
	var out []Stmt
	for _, s := range stmts {
		if hs := l.LowerStmt(s); hs != nil {
			out = append(out, hs)
		}
	}
	return out
}

func (l *Lowerer) LowerStmt(stmt ast.Stmt) Stmt {
	switch s := stmt.(type) {
	case *ast.LetStmt:
		val := l.LowerExpr(s.Value)
		t := typeFromExpr(s.Type)
		if t == nil {
			t = val.Type()
		}
		l.define(s.Name, t)
		return &LetStmt{base: base{line: s.Line(), typ: t}, Name: s.Name, Mutable: s.Mutable, Value: val}
	case *ast.ReturnStmt:
		var val Expr
		if s.Value != nil {
			val = l.LowerExpr(s.Value)
		}
		return &ReturnStmt{base: base{line: s.Line()}, Value: val}
	case *ast.ExpressionStmt:
		return &ExpressionStmt{base: base{line: s.Line()}, Expr: l.LowerExpr(s.Expr)}
	case *ast.FunctionStmt:
		l.pushEnv()
		params := make([]Param, len(s.Params))
		for i, p := range s.Params {
			pt := typeFromExpr(p.Type)
			if pt == nil {
				pt = l.vars.Fresh()
			}
			params[i] = Param{Name: p.Name, Type: pt}
			l.define(p.Name, pt)
		}
		ret := typeFromExpr(s.ReturnType)
		if ret == nil {
			ret = types.Void()
		}
		l.define(s.Name, types.Fn(paramTypes(params), ret))
		body := l.lowerBlock(s.Body)
		l.popEnv()
		return &FunctionStmt{base: base{line: s.Line()}, Name: s.Name, Generics: s.Generics, Params: params, ReturnType: ret, Body: body}
	case *ast.WhileStmt:
		cond := l.LowerExpr(s.Cond)
		l.pushEnv()
		body := l.lowerBlock(s.Body)
		l.popEnv()
		return &WhileStmt{base: base{line: s.Line()}, Cond: cond, Body: body}
	case *ast.ForStmt:
		iterable := l.LowerExpr(s.Iterable)
		l.pushEnv()
		l.define(s.Variable, types.Int())
		body := l.lowerBlock(s.Body)
		l.popEnv()
		return &ForStmt{base: base{line: s.Line()}, Variable: s.Variable, Iterable: iterable, Body: body}
	case *ast.BreakStmt:
		return &BreakStmt{base: base{line: s.Line()}}
	case *ast.ContinueStmt:
		return &ContinueStmt{base: base{line: s.Line()}}
	case *ast.ClassStmt:
		fields := make([]Field, len(s.Fields))
		for i, f := range s.Fields {
			fields[i] = Field{Name: f.Name, Type: typeFromExpr(f.Type)}
		}
		methods := make([]*FunctionStmt, 0, len(s.Methods))
		for _, m := range s.Methods {
			methods = append(methods, l.LowerStmt(m).(*FunctionStmt))
		}
		return &ClassStmt{base: base{line: s.Line()}, Name: s.Name, Superclass: s.Superclass, Fields: fields, Methods: methods}
	case *ast.StructStmt:
		fields := make([]Field, len(s.Fields))
		for i, f := range s.Fields {
			fields[i] = Field{Name: f.Name, Type: typeFromExpr(f.Type)}
		}
		return &StructStmt{base: base{line: s.Line()}, Name: s.Name, Fields: fields}
	case *ast.EnumStmt:
		variants := make([]EnumVariant, len(s.Variants))
		for i, v := range s.Variants {
			payload := make([]*types.Type, len(v.Payload))
			for j, p := range v.Payload {
				payload[j] = typeFromExpr(p)
			}
			variants[i] = EnumVariant{Name: v.Name, Payload: payload}
		}
		return &EnumStmt{base: base{line: s.Line()}, Name: s.Name, Variants: variants}
	case *ast.StateStmt:
		val := l.LowerExpr(s.Value)
		l.define(s.Name, val.Type())
		return &StateStmt{base: base{line: s.Line()}, Name: s.Name, Value: val}
	case *ast.ComputedStmt:
		val := l.LowerExpr(s.Value)
		l.define(s.Name, val.Type())
		return &ComputedStmt{base: base{line: s.Line()}, Name: s.Name, Value: val}
	case *ast.EffectStmt:
		l.pushEnv()
		body := l.lowerBlock(s.Body)
		l.popEnv()
		return &EffectStmt{base: base{line: s.Line()}, Body: body}
	case *ast.TraitStmt, *ast.ImplStmt, *ast.IncludeStmt, *ast.VersionStmt:
		return nil // handled by internal/traits and preprocessing, not the typed tree
	default:
		return nil
	}
}

func paramTypes(params []Param) []*types.Type {
	out := make([]*types.Type, len(params))
	for i, p := range params {
		out[i] = p.Type
	}
	return out
}

func (l *Lowerer) LowerExpr(expr ast.Expr) Expr {
	switch e := expr.(type) {
	case *ast.IntLit:
		return &IntLit{base: base{line: e.Line(), typ: types.Int()}, Value: e.Value}
	case *ast.FloatLit:
		return &FloatLit{base: base{line: e.Line(), typ: types.Float()}, Value: e.Value}
	case *ast.BoolLit:
		return &BoolLit{base: base{line: e.Line(), typ: types.Bool()}, Value: e.Value}
	case *ast.StrLit:
		return &StrLit{base: base{line: e.Line(), typ: types.Str()}, Value: e.Value}
	case *ast.NullLit:
		return &NullLit{base: base{line: e.Line(), typ: types.Void()}}
	case *ast.Identifier:
		return &Identifier{base: base{line: e.Line(), typ: l.lookup(e.Name)}, Name: e.Name}
	case *ast.Prefix:
		operand := l.LowerExpr(e.Operand)
		var t *types.Type
		switch e.Operator {
		case "!":
			t = types.Bool()
		case "-":
			t = operand.Type()
		case "&":
			t = types.Ref(operand.Type())
		case "&mut":
			t = types.MutRef(operand.Type())
		default:
			t = l.vars.Fresh()
		}
		return &Prefix{base: base{line: e.Line(), typ: t}, Operator: e.Operator, Operand: operand}
	case *ast.Infix:
		left := l.LowerExpr(e.Left)
		right := l.LowerExpr(e.Right)
		var t *types.Type
		switch e.Operator {
		case "==", "!=", "<", "<=", ">", ">=", "&&", "||":
			t = types.Bool()
		default:
			t = left.Type()
		}
		return &Infix{base: base{line: e.Line(), typ: t}, Operator: e.Operator, Left: left, Right: right}
	case *ast.If:
		cond := l.LowerExpr(e.Cond)
		l.pushEnv()
		then := l.lowerBlock(e.Then)
		l.popEnv()
		l.pushEnv()
		els := l.lowerBlock(e.Else)
		l.popEnv()
		return &If{base: base{line: e.Line(), typ: l.vars.Fresh()}, Cond: cond, Then: then, Else: els}
	case *ast.Call:
		callee := l.LowerExpr(e.Callee)
		args := make([]Expr, len(e.Args))
		for i, a := range e.Args {
			args[i] = l.LowerExpr(a)
		}
		return &Call{base: base{line: e.Line(), typ: l.vars.Fresh()}, Callee: callee, Args: args}
	case *ast.MethodCall:
		obj := l.LowerExpr(e.Object)
		args := make([]Expr, len(e.Args))
		for i, a := range e.Args {
			args[i] = l.LowerExpr(a)
		}
		return &MethodCall{base: base{line: e.Line(), typ: l.vars.Fresh()}, Object: obj, Name: e.Name, Args: args}
	case *ast.FunctionLiteral:
		l.pushEnv()
		for i, p := range e.Params {
			pt := l.vars.Fresh()
			if i < len(e.ParamTypes) {
				if t := typeFromExpr(e.ParamTypes[i]); t != nil {
					pt = t
				}
			}
			l.define(p, pt)
		}
		body := l.lowerBlock(e.Body)
		l.popEnv()
		return &FunctionLiteral{base: base{line: e.Line(), typ: l.vars.Fresh()}, Params: e.Params, Body: body}
	case *ast.ArrayLiteral:
		elems := make([]Expr, len(e.Elements))
		var elemType *types.Type
		for i, el := range e.Elements {
			elems[i] = l.LowerExpr(el)
			if i == 0 {
				elemType = elems[i].Type()
			}
		}
		if elemType == nil {
			elemType = l.vars.Fresh()
		}
		return &ArrayLiteral{base: base{line: e.Line(), typ: types.Array(elemType)}, Elements: elems}
	case *ast.MapLiteral:
		keys := make([]Expr, len(e.Keys))
		vals := make([]Expr, len(e.Values))
		for i := range e.Keys {
			keys[i] = l.LowerExpr(e.Keys[i])
			vals[i] = l.LowerExpr(e.Values[i])
		}
		kt, vt := l.vars.Fresh(), l.vars.Fresh()
		if len(keys) > 0 {
			kt, vt = keys[0].Type(), vals[0].Type()
		}
		return &MapLiteral{base: base{line: e.Line(), typ: types.Map(kt, vt)}, Keys: keys, Values: vals}
	case *ast.StructLiteral:
		vals := make([]Expr, len(e.FieldValues))
		for i, v := range e.FieldValues {
			vals[i] = l.LowerExpr(v)
		}
		return &StructLiteral{base: base{line: e.Line(), typ: types.Custom(e.Name, nil)}, Name: e.Name, FieldNames: e.FieldNames, FieldValues: vals}
	case *ast.Index:
		obj := l.LowerExpr(e.Object)
		idx := l.LowerExpr(e.Index)
		return &Index{base: base{line: e.Line(), typ: l.vars.Fresh()}, Object: obj, Idx: idx}
	case *ast.MemberAccess:
		obj := l.LowerExpr(e.Object)
		return &MemberAccess{base: base{line: e.Line(), typ: l.vars.Fresh()}, Object: obj, Member: e.Member}
	case *ast.Assign:
		target := l.LowerExpr(e.Target)
		val := l.LowerExpr(e.Value)
		return &Assign{base: base{line: e.Line(), typ: target.Type()}, Target: target, Value: val}
	case *ast.Range:
		start := l.LowerExpr(e.Start)
		end := l.LowerExpr(e.End)
		return &Range{base: base{line: e.Line(), typ: types.Array(types.Int())}, Start: start, End: end}
	case *ast.Match:
		scrutinee := l.LowerExpr(e.Scrutinee)
		arms := make([]MatchArm, len(e.Arms))
		resultType := l.vars.Fresh()
		for i, a := range e.Arms {
			l.pushEnv()
			pat := l.lowerPattern(a.Pattern)
			body := l.LowerExpr(a.Body)
			arms[i] = MatchArm{Pattern: pat, Body: body}
			l.popEnv()
		}
		return &Match{base: base{line: e.Line(), typ: resultType}, Scrutinee: scrutinee, Arms: arms}
	default:
		return &NullLit{base: base{typ: types.Void()}}
	}
}

func (l *Lowerer) lowerPattern(p ast.Pattern) Pattern {
	switch pt := p.(type) {
	case *ast.LiteralPattern:
		return &LiteralPattern{base: base{line: pt.Line()}, Value: l.LowerExpr(pt.Value)}
	case *ast.VariantPattern:
		for _, b := range pt.Bindings {
			l.define(b, l.vars.Fresh())
		}
		return &VariantPattern{base: base{line: pt.Line()}, Variant: pt.Variant, Bindings: pt.Bindings}
	case *ast.WildcardPattern:
		return &WildcardPattern{base: base{line: pt.Line()}}
	case *ast.BindingPattern:
		l.define(pt.Name, l.vars.Fresh())
		return &BindingPattern{base: base{line: pt.Line()}, Name: pt.Name}
	default:
		return &WildcardPattern{}
	}
}
