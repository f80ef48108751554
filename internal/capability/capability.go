// Package capability audits resolved method calls against the granted
// capability set after method resolution (§4.9).
package capability

import (
	"strings"

	"kinetix/internal/config"
	"kinetix/internal/hir"
	"kinetix/internal/kierrors"
)

// rule matches a dotted call path (e.g. "system.os.platform") against a
// prefix or exact name, and names the capability it requires.
type rule struct {
	prefix string
	exact  bool
	cap    config.Capability
}

// table mirrors §4.9's call-to-capability mapping. Longer/more specific
// prefixes are listed before their broader fallbacks so the first match wins.
var table = []rule{
	{prefix: "data.read_", cap: config.FsRead},
	{prefix: "data.exists", exact: true, cap: config.FsRead},
	{prefix: "data.list_dir", exact: true, cap: config.FsRead},
	{prefix: "data.copy", exact: true, cap: config.FsRead},
	{prefix: "data.write_text", exact: true, cap: config.FsWrite},

	{prefix: "net.get", exact: true, cap: config.NetAccess},
	{prefix: "net.post", exact: true, cap: config.NetAccess},
	{prefix: "net.download", exact: true, cap: config.NetAccess},

	{prefix: "system.os.", cap: config.SysInfo},
	{prefix: "system.uptime", exact: true, cap: config.SysInfo},
	{prefix: "system.cpu_usage", exact: true, cap: config.SysInfo},
	{prefix: "system.memory_", cap: config.SysInfo},
	{prefix: "system.exec", exact: true, cap: config.OsExecute},
	{prefix: "system.thread.", cap: config.ThreadControl},
	{prefix: "system.defer", exact: true, cap: config.ThreadControl},

	// db_conn:* (a handle returned by db.connect) shares db.*'s capability.
	{prefix: "db.", cap: config.FsRead},
	{prefix: "db_conn.", cap: config.FsRead},
}

func lookup(path string) (config.Capability, bool) {
	for _, r := range table {
		if r.exact {
			if path == r.prefix {
				return r.cap, true
			}
			continue
		}
		if strings.HasPrefix(path, r.prefix) {
			return r.cap, true
		}
	}
	return "", false
}

// Auditor walks HIR after method resolution, collecting every violation
// instead of failing on the first (§4.9: "surfaced together").
type Auditor struct {
	Grants map[config.Capability]bool
	Errors kierrors.List
}

func NewAuditor(grants map[config.Capability]bool) *Auditor {
	return &Auditor{Grants: grants}
}

func (a *Auditor) Audit(prog *hir.Program) kierrors.List {
	for _, s := range prog.Stmts {
		a.stmt(s)
	}
	return a.Errors
}

func (a *Auditor) block(stmts []hir.Stmt) {
	for _, s := range stmts {
		a.stmt(s)
	}
}

func (a *Auditor) stmt(stmt hir.Stmt) {
	switch s := stmt.(type) {
	case *hir.LetStmt:
		a.expr(s.Value)
	case *hir.ReturnStmt:
		if s.Value != nil {
			a.expr(s.Value)
		}
	case *hir.ExpressionStmt:
		a.expr(s.Expr)
	case *hir.FunctionStmt:
		a.block(s.Body)
	case *hir.WhileStmt:
		a.expr(s.Cond)
		a.block(s.Body)
	case *hir.ForStmt:
		a.expr(s.Iterable)
		a.block(s.Body)
	case *hir.ClassStmt:
		for _, m := range s.Methods {
			a.stmt(m)
		}
	case *hir.StateStmt:
		a.expr(s.Value)
	case *hir.ComputedStmt:
		a.expr(s.Value)
	case *hir.EffectStmt:
		a.block(s.Body)
	}
}

func (a *Auditor) expr(expr hir.Expr) {
	if expr == nil {
		return
	}
	switch e := expr.(type) {
	case *hir.Prefix:
		a.expr(e.Operand)
	case *hir.Infix:
		a.expr(e.Left)
		a.expr(e.Right)
	case *hir.If:
		a.expr(e.Cond)
		a.block(e.Then)
		a.block(e.Else)
	case *hir.Call:
		a.expr(e.Callee)
		for _, arg := range e.Args {
			a.expr(arg)
		}
	case *hir.MethodCall:
		a.expr(e.Object)
		for _, arg := range e.Args {
			a.expr(arg)
		}
		a.checkCall(e)
	case *hir.FunctionLiteral:
		a.block(e.Body)
	case *hir.ArrayLiteral:
		for _, el := range e.Elements {
			a.expr(el)
		}
	case *hir.MapLiteral:
		for i := range e.Keys {
			a.expr(e.Keys[i])
			a.expr(e.Values[i])
		}
	case *hir.StructLiteral:
		for _, v := range e.FieldValues {
			a.expr(v)
		}
	case *hir.Index:
		a.expr(e.Object)
		a.expr(e.Idx)
	case *hir.MemberAccess:
		a.expr(e.Object)
	case *hir.Assign:
		a.expr(e.Target)
		a.expr(e.Value)
	case *hir.Range:
		a.expr(e.Start)
		a.expr(e.End)
	case *hir.Match:
		a.expr(e.Scrutinee)
		for _, arm := range e.Arms {
			a.expr(arm.Body)
		}
	}
}

func (a *Auditor) checkCall(call *hir.MethodCall) {
	path, ok := dottedPath(call.Object)
	if !ok {
		return
	}
	path = path + "." + call.Name
	needed, matched := lookup(path)
	if !matched {
		return
	}
	if !a.Grants[needed] {
		a.Errors = append(a.Errors, kierrors.New(kierrors.Capability, call.Line(),
			"Capability '%s' not granted for call '%s'", needed, path))
	}
}

// dottedPath flattens a chain of identifier/member-access nodes into a
// dotted string, e.g. system.os for `system.os`.
func dottedPath(e hir.Expr) (string, bool) {
	switch n := e.(type) {
	case *hir.Identifier:
		return n.Name, true
	case *hir.MemberAccess:
		base, ok := dottedPath(n.Object)
		if !ok {
			return "", false
		}
		return base + "." + n.Member, true
	default:
		return "", false
	}
}
