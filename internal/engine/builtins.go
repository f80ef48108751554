package engine

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"kinetix/internal/vm"
)

// defaultBuiltins wires every dotted built-in name the capability table
// (internal/capability) recognizes to a concrete implementation. Names not
// listed here, but reachable at runtime through a dynamically constructed
// string, fail with "unknown built-in" at call time rather than panicking.
func defaultBuiltins() map[string]BuiltinFunc {
	return map[string]BuiltinFunc{
		"data.read_text":  dataReadText,
		"data.write_text": dataWriteText,
		"data.exists":     dataExists,
		"data.list_dir":   dataListDir,
		"data.copy":       dataCopy,

		"net.get":      netGet,
		"net.post":     netPost,
		"net.download": netDownload,

		"system.os.platform":  systemOSPlatform,
		"system.uptime":       systemUptime,
		"system.cpu_usage":    systemCPUUsage,
		"system.memory_usage": systemMemoryUsage,
		"system.exec":         systemExec,

		"system.thread.spawn": threadStub,
		"system.thread.join":  threadStub,
		"system.defer":        threadStub,

		"db.connect": dbConnect,
		"db.query":   dbQuery,
		"db.execute": dbExecute,
		"db.close":   dbClose,
	}
}

func argString(args []vm.Value, i int) string {
	if i >= len(args) || args[i].Kind != vm.KStr {
		return ""
	}
	return args[i].Str
}

func dataReadText(e *Engine, args []vm.Value) (vm.Value, error) {
	if !e.hasCapability(capFsRead) {
		return vm.Null(), fmt.Errorf("data.read_text: FsRead capability not granted")
	}
	b, err := os.ReadFile(argString(args, 0))
	if err != nil {
		return vm.Null(), err
	}
	return vm.Str(string(b)), nil
}

func dataWriteText(e *Engine, args []vm.Value) (vm.Value, error) {
	if !e.hasCapability(capFsWrite) {
		return vm.Null(), fmt.Errorf("data.write_text: FsWrite capability not granted")
	}
	if err := os.WriteFile(argString(args, 0), []byte(argString(args, 1)), 0o644); err != nil {
		return vm.Null(), err
	}
	return vm.Null(), nil
}

func dataExists(e *Engine, args []vm.Value) (vm.Value, error) {
	if !e.hasCapability(capFsRead) {
		return vm.Null(), fmt.Errorf("data.exists: FsRead capability not granted")
	}
	_, err := os.Stat(argString(args, 0))
	return vm.Bool(err == nil), nil
}

func dataListDir(e *Engine, args []vm.Value) (vm.Value, error) {
	if !e.hasCapability(capFsRead) {
		return vm.Null(), fmt.Errorf("data.list_dir: FsRead capability not granted")
	}
	entries, err := os.ReadDir(argString(args, 0))
	if err != nil {
		return vm.Null(), err
	}
	names := make([]vm.Value, len(entries))
	for i, ent := range entries {
		names[i] = vm.Str(ent.Name())
	}
	return vm.Array(names), nil
}

func dataCopy(e *Engine, args []vm.Value) (vm.Value, error) {
	if !e.hasCapability(capFsRead) {
		return vm.Null(), fmt.Errorf("data.copy: FsRead capability not granted")
	}
	src, err := os.Open(filepath.Clean(argString(args, 0)))
	if err != nil {
		return vm.Null(), err
	}
	defer src.Close()
	dst, err := os.Create(filepath.Clean(argString(args, 1)))
	if err != nil {
		return vm.Null(), err
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		return vm.Null(), err
	}
	return vm.Null(), nil
}

func netGet(e *Engine, args []vm.Value) (vm.Value, error) {
	if !e.hasCapability(capNetAccess) {
		return vm.Null(), fmt.Errorf("net.get: NetAccess capability not granted")
	}
	resp, err := http.Get(argString(args, 0))
	if err != nil {
		return vm.Null(), err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return vm.Null(), err
	}
	return vm.Str(string(body)), nil
}

func netPost(e *Engine, args []vm.Value) (vm.Value, error) {
	if !e.hasCapability(capNetAccess) {
		return vm.Null(), fmt.Errorf("net.post: NetAccess capability not granted")
	}
	resp, err := http.Post(argString(args, 0), "application/json", nil)
	if err != nil {
		return vm.Null(), err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return vm.Null(), err
	}
	return vm.Str(string(body)), nil
}

func netDownload(e *Engine, args []vm.Value) (vm.Value, error) {
	if !e.hasCapability(capNetAccess) {
		return vm.Null(), fmt.Errorf("net.download: NetAccess capability not granted")
	}
	resp, err := http.Get(argString(args, 0))
	if err != nil {
		return vm.Null(), err
	}
	defer resp.Body.Close()
	out, err := os.Create(filepath.Clean(argString(args, 1)))
	if err != nil {
		return vm.Null(), err
	}
	defer out.Close()
	if _, err := io.Copy(out, resp.Body); err != nil {
		return vm.Null(), err
	}
	return vm.Null(), nil
}

func systemOSPlatform(e *Engine, args []vm.Value) (vm.Value, error) {
	if !e.hasCapability(capSysInfo) {
		return vm.Null(), fmt.Errorf("system.os.platform: SysInfo capability not granted")
	}
	return vm.Str(runtime.GOOS), nil
}

func systemUptime(e *Engine, args []vm.Value) (vm.Value, error) {
	if !e.hasCapability(capSysInfo) {
		return vm.Null(), fmt.Errorf("system.uptime: SysInfo capability not granted")
	}
	return vm.Float(time.Since(processStart).Seconds()), nil
}

func systemCPUUsage(e *Engine, args []vm.Value) (vm.Value, error) {
	if !e.hasCapability(capSysInfo) {
		return vm.Null(), fmt.Errorf("system.cpu_usage: SysInfo capability not granted")
	}
	return vm.Int(int64(runtime.NumGoroutine())), nil
}

func systemMemoryUsage(e *Engine, args []vm.Value) (vm.Value, error) {
	if !e.hasCapability(capSysInfo) {
		return vm.Null(), fmt.Errorf("system.memory_usage: SysInfo capability not granted")
	}
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return vm.Int(int64(ms.Alloc)), nil
}

func systemExec(e *Engine, args []vm.Value) (vm.Value, error) {
	if !e.hasCapability(capOsExecute) {
		return vm.Null(), fmt.Errorf("system.exec: OsExecute capability not granted")
	}
	cmd := exec.Command(argString(args, 0))
	out, err := cmd.CombinedOutput()
	if err != nil {
		return vm.Null(), err
	}
	return vm.Str(string(out)), nil
}

// threadStub reports every system.thread.* / system.defer call as not
// implemented, per §5: this baseline's concurrency model is single-threaded
// and these built-ins exist only so programs written against the full
// language fail predictably rather than with an "unknown built-in" error.
func threadStub(e *Engine, args []vm.Value) (vm.Value, error) {
	return vm.Null(), fmt.Errorf("not implemented: concurrency primitives are stubs in this runtime")
}

// dbConnect expects (id, dbType, dsn); the connection it opens is
// addressed by id in every later db.query/db.execute/db.close call rather
// than returned as a handle value, since the pooled *sql.DB underneath
// can't round-trip through a vm.Value.
func dbConnect(e *Engine, args []vm.Value) (vm.Value, error) {
	if !e.hasCapability(capFsRead) {
		return vm.Null(), fmt.Errorf("db.connect: FsRead capability not granted")
	}
	id, dbType, dsn := argString(args, 0), argString(args, 1), argString(args, 2)
	if err := e.db.Connect(id, dbType, dsn); err != nil {
		return vm.Null(), err
	}
	return vm.Str(id), nil
}

// dbQuery expects (id, query) and returns an array of row maps, one
// string-keyed vm.Map per result row.
func dbQuery(e *Engine, args []vm.Value) (vm.Value, error) {
	if !e.hasCapability(capFsRead) {
		return vm.Null(), fmt.Errorf("db.query: FsRead capability not granted")
	}
	rows, err := e.db.Query(argString(args, 0), argString(args, 1))
	if err != nil {
		return vm.Null(), err
	}
	out := make([]vm.Value, len(rows))
	for i, row := range rows {
		out[i] = vm.Map(rowToFields(row))
	}
	return vm.Array(out), nil
}

// dbExecute expects (id, statement) and returns the affected row count.
func dbExecute(e *Engine, args []vm.Value) (vm.Value, error) {
	if !e.hasCapability(capFsRead) {
		return vm.Null(), fmt.Errorf("db.execute: FsRead capability not granted")
	}
	affected, err := e.db.Execute(argString(args, 0), argString(args, 1))
	if err != nil {
		return vm.Null(), err
	}
	return vm.Int(affected), nil
}

func dbClose(e *Engine, args []vm.Value) (vm.Value, error) {
	if !e.hasCapability(capFsRead) {
		return vm.Null(), fmt.Errorf("db.close: FsRead capability not granted")
	}
	if err := e.db.Close(argString(args, 0)); err != nil {
		return vm.Null(), err
	}
	return vm.Null(), nil
}

// rowToFields converts a database/sql result row (column name -> Go native
// value) into the field map a vm.Map expects, stringifying anything that
// isn't already one of the VM's scalar kinds.
func rowToFields(row map[string]interface{}) map[string]vm.Value {
	fields := make(map[string]vm.Value, len(row))
	for col, val := range row {
		switch v := val.(type) {
		case nil:
			fields[col] = vm.Null()
		case int64:
			fields[col] = vm.Int(v)
		case float64:
			fields[col] = vm.Float(v)
		case bool:
			fields[col] = vm.Bool(v)
		case string:
			fields[col] = vm.Str(v)
		default:
			fields[col] = vm.Str(fmt.Sprintf("%v", v))
		}
	}
	return fields
}

var processStart = time.Now()

const (
	capFsRead    = "FsRead"
	capFsWrite   = "FsWrite"
	capNetAccess = "NetAccess"
	capSysInfo   = "SysInfo"
	capOsExecute = "OsExecute"
)
