// cmd/kinetix/main.go
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"kinetix/internal/bundle"
	"kinetix/internal/bytecode"
	"kinetix/internal/config"
	"kinetix/internal/engine"
	"kinetix/internal/pipeline"
)

const version = "0.1.0"

// commandAliases mirrors the one-letter shorthands scripts and muscle
// memory expect.
var commandAliases = map[string]string{
	"r": "run",
	"e": "exec",
	"c": "compile",
	"t": "test",
	"v": "version",
}

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	cmd := args[0]
	if alias, ok := commandAliases[cmd]; ok {
		cmd = alias
	}
	rest := args[1:]

	var err error
	switch cmd {
	case "run":
		err = runBundle(rest)
	case "exec":
		err = execSource(rest)
	case "compile":
		err = compileSource(rest)
	case "test":
		err = runTests(rest)
	case "version", "--version", "-v":
		showVersion()
		return
	case "help", "--help", "-h":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		usage()
		os.Exit(1)
	}

	if err != nil {
		printError(err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("Kinetix " + version)
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  kinetix run FILE.exki")
	fmt.Println("  kinetix exec FILE.kix")
	fmt.Println("  kinetix compile --input FILE.kix [--output PATH] [--exe] [--native]")
	fmt.Println("  kinetix test PATH")
	fmt.Println("  kinetix version")
}

func showVersion() {
	fmt.Printf("Kinetix %s\n", version)
}

// grantsFromFlags starts from the CLI's default grant set and applies any
// --grant=NAME / --deny=NAME overrides found in args, per §6's "overrideable
// at the invocation boundary".
func grantsFromFlags(args []string) (map[config.Capability]bool, []string) {
	grants := config.DefaultGrants()
	var rest []string
	for _, a := range args {
		switch {
		case strings.HasPrefix(a, "--grant="):
			grants[config.Capability(strings.TrimPrefix(a, "--grant="))] = true
		case strings.HasPrefix(a, "--deny="):
			grants[config.Capability(strings.TrimPrefix(a, "--deny="))] = false
		default:
			rest = append(rest, a)
		}
	}
	return grants, rest
}

func runBundle(args []string) error {
	grants, args := grantsFromFlags(args)
	if len(args) < 1 {
		return fmt.Errorf("usage: kinetix run FILE.exki")
	}
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	prog, err := bundle.Read(f)
	if err != nil {
		return err
	}
	return runCompiled(prog, grants)
}

func execSource(args []string) error {
	grants, args := grantsFromFlags(args)
	if len(args) < 1 {
		return fmt.Errorf("usage: kinetix exec FILE.kix")
	}
	res, err := pipeline.CompileFile(args[0], pipeline.Options{Grants: grants, MaxDepth: config.MaxInstantiationDepth})
	if err != nil {
		return compileErr(res, err)
	}
	return runCompiled(res.Compiled, grants)
}

func runCompiled(prog *bytecode.CompiledProgram, grants map[config.Capability]bool) error {
	eng := engine.New(prog, grants)
	return eng.Run()
}

// compileErr turns a pipeline failure into the error a caller should
// report: the original error when preprocessing failed before any
// Result existed, or the accumulated diagnostics otherwise.
func compileErr(res *pipeline.Result, err error) error {
	if res == nil || len(res.Diagnostics) == 0 {
		return err
	}
	return res.Diagnostics
}

func compileSource(args []string) error {
	var input, output string
	wantExe, wantNative := false, false
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--input" && i+1 < len(args):
			i++
			input = args[i]
		case args[i] == "--output" && i+1 < len(args):
			i++
			output = args[i]
		case args[i] == "--exe":
			wantExe = true
		case args[i] == "--native":
			wantNative = true
		}
	}
	if input == "" {
		return fmt.Errorf("usage: kinetix compile --input FILE.kix [--output PATH] [--exe] [--native]")
	}
	if wantNative {
		return fmt.Errorf("native code generation is not part of this build; see the specification's open question on native codegen")
	}

	res, err := pipeline.CompileFile(input, pipeline.DefaultOptions())
	if err != nil {
		return compileErr(res, err)
	}

	if output == "" {
		output = strings.TrimSuffix(input, filepath.Ext(input)) + ".exki"
	}

	out, err := os.Create(output)
	if err != nil {
		return err
	}
	defer out.Close()

	if wantExe {
		self, err := os.Executable()
		if err != nil {
			return err
		}
		selfBytes, err := os.ReadFile(self)
		if err != nil {
			return err
		}
		if _, err := out.Write(selfBytes); err != nil {
			return err
		}
		if err := bundle.WriteExecutable(out, res.Compiled); err != nil {
			return err
		}
		if err := out.Chmod(0o755); err != nil {
			return err
		}
	} else if err := bundle.Write(out, res.Compiled); err != nil {
		return err
	}

	info, err := out.Stat()
	if err == nil {
		fmt.Printf("wrote %s (%s)\n", output, humanize.Bytes(uint64(info.Size())))
	}
	return nil
}

func runTests(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: kinetix test PATH")
	}
	files, err := discoverTestFiles(args[0])
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no .kix files found under %s", args[0])
	}

	failures := 0
	for _, f := range files {
		res, err := pipeline.CompileFile(f, pipeline.DefaultOptions())
		if err != nil {
			fmt.Printf("FAIL %s\n%v\n", f, compileErr(res, err))
			failures++
			continue
		}
		eng := engine.New(res.Compiled, config.DefaultGrants())
		if err := eng.Run(); err != nil {
			fmt.Printf("FAIL %s: %v\n", f, err)
			failures++
			continue
		}
		fmt.Printf("PASS %s\n", f)
	}
	if failures > 0 {
		return fmt.Errorf("%d of %d test files failed", failures, len(files))
	}
	return nil
}

func discoverTestFiles(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{root}, nil
	}
	var files []string
	err = filepath.Walk(root, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !fi.IsDir() && strings.HasSuffix(path, ".kix") {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// printError writes one red "error:" line carrying the whole error, then a
// version/issue-tracker footer. For a kierrors.List the per-diagnostic
// location-plus-caret text comes from the list's own Error() method.
func printError(err error) {
	const red = "\033[31m"
	const reset = "\033[0m"
	fmt.Fprintf(os.Stderr, "%serror:%s %v\n", red, reset, err)
	fmt.Fprintf(os.Stderr, "kinetix %s - report issues at https://github.com/kinetix-lang/kinetix/issues\n", version)
}
