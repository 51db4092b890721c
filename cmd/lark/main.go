// Lark CLI - runs Lark scripts on the embedded VM
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tliron/commonlog"

	"github.com/chazu/lark/cache"
	"github.com/chazu/lark/compiler"
	"github.com/chazu/lark/manifest"
	"github.com/chazu/lark/vm"

	_ "github.com/tliron/commonlog/simple"
)

func main() {
	verbosity := flag.Int("v", 0, "Log verbosity (0 = quiet)")
	noCache := flag.Bool("no-cache", false, "Skip the compiled-module cache")
	gcStats := flag.Bool("gc-stats", false, "Print collector statistics after the run")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: lark [options] [script.lark]\n\n")
		fmt.Fprintf(os.Stderr, "Runs a Lark script. With no script argument, runs the entry point\n")
		fmt.Fprintf(os.Stderr, "configured in the nearest lark.toml.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  lark main.lark         # Run a script\n")
		fmt.Fprintf(os.Stderr, "  lark -v 1 main.lark    # Run with debug logging\n")
		fmt.Fprintf(os.Stderr, "  lark                   # Run the lark.toml entry\n")
	}
	flag.Parse()

	commonlog.Configure(*verbosity, nil)

	os.Exit(run(flag.Args(), *noCache, *gcStats))
}

func run(args []string, noCache, gcStats bool) int {
	// Locate the script: a command-line path wins over the manifest entry.
	scriptPath := ""
	if len(args) > 0 {
		scriptPath = args[0]
	}

	startDir := "."
	if scriptPath != "" {
		startDir = filepath.Dir(scriptPath)
	}
	m, err := manifest.FindAndLoad(startDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading lark.toml: %v\n", err)
		return 1
	}

	cfg := &vm.Configuration{}
	if m != nil {
		cfg = m.VMConfiguration()
		if scriptPath == "" {
			scriptPath = m.EntryPath()
		}
	}
	if scriptPath == "" {
		flag.Usage()
		return 2
	}

	source, err := os.ReadFile(scriptPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", scriptPath, err)
		return 1
	}

	vmInst := vm.NewVM(cfg)
	defer vmInst.Free()
	registerIO(vmInst)

	result := interpret(vmInst, m, scriptPath, string(source), noCache)

	if gcStats {
		stats := vmInst.Heap().Stats()
		fmt.Fprintf(os.Stderr, "gc: %d collections, %d objects freed, %d bytes live\n",
			stats.Collections, stats.ObjectsFreed, vmInst.Heap().BytesLive())
	}

	switch result {
	case vm.ResultSuccess:
		return 0
	case vm.ResultCompileError:
		fmt.Fprintf(os.Stderr, "Compile error: %v\n", vmInst.LastError())
		return 1
	default:
		fmt.Fprintf(os.Stderr, "Runtime error: %v\n", vmInst.LastError())
		return 1
	}
}

// interpret runs the script, going through the compiled-module cache when
// the manifest enables it. Cache failures fall back to plain compilation.
func interpret(vmInst *vm.VM, m *manifest.Manifest, path, source string, noCache bool) vm.InterpretResult {
	if noCache || m == nil || !m.Cache.Enabled {
		return vmInst.Interpret(path, source)
	}

	c, err := cache.Open(m.CachePath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: cache unavailable: %v\n", err)
		return vmInst.Interpret(path, source)
	}
	defer c.Close()

	hash := cache.Key(source)
	if module, err := c.Get(hash); err == nil {
		return vmInst.InterpretModule(path, module)
	} else if !errors.Is(err, cache.ErrMiss) {
		fmt.Fprintf(os.Stderr, "Warning: cache read failed: %v\n", err)
	}

	module, err := compiler.Compile(path, source)
	if err != nil {
		// Route the failing compile through the VM so LastError carries
		// the diagnostic.
		return vmInst.Interpret(path, source)
	}
	if err := c.Put(hash, module); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: cache write failed: %v\n", err)
	}
	return vmInst.InterpretModule(path, module)
}

// registerIO binds the IO class: static print/write methods backed by
// stdout.
func registerIO(vmInst *vm.VM) {
	vmInst.DefineStaticMethod("IO", "print", 1, func(call *vm.Call) {
		fmt.Println(call.StringifyArg(1))
	})
	vmInst.DefineStaticMethod("IO", "write", 1, func(call *vm.Call) {
		fmt.Print(call.StringifyArg(1))
	})
}
