// Retro - bytecode module decompiler
// Reads compiled module files and reconstructs source-level trees.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tliron/commonlog"

	"github.com/chazu/retrograde/manifest"
	"github.com/chazu/retrograde/pkg/cache"
	"github.com/chazu/retrograde/pkg/decompile"
	"github.com/chazu/retrograde/pkg/pyc"
	"github.com/chazu/retrograde/pkg/wire"

	_ "github.com/tliron/commonlog/simple"
)

var (
	dialect   = flag.String("dialect", "", "dialect version override, e.g. 3.8 (defaults to the module header or manifest)")
	disasm    = flag.Bool("disasm", false, "print a disassembly listing instead of decompiling")
	outDir    = flag.String("out", "", "directory for envelope output (defaults to the manifest output dir)")
	useCache  = flag.Bool("cache", false, "reuse and store builds in the decompilation cache")
	strict    = flag.Bool("strict", false, "fail on degraded builds instead of writing partial trees")
	verbosity = flag.Int("verbose", 0, "log verbosity")
	version   = flag.Bool("version", false, "print version and exit")
)

const versionStr = "0.3.0"

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Retro - bytecode module decompiler\n\n")
		fmt.Fprintf(os.Stderr, "Usage:\n")
		fmt.Fprintf(os.Stderr, "  retro [options] module.rpyc ...\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if *version {
		fmt.Printf("retro version %s\n", versionStr)
		os.Exit(0)
	}

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	commonlog.Configure(*verbosity, nil)

	man, err := manifest.FindAndLoad(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading manifest: %v\n", err)
		os.Exit(1)
	}

	var store *cache.Cache
	if *useCache {
		store, err = openCache(man)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening cache: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()
	}

	failed := false
	for _, path := range flag.Args() {
		if err := processFile(path, man, store); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s: %v\n", path, err)
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

func openCache(man *manifest.Manifest) (*cache.Cache, error) {
	if man != nil && man.Output.CachePath != "" {
		return cache.Open(filepath.Join(man.Dir, man.Output.CachePath))
	}
	return cache.OpenDefault()
}

func processFile(path string, man *manifest.Manifest, store *cache.Cache) error {
	mod, err := pyc.ReadModuleFile(path)
	if err != nil {
		return err
	}

	ver, err := resolveDialect(path, mod, man)
	if err != nil {
		return err
	}

	if *disasm || (man != nil && man.Output.Disassembly) {
		listing, err := pyc.Disassemble(mod.Code, ver)
		if err != nil {
			return err
		}
		fmt.Print(listing)
		return nil
	}

	if store != nil {
		if data, err := store.Get(mod.Code, ver); err == nil {
			return writeEnvelope(path, man, data)
		}
	}

	res, err := decompile.Decompile(mod.Code, ver)
	if err != nil {
		return err
	}
	for _, d := range res.Diagnostics {
		fmt.Fprintf(os.Stderr, "%s: %s\n", path, d)
	}
	if !res.Clean && (*strict || (man != nil && man.Output.Strict)) {
		return fmt.Errorf("degraded build (%d diagnostics)", len(res.Diagnostics))
	}

	env := wire.NewEnvelope(mod.Code.Name, ver, res)
	data, err := wire.MarshalEnvelope(env)
	if err != nil {
		return err
	}

	if store != nil {
		if err := store.Put(mod.Code, ver, data); err != nil {
			return err
		}
	}
	return writeEnvelope(path, man, data)
}

func resolveDialect(path string, mod *pyc.Module, man *manifest.Manifest) (pyc.Version, error) {
	if *dialect != "" {
		return manifest.ParseVersion(*dialect)
	}
	if man != nil {
		if ver, err := man.DialectFor(path); err == nil {
			return ver, nil
		}
	}
	if mod.Version.Major != 0 {
		return mod.Version, nil
	}
	return pyc.Version{}, fmt.Errorf("no dialect version available")
}

func writeEnvelope(path string, man *manifest.Manifest, data []byte) error {
	dir := *outDir
	if dir == "" && man != nil {
		dir = man.OutputDirPath()
	}
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	base := filepath.Base(path)
	out := filepath.Join(dir, base[:len(base)-len(filepath.Ext(base))]+".cbor")
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return err
	}
	fmt.Printf("%s -> %s\n", path, out)
	return nil
}
