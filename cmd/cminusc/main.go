package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/docker/go-units"
	"github.com/fsnotify/fsnotify"

	"github.com/tinyrange/cminusc/internal/compiler"
	"github.com/tinyrange/cminusc/internal/interp"
)

type config struct {
	src     string
	out     string
	emitIR  bool
	run     bool
	verbose bool
	opts    compiler.Options
}

func main() {
	log.SetFlags(0)
	log.SetPrefix("cminusc: ")

	var cfg config
	flag.StringVar(&cfg.out, "o", "", "write the output to `file` instead of stdout")
	flag.BoolVar(&cfg.emitIR, "emit-ir", false, "print the optimized IR instead of assembly")
	flag.BoolVar(&cfg.opts.Mem2Reg, "mem2reg", true, "promote locals to SSA values")
	flag.BoolVar(&cfg.opts.LICM, "licm", true, "hoist loop-invariant code")
	flag.BoolVar(&cfg.run, "run", false, "interpret main instead of emitting assembly")
	flag.BoolVar(&cfg.verbose, "v", false, "report pass statistics and frame sizes")
	watch := flag.Bool("watch", false, "recompile whenever the source file changes")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: cminusc [flags] <file.cminus>")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	cfg.src = flag.Arg(0)

	if *watch {
		if err := watchAndBuild(cfg); err != nil {
			log.Fatal(err)
		}
		return
	}
	code, err := build(cfg)
	if err != nil {
		log.Print(err)
		os.Exit(1)
	}
	os.Exit(code)
}

// build compiles cfg.src once. With -run the returned code is the value
// main returned.
func build(cfg config) (int, error) {
	data, err := os.ReadFile(cfg.src)
	if err != nil {
		return 0, err
	}
	opts := cfg.opts
	opts.SkipCodegen = cfg.emitIR || cfg.run
	res, err := compiler.Compile(filepath.Base(cfg.src), string(data), opts)
	if res == nil {
		return 0, err
	}
	if cfg.verbose {
		report(res)
	}
	if err != nil {
		return 0, err
	}

	if cfg.run {
		code, err := interp.New(res.Module, os.Stdin, os.Stdout).Run()
		return int(code), err
	}
	text := res.Asm
	if cfg.emitIR {
		text = res.Module.String()
	}
	if cfg.out == "" {
		_, err = fmt.Print(text)
		return 0, err
	}
	return 0, os.WriteFile(cfg.out, []byte(text), 0644)
}

func report(res *compiler.Result) {
	st := res.Stats
	log.Printf("mem2reg: %d locals promoted, %d phis placed", st.Promoted, st.Phis)
	log.Printf("licm: %d instructions hoisted, %d preheaders created", st.Hoisted, st.Preheaders)
	log.Printf("critical edges split: %d", res.SplitEdges)
	for _, fr := range res.Frames {
		log.Printf("frame %s: %s", fr.Func, units.BytesSize(float64(fr.Size)))
	}
}

// watchAndBuild builds once, then again on every write to the source.
// The directory is watched rather than the file so that editors that
// replace the file on save keep triggering rebuilds.
func watchAndBuild(cfg config) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(cfg.src)); err != nil {
		return err
	}

	rebuild := func() {
		if _, err := build(cfg); err != nil {
			log.Print(err)
			return
		}
		log.Printf("built %s", cfg.src)
	}
	rebuild()

	target := filepath.Clean(cfg.src)
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) == target && ev.Has(fsnotify.Write|fsnotify.Create) {
				rebuild()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Print(err)
		}
	}
}
