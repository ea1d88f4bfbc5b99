// Package cli implements the bindgen command line.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/funvibe/bindgen/internal/config"
	"github.com/funvibe/bindgen/internal/cppgen"
	"github.com/funvibe/bindgen/internal/ext"
	"github.com/funvibe/bindgen/internal/logger"
	"github.com/funvibe/bindgen/internal/model"
	"github.com/funvibe/bindgen/internal/overload"
)

// Exit codes
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 2
)

const usage = `Usage: bindgen <command> [flags] [args]

Commands:
  generate     write binding sources for the API named in bindgen.yaml
  tree         print the overload resolver tree of groups as YAML
  signatures   list the signatures of groups (all groups when none given)
  cache        show (stats) or empty (clean) the dispatch cache
  version      print the generator version

Groups are named "Class.name", "Class" for constructors, or "name" for
module functions. Run 'bindgen <command> -h' for the flags of a command.
`

// usageError makes Run exit with ExitUsage. An empty message means the flag
// package already reported the problem.
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

type env struct {
	stdout io.Writer
	stderr io.Writer
}

// Run is the process entry point: it runs the command line and exits.
func Run() {
	// Catch panics and show user-friendly error
	defer func() {
		if r := recover(); r != nil {
			if os.Getenv("DEBUG") == "1" {
				panic(r) // Re-panic to get stack trace
			}
			fmt.Fprintf(os.Stderr, "Internal error: %v\n", r)
			fmt.Fprintln(os.Stderr, "This is a bug. Please report it.")
			os.Exit(ExitFailure)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := Execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// Execute runs one bindgen invocation and returns its exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	e := &env{stdout: stdout, stderr: stderr}
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return ExitUsage
	}

	var err error
	switch args[0] {
	case "generate":
		err = handleGenerate(ctx, e, args[1:])
	case "tree":
		err = handleTree(e, args[1:])
	case "signatures":
		err = handleSignatures(e, args[1:])
	case "cache":
		err = handleCache(ctx, e, args[1:])
	case "version", "-version", "--version":
		fmt.Fprintf(stdout, "bindgen %s\n", config.Version)
		return ExitOK
	case "help", "-h", "-help", "--help":
		fmt.Fprint(stdout, usage)
		return ExitOK
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		fmt.Fprint(stderr, usage)
		return ExitUsage
	}

	var ue *usageError
	switch {
	case err == nil, errors.Is(err, flag.ErrHelp):
		return ExitOK
	case errors.As(err, &ue):
		if ue.msg != "" {
			fmt.Fprintf(stderr, "Error: %s\n", ue.msg)
		}
		return ExitUsage
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitFailure
	}
}

// commonFlags are accepted by every command that reads a project.
type commonFlags struct {
	config    string
	api       string
	logLevel  string
	logFormat string
}

func (c *commonFlags) register(fs *flag.FlagSet, withAPI bool) {
	fs.StringVar(&c.config, "config", "", "path to bindgen.yaml (default: search upwards from the working directory)")
	if withAPI {
		fs.StringVar(&c.api, "api", "", "API description to load instead of the one named in bindgen.yaml")
	}
	fs.StringVar(&c.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	fs.StringVar(&c.logFormat, "log-format", "auto", "log format: text, json, auto")
}

func (c *commonFlags) initLogger(e *env) error {
	level, err := logger.ParseLevel(c.logLevel)
	if err != nil {
		return &usageError{msg: err.Error()}
	}
	if err := logger.Init(logger.Config{Level: level, Format: c.logFormat, Output: e.stderr}); err != nil {
		return &usageError{msg: err.Error()}
	}
	return nil
}

func newFlagSet(e *env, name, synopsis string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	fs.Usage = func() {
		fmt.Fprintf(e.stderr, "Usage: bindgen %s %s\n\nFlags:\n", name, synopsis)
		fs.PrintDefaults()
	}
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return &usageError{}
	}
	return nil
}

// findConfig returns path when set, otherwise the bindgen.yaml found above
// the working directory, or "" when there is none.
func findConfig(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("cannot determine working directory: %w", err)
	}
	return ext.FindConfig(cwd)
}

func requireConfig(path string) (string, *ext.Config, error) {
	found, err := findConfig(path)
	if err != nil {
		return "", nil, err
	}
	if found == "" {
		return "", nil, fmt.Errorf("%s not found (or use --config)", config.ConfigFileName)
	}
	cfg, err := ext.LoadConfig(found)
	if err != nil {
		return "", nil, err
	}
	return found, cfg, nil
}

// handleGenerate runs the full pipeline.
//
// Usage: bindgen generate [--config <path>] [--output <dir>] [--jobs <n>] [--no-cache] [--dry-run] [--strict]
func handleGenerate(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "generate", "[flags]")
	var c commonFlags
	c.register(fs, false)
	output := fs.String("output", "", "output directory (default: output from bindgen.yaml)")
	jobs := fs.Int("jobs", 0, "files rendered in parallel (default: options.jobs from bindgen.yaml)")
	noCache := fs.Bool("no-cache", false, "render every group without the dispatch cache")
	dryRun := fs.Bool("dry-run", false, "render everything but write nothing")
	strict := fs.Bool("strict", false, "fail when the build reports warnings")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return &usageError{msg: fmt.Sprintf("generate takes no arguments, got %q", fs.Arg(0))}
	}
	if *jobs < 0 {
		return &usageError{msg: "--jobs must not be negative"}
	}
	if err := c.initLogger(e); err != nil {
		return err
	}

	configPath, cfg, err := requireConfig(c.config)
	if err != nil {
		return err
	}

	opts := []ext.BuilderOption{
		ext.WithBuildJobs(*jobs),
		ext.WithDryRun(*dryRun),
		ext.WithLogger(logger.L()),
	}
	if *output != "" {
		opts = append(opts, ext.WithOutput(*output))
	}
	if *noCache {
		opts = append(opts, ext.WithoutCache())
	}
	res, err := ext.NewBuilder(cfg, configPath, opts...).Build(ctx)
	if err != nil {
		return err
	}

	if *dryRun {
		for _, f := range res.Files {
			fmt.Fprintf(e.stdout, "%s (%d bytes)\n", filepath.Join(res.OutputDir, f.Filename), len(f.Content))
		}
	} else {
		for _, f := range res.Files {
			fmt.Fprintf(e.stdout, "  %s\n", f.Filename)
		}
		for _, name := range res.Removed {
			fmt.Fprintf(e.stdout, "  removed %s\n", name)
		}
		fmt.Fprintf(e.stdout, "Generated %d files in %s (%d groups, %d cached, %d warnings)\n",
			len(res.Files), res.OutputDir, len(res.Dispatches), res.CacheHits, len(res.Warnings))
	}

	if *strict && len(res.Warnings) > 0 {
		return fmt.Errorf("%d warning(s) with --strict", len(res.Warnings))
	}
	return nil
}

// loadAPI loads the API a query command works on: the one named by
// bindgen.yaml with its rules applied, or a bare API description.
func loadAPI(c *commonFlags) (*model.API, error) {
	configPath := c.config
	if configPath == "" && c.api == "" {
		found, err := findConfig("")
		if err != nil {
			return nil, err
		}
		configPath = found
	}

	if configPath == "" {
		path := c.api
		if path == "" {
			path = config.APIFileName
		}
		return model.LoadAPI(path)
	}

	cfg, err := ext.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if c.api != "" {
		abs, err := filepath.Abs(c.api)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", c.api, err)
		}
		cfg.API = abs
	}
	res, err := ext.NewInspector(cfg, configPath).Inspect()
	if err != nil {
		return nil, err
	}
	return res.API, nil
}

// collectTarget resolves "Class.name", "Class" (constructors) or a module
// function name to its overload group.
func collectTarget(api *model.API, target string) (*overload.Group, error) {
	col := overload.NewCollector(api)
	if cls := api.Class(target); cls != nil {
		return col.Collect(cls, cls.Name)
	}
	if i := strings.LastIndex(target, "."); i > 0 {
		cls := api.Class(target[:i])
		if cls == nil {
			return nil, fmt.Errorf("unknown class %q", target[:i])
		}
		return col.Collect(cls, target[i+1:])
	}
	return col.Collect(nil, target)
}

// handleTree prints the resolver tree of every named group.
//
// Usage: bindgen tree [--config <path>] [--api <path>] <group>...
func handleTree(e *env, args []string) error {
	fs := newFlagSet(e, "tree", "[flags] <group>...")
	var c commonFlags
	c.register(fs, true)
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return &usageError{msg: "tree needs at least one group, e.g. Shape.move"}
	}
	if err := c.initLogger(e); err != nil {
		return err
	}

	api, err := loadAPI(&c)
	if err != nil {
		return err
	}
	for i, target := range fs.Args() {
		g, err := collectTarget(api, target)
		if err != nil {
			return err
		}
		tree, err := overload.Build(g)
		if err != nil {
			return err
		}
		out, err := tree.Dump()
		if err != nil {
			return err
		}
		if i > 0 {
			fmt.Fprintln(e.stdout, "---")
		}
		if _, err := e.stdout.Write(out); err != nil {
			return err
		}
	}
	return nil
}

// handleSignatures lists host signatures, or native ones with --native.
//
// Usage: bindgen signatures [--config <path>] [--api <path>] [--native] [<group>...]
func handleSignatures(e *env, args []string) error {
	fs := newFlagSet(e, "signatures", "[flags] [<group>...]")
	var c commonFlags
	c.register(fs, true)
	native := fs.Bool("native", false, "print the C++ signatures instead of the host ones")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := c.initLogger(e); err != nil {
		return err
	}

	api, err := loadAPI(&c)
	if err != nil {
		return err
	}

	var groups []*overload.Group
	if fs.NArg() == 0 {
		col := overload.NewCollector(api)
		scopes := []*model.Class{nil}
		scopes = append(scopes, api.Classes...)
		for _, cls := range scopes {
			gs, err := col.CollectAll(cls)
			if err != nil {
				return err
			}
			groups = append(groups, gs...)
		}
	}
	for _, target := range fs.Args() {
		g, err := collectTarget(api, target)
		if err != nil {
			return err
		}
		groups = append(groups, g)
	}

	for _, g := range groups {
		sigs := cppgen.FullSignatures(api, g)
		if *native {
			sigs = g.Signatures()
			if g.Class != nil {
				for i := range sigs {
					sigs[i] = g.Class.Name + "::" + sigs[i]
				}
			}
		}
		for _, s := range sigs {
			fmt.Fprintln(e.stdout, s)
		}
	}
	return nil
}

// handleCache inspects or empties the dispatch cache of a project.
//
// Usage: bindgen cache stats|clean [--config <path>]
func handleCache(ctx context.Context, e *env, args []string) error {
	if len(args) == 0 || (args[0] != "stats" && args[0] != "clean") {
		return &usageError{msg: "cache needs a subcommand: stats or clean"}
	}
	sub := args[0]
	fs := newFlagSet(e, "cache "+sub, "[flags]")
	var c commonFlags
	c.register(fs, false)
	if err := parseFlags(fs, args[1:]); err != nil {
		return err
	}
	if err := c.initLogger(e); err != nil {
		return err
	}

	configPath, cfg, err := requireConfig(c.config)
	if err != nil {
		return err
	}
	if !cfg.CacheEnabled() {
		fmt.Fprintf(e.stdout, "cache is disabled in %s\n", configPath)
		return nil
	}
	path := ext.NewBuilder(cfg, configPath).CachePath()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(e.stdout, "no cache at %s\n", path)
		return nil
	}

	cache, err := ext.OpenCache(ctx, path)
	if err != nil {
		return err
	}
	defer cache.Close()

	switch sub {
	case "stats":
		stats, err := cache.Stats(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(e.stdout, "%s: %d entries\n", path, stats.Entries)
	case "clean":
		if err := cache.Clean(ctx); err != nil {
			return err
		}
		fmt.Fprintf(e.stdout, "cleaned %s\n", path)
	}
	return nil
}
