package ext

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/funvibe/bindgen/internal/cppgen"
	"github.com/funvibe/bindgen/internal/logger"
	"github.com/funvibe/bindgen/internal/model"
)

// Builder runs the whole pipeline for one bindgen.yaml: load and modify the
// API, render every file and write the output directory.
type Builder struct {
	// config is the parsed bindgen.yaml.
	config *Config

	// configPath is the bindgen.yaml the config was read from.
	configPath string

	// outputDir overrides config.Output when set.
	outputDir string

	// jobs overrides config.Options.Jobs when positive.
	jobs int

	// noCache disables the dispatch cache regardless of the config.
	noCache bool

	// dryRun renders everything but writes nothing.
	dryRun bool

	log *slog.Logger
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithOutput sets the output directory.
func WithOutput(dir string) BuilderOption {
	return func(b *Builder) { b.outputDir = dir }
}

// WithBuildJobs sets the number of files rendered in parallel.
func WithBuildJobs(n int) BuilderOption {
	return func(b *Builder) { b.jobs = n }
}

// WithoutCache renders every group even when the config enables the cache.
func WithoutCache() BuilderOption {
	return func(b *Builder) { b.noCache = true }
}

// WithDryRun skips writing files and touching the cache database.
func WithDryRun(v bool) BuilderOption {
	return func(b *Builder) { b.dryRun = v }
}

// WithLogger sets the logger for build progress.
func WithLogger(l *slog.Logger) BuilderOption {
	return func(b *Builder) { b.log = l }
}

// NewBuilder creates a new Builder. Relative paths in cfg are resolved
// against the directory of configPath.
func NewBuilder(cfg *Config, configPath string, opts ...BuilderOption) *Builder {
	b := &Builder{config: cfg, configPath: configPath, log: logger.L()}
	for _, o := range opts {
		o(b)
	}
	return b
}

// BuildResult contains the output of a successful build.
type BuildResult struct {
	// OutputDir is where the files were written.
	OutputDir string

	Files      []GeneratedFile
	Dispatches []*cppgen.Dispatch
	Warnings   []string

	// Removed lists stale generated files deleted from OutputDir.
	Removed []string

	CacheHits   int
	CachePruned int64
	// RunID is the cache run id, empty without a cache.
	RunID string
}

func (b *Builder) configDir() string {
	return filepath.Dir(b.configPath)
}

// OutputDir is the resolved output directory.
func (b *Builder) OutputDir() string {
	if b.outputDir != "" {
		return b.outputDir
	}
	return resolvePath(b.configDir(), b.config.Output)
}

// CachePath is the resolved dispatch cache database.
func (b *Builder) CachePath() string {
	return resolvePath(b.configDir(), b.config.Options.Cache)
}

// Options maps the config switches onto the emitter options.
func (b *Builder) Options() cppgen.Options {
	return cppgen.Options{
		VerboseErrors:        b.config.Options.VerboseErrors,
		ReturnValueHeuristic: b.config.Options.ReturnValueHeuristic,
	}
}

// Build performs the full build pipeline:
// 1. Load the API and apply the rules
// 2. Open the dispatch cache
// 3. Generate every file
// 4. Write the output directory and drop stale files
// 5. Prune cache rows this run did not use
func (b *Builder) Build(ctx context.Context) (*BuildResult, error) {
	// Step 1: Inspect
	inspected, err := NewInspector(b.config, b.configPath).Inspect()
	if err != nil {
		return nil, err
	}
	return b.BuildAPI(ctx, inspected.API)
}

// BuildAPI runs the pipeline on an API the rules were already applied to.
func (b *Builder) BuildAPI(ctx context.Context, api *model.API) (*BuildResult, error) {
	log := b.log.With("module", api.Module)
	log.Info("api loaded", "classes", len(api.Classes), "functions", len(api.Functions))

	// Step 2: Cache
	var cache *Cache
	if b.config.CacheEnabled() && !b.noCache && !b.dryRun {
		path := b.CachePath()
		c, err := OpenCache(ctx, path)
		if err != nil {
			return nil, err
		}
		defer c.Close()
		cache = c
		log.Debug("cache opened", "path", path, "run", c.RunID())
	}

	// Step 3: Generate
	jobs := b.config.Options.Jobs
	if b.jobs > 0 {
		jobs = b.jobs
	}
	opts := []GenerateOption{WithJobs(jobs), WithGenerateLogger(log)}
	if cache != nil {
		opts = append(opts, WithDispatchCache(cache))
	}
	generated, err := NewCodeGenerator(api, b.Options(), opts...).Generate(ctx)
	if err != nil {
		return nil, fmt.Errorf("generating code: %w", err)
	}

	result := &BuildResult{
		OutputDir:  b.OutputDir(),
		Files:      generated.Files,
		Dispatches: generated.Dispatches,
		Warnings:   generated.Warnings,
		CacheHits:  generated.CacheHits,
	}
	for _, w := range result.Warnings {
		log.Warn(w)
	}
	if b.dryRun {
		return result, nil
	}

	// Step 4: Write generated files
	if err := os.MkdirAll(result.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output dir: %w", err)
	}
	keep := make(map[string]bool, len(result.Files))
	for _, f := range result.Files {
		keep[f.Filename] = true
		path := filepath.Join(result.OutputDir, f.Filename)
		if err := os.WriteFile(path, []byte(f.Content), 0o644); err != nil {
			return nil, fmt.Errorf("writing %s: %w", f.Filename, err)
		}
		log.Debug("wrote file", "file", f.Filename)
	}
	removed, err := removeStale(result.OutputDir, api.Module, keep)
	if err != nil {
		return nil, err
	}
	result.Removed = removed

	// Step 5: Prune the cache
	if cache != nil {
		n, err := cache.Prune(ctx)
		if err != nil {
			return nil, err
		}
		result.CachePruned = n
		result.RunID = cache.RunID()
	}

	log.Info("bindings generated",
		"files", len(result.Files),
		"groups", len(result.Dispatches),
		"cache_hits", result.CacheHits,
		"warnings", len(result.Warnings))
	return result, nil
}

// removeStale deletes generated files of module that the current run did not
// produce, such as the file of a class removed from the API.
func removeStale(dir, module string, keep map[string]bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading output dir: %w", err)
	}
	prefix := strings.ToLower(module) + "_"
	var removed []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || keep[name] || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, "_wrapper.cpp") {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			return nil, fmt.Errorf("removing stale %s: %w", name, err)
		}
		removed = append(removed, name)
	}
	return removed, nil
}
