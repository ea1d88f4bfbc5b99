package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/funvibe/bindgen/internal/config"
)

const gridAPI = `
module: geo
includes: [geo.h]
classes:
  - name: Grid
    functions:
      - "Grid(int rows, int cols)"
      - "void fill(double v)"
      - "void fill(int v)"
      - "void resize(int rows, int cols)"
functions:
  - "int dot(int a, int b)"
`

const gridConfig = `
api: api.yaml
rules:
  - class: Grid
    function: resize
    args:
      - slot: "2"
        remove: true
`

// writeProject creates bindgen.yaml and api.yaml in a temp dir and returns
// the directory.
func writeProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		config.ConfigFileName: gridConfig,
		config.APIFileName:    gridAPI,
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := Execute(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestExecute_Usage(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    int
		wantErr string
	}{
		{"no command", nil, ExitUsage, "Usage: bindgen"},
		{"unknown command", []string{"compile"}, ExitUsage, "Unknown command: compile"},
		{"unknown flag", []string{"generate", "--bogus"}, ExitUsage, "flag provided but not defined"},
		{"generate arguments", []string{"generate", "extra"}, ExitUsage, `generate takes no arguments, got "extra"`},
		{"negative jobs", []string{"generate", "--jobs", "-1"}, ExitUsage, "--jobs must not be negative"},
		{"bad log level", []string{"generate", "--log-level", "loud"}, ExitUsage, `unknown log level "loud"`},
		{"bad log format", []string{"tree", "--log-format", "xml", "Grid"}, ExitUsage, `unknown log format "xml"`},
		{"tree without groups", []string{"tree"}, ExitUsage, "tree needs at least one group"},
		{"cache without subcommand", []string{"cache"}, ExitUsage, "cache needs a subcommand"},
		{"help flag", []string{"generate", "-h"}, ExitOK, "Usage: bindgen generate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := run(t, tt.args...)
			if code != tt.want {
				t.Errorf("exit code = %d, want %d", code, tt.want)
			}
			if !strings.Contains(stderr, tt.wantErr) {
				t.Errorf("stderr = %q, want it to contain %q", stderr, tt.wantErr)
			}
		})
	}
}

func TestExecute_Version(t *testing.T) {
	code, stdout, _ := run(t, "version")
	if code != ExitOK || stdout != "bindgen "+config.Version+"\n" {
		t.Errorf("version = %d, %q", code, stdout)
	}
	code, stdout, _ = run(t, "help")
	if code != ExitOK || !strings.Contains(stdout, "signatures") {
		t.Errorf("help = %d, %q", code, stdout)
	}
}

func TestExecute_Generate(t *testing.T) {
	dir := writeProject(t)
	cfg := filepath.Join(dir, config.ConfigFileName)

	code, stdout, stderr := run(t, "generate", "--config", cfg, "--log-format", "text")
	if code != ExitOK {
		t.Fatalf("exit code = %d, stderr:\n%s", code, stderr)
	}
	for _, want := range []string{
		"  geo_grid_wrapper.cpp",
		"  geo_module_wrapper.cpp",
		"Generated 2 files in " + filepath.Join(dir, "generated"),
		"(4 groups, 0 cached, 1 warnings)",
	} {
		if !strings.Contains(stdout, want) {
			t.Errorf("stdout missing %q:\n%s", want, stdout)
		}
	}
	if !strings.Contains(stderr, "level=WARN") || !strings.Contains(stderr, "resize") {
		t.Errorf("warning not logged:\n%s", stderr)
	}
	if _, err := os.Stat(filepath.Join(dir, "generated", "geo_grid_wrapper.cpp")); err != nil {
		t.Errorf("grid file not written: %v", err)
	}

	// the second run is served from the cache
	code, stdout, _ = run(t, "generate", "--config", cfg, "--log-level", "error")
	if code != ExitOK || !strings.Contains(stdout, "(4 groups, 4 cached, 1 warnings)") {
		t.Errorf("second run = %d:\n%s", code, stdout)
	}

	code, stdout, _ = run(t, "cache", "stats", "--config", cfg)
	if code != ExitOK || !strings.Contains(stdout, ": 4 entries") {
		t.Errorf("cache stats = %d, %q", code, stdout)
	}
	code, stdout, _ = run(t, "cache", "clean", "--config", cfg)
	if code != ExitOK || !strings.HasPrefix(stdout, "cleaned ") {
		t.Errorf("cache clean = %d, %q", code, stdout)
	}
	_, stdout, _ = run(t, "cache", "stats", "--config", cfg)
	if !strings.Contains(stdout, ": 0 entries") {
		t.Errorf("cache stats after clean = %q", stdout)
	}

	code, _, stderr = run(t, "generate", "--config", cfg, "--no-cache", "--strict", "--log-level", "error")
	if code != ExitFailure || !strings.Contains(stderr, "1 warning(s) with --strict") {
		t.Errorf("strict run = %d, stderr:\n%s", code, stderr)
	}
}

func TestExecute_GenerateDryRun(t *testing.T) {
	dir := writeProject(t)
	out := filepath.Join(dir, "dry")
	code, stdout, stderr := run(t, "generate", "--config", filepath.Join(dir, config.ConfigFileName),
		"--output", out, "--dry-run", "--log-level", "error")
	if code != ExitOK {
		t.Fatalf("exit code = %d, stderr:\n%s", code, stderr)
	}
	if !strings.Contains(stdout, filepath.Join(out, "geo_module_wrapper.cpp")+" (") {
		t.Errorf("dry run listing:\n%s", stdout)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Error("dry run created the output directory")
	}
	code, stdout, _ = run(t, "cache", "stats", "--config", filepath.Join(dir, config.ConfigFileName))
	if code != ExitOK || !strings.HasPrefix(stdout, "no cache at ") {
		t.Errorf("cache stats after dry run = %d, %q", code, stdout)
	}
}

func TestExecute_GenerateMissingConfig(t *testing.T) {
	code, _, stderr := run(t, "generate", "--config", filepath.Join(t.TempDir(), "bindgen.yaml"))
	if code != ExitFailure || !strings.Contains(stderr, "reading config") {
		t.Errorf("exit code = %d, stderr:\n%s", code, stderr)
	}
}

func TestExecute_Tree(t *testing.T) {
	dir := writeProject(t)
	code, stdout, stderr := run(t, "tree", "--api", filepath.Join(dir, config.APIFileName), "Grid.fill", "Grid")
	if code != ExitOK {
		t.Fatalf("exit code = %d, stderr:\n%s", code, stderr)
	}

	dec := yaml.NewDecoder(strings.NewReader(stdout))
	var groups []string
	for {
		var doc struct {
			Group     string   `yaml:"group"`
			Kind      string   `yaml:"kind"`
			Overloads []string `yaml:"overloads"`
		}
		if err := dec.Decode(&doc); err != nil {
			break
		}
		groups = append(groups, doc.Group+" "+doc.Kind)
		if doc.Group == "Grid.fill" && len(doc.Overloads) != 2 {
			t.Errorf("Grid.fill overloads = %v", doc.Overloads)
		}
	}
	if want := []string{"Grid.fill method", "Grid constructor"}; strings.Join(groups, ",") != strings.Join(want, ",") {
		t.Errorf("tree documents = %v, want %v", groups, want)
	}

	code, _, stderr = run(t, "tree", "--api", filepath.Join(dir, config.APIFileName), "Nope.fill")
	if code != ExitFailure || !strings.Contains(stderr, `unknown class "Nope"`) {
		t.Errorf("unknown class = %d, stderr:\n%s", code, stderr)
	}
	code, _, stderr = run(t, "tree", "--api", filepath.Join(dir, config.APIFileName), "spin")
	if code != ExitFailure || !strings.Contains(stderr, "empty overload group") {
		t.Errorf("unknown function = %d, stderr:\n%s", code, stderr)
	}
}

func TestExecute_Signatures(t *testing.T) {
	dir := writeProject(t)
	t.Chdir(dir)

	// bindgen.yaml is found in the working directory
	code, stdout, stderr := run(t, "signatures", "--log-level", "error", "Grid.fill")
	if code != ExitOK {
		t.Fatalf("exit code = %d, stderr:\n%s", code, stderr)
	}
	if want := "geo.Grid.fill(double)\ngeo.Grid.fill(int)\n"; stdout != want {
		t.Errorf("signatures = %q, want %q", stdout, want)
	}

	_, stdout, _ = run(t, "signatures", "--log-level", "error", "--native", "Grid.fill", "dot")
	if want := "Grid::fill(double)\nGrid::fill(int)\ndot(int,int)\n"; stdout != want {
		t.Errorf("native signatures = %q, want %q", stdout, want)
	}

	_, stdout, _ = run(t, "signatures", "--log-level", "error")
	for _, want := range []string{"geo.dot(int, int)", "geo.Grid(int, int)", "geo.Grid.fill(int)"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("listing missing %q:\n%s", want, stdout)
		}
	}
}
