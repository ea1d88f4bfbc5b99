// Package ext turns a native API description and the bindgen.yaml rule file
// into C++ binding sources for the host runtime.
//
// The ext package handles:
//   - Parsing and validating bindgen.yaml
//   - Applying modification rules to the loaded API model
//   - Generating one C++ source file per class plus a module file
//   - Caching rendered dispatch functions between runs
package ext

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/funvibe/bindgen/internal/config"
	"github.com/funvibe/bindgen/internal/model"
)

// Config represents the top-level bindgen.yaml configuration.
type Config struct {
	// API is the path of the API description, relative to bindgen.yaml.
	API string `yaml:"api"`

	// Output is the directory generated sources are written to, relative to
	// bindgen.yaml. Defaults to "generated".
	Output string `yaml:"output,omitempty"`

	Options Options `yaml:"options,omitempty"`

	// Rules modify functions of the API before generation.
	Rules []Rule `yaml:"rules,omitempty"`
}

// Options are the generator switches.
type Options struct {
	// VerboseErrors lists every overload signature in argument errors.
	VerboseErrors bool `yaml:"verbose_errors,omitempty"`

	// ReturnValueHeuristic parents returned object pointers to their receiver.
	ReturnValueHeuristic bool `yaml:"return_value_heuristic,omitempty"`

	// Jobs bounds the number of class files generated in parallel.
	// Defaults to the number of CPUs.
	Jobs int `yaml:"jobs,omitempty"`

	// Cache is the dispatch cache database, relative to bindgen.yaml.
	// Defaults to .bindgen/dispatch.db; "off" disables caching.
	Cache string `yaml:"cache,omitempty"`
}

// CacheDisabled is the Options.Cache value that turns the cache off.
const CacheDisabled = "off"

// Rule modifies every function named Function on Class (module scope when
// Class is empty). Function is either a bare name or a minimal signature
// such as "move(int,int)".
type Rule struct {
	Class    string `yaml:"class,omitempty"`
	Function string `yaml:"function"`

	Remove      bool   `yaml:"remove,omitempty"`
	Rename      string `yaml:"rename,omitempty"`
	AllowThread bool   `yaml:"allow_thread,omitempty"`

	// Inject adds user code at a position of the dispatch case.
	Inject []Injection `yaml:"inject,omitempty"`

	Args []ArgRule `yaml:"args,omitempty"`
}

// Injection is one code snip.
type Injection struct {
	// Position is "beginning", "end" or "call".
	Position string `yaml:"position"`
	Code     string `yaml:"code"`
}

// ArgRule modifies one slot of a function.
type ArgRule struct {
	// Slot is "this", "return" or a 1-based argument number.
	Slot string `yaml:"slot"`

	Remove        bool   `yaml:"remove,omitempty"`
	Default       string `yaml:"default,omitempty"`
	RemoveDefault bool   `yaml:"remove_default,omitempty"`

	// Type replaces the host-side type of the slot.
	Type string `yaml:"type,omitempty"`

	// Conversion is custom conversion code using %in, %out and %type.
	Conversion string `yaml:"conversion,omitempty"`

	// Ownership is "host", "native", "invalidate" or "parent".
	Ownership string `yaml:"ownership,omitempty"`
	// Owner is the parent slot for parent ownership. Defaults to "this".
	Owner string `yaml:"owner,omitempty"`

	// ReferenceCount is "add", "set" or "remove".
	ReferenceCount string `yaml:"reference_count,omitempty"`
	ReferenceKey   string `yaml:"reference_key,omitempty"`
}

var hostNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// LoadConfig reads and parses a bindgen.yaml file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return ParseConfig(data, path)
}

// ParseConfig parses bindgen.yaml content from bytes.
// The path argument is used only for error messages.
func ParseConfig(data []byte, path string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.validate(path); err != nil {
		return nil, err
	}
	cfg.setDefaults()
	return &cfg, nil
}

// FindConfig searches for bindgen.yaml starting from dir and walking up
// to parent directories. It returns "" and a nil error when no config
// exists up to the filesystem root.
func FindConfig(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving directory: %w", err)
	}

	for {
		for _, name := range []string{config.ConfigFileName, config.ConfigFileNameAlt} {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

// validate checks the configuration for semantic errors.
func (c *Config) validate(path string) error {
	if c.API == "" {
		return fmt.Errorf("%s: api is required", path)
	}
	if c.Options.Jobs < 0 {
		return fmt.Errorf("%s: options.jobs must not be negative", path)
	}

	for i, r := range c.Rules {
		if r.Function == "" {
			return fmt.Errorf("%s: rules[%d]: function is required", path, i)
		}
		target := r.Target()
		if r.Remove && (r.Rename != "" || r.AllowThread || len(r.Inject) > 0 || len(r.Args) > 0) {
			return fmt.Errorf("%s: rules[%d] (%s): remove cannot be combined with other modifications", path, i, target)
		}
		if r.Rename != "" && !hostNameRe.MatchString(r.Rename) {
			return fmt.Errorf("%s: rules[%d] (%s): rename %q is not a valid identifier", path, i, target, r.Rename)
		}
		for j, inj := range r.Inject {
			switch model.SnipPosition(inj.Position) {
			case model.SnipBeginning, model.SnipEnd, model.SnipCall:
			default:
				return fmt.Errorf("%s: rules[%d].inject[%d] (%s): unknown position %q", path, i, j, target, inj.Position)
			}
			if strings.TrimSpace(inj.Code) == "" {
				return fmt.Errorf("%s: rules[%d].inject[%d] (%s): code is required", path, i, j, target)
			}
		}

		seenSlots := make(map[int]bool)
		for j, a := range r.Args {
			if err := a.validate(); err != nil {
				return fmt.Errorf("%s: rules[%d].args[%d] (%s): %w", path, i, j, target, err)
			}
			slot, _ := ParseSlot(a.Slot)
			if seenSlots[slot] {
				return fmt.Errorf("%s: rules[%d].args[%d] (%s): slot %s is modified twice", path, i, j, target, a.Slot)
			}
			seenSlots[slot] = true
		}
	}

	return nil
}

func (a *ArgRule) validate() error {
	if a.Slot == "" {
		return fmt.Errorf("slot is required")
	}
	slot, err := ParseSlot(a.Slot)
	if err != nil {
		return err
	}
	if a.Remove && slot <= model.SlotReturn {
		return fmt.Errorf("only arguments can be removed, not %s", a.Slot)
	}
	if (a.Default != "" || a.RemoveDefault) && slot <= model.SlotReturn {
		return fmt.Errorf("%s has no default value", a.Slot)
	}
	if a.Default != "" && a.RemoveDefault {
		return fmt.Errorf("default and remove_default are mutually exclusive")
	}

	switch model.Ownership(a.Ownership) {
	case model.OwnershipNone, model.OwnershipHost, model.OwnershipNative, model.OwnershipInvalidate, model.OwnershipParent:
	default:
		return fmt.Errorf("unknown ownership %q", a.Ownership)
	}
	switch model.RefCountAction(a.ReferenceCount) {
	case model.RefCountNone, model.RefCountAdd, model.RefCountSet, model.RefCountRemove:
	default:
		return fmt.Errorf("unknown reference_count %q", a.ReferenceCount)
	}
	if a.Ownership != "" && a.ReferenceCount != "" {
		return fmt.Errorf("ownership and reference_count are mutually exclusive")
	}
	if a.ReferenceKey != "" && a.ReferenceCount == "" {
		return fmt.Errorf("reference_key requires reference_count")
	}
	if a.Owner != "" {
		if model.Ownership(a.Ownership) != model.OwnershipParent {
			return fmt.Errorf("owner is only valid with parent ownership")
		}
		owner, err := ParseSlot(a.Owner)
		if err != nil {
			return fmt.Errorf("owner: %w", err)
		}
		if owner == slot {
			return fmt.Errorf("slot %s cannot own itself", a.Slot)
		}
	}
	return nil
}

// setDefaults fills in default values for omitted fields.
func (c *Config) setDefaults() {
	if c.Output == "" {
		c.Output = "generated"
	}
	if c.Options.Jobs == 0 {
		c.Options.Jobs = runtime.NumCPU()
	}
	if c.Options.Cache == "" {
		c.Options.Cache = filepath.Join(config.CacheDirName, config.CacheFileName)
	}
}

// CacheEnabled reports whether generation uses the dispatch cache.
func (c *Config) CacheEnabled() bool {
	return c.Options.Cache != CacheDisabled
}

// Target renders "Class.function" or just the function at module scope.
func (r *Rule) Target() string {
	if r.Class == "" {
		return r.Function
	}
	return r.Class + "." + r.Function
}

// ParseSlot converts "this", "return" or a 1-based argument number into a
// modification slot index.
func ParseSlot(s string) (int, error) {
	switch s {
	case "this":
		return model.SlotThis, nil
	case "return":
		return model.SlotReturn, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid slot %q: want this, return or an argument number", s)
	}
	return n, nil
}

// resolvePath makes p relative to the directory holding the config.
func resolvePath(configDir, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(configDir, p)
}
