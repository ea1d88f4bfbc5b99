package ext

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"

	"github.com/funvibe/bindgen/internal/config"
	"github.com/funvibe/bindgen/internal/cppgen"
	"github.com/funvibe/bindgen/internal/model"
	"github.com/funvibe/bindgen/internal/overload"
)

const cacheSchema = `
CREATE TABLE IF NOT EXISTS dispatch (
	fingerprint TEXT PRIMARY KEY,
	grp         TEXT NOT NULL,
	body        TEXT NOT NULL,
	run_id      TEXT NOT NULL,
	updated_at  INTEGER NOT NULL
)`

// Cache stores rendered dispatch functions in a sqlite database, keyed by
// a fingerprint of everything that shapes them. Every row touched by a run
// carries that run's id, so rows no run touched can be pruned.
type Cache struct {
	db    *sql.DB
	path  string
	runID string

	hits   atomic.Int64
	misses atomic.Int64
}

// CacheStats counts lookups since the cache was opened.
type CacheStats struct {
	Hits   int64
	Misses int64
	// Entries is the number of stored rows.
	Entries int64
}

// OpenCache opens or creates the cache database at path.
func OpenCache(ctx context.Context, path string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening cache %s: %w", path, err)
	}
	// sqlite serializes writers; one connection keeps parallel emitters
	// from tripping over SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, cacheSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing cache %s: %w", path, err)
	}
	return &Cache{db: db, path: path, runID: uuid.NewString()}, nil
}

// Path returns the database file.
func (c *Cache) Path() string {
	return c.path
}

// RunID identifies the current run in stored rows.
func (c *Cache) RunID() string {
	return c.runID
}

// Lookup returns the cached dispatch for fingerprint and marks the row as
// used by this run.
func (c *Cache) Lookup(ctx context.Context, fingerprint string) (*cppgen.Dispatch, bool, error) {
	var body string
	err := c.db.QueryRowContext(ctx, `SELECT body FROM dispatch WHERE fingerprint = ?`, fingerprint).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		c.misses.Add(1)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading cache: %w", err)
	}

	var d cppgen.Dispatch
	if err := yaml.Unmarshal([]byte(body), &d); err != nil {
		// a row written by another format is as good as missing
		c.misses.Add(1)
		return nil, false, nil
	}
	if _, err := c.db.ExecContext(ctx,
		`UPDATE dispatch SET run_id = ?, updated_at = ? WHERE fingerprint = ?`,
		c.runID, time.Now().Unix(), fingerprint); err != nil {
		return nil, false, fmt.Errorf("touching cache row: %w", err)
	}
	c.hits.Add(1)
	return &d, true, nil
}

// Store records the dispatch rendered for fingerprint.
func (c *Cache) Store(ctx context.Context, fingerprint string, d *cppgen.Dispatch) error {
	body, err := yaml.Marshal(d)
	if err != nil {
		return fmt.Errorf("encoding dispatch %s: %w", d.Group, err)
	}
	_, err = c.db.ExecContext(ctx, `
INSERT INTO dispatch (fingerprint, grp, body, run_id, updated_at) VALUES (?, ?, ?, ?, ?)
ON CONFLICT(fingerprint) DO UPDATE SET grp = excluded.grp, body = excluded.body,
	run_id = excluded.run_id, updated_at = excluded.updated_at`,
		fingerprint, d.Group, string(body), c.runID, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("writing cache: %w", err)
	}
	return nil
}

// Prune deletes every row the current run did not look up or store.
func (c *Cache) Prune(ctx context.Context) (int64, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM dispatch WHERE run_id != ?`, c.runID)
	if err != nil {
		return 0, fmt.Errorf("pruning cache: %w", err)
	}
	return res.RowsAffected()
}

// Stats reports lookups and stored rows.
func (c *Cache) Stats(ctx context.Context) (CacheStats, error) {
	s := CacheStats{Hits: c.hits.Load(), Misses: c.misses.Load()}
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dispatch`).Scan(&s.Entries); err != nil {
		return s, fmt.Errorf("counting cache rows: %w", err)
	}
	return s, nil
}

// Clean removes every row.
func (c *Cache) Clean(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM dispatch`); err != nil {
		return fmt.Errorf("cleaning cache: %w", err)
	}
	return nil
}

// Close closes the database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// fingerprintInput is everything the rendered dispatch of a group depends
// on. It is hashed as YAML.
type fingerprintInput struct {
	Version   string                  `yaml:"version"`
	Options   cppgen.Options          `yaml:"options"`
	Module    string                  `yaml:"module"`
	Group     string                  `yaml:"group"`
	Kind      string                  `yaml:"kind"`
	Overloads []fingerprintOverload   `yaml:"overloads"`
	Classes   map[string]classSummary `yaml:"classes,omitempty"`
}

type fingerprintOverload struct {
	Function *model.Function `yaml:"function"`
	Checks   []string        `yaml:"checks"`
	Stub     bool            `yaml:"stub,omitempty"`
}

type classSummary struct {
	Kind              model.ClassKind `yaml:"kind"`
	VirtualDestructor bool            `yaml:"virtual_destructor,omitempty"`
	ImplicitSources   int             `yaml:"implicit_sources,omitempty"`
	ConversionDepth   int             `yaml:"conversion_depth,omitempty"`
	InheritanceDepth  int             `yaml:"inheritance_depth,omitempty"`
}

// Fingerprint hashes a group together with the generator version, the
// options and the facts about referenced classes the emitters consult.
func Fingerprint(api *model.API, g *overload.Group, opts cppgen.Options) (string, error) {
	in := fingerprintInput{
		Version: config.Version,
		Options: opts,
		Module:  api.Module,
		Group:   g.FullName(),
		Kind:    g.Kind.String(),
		Classes: map[string]classSummary{},
	}
	summarize := func(t *model.Type) {
		if t == nil {
			return
		}
		if c := api.Class(t.Name); c != nil {
			in.Classes[c.Name] = classSummary{
				Kind:              c.Kind,
				VirtualDestructor: c.VirtualDestructor,
				ImplicitSources:   len(api.ImplicitSources(c.Name)),
				ConversionDepth:   api.ConversionDepth(c.Name),
				InheritanceDepth:  api.InheritanceDepth(c.Name),
			}
		}
	}
	if g.Class != nil {
		summarize(&model.Type{Name: g.Class.Name})
	}
	for _, o := range g.Overloads {
		fo := fingerprintOverload{Function: o.Func, Stub: o.Stub}
		for _, chk := range o.Checks {
			fo.Checks = append(fo.Checks, chk.Key())
		}
		in.Overloads = append(in.Overloads, fo)
		summarize(o.Func.Return)
		for _, a := range o.Func.Arguments {
			summarize(a.Type)
		}
	}

	data, err := yaml.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("fingerprinting %s: %w", g.FullName(), err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
