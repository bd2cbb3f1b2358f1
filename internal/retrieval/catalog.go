// Package retrieval implements the optional asset catalog: a SQLite index
// of previously generated meshes, consulted before the 3D generator is
// called. A catalog hit above the configured threshold reuses the stored
// mesh instead of spending a generation job.
package retrieval

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"sceneforge/internal/logging"
	"sceneforge/internal/types"
)

// Catalog is the SQLite-backed asset index. Safe for concurrent use.
type Catalog struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// Match is one catalog hit with its similarity score in [0, 1].
type Match struct {
	AssetPath string
	Format    types.AssetFormat
	SizeBytes int64
	Checksum  string
	Score     float64
}

// Open initializes the catalog database at the given path.
func Open(path string) (*Catalog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create catalog directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open asset catalog: %w", err)
	}

	c := &Catalog{db: db, dbPath: path}
	if err := c.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Catalog) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS assets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		category TEXT NOT NULL,
		name TEXT NOT NULL,
		asset_path TEXT NOT NULL,
		format TEXT NOT NULL,
		size_bytes INTEGER NOT NULL,
		checksum TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_assets_category ON assets(category);
	CREATE INDEX IF NOT EXISTS idx_assets_name ON assets(name);`
	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize asset catalog: %w", err)
	}
	return nil
}

// Record registers a generated asset for future reuse.
func (c *Catalog) Record(obj *types.Object, entry *types.AssetEntry, absPath string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.Exec(
		`INSERT INTO assets (category, name, asset_path, format, size_bytes, checksum)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		strings.ToLower(obj.Category), strings.ToLower(obj.Name),
		absPath, string(entry.Format), entry.SizeBytes, entry.Checksum,
	)
	if err != nil {
		return fmt.Errorf("failed to record asset for %s: %w", obj.ObjectID, err)
	}
	logging.Retrieval("Recorded asset %s (%s/%s)", absPath, obj.Category, obj.Name)
	return nil
}

// Lookup finds the best catalog match for an object. Scoring: 1.0 for an
// exact category+name match, 0.85 for category plus a name-token overlap,
// 0.6 for category alone. Returns nil when nothing scores above zero.
func (c *Catalog) Lookup(obj *types.Object) (*Match, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rows, err := c.db.Query(
		`SELECT name, asset_path, format, size_bytes, checksum
		 FROM assets WHERE category = ? ORDER BY created_at DESC LIMIT 50`,
		strings.ToLower(obj.Category),
	)
	if err != nil {
		return nil, fmt.Errorf("catalog lookup failed for %s: %w", obj.ObjectID, err)
	}
	defer rows.Close()

	want := strings.ToLower(obj.Name)
	wantTokens := strings.Fields(want)

	var best *Match
	for rows.Next() {
		var name, path, format, checksum string
		var size int64
		if err := rows.Scan(&name, &path, &format, &size, &checksum); err != nil {
			continue
		}

		score := 0.6
		if name == want {
			score = 1.0
		} else if tokenOverlap(wantTokens, strings.Fields(name)) {
			score = 0.85
		}

		if best == nil || score > best.Score {
			best = &Match{
				AssetPath: path,
				Format:    types.AssetFormat(format),
				SizeBytes: size,
				Checksum:  checksum,
				Score:     score,
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if best != nil {
		// A stale path invalidates the hit.
		if _, err := os.Stat(best.AssetPath); err != nil {
			logging.Retrieval("Catalog hit for %s points at missing file %s; ignoring", obj.ObjectID, best.AssetPath)
			return nil, nil
		}
	}
	return best, nil
}

func tokenOverlap(a, b []string) bool {
	set := make(map[string]bool, len(a))
	for _, t := range a {
		set[t] = true
	}
	for _, t := range b {
		if set[t] {
			return true
		}
	}
	return false
}

// Close releases the underlying database.
func (c *Catalog) Close() error { return c.db.Close() }
