// Package migrations carries the store schema for each supported driver.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

//go:embed sql
var embedded embed.FS

// MigrationsDir, when set, is searched for <driver>/*.sql files before the
// embedded schema. Operators use it to ship extra migrations without a rebuild.
var MigrationsDir = ""

// Drivers the store supports.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

func dialect(driver string) (string, error) {
	switch driver {
	case DriverSQLite, "sqlite":
		return "sqlite", nil
	case DriverPostgres, "postgresql", "pgx":
		return "postgres", nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Migration is one schema file, applied in Name order.
type Migration struct {
	Name string
	SQL  string
}

// Load returns the migrations for driver.
func Load(driver string) ([]Migration, error) {
	d, err := dialect(driver)
	if err != nil {
		return nil, err
	}
	if MigrationsDir != "" {
		dir := filepath.Join(MigrationsDir, d)
		if _, statErr := os.Stat(dir); statErr == nil {
			return read(os.DirFS(dir), ".")
		}
	}
	return read(embedded, path.Join("sql", d))
}

func read(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list migrations: %w", err)
	}
	var out []Migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		data, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", e.Name(), err)
		}
		out = append(out, Migration{Name: e.Name(), SQL: string(data)})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no migrations found in %s", dir)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// GetInitialSchema returns the first migration for driver.
func GetInitialSchema(driver string) (string, error) {
	ms, err := Load(driver)
	if err != nil {
		return "", err
	}
	return ms[0].SQL, nil
}
