package database

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strconv"
	"strings"
)

// Migration is one versioned change to the feed schema.
type Migration struct {
	Version int
	Name    string
	Up      string
	Down    string
}

func (m Migration) String() string {
	return fmt.Sprintf("%06d_%s", m.Version, m.Name)
}

//go:embed migrations/*.sql
var migrationFS embed.FS

var feedMigrations = mustLoadMigrations(migrationFS, "migrations")

// Migrations returns the embedded feed migrations in version order.
func Migrations() []Migration {
	return slices.Clone(feedMigrations)
}

func migrationByVersion(version int) (Migration, bool) {
	i, found := slices.BinarySearchFunc(feedMigrations, version, func(m Migration, v int) int {
		return m.Version - v
	})
	if !found {
		return Migration{}, false
	}
	return feedMigrations[i], true
}

func mustLoadMigrations(fsys fs.FS, dir string) []Migration {
	set, err := loadMigrations(fsys, dir)
	if err != nil {
		panic(err)
	}
	return set
}

// loadMigrations pairs every NNNNNN_name.up.sql in dir with its .down.sql.
// A malformed file name, a missing rollback or a repeated version is an error.
func loadMigrations(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	var set []Migration
	seen := make(map[int]string)
	for _, entry := range entries {
		file := entry.Name()
		base, ok := strings.CutSuffix(file, ".up.sql")
		if entry.IsDir() || !ok {
			continue
		}

		rawVersion, name, ok := strings.Cut(base, "_")
		if !ok || name == "" {
			return nil, fmt.Errorf("migration %s: want NNNNNN_name.up.sql", file)
		}
		version, err := strconv.Atoi(rawVersion)
		if err != nil || version <= 0 {
			return nil, fmt.Errorf("migration %s: version must be a positive number", file)
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("migration %s: version %d already used by %s", file, version, prev)
		}
		seen[version] = file

		up, err := fs.ReadFile(fsys, path.Join(dir, file))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", file, err)
		}
		down, err := fs.ReadFile(fsys, path.Join(dir, base+".down.sql"))
		if err != nil {
			return nil, fmt.Errorf("migration %s has no rollback: %w", file, err)
		}

		set = append(set, Migration{Version: version, Name: name, Up: string(up), Down: string(down)})
	}

	slices.SortFunc(set, func(a, b Migration) int { return a.Version - b.Version })
	return set, nil
}
