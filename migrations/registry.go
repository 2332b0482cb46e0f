// Package migrations resolves the embedded delivery schema per SQL dialect and
// applies it through a go-persistence-bun client.
package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"slices"
	"strings"

	deliveries "github.com/goliatone/go-deliveries"
	persistence "github.com/goliatone/go-persistence-bun"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

const schemaRoot = "data/sql/migrations"

// Source is the migration set of one dialect. Postgres files live at the
// schema root, sqlite variants in its sqlite/ subdirectory.
type Source struct {
	Dialect string
	Path    string
	FS      fs.FS
	Up      []string
}

// Latest returns the name of the newest up migration without its suffix.
func (s Source) Latest() string {
	if len(s.Up) == 0 {
		return ""
	}
	return strings.TrimSuffix(s.Up[len(s.Up)-1], ".up.sql")
}

// Sources lists both dialects from root, or from the embedded schema when
// root is nil. Each dialect must ship an up/down pair per migration.
func Sources(root fs.FS) ([]Source, error) {
	if root == nil {
		root = deliveries.GetMigrationsFS()
	}
	base, err := fs.Sub(root, schemaRoot)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve %s: %w", schemaRoot, err)
	}

	sources := make([]Source, 0, 2)
	for _, dialect := range []string{DialectPostgres, DialectSQLite} {
		src := Source{Dialect: dialect, Path: schemaRoot, FS: base}
		if dialect == DialectSQLite {
			src.Path = schemaRoot + "/sqlite"
			if src.FS, err = fs.Sub(base, "sqlite"); err != nil {
				return nil, fmt.Errorf("migrations: resolve %s: %w", src.Path, err)
			}
		}
		if src.Up, err = upMigrations(src); err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, nil
}

// SourceFor returns the embedded migration set of dialect.
func SourceFor(dialect string) (Source, error) {
	dialect = strings.TrimSpace(strings.ToLower(dialect))
	sources, err := Sources(nil)
	if err != nil {
		return Source{}, err
	}
	for _, src := range sources {
		if src.Dialect == dialect {
			return src, nil
		}
	}
	return Source{}, fmt.Errorf("migrations: unsupported dialect %q", dialect)
}

// DialectForDriver maps a database/sql driver name to a migration dialect.
func DialectForDriver(driver string) (string, error) {
	switch strings.TrimSpace(strings.ToLower(driver)) {
	case "sqlite3", "sqlite":
		return DialectSQLite, nil
	case "postgres", "pgx", "pq":
		return DialectPostgres, nil
	default:
		return "", fmt.Errorf("migrations: unsupported driver %q", driver)
	}
}

// Apply registers the dialect's migrations on client and runs them.
func Apply(ctx context.Context, client *persistence.Client, dialect string) (Source, error) {
	if client == nil {
		return Source{}, fmt.Errorf("migrations: persistence client is required")
	}
	src, err := SourceFor(dialect)
	if err != nil {
		return Source{}, err
	}
	client.RegisterSQLMigrations(src.FS)
	if err := client.Migrate(ctx); err != nil {
		return src, fmt.Errorf("migrations: apply %s: %w", src.Dialect, err)
	}
	return src, nil
}

func upMigrations(src Source) ([]string, error) {
	up, err := fs.Glob(src.FS, "*.up.sql")
	if err != nil {
		return nil, fmt.Errorf("migrations: list %s: %w", src.Path, err)
	}
	if len(up) == 0 {
		return nil, fmt.Errorf("migrations: %s has no *.up.sql files", src.Path)
	}
	slices.Sort(up)
	for _, name := range up {
		down := strings.TrimSuffix(name, ".up.sql") + ".down.sql"
		if _, err := fs.Stat(src.FS, down); err != nil {
			return nil, fmt.Errorf("migrations: %s/%s has no down migration", src.Path, name)
		}
	}
	return up, nil
}
