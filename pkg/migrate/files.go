package migrate

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

const versionLayout = "20060102150405"

var (
	fileNameRe   = regexp.MustCompile(`^(\d{14})_([a-z0-9_]+)\.sql$`)
	unsafeNameRe = regexp.MustCompile(`[^a-z0-9]+`)
)

const sqlTemplate = `-- +goose Up
-- +goose StatementBegin
-- %[1]s
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
-- rollback %[1]s
-- +goose StatementEnd
`

// CreateSQLMigration writes an empty goose migration named
// <dir>/<YYYYMMDDHHMMSS>_<name>.sql. The version is taken from now and must
// sort after every migration already in dir.
func CreateSQLMigration(dir, name string, now time.Time) (string, error) {
	if dir == "" {
		return "", errors.New("dir is required")
	}
	slug := migrationSlug(name)
	if slug == "" {
		return "", fmt.Errorf("migration name %q is empty after sanitizing", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %q: %w", dir, err)
	}

	version := now.UTC().Format(versionLayout)
	files, err := listMigrations(os.DirFS(dir), ".")
	if err != nil {
		return "", err
	}
	if n := len(files); n > 0 && files[n-1].version >= version {
		return "", fmt.Errorf("version %s does not sort after latest migration %s", version, files[n-1].name)
	}

	fullpath := filepath.Join(dir, fmt.Sprintf("%s_%s.sql", version, slug))
	f, err := os.OpenFile(fullpath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create migration %q: %w", fullpath, err)
	}
	if _, err := fmt.Fprintf(f, sqlTemplate, slug); err != nil {
		f.Close()
		return "", fmt.Errorf("write migration %q: %w", fullpath, err)
	}
	return fullpath, f.Close()
}

// ValidateDir checks every .sql file in dir for a well formed name, a unique
// version and both goose sections.
func ValidateDir(dir string) error {
	if dir == "" {
		return errors.New("dir is required")
	}
	return ValidateFS(os.DirFS(dir), ".")
}

// ValidateFS is ValidateDir over an fs.FS, used for the embedded migrations.
func ValidateFS(fsys fs.FS, dir string) error {
	files, err := listMigrations(fsys, dir)
	if err != nil {
		return err
	}
	for i, f := range files {
		if i > 0 && files[i-1].version == f.version {
			return fmt.Errorf("duplicate migration version %s in %q and %q", f.version, files[i-1].name, f.name)
		}
		body, err := fs.ReadFile(fsys, path.Join(dir, f.name))
		if err != nil {
			return fmt.Errorf("read %q: %w", f.name, err)
		}
		for _, marker := range []string{"-- +goose Up", "-- +goose Down"} {
			if !strings.Contains(string(body), marker) {
				return fmt.Errorf("migration %q missing %q", f.name, marker)
			}
		}
	}
	return nil
}

type migrationFile struct {
	version string
	name    string
}

// listMigrations returns the .sql files in dir ordered by version.
func listMigrations(fsys fs.FS, dir string) ([]migrationFile, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %q: %w", dir, err)
	}
	var files []migrationFile
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		m := fileNameRe.FindStringSubmatch(e.Name())
		if m == nil {
			return nil, fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", e.Name())
		}
		files = append(files, migrationFile{version: m[1], name: e.Name()})
	}
	sort.SliceStable(files, func(i, j int) bool { return files[i].version < files[j].version })
	return files, nil
}

func migrationSlug(name string) string {
	slug := unsafeNameRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "_")
	return strings.Trim(slug, "_")
}
