package migrate

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/multierr"
)

const (
	upMarker   = "-- +goose Up"
	downMarker = "-- +goose Down"
)

var (
	sqlFileRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)
	// dev auto-run may replay a migration against a hand-seeded schema, so
	// tables and indexes must be created idempotently
	createRe = regexp.MustCompile(`(?i)\bCREATE\s+(?:UNIQUE\s+)?(TABLE|INDEX)\s+(?:CONCURRENTLY\s+)?(IF\s+NOT\s+EXISTS\s+)?`)
)

// ValidateDir checks every migration in dir and reports all problems at once:
// filename shape, duplicate versions, the goose section markers and
// idempotent CREATE statements in the Up section.
func ValidateDir(dir string) error {
	files, err := listMigrations(dir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no migrations found in %q", dir)
	}

	var errs error
	seen := map[int64]string{}
	for _, f := range files {
		if prev, ok := seen[f.version]; ok {
			errs = multierr.Append(errs, fmt.Errorf("duplicate migration version %d in %q and %q", f.version, prev, f.name))
			continue
		}
		seen[f.version] = f.name

		b, err := os.ReadFile(filepath.Join(dir, f.name))
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("read file %q: %w", f.name, err))
			continue
		}
		errs = multierr.Append(errs, validateBody(f.name, string(b)))
	}
	return errs
}

func validateBody(name, txt string) error {
	up := strings.Index(txt, upMarker)
	down := strings.Index(txt, downMarker)
	switch {
	case up < 0:
		return fmt.Errorf("migration %q missing %q", name, upMarker)
	case down < 0:
		return fmt.Errorf("migration %q missing %q", name, downMarker)
	case down < up:
		return fmt.Errorf("migration %q has its Down section before Up", name)
	}

	var errs error
	for _, m := range createRe.FindAllStringSubmatch(txt[up:down], -1) {
		if m[2] == "" {
			errs = multierr.Append(errs, fmt.Errorf("migration %q: CREATE %s without IF NOT EXISTS", name, strings.ToUpper(m[1])))
		}
	}
	return errs
}

// LatestVersion returns the highest migration version in dir, or 0 when the
// directory holds none.
func LatestVersion(dir string) (int64, error) {
	files, err := listMigrations(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	if len(files) == 0 {
		return 0, nil
	}
	return files[len(files)-1].version, nil
}

type migrationFile struct {
	version int64
	name    string
}

// listMigrations returns the .sql files of dir ordered by version. A
// misnamed .sql file is an error; other files are ignored.
func listMigrations(dir string) ([]migrationFile, error) {
	if dir == "" {
		return nil, fmt.Errorf("dir is required")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %q: %w", dir, err)
	}

	var (
		files []migrationFile
		errs  error
	)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		m := sqlFileRe.FindStringSubmatch(e.Name())
		if m == nil {
			errs = multierr.Append(errs, fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", e.Name()))
			continue
		}
		version, _ := strconv.ParseInt(m[1], 10, 64)
		files = append(files, migrationFile{version: version, name: e.Name()})
	}
	if errs != nil {
		return nil, errs
	}
	sort.Slice(files, func(i, j int) bool { return files[i].version < files[j].version })
	return files, nil
}
