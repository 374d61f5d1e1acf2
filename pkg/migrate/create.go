package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const versionLayout = "20060102150405"

var (
	nameSanitizeRe = regexp.MustCompile(`[^a-z0-9_]+`)
	createTableRe  = regexp.MustCompile(`^create_([a-z0-9_]+?)_table$`)
)

// CreateSQLMigration writes <dir>/<version>_<name>.sql. The version is the
// current UTC timestamp, bumped past the newest existing migration so files
// created in the same second still apply in order. A name of the form
// create_<table>_table gets a table skeleton.
func CreateSQLMigration(dir string, name string) (string, error) {
	return createSQLMigration(dir, name, time.Now().UTC())
}

func createSQLMigration(dir, name string, now time.Time) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("dir is required")
	}
	if name == "" {
		return "", fmt.Errorf("name is required")
	}

	safe := strings.ToLower(strings.TrimSpace(name))
	safe = strings.ReplaceAll(safe, " ", "_")
	safe = nameSanitizeRe.ReplaceAllString(safe, "_")
	safe = strings.Trim(safe, "_")
	if safe == "" {
		return "", fmt.Errorf("name %q results in empty sanitized filename", name)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %q: %w", dir, err)
	}
	latest, err := LatestVersion(dir)
	if err != nil {
		return "", err
	}
	version, err := nextVersion(now, latest)
	if err != nil {
		return "", err
	}

	fullpath := filepath.Join(dir, fmt.Sprintf("%d_%s.sql", version, safe))
	if _, err := os.Stat(fullpath); err == nil {
		return "", fmt.Errorf("migration already exists: %s", fullpath)
	}
	if err := os.WriteFile(fullpath, []byte(migrationTemplate(safe)), 0o644); err != nil {
		return "", fmt.Errorf("write migration %q: %w", fullpath, err)
	}
	return fullpath, nil
}

// nextVersion returns now as a version, or one second past latest when the
// clock has not moved beyond it.
func nextVersion(now time.Time, latest int64) (int64, error) {
	version, _ := strconv.ParseInt(now.Format(versionLayout), 10, 64)
	if version > latest {
		return version, nil
	}
	prev, err := time.Parse(versionLayout, strconv.FormatInt(latest, 10))
	if err != nil {
		return 0, fmt.Errorf("latest version %d is not a timestamp: %w", latest, err)
	}
	version, _ = strconv.ParseInt(prev.Add(time.Second).Format(versionLayout), 10, 64)
	return version, nil
}

func migrationTemplate(safe string) string {
	up := "-- " + safe
	down := "-- rollback " + safe
	if m := createTableRe.FindStringSubmatch(safe); m != nil {
		up = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
    created_at timestamptz NOT NULL DEFAULT now(),
    updated_at timestamptz NOT NULL DEFAULT now()
);`, m[1])
		down = fmt.Sprintf("DROP TABLE IF EXISTS %s;", m[1])
	}
	return fmt.Sprintf(`-- +goose Up
-- +goose StatementBegin
%s
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
%s
-- +goose StatementEnd
`, up, down)
}
