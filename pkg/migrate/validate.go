package migrate

import (
	"fmt"
	"io/fs"
	"regexp"
	"strings"
)

var fileNameRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

var requiredOrder = []string{"-- +goose Up", "-- +goose Down"}

// Validate checks every .sql file in fsys: name format, unique versions,
// Up before Down and balanced StatementBegin/End blocks.
func Validate(fsys fs.FS) error {
	files, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return err
	}
	versions := make(map[string]string, len(files))
	for _, name := range files {
		m := fileNameRe.FindStringSubmatch(name)
		if m == nil {
			return fmt.Errorf("%s: name must look like YYYYMMDDHHMMSS_snake_name.sql", name)
		}
		if other, dup := versions[m[1]]; dup {
			return fmt.Errorf("%s: duplicate version, also used by %s", name, other)
		}
		versions[m[1]] = name

		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			return err
		}
		if err := checkAnnotations(string(body)); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func checkAnnotations(body string) error {
	last := -1
	for _, marker := range requiredOrder {
		at := strings.Index(body, marker)
		switch {
		case at < 0:
			return fmt.Errorf("missing %q", marker)
		case at < last:
			return fmt.Errorf("%q out of order", marker)
		}
		last = at
	}
	open := strings.Count(body, "-- +goose StatementBegin")
	if closed := strings.Count(body, "-- +goose StatementEnd"); open != closed {
		return fmt.Errorf("%d StatementBegin vs %d StatementEnd", open, closed)
	}
	return nil
}
