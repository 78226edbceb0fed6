package migrate

import (
	"bufio"
	"bytes"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strings"
)

var fileNameRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

// ValidateFS checks the SQL files at the root of fsys: timestamped unique
// names, one Up and one Down section, and balanced statement blocks.
func ValidateFS(fsys fs.FS) error {
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(names)

	versions := make(map[string]string, len(names))
	for _, name := range names {
		m := fileNameRe.FindStringSubmatch(name)
		if m == nil {
			return fmt.Errorf("%s: name must be YYYYMMDDHHMMSS_snake_case.sql", name)
		}
		if prev, dup := versions[m[1]]; dup {
			return fmt.Errorf("%s: version %s already used by %s", name, m[1], prev)
		}
		versions[m[1]] = name

		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if err := checkAnnotations(body); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func checkAnnotations(body []byte) error {
	var ups, downs, open int
	scanner := bufio.NewScanner(bytes.NewReader(body))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, "-- +goose Up"):
			ups++
		case strings.HasPrefix(line, "-- +goose Down"):
			if open != 0 {
				return fmt.Errorf("StatementBegin left open before Down")
			}
			downs++
		case strings.HasPrefix(line, "-- +goose StatementBegin"):
			open++
		case strings.HasPrefix(line, "-- +goose StatementEnd"):
			open--
			if open < 0 {
				return fmt.Errorf("StatementEnd without StatementBegin")
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	switch {
	case ups != 1:
		return fmt.Errorf("expected one \"-- +goose Up\", found %d", ups)
	case downs != 1:
		return fmt.Errorf("expected one \"-- +goose Down\", found %d", downs)
	case open != 0:
		return fmt.Errorf("unterminated StatementBegin")
	}
	return nil
}
