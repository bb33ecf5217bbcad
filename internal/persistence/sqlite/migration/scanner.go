package migration

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var fileNamePattern = regexp.MustCompile(`^(\d+)_([a-zA-Z0-9_-]+)\.sql$`)

// Scan reads every *.sql file in dir of fsys and returns them ordered by
// numeric version.
func Scan(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, NewMigrationError("", dir, "read directory", err)
	}

	var migrations []Migration
	seen := make(map[int]string)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		m, err := parseFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		number, _ := strconv.Atoi(m.Version)
		if other, dup := seen[number]; dup {
			return nil, NewMigrationError(m.Version, m.FilePath, "check duplicates",
				fmt.Errorf("%w: also defined in %s", ErrDuplicateVersion, other))
		}
		seen[number] = m.FilePath
		migrations = append(migrations, m)
	}

	sort.Slice(migrations, func(i, j int) bool {
		vi, _ := strconv.Atoi(migrations[i].Version)
		vj, _ := strconv.Atoi(migrations[j].Version)
		return vi < vj
	})
	return migrations, nil
}

func parseFile(fsys fs.FS, filePath string) (Migration, error) {
	matches := fileNamePattern.FindStringSubmatch(path.Base(filePath))
	if matches == nil {
		return Migration{}, NewMigrationError("", filePath, "validate filename",
			fmt.Errorf("%w: want {version}_{description}.sql", ErrInvalidMigrationFile))
	}

	content, err := fs.ReadFile(fsys, filePath)
	if err != nil {
		return Migration{}, NewMigrationError(matches[1], filePath, "read file", err)
	}
	if strings.TrimSpace(string(content)) == "" {
		return Migration{}, NewMigrationError(matches[1], filePath, "read file",
			fmt.Errorf("%w: file is empty", ErrInvalidMigrationFile))
	}

	sum := sha256.Sum256(content)
	return Migration{
		Version:     matches[1],
		Description: strings.ReplaceAll(matches[2], "_", " "),
		SQL:         string(content),
		FilePath:    filePath,
		Checksum:    hex.EncodeToString(sum[:]),
	}, nil
}

// splitStatements splits a migration into statements, dropping comment-only
// lines. Statements must not contain literal semicolons.
func splitStatements(sql string) []string {
	var statements []string
	for _, raw := range strings.Split(sql, ";") {
		var lines []string
		for _, line := range strings.Split(raw, "\n") {
			line = strings.TrimSpace(line)
			if line != "" && !strings.HasPrefix(line, "--") {
				lines = append(lines, line)
			}
		}
		if len(lines) > 0 {
			statements = append(statements, strings.Join(lines, "\n"))
		}
	}
	return statements
}
