package config

import (
	"bufio"
	"io"
	"os"
	"strings"
)

const confCutset = " \t\r\n"

// ParseFile reads a KEY=VALUE config file. See Parse.
func ParseFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads KEY=VALUE lines from r.
//
// Blank lines, lines starting with # and lines without = are skipped. A line
// is split at the first =, and key and value are trimmed of spaces, tabs,
// CR and LF. A value that starts and ends with a double quote loses one pair
// of quotes; a lone quote becomes empty. Later duplicates win.
func Parse(r io.Reader) (map[string]string, error) {
	values := make(map[string]string)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 1024), 1<<20)
	for sc.Scan() {
		line := sc.Text()
		trimmed := strings.TrimLeft(line, confCutset)
		if trimmed == "" || trimmed[0] == '#' {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.Trim(key, confCutset)
		value = unquote(strings.Trim(value, confCutset))
		if key == "" {
			continue
		}
		values[key] = value
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return values, nil
}

func unquote(v string) string {
	if v == `"` {
		return ""
	}
	if len(v) >= 2 && v[0] == '"' && v[len(v)-1] == '"' {
		return v[1 : len(v)-1]
	}
	return v
}
