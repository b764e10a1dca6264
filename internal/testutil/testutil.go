// Package testutil provides testing utilities for devd-watcher tests.
package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// WriteHelper installs an executable shell helper at
// <helpersDir>/<platform>/<action> with the given script body. The body is
// prefixed with a "#!/bin/sh" line. Returns the full helper path.
func WriteHelper(t *testing.T, helpersDir, platform, action, body string) string {
	t.Helper()

	dir := filepath.Join(helpersDir, platform)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("failed to create helper dir %s: %v", dir, err)
	}
	path := filepath.Join(dir, action)
	script := "#!/bin/sh\n" + body
	if !strings.HasSuffix(script, "\n") {
		script += "\n"
	}
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatalf("failed to write helper %s: %v", path, err)
	}
	return path
}

// WriteFile writes content to dir/name and returns the full path.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create directory for %s: %v", name, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write file %s: %v", path, err)
	}
	return path
}

// ReadLines returns the non-empty lines of path, or nil if it does not exist.
func ReadLines(t *testing.T, path string) []string {
	t.Helper()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	var lines []string
	for _, l := range strings.Split(string(data), "\n") {
		if l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

// WaitFor polls cond every 10ms until it returns true or timeout elapses.
// Returns the final result of cond.
func WaitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}
