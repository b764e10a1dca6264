package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func newTestWriter(t *testing.T, maxBytes int64, backups int) (*RotatingWriter, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.log")
	rw, err := NewRotatingWriter(path, RotationConfig{MaxBackups: backups})
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	rw.maxBytes = maxBytes
	t.Cleanup(func() { _ = rw.Close() })
	return rw, path
}

func TestNewRotatingWriter(t *testing.T) {
	t.Run("creates nested directories", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "dir", "test.log")

		rw, err := NewRotatingWriter(path, DefaultRotationConfig())
		if err != nil {
			t.Fatalf("NewRotatingWriter failed: %v", err)
		}
		defer func() { _ = rw.Close() }()

		if _, err := os.Stat(path); os.IsNotExist(err) {
			t.Errorf("log file was not created at %s", path)
		}
		if rw.Path() != path {
			t.Errorf("Path() = %q, want %q", rw.Path(), path)
		}
	})

	t.Run("appends to existing file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "test.log")
		if err := os.WriteFile(path, []byte("initial\n"), 0644); err != nil {
			t.Fatal(err)
		}

		rw, err := NewRotatingWriter(path, DefaultRotationConfig())
		if err != nil {
			t.Fatalf("NewRotatingWriter failed: %v", err)
		}
		if rw.Size() != int64(len("initial\n")) {
			t.Errorf("Size() = %d, want %d", rw.Size(), len("initial\n"))
		}
		_, _ = rw.Write([]byte("more\n"))
		_ = rw.Close()

		content, _ := os.ReadFile(path)
		if string(content) != "initial\nmore\n" {
			t.Errorf("content = %q", content)
		}
	})
}

func TestRotatingWriterRotation(t *testing.T) {
	t.Run("rotates when size exceeds max", func(t *testing.T) {
		rw, path := newTestWriter(t, 100, 3)

		for range 5 {
			_, _ = rw.Write([]byte("this is a test message that will trigger rotation\n"))
		}
		_ = rw.Close()

		if _, err := os.Stat(path + ".1"); os.IsNotExist(err) {
			t.Error("backup file .1 was not created")
		}
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("current log file missing after rotation: %v", err)
		}
		if info.Size() > 100 {
			t.Errorf("current log file is %d bytes, want <= 100", info.Size())
		}
	})

	t.Run("keeps only maxBackups files", func(t *testing.T) {
		rw, path := newTestWriter(t, 50, 2)

		for i := range 10 {
			_, _ = fmt.Fprintf(rw, "message %d will trigger rotation\n", i)
		}
		_ = rw.Close()

		for _, suffix := range []string{".1", ".2"} {
			if _, err := os.Stat(path + suffix); os.IsNotExist(err) {
				t.Errorf("backup file %s should exist", suffix)
			}
		}
		if _, err := os.Stat(path + ".3"); err == nil {
			t.Error("backup file .3 should not exist")
		}

		// Newest backup holds the line written just before the last rotation.
		newest, _ := os.ReadFile(path + ".1")
		current, _ := os.ReadFile(path)
		if !strings.Contains(string(current), "message 9") || !strings.Contains(string(newest), "message 8") {
			t.Errorf("unexpected backup order: .1=%q current=%q", newest, current)
		}
	})

	t.Run("no backups truncates", func(t *testing.T) {
		rw, path := newTestWriter(t, 40, 0)

		for range 4 {
			_, _ = rw.Write([]byte("a line long enough to rotate\n"))
		}
		_ = rw.Close()

		if _, err := os.Stat(path + ".1"); err == nil {
			t.Error("backup file should not exist with MaxBackups=0")
		}
		content, _ := os.ReadFile(path)
		if len(content) > 40 {
			t.Errorf("log not truncated on rotation: %d bytes", len(content))
		}
	})

	t.Run("no rotation when disabled", func(t *testing.T) {
		rw, path := newTestWriter(t, 0, 3)

		for range 100 {
			_, _ = rw.Write([]byte("test message that would trigger rotation if enabled\n"))
		}
		_ = rw.Close()

		if _, err := os.Stat(path + ".1"); err == nil {
			t.Error("backup file should not exist when rotation is disabled")
		}
	})

	t.Run("oversized single write is kept", func(t *testing.T) {
		rw, path := newTestWriter(t, 10, 1)

		big := strings.Repeat("x", 64) + "\n"
		n, err := rw.Write([]byte(big))
		if err != nil || n != len(big) {
			t.Fatalf("Write() = %d, %v", n, err)
		}
		_ = rw.Close()

		content, _ := os.ReadFile(path)
		if string(content) != big {
			t.Error("oversized first write was not written to the current file")
		}
	})
}

func TestRotatingWriterConcurrency(t *testing.T) {
	rw, path := newTestWriter(t, 512, 50)

	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 50 {
				_, _ = fmt.Fprintf(rw, "goroutine %d line %d\n", g, i)
			}
		}()
	}
	wg.Wait()
	_ = rw.Close()

	total := 0
	matches, _ := filepath.Glob(path + "*")
	for _, m := range matches {
		data, err := os.ReadFile(m)
		if err != nil {
			t.Fatal(err)
		}
		total += strings.Count(string(data), "\n")
	}
	if total != 400 {
		t.Errorf("found %d lines across log files, want 400", total)
	}
}

func TestRotatingWriterClose(t *testing.T) {
	rw, _ := newTestWriter(t, 0, 1)

	if err := rw.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := rw.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if _, err := rw.Write([]byte("late\n")); err == nil {
		t.Error("Write() after Close() should fail")
	}
}

func TestDefaultRotationConfig(t *testing.T) {
	cfg := DefaultRotationConfig()
	if cfg.MaxSizeMB != 10 || cfg.MaxBackups != 3 {
		t.Errorf("DefaultRotationConfig() = %+v", cfg)
	}
}
