package source

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mergar/devd-watcher/internal/errors"
)

// Script replays "<action> <name>" lines. Blank lines and lines
// starting with # are skipped.
type Script struct {
	scanner *bufio.Scanner
	closer  io.Closer
}

func openScript(opts Options) (Source, error) {
	if opts.Script == "" || opts.Script == "-" {
		r := opts.Stdin
		if r == nil {
			r = os.Stdin
		}
		return NewScript(r), nil
	}
	f, err := os.Open(opts.Script)
	if err != nil {
		return nil, err
	}
	s := NewScript(f)
	s.closer = f
	return s, nil
}

// NewScript reads events from r.
func NewScript(r io.Reader) *Script {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), 64<<10)
	return &Script{scanner: sc}
}

func (s *Script) Next(ctx context.Context) (Event, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Event{}, err
		}
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return Event{}, fmt.Errorf("%w: %w", errors.ErrSourceRead, err)
			}
			return Event{}, io.EOF
		}
		if ev, ok := ParseScriptLine(s.scanner.Text()); ok {
			return ev, nil
		}
	}
}

func (s *Script) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// ParseScriptLine decodes "<action> [name]". An unrecognized action yields
// an Unknown event; a missing name yields an empty one. ok is false for
// blank and comment lines.
func ParseScriptLine(line string) (Event, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return Event{}, false
	}
	fields := strings.Fields(line)
	var name string
	if len(fields) > 1 {
		name = fields[1]
	}
	return NewEvent(KindFromAction(fields[0]), name), true
}
