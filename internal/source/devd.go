package source

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/mergar/devd-watcher/internal/errors"
)

const devdBufSize = 8 << 10

type devdSource struct {
	conn    net.Conn
	buf     []byte
	pending []Event
}

func openDevd(opts Options) (Source, error) {
	path := opts.DevdSocket
	if path == "" {
		path = DefaultDevdSocket
	}
	conn, err := net.Dial("unixpacket", path)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", path)
	}
	return &devdSource{conn: conn, buf: make([]byte, devdBufSize)}, nil
}

func (s *devdSource) Next(ctx context.Context) (Event, error) {
	stop := context.AfterFunc(ctx, func() {
		s.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for len(s.pending) == 0 {
		n, err := s.conn.Read(s.buf)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Event{}, ctxErr
			}
			return Event{}, fmt.Errorf("%w: %w", errors.ErrSourceRead, err)
		}
		for _, line := range strings.Split(string(s.buf[:n]), "\n") {
			if ev, ok := ParseDevdLine(line); ok {
				s.pending = append(s.pending, ev)
			}
		}
	}

	ev := s.pending[0]
	s.pending = s.pending[1:]
	return ev, nil
}

func (s *devdSource) Close() error {
	return s.conn.Close()
}

// ParseDevdLine decodes one devd(8) notification line.
//
//	!system=DEVFS subsystem=CDEV type=CREATE cdev=da0   -> Attach da0
//	!system=DEVFS subsystem=CDEV type=DESTROY cdev=da0  -> Detach da0
//	!system=DEVFS subsystem=CDEV type=MEDIACHANGE cdev=cd0 -> Change cd0
//	+umass0 at bus=0 ...                                -> Attach umass0
//	-umass0 at bus=0 ...                                -> Detach umass0
//
// Other notifications keep the cdev name, if any, with kind Unknown.
// ok is false only for blank lines.
func ParseDevdLine(line string) (Event, bool) {
	line = strings.TrimRight(line, "\r\n\x00")
	if line == "" {
		return Event{}, false
	}

	switch line[0] {
	case '+', '-':
		name, _, _ := strings.Cut(line[1:], " ")
		kind := Attach
		if line[0] == '-' {
			kind = Detach
		}
		return NewEvent(kind, name), true
	case '!':
		fields := devdFields(line[1:])
		ev := NewEvent(Unknown, fields["cdev"])
		if fields["system"] != "DEVFS" {
			return ev, true
		}
		switch fields["type"] {
		case "CREATE":
			if fields["subsystem"] == "CDEV" {
				ev.Kind = Attach
			}
		case "DESTROY":
			if fields["subsystem"] == "CDEV" {
				ev.Kind = Detach
			}
		case "MEDIACHANGE":
			ev.Kind = Change
		}
		return ev, true
	default:
		return Event{}, true
	}
}

// devdFields splits "k=v k=v ..." pairs. Values are unquoted words.
func devdFields(s string) map[string]string {
	out := make(map[string]string)
	for _, f := range strings.Fields(s) {
		if k, v, ok := strings.Cut(f, "="); ok {
			out[k] = v
		}
	}
	return out
}
