// Package source reads device hot-plug notifications from the operating
// system and normalizes them into [Event] values.
package source

import (
	"context"
	"io"
	"runtime"

	"github.com/mergar/devd-watcher/internal/errors"
)

// Source kinds accepted by Open.
const (
	KindAuto    = "auto"
	KindNetlink = "netlink"
	KindDevd    = "devd"
	KindDevfs   = "devfs"
	KindScript  = "script"
)

// DefaultDevdSocket is where devd(8) publishes its seqpacket stream.
const DefaultDevdSocket = "/var/run/devd.seqpacket.pipe"

// Source yields device events one at a time.
//
// Next blocks until an event is available, ctx is done, or the source fails.
// Exhaustion is reported as io.EOF. Every other error is unrecoverable for
// the source.
type Source interface {
	Next(ctx context.Context) (Event, error)
	Close() error
}

// Options configures Open.
type Options struct {
	// DevDir is the directory watched by the devfs source.
	DevDir string
	// DevdSocket overrides DefaultDevdSocket.
	DevdSocket string
	// Script is the event script path for the script source; "-" or empty
	// reads Stdin.
	Script string
	// Stdin backs the script source when Script is "-" or empty.
	Stdin io.Reader
	// Cloexec and NonBlock set the matching flags on the netlink socket.
	Cloexec  bool
	NonBlock bool
}

// Resolve maps "auto" (or empty) to the native source for goos.
func Resolve(kind, goos string) string {
	if kind != "" && kind != KindAuto {
		return kind
	}
	switch goos {
	case "linux":
		return KindNetlink
	case "freebsd":
		return KindDevd
	default:
		return KindDevfs
	}
}

// Open creates the source named by kind.
func Open(kind string, opts Options) (Source, error) {
	kind = Resolve(kind, runtime.GOOS)

	var (
		src Source
		err error
	)
	switch kind {
	case KindNetlink:
		src, err = openNetlink(opts)
	case KindDevd:
		src, err = openDevd(opts)
	case KindDevfs:
		src, err = openDevfs(opts)
	case KindScript:
		src, err = openScript(opts)
	default:
		return nil, errors.NewSourceError("cannot open event source", errors.ErrUnknownSource).WithSource(kind)
	}
	if err != nil {
		return nil, errors.NewSourceError("cannot open event source", err).WithSource(kind)
	}
	return src, nil
}
