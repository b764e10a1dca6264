//go:build linux

package source

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/mergar/devd-watcher/internal/errors"
)

const (
	// ueventGroup is the kernel's uevent multicast group.
	ueventGroup = 0x1

	ueventBufSize = 16 << 10
	pollTimeoutMs = 250
)

type netlinkSource struct {
	mu     sync.Mutex
	fd     int
	buf    []byte
	closed bool
}

func openNetlink(opts Options) (Source, error) {
	typ := unix.SOCK_DGRAM
	if opts.Cloexec {
		typ |= unix.SOCK_CLOEXEC
	}
	if opts.NonBlock {
		typ |= unix.SOCK_NONBLOCK
	}

	fd, err := unix.Socket(unix.AF_NETLINK, typ, unix.NETLINK_KOBJECT_UEVENT)
	if err != nil {
		return nil, errors.Wrap(err, "socket")
	}
	addr := &unix.SockaddrNetlink{
		Family: unix.AF_NETLINK,
		Pid:    0,
		Groups: ueventGroup,
	}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "bind")
	}
	return &netlinkSource{fd: fd, buf: make([]byte, ueventBufSize)}, nil
}

// Next polls with a short timeout so that ctx is honoured on both blocking
// and non-blocking sockets.
func (s *netlinkSource) Next(ctx context.Context) (Event, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Event{}, err
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return Event{}, fmt.Errorf("%w: socket closed", errors.ErrSourceRead)
		}
		fd := s.fd
		s.mu.Unlock()

		fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
		n, err := unix.Poll(fds, pollTimeoutMs)
		if err == unix.EINTR || n == 0 {
			continue
		}
		if err != nil {
			return Event{}, fmt.Errorf("%w: poll: %w", errors.ErrSourceRead, err)
		}

		size, _, err := unix.Recvfrom(fd, s.buf, 0)
		switch {
		case err == unix.EINTR || err == unix.EAGAIN:
			continue
		case err != nil:
			return Event{}, fmt.Errorf("%w: recvfrom: %w", errors.ErrSourceRead, err)
		}

		ev, ok := ParseUevent(s.buf[:size])
		if !ok {
			continue
		}
		return ev, nil
	}
}

func (s *netlinkSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return unix.Close(s.fd)
}
