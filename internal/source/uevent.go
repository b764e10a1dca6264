package source

import (
	"bytes"
	"strings"
)

// libudevMagic prefixes messages rebroadcast by udevd rather than the kernel.
var libudevMagic = []byte("libudev\x00")

// ParseUevent decodes one kernel uevent datagram. The datagram is a
// "ACTION@DEVPATH" header followed by NUL-separated KEY=VALUE records.
// ok is false for messages that are not kernel uevents.
//
// Only add, remove and change are mapped; bind, unbind, move, online and
// offline become Unknown. The device name comes from DEVNAME and is empty
// for devices without a node.
func ParseUevent(msg []byte) (ev Event, ok bool) {
	if bytes.HasPrefix(msg, libudevMagic) {
		return Event{}, false
	}

	records := bytes.Split(msg, []byte{0})
	if len(records) == 0 || !bytes.Contains(records[0], []byte("@")) {
		return Event{}, false
	}

	var action, devname string
	for _, rec := range records[1:] {
		key, value, found := strings.Cut(string(rec), "=")
		if !found {
			continue
		}
		switch key {
		case "ACTION":
			action = value
		case "DEVNAME":
			devname = value
		}
	}
	if action == "" {
		action, _, _ = strings.Cut(string(records[0]), "@")
	}

	kind := Unknown
	switch action {
	case "add":
		kind = Attach
	case "remove":
		kind = Detach
	case "change":
		kind = Change
	}
	return NewEvent(kind, devname), true
}
