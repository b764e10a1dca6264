package dispatch

import (
	"strings"

	"github.com/mergar/devd-watcher/internal/helper"
	"github.com/mergar/devd-watcher/internal/source"
)

// maxBasename is the longest lock basename; longer names are cut.
const maxBasename = source.DevNameMax - 1

// Task is one accepted event on its way to the helper. It is owned by the
// goroutine that runs it.
type Task struct {
	ID        uint64
	Device    string // device name as reported by the source
	DevNode   string // <DevDir>/<Device>
	Basename  string // lock key, last segment of DevNode
	Action    string
	Truncated bool // Basename was cut to maxBasename bytes
}

// actionFor maps an event kind to a helper action. ok is false for kinds
// that have no helper.
func actionFor(kind source.Kind) (string, bool) {
	switch kind {
	case source.Attach:
		return helper.ActionAttach, true
	case source.Detach:
		return helper.ActionDetach, true
	case source.Change:
		return helper.ActionChange, true
	default:
		return "", false
	}
}

// DevNode joins devDir and a device name.
func DevNode(devDir, name string) string {
	return strings.TrimRight(devDir, "/") + "/" + name
}

// Basename returns the lock key for devnode: its last path segment, cut to
// the platform name limit. truncated reports whether it was cut.
func Basename(devnode string) (base string, truncated bool) {
	base = devnode
	if i := strings.LastIndexByte(devnode, '/'); i >= 0 {
		base = devnode[i+1:]
	}
	if len(base) > maxBasename {
		return base[:maxBasename], true
	}
	return base, false
}

func newTask(id uint64, ev source.Event, devDir, action string) Task {
	node := DevNode(devDir, ev.Name)
	base, truncated := Basename(node)
	return Task{
		ID:        id,
		Device:    ev.Name,
		DevNode:   node,
		Basename:  base,
		Action:    action,
		Truncated: truncated,
	}
}
