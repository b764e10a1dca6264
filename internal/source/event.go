package source

import "fmt"

// DevNameMax is the platform device name buffer size, terminator included.
// Names are at most DevNameMax-1 bytes.
const DevNameMax = 255 + 1

// Kind classifies a device notification.
type Kind int

const (
	Unknown Kind = iota
	Attach
	Detach
	Change
)

// String returns the helper action name for the kind.
func (k Kind) String() string {
	switch k {
	case Attach:
		return "attach"
	case Detach:
		return "detach"
	case Change:
		return "change"
	default:
		return "unknown"
	}
}

// Event is one device notification. An empty Name means the notification
// carried no usable device and should be ignored.
type Event struct {
	Name string
	Kind Kind
}

func (e Event) String() string {
	return fmt.Sprintf("%s %s", e.Kind, e.Name)
}

// NewEvent builds an Event, truncating name to the platform limit.
func NewEvent(kind Kind, name string) Event {
	return Event{Name: TruncateName(name), Kind: kind}
}

// TruncateName cuts name to at most DevNameMax-1 bytes.
func TruncateName(name string) string {
	if len(name) > DevNameMax-1 {
		return name[:DevNameMax-1]
	}
	return name
}

// KindFromAction maps action words used by uevents and event scripts.
func KindFromAction(action string) Kind {
	switch action {
	case "attach", "add":
		return Attach
	case "detach", "remove":
		return Detach
	case "change":
		return Change
	default:
		return Unknown
	}
}
