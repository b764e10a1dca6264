package source

import (
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mergar/devd-watcher/internal/errors"
)

func uevent(parts ...string) []byte {
	return []byte(strings.Join(parts, "\x00") + "\x00")
}

func TestParseUevent(t *testing.T) {
	tests := []struct {
		name   string
		msg    []byte
		want   Event
		wantOK bool
	}{
		{
			name:   "add block device",
			msg:    uevent("add@/devices/pci0000:00/block/sdb", "ACTION=add", "DEVPATH=/devices/pci0000:00/block/sdb", "SUBSYSTEM=block", "DEVNAME=sdb", "SEQNUM=42"),
			want:   Event{Name: "sdb", Kind: Attach},
			wantOK: true,
		},
		{
			name:   "remove",
			msg:    uevent("remove@/devices/virtual/block/md0", "ACTION=remove", "DEVNAME=md0"),
			want:   Event{Name: "md0", Kind: Detach},
			wantOK: true,
		},
		{
			name:   "change",
			msg:    uevent("change@/devices/x/sr0", "ACTION=change", "DEVNAME=sr0"),
			want:   Event{Name: "sr0", Kind: Change},
			wantOK: true,
		},
		{
			name:   "bind is unknown",
			msg:    uevent("bind@/devices/x", "ACTION=bind", "DEVNAME=x"),
			want:   Event{Name: "x", Kind: Unknown},
			wantOK: true,
		},
		{
			name:   "no devname",
			msg:    uevent("add@/devices/system/cpu/cpu1", "ACTION=add", "SUBSYSTEM=cpu"),
			want:   Event{Name: "", Kind: Attach},
			wantOK: true,
		},
		{
			name:   "nested devname",
			msg:    uevent("add@/devices/usb", "ACTION=add", "DEVNAME=bus/usb/001/004"),
			want:   Event{Name: "bus/usb/001/004", Kind: Attach},
			wantOK: true,
		},
		{
			name:   "action only in header",
			msg:    uevent("remove@/devices/x", "DEVNAME=sdc"),
			want:   Event{Name: "sdc", Kind: Detach},
			wantOK: true,
		},
		{
			name:   "libudev message",
			msg:    append([]byte("libudev\x00\xfe\xed\xca\xfe"), uevent("ACTION=add", "DEVNAME=sdb")...),
			wantOK: false,
		},
		{
			name:   "garbage",
			msg:    []byte("hello"),
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseUevent(tt.msg)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("ParseUevent() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseUevent_TruncatesLongName(t *testing.T) {
	long := strings.Repeat("a", 300)
	ev, ok := ParseUevent(uevent("add@/x", "ACTION=add", "DEVNAME="+long))
	if !ok {
		t.Fatal("ParseUevent() rejected message")
	}
	if len(ev.Name) != DevNameMax-1 {
		t.Errorf("len(Name) = %d, want %d", len(ev.Name), DevNameMax-1)
	}
}

func TestParseDevdLine(t *testing.T) {
	tests := []struct {
		line   string
		want   Event
		wantOK bool
	}{
		{"!system=DEVFS subsystem=CDEV type=CREATE cdev=da0", Event{"da0", Attach}, true},
		{"!system=DEVFS subsystem=CDEV type=DESTROY cdev=da0\n", Event{"da0", Detach}, true},
		{"!system=DEVFS subsystem=CDEV type=MEDIACHANGE cdev=cd0", Event{"cd0", Change}, true},
		{"!system=GEOM subsystem=disk type=GEOM::physpath devname=ada0", Event{"", Unknown}, true},
		{"!system=DEVFS subsystem=CDEV type=OTHER cdev=md1", Event{"md1", Unknown}, true},
		{"+umass0 at bus=0 hubaddr=1 on uhub0", Event{"umass0", Attach}, true},
		{"-umass0 at bus=0 hubaddr=1 on uhub0", Event{"umass0", Detach}, true},
		{"? at bus=0 on uhub0", Event{"", Unknown}, true},
		{"", Event{}, false},
		{"\n", Event{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, ok := ParseDevdLine(tt.line)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("ParseDevdLine() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseScriptLine(t *testing.T) {
	tests := []struct {
		line   string
		want   Event
		wantOK bool
	}{
		{"attach md0", Event{"md0", Attach}, true},
		{"add sdb", Event{"sdb", Attach}, true},
		{"detach md0", Event{"md0", Detach}, true},
		{"remove sdb", Event{"sdb", Detach}, true},
		{"  change   cd0  ", Event{"cd0", Change}, true},
		{"bind usb1", Event{"usb1", Unknown}, true},
		{"attach", Event{"", Attach}, true},
		{"# comment", Event{}, false},
		{"   ", Event{}, false},
	}

	for _, tt := range tests {
		got, ok := ParseScriptLine(tt.line)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("ParseScriptLine(%q) = %+v, %v; want %+v, %v", tt.line, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestScript_Next(t *testing.T) {
	src := NewScript(strings.NewReader("# replay\nattach md0\n\ndetach md0\nchange cd0\n"))
	defer src.Close()

	ctx := context.Background()
	want := []Event{{"md0", Attach}, {"md0", Detach}, {"cd0", Change}}
	for i, w := range want {
		got, err := src.Next(ctx)
		if err != nil {
			t.Fatalf("event %d: Next() error = %v", i, err)
		}
		if got != w {
			t.Errorf("event %d = %+v, want %+v", i, got, w)
		}
	}
	if _, err := src.Next(ctx); err != io.EOF {
		t.Errorf("Next() at end = %v, want io.EOF", err)
	}
}

func TestScript_ContextCanceled(t *testing.T) {
	src := NewScript(strings.NewReader("attach md0\n"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := src.Next(ctx); err != context.Canceled {
		t.Errorf("Next() = %v, want context.Canceled", err)
	}
}

func TestOpen_ScriptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events")
	if err := os.WriteFile(path, []byte("attach sda0\n"), 0644); err != nil {
		t.Fatal(err)
	}
	src, err := Open(KindScript, Options{Script: path})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer src.Close()

	ev, err := src.Next(context.Background())
	if err != nil || ev != (Event{"sda0", Attach}) {
		t.Errorf("Next() = %+v, %v", ev, err)
	}
}

func TestOpen_ScriptStdin(t *testing.T) {
	src, err := Open(KindScript, Options{Script: "-", Stdin: strings.NewReader("detach ada1\n")})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	ev, _ := src.Next(context.Background())
	if ev != (Event{"ada1", Detach}) {
		t.Errorf("Next() = %+v", ev)
	}
}

func TestOpen_Errors(t *testing.T) {
	_, err := Open("carrier-pigeon", Options{})
	if !errors.Is(err, errors.ErrUnknownSource) {
		t.Errorf("unknown kind error = %v, want ErrUnknownSource", err)
	}
	if !errors.IsFatal(err) {
		t.Error("open failure should be a fatal source error")
	}

	_, err = Open(KindScript, Options{Script: filepath.Join(t.TempDir(), "missing")})
	var srcErr *errors.SourceError
	if !errors.As(err, &srcErr) || srcErr.Source != KindScript {
		t.Errorf("missing script error = %v, want SourceError for script", err)
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		kind, goos, want string
	}{
		{"auto", "linux", KindNetlink},
		{"", "freebsd", KindDevd},
		{"auto", "darwin", KindDevfs},
		{"script", "linux", KindScript},
		{"devfs", "freebsd", KindDevfs},
	}
	for _, tt := range tests {
		if got := Resolve(tt.kind, tt.goos); got != tt.want {
			t.Errorf("Resolve(%q, %q) = %q, want %q", tt.kind, tt.goos, got, tt.want)
		}
	}
}

func TestKind(t *testing.T) {
	for action, want := range map[string]Kind{
		"attach": Attach, "add": Attach,
		"detach": Detach, "remove": Detach,
		"change": Change, "move": Unknown,
	} {
		if got := KindFromAction(action); got != want {
			t.Errorf("KindFromAction(%q) = %v, want %v", action, got, want)
		}
	}
	if Unknown.String() != "unknown" || Attach.String() != "attach" {
		t.Error("unexpected Kind.String()")
	}
}

func TestEventFromFS(t *testing.T) {
	tests := []struct {
		op     fsnotify.Op
		want   Kind
		wantOK bool
	}{
		{fsnotify.Create, Attach, true},
		{fsnotify.Remove, Detach, true},
		{fsnotify.Rename, Detach, true},
		{fsnotify.Write, Change, true},
		{fsnotify.Chmod, Change, true},
	}
	for _, tt := range tests {
		ev, ok := eventFromFS("/dev", fsnotify.Event{Name: "/dev/da0", Op: tt.op})
		if ok != tt.wantOK || ev.Kind != tt.want || ev.Name != "da0" {
			t.Errorf("op %v: got %+v, %v", tt.op, ev, ok)
		}
	}
}

func TestDevfs_Next(t *testing.T) {
	dir := t.TempDir()
	src, err := Open(KindDevfs, Options{DevDir: dir})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer src.Close()

	if err := os.WriteFile(filepath.Join(dir, "md7"), nil, 0644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ev, err := src.Next(ctx)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if ev.Name != "md7" || ev.Kind != Attach {
		t.Errorf("Next() = %+v, want attach md7", ev)
	}
}

func TestDevd_Next(t *testing.T) {
	if runtime.GOOS != "linux" && runtime.GOOS != "freebsd" {
		t.Skip("unixpacket sockets not available")
	}
	sock := filepath.Join(t.TempDir(), "devd.pipe")
	ln, err := net.Listen("unixpacket", sock)
	if err != nil {
		t.Skipf("listen unixpacket: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		conn.Write([]byte("!system=DEVFS subsystem=CDEV type=CREATE cdev=da1\n"))
		conn.Write([]byte("+umass0 at bus=0\n-umass0 at bus=0\n"))
		time.Sleep(time.Second)
	}()

	src, err := Open(KindDevd, Options{DevdSocket: sock})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	want := []Event{{"da1", Attach}, {"umass0", Attach}, {"umass0", Detach}}
	for i, w := range want {
		got, err := src.Next(ctx)
		if err != nil {
			t.Fatalf("event %d: Next() error = %v", i, err)
		}
		if got != w {
			t.Errorf("event %d = %+v, want %+v", i, got, w)
		}
	}
}

func TestDevd_ContextCanceled(t *testing.T) {
	if runtime.GOOS != "linux" && runtime.GOOS != "freebsd" {
		t.Skip("unixpacket sockets not available")
	}
	sock := filepath.Join(t.TempDir(), "devd.pipe")
	ln, err := net.Listen("unixpacket", sock)
	if err != nil {
		t.Skipf("listen unixpacket: %v", err)
	}
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			defer conn.Close()
			time.Sleep(2 * time.Second)
		}
	}()

	src, err := Open(KindDevd, Options{DevdSocket: sock})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := src.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Next() = %v, want context.DeadlineExceeded", err)
	}
}
