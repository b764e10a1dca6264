package source

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/mergar/devd-watcher/internal/errors"
)

// devfsSource turns directory changes under DevDir into device events.
type devfsSource struct {
	dir     string
	watcher *fsnotify.Watcher
}

func openDevfs(opts Options) (Source, error) {
	dir := opts.DevDir
	if dir == "" {
		dir = "/dev"
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "create watcher")
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, errors.Wrapf(err, "watch %s", dir)
	}
	return &devfsSource{dir: dir, watcher: w}, nil
}

func (s *devfsSource) Next(ctx context.Context) (Event, error) {
	for {
		select {
		case <-ctx.Done():
			return Event{}, ctx.Err()
		case fe, ok := <-s.watcher.Events:
			if !ok {
				return Event{}, fmt.Errorf("%w: watcher closed", errors.ErrSourceRead)
			}
			if ev, ok := eventFromFS(s.dir, fe); ok {
				return ev, nil
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return Event{}, fmt.Errorf("%w: watcher closed", errors.ErrSourceRead)
			}
			return Event{}, fmt.Errorf("%w: %w", errors.ErrSourceRead, err)
		}
	}
}

func (s *devfsSource) Close() error {
	return s.watcher.Close()
}

// eventFromFS maps a filesystem notification on a device node. Names are
// relative to dir.
func eventFromFS(dir string, fe fsnotify.Event) (Event, bool) {
	name, err := filepath.Rel(dir, fe.Name)
	if err != nil || name == "." {
		name = filepath.Base(fe.Name)
	}

	switch {
	case fe.Has(fsnotify.Create):
		return NewEvent(Attach, name), true
	case fe.Has(fsnotify.Remove), fe.Has(fsnotify.Rename):
		return NewEvent(Detach, name), true
	case fe.Has(fsnotify.Write), fe.Has(fsnotify.Chmod):
		return NewEvent(Change, name), true
	default:
		return Event{}, false
	}
}
