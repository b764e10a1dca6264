//go:build !linux

package source

import "github.com/mergar/devd-watcher/internal/errors"

func openNetlink(Options) (Source, error) {
	return nil, errors.ErrSourceUnsupported
}
