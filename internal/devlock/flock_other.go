//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package devlock

import (
	"os"

	"github.com/mergar/devd-watcher/internal/errors"
)

func tryLock(*os.File) (bool, error) {
	return false, errors.ErrSourceUnsupported
}

func unlock(*os.File) error {
	return nil
}
