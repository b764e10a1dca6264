// Command devd-watcher runs device helpers on hot-plug events.
package main

import (
	"os"

	"github.com/mergar/devd-watcher/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
