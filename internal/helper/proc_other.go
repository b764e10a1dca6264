//go:build !unix

package helper

import "os/exec"

func configureProcess(*exec.Cmd) {}
