//go:build !unix

package process

import "os/exec"

func configureProcess(cmd *exec.Cmd) {}
