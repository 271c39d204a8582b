// This file is part of bootsmith
// Copyright 2025 The bootsmith Authors
// SPDX-License-Identifier: GPL-3.0-only

package bootmgr

import "os/exec"

// CommandRunner abstracts subprocess invocation so the core can be tested
// without the external tools installed. Run blocks until the process
// exits and returns its combined stdout and stderr.
type CommandRunner interface {
	Run(name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(name string, args ...string) ([]byte, error) {
	return exec.Command(name, args...).CombinedOutput()
}

// Chosen implementation, swapped for a mock in tests.
var appRunner CommandRunner = execRunner{}
