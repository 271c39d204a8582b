// This file is part of bootsmith
// Copyright 2025 The bootsmith Authors
// SPDX-License-Identifier: GPL-3.0-only

package bootmgr

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// ErrStubMissing means the EFI stub needed to assemble a unified image is
// absent. A precondition failure, distinct from a failed build.
var ErrStubMissing = errors.New("EFI stub not found")

// BuildError reports a tool invocation that exited non-zero. The captured
// combined output is preserved for diagnosis.
type BuildError struct {
	Tool   string
	Output []byte
	Err    error
}

func (e *BuildError) Error() string {
	msg := fmt.Sprintf("%s failed: %v", e.Tool, e.Err)
	if out := strings.TrimSpace(string(e.Output)); out != "" {
		msg += "\n" + out
	}
	return msg
}

func (e *BuildError) Unwrap() error { return e.Err }

// Builder constructs boot artifacts in a scratch directory by driving the
// external initramfs and section-embedding tools. Artifacts stay in the
// scratch area until retention places them; a failed build leaves the
// target directories untouched.
type Builder struct {
	Scratch       string
	InitramfsTool string
	EmbedTool     string
	OSRelease     string

	log *logrus.Logger
}

func NewBuilder(scratch, initramfsTool, embedTool, osRelease string, log *logrus.Logger) *Builder {
	return &Builder{
		Scratch:       scratch,
		InitramfsTool: initramfsTool,
		EmbedTool:     embedTool,
		OSRelease:     osRelease,
		log:           log,
	}
}

// BuildInitramfs generates the initramfs for the given kernel version and
// returns its scratch path.
func (b *Builder) BuildInitramfs(version, confDir string) (string, error) {
	out := filepath.Join(b.Scratch, initramfsName(version))
	b.log.WithFields(logrus.Fields{"version": version, "tool": b.InitramfsTool}).Info("building initramfs")

	output, err := appRunner.Run(b.InitramfsTool, "-c", confDir, "-k", version, out)
	if err != nil {
		return "", &BuildError{Tool: b.InitramfsTool, Output: output, Err: err}
	}
	return out, nil
}

// BuildUnifiedEFI assembles a single bootable EFI binary from the stub,
// the kernel, the initramfs and the command line, and returns its scratch
// path. The four sections and their load addresses are a structural
// contract with the stub layout; the image does not boot if they change.
func (b *Builder) BuildUnifiedEFI(kernel KernelImage, initramfsPath, cmdline, stub string) (string, error) {
	ok, err := fileExists(stub)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errors.Wrapf(ErrStubMissing, "%s", stub)
	}

	cmdlineFile := filepath.Join(b.Scratch, "cmdline")
	if err := afero.WriteFile(appFs, cmdlineFile, []byte(cmdline), 0644); err != nil {
		return "", errors.Wrapf(err, "cannot write command line to %s", cmdlineFile)
	}

	out := filepath.Join(b.Scratch, versionedName(kernel.Prefix, kernel.Version)+efiSuffix)
	b.log.WithFields(logrus.Fields{"version": kernel.Version, "stub": stub}).Info("building unified EFI image")

	output, err := appRunner.Run(b.EmbedTool,
		"--add-section", ".osrel="+b.OSRelease, "--change-section-vma", ".osrel=0x20000",
		"--add-section", ".cmdline="+cmdlineFile, "--change-section-vma", ".cmdline=0x30000",
		"--add-section", ".linux="+kernel.Path, "--change-section-vma", ".linux=0x2000000",
		"--add-section", ".initrd="+initramfsPath, "--change-section-vma", ".initrd=0x3000000",
		stub, out)
	if err != nil {
		return "", &BuildError{Tool: b.EmbedTool, Output: output, Err: err}
	}
	return out, nil
}
