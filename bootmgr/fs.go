// This file is part of bootsmith
// Copyright 2025 The bootsmith Authors
// SPDX-License-Identifier: GPL-3.0-only

// Package bootmgr contains the boot image lifecycle core: kernel
// selection, initramfs and unified EFI construction, retention and
// pruning of old builds, and bootloader menu regeneration.
package bootmgr

import (
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// appFs is the filesystem everything in bootmgr goes through. Tests swap
// in an afero.NewMemMapFs().
var appFs afero.Fs = afero.NewOsFs()

// copyFile copies src to dst, truncating any previous dst. Placement is
// always a copy, never a rename: an interrupted run must leave the
// original file intact at its original path.
func copyFile(dst, src string) error {
	in, err := appFs.Open(src)
	if err != nil {
		return errors.Wrapf(err, "cannot open %s", src)
	}
	defer in.Close()

	out, err := appFs.Create(dst)
	if err != nil {
		return errors.Wrapf(err, "cannot create %s", dst)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return errors.Wrapf(err, "cannot copy %s to %s", src, dst)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return errors.Wrapf(err, "cannot sync %s", dst)
	}
	return errors.Wrapf(out.Close(), "cannot close %s", dst)
}

// ensureDir creates dir and any missing parents. Idempotent.
func ensureDir(dir string) error {
	return errors.Wrapf(appFs.MkdirAll(dir, 0755), "cannot create directory %s", dir)
}

func fileExists(path string) (bool, error) {
	ok, err := afero.Exists(appFs, path)
	return ok, errors.Wrapf(err, "cannot stat %s", path)
}
