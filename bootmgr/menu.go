// This file is part of bootsmith
// Copyright 2025 The bootsmith Authors
// SPDX-License-Identifier: GPL-3.0-only

package bootmgr

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/bootsmith/bootsmith/vercmp"
)

// MenuEntry is one selectable entry in the generated bootloader menu.
type MenuEntry struct {
	Label     string
	MenuLabel string
	Kernel    string
	Initrd    string
	Append    string
}

// MenuConfig describes the menu to generate.
type MenuConfig struct {
	Path       string // final location of the menu file
	Title      string
	Timeout    int
	BootPrefix string // mount prefix stripped from emitted paths
	Cmdline    string
}

// BuildMenuEntries derives menu entries from the split kernel/initramfs
// artifacts currently in dir, newest first. Unified EFI images are not
// menu material and are excluded by role.
func BuildMenuEntries(dir, kernelPrefix string, cfg MenuConfig) ([]MenuEntry, error) {
	artifacts, err := listArtifacts(dir, kernelPrefix)
	if err != nil {
		return nil, err
	}

	var kernels []Artifact
	for _, a := range artifacts {
		if a.Role == RoleKernel {
			kernels = append(kernels, a)
		}
	}
	sort.Slice(kernels, func(i, j int) bool {
		return vercmp.Compare(kernels[i].Version, kernels[j].Version) > 0
	})

	var entries []MenuEntry
	for _, a := range kernels {
		entries = append(entries, MenuEntry{
			Label:     a.Name,
			MenuLabel: fmt.Sprintf("%s %s", cfg.Title, a.Version),
			Kernel:    loaderPath(filepath.Join(dir, a.Name), cfg.BootPrefix),
			Initrd:    loaderPath(filepath.Join(dir, initramfsName(a.Version)), cfg.BootPrefix),
			Append:    cfg.Cmdline,
		})
	}
	return entries, nil
}

// WriteMenu emits the menu text: one header block, then one block per
// entry, blank-line separated. The first entry is the default.
func WriteMenu(w io.Writer, cfg MenuConfig, entries []MenuEntry) error {
	if _, err := fmt.Fprintf(w, "MENU TITLE %s\nTIMEOUT %d\n", cfg.Title, cfg.Timeout); err != nil {
		return errors.Wrap(err, "cannot write menu header")
	}
	if len(entries) > 0 {
		if _, err := fmt.Fprintf(w, "DEFAULT %s\n", entries[0].Label); err != nil {
			return errors.Wrap(err, "cannot write menu header")
		}
	}

	for _, entry := range entries {
		_, err := fmt.Fprintf(w, "\nLABEL %s\n  MENU LABEL %s\n  KERNEL %s\n  INITRD %s\n  APPEND %s\n",
			entry.Label, entry.MenuLabel, entry.Kernel, entry.Initrd, entry.Append)
		if err != nil {
			return errors.Wrapf(err, "cannot write menu entry %s", entry.Label)
		}
	}
	return nil
}

// GenerateMenu regenerates the menu file in full from the current
// contents of dir. The text is staged in the scratch area and placed with
// the same copy primitive as the artifacts, so a reader never sees a
// half-written menu.
func GenerateMenu(dir, kernelPrefix, scratch string, cfg MenuConfig) error {
	entries, err := BuildMenuEntries(dir, kernelPrefix, cfg)
	if err != nil {
		return err
	}

	staged := filepath.Join(scratch, filepath.Base(cfg.Path))
	f, err := appFs.Create(staged)
	if err != nil {
		return errors.Wrapf(err, "cannot create %s", staged)
	}
	if err := WriteMenu(f, cfg, entries); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return errors.Wrapf(err, "cannot close %s", staged)
	}

	if err := ensureDir(filepath.Dir(cfg.Path)); err != nil {
		return err
	}
	return copyFile(cfg.Path, staged)
}

// loaderPath makes a path relative to the bootloader's own root by
// stripping the boot mount prefix.
func loaderPath(path, bootPrefix string) string {
	if bootPrefix != "" {
		path = strings.TrimPrefix(path, filepath.Clean(bootPrefix))
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}
