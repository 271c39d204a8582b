// This file is part of bootsmith
// Copyright 2025 The bootsmith Authors
// SPDX-License-Identifier: GPL-3.0-only

package bootmgr

import (
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/bootsmith/bootsmith/vercmp"
)

var (
	// ErrNoKernelFound means discovery found no matching kernel image.
	ErrNoKernelFound = errors.New("no kernel image found")
	// ErrKernelMissing means an explicitly configured kernel path does
	// not exist. This is a configuration error, not a discovery miss.
	ErrKernelMissing = errors.New("configured kernel image does not exist")
)

// KernelImage identifies the kernel file picked for this run. Immutable
// once selected.
type KernelImage struct {
	Path    string
	Prefix  string
	Version string
}

// NewKernelImage derives the naming prefix and version from the file
// name, split at the first dash.
func NewKernelImage(path string) (KernelImage, error) {
	name := filepath.Base(path)
	i := strings.Index(name, "-")
	if i <= 0 || i == len(name)-1 {
		return KernelImage{}, errors.Errorf("cannot derive version from kernel name %q", name)
	}
	return KernelImage{Path: path, Prefix: name[:i], Version: name[i+1:]}, nil
}

// SelectLatest returns the highest-versioned kernel image under dir.
//
// Prefixes are tried in priority order and the first prefix yielding any
// match wins; candidates of different prefixes are never pooled. Within a
// prefix the maximum by vercmp wins. Returns ErrNoKernelFound when no
// prefix matches anything.
func SelectLatest(dir string, prefixes []string) (KernelImage, error) {
	entries, err := afero.ReadDir(appFs, dir)
	if err != nil {
		return KernelImage{}, errors.Wrapf(err, "cannot list kernel directory %s", dir)
	}

	for _, prefix := range prefixes {
		var bestName, bestVer string
		for _, fi := range entries {
			if fi.IsDir() {
				continue
			}
			name := fi.Name()
			if !strings.HasPrefix(name, prefix+"-") {
				continue
			}
			ver := name[len(prefix)+1:]
			if ver == "" {
				continue
			}
			if bestName == "" || vercmp.Compare(ver, bestVer) > 0 {
				bestName, bestVer = name, ver
			}
		}
		if bestName != "" {
			return KernelImage{
				Path:    filepath.Join(dir, bestName),
				Prefix:  prefix,
				Version: bestVer,
			}, nil
		}
	}

	return KernelImage{}, errors.Wrapf(ErrNoKernelFound, "in %s", dir)
}
