// This file is part of bootsmith
// Copyright 2025 The bootsmith Authors
// SPDX-License-Identifier: GPL-3.0-only

package bootmgr

import (
	goerrors "errors"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/bootsmith/bootsmith/vercmp"
)

const (
	efiSuffix       = ".efi"
	initramfsPrefix = "initramfs"
	initramfsSuffix = ".img"
	slotCurrent     = "current"
	slotBackup      = "backup"
)

// Role distinguishes what an artifact file in a target directory is.
type Role int

const (
	RoleKernel Role = iota
	RoleInitramfs
	RoleUnifiedEFI
)

// Artifact is one typed file in a target directory. Parsing filenames
// into these records keeps the pruning algorithm free of string matching.
type Artifact struct {
	Name    string
	Prefix  string
	Version string
	Role    Role
}

// Policy selects how retained copies are named and pruned. Versioned
// keeps up to MaxCopies version-suffixed builds, pruning oldest first by
// version order. Non-versioned keeps exactly the current and backup slot.
type Policy struct {
	Versioned bool
	MaxCopies int
}

// Manager reconciles target directories against a rotation policy after
// each build.
type Manager struct {
	log *logrus.Logger
}

func NewManager(log *logrus.Logger) *Manager {
	return &Manager{log: log}
}

// parseArtifact classifies a directory entry. The fixed .efi suffix keeps
// unified images and split kernels from ever being counted against each
// other's policy.
func parseArtifact(name, kernelPrefix string) (Artifact, bool) {
	if withoutSuffix, ok := cutAffixes(name, kernelPrefix+"-", efiSuffix); ok {
		return Artifact{Name: name, Prefix: kernelPrefix, Version: withoutSuffix, Role: RoleUnifiedEFI}, true
	}
	if version, ok := cutAffixes(name, initramfsPrefix+"-", initramfsSuffix); ok {
		return Artifact{Name: name, Prefix: initramfsPrefix, Version: version, Role: RoleInitramfs}, true
	}
	if version, ok := cutAffixes(name, kernelPrefix+"-", ""); ok {
		return Artifact{Name: name, Prefix: kernelPrefix, Version: version, Role: RoleKernel}, true
	}
	return Artifact{}, false
}

func cutAffixes(name, prefix, suffix string) (string, bool) {
	if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, suffix) {
		return "", false
	}
	core := strings.TrimSuffix(strings.TrimPrefix(name, prefix), suffix)
	if core == "" {
		return "", false
	}
	return core, true
}

// listArtifacts returns the typed contents of a target directory for the
// given kernel naming prefix, in directory order.
func listArtifacts(dir, kernelPrefix string) ([]Artifact, error) {
	entries, err := afero.ReadDir(appFs, dir)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot list %s", dir)
	}
	var artifacts []Artifact
	for _, fi := range entries {
		if fi.IsDir() {
			continue
		}
		if a, ok := parseArtifact(fi.Name(), kernelPrefix); ok {
			artifacts = append(artifacts, a)
		}
	}
	return artifacts, nil
}

func sortByVersion(artifacts []Artifact) {
	sort.Slice(artifacts, func(i, j int) bool {
		return vercmp.Compare(artifacts[i].Version, artifacts[j].Version) < 0
	})
}

func versionedName(prefix, version string) string {
	return prefix + "-" + version
}

func initramfsName(version string) string {
	return initramfsPrefix + "-" + version + initramfsSuffix
}

// ReconcileEFI places a freshly built unified EFI image into dir and
// prunes older images per the policy. Retention of unified images is
// fully independent of the split kernel/initramfs mode: only .efi files
// are candidates here.
func (m *Manager) ReconcileEFI(dir string, policy Policy, kernel KernelImage, builtEFI string) error {
	if err := ensureDir(dir); err != nil {
		return err
	}

	if !policy.Versioned {
		primaryErr, backupErr := m.rotateSlots(dir, kernel.Prefix+"-%s"+efiSuffix, builtEFI)
		return goerrors.Join(primaryErr, backupErr)
	}

	newName := versionedName(kernel.Prefix, kernel.Version) + efiSuffix
	existing, err := m.listExisting(dir, kernel.Prefix, RoleUnifiedEFI, newName)
	if err != nil {
		return err
	}

	// Copy first. If the new image did not land we must not delete the
	// old ones.
	if err := copyFile(filepath.Join(dir, newName), builtEFI); err != nil {
		return err
	}
	m.log.WithFields(logrus.Fields{"dir": dir, "version": kernel.Version}).Info("installed unified EFI image")

	for len(existing)+1 > policy.MaxCopies && len(existing) > 0 {
		oldest := existing[0]
		existing = existing[1:]
		m.log.WithFields(logrus.Fields{"version": oldest.Version}).Info("pruning unified EFI image")
		if err := removeIfPresent(filepath.Join(dir, oldest.Name)); err != nil {
			return err
		}
	}
	return nil
}

// ReconcileComponents places a kernel and its matching initramfs into dir
// and prunes older pairs per the policy. Kernel and initramfs are always
// deleted together, derived by name substitution; a pair half that is
// already absent is tolerated.
func (m *Manager) ReconcileComponents(dir string, policy Policy, kernel KernelImage, builtInitramfs string) error {
	if err := ensureDir(dir); err != nil {
		return err
	}

	if !policy.Versioned {
		primaryErr, backupErr := m.rotateSlots(dir, kernel.Prefix+"-%s", kernel.Path)
		if primaryErr != nil {
			// Without the new kernel in place, rotating the initramfs
			// would leave the current pair mismatched.
			return goerrors.Join(primaryErr, backupErr)
		}
		initrdPrimaryErr, initrdBackupErr := m.rotateSlots(dir, initramfsPrefix+"-%s"+initramfsSuffix, builtInitramfs)
		return goerrors.Join(backupErr, initrdPrimaryErr, initrdBackupErr)
	}

	kernelName := versionedName(kernel.Prefix, kernel.Version)
	existing, err := m.listExisting(dir, kernel.Prefix, RoleKernel, kernelName)
	if err != nil {
		return err
	}

	if err := copyFile(filepath.Join(dir, kernelName), kernel.Path); err != nil {
		return err
	}
	if err := copyFile(filepath.Join(dir, initramfsName(kernel.Version)), builtInitramfs); err != nil {
		return err
	}
	m.log.WithFields(logrus.Fields{"dir": dir, "version": kernel.Version}).Info("installed kernel and initramfs")

	for len(existing)+1 > policy.MaxCopies && len(existing) > 0 {
		oldest := existing[0]
		existing = existing[1:]
		m.log.WithFields(logrus.Fields{"version": oldest.Version}).Info("pruning kernel and initramfs pair")
		if err := removeIfPresent(filepath.Join(dir, oldest.Name)); err != nil {
			return err
		}
		if err := removeIfPresent(filepath.Join(dir, initramfsName(oldest.Version))); err != nil {
			return err
		}
	}
	return nil
}

// listExisting returns the sorted (oldest first) retained set for one
// role, excluding the name this run is about to write so the fresh
// artifact can never be pruned.
func (m *Manager) listExisting(dir, kernelPrefix string, role Role, excludeName string) ([]Artifact, error) {
	all, err := listArtifacts(dir, kernelPrefix)
	if err != nil {
		return nil, err
	}
	var existing []Artifact
	for _, a := range all {
		if a.Role != role || a.Name == excludeName {
			continue
		}
		existing = append(existing, a)
	}
	sortByVersion(existing)
	return existing, nil
}

// rotateSlots implements the single-slot-with-backup policy for one file
// whose name is nameFormat with the slot substituted. The previous
// current is copied aside before the new build overwrites it, so a crash
// between the two copies still leaves a bootable current in place. A
// failed backup copy is reported but does not stop the primary placement;
// the two failures are returned separately so callers can tell them
// apart.
func (m *Manager) rotateSlots(dir, nameFormat, src string) (primaryErr, backupErr error) {
	current := filepath.Join(dir, slotName(nameFormat, slotCurrent))
	backup := filepath.Join(dir, slotName(nameFormat, slotBackup))

	ok, err := fileExists(current)
	if err != nil {
		return err, nil
	}
	if ok {
		if backupErr = copyFile(backup, current); backupErr != nil {
			m.log.WithError(backupErr).Errorf("cannot rotate %s to backup", current)
		}
	}

	if err := copyFile(current, src); err != nil {
		return err, backupErr
	}
	m.log.WithField("path", current).Info("installed current slot")
	return nil, backupErr
}

func slotName(nameFormat, slot string) string {
	return strings.Replace(nameFormat, "%s", slot, 1)
}

func removeIfPresent(path string) error {
	if err := appFs.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "cannot remove %s", path)
	}
	return nil
}
