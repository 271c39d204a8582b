// This file is part of bootsmith
// Copyright 2025 The bootsmith Authors
// SPDX-License-Identifier: GPL-3.0-only

package bootmgr

import (
	"sort"

	"github.com/spf13/afero"
	"gopkg.in/check.v1"
)

type retentionSuite struct {
	mapFsMixin
	mgr *Manager
}

var _ = check.Suite(&retentionSuite{})

func (s *retentionSuite) SetUpTest(c *check.C) {
	s.mapFsMixin.SetUpTest(c)
	s.mgr = NewManager(testLogger())
}

func (s *retentionSuite) listDir(c *check.C, dir string) []string {
	infos, err := afero.ReadDir(s.fs, dir)
	c.Assert(err, check.IsNil)
	var names []string
	for _, fi := range infos {
		names = append(names, fi.Name())
	}
	sort.Strings(names)
	return names
}

// reconcileBuild simulates one full build of the given version landing in
// the components directory.
func (s *retentionSuite) reconcileBuild(c *check.C, version string, policy Policy) error {
	kernelSrc := "/src/vmlinuz-" + version
	initramfsSrc := "/scratch/initramfs-" + version + ".img"
	s.writeFile(c, kernelSrc, "kernel "+version)
	s.writeFile(c, initramfsSrc, "initramfs "+version)
	kernel := KernelImage{Path: kernelSrc, Prefix: "vmlinuz", Version: version}
	return s.mgr.ReconcileComponents("/boot", policy, kernel, initramfsSrc)
}

func (s *retentionSuite) TestVersionedThreeBuilds(c *check.C) {
	policy := Policy{Versioned: true, MaxCopies: 2}
	for _, version := range []string{"1", "2", "3"} {
		c.Assert(s.reconcileBuild(c, version, policy), check.IsNil)
	}

	c.Check(s.listDir(c, "/boot"), check.DeepEquals, []string{
		"initramfs-2.img", "initramfs-3.img", "vmlinuz-2", "vmlinuz-3",
	})
}

func (s *retentionSuite) TestVersionedIdempotent(c *check.C) {
	policy := Policy{Versioned: true, MaxCopies: 2}
	for _, version := range []string{"1", "2", "3"} {
		c.Assert(s.reconcileBuild(c, version, policy), check.IsNil)
	}
	want := s.listDir(c, "/boot")

	// Reconciling again with the same artifact must not change the set.
	kernel := KernelImage{Path: "/src/vmlinuz-3", Prefix: "vmlinuz", Version: "3"}
	c.Assert(s.mgr.ReconcileComponents("/boot", policy, kernel, "/scratch/initramfs-3.img"), check.IsNil)
	c.Check(s.listDir(c, "/boot"), check.DeepEquals, want)
}

func (s *retentionSuite) TestVersionedCopyFailureKeepsOld(c *check.C) {
	policy := Policy{Versioned: true, MaxCopies: 2}
	for _, version := range []string{"1", "2", "3"} {
		c.Assert(s.reconcileBuild(c, version, policy), check.IsNil)
	}

	s.writeFile(c, "/src/vmlinuz-4", "kernel 4")
	s.writeFile(c, "/scratch/initramfs-4.img", "initramfs 4")
	appFs = afero.NewReadOnlyFs(s.fs)

	kernel := KernelImage{Path: "/src/vmlinuz-4", Prefix: "vmlinuz", Version: "4"}
	err := s.mgr.ReconcileComponents("/boot", policy, kernel, "/scratch/initramfs-4.img")
	c.Assert(err, check.NotNil)

	// The failed copy must not have triggered any deletion.
	c.Check(s.listDir(c, "/boot"), check.DeepEquals, []string{
		"initramfs-2.img", "initramfs-3.img", "vmlinuz-2", "vmlinuz-3",
	})
}

func (s *retentionSuite) TestVersionedPairAlreadyAbsent(c *check.C) {
	policy := Policy{Versioned: true, MaxCopies: 1}
	c.Assert(s.reconcileBuild(c, "1", policy), check.IsNil)
	// Drop version 1's initramfs behind the manager's back.
	c.Assert(s.fs.Remove("/boot/initramfs-1.img"), check.IsNil)

	c.Assert(s.reconcileBuild(c, "2", policy), check.IsNil)
	c.Check(s.listDir(c, "/boot"), check.DeepEquals, []string{"initramfs-2.img", "vmlinuz-2"})
}

func (s *retentionSuite) TestVersionedNumericOrder(c *check.C) {
	// Pruning goes by version order, not directory or mtime order:
	// 9 is older than 10.
	policy := Policy{Versioned: true, MaxCopies: 2}
	for _, version := range []string{"5.9", "5.10", "5.4"} {
		c.Assert(s.reconcileBuild(c, version, policy), check.IsNil)
	}

	c.Check(s.listDir(c, "/boot"), check.DeepEquals, []string{
		"initramfs-5.10.img", "initramfs-5.9.img", "vmlinuz-5.10", "vmlinuz-5.9",
	})
}

func (s *retentionSuite) TestEFIVersioned(c *check.C) {
	policy := Policy{Versioned: true, MaxCopies: 2}
	// Split-mode files in the same directory are not EFI candidates and
	// must survive EFI pruning untouched.
	s.writeFile(c, "/efi/vmlinuz-0.9", "split kernel")
	s.writeFile(c, "/efi/initramfs-0.9.img", "split initramfs")

	for _, version := range []string{"1", "2", "3"} {
		src := "/scratch/vmlinuz-" + version + ".efi"
		s.writeFile(c, src, "unified "+version)
		kernel := KernelImage{Path: "/src/vmlinuz-" + version, Prefix: "vmlinuz", Version: version}
		c.Assert(s.mgr.ReconcileEFI("/efi", policy, kernel, src), check.IsNil)
	}

	c.Check(s.listDir(c, "/efi"), check.DeepEquals, []string{
		"initramfs-0.9.img", "vmlinuz-0.9", "vmlinuz-2.efi", "vmlinuz-3.efi",
	})
}

func (s *retentionSuite) TestSingleSlotRotation(c *check.C) {
	policy := Policy{Versioned: false}
	c.Assert(s.reconcileBuild(c, "10", policy), check.IsNil)
	c.Assert(s.reconcileBuild(c, "11", policy), check.IsNil)

	// Content identity: current carries build 11, backup carries build 10.
	c.Check(s.readFile(c, "/boot/vmlinuz-current"), check.Equals, "kernel 11")
	c.Check(s.readFile(c, "/boot/vmlinuz-backup"), check.Equals, "kernel 10")
	c.Check(s.readFile(c, "/boot/initramfs-current.img"), check.Equals, "initramfs 11")
	c.Check(s.readFile(c, "/boot/initramfs-backup.img"), check.Equals, "initramfs 10")
}

func (s *retentionSuite) TestSingleSlotFirstBuild(c *check.C) {
	policy := Policy{Versioned: false}
	c.Assert(s.reconcileBuild(c, "10", policy), check.IsNil)

	c.Check(s.readFile(c, "/boot/vmlinuz-current"), check.Equals, "kernel 10")
	ok, err := afero.Exists(s.fs, "/boot/vmlinuz-backup")
	c.Assert(err, check.IsNil)
	c.Check(ok, check.Equals, false)
}

func (s *retentionSuite) TestSingleSlotBackupDiscarded(c *check.C) {
	policy := Policy{Versioned: false}
	for _, version := range []string{"1", "2", "3"} {
		c.Assert(s.reconcileBuild(c, version, policy), check.IsNil)
	}

	// Only two slots ever exist; the oldest build is gone.
	c.Check(s.readFile(c, "/boot/vmlinuz-current"), check.Equals, "kernel 3")
	c.Check(s.readFile(c, "/boot/vmlinuz-backup"), check.Equals, "kernel 2")
}

func (s *retentionSuite) TestSingleSlotBackupFailureStillPlacesCurrent(c *check.C) {
	policy := Policy{Versioned: false}
	c.Assert(s.reconcileBuild(c, "1", policy), check.IsNil)

	s.writeFile(c, "/src/vmlinuz-2", "kernel 2")
	s.writeFile(c, "/scratch/initramfs-2.img", "initramfs 2")
	appFs = denyFs{Fs: s.fs, prefix: "/boot/vmlinuz-backup"}

	kernel := KernelImage{Path: "/src/vmlinuz-2", Prefix: "vmlinuz", Version: "2"}
	err := s.mgr.ReconcileComponents("/boot", policy, kernel, "/scratch/initramfs-2.img")
	c.Assert(err, check.NotNil)

	// The backup failure is surfaced, but the primary placement happened.
	c.Check(s.readFile(c, "/boot/vmlinuz-current"), check.Equals, "kernel 2")
}

func (s *retentionSuite) TestSingleSlotPrimaryFailureKeepsCurrent(c *check.C) {
	policy := Policy{Versioned: false}
	c.Assert(s.reconcileBuild(c, "1", policy), check.IsNil)

	s.writeFile(c, "/src/vmlinuz-2", "kernel 2")
	s.writeFile(c, "/scratch/initramfs-2.img", "initramfs 2")
	appFs = denyFs{Fs: s.fs, prefix: "/boot/vmlinuz-current"}

	kernel := KernelImage{Path: "/src/vmlinuz-2", Prefix: "vmlinuz", Version: "2"}
	err := s.mgr.ReconcileComponents("/boot", policy, kernel, "/scratch/initramfs-2.img")
	c.Assert(err, check.NotNil)

	// Copy-not-rename crash safety: the old current survives a failed
	// primary placement.
	c.Check(s.readFile(c, "/boot/vmlinuz-current"), check.Equals, "kernel 1")
	c.Check(s.readFile(c, "/boot/vmlinuz-backup"), check.Equals, "kernel 1")
}

func (s *retentionSuite) TestParseArtifact(c *check.C) {
	tests := []struct {
		name    string
		role    Role
		version string
		ok      bool
	}{
		{"vmlinuz-5.10", RoleKernel, "5.10", true},
		{"vmlinuz-5.10.efi", RoleUnifiedEFI, "5.10", true},
		{"initramfs-5.10.img", RoleInitramfs, "5.10", true},
		{"vmlinuz-current", RoleKernel, "current", true},
		{"config-5.10", 0, "", false},
		{"vmlinuz-", 0, "", false},
		{"System.map-5.10", 0, "", false},
	}
	for _, tt := range tests {
		a, ok := parseArtifact(tt.name, "vmlinuz")
		c.Check(ok, check.Equals, tt.ok, check.Commentf("name %q", tt.name))
		if tt.ok {
			c.Check(a.Role, check.Equals, tt.role, check.Commentf("name %q", tt.name))
			c.Check(a.Version, check.Equals, tt.version, check.Commentf("name %q", tt.name))
		}
	}
}
