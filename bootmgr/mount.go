// This file is part of bootsmith
// Copyright 2025 The bootsmith Authors
// SPDX-License-Identifier: GPL-3.0-only

package bootmgr

import (
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

const procMounts = "/proc/self/mounts"

// MountGuard owns the boot partition mount for the duration of a run. It
// unmounts on release only when this run performed the mount; a mount
// point that was already mounted stays mounted.
type MountGuard struct {
	mountPoint string
	owned      bool
	release    sync.Once
	log        *logrus.Logger
}

// AcquireMount mounts mountPoint unless it is already mounted. Mounting
// goes through mount(8) so /etc/fstab supplies device and fstype. A
// failed mount is reported but not fatal: if the partition really is
// inaccessible, artifact placement fails with a concrete path error.
func AcquireMount(mountPoint string, log *logrus.Logger) *MountGuard {
	g := &MountGuard{mountPoint: mountPoint, log: log}
	if mountPoint == "" {
		return g
	}

	mounted, err := isMounted(mountPoint)
	if err != nil {
		log.WithError(err).Warnf("cannot inspect mounts, assuming %s is mounted", mountPoint)
		return g
	}
	if mounted {
		log.Debugf("%s already mounted", mountPoint)
		return g
	}

	if out, err := appRunner.Run("mount", mountPoint); err != nil {
		log.WithError(err).Warnf("cannot mount %s, proceeding anyway: %s", mountPoint, strings.TrimSpace(string(out)))
		return g
	}
	g.owned = true
	log.Infof("mounted %s", mountPoint)
	return g
}

// Release unmounts the mount point if this guard owns it. Idempotent:
// both the deferred exit path and the signal hook call it.
func (g *MountGuard) Release() {
	g.release.Do(func() {
		if !g.owned {
			return
		}
		if out, err := appRunner.Run("umount", g.mountPoint); err != nil {
			g.log.WithError(err).Warnf("cannot unmount %s: %s", g.mountPoint, strings.TrimSpace(string(out)))
			return
		}
		g.log.Infof("unmounted %s", g.mountPoint)
	})
}

func isMounted(mountPoint string) (bool, error) {
	data, err := afero.ReadFile(appFs, procMounts)
	if err != nil {
		return false, errors.Wrapf(err, "cannot read %s", procMounts)
	}
	target := filepath.Clean(mountPoint)
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[1] == target {
			return true, nil
		}
	}
	return false, nil
}
