// This file is part of bootsmith
// Copyright 2025 The bootsmith Authors
// SPDX-License-Identifier: GPL-3.0-only

package bootmgr

import (
	goerrors "errors"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/bootsmith/bootsmith/config"
)

// Run executes one full lifecycle pass: select a kernel, build its
// artifacts in a scratch area, reconcile the enabled rotation modes and
// regenerate the menu. Selection and build failures are fatal; a
// reconciliation failure in one mode is surfaced but does not stop the
// other mode or the menu. The scratch area and the mount are released on
// every exit path, including signals.
func Run(cfg *config.Config, log *logrus.Logger) error {
	if !cfg.Manage.Enabled {
		log.Info("kernel image management is disabled, nothing to do")
		return nil
	}

	scratch, err := afero.TempDir(appFs, "", "bootsmith-")
	if err != nil {
		return errors.Wrap(err, "cannot create scratch directory")
	}

	guard := AcquireMount(cfg.Mount.Point, log)

	var cleanupOnce sync.Once
	cleanup := func() {
		cleanupOnce.Do(func() {
			guard.Release()
			if err := appFs.RemoveAll(scratch); err != nil {
				log.WithError(err).Warnf("cannot remove scratch directory %s", scratch)
			}
		})
	}
	defer cleanup()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		sig := <-sigCh
		log.Warnf("caught %v, cleaning up", sig)
		cleanup()
		os.Exit(1)
	}()

	kernel, err := resolveKernel(cfg)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{"kernel": kernel.Path, "version": kernel.Version}).Info("selected kernel")

	builder := NewBuilder(scratch, cfg.Initramfs.Tool, cfg.EFI.EmbedTool, cfg.OSRelease, log)

	initramfs, err := builder.BuildInitramfs(kernel.Version, cfg.Initramfs.ConfDir)
	if err != nil {
		return err
	}

	var efiImage string
	if cfg.EFI.Enabled {
		efiImage, err = builder.BuildUnifiedEFI(kernel, initramfs, cfg.Cmdline, cfg.EFI.Stub)
		if err != nil {
			return err
		}
	}

	mgr := NewManager(log)
	var errs []error

	if cfg.EFI.Enabled {
		policy := Policy{Versioned: cfg.EFI.Versioned, MaxCopies: cfg.EFI.MaxCopies}
		if err := mgr.ReconcileEFI(cfg.EFI.Dir, policy, kernel, efiImage); err != nil {
			log.WithError(err).Error("unified EFI reconciliation failed")
			errs = append(errs, err)
		}
	}

	if cfg.Components.Enabled {
		policy := Policy{Versioned: cfg.Components.Versioned, MaxCopies: cfg.Components.MaxCopies}
		if err := mgr.ReconcileComponents(cfg.Components.Dir, policy, kernel, initramfs); err != nil {
			log.WithError(err).Error("kernel/initramfs reconciliation failed")
			errs = append(errs, err)
		}
	}

	if cfg.Components.Enabled && cfg.Menu.Path != "" {
		menuCfg := MenuConfig{
			Path:       cfg.Menu.Path,
			Title:      menuTitle(cfg),
			Timeout:    cfg.Menu.Timeout,
			BootPrefix: cfg.Mount.Point,
			Cmdline:    cfg.Cmdline,
		}
		if err := GenerateMenu(cfg.Components.Dir, kernel.Prefix, scratch, menuCfg); err != nil {
			log.WithError(err).Error("menu generation failed")
			errs = append(errs, err)
		} else {
			log.WithField("path", cfg.Menu.Path).Info("regenerated boot menu")
		}
	}

	return goerrors.Join(errs...)
}

// resolveKernel honours an explicit kernel path over discovery. An
// explicit path that does not exist is a configuration error, not a
// discovery miss.
func resolveKernel(cfg *config.Config) (KernelImage, error) {
	if cfg.Kernel.Path != "" {
		ok, err := fileExists(cfg.Kernel.Path)
		if err != nil {
			return KernelImage{}, err
		}
		if !ok {
			return KernelImage{}, errors.Wrapf(ErrKernelMissing, "%s", cfg.Kernel.Path)
		}
		return NewKernelImage(cfg.Kernel.Path)
	}
	return SelectLatest(cfg.Kernel.Dir, cfg.Kernel.Prefixes)
}

// menuTitle falls back to the distribution PRETTY_NAME when no title is
// configured.
func menuTitle(cfg *config.Config) string {
	if cfg.Menu.Title != "" {
		return cfg.Menu.Title
	}
	if name := prettyName(cfg.OSRelease); name != "" {
		return name
	}
	return "Boot Menu"
}

// prettyName extracts PRETTY_NAME from an os-release file. Best effort:
// an unreadable file just means no title.
func prettyName(path string) string {
	data, err := afero.ReadFile(appFs, path)
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(data), "\n") {
		if value, ok := strings.CutPrefix(line, "PRETTY_NAME="); ok {
			return strings.Trim(strings.TrimSpace(value), `"`)
		}
	}
	return ""
}
