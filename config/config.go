// This file is part of bootsmith
// Copyright 2025 The bootsmith Authors
// SPDX-License-Identifier: GPL-3.0-only

// Package config holds the immutable run configuration. It is constructed
// once at startup and passed by reference; no component reads ambient
// global state.
package config

// Config is the full run configuration.
type Config struct {
	Manage     ManageConfig
	Mount      MountConfig
	Kernel     KernelConfig
	Initramfs  InitramfsConfig
	Cmdline    string
	OSRelease  string `mapstructure:"osrelease"`
	EFI        EFIConfig
	Components ComponentsConfig
	Menu       MenuConfig
	Log        LogConfig
}

// ManageConfig gates the whole tool. Disabled is a clean no-op exit.
type ManageConfig struct {
	Enabled bool
}

type MountConfig struct {
	Point string
}

type KernelConfig struct {
	// Dir is searched for kernel images unless Path names one explicitly.
	Dir      string
	Path     string
	Prefixes []string
}

type InitramfsConfig struct {
	Tool    string
	ConfDir string `mapstructure:"confdir"`
}

// EFIConfig controls the unified EFI image rotation mode.
type EFIConfig struct {
	Enabled   bool
	Dir       string
	Versioned bool
	MaxCopies int `mapstructure:"maxcopies"`
	Stub      string
	EmbedTool string `mapstructure:"embedtool"`
}

// ComponentsConfig controls the split kernel/initramfs rotation mode.
type ComponentsConfig struct {
	Enabled   bool
	Dir       string
	Versioned bool
	MaxCopies int `mapstructure:"maxcopies"`
}

type MenuConfig struct {
	Path    string
	Title   string
	Timeout int
}

type LogConfig struct {
	Level  string
	Format string
}
