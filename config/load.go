// This file is part of bootsmith
// Copyright 2025 The bootsmith Authors
// SPDX-License-Identifier: GPL-3.0-only

package config

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	EnvPrefix         = "bootsmith"
	DefaultConfigFile = "bootsmith"
)

var defaultConfigPaths = []string{
	".",
	"/etc/bootsmith",
}

// ErrConfigMissing means no configuration file could be found. The tool
// refuses to run on defaults alone: a missing config would silently
// manage the wrong directories.
var ErrConfigMissing = errors.New("no configuration file found")

// Flags returns the flag set understood by the tool. Flag names match
// viper keys so they override the config file directly.
func Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet(os.Args[0], pflag.ExitOnError)

	fs.StringP("config", "c", "", "config file")
	fs.String("kernel.path", "", "explicit kernel image, bypasses discovery")
	fs.String("mount.point", "", "boot partition mount point")
	fs.String("log.level", "", "log level")
	fs.String("log.format", "", "log format (text or json)")

	return fs
}

// Load reads the configuration from the explicit --config file, or from
// the default search paths, with flag and environment overrides. An
// unreadable explicit file and an entirely absent config are both fatal.
func Load(flags *pflag.FlagSet, logger *logrus.Logger) (*Config, error) {
	v := viper.New()
	if err := v.BindPFlags(flags); err != nil {
		return nil, err
	}

	v.AutomaticEnv()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if configFile := v.GetString("config"); configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(err, "cannot read config file")
		}
	} else {
		v.SetConfigName(DefaultConfigFile)
		for _, dir := range defaultConfigPaths {
			v.AddConfigPath(dir)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) {
				return nil, ErrConfigMissing
			}
			return nil, errors.Wrap(err, "cannot read config file")
		}
	}
	logger.WithField("file", v.ConfigFileUsed()).Debug("configuration loaded")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "cannot parse configuration")
	}
	return &cfg, nil
}

// ConfigureLogger applies the log section to an existing logger.
func ConfigureLogger(logger *logrus.Logger, cfg *Config) {
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	switch cfg.Log.Format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		fallthrough
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{})
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("manage.enabled", true)
	v.SetDefault("kernel.dir", "/boot")
	v.SetDefault("kernel.prefixes", []string{"vmlinuz", "vmlinux", "bzImage"})
	v.SetDefault("initramfs.tool", "mkinitramfs")
	v.SetDefault("initramfs.confdir", "/etc/initramfs")
	v.SetDefault("osrelease", "/etc/os-release")
	v.SetDefault("efi.enabled", false)
	v.SetDefault("efi.versioned", true)
	v.SetDefault("efi.maxcopies", 2)
	v.SetDefault("efi.embedtool", "objcopy")
	v.SetDefault("components.enabled", true)
	v.SetDefault("components.dir", "/boot")
	v.SetDefault("components.versioned", true)
	v.SetDefault("components.maxcopies", 3)
	v.SetDefault("menu.timeout", 50)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}
