// This file is part of bootsmith
// Copyright 2025 The bootsmith Authors
// SPDX-License-Identifier: GPL-3.0-only

package main

import (
	"os"

	"github.com/gookit/color"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/bootsmith/bootsmith/bootmgr"
	"github.com/bootsmith/bootsmith/config"
)

func main() {
	logger := logrus.StandardLogger()
	logger.SetFormatter(&logrus.TextFormatter{})

	flags := config.Flags()
	if err := flags.Parse(os.Args[1:]); err != nil {
		logger.Error(err)
		os.Exit(1)
	}

	cfg, err := config.Load(flags, logger)
	if err != nil {
		logger.WithError(err).Error("cannot load configuration")
		os.Exit(1)
	}
	config.ConfigureLogger(logger, cfg)

	if unix.Getuid() != 0 {
		logger.Warn("not running as root, boot partition writes will likely fail")
	}

	if err := bootmgr.Run(cfg, logger); err != nil {
		color.Red.Printf("bootsmith: %v\n", err)
		os.Exit(1)
	}
	color.Green.Println("bootsmith: boot images up to date")
}
