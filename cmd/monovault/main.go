// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/monovault/lib/config"
	"github.com/bureau-foundation/monovault/lib/vaultfs/fuse"
	"github.com/bureau-foundation/monovault/lib/version"
	"github.com/bureau-foundation/monovault/transport"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		logLevel    string
		showVersion bool
	)
	flagSet := pflag.NewFlagSet("monovault", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to the node config file (default: $"+config.EnvVar+")")
	flagSet.StringVar(&logLevel, "log-level", "info", "minimum log level (debug, info, warn, error)")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if showVersion {
		fmt.Printf("monovault %s\n", version.Info())
		return nil
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return fmt.Errorf("--log-level: %w", err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	n, err := openNode(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer n.Close()

	listener, err := transport.NewTCPListener(cfg.MyAddress, logger)
	if err != nil {
		return err
	}
	defer listener.Close()

	// LIFO defers unmount before the metadata store closes.
	server, err := fuse.Mount(fuse.Options{
		Mountpoint: cfg.MountPoint,
		FS:         n.fs,
		StatfsPath: cfg.DBPath,
		AllowOther: cfg.AllowOther,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("mounting %s: %w", cfg.MountPoint, err)
	}
	defer func() {
		if err := server.Unmount(); err != nil {
			logger.Error("failed to unmount", "mountpoint", cfg.MountPoint, "error", err)
		} else {
			logger.Info("unmounted", "mountpoint", cfg.MountPoint)
		}
	}()

	logger.Info("monovault running",
		"version", version.Info(),
		"vault", cfg.LocalVaultName,
		"address", listener.Address(),
		"mountpoint", cfg.MountPoint,
		"peers", cfg.PeerNames(),
		"share", cfg.ShareLocalVault,
		"relay", cfg.Relay,
	)
	err = n.run(ctx, listener)
	logger.Info("shutting down")
	return err
}
