// ABOUTME: host command: runs one chat session and exchanges Envelopes over stdin/stdout
// ABOUTME: Spawned by serve when relay.isolation is "process"

package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/2389/stranger-relay/internal/config"
	"github.com/2389/stranger-relay/internal/host"
	"github.com/2389/stranger-relay/internal/omegle"
)

func runHost(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("host", flag.ContinueOnError)
	side := fs.String("side", "", "side this host plays (A or B)")
	var topics stringList
	fs.Var(&topics, "topic", "topic for the first connect (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *side != "A" && *side != "B" {
		return fmt.Errorf("--side must be A or B, got %q", *side)
	}

	cfg, _, err := loadConfig(config.Path())
	if err != nil {
		return err
	}

	// stdout carries Envelopes.
	logger := setupLogger(cfg.Logging, os.Stderr).With("side", *side, "pid", os.Getpid())

	client := omegle.New(clientOptions(cfg, nil, logger))
	logger.Info("host process started")
	return host.ServeStdio(ctx, os.Stdin, os.Stdout, client, hostOptions(cfg, *side, topics, logger))
}
