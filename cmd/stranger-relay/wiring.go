// ABOUTME: Builds protocol client, host and link options from the loaded configuration
// ABOUTME: Shared by serve (goroutine or process links) and the host subcommand

package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/2389/stranger-relay/internal/config"
	"github.com/2389/stranger-relay/internal/host"
	"github.com/2389/stranger-relay/internal/omegle"
	"github.com/2389/stranger-relay/internal/relay"
)

func clientOptions(cfg *config.Config, rec omegle.Recorder, logger *slog.Logger) omegle.Options {
	opts := omegle.Options{
		Servers:        cfg.Service.Servers,
		BaseURL:        cfg.Service.BaseURL,
		LocalAddresses: cfg.Service.LocalAddresses,
		PollInterval:   cfg.Service.PollInterval,
		RequestTimeout: cfg.Service.RequestTimeout,
		Recorder:       rec,
		Logger:         logger,
	}
	if cfg.Service.PollFailureThreshold != nil {
		opts.PollFailureThreshold = *cfg.Service.PollFailureThreshold
	}
	return opts
}

func hostOptions(cfg *config.Config, side string, topics []string, logger *slog.Logger) host.Options {
	return host.Options{
		Side:          side,
		InitialTopics: topics,
		RestartDelay:  cfg.Service.RestartDelay,
		IdleTimeout:   cfg.Service.IdleTimeout,
		Logger:        logger,
	}
}

// topicFlag is the repeatable host flag carrying one topic.
const topicFlag = "--topic"

// hostArgs is the command line of a host subprocess, without its topics.
func hostArgs(side string) []string {
	return []string{"host", "--side", side}
}

// links holds the two host links.
type links struct {
	a, b relay.Link
	// stop shuts both hosts down and waits for them.
	stop func()
}

// startLinks starts both hosts in the configured isolation mode. configPath
// is forwarded to host subprocesses when a file was loaded.
func startLinks(ctx context.Context, cfg *config.Config, configPath string, loaded bool, topics []string, rec omegle.Recorder, logger *slog.Logger) (*links, error) {
	if cfg.Relay.Isolation == config.IsolationProcess {
		return startProcessLinks(ctx, cfg, configPath, loaded, topics, logger)
	}

	ctx, cancel := context.WithCancel(ctx)
	start := func(side string) *host.LocalLink {
		l := logger.With("side", side)
		client := omegle.New(clientOptions(cfg, rec, l))
		return host.StartLocal(ctx, client, hostOptions(cfg, side, topics, l))
	}
	a, b := start(relay.SideA.String()), start(relay.SideB.String())
	return &links{
		a: a,
		b: b,
		stop: func() {
			cancel()
			_ = a.Wait()
			_ = b.Wait()
		},
	}, nil
}

func startProcessLinks(ctx context.Context, cfg *config.Config, configPath string, loaded bool, topics []string, logger *slog.Logger) (*links, error) {
	var env []string
	if loaded {
		abs, err := filepath.Abs(configPath)
		if err != nil {
			return nil, fmt.Errorf("resolving config path: %w", err)
		}
		env = append(env, "RELAY_CONFIG="+abs)
	}

	ctx, cancel := context.WithCancel(ctx)
	start := func(side string) (*host.ProcessLink, error) {
		return host.StartProcess(ctx, host.ProcessOptions{
			Args:         hostArgs(side),
			Topics:       topics,
			TopicFlag:    topicFlag,
			Env:          env,
			RestartDelay: cfg.Service.RestartDelay,
			Logger:       logger.With("side", side),
		})
	}

	a, err := start(relay.SideA.String())
	if err != nil {
		cancel()
		return nil, fmt.Errorf("starting host A: %w", err)
	}
	b, err := start(relay.SideB.String())
	if err != nil {
		cancel()
		a.Wait()
		return nil, fmt.Errorf("starting host B: %w", err)
	}
	return &links{
		a: a,
		b: b,
		stop: func() {
			cancel()
			a.Wait()
			b.Wait()
		},
	}, nil
}

// stringList is a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}
