// ABOUTME: serve command: wires hosts, orchestrator, moderator channel, ledger and metrics
// ABOUTME: Runs every long-lived component under one errgroup bound to the signal context

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/sync/errgroup"

	"github.com/2389/stranger-relay/internal/config"
	"github.com/2389/stranger-relay/internal/metrics"
	"github.com/2389/stranger-relay/internal/moderator"
	"github.com/2389/stranger-relay/internal/omegle"
	"github.com/2389/stranger-relay/internal/relay"
	"github.com/2389/stranger-relay/internal/store"
)

func runServe(ctx context.Context) error {
	configPath := config.Path()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, loaded, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Logging, os.Stdout)
	slog.SetDefault(logger)

	printStartup(cfg, configPath, loaded)

	var (
		observers []relay.Observer
		traffic   relay.TrafficRecorder
		recorder  omegle.Recorder
		m         *metrics.Metrics
	)
	if cfg.Metrics.Enabled {
		m = metrics.New()
		observers = append(observers, m)
		traffic = m
		recorder = m
	}

	topics, closeStore, err := openLedger(ctx, cfg, logger, &observers)
	if err != nil {
		return err
	}
	defer closeStore()

	var notifier relay.Notifier = newLogNotifier(logger)
	var matrix *moderator.Matrix
	if mc := cfg.Moderator.Matrix; mc.Enabled() {
		matrix, err = moderator.NewMatrix(moderator.MatrixOptions{
			Homeserver:   mc.Homeserver,
			UserID:       mc.UserID,
			AccessToken:  mc.AccessToken,
			RoomID:       mc.RoomID,
			Prefix:       cfg.Moderator.CommandPrefix,
			AllowedUsers: mc.AllowedUsers,
			Personas:     personas(cfg.Moderator.Personas),
			RoomTopic:    cfg.Moderator.RoomTopic,
			Logger:       logger,
		})
		if err != nil {
			return fmt.Errorf("creating matrix channel: %w", err)
		}
		notifier = matrix
		observers = append(observers, matrix)
	} else {
		logger.Warn("no matrix homeserver configured; notices go to the log and commands are disabled")
	}

	hosts, err := startLinks(ctx, cfg, configPath, loaded, topics, recorder, logger)
	if err != nil {
		return err
	}
	defer hosts.stop()

	orch := relay.New(relay.Options{
		A:         hosts.a,
		B:         hosts.b,
		Notifier:  notifier,
		Observers: observers,
		Traffic:   traffic,
		Topics:    topics,
		Logger:    logger,
	})

	logger.Info("starting stranger-relay",
		"config", configPath,
		"isolation", cfg.Relay.Isolation,
		"topics", topics,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := orch.Run(gctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	if matrix != nil {
		g.Go(func() error { return matrix.Run(gctx, orch) })
	}
	if m != nil {
		g.Go(func() error { return m.Serve(gctx, cfg.Metrics.Addr, cfg.Metrics.Path, logger) })
	}

	err = g.Wait()
	logger.Info("stranger-relay stopped")
	return err
}

// openLedger opens the session ledger when a database path is configured,
// registers it as an observer and returns the persisted topics.
func openLedger(ctx context.Context, cfg *config.Config, logger *slog.Logger, observers *[]relay.Observer) ([]string, func(), error) {
	if cfg.Database.Path == "" {
		return nil, func() {}, nil
	}
	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening ledger: %w", err)
	}
	topics, err := s.Topics(ctx)
	if err != nil {
		logger.Warn("loading persisted topics", "error", err)
		topics = nil
	}
	*observers = append(*observers, store.NewLedger(s, logger))
	return topics, func() { _ = s.Close() }, nil
}

func personas(cfg config.PersonasConfig) moderator.Personas {
	profile := func(p config.PersonaConfig) moderator.Profile {
		return moderator.Profile{Name: p.Name, AvatarURL: p.Icon}
	}
	return moderator.Personas{
		Relay: profile(cfg.Relay),
		A:     profile(cfg.A),
		B:     profile(cfg.B),
	}
}

func printStartup(cfg *config.Config, configPath string, loaded bool) {
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	gray := color.New(color.FgHiBlack)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s", configPath)
	if !loaded {
		yellow.Print(" (not found, using defaults)")
	}
	fmt.Println()

	green.Print("    ▶ ")
	switch {
	case cfg.Service.BaseURL != "":
		fmt.Printf("Service:   %s\n", cfg.Service.BaseURL)
	case len(cfg.Service.Servers) > 0:
		fmt.Printf("Service:   %s\n", strings.Join(cfg.Service.Servers, ", "))
	default:
		fmt.Printf("Service:   %d default servers\n", len(omegle.DefaultServers))
	}

	green.Print("    ▶ ")
	fmt.Printf("Isolation: %s\n", cfg.Relay.Isolation)

	green.Print("    ▶ ")
	if cfg.Moderator.Matrix.Enabled() {
		fmt.Printf("Matrix:    %s ", cfg.Moderator.Matrix.RoomID)
		gray.Printf("(%s)\n", cfg.Moderator.Matrix.Homeserver)
	} else {
		fmt.Print("Matrix:    ")
		yellow.Println("disabled")
	}

	if cfg.Database.Path != "" {
		green.Print("    ▶ ")
		fmt.Printf("Ledger:    %s\n", cfg.Database.Path)
	}
	if cfg.Metrics.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Metrics:   http://%s%s\n", cfg.Metrics.Addr, cfg.Metrics.Path)
	}
	fmt.Println()
}
