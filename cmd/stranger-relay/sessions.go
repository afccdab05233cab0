// ABOUTME: sessions command: prints the most recent joint sessions from the ledger
// ABOUTME: Reads the same config as serve to find the database

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/2389/stranger-relay/internal/config"
	"github.com/2389/stranger-relay/internal/store"
)

func runSessions(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("sessions", flag.ContinueOnError)
	limit := fs.Int("n", 20, "number of sessions to show")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, _, err := loadConfig(config.Path())
	if err != nil {
		return err
	}
	if cfg.Database.Path == "" {
		return fmt.Errorf("no database.path configured")
	}

	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening ledger: %w", err)
	}
	defer s.Close()

	sessions, err := s.RecentSessions(ctx, *limit)
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}
	printSessions(os.Stdout, sessions)
	return nil
}

func printSessions(w io.Writer, sessions []*store.Session) {
	if len(sessions) == 0 {
		fmt.Fprintln(w, "No sessions recorded.")
		return
	}

	green := color.New(color.FgGreen)
	gray := color.New(color.FgHiBlack)

	fmt.Fprintf(w, "%-36s  %-19s  %9s  %-16s  %-2s  %s\n", "ID", "STARTED", "DURATION", "REASON", "BY", "TOPICS")
	for _, sess := range sessions {
		duration, reason := "-", "running"
		if sess.EndedAt != nil {
			duration = sess.Duration().Round(time.Second).String()
			reason = string(sess.Reason)
		}
		by := sess.EndedBy
		if by == "" {
			by = "-"
		}
		fmt.Fprintf(w, "%-36s  %-19s  %9s  ", sess.ID, sess.StartedAt.Local().Format("2006-01-02 15:04:05"), duration)
		if sess.EndedAt == nil {
			green.Fprintf(w, "%-16s", reason)
		} else {
			fmt.Fprintf(w, "%-16s", reason)
		}
		fmt.Fprintf(w, "  %-2s  ", by)
		gray.Fprintln(w, strings.Join(sess.Topics, ", "))
	}
}
