// ABOUTME: Entry point for stranger-relay
// ABOUTME: Dispatches to serve (the relay), host (one isolated session over stdio) and sessions (ledger listing)

package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/2389/stranger-relay/internal/config"
)

// Version is set at build time.
var version = "dev"

const banner = `
     _                                                 _
 ___| |_ _ __ __ _ _ __   __ _  ___ _ __      _ __ ___| | __ _ _   _
/ __| __| '__/ _' | '_ \ / _' |/ _ \ '__|____| '__/ _ \ |/ _' | | | |
\__ \ |_| | | (_| | | | | (_| |  __/ | |_____| | |  __/ | (_| | |_| |
|___/\__|_|  \__,_|_| |_|\__, |\___|_|       |_|  \___|_|\__,_|\__, |
                         |___/                                 |___/
`

func usage() {
	fmt.Println("Usage: stranger-relay [command]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                      Run the relay (default)")
	fmt.Println("  host --side A|B [--topic]  Serve one chat session over stdin/stdout")
	fmt.Println("  sessions [-n N]            List recent joint sessions from the ledger")
}

func main() {
	// A missing .env is fine.
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cmd, args := "serve", []string(nil)
	if len(os.Args) > 1 {
		cmd, args = os.Args[1], os.Args[2:]
	}

	var err error
	switch cmd {
	case "serve":
		err = runServe(ctx)
	case "host":
		err = runHost(ctx, args)
	case "sessions":
		err = runSessions(ctx, args)
	case "help", "-h", "--help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads path, falling back to defaults when the file does not
// exist. The bool reports whether a file was read.
func loadConfig(path string) (*config.Config, bool, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return config.Default(), false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("loading config from %s: %w", path, err)
	}
	return cfg, true, nil
}
