// ABOUTME: Minimal fake chat service for local runs: every stranger is a canned echo bot.
// ABOUTME: Usage: fake-chatservice [-addr 127.0.0.1:8099] [-likes go,chess] [-greeting hi] [-max-replies 5]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/2389/stranger-relay/internal/omegle/omegletest"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:8099", "listen address")
	likes := flag.String("likes", "", "comma-separated topics every stranger likes")
	greeting := flag.String("greeting", "hi!", "first message from every stranger (empty for none)")
	maxReplies := flag.Int("max-replies", 0, "disconnect after this many replies (0 never)")
	flag.Parse()

	bot := omegletest.Bot{
		Greeting:   *greeting,
		Likes:      splitList(*likes),
		MaxReplies: *maxReplies,
	}
	if err := run(*addr, bot); err != nil {
		log.Fatal(err)
	}
}

func run(addr string, bot omegletest.Bot) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	srv := &http.Server{
		Handler:           omegletest.NewBotServer(bot),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	fmt.Fprintf(os.Stderr, "fake chat service on http://%s (likes: %v)\n", ln.Addr(), bot.Likes)
	fmt.Fprintf(os.Stderr, "point service.base_url at it to run the relay locally\n")
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving: %w", err)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
