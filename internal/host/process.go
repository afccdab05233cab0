// ABOUTME: Process links run a host in a child process speaking JSON-lines Envelopes
// ABOUTME: A child that exits unexpectedly is reported as CONNECTION_ERROR and respawned

package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"slices"
	"sync"
	"time"

	"github.com/2389/stranger-relay/internal/envelope"
)

// shutdownGrace is how long a child gets to disconnect after its stdin closes.
const shutdownGrace = 10 * time.Second

// ProcessOptions configures a ProcessLink.
type ProcessOptions struct {
	// Path is the executable to run. Empty means the current executable.
	Path string
	// Args are passed to the executable, for example {"host", "--side", "A"}.
	Args []string
	// Topics are the starting topics. Each spawn appends them to Args as
	// TopicFlag pairs, so a respawned child keeps the latest SET_TOPICS.
	Topics    []string
	TopicFlag string
	// Env is appended to the parent environment.
	Env []string
	// RestartDelay is the pause before respawning a crashed child.
	RestartDelay time.Duration
	// Stderr receives the child's logs. Nil means os.Stderr.
	Stderr io.Writer
	Logger *slog.Logger
}

// ProcessLink runs a host as a child process.
type ProcessLink struct {
	opts   ProcessOptions
	logger *slog.Logger
	events chan envelope.Envelope

	mu     sync.Mutex
	enc    *envelope.Encoder // nil while no child is running
	topics []string

	done chan struct{}
}

// StartProcess spawns the child and supervises it until ctx is cancelled.
// Only the first spawn failure is returned; later ones are reported as
// CONNECTION_ERROR.
func StartProcess(ctx context.Context, opts ProcessOptions) (*ProcessLink, error) {
	if opts.Path == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolving executable: %w", err)
		}
		opts.Path = exe
	}
	if opts.RestartDelay <= 0 {
		opts.RestartDelay = DefaultRestartDelay
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	l := &ProcessLink{
		opts:   opts,
		logger: logger.With("component", "process_link"),
		events: make(chan envelope.Envelope, linkBuffer),
		topics: slices.Clone(opts.Topics),
		done:   make(chan struct{}),
	}

	cmd, stdout, err := l.spawn(ctx)
	if err != nil {
		return nil, err
	}
	go l.supervise(ctx, cmd, stdout)
	return l, nil
}

// Send writes env to the child's stdin. SET_TOPICS is remembered even when
// no child is running.
func (l *ProcessLink) Send(ctx context.Context, env envelope.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if env.Kind() == envelope.KindSetTopics {
		l.topics = env.Items()
	}
	if l.enc == nil {
		return ErrLinkClosed
	}
	if err := l.enc.Encode(env); err != nil {
		return fmt.Errorf("writing to host process: %w", err)
	}
	return nil
}

// Events returns Envelopes read from the child's stdout.
func (l *ProcessLink) Events() <-chan envelope.Envelope {
	return l.events
}

// Wait blocks until supervision has stopped and the last child has exited.
func (l *ProcessLink) Wait() {
	<-l.done
}

func (l *ProcessLink) args() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	args := slices.Clone(l.opts.Args)
	if l.opts.TopicFlag == "" {
		return args
	}
	for _, t := range l.topics {
		args = append(args, l.opts.TopicFlag, t)
	}
	return args
}

func (l *ProcessLink) spawn(ctx context.Context) (*exec.Cmd, io.ReadCloser, error) {
	args := l.args()
	cmd := exec.CommandContext(ctx, l.opts.Path, args...)
	cmd.Env = append(os.Environ(), l.opts.Env...)
	cmd.Stderr = l.opts.Stderr
	cmd.WaitDelay = shutdownGrace

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("opening host stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("opening host stdout: %w", err)
	}
	// Closing stdin asks the child to disconnect and exit; WaitDelay kills it
	// if it does not.
	cmd.Cancel = func() error {
		return stdin.Close()
	}

	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("starting host process: %w", err)
	}

	l.mu.Lock()
	l.enc = envelope.NewEncoder(stdin)
	l.mu.Unlock()

	l.logger.Info("host process started", "pid", cmd.Process.Pid, "args", args)
	return cmd, stdout, nil
}

func (l *ProcessLink) supervise(ctx context.Context, cmd *exec.Cmd, stdout io.ReadCloser) {
	defer close(l.done)

	for {
		if err := l.read(ctx, stdout); err != nil {
			// Nothing reads stdout any more, so the child could block writing.
			l.logger.Error("reading from host process", "pid", cmd.Process.Pid, "error", err)
			_ = cmd.Process.Kill()
		}
		err := cmd.Wait()

		l.mu.Lock()
		l.enc = nil
		l.mu.Unlock()

		if ctx.Err() != nil {
			l.logger.Info("host process stopped", "error", err)
			return
		}
		l.logger.Error("host process exited unexpectedly", "error", err)

		for {
			l.emit(ctx, envelope.Signal(envelope.KindConnectionError))
			select {
			case <-ctx.Done():
				return
			case <-time.After(l.opts.RestartDelay):
			}
			cmd, stdout, err = l.spawn(ctx)
			if err == nil {
				break
			}
			l.logger.Error("respawning host process", "error", err)
		}
	}
}

// read forwards decoded Envelopes until the child's stdout closes. It
// returns nil at EOF and the stream error otherwise.
func (l *ProcessLink) read(ctx context.Context, stdout io.Reader) error {
	dec := envelope.NewDecoder(stdout)
	for {
		env, err := dec.Decode()
		if err != nil {
			var decErr *envelope.DecodeError
			if errors.As(err, &decErr) {
				l.logger.Warn("dropping malformed envelope from host", "line", decErr.Line, "error", decErr.Err)
				continue
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		l.emit(ctx, env)
	}
}

func (l *ProcessLink) emit(ctx context.Context, env envelope.Envelope) {
	select {
	case l.events <- env:
	case <-ctx.Done():
	}
}

// ServeStdio runs a Host that reads control Envelopes from r and writes its
// Envelopes to w. It returns when r reaches EOF or ctx is cancelled. This is
// the child side of a ProcessLink.
func ServeStdio(ctx context.Context, r io.Reader, w io.Writer, client SessionClient, opts Options) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "stdio", "side", opts.Side)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	in := make(chan envelope.Envelope, linkBuffer)
	out := make(chan envelope.Envelope, linkBuffer)

	go func() {
		defer close(in)
		dec := envelope.NewDecoder(r)
		for {
			env, err := dec.Decode()
			if err != nil {
				var decErr *envelope.DecodeError
				if errors.As(err, &decErr) {
					logger.Warn("dropping malformed envelope", "line", decErr.Line, "error", decErr.Err)
					continue
				}
				if !errors.Is(err, io.EOF) {
					logger.Error("reading control envelopes", "error", err)
				}
				return
			}
			select {
			case in <- env:
			case <-ctx.Done():
				return
			}
		}
	}()

	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		enc := envelope.NewEncoder(w)
		for {
			select {
			case env := <-out:
				if err := enc.Encode(env); err != nil {
					logger.Error("writing envelope", "error", err)
				}
			case <-ctx.Done():
				// Flush what the host emitted before it stopped.
				for {
					select {
					case env := <-out:
						_ = enc.Encode(env)
					default:
						return
					}
				}
			}
		}
	}()

	err := New(client, opts).Run(ctx, in, out)
	cancel()
	<-writeDone
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
