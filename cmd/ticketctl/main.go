// Command ticketctl is a terminal front end for the ticket booking client.
//
//	ticketctl [--config FILE] [--api-url URL] [-v] <command> [args]
//
// The session credential is kept in the configured credential store, so a
// login survives between invocations.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/Ayaanthaher/ticket-booking/internal/apiclient"
	"github.com/Ayaanthaher/ticket-booking/internal/app"
	"github.com/Ayaanthaher/ticket-booking/internal/config"
	"github.com/Ayaanthaher/ticket-booking/internal/notify"
	"github.com/Ayaanthaher/ticket-booking/internal/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// env is what a command runs against.
type env struct {
	ctx    context.Context
	app    *app.App
	in     *bufio.Reader
	stdin  io.Reader
	out    io.Writer
	errOut io.Writer
	logger *slog.Logger
}

type command struct {
	summary string
	run     func(e *env, args []string) error
}

var commands = map[string]command{
	"login":    {summary: "sign in and store the session credential", run: runLogin},
	"logout":   {summary: "sign out and forget the stored credential", run: runLogout},
	"whoami":   {summary: "show the signed-in account", run: runWhoami},
	"events":   {summary: "list bookable events", run: runEvents},
	"book":     {summary: "reserve tickets for an event", run: runBook},
	"bookings": {summary: "show your bookings, newest first", run: runBookings},
	"profile":  {summary: "update your name or email", run: runProfile},
	"admin":    {summary: "administer events and view stats (admins only)", run: runAdmin},
}

// reportedError marks a failure the notification sink has already shown.
type reportedError struct{ err error }

func (r reportedError) Error() string { return r.err.Error() }
func (r reportedError) Unwrap() error { return r.err }

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	textLogs := isTerminal(stderr)
	stdout = &lockedWriter{w: stdout}
	stderr = &lockedWriter{w: stderr}

	var (
		configPath string
		apiURL     string
		verbose    bool
	)
	flags := pflag.NewFlagSet("ticketctl", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.SetInterspersed(false)
	flags.StringVarP(&configPath, "config", "c", "", "YAML config file (default $"+config.FileEnv+")")
	flags.StringVar(&apiURL, "api-url", "", "override the API base URL")
	flags.BoolVarP(&verbose, "verbose", "v", false, "log at debug level")
	flags.Usage = func() { usage(stderr, flags) }

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}
	if flags.NArg() == 0 {
		flags.Usage()
		return 2
	}
	name := flags.Arg(0)
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n", name)
		flags.Usage()
		return 2
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}
	if apiURL != "" {
		cfg.APIURL = apiURL
	}
	level, _ := cfg.SlogLevel()
	if verbose {
		level = slog.LevelDebug
	}
	logger := newLogger(stderr, level, textLogs).With("command", name)

	shutdown, err := telemetry.Setup(ctx, "ticketctl", cfg.OTelURL, cfg.OTelEnabled)
	if err != nil {
		logger.Warn("tracing disabled", "error", err)
	}
	defer func() { _ = shutdown(context.WithoutCancel(ctx)) }()

	notices := notify.NewQueue(consoleSink{w: stdout}, 0, logger)
	a, err := app.New(ctx, cfg, app.Deps{
		Notifier: notices,
		Loader:   notify.LoaderFunc(func(busy bool) { logger.Debug("busy", "busy", busy) }),
		Logger:   logger,
	})
	if err != nil {
		notices.Close()
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}

	e := &env{
		ctx:    ctx,
		app:    a,
		in:     bufio.NewReader(stdin),
		stdin:  stdin,
		out:    stdout,
		errOut: stderr,
		logger: logger,
	}
	err = cmd.run(e, flags.Args()[1:])
	notices.Close()
	if cerr := a.Close(); cerr != nil {
		logger.Warn("close credential store", "error", cerr)
	}

	var reported reportedError
	switch {
	case err == nil:
		return 0
	case errors.Is(err, pflag.ErrHelp):
		return 0
	case errors.As(err, &reported):
		return 1
	default:
		fmt.Fprintf(stderr, "error: %s\n", apiclient.Message(err))
		return 1
	}
}

func usage(w io.Writer, flags *pflag.FlagSet) {
	fmt.Fprintln(w, "usage: ticketctl [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "commands:")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-10s %s\n", name, commands[name].summary)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "flags:")
	fmt.Fprint(w, flags.FlagUsages())
}

// newLogger writes text to a terminal and JSON otherwise.
func newLogger(w io.Writer, level slog.Level, text bool) *slog.Logger {
	options := &slog.HandlerOptions{Level: level}
	if text {
		return slog.New(slog.NewTextHandler(w, options))
	}
	return slog.New(slog.NewJSONHandler(w, options))
}

func isTerminal(w any) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// consoleSink prints notifications one per line.
type consoleSink struct {
	w io.Writer
}

func (s consoleSink) Notify(message string, kind notify.Kind) {
	mark := "✓"
	if kind == notify.Failure {
		mark = "✗"
	}
	fmt.Fprintf(s.w, "%s %s\n", mark, message)
}

// lockedWriter serialises writes from the notice queue and the command.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
