// Command console-admin inspects the console's navigation registry and
// manages console sessions from the command line.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/acme/acct-console/config"
	"github.com/acme/acct-console/internal/bootstrap"
)

// Exit codes.
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

type command struct {
	name        string
	description string
	// offline commands only read the static registry and skip config loading.
	offline bool
	run     func(ctx *commandContext, args []string) error
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
	Out    io.Writer
}

func commands() []command {
	return []command{
		{name: "routes", description: "List every protected route with the roles allowed to reach it", offline: true, run: runRoutes},
		{name: "sidebar", description: "Show the sidebar a role sees, with the active item for a path", offline: true, run: runSidebar},
		{name: "navbar", description: "Show the public navbar as projected for a role", offline: true, run: runNavbar},
		{name: "check", description: "Validate the role navigation registry", offline: true, run: runCheck},
		{name: "whoami", description: "Resolve the identity behind a console session", run: runWhoami},
		{name: "clear-sessions", description: "Delete every console session from Redis", run: runClearSessions},
	}
}

func lookup(name string) (command, bool) {
	for _, c := range commands() {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr, bootstrap.LoadConfig)
	stop()
	os.Exit(code) //nolint:forbidigo // exit status is the CLI's contract with shell scripts
}

// run dispatches args[0] and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer, load func() (config.AppConfig, error)) int {
	logger := slog.New(slog.NewTextHandler(stderr, nil))

	if len(args) == 0 {
		_ = printUsage(stderr)
		return exitUsage
	}
	cmd, ok := lookup(args[0])
	if !ok {
		_ = writef(stderr, "unknown command %q\n\n", args[0])
		_ = printUsage(stderr)
		return exitUsage
	}

	cc := &commandContext{Ctx: ctx, Logger: logger, Out: stdout}
	if !cmd.offline {
		cfg, err := load()
		if err != nil {
			logger.ErrorContext(ctx, "load config", "error", err)
			return exitError
		}
		cc.Config = cfg
	}

	if err := cmd.run(cc, args[1:]); err != nil {
		logger.ErrorContext(ctx, "command failed", "command", cmd.name, "error", err)
		return exitError
	}
	return exitOK
}

func printUsage(w io.Writer) error {
	if err := writef(w, "Usage: console-admin <command> [flags]\n\nAvailable commands:\n"); err != nil {
		return err
	}
	for _, c := range commands() {
		if err := writef(w, "  %-16s %s\n", c.name, c.description); err != nil {
			return err
		}
	}
	return nil
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}
