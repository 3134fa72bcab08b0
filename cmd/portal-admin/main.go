package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spie-ics/meraki-captive-portal/config"
	redisadapter "github.com/spie-ics/meraki-captive-portal/internal/adapters/redis"
	"github.com/spie-ics/meraki-captive-portal/internal/bootstrap"
	domainauth "github.com/spie-ics/meraki-captive-portal/internal/domain/auth"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
	Out    io.Writer
	In     io.Reader
}

func main() {
	logger := bootstrap.InitLogger()

	if len(os.Args) < 2 {
		if err := printUsage(os.Stdout); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when no command is provided
	}

	cmdName := os.Args[1]
	cmd, ok := commands()[cmdName]
	if !ok {
		if err := writef(os.Stderr, "unknown command %q\n\n", cmdName); err != nil {
			logger.Error("print unknown command message failed", "error", err)
		}
		if err := printUsage(os.Stderr); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when command is unknown
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.ErrorContext(context.Background(), "load config", "error", err)
		os.Exit(1) //nolint:forbidigo // CLI must signal configuration load failure to shell scripts
	}

	cmdCtx := &commandContext{
		Ctx:    context.Background(),
		Logger: logger,
		Config: cfg,
		Out:    os.Stdout,
		In:     os.Stdin,
	}
	if runErr := cmd.run(cmdCtx, os.Args[2:]); runErr != nil {
		logger.ErrorContext(cmdCtx.Ctx, "command failed", "command", cmdName, "error", runErr)
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func commands() map[string]command {
	return map[string]command{
		"list-sessions": {
			name:        "list-sessions",
			description: "Inspect portal sessions stored in Redis",
			run:         runListSessions,
		},
		"clear-sessions": {
			name:        "clear-sessions",
			description: "Delete every portal session stored in Redis",
			run:         runClearSessions,
		},
		"check-redirect": {
			name:        "check-redirect",
			description: "Check URLs against the trusted redirect domain",
			run:         runCheckRedirect,
		},
		"check-oidc": {
			name:        "check-oidc",
			description: "Fetch OIDC authority metadata with the configured credentials",
			run:         runCheckOIDC,
		},
	}
}

func printUsage(w io.Writer) error {
	if err := writef(w, "Usage: portal-admin <command> [flags]\n\n"); err != nil {
		return err
	}
	if err := writef(w, "Available commands:\n"); err != nil {
		return err
	}
	names := make([]string, 0, len(commands()))
	for name := range commands() {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c := commands()[name]
		if err := writef(w, "  %-24s %s\n", c.name, c.description); err != nil {
			return err
		}
	}
	return nil
}

type listOptions struct {
	Limit int
}

type clearOptions struct {
	DryRun bool
	Yes    bool
}

func parseListFlags(args []string) (listOptions, error) {
	fs := flag.NewFlagSet("list-sessions", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts listOptions
	fs.IntVar(&opts.Limit, "limit", 50, "Maximum sessions to print (0 for all)")
	if err := fs.Parse(args); err != nil {
		return listOptions{}, err
	}
	if opts.Limit < 0 {
		return listOptions{}, errors.New("--limit must be >= 0")
	}
	return opts, nil
}

func parseClearFlags(args []string) (clearOptions, error) {
	fs := flag.NewFlagSet("clear-sessions", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts clearOptions
	fs.BoolVar(&opts.DryRun, "dry-run", false, "Count sessions without deleting")
	fs.BoolVar(&opts.Yes, "yes", false, "Skip confirmation prompt")
	if err := fs.Parse(args); err != nil {
		return clearOptions{}, err
	}
	return opts, nil
}

// openSessionStore connects to Redis; the returned func closes the client.
func openSessionStore(cmdCtx *commandContext) (*redisadapter.SessionStore, func(), error) {
	if cmdCtx.Config.Session.Store != config.SessionStoreRedis {
		return nil, nil, fmt.Errorf("session store is %q; only redis sessions can be inspected", cmdCtx.Config.Session.Store)
	}
	client, err := bootstrap.ConnectRedis(cmdCtx.Ctx, bootstrap.RedisConnConfig{
		Redis:  cmdCtx.Config.Redis,
		Logger: cmdCtx.Logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	closeFn := func() {
		if closeErr := client.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("redis close failed", "error", closeErr)
		}
	}
	return redisadapter.NewSessionStoreWithPrefix(client, cmdCtx.Config.Session.KeyPrefix), closeFn, nil
}

func runListSessions(cmdCtx *commandContext, args []string) error {
	opts, err := parseListFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, time.Minute)
	defer cancel()

	store, closeFn, err := openSessionStore(cmdCtx)
	if err != nil {
		return err
	}
	defer closeFn()

	entries, total, err := store.List(ctx, opts.Limit)
	if err != nil {
		return err
	}
	return renderSessionTable(cmdCtx.Out, entries, total)
}

func renderSessionTable(w io.Writer, entries []redisadapter.SessionEntry, total int) error {
	if len(entries) == 0 {
		return writeln(w, "No sessions found.")
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Session.ExpiresAt.Before(entries[j].Session.ExpiresAt)
	})

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "SESSION ID\tSTATE\tUSERNAME\tEXPIRES (UTC)\tTTL"); err != nil {
		return fmt.Errorf("write sessions header row: %w", err)
	}
	for _, e := range entries {
		if err := writef(tw, "%s\t%s\t%s\t%s\t%s\n",
			e.Session.ID,
			sessionState(e),
			orDash(e.Session.Username()),
			formatTimestamp(e.Session.ExpiresAt),
			formatTTL(e.TTL),
		); err != nil {
			return fmt.Errorf("write sessions row: %w", err)
		}
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush sessions table: %w", err)
	}
	if total > len(entries) {
		return writef(w, "\nShowing %d of %d sessions.\n", len(entries), total)
	}
	return nil
}

func sessionState(e redisadapter.SessionEntry) string {
	switch {
	case e.Corrupt:
		return "corrupt"
	case e.Session.IsAuthenticated:
		return "authenticated"
	case e.Session.Pending():
		return "pending"
	default:
		return "anonymous"
	}
}

func runClearSessions(cmdCtx *commandContext, args []string) error {
	opts, err := parseClearFlags(args)
	if err != nil {
		return err
	}
	if confirmErr := confirmAction(cmdCtx, opts, "delete all portal sessions; signed-in guests must sign in again"); confirmErr != nil {
		return confirmErr
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, 2*time.Minute)
	defer cancel()

	store, closeFn, err := openSessionStore(cmdCtx)
	if err != nil {
		return err
	}
	defer closeFn()

	n, err := store.Purge(ctx, opts.DryRun)
	if err != nil {
		return err
	}
	cmdCtx.Logger.Info("clear sessions complete", "prefix", store.Prefix(), "matched", n, "dry_run", opts.DryRun)
	return nil
}

func confirmAction(cmdCtx *commandContext, opts clearOptions, action string) error {
	if opts.DryRun || opts.Yes {
		return nil
	}
	if err := writef(cmdCtx.Out, "About to %s.\nContinue? [y/N]: ", action); err != nil {
		return fmt.Errorf("print confirmation prompt: %w", err)
	}
	resp, err := bufio.NewReader(cmdCtx.In).ReadString('\n')
	if err != nil && resp == "" {
		return errors.New("aborted by user")
	}
	resp = strings.ToLower(strings.TrimSpace(resp))
	if resp == "y" || resp == "yes" {
		return nil
	}
	return errors.New("aborted by user")
}

func runCheckRedirect(cmdCtx *commandContext, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: portal-admin check-redirect <url> [url...]")
	}
	validator := domainauth.NewRedirectValidator(cmdCtx.Config.Auth.TrustedRedirectDomain)
	if err := writef(cmdCtx.Out, "Trusted domain: %s\n", orDash(validator.TrustedDomain())); err != nil {
		return err
	}

	rejected := 0
	for _, raw := range args {
		verdict := "allowed"
		if err := validator.ValidateRedirectTarget(raw); err != nil {
			verdict = "rejected: " + err.Error()
			rejected++
		}
		if err := writef(cmdCtx.Out, "  %s  %s\n", raw, verdict); err != nil {
			return err
		}
	}
	if rejected > 0 {
		return fmt.Errorf("%d of %d URLs rejected", rejected, len(args))
	}
	return nil
}

func runCheckOIDC(cmdCtx *commandContext, _ []string) error {
	if cmdCtx.Config.Auth.Mode != config.AuthModeOAuth {
		return fmt.Errorf("auth mode is %q; nothing to check", cmdCtx.Config.Auth.Mode)
	}
	providers, err := bootstrap.BuildIdentityProvider(cmdCtx.Config.Auth)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, 30*time.Second)
	defer cancel()

	if err := providers.OIDC.Warm(ctx); err != nil {
		return fmt.Errorf("fetch metadata for %s: %w", providers.OIDC.Issuer(), err)
	}
	return writef(cmdCtx.Out, "OIDC metadata OK\n  issuer:      %s\n  redirect:    %s\n  end session: %s\n",
		providers.OIDC.Issuer(),
		cmdCtx.Config.Auth.RedirectURI(),
		providers.OIDC.EndSessionURL(cmdCtx.Config.Auth.PostLogoutRedirectURI()),
	)
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTTL(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(time.Second).String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func writeln(w io.Writer, args ...any) error {
	_, err := fmt.Fprintln(w, args...)
	return err
}
