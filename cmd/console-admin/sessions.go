package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/acme/acct-console/internal/adapters/identityapi"
	redisadapter "github.com/acme/acct-console/internal/adapters/redis"
	"github.com/acme/acct-console/internal/bootstrap"
	domainauth "github.com/acme/acct-console/internal/domain/auth"
	apperrors "github.com/acme/acct-console/internal/errors"
	"github.com/acme/acct-console/internal/ports"
)

var errConfirmationRequired = errors.New("refusing to delete sessions without -yes")

// whoamiResult is the resolved view of one console session.
type whoamiResult struct {
	Session   string               `json:"session"            yaml:"session"`
	Email     string               `json:"email"              yaml:"email"`
	ExpiresAt time.Time            `json:"expires_at"         yaml:"expires_at"`
	SignedIn  bool                 `json:"signed_in"          yaml:"signed_in"`
	Identity  *domainauth.Identity `json:"identity,omitempty" yaml:"identity,omitempty"`
	Cookies   []string             `json:"api_cookies"        yaml:"api_cookies"`
}

//nolint:ireturn // returning redis.UniversalClient keeps sentinel/cluster support flexible.
func connectSessions(ctx *commandContext) (redis.UniversalClient, *redisadapter.SessionStore, error) {
	client, err := bootstrap.ConnectRedis(ctx.Ctx, ctx.Config.Redis, ctx.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	return client, redisadapter.NewSessionStoreWithPrefix(client, ctx.Config.Session.KeyPrefix), nil
}

func runWhoami(ctx *commandContext, args []string) error {
	fs := flag.NewFlagSet("whoami", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	sessionID := fs.String("session", "", "console session ID (the session cookie value)")
	format := formatFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*sessionID) == "" {
		return errors.New("whoami: -session is required")
	}

	client, store, err := connectSessions(ctx)
	if err != nil {
		return err
	}
	defer closeRedis(ctx, client)

	api, err := identityapi.NewClient(identityapi.Options{
		BaseURL:      ctx.Config.API.BaseURL,
		Timeout:      ctx.Config.API.Timeout,
		IdentityExpr: ctx.Config.API.IdentityExpr,
		TokenCookie:  ctx.Config.API.TokenCookie,
		Logger:       ctx.Logger,
	})
	if err != nil {
		return fmt.Errorf("account API client: %w", err)
	}

	res, err := whoami(ctx.Ctx, store, api, *sessionID)
	if err != nil {
		return err
	}
	return render(ctx.Out, *format, res, func(tw *tabwriter.Writer) error {
		return whoamiTable(tw, res)
	})
}

// whoami loads the session and asks the account API who its cookies belong to.
func whoami(ctx context.Context, sessions ports.SessionStore, api ports.AccountAPI, id string) (whoamiResult, error) {
	sess, err := sessions.Get(ctx, id)
	if err != nil {
		return whoamiResult{}, fmt.Errorf("load session %s: %w", id, err)
	}

	res := whoamiResult{Session: sess.ID, Email: sess.Email, ExpiresAt: sess.ExpiresAt}
	for _, c := range sess.Credentials {
		res.Cookies = append(res.Cookies, c.Name)
	}
	if sess.Expired(time.Now()) {
		return res, nil
	}

	identity, err := api.CurrentUser(ctx, sess.Credentials)
	switch {
	case err == nil:
		res.SignedIn = true
		res.Identity = &identity
	case apperrors.IsUnauthenticated(err):
		// credentials no longer accepted upstream
	default:
		return res, fmt.Errorf("fetch identity: %w", err)
	}
	return res, nil
}

func whoamiTable(tw *tabwriter.Writer, res whoamiResult) error {
	rows := [][2]string{
		{"SESSION", res.Session},
		{"EMAIL", res.Email},
		{"EXPIRES", res.ExpiresAt.UTC().Format(time.RFC3339)},
		{"API COOKIES", strings.Join(res.Cookies, ",")},
		{"SIGNED IN", fmt.Sprint(res.SignedIn)},
	}
	if res.Identity != nil {
		rows = append(rows,
			[2]string{"USER ID", res.Identity.ID},
			[2]string{"NAME", res.Identity.Name},
			[2]string{"ROLE", string(res.Identity.Role)},
			[2]string{"STATUS", string(res.Identity.Status)},
		)
	}
	for _, r := range rows {
		if err := writef(tw, "%s\t%s\n", r[0], r[1]); err != nil {
			return err
		}
	}
	return nil
}

func runClearSessions(ctx *commandContext, args []string) error {
	fs := flag.NewFlagSet("clear-sessions", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	yes := fs.Bool("yes", false, "confirm deletion of every console session")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !*yes {
		return errConfirmationRequired
	}

	client, store, err := connectSessions(ctx)
	if err != nil {
		return err
	}
	defer closeRedis(ctx, client)

	return clearSessions(ctx, store)
}

func clearSessions(ctx *commandContext, sweeper ports.SessionSweeper) error {
	n, err := sweeper.DeleteAll(ctx.Ctx)
	if err != nil {
		return fmt.Errorf("clear sessions: %w", err)
	}
	ctx.Logger.InfoContext(ctx.Ctx, "console sessions cleared", "deleted", n)
	return writef(ctx.Out, "deleted %d sessions\n", n)
}

func closeRedis(ctx *commandContext, client redis.UniversalClient) {
	if err := client.Close(); err != nil {
		ctx.Logger.ErrorContext(ctx.Ctx, "close redis failed", "error", err)
	}
}
