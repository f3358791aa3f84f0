package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"text/tabwriter"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/acme/acct-console/config"
	domainauth "github.com/acme/acct-console/internal/domain/auth"
	"github.com/acme/acct-console/internal/domain/nav"
	mocks "github.com/acme/acct-console/internal/mocks/auth"
	"github.com/acme/acct-console/internal/testutil"
)

func newTestContext() (*commandContext, *bytes.Buffer) {
	var out bytes.Buffer
	return &commandContext{
		Ctx:    context.Background(),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Out:    &out,
	}, &out
}

func TestRunRoutes(t *testing.T) {
	t.Run("table", func(t *testing.T) {
		ctx, out := newTestContext()
		require.NoError(t, runRoutes(ctx, nil))

		lines := strings.Split(strings.TrimSpace(out.String()), "\n")
		require.Len(t, lines, 5)
		assert.Contains(t, lines[0], "PATH")
		assert.Contains(t, lines[1], "/admin/analytics")
		assert.Contains(t, lines[1], "SUPER_ADMIN,ADMIN,USER")
		assert.Contains(t, lines[2], "/admin/manage-user")
		assert.True(t, strings.HasSuffix(strings.TrimSpace(lines[2]), "SUPER_ADMIN,ADMIN"))
	})

	t.Run("json", func(t *testing.T) {
		ctx, out := newTestContext()
		require.NoError(t, runRoutes(ctx, []string{"-format", "json"}))

		var rows []routeRow
		require.NoError(t, json.Unmarshal(out.Bytes(), &rows))
		require.Len(t, rows, 4)
		assert.Equal(t, nav.ScreenKey("manage-user"), rows[1].Screen)
		assert.Equal(t, []domainauth.Role{domainauth.RoleSuperAdmin, domainauth.RoleAdmin}, rows[1].Roles)
	})

	t.Run("yaml", func(t *testing.T) {
		ctx, out := newTestContext()
		require.NoError(t, runRoutes(ctx, []string{"-format=yaml"}))

		var rows []routeRow
		require.NoError(t, yaml.Unmarshal(out.Bytes(), &rows))
		require.Len(t, rows, 4)
		assert.Equal(t, "/admin/profile", rows[3].Path)
	})

	t.Run("unknown format", func(t *testing.T) {
		ctx, _ := newTestContext()
		assert.ErrorContains(t, runRoutes(ctx, []string{"-format", "xml"}), "unknown format")
	})
}

func TestRunSidebar(t *testing.T) {
	ctx, out := newTestContext()
	require.NoError(t, runSidebar(ctx, []string{"-role", "user", "-path", "/admin/profile", "-format", "json"}))

	var groups []nav.SidebarGroup
	require.NoError(t, json.Unmarshal(out.Bytes(), &groups))
	require.Len(t, groups, 1)
	assert.Equal(t, "Dashboard", groups[0].Title)
	require.Len(t, groups[0].Items, 3)
	for _, it := range groups[0].Items {
		assert.NotEqual(t, "/admin/manage-user", it.Path)
		assert.Equal(t, it.Path == "/admin/profile", it.IsActive)
	}

	ctx, _ = newTestContext()
	assert.ErrorContains(t, runSidebar(ctx, nil), "-role")
	assert.ErrorContains(t, runSidebar(ctx, []string{"-role", "ROOT"}), "-role")
}

func TestRunNavbar(t *testing.T) {
	ctx, out := newTestContext()
	require.NoError(t, runNavbar(ctx, []string{"-path", "/about"}))
	assert.NotContains(t, out.String(), "Dashboard")
	assert.Contains(t, out.String(), "/about")

	ctx, out = newTestContext()
	require.NoError(t, runNavbar(ctx, []string{"-role", "ADMIN", "-format", "json"}))
	var groups []nav.SidebarGroup
	require.NoError(t, json.Unmarshal(out.Bytes(), &groups))
	require.Len(t, groups, 1)
	require.Len(t, groups[0].Items, 6)
	assert.Equal(t, "/admin/analytics", groups[0].Items[5].Path)

	ctx, _ = newTestContext()
	assert.Error(t, runNavbar(ctx, []string{"-role", "nobody"}))
}

func TestRunCheck(t *testing.T) {
	ctx, out := newTestContext()
	require.NoError(t, runCheck(ctx, nil))
	assert.Equal(t, "OK 4 routes across 3 roles\n", out.String())
}

func TestWhoami(t *testing.T) {
	api := mocks.NewFakeAccountAPI(mocks.FakeAccount{
		User:     domainauth.User{ID: "u-1", Name: "Ada", Email: "ada@example.com", Role: domainauth.RoleAdmin},
		Password: "secret",
	})
	sessions := mocks.NewMemorySessionStore()
	ctx := context.Background()

	live := testutil.NewSession().WithID("live").WithEmail("ada@example.com").
		WithCredentials(api.TokenFor("ada@example.com")...).ExpiresIn(time.Hour).Build()
	require.NoError(t, sessions.Save(ctx, live))

	res, err := whoami(ctx, sessions, api, "live")
	require.NoError(t, err)
	assert.True(t, res.SignedIn)
	require.NotNil(t, res.Identity)
	assert.Equal(t, domainauth.RoleAdmin, res.Identity.Role)
	assert.Equal(t, []string{mocks.CredentialCookie}, res.Cookies)

	revoked := testutil.NewSession().WithID("revoked").WithEmail("ada@example.com").
		WithCredentials(domainauth.APICookie{Name: mocks.CredentialCookie, Value: "stale"}).ExpiresIn(time.Hour).Build()
	require.NoError(t, sessions.Save(ctx, revoked))
	res, err = whoami(ctx, sessions, api, "revoked")
	require.NoError(t, err)
	assert.False(t, res.SignedIn)
	assert.Nil(t, res.Identity)

	_, err = whoami(ctx, sessions, api, "missing")
	assert.Error(t, err)

	res, err = whoami(ctx, sessions, api, "live")
	require.NoError(t, err)
	var out bytes.Buffer
	require.NoError(t, render(&out, formatTable, res, func(tw *tabwriter.Writer) error {
		return whoamiTable(tw, res)
	}))
	assert.Contains(t, out.String(), "ROLE")
	assert.Contains(t, out.String(), "ADMIN")
	assert.Contains(t, out.String(), "ada@example.com")
}

func TestClearSessions(t *testing.T) {
	ctx, out := newTestContext()
	assert.ErrorIs(t, runClearSessions(ctx, nil), errConfirmationRequired)

	sessions := mocks.NewMemorySessionStore()
	for _, id := range []string{"a", "b"} {
		require.NoError(t, sessions.Save(ctx.Ctx, testutil.NewSession().WithID(id).Build()))
	}
	require.NoError(t, clearSessions(ctx, sessions))
	assert.Equal(t, "deleted 2 sessions\n", out.String())
	assert.Equal(t, 0, sessions.Len())
}

func TestPrintUsage(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, printUsage(&out))
	for _, c := range commands() {
		assert.Contains(t, out.String(), c.name)
	}
}

func TestRun(t *testing.T) {
	failLoad := func() (config.AppConfig, error) { return config.AppConfig{}, errors.New("no env") }

	t.Run("no command", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		assert.Equal(t, exitUsage, run(context.Background(), nil, &stdout, &stderr, failLoad))
		assert.Contains(t, stderr.String(), "Usage: console-admin")
	})

	t.Run("unknown command", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		assert.Equal(t, exitUsage, run(context.Background(), []string{"nope"}, &stdout, &stderr, failLoad))
		assert.Contains(t, stderr.String(), `unknown command "nope"`)
	})

	t.Run("offline command skips config", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		assert.Equal(t, exitOK, run(context.Background(), []string{"check"}, &stdout, &stderr, failLoad))
		assert.Contains(t, stdout.String(), "OK ")
	})

	t.Run("config failure", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		assert.Equal(t, exitError, run(context.Background(), []string{"whoami", "-session", "s"}, &stdout, &stderr, failLoad))
		assert.Contains(t, stderr.String(), "no env")
	})

	t.Run("command error", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		assert.Equal(t, exitError, run(context.Background(), []string{"sidebar"}, &stdout, &stderr, failLoad))
		assert.Contains(t, stderr.String(), "command failed")
	})
}
