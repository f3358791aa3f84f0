// Package identityapi is the adapter for the remote account API: login and
// session cookies, the current-user lookup, OTP and password flows, and the
// user administration endpoints.
package identityapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	jmespath "github.com/jmespath-community/go-jmespath"
	"golang.org/x/net/publicsuffix"

	domainauth "github.com/acme/acct-console/internal/domain/auth"
	apperrors "github.com/acme/acct-console/internal/errors"
	"github.com/acme/acct-console/internal/observability/metrics"
	"github.com/acme/acct-console/internal/observability/statsd"
	"github.com/acme/acct-console/internal/ports"
)

const (
	defaultIdentityExpr = "data.{id: _id, name: name, email: email, role: role, isVerified: isVerified, status: isActive}"
	defaultTokenCookie  = "accessToken"
	maxErrorBodyBytes   = 4 * 1024
)

var _ ports.AccountAPI = (*Client)(nil)

// Options configures the account API client.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	// Timeout bounds each request; ignored when HTTPClient is set.
	Timeout time.Duration
	// IdentityExpr is a JMESPath expression projecting /user/me onto
	// {id, name, email, role, isVerified, status}.
	IdentityExpr string
	// TokenCookie names the cookie carrying the access token JWT.
	TokenCookie string
	Metrics     statsd.Sink
	Logger      *slog.Logger
}

// Client talks to the account API over HTTP.
type Client struct {
	base         *url.URL
	http         *http.Client
	identityExpr jmespath.JMESPath // compiled once in NewClient
	tokenCookie  string
	metrics      statsd.Sink
	logger       *slog.Logger
	now          func() time.Time
}

// NewClient validates options and returns a client.
func NewClient(opts Options) (*Client, error) {
	raw := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if raw == "" {
		return nil, errors.New("account API base URL is required")
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse account API base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("account API base URL must be http(s): %q", raw)
	}

	expr := strings.TrimSpace(opts.IdentityExpr)
	if expr == "" {
		expr = defaultIdentityExpr
	}
	identityExpr, err := jmespath.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compile identity expression: %w", err)
	}

	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}

	token := opts.TokenCookie
	if token == "" {
		token = defaultTokenCookie
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		base:         base,
		http:         hc,
		identityExpr: identityExpr,
		tokenCookie:  token,
		metrics:      opts.Metrics,
		logger:       logger.With("component", "account_api"),
		now:          time.Now,
	}, nil
}

// envelope is the account API's response wrapper.
type envelope struct {
	StatusCode int             `json:"statusCode"`
	Success    bool            `json:"success"`
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data"`
	Meta       *apiMeta        `json:"meta,omitempty"`
}

type apiMeta struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

type apiUser struct {
	ID         string    `json:"_id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Phone      string    `json:"phone"`
	Role       string    `json:"role"`
	IsActive   string    `json:"isActive"`
	IsVerified bool      `json:"isVerified"`
	Picture    string    `json:"picture"`
	Address    string    `json:"address"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func (u apiUser) toDomain() domainauth.User {
	role, _ := domainauth.ParseRole(u.Role)
	return domainauth.User{
		ID:         u.ID,
		Name:       u.Name,
		Email:      u.Email,
		Phone:      u.Phone,
		Role:       role,
		Status:     domainauth.UserStatus(strings.ToUpper(u.IsActive)),
		IsVerified: u.IsVerified,
		Picture:    u.Picture,
		Address:    u.Address,
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	}
}

// call describes one API request.
type call struct {
	op     string
	method string
	path   string
	query  url.Values
	creds  []domainauth.APICookie
	body   any
	// client overrides c.http (used by Login to capture cookies in a jar).
	client *http.Client
}

// do executes a call and decodes the envelope. Non-2xx responses and
// success=false envelopes are mapped to AppErrors.
func (c *Client) do(ctx context.Context, in call) (env envelope, resp *http.Response, err error) {
	start := c.now()
	status := 0
	defer func() {
		metrics.EmitUpstreamCall(c.metrics, metrics.UpstreamCall{
			Operation: in.op,
			Status:    status,
			Duration:  time.Since(start),
			Err:       err,
		})
	}()

	req, err := c.newRequest(ctx, in)
	if err != nil {
		return envelope{}, nil, err
	}

	hc := in.client
	if hc == nil {
		hc = c.http
	}
	resp, err = hc.Do(req)
	if err != nil {
		return envelope{}, nil, apperrors.MapUpstreamError(0, "", fmt.Errorf("%s %s: %w", in.method, in.path, err))
	}
	defer resp.Body.Close()
	status = resp.StatusCode

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return envelope{}, resp, apperrors.MapUpstreamError(0, "", fmt.Errorf("read %s response: %w", in.op, err))
	}

	if len(bytes.TrimSpace(raw)) > 0 {
		if decodeErr := json.Unmarshal(raw, &env); decodeErr != nil && resp.StatusCode < 300 {
			return envelope{}, resp, apperrors.Upstream("Unexpected response from the account service.",
				fmt.Errorf("decode %s envelope: %w", in.op, decodeErr))
		}
	}

	if resp.StatusCode >= 300 || !env.Success {
		code := resp.StatusCode
		if code < 300 && env.StatusCode >= 400 {
			code = env.StatusCode
		}
		cause := fmt.Errorf("%s %s: status %d: %s", in.method, in.path, resp.StatusCode, truncate(raw))
		return env, resp, apperrors.MapUpstreamError(code, env.Message, cause)
	}
	return env, resp, nil
}

func (c *Client) newRequest(ctx context.Context, in call) (*http.Request, error) {
	u := c.base.JoinPath(in.path)
	if len(in.query) > 0 {
		u.RawQuery = in.query.Encode()
	}

	var body io.Reader
	if in.body != nil {
		b, err := json.Marshal(in.body)
		if err != nil {
			return nil, fmt.Errorf("marshal %s body: %w", in.op, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, in.method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", in.op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, ck := range in.creds {
		req.AddCookie(&http.Cookie{Name: ck.Name, Value: ck.Value})
	}
	return req, nil
}

func truncate(b []byte) string {
	if len(b) > maxErrorBodyBytes {
		b = b[:maxErrorBodyBytes]
	}
	return string(b)
}

// CurrentUser resolves the identity behind creds through GET /user/me.
func (c *Client) CurrentUser(ctx context.Context, creds []domainauth.APICookie) (domainauth.Identity, error) {
	if len(creds) == 0 {
		return domainauth.Identity{}, apperrors.Unauthenticated("no account API credentials")
	}
	env, _, err := c.do(ctx, call{op: "current_user", method: http.MethodGet, path: "/user/me", creds: creds})
	if err != nil {
		return domainauth.Identity{}, err
	}
	return c.extractIdentity(env)
}

type identityFields struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Role       string `json:"role"`
	IsVerified bool   `json:"isVerified"`
	Status     string `json:"status"`
}

// extractIdentity applies the identity expression to the whole envelope.
func (c *Client) extractIdentity(env envelope) (domainauth.Identity, error) {
	raw, err := json.Marshal(env)
	if err != nil {
		return domainauth.Identity{}, fmt.Errorf("re-encode envelope: %w", err)
	}
	var doc any
	if err = json.Unmarshal(raw, &doc); err != nil {
		return domainauth.Identity{}, fmt.Errorf("decode envelope: %w", err)
	}

	projected, err := c.identityExpr.Search(doc)
	if err != nil {
		return domainauth.Identity{}, apperrors.Upstream("Unexpected identity payload.", fmt.Errorf("identity expression: %w", err))
	}
	if projected == nil {
		return domainauth.Identity{}, apperrors.Unauthenticated("account API returned no identity")
	}

	b, err := json.Marshal(projected)
	if err != nil {
		return domainauth.Identity{}, fmt.Errorf("encode projected identity: %w", err)
	}
	var f identityFields
	if err = json.Unmarshal(b, &f); err != nil {
		return domainauth.Identity{}, apperrors.Upstream("Unexpected identity payload.", fmt.Errorf("decode projected identity: %w", err))
	}
	if f.ID == "" {
		return domainauth.Identity{}, apperrors.Unauthenticated("account API returned no identity")
	}

	role, ok := domainauth.ParseRole(f.Role)
	if !ok {
		c.logger.Warn("unknown role from account API", "role", f.Role, "user_id", f.ID)
	}
	return domainauth.Identity{
		ID:         f.ID,
		Name:       f.Name,
		Email:      f.Email,
		Role:       role,
		IsVerified: f.IsVerified,
		Status:     domainauth.UserStatus(strings.ToUpper(f.Status)),
	}, nil
}

// Login posts credentials and captures the cookies the API sets.
func (c *Client) Login(ctx context.Context, email, password string) (ports.LoginResult, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return ports.LoginResult{}, fmt.Errorf("cookie jar: %w", err)
	}
	hc := *c.http
	hc.Jar = jar

	_, resp, err := c.do(ctx, call{
		op:     "login",
		method: http.MethodPost,
		path:   "/auth/login",
		body:   map[string]string{"email": email, "password": password},
		client: &hc,
	})
	if err != nil {
		return ports.LoginResult{}, err
	}

	creds := c.collectCookies(jar, resp)
	if len(creds) == 0 {
		return ports.LoginResult{}, apperrors.Upstream("The account service did not start a session.",
			errors.New("login response set no cookies"))
	}
	return ports.LoginResult{Credentials: creds, ExpiresAt: c.earliestExpiry(creds)}, nil
}

// collectCookies merges the jar's view (which follows redirects) with the
// final response's Set-Cookie attributes, which carry expiry.
func (c *Client) collectCookies(jar http.CookieJar, resp *http.Response) []domainauth.APICookie {
	expiry := make(map[string]time.Time)
	if resp != nil {
		for _, ck := range resp.Cookies() {
			switch {
			case !ck.Expires.IsZero():
				expiry[ck.Name] = ck.Expires
			case ck.MaxAge > 0:
				expiry[ck.Name] = c.now().Add(time.Duration(ck.MaxAge) * time.Second)
			}
		}
	}

	var out []domainauth.APICookie
	for _, ck := range jar.Cookies(c.base) {
		out = append(out, domainauth.APICookie{Name: ck.Name, Value: ck.Value, Expires: expiry[ck.Name]})
	}
	return out
}

// earliestExpiry returns the soonest known expiry: cookie Expires attributes
// and the access token's exp claim. Zero when nothing is known.
func (c *Client) earliestExpiry(creds []domainauth.APICookie) time.Time {
	var earliest time.Time
	consider := func(t time.Time) {
		if t.IsZero() {
			return
		}
		if earliest.IsZero() || t.Before(earliest) {
			earliest = t
		}
	}
	for _, ck := range creds {
		consider(ck.Expires)
		if ck.Name == c.tokenCookie {
			consider(TokenExpiry(ck.Value))
		}
	}
	return earliest
}

// TokenExpiry reads the exp claim of a JWT without verifying it. The console
// never trusts the claims; it only uses exp to stop replaying a dead cookie.
func TokenExpiry(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	tok, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return time.Time{}
	}
	exp, err := tok.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

// Logout ends the API session behind creds.
func (c *Client) Logout(ctx context.Context, creds []domainauth.APICookie) error {
	_, _, err := c.do(ctx, call{op: "logout", method: http.MethodPost, path: "/auth/logout", creds: creds})
	return err
}

// ChangePassword changes the signed-in user's password.
func (c *Client) ChangePassword(ctx context.Context, creds []domainauth.APICookie, oldPassword, newPassword string) error {
	_, _, err := c.do(ctx, call{
		op:     "change_password",
		method: http.MethodPost,
		path:   "/auth/change-password",
		creds:  creds,
		body:   map[string]string{"oldPassword": oldPassword, "newPassword": newPassword},
	})
	return err
}

// Register creates an account.
func (c *Client) Register(ctx context.Context, in domainauth.Registration) error {
	_, _, err := c.do(ctx, call{op: "register", method: http.MethodPost, path: "/user/register", body: in})
	return err
}

// SendOTP asks the API to deliver a one-time code.
func (c *Client) SendOTP(ctx context.Context, email string, purpose domainauth.OTPPurpose) error {
	_, _, err := c.do(ctx, call{
		op:     "otp_send",
		method: http.MethodPost,
		path:   "/otp/send",
		body:   map[string]string{"email": email, "purpose": string(purpose)},
	})
	return err
}

// VerifyOTP checks a one-time code.
func (c *Client) VerifyOTP(ctx context.Context, email, code string, purpose domainauth.OTPPurpose) error {
	_, _, err := c.do(ctx, call{
		op:     "otp_verify",
		method: http.MethodPost,
		path:   "/otp/verify",
		body:   map[string]string{"email": email, "code": code, "purpose": string(purpose)},
	})
	return err
}

// ForgotPassword starts the reset flow for email.
func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	_, _, err := c.do(ctx, call{
		op:     "forgot_password",
		method: http.MethodPost,
		path:   "/auth/forgot-password",
		body:   map[string]string{"email": email},
	})
	return err
}

// ResetPassword completes the reset flow.
func (c *Client) ResetPassword(ctx context.Context, in domainauth.PasswordReset) error {
	_, _, err := c.do(ctx, call{op: "reset_password", method: http.MethodPost, path: "/auth/reset-password", body: in})
	return err
}

// ListUsers returns one page of users.
func (c *Client) ListUsers(ctx context.Context, creds []domainauth.APICookie, q domainauth.UserListQuery) (domainauth.UserList, error) {
	params := url.Values{}
	if q.Page > 0 {
		params.Set("page", fmt.Sprint(q.Page))
	}
	if q.Limit > 0 {
		params.Set("limit", fmt.Sprint(q.Limit))
	}
	if q.SearchTerm != "" {
		params.Set("searchTerm", q.SearchTerm)
	}
	if q.Status != "" {
		params.Set("isActive", string(q.Status))
	}
	if q.Role != "" {
		params.Set("role", string(q.Role))
	}

	env, _, err := c.do(ctx, call{
		op:     "list_users",
		method: http.MethodGet,
		path:   "/user/all-users",
		query:  params,
		creds:  creds,
	})
	if err != nil {
		return domainauth.UserList{}, err
	}

	var raw []apiUser
	if len(env.Data) > 0 {
		if err = json.Unmarshal(env.Data, &raw); err != nil {
			return domainauth.UserList{}, apperrors.Upstream("Unexpected user list payload.", fmt.Errorf("decode users: %w", err))
		}
	}
	out := domainauth.UserList{Users: make([]domainauth.User, 0, len(raw))}
	for _, u := range raw {
		out.Users = append(out.Users, u.toDomain())
	}
	if env.Meta != nil {
		out.Meta = domainauth.PageMeta{
			Page:       env.Meta.Page,
			Limit:      env.Meta.Limit,
			Total:      env.Meta.Total,
			TotalPages: env.Meta.TotalPages,
		}
	} else {
		out.Meta = domainauth.PageMeta{Page: 1, Limit: len(raw), Total: len(raw)}
	}
	return out, nil
}

// SetUserStatus approves, blocks or suspends a user.
func (c *Client) SetUserStatus(ctx context.Context, creds []domainauth.APICookie, id string, status domainauth.UserStatus) (domainauth.User, error) {
	env, _, err := c.do(ctx, call{
		op:     "set_user_status",
		method: http.MethodPatch,
		path:   "/user/approve-reject/" + url.PathEscape(id),
		creds:  creds,
		body:   map[string]string{"isActive": string(status)},
	})
	if err != nil {
		return domainauth.User{}, err
	}
	return decodeUser(env)
}

// UpdateMe edits the signed-in user's profile.
func (c *Client) UpdateMe(ctx context.Context, creds []domainauth.APICookie, in domainauth.ProfileUpdate) (domainauth.User, error) {
	env, _, err := c.do(ctx, call{op: "update_me", method: http.MethodPatch, path: "/user/update-me", creds: creds, body: in})
	if err != nil {
		return domainauth.User{}, err
	}
	return decodeUser(env)
}

func decodeUser(env envelope) (domainauth.User, error) {
	var u apiUser
	if err := json.Unmarshal(env.Data, &u); err != nil {
		return domainauth.User{}, apperrors.Upstream("Unexpected user payload.", fmt.Errorf("decode user: %w", err))
	}
	return u.toDomain(), nil
}
