package auth

// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	domainauth "github.com/acme/acct-console/internal/domain/auth"
	apperrors "github.com/acme/acct-console/internal/errors"
	"github.com/acme/acct-console/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.AccountAPI     = (*FakeAccountAPI)(nil)
	_ ports.SessionStore   = (*MemorySessionStore)(nil)
	_ ports.SessionSweeper = (*MemorySessionStore)(nil)
)

// CredentialCookie is the cookie name FakeAccountAPI issues on login.
const CredentialCookie = "accessToken"

// FakeAccount is one account known to FakeAccountAPI.
type FakeAccount struct {
	User     domainauth.User
	Password string
}

// FakeAccountAPI simulates the account API in memory. Login issues a
// deterministic credential cookie whose value maps back to the account.
type FakeAccountAPI struct {
	// CurrentUserFunc overrides CurrentUser when set.
	CurrentUserFunc func(ctx context.Context, creds []domainauth.APICookie) (domainauth.Identity, error)
	// ListUsersFunc overrides ListUsers when set.
	ListUsersFunc func(ctx context.Context, creds []domainauth.APICookie, q domainauth.UserListQuery) (domainauth.UserList, error)

	mu       sync.Mutex
	accounts map[string]*FakeAccount // by email
	tokens   map[string]string       // token -> email
	otps     map[string]string       // email|purpose -> code
	seq      int

	currentUserCalls atomic.Int64
	logoutCalls      atomic.Int64
}

// NewFakeAccountAPI creates a fake seeded with accounts.
func NewFakeAccountAPI(accounts ...FakeAccount) *FakeAccountAPI {
	f := &FakeAccountAPI{
		accounts: make(map[string]*FakeAccount),
		tokens:   make(map[string]string),
		otps:     make(map[string]string),
	}
	for i := range accounts {
		a := accounts[i]
		if a.User.ID == "" {
			a.User.ID = fmt.Sprintf("user-%d", i+1)
		}
		if a.User.Status == "" {
			a.User.Status = domainauth.StatusActive
		}
		f.accounts[strings.ToLower(a.User.Email)] = &a
	}
	return f
}

// CurrentUserCalls returns how many times CurrentUser reached the fake.
func (f *FakeAccountAPI) CurrentUserCalls() int { return int(f.currentUserCalls.Load()) }

// LogoutCalls returns how many times Logout reached the fake.
func (f *FakeAccountAPI) LogoutCalls() int { return int(f.logoutCalls.Load()) }

// TokenFor returns a valid credential for email without a login round trip.
func (f *FakeAccountAPI) TokenFor(email string) []domainauth.APICookie {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.issueLocked(strings.ToLower(email))
}

// OTP returns the last code issued for email and purpose.
func (f *FakeAccountAPI) OTP(email string, purpose domainauth.OTPPurpose) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.otps[strings.ToLower(email)+"|"+string(purpose)]
}

func (f *FakeAccountAPI) issueLocked(email string) []domainauth.APICookie {
	f.seq++
	token := fmt.Sprintf("token-%d", f.seq)
	f.tokens[token] = email
	return []domainauth.APICookie{{Name: CredentialCookie, Value: token, Expires: time.Now().Add(time.Hour)}}
}

func (f *FakeAccountAPI) accountFor(creds []domainauth.APICookie) (*FakeAccount, string, error) {
	for _, c := range creds {
		if c.Name != CredentialCookie {
			continue
		}
		if email, ok := f.tokens[c.Value]; ok {
			if acct, ok := f.accounts[email]; ok {
				return acct, c.Value, nil
			}
		}
	}
	return nil, "", apperrors.Unauthenticated("You are not authorized")
}

func identityOf(u domainauth.User) domainauth.Identity {
	return domainauth.Identity{
		ID:         u.ID,
		Name:       u.Name,
		Email:      u.Email,
		Role:       u.Role,
		IsVerified: u.IsVerified,
		Status:     u.Status,
	}
}

func (f *FakeAccountAPI) CurrentUser(ctx context.Context, creds []domainauth.APICookie) (domainauth.Identity, error) {
	f.currentUserCalls.Add(1)
	if f.CurrentUserFunc != nil {
		return f.CurrentUserFunc(ctx, creds)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	acct, _, err := f.accountFor(creds)
	if err != nil {
		return domainauth.Identity{}, err
	}
	return identityOf(acct.User), nil
}

func (f *FakeAccountAPI) Login(_ context.Context, email, password string) (ports.LoginResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := strings.ToLower(email)
	acct, ok := f.accounts[key]
	if !ok || acct.Password != password {
		return ports.LoginResult{}, apperrors.Unauthenticated("Incorrect email or password")
	}
	if acct.User.Status == domainauth.StatusBlocked {
		return ports.LoginResult{}, apperrors.Forbidden("User is blocked")
	}
	creds := f.issueLocked(key)
	return ports.LoginResult{Credentials: creds, ExpiresAt: creds[0].Expires}, nil
}

func (f *FakeAccountAPI) Logout(_ context.Context, creds []domainauth.APICookie) error {
	f.logoutCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, token, err := f.accountFor(creds); err == nil {
		delete(f.tokens, token)
	}
	return nil
}

func (f *FakeAccountAPI) ChangePassword(_ context.Context, creds []domainauth.APICookie, oldPassword, newPassword string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	acct, _, err := f.accountFor(creds)
	if err != nil {
		return err
	}
	if acct.Password != oldPassword {
		return apperrors.ValidationField("oldPassword", "Old password does not match")
	}
	acct.Password = newPassword
	return nil
}

func (f *FakeAccountAPI) Register(_ context.Context, in domainauth.Registration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := strings.ToLower(in.Email)
	if _, exists := f.accounts[key]; exists {
		return apperrors.Conflict("User already exists")
	}
	f.seq++
	f.accounts[key] = &FakeAccount{
		User: domainauth.User{
			ID:     fmt.Sprintf("user-%d", f.seq),
			Name:   in.Name,
			Email:  in.Email,
			Role:   domainauth.RoleUser,
			Status: domainauth.StatusActive,
		},
		Password: in.Password,
	}
	return nil
}

func (f *FakeAccountAPI) SendOTP(_ context.Context, email string, purpose domainauth.OTPPurpose) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := strings.ToLower(email)
	if _, ok := f.accounts[key]; !ok {
		return apperrors.NotFound("User not found")
	}
	f.seq++
	f.otps[key+"|"+string(purpose)] = fmt.Sprintf("%06d", f.seq)
	return nil
}

func (f *FakeAccountAPI) VerifyOTP(_ context.Context, email, code string, purpose domainauth.OTPPurpose) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := strings.ToLower(email)
	otpKey := key + "|" + string(purpose)
	if want, ok := f.otps[otpKey]; !ok || want != code {
		return apperrors.ValidationField("code", "Invalid OTP")
	}
	delete(f.otps, otpKey)
	if purpose == domainauth.OTPVerifyEmail {
		f.accounts[key].User.IsVerified = true
	}
	return nil
}

func (f *FakeAccountAPI) ForgotPassword(_ context.Context, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := strings.ToLower(email)
	if _, ok := f.accounts[key]; !ok {
		return apperrors.NotFound("User not found")
	}
	// The reset link token is readable through OTP(email, OTPResetPassword).
	f.otps[key+"|"+string(domainauth.OTPResetPassword)] = f.issueLocked(key)[0].Value
	return nil
}

func (f *FakeAccountAPI) ResetPassword(_ context.Context, in domainauth.PasswordReset) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	email, ok := f.tokens[in.Token]
	if !ok {
		return apperrors.Unauthenticated("Invalid reset token")
	}
	acct := f.accounts[email]
	if acct.User.ID != in.ID {
		return apperrors.Unauthenticated("Invalid reset token")
	}
	acct.Password = in.Password
	return nil
}

func (f *FakeAccountAPI) ListUsers(ctx context.Context, creds []domainauth.APICookie, q domainauth.UserListQuery) (domainauth.UserList, error) {
	if f.ListUsersFunc != nil {
		return f.ListUsersFunc(ctx, creds, q)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, _, err := f.accountFor(creds); err != nil {
		return domainauth.UserList{}, err
	}
	users := make([]domainauth.User, 0, len(f.accounts))
	for _, a := range f.accounts {
		if q.Role != "" && a.User.Role != q.Role {
			continue
		}
		if q.Status != "" && a.User.Status != q.Status {
			continue
		}
		if q.SearchTerm != "" && !strings.Contains(strings.ToLower(a.User.Name+" "+a.User.Email), strings.ToLower(q.SearchTerm)) {
			continue
		}
		users = append(users, a.User)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Email < users[j].Email })

	page, limit := q.Page, q.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = len(users)
	}
	total := len(users)
	start := min((page-1)*limit, total)
	end := min(start+limit, total)
	return domainauth.UserList{
		Users: users[start:end],
		Meta:  domainauth.PageMeta{Page: page, Limit: limit, Total: total},
	}, nil
}

func (f *FakeAccountAPI) SetUserStatus(_ context.Context, creds []domainauth.APICookie, id string, status domainauth.UserStatus) (domainauth.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, _, err := f.accountFor(creds); err != nil {
		return domainauth.User{}, err
	}
	for _, a := range f.accounts {
		if a.User.ID == id {
			a.User.Status = status
			return a.User, nil
		}
	}
	return domainauth.User{}, apperrors.NotFound("User not found")
}

func (f *FakeAccountAPI) UpdateMe(_ context.Context, creds []domainauth.APICookie, in domainauth.ProfileUpdate) (domainauth.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acct, _, err := f.accountFor(creds)
	if err != nil {
		return domainauth.User{}, err
	}
	if in.Name != nil {
		acct.User.Name = *in.Name
	}
	if in.Phone != nil {
		acct.User.Phone = *in.Phone
	}
	if in.Picture != nil {
		acct.User.Picture = *in.Picture
	}
	if in.Address != nil {
		acct.User.Address = *in.Address
	}
	if in.Password != nil {
		acct.Password = *in.Password
	}
	return acct.User, nil
}

// MemorySessionStore is an in-memory session store for unit tests.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]domainauth.Session
}

// NewMemorySessionStore creates a new in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]domainauth.Session),
	}
}

func (m *MemorySessionStore) Save(_ context.Context, sess domainauth.Session) error {
	if sess.ID == "" {
		return errors.New("session ID cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.ID] = sess
	return nil
}

func (m *MemorySessionStore) Get(_ context.Context, id string) (domainauth.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if id == "" || !ok {
		return domainauth.Session{}, ErrNotFound
	}
	return sess, nil
}

func (m *MemorySessionStore) Delete(_ context.Context, id string) error {
	if id == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *MemorySessionStore) DeleteAll(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.sessions)
	m.sessions = make(map[string]domainauth.Session)
	return n, nil
}

// Len returns the number of stored sessions.
func (m *MemorySessionStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// ErrNotFound is returned by mocks when an entity is not present.
var ErrNotFound error = apperrors.NotFound("session not found")
