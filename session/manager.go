// Package session owns the client-side authentication session: the current
// user identity, the authenticated flag, and the login, register, logout, and
// bootstrap operations. It wires the bearer-injection and failure-recovery
// hooks into the HTTP transport and reacts to refresh outcomes by clearing or
// preserving session state.
package session

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/utafrali/AuthClientGo/api"
	"github.com/utafrali/AuthClientGo/config"
	apperrors "github.com/utafrali/AuthClientGo/errors"
	"github.com/utafrali/AuthClientGo/httpclient"
	"github.com/utafrali/AuthClientGo/notify"
	"github.com/utafrali/AuthClientGo/refresh"
	"github.com/utafrali/AuthClientGo/tokenstore"
)

// State is the lifecycle position of the session manager.
type State string

const (
	StateUninitialized   State = "uninitialized"
	StateBootstrapping   State = "bootstrapping"
	StateAuthenticated   State = "authenticated"
	StateUnauthenticated State = "unauthenticated"
)

// User-facing messages for session operations.
const (
	WelcomeBackMessage = "Welcome back!"
	WelcomeMessage     = "Welcome! Your account has been created."
	LoggedOutMessage   = "You have been logged out."

	invalidCredentialsMessage = "Please enter a valid email address and a password of at least 8 characters."
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Session is a point-in-time snapshot of the manager's state.
// Authenticated is true exactly when User is non-nil.
type Session struct {
	User          *api.User
	Authenticated bool
	Loading       bool
}

// Manager is the top-level orchestrator of the token lifecycle. It is safe
// for concurrent use.
type Manager struct {
	store       tokenstore.Store
	notifier    notify.Notifier
	logger      *slog.Logger
	client      *httpclient.Client
	apiClient   *api.Client
	coordinator *refresh.Coordinator

	mu      sync.RWMutex
	state   State
	user    *api.User
	loading bool
}

// NewManager builds a session manager and its full transport: a hook-free
// client for the refresh coordinator and a hooked client (correlation, bearer
// injection, failure recovery) for everything else.
func NewManager(cfg *config.Config, store tokenstore.Store, notifier notify.Notifier, logger *slog.Logger) *Manager {
	m := &Manager{
		store:    store,
		notifier: notifier,
		logger:   logger,
		state:    StateUninitialized,
	}

	transportCfg := httpclient.Config{
		Timeout:         cfg.HTTPTimeout,
		MaxRetries:      cfg.MaxRetries,
		RetryWaitMin:    cfg.RetryWaitMin,
		RetryWaitMax:    cfg.RetryWaitMax,
		MaxConnsPerHost: httpclient.DefaultConfig().MaxConnsPerHost,
	}

	// The refresh call must not pass through the recovery hook: a 401 on
	// refresh is terminal, not recoverable.
	rawClient := httpclient.New(transportCfg,
		httpclient.WithRequestHook(httpclient.CorrelationHook()),
	)
	m.coordinator = refresh.NewCoordinator(
		store,
		api.NewClient(rawClient, cfg.BaseURL),
		notifier,
		m.clearSession,
		logger,
		cfg.RefreshTimeout,
	)

	var hooked *httpclient.Client
	hooked = httpclient.New(transportCfg,
		httpclient.WithRequestHook(httpclient.CorrelationHook()),
		httpclient.WithRequestHook(BearerAuthenticator(store, notifier)),
		httpclient.WithResponseHook(RecoveryPolicy(m.coordinator, store, notifier,
			func(ctx context.Context, req *http.Request) (*http.Response, error) {
				return hooked.Do(ctx, req)
			},
		)),
	)
	m.client = hooked
	m.apiClient = api.NewClient(hooked, cfg.BaseURL)

	return m
}

// Bootstrap restores the session on startup: it looks for a stored access
// token, falls back to a single refresh attempt, and fetches the identity
// when a token is available. It returns the resulting state.
func (m *Manager) Bootstrap(ctx context.Context) State {
	m.mu.Lock()
	if m.state != StateUninitialized {
		current := m.state
		m.mu.Unlock()
		m.logger.WarnContext(ctx, "bootstrap called on initialized session",
			slog.String("state", string(current)),
		)
		return current
	}
	m.state = StateBootstrapping
	m.loading = true
	m.mu.Unlock()
	defer m.setLoading(false)

	token, err := m.store.Get(ctx, tokenstore.Access)
	if err != nil {
		m.logger.ErrorContext(ctx, "read access token failed",
			slog.String("error", err.Error()),
		)
	}
	if token == "" {
		// No stored access token; one refresh attempt. With an empty store
		// this short-circuits without a network call.
		token = m.coordinator.Refresh(ctx)
	}
	if token == "" {
		m.setUnauthenticated()
		return StateUnauthenticated
	}

	user, err := m.apiClient.Me(ctx)
	if err != nil {
		m.logger.WarnContext(ctx, "bootstrap identity fetch failed",
			slog.String("error", err.Error()),
		)
		m.clearSession(ctx)
		return StateUnauthenticated
	}

	m.setAuthenticated(user)
	return StateAuthenticated
}

// Login exchanges credentials for a token pair, persists it, and fetches the
// user identity. On failure the session state is left unchanged and the error
// propagates after a single notification.
func (m *Manager) Login(ctx context.Context, email, password string) (*api.User, error) {
	m.setLoading(true)
	defer m.setLoading(false)

	user, err := m.authenticate(ctx, api.Credentials{Email: email, Password: password}, m.apiClient.Login)
	if err != nil {
		return nil, err
	}
	m.notifier.Notify(ctx, notify.LevelSuccess, WelcomeBackMessage)
	return user, nil
}

// Register creates a new account and establishes a session, mirroring Login
// against the registration endpoint.
func (m *Manager) Register(ctx context.Context, email, password string) (*api.User, error) {
	m.setLoading(true)
	defer m.setLoading(false)

	user, err := m.authenticate(ctx, api.Credentials{Email: email, Password: password}, m.apiClient.Register)
	if err != nil {
		return nil, err
	}
	m.notifier.Notify(ctx, notify.LevelSuccess, WelcomeMessage)
	return user, nil
}

// authenticate is the shared login/register shape: validate, exchange
// credentials, persist the pair, fetch identity, flip to authenticated.
func (m *Manager) authenticate(
	ctx context.Context,
	creds api.Credentials,
	exchange func(ctx context.Context, creds api.Credentials) (*api.TokenPair, error),
) (*api.User, error) {
	if err := validate.Struct(creds); err != nil {
		m.notifier.Notify(ctx, notify.LevelError, invalidCredentialsMessage)
		return nil, apperrors.InvalidInput(invalidCredentialsMessage)
	}

	pair, err := exchange(ctx, creds)
	if err != nil {
		return nil, m.failOperation(ctx, err)
	}

	if err := m.store.Set(ctx, tokenstore.Pair{
		Access:  pair.AccessToken,
		Refresh: pair.RefreshToken,
	}); err != nil {
		return nil, m.failOperation(ctx, err)
	}

	user, err := m.apiClient.Me(ctx)
	if err != nil {
		return nil, m.failOperation(ctx, err)
	}

	m.setAuthenticated(user)
	return user, nil
}

// Logout invalidates the session. The remote call is best effort: its failure
// is logged and surfaced but never prevents the local teardown.
func (m *Manager) Logout(ctx context.Context) error {
	m.setLoading(true)
	defer m.setLoading(false)

	if _, err := m.apiClient.Logout(ctx); err != nil {
		m.logger.WarnContext(ctx, "remote logout failed",
			slog.String("error", err.Error()),
		)
		if !alreadyNotified(err) {
			m.notifier.Notify(ctx, notify.LevelWarning, userMessage(err))
		}
	}

	clearErr := m.store.Clear(ctx)
	if clearErr != nil {
		m.logger.ErrorContext(ctx, "clear token store failed",
			slog.String("error", clearErr.Error()),
		)
	}
	m.setUnauthenticated()

	m.notifier.Notify(ctx, notify.LevelInfo, LoggedOutMessage)
	return clearErr
}

// Session returns a snapshot of the current session state.
func (m *Manager) Session() Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Session{
		User:          m.user,
		Authenticated: m.user != nil,
		Loading:       m.loading,
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// CurrentUser returns the identity snapshot, or nil when unauthenticated.
func (m *Manager) CurrentUser() *api.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.user
}

// IsAuthenticated reports whether a user identity is established.
func (m *Manager) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.user != nil
}

// HTTPClient returns the hooked transport. Requests sent through it carry the
// current access token and recover transparently from expired credentials.
func (m *Manager) HTTPClient() *httpclient.Client {
	return m.client
}

// API returns the typed auth service client bound to the hooked transport.
func (m *Manager) API() *api.Client {
	return m.apiClient
}

// clearSession is the collaborator handed to the refresh coordinator: after a
// terminal refresh failure the token pair and the in-memory session are gone.
func (m *Manager) clearSession(ctx context.Context) {
	if err := m.store.Clear(ctx); err != nil {
		m.logger.ErrorContext(ctx, "clear token store failed",
			slog.String("error", err.Error()),
		)
	}
	m.setUnauthenticated()
}

func (m *Manager) setAuthenticated(user *api.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.user = user
	m.state = StateAuthenticated
}

func (m *Manager) setUnauthenticated() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.user = nil
	m.state = StateUnauthenticated
}

func (m *Manager) setLoading(loading bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loading = loading
}

// failOperation emits the single user-facing notification for an operation
// failure, unless the transport layer already did, and returns the error.
func (m *Manager) failOperation(ctx context.Context, err error) error {
	if !alreadyNotified(err) {
		m.notifier.Notify(ctx, notify.LevelError, userMessage(err))
	}
	return err
}

// userMessage extracts the message a user should see from an error.
func userMessage(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return httpclient.FallbackMessage
}
