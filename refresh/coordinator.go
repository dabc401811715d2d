// Package refresh owns the token refresh cycle: at most one refresh call is
// in flight at any time, and every caller that needs a new access token while
// a cycle is running attaches to that cycle's outcome instead of starting its
// own. This is what prevents a refresh storm when many requests hit a 401 in
// the same instant.
package refresh

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"

	"github.com/utafrali/AuthClientGo/api"
	"github.com/utafrali/AuthClientGo/notify"
	"github.com/utafrali/AuthClientGo/tokenstore"
)

// SessionExpiredMessage is the user-facing message emitted when a refresh
// cycle fails terminally.
const SessionExpiredMessage = "Session expired. Please log in again."

// DefaultTimeout bounds the refresh network call when no timeout is configured.
const DefaultTimeout = 10 * time.Second

// refreshKey is the singleflight key; one coordinator runs one cycle at a time.
const refreshKey = "refresh"

var (
	refreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authclient_refresh_total",
			Help: "Total number of completed refresh cycles by outcome",
		},
		[]string{"outcome"},
	)

	refreshCoalesced = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "authclient_refresh_coalesced_total",
			Help: "Total number of callers that attached to an already running refresh cycle",
		},
	)
)

func init() {
	prometheus.MustRegister(refreshTotal, refreshCoalesced)
}

// SessionClearer tears down local session state after a terminal refresh
// failure. The session manager supplies it; the indirection keeps this
// package free of a dependency on the manager.
type SessionClearer func(ctx context.Context)

// Refresher exchanges a refresh token for a new token pair. *api.Client
// satisfies this.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*api.TokenPair, error)
}

// Coordinator serializes refresh cycles. Concurrent callers of Refresh share
// one network call and observe the same outcome; the shared slot is cleared
// as soon as the cycle settles, so the next failure starts a fresh cycle.
type Coordinator struct {
	store        tokenstore.Store
	refresher    Refresher
	notifier     notify.Notifier
	clearSession SessionClearer
	logger       *slog.Logger
	timeout      time.Duration

	group singleflight.Group
}

// NewCoordinator creates a refresh coordinator. timeout bounds each refresh
// network call; zero selects DefaultTimeout.
func NewCoordinator(
	store tokenstore.Store,
	refresher Refresher,
	notifier notify.Notifier,
	clearSession SessionClearer,
	logger *slog.Logger,
	timeout time.Duration,
) *Coordinator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Coordinator{
		store:        store,
		refresher:    refresher,
		notifier:     notifier,
		clearSession: clearSession,
		logger:       logger,
		timeout:      timeout,
	}
}

// Refresh returns a fresh access token, or an empty string when no token
// could be obtained. It never returns an error: the decision between retrying
// and giving up belongs to the caller.
//
// If a cycle is already in flight the call attaches to it and returns its
// outcome. The cycle runs detached from the first caller's cancellation, so
// one aborted request cannot poison the outcome every waiter shares; only the
// bounded timeout ends the cycle early.
func (c *Coordinator) Refresh(ctx context.Context) string {
	token, _, shared := c.group.Do(refreshKey, func() (any, error) {
		// Clear the in-flight slot the moment this cycle settles, before any
		// waiter resumes. A later failure then starts a fresh cycle instead
		// of reusing a settled outcome, and no returning waiter can ever
		// forget a newer in-flight cycle.
		defer c.group.Forget(refreshKey)

		cycleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		return c.runCycle(cycleCtx), nil
	})
	if shared {
		refreshCoalesced.Inc()
	}

	return token.(string)
}

// runCycle performs one refresh cycle: read the refresh token, call the
// remote refresh operation, persist the new pair. All failure paths converge
// on the same terminal outcome: session-expired notification, session clear,
// empty token.
func (c *Coordinator) runCycle(ctx context.Context) string {
	refreshToken, err := c.store.Get(ctx, tokenstore.Refresh)
	if err != nil {
		c.logger.ErrorContext(ctx, "read refresh token failed",
			slog.String("error", err.Error()),
		)
		return ""
	}
	if refreshToken == "" {
		// Nothing to refresh with; resolve immediately without a network call.
		refreshTotal.WithLabelValues("no_token").Inc()
		return ""
	}

	pair, err := c.refresher.Refresh(ctx, refreshToken)
	if err != nil {
		c.logger.WarnContext(ctx, "token refresh failed",
			slog.String("error", err.Error()),
		)
		return c.expire(ctx)
	}

	// The pair must be durable before any waiter can observe the new token.
	if err := c.store.Set(ctx, tokenstore.Pair{
		Access:  pair.AccessToken,
		Refresh: pair.RefreshToken,
	}); err != nil {
		c.logger.ErrorContext(ctx, "persist refreshed tokens failed",
			slog.String("error", err.Error()),
		)
		return c.expire(ctx)
	}

	refreshTotal.WithLabelValues("success").Inc()
	return pair.AccessToken
}

// expire is the terminal failure path: one notification, one session clear,
// empty outcome for every waiter.
func (c *Coordinator) expire(ctx context.Context) string {
	refreshTotal.WithLabelValues("failed").Inc()
	c.notifier.Notify(ctx, notify.LevelError, SessionExpiredMessage)
	if c.clearSession != nil {
		c.clearSession(ctx)
	}
	return ""
}
