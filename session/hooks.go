package session

import (
	"context"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	apperrors "github.com/utafrali/AuthClientGo/errors"
	"github.com/utafrali/AuthClientGo/httpclient"
	"github.com/utafrali/AuthClientGo/notify"
	"github.com/utafrali/AuthClientGo/refresh"
	"github.com/utafrali/AuthClientGo/tokenstore"
)

// User-facing messages for classified failures.
const (
	AccessDeniedMessage = "You do not have permission to perform this action."
	NotFoundMessage     = "The requested resource was not found."
	RateLimitedMessage  = "Too many requests. Please try again in a moment."
)

var recoveryRetries = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "authclient_recovery_retries_total",
		Help: "Total number of requests resent after a refresh cycle, by result",
	},
	[]string{"result"},
)

func init() {
	prometheus.MustRegister(recoveryRetries)
}

// TokenRefresher yields a fresh access token, or an empty string when none
// could be obtained. *refresh.Coordinator satisfies this.
type TokenRefresher interface {
	Refresh(ctx context.Context) string
}

// BearerAuthenticator returns a request hook that attaches the stored access
// token as a bearer credential. Requests that already carry an Authorization
// header (the refresh call with its refresh-token bearer) are left untouched;
// requests with no stored token go out unmodified.
//
// A store read failure is surfaced as a notification and then propagated
// unchanged; the hook never swallows it.
func BearerAuthenticator(store tokenstore.Store, notifier notify.Notifier) httpclient.RequestHook {
	return func(ctx context.Context, req *http.Request) error {
		if req.Header.Get("Authorization") != "" {
			return nil
		}

		token, err := store.Get(ctx, tokenstore.Access)
		if err != nil {
			notifier.Notify(ctx, notify.LevelError, httpclient.MessageFromError(err))
			return markNotified(err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		return nil
	}
}

// RecoveryPolicy returns a response hook that turns an expired-credential
// failure into a refresh-and-retry, and every other failure into a single
// user-facing notification followed by a propagated error.
//
// A 401 on a request not yet retried marks the request, asks the coordinator
// for a new access token, and resends the original request exactly once
// through the given doer (the hooked client, so a repeated failure is
// classified through this same policy — the retried marker guarantees no
// second refresh cycle). An empty refresh outcome propagates without
// resending: when a refresh token existed, the coordinator has already
// emitted its session-expired notification and cleared the session; when
// none existed, the original 401 propagates unnotified for the caller to
// surface.
func RecoveryPolicy(
	refresher TokenRefresher,
	store tokenstore.Store,
	notifier notify.Notifier,
	doer func(ctx context.Context, req *http.Request) (*http.Response, error),
) httpclient.ResponseHook {
	return func(ctx context.Context, req *http.Request, resp *http.Response) (*http.Response, error) {
		if resp.StatusCode != http.StatusUnauthorized || httpclient.IsRetried(req) {
			return nil, classifyAndNotify(ctx, resp, notifier)
		}

		// Keep the server's message before draining the stale response so the
		// connection can be reused by the retried call.
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		_ = resp.Body.Close()
		message := httpclient.ExtractMessage(body, nil)

		hadRefreshToken, _ := store.Get(ctx, tokenstore.Refresh)

		token := refresher.Refresh(ctx)
		if token == "" {
			recoveryRetries.WithLabelValues("refresh_failed").Inc()
			if hadRefreshToken == "" {
				// Nothing to recover with: the original 401 stands.
				return nil, apperrors.Unauthorized(message)
			}
			return nil, markNotified(apperrors.SessionExpired(refresh.SessionExpiredMessage))
		}

		retried := httpclient.MarkRetried(req)
		retried.Header.Set("Authorization", "Bearer "+token)
		if req.GetBody != nil {
			replay, err := req.GetBody()
			if err != nil {
				recoveryRetries.WithLabelValues("body_replay_failed").Inc()
				return nil, apperrors.Wrap(err, "replay request body")
			}
			retried.Body = replay
		}

		retryResp, err := doer(ctx, retried)
		if err != nil {
			recoveryRetries.WithLabelValues("failed").Inc()
			return nil, err
		}
		recoveryRetries.WithLabelValues("success").Inc()
		return retryResp, nil
	}
}

// classifyAndNotify maps a terminal failed response to its user-facing
// notification and a matching error. Exactly one notification is emitted per
// terminal failure.
func classifyAndNotify(ctx context.Context, resp *http.Response, notifier notify.Notifier) error {
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	message := httpclient.ExtractMessage(body, nil)

	switch resp.StatusCode {
	case http.StatusForbidden:
		notifier.Notify(ctx, notify.LevelError, AccessDeniedMessage)
		return markNotified(apperrors.Forbidden(message))
	case http.StatusNotFound:
		notifier.Notify(ctx, notify.LevelWarning, NotFoundMessage)
		return markNotified(apperrors.NotFound(message))
	case http.StatusTooManyRequests:
		notifier.Notify(ctx, notify.LevelWarning, RateLimitedMessage)
		return markNotified(apperrors.RateLimited(message))
	default:
		notifier.Notify(ctx, notify.LevelError, message)
		return markNotified(apperrors.FromStatus(resp.StatusCode, message))
	}
}
