package session

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/AuthClientGo/errors"
	"github.com/utafrali/AuthClientGo/httpclient"
	"github.com/utafrali/AuthClientGo/notify"
	"github.com/utafrali/AuthClientGo/refresh"
	"github.com/utafrali/AuthClientGo/tokenstore"
)

type failingStore struct{}

func (failingStore) Get(ctx context.Context, kind tokenstore.Kind) (string, error) {
	return "", errors.New("store unavailable")
}

func (failingStore) Set(ctx context.Context, pair tokenstore.Pair) error {
	return errors.New("store unavailable")
}

func (failingStore) Clear(ctx context.Context) error {
	return errors.New("store unavailable")
}

type staticRefresher struct {
	token string
	calls int
}

func (r *staticRefresher) Refresh(ctx context.Context) string {
	r.calls++
	return r.token
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestBearerAuthenticator_InjectsStoredToken(t *testing.T) {
	store := tokenstore.NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), tokenstore.Pair{Access: "AT1", Refresh: "RT1"}))

	hook := BearerAuthenticator(store, notify.NewRecorder())

	req, _ := http.NewRequest(http.MethodGet, "http://auth/me", nil)
	require.NoError(t, hook(context.Background(), req))
	assert.Equal(t, "Bearer AT1", req.Header.Get("Authorization"))
}

func TestBearerAuthenticator_KeepsExistingAuthorization(t *testing.T) {
	store := tokenstore.NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), tokenstore.Pair{Access: "AT1", Refresh: "RT1"}))

	hook := BearerAuthenticator(store, notify.NewRecorder())

	// The refresh call carries its refresh-token bearer already.
	req, _ := http.NewRequest(http.MethodGet, "http://auth/refresh", nil)
	req.Header.Set("Authorization", "Bearer RT1")
	require.NoError(t, hook(context.Background(), req))
	assert.Equal(t, "Bearer RT1", req.Header.Get("Authorization"))
}

func TestBearerAuthenticator_NoTokenLeavesRequestBare(t *testing.T) {
	hook := BearerAuthenticator(tokenstore.NewMemoryStore(), notify.NewRecorder())

	req, _ := http.NewRequest(http.MethodGet, "http://auth/me", nil)
	require.NoError(t, hook(context.Background(), req))
	assert.Empty(t, req.Header.Get("Authorization"))
}

func TestBearerAuthenticator_StoreFailureNotifiesAndPropagates(t *testing.T) {
	recorder := notify.NewRecorder()
	hook := BearerAuthenticator(failingStore{}, recorder)

	req, _ := http.NewRequest(http.MethodGet, "http://auth/me", nil)
	err := hook(context.Background(), req)
	require.Error(t, err)
	assert.True(t, alreadyNotified(err))
	require.Len(t, recorder.All(), 1)
}

func TestRecoveryPolicy_RefreshesAndResendsOnce(t *testing.T) {
	store := tokenstore.NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), tokenstore.Pair{Access: "stale", Refresh: "RT1"}))

	refresher := &staticRefresher{token: "AT2"}
	recorder := notify.NewRecorder()

	var resent *http.Request
	doer := func(ctx context.Context, req *http.Request) (*http.Response, error) {
		resent = req
		return jsonResponse(http.StatusOK, `{}`), nil
	}

	hook := RecoveryPolicy(refresher, store, recorder, doer)

	req, _ := http.NewRequest(http.MethodGet, "http://auth/me", nil)
	resp, err := hook(context.Background(), req, jsonResponse(http.StatusUnauthorized, `{"message":"token expired"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NotNil(t, resent)
	assert.Equal(t, "Bearer AT2", resent.Header.Get("Authorization"))
	assert.True(t, httpclient.IsRetried(resent))
	assert.Equal(t, 1, refresher.calls)
	assert.Empty(t, recorder.All())
}

func TestRecoveryPolicy_ReplaysRequestBody(t *testing.T) {
	store := tokenstore.NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), tokenstore.Pair{Access: "stale", Refresh: "RT1"}))

	var resentBody []byte
	doer := func(ctx context.Context, req *http.Request) (*http.Response, error) {
		resentBody, _ = io.ReadAll(req.Body)
		return jsonResponse(http.StatusOK, `{}`), nil
	}

	hook := RecoveryPolicy(&staticRefresher{token: "AT2"}, store, notify.NewRecorder(), doer)

	req, _ := http.NewRequest(http.MethodPost, "http://auth/thing", bytes.NewReader([]byte(`{"n":1}`)))
	_, err := hook(context.Background(), req, jsonResponse(http.StatusUnauthorized, `{}`))
	require.NoError(t, err)
	assert.Equal(t, `{"n":1}`, string(resentBody))
}

func TestRecoveryPolicy_RetriedRequestIsNotRefreshedAgain(t *testing.T) {
	store := tokenstore.NewMemoryStore()
	refresher := &staticRefresher{token: "AT2"}
	recorder := notify.NewRecorder()

	hook := RecoveryPolicy(refresher, store, recorder, nil)

	req, _ := http.NewRequest(http.MethodGet, "http://auth/me", nil)
	req = httpclient.MarkRetried(req)

	_, err := hook(context.Background(), req, jsonResponse(http.StatusUnauthorized, `{"message":"still no"}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	assert.Equal(t, 0, refresher.calls)

	// The repeated 401 is a terminal failure: one notification, marked as such.
	assert.True(t, alreadyNotified(err))
	require.Len(t, recorder.All(), 1)
	assert.Equal(t, "still no", recorder.All()[0].Message)
}

func TestRecoveryPolicy_NoRefreshTokenPropagatesUnnotified(t *testing.T) {
	store := tokenstore.NewMemoryStore()
	refresher := &staticRefresher{token: ""}
	recorder := notify.NewRecorder()

	hook := RecoveryPolicy(refresher, store, recorder, nil)

	req, _ := http.NewRequest(http.MethodGet, "http://auth/me", nil)
	_, err := hook(context.Background(), req, jsonResponse(http.StatusUnauthorized, `{"message":"missing credentials"}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	// The caller owns the notification for this one.
	assert.False(t, alreadyNotified(err))
	assert.Empty(t, recorder.All())
}

func TestRecoveryPolicy_FailedRefreshBecomesSessionExpired(t *testing.T) {
	store := tokenstore.NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), tokenstore.Pair{Access: "stale", Refresh: "RT1"}))

	// The coordinator already notified and cleared; the hook only propagates.
	refresher := &staticRefresher{token: ""}
	recorder := notify.NewRecorder()

	hook := RecoveryPolicy(refresher, store, recorder, nil)

	req, _ := http.NewRequest(http.MethodGet, "http://auth/me", nil)
	_, err := hook(context.Background(), req, jsonResponse(http.StatusUnauthorized, `{}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrSessionExpired)
	assert.True(t, alreadyNotified(err))
	assert.Empty(t, recorder.All())
}

func TestRecoveryPolicy_ClassifiesTerminalFailures(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		wantErr     error
		wantMessage string
		wantLevel   notify.Level
	}{
		{"forbidden", http.StatusForbidden, apperrors.ErrForbidden, AccessDeniedMessage, notify.LevelError},
		{"not found", http.StatusNotFound, apperrors.ErrNotFound, NotFoundMessage, notify.LevelWarning},
		{"rate limited", http.StatusTooManyRequests, apperrors.ErrRateLimited, RateLimitedMessage, notify.LevelWarning},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := notify.NewRecorder()
			hook := RecoveryPolicy(&staticRefresher{}, tokenstore.NewMemoryStore(), recorder, nil)

			req, _ := http.NewRequest(http.MethodGet, "http://auth/thing", nil)
			_, err := hook(context.Background(), req, jsonResponse(tt.status, `{"message":"nope"}`))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, alreadyNotified(err))

			notifications := recorder.All()
			require.Len(t, notifications, 1)
			assert.Equal(t, tt.wantMessage, notifications[0].Message)
			assert.Equal(t, tt.wantLevel, notifications[0].Level)
		})
	}
}

var _ TokenRefresher = (*refresh.Coordinator)(nil)
