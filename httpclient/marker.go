package httpclient

import (
	"context"
	"net/http"
)

type retriedKey struct{}

// MarkRetried returns a copy of the request flagged as already recovered once.
// The flag bounds credential recovery to a single attempt per original call.
func MarkRetried(req *http.Request) *http.Request {
	return req.WithContext(context.WithValue(req.Context(), retriedKey{}, true))
}

// IsRetried reports whether the request already went through one recovery
// attempt.
func IsRetried(req *http.Request) bool {
	retried, _ := req.Context().Value(retriedKey{}).(bool)
	return retried
}
