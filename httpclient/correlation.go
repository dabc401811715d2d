package httpclient

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/utafrali/AuthClientGo/logger"
)

// CorrelationIDHeader is the header carrying the request correlation ID.
const CorrelationIDHeader = "X-Correlation-ID"

// CorrelationHook returns a request hook that stamps every outgoing request
// with a correlation ID: the one stored in the context if present, a fresh
// UUID otherwise. An ID already set on the request is left alone.
func CorrelationHook() RequestHook {
	return func(ctx context.Context, req *http.Request) error {
		if req.Header.Get(CorrelationIDHeader) != "" {
			return nil
		}
		id := logger.CorrelationIDFromContext(ctx)
		if id == "" {
			id = uuid.New().String()
		}
		req.Header.Set(CorrelationIDHeader, id)
		return nil
	}
}
