package session

import "context"

type contextKey struct{}

// NewContext returns a context carrying the session manager, for handing the
// session to request-scoped code the way a provider hands it to descendants.
func NewContext(ctx context.Context, m *Manager) context.Context {
	return context.WithValue(ctx, contextKey{}, m)
}

// FromContext returns the session manager stored in the context.
//
// Calling it outside a context prepared with NewContext is a programming
// error, not a runtime condition, and panics.
func FromContext(ctx context.Context) *Manager {
	m, ok := ctx.Value(contextKey{}).(*Manager)
	if !ok {
		panic("session: FromContext called outside a session scope; wrap the context with session.NewContext")
	}
	return m
}
