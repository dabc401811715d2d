// Package tokenstore persists the access/refresh token pair between process
// runs. Backends are pass-through key-value storage: token contents are never
// inspected or validated here.
//
// Every backend keeps the pair invariant: both tokens are written together and
// removed together, so a store never holds exactly one of the two.
package tokenstore

import "context"

// Kind selects one of the two persisted tokens.
type Kind string

const (
	// Access is the short-lived credential attached to authenticated requests.
	Access Kind = "access_token"
	// Refresh is the longer-lived credential used solely to obtain a new
	// access token.
	Refresh Kind = "refresh_token"
)

// Pair holds an access and refresh token that belong together.
type Pair struct {
	Access  string `json:"access_token"`
	Refresh string `json:"refresh_token"`
}

// Store is the durable read/write surface for the token pair.
// Get returns an empty string when the requested token is absent.
type Store interface {
	Get(ctx context.Context, kind Kind) (string, error)
	Set(ctx context.Context, pair Pair) error
	Clear(ctx context.Context) error
}
