// Package identity is the boundary to the credential/identity collaborator.
// The gateway only ever calls Login and Verify; everything behind them
// (password storage, token issuance, revocation) is this package's business.
package identity

import "context"

// Identity is a verified user.
type Identity struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// Authenticator turns a credential into a verified identity.
type Authenticator interface {
	// Login validates a username/password pair and issues a bearer token.
	Login(ctx context.Context, username, password string) (Identity, string, error)
	// Verify validates a previously issued bearer token.
	Verify(ctx context.Context, token string) (Identity, error)
	// Revoke invalidates a token before its natural expiry.
	Revoke(ctx context.Context, token string) error
}
