package identity

import (
	"context"
	"crypto/subtle"
	"sync"

	"PPGate/tools/errs"
	"PPGate/tools/ids"
)

// MemoryAuthenticator keeps accounts and the revocation set in process.
// It backs tests and single-node deployments that run without redis.
type MemoryAuthenticator struct {
	opts Options

	mu      sync.RWMutex
	users   map[string]memUser // username -> account
	revoked map[string]struct{}
}

type memUser struct {
	id           string
	passwordHash string
}

func NewMemoryAuthenticator(opts Options) *MemoryAuthenticator {
	return &MemoryAuthenticator{
		opts:    opts,
		users:   make(map[string]memUser),
		revoked: make(map[string]struct{}),
	}
}

// AddUser registers an account, returning its generated user id.
// Re-registering an existing username overwrites the password.
func (m *MemoryAuthenticator) AddUser(username, password string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[username]
	if !ok {
		u = memUser{id: ids.GenerateShort()}
	}
	u.passwordHash = HashPassword(password)
	m.users[username] = u
	return u.id
}

func (m *MemoryAuthenticator) Login(_ context.Context, username, password string) (Identity, string, error) {
	m.mu.RLock()
	u, ok := m.users[username]
	m.mu.RUnlock()

	hash := HashPassword(password)
	if !ok || subtle.ConstantTimeCompare([]byte(hash), []byte(u.passwordHash)) != 1 {
		return Identity{}, "", errs.ErrAuthFailed.WithDetail("bad username or password")
	}

	id := Identity{UserID: u.id, Username: username}
	token, _, err := generateToken(m.opts, id)
	if err != nil {
		return Identity{}, "", err
	}
	return id, token, nil
}

func (m *MemoryAuthenticator) Verify(_ context.Context, token string) (Identity, error) {
	m.mu.RLock()
	_, revoked := m.revoked[HashToken(token)]
	m.mu.RUnlock()
	if revoked {
		return Identity{}, errs.ErrTokenRevoked
	}
	return verifyToken(m.opts, token)
}

func (m *MemoryAuthenticator) Revoke(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[HashToken(token)] = struct{}{}
	return nil
}
