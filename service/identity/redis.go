package identity

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"PPGate/tools/errs"
	"PPGate/tools/ids"
)

const (
	userKeyPrefix    = "gw:user:"  // hash: id, password
	revokedKeyPrefix = "gw:black:" // revoked token hashes
)

// RedisAuthenticator stores accounts as redis hashes and revoked tokens as
// expiring keys, so revocation survives a gateway restart.
type RedisAuthenticator struct {
	rdb  *redis.Client
	opts Options
}

func NewRedisAuthenticator(rdb *redis.Client, opts Options) *RedisAuthenticator {
	return &RedisAuthenticator{rdb: rdb, opts: opts}
}

// EnsureUser provisions an account if it does not exist yet and returns its
// user id. Used by startup seeding, not exposed over the wire.
func (r *RedisAuthenticator) EnsureUser(ctx context.Context, username, password string) (string, error) {
	key := userKeyPrefix + username
	id, err := r.rdb.HGet(ctx, key, "id").Result()
	if err == nil && id != "" {
		return id, nil
	}
	if err != nil && err != redis.Nil {
		return "", errs.WrapMsg(err, "ensure user")
	}
	id = ids.GenerateShort()
	if err := r.rdb.HSet(ctx, key, "id", id, "password", HashPassword(password)).Err(); err != nil {
		return "", errs.WrapMsg(err, "ensure user")
	}
	return id, nil
}

func (r *RedisAuthenticator) Login(ctx context.Context, username, password string) (Identity, string, error) {
	vals, err := r.rdb.HMGet(ctx, userKeyPrefix+username, "id", "password").Result()
	if err != nil {
		return Identity{}, "", errs.WrapMsg(err, "login lookup")
	}
	id, _ := vals[0].(string)
	stored, _ := vals[1].(string)
	hash := HashPassword(password)
	if id == "" || subtle.ConstantTimeCompare([]byte(hash), []byte(stored)) != 1 {
		return Identity{}, "", errs.ErrAuthFailed.WithDetail("bad username or password")
	}

	ident := Identity{UserID: id, Username: username}
	token, _, err := generateToken(r.opts, ident)
	if err != nil {
		return Identity{}, "", err
	}
	return ident, token, nil
}

func (r *RedisAuthenticator) Verify(ctx context.Context, token string) (Identity, error) {
	n, err := r.rdb.Exists(ctx, revokedKeyPrefix+HashToken(token)).Result()
	if err != nil {
		return Identity{}, errs.WrapMsg(err, "revocation lookup")
	}
	if n > 0 {
		return Identity{}, errs.ErrTokenRevoked
	}
	return verifyToken(r.opts, token)
}

// Revoke blacklists the token for the remainder of its lifetime; the key
// expires on its own once the token would no longer verify anyway.
func (r *RedisAuthenticator) Revoke(ctx context.Context, token string) error {
	ttl := r.opts.TTL
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	key := fmt.Sprintf("%s%s", revokedKeyPrefix, HashToken(token))
	return errs.Wrap(r.rdb.Set(ctx, key, "1", ttl).Err())
}
