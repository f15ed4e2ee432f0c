package auth

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

type LoginChecker struct {
	ttl         time.Duration
	redisClient *redis.Client
}

func NewLoginChecker(ttl time.Duration, redisClient *redis.Client) *LoginChecker {
	return &LoginChecker{
		ttl:         ttl,
		redisClient: redisClient,
	}
}

// CurrentUser resolves the token to the id of the logged user.
// Unknown and expired tokens give ErrNotLoggedIn.
func (lc *LoginChecker) CurrentUser(ctx context.Context, token string) (string, error) {
	cmd := lc.redisClient.Get(ctx, sessionKeyPrefix+token)
	if err := cmd.Err(); err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotLoggedIn
		}
		return "", err
	}

	session, err := parseLoginSession(cmd.Val())
	if err != nil {
		return "", err
	}
	if time.Since(session.CreatedAt) > lc.ttl {
		return "", ErrNotLoggedIn
	}
	return session.UserID, nil
}
