package auth

import "context"

var _ Checker = (*LoginChecker)(nil)
var _ Checker = (*LoginTestChecker)(nil)

type Checker interface {
	CurrentUser(ctx context.Context, token string) (string, error)
}

// LoginTestChecker maps tokens straight to user ids, for dev and tests.
type LoginTestChecker struct {
	Tokens map[string]string
}

func NewLoginTestChecker() *LoginTestChecker {
	return &LoginTestChecker{
		Tokens: map[string]string{},
	}
}

func (c *LoginTestChecker) CurrentUser(_ context.Context, token string) (string, error) {
	userID, ok := c.Tokens[token]
	if !ok {
		return "", ErrNotLoggedIn
	}
	return userID, nil
}
