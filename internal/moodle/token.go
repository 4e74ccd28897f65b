package moodle

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// TokenSource supplies the Moodle web service token.
type TokenSource interface {
	// Token returns the current web service token.
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource returning a fixed token, for tests and local use.
type StaticToken string

// Token returns the fixed token.
func (s StaticToken) Token(_ context.Context) (string, error) {
	if s == "" {
		return "", errors.New("token is empty")
	}
	return string(s), nil
}

// tokenManager caches the web service token for the lifetime of the client.
// Moodle tokens are long-lived static secrets, so a single fetch suffices.
type tokenManager struct {
	// mu guards token.
	mu sync.Mutex

	// source supplies the token on first use.
	source TokenSource

	// token is the cached token.
	token string
}

// accessToken returns the cached token, fetching it on first use.
func (t *tokenManager) accessToken(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.token != "" {
		return t.token, nil
	}

	token, err := t.source.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("fetching web service token: %w", err)
	}
	if token == "" {
		return "", errors.New("web service token is empty")
	}

	t.token = token
	return token, nil
}
