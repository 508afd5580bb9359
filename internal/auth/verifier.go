package auth

import (
	"context"
	"errors"
	"regexp"
	"strings"
)

var ErrInvalidToken = errors.New("invalid access token")

// User is the identity behind a verified bearer token.
type User struct {
	ID    string
	Email string
	Name  string
}

type Verifier interface {
	VerifyAccessToken(ctx context.Context, token string) (User, error)
}

var devNameRE = regexp.MustCompile(`^[a-z0-9_]{3,24}$`)

// DevVerifier trusts the token as the player name. Only for local play.
type DevVerifier struct{}

func (DevVerifier) VerifyAccessToken(_ context.Context, token string) (User, error) {
	name := strings.ToLower(strings.TrimSpace(token))
	if !devNameRE.MatchString(name) {
		return User{}, ErrInvalidToken
	}
	return User{ID: "dev:" + name, Name: name}, nil
}
