package application

import (
	"context"
	"errors"
	"testing"
	"time"
)

var testArgon2Params = Argon2idParams{
	Memory:      1024,
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  8,
	KeyLength:   16,
}

func TestHashAndVerifyToken(t *testing.T) {
	t.Parallel()

	hash, err := HashToken("s3cret-token", testArgon2Params)
	if err != nil {
		t.Fatalf("hash token: %v", err)
	}

	if err := VerifyToken(hash, "s3cret-token"); err != nil {
		t.Fatalf("expected token to verify, got %v", err)
	}
	if err := VerifyToken(hash, "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestVerifyTokenRejectsMalformedHash(t *testing.T) {
	t.Parallel()

	cases := []string{
		"",
		"plain-text",
		"$bcrypt$v=19$m=1,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=x,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=1,t=1,p=1$!!!$aGFzaA",
	}
	for _, hash := range cases {
		if err := VerifyToken(hash, "token"); !errors.Is(err, ErrInvalidTokenHash) {
			t.Fatalf("expected ErrInvalidTokenHash for %q, got %v", hash, err)
		}
	}

	if err := VerifyToken("$argon2id$v=1$m=1,t=1,p=1$c2FsdA$aGFzaA", "token"); !errors.Is(err, ErrIncompatibleTokenVersion) {
		t.Fatalf("expected ErrIncompatibleTokenVersion, got %v", err)
	}
}

func TestTokenAuthenticator(t *testing.T) {
	t.Parallel()

	calls := 0
	verify := func(hash, token string) error {
		calls++
		if token == "good" {
			return nil
		}
		return ErrInvalidCredentials
	}
	auth := NewTokenAuthenticator("$argon2id$stub", verify, time.Now, nil)
	ctx := context.Background()

	if !auth.Enabled() {
		t.Fatalf("expected authenticator to be enabled")
	}
	if err := auth.Authenticate(ctx, ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for empty token, got %v", err)
	}
	if err := auth.Authenticate(ctx, "bad"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := auth.Authenticate(ctx, "good"); err != nil {
			t.Fatalf("expected good token to pass, got %v", err)
		}
	}
	if calls != 2 {
		t.Fatalf("expected verified token to be cached, verifier called %d times", calls)
	}
}

func TestTokenAuthenticatorDisabled(t *testing.T) {
	t.Parallel()

	auth := NewTokenAuthenticator("  ", nil, nil, nil)
	if auth.Enabled() {
		t.Fatalf("expected empty hash to disable authentication")
	}
	if err := auth.Authenticate(context.Background(), ""); err != nil {
		t.Fatalf("expected disabled authenticator to accept, got %v", err)
	}
}
