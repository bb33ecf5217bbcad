package application

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"
)

var (
	ErrInvalidTokenHash         = errors.New("invalid token hash format")
	ErrIncompatibleTokenVersion = errors.New("incompatible token hash version")
)

type Argon2idParams struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

var DefaultArgon2idParams = Argon2idParams{
	Memory:      64 * 1024,
	Iterations:  3,
	Parallelism: 2,
	SaltLength:  16,
	KeyLength:   32,
}

// HashToken derives the PHC formatted argon2id hash stored in configuration
// for an API token.
func HashToken(token string, params Argon2idParams) (string, error) {
	salt := make([]byte, params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(token), salt, params.Iterations, params.Memory, params.Parallelism, params.KeyLength)

	b64Salt := base64.RawStdEncoding.EncodeToString(salt)
	b64Hash := base64.RawStdEncoding.EncodeToString(hash)

	// $argon2id$v=19$m=...,t=...,p=...$salt$hash
	format := "$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s"
	return fmt.Sprintf(format, argon2.Version, params.Memory, params.Iterations, params.Parallelism, b64Salt, b64Hash), nil
}

// VerifyToken compares token with a hash produced by HashToken.
func VerifyToken(hashedToken, token string) error {
	parts := strings.Split(hashedToken, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return ErrInvalidTokenHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTokenHash, err)
	}
	if version != argon2.Version {
		return ErrIncompatibleTokenVersion
	}

	var params Argon2idParams
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.Memory, &params.Iterations, &params.Parallelism); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTokenHash, err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTokenHash, err)
	}
	decodedHash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTokenHash, err)
	}
	params.KeyLength = uint32(len(decodedHash))

	comparisonHash := argon2.IDKey([]byte(token), salt, params.Iterations, params.Memory, params.Parallelism, params.KeyLength)
	if subtle.ConstantTimeCompare(decodedHash, comparisonHash) == 1 {
		return nil
	}
	return ErrInvalidCredentials
}

// TokenVerifier compares a stored hash with a candidate token.
type TokenVerifier func(hashedToken, token string) error

// TokenAuthenticator checks bearer tokens against the configured hash.
// Successful verifications are remembered for a short while so argon2 runs
// once per token rather than once per request.
type TokenAuthenticator struct {
	hash     string
	verify   TokenVerifier
	verified *ttlCache[struct{}]
	logger   *slog.Logger
}

// NewTokenAuthenticator builds an authenticator. An empty hash disables
// authentication.
func NewTokenAuthenticator(hash string, verify TokenVerifier, now func() time.Time, logger *slog.Logger) *TokenAuthenticator {
	if verify == nil {
		verify = VerifyToken
	}
	return &TokenAuthenticator{
		hash:     strings.TrimSpace(hash),
		verify:   verify,
		verified: newTTLCache[struct{}](5*time.Minute, 64, now, nil),
		logger:   defaultLogger(logger),
	}
}

// Enabled reports whether a token hash is configured.
func (a *TokenAuthenticator) Enabled() bool {
	return a != nil && a.hash != ""
}

// Authenticate returns nil when the token is accepted.
func (a *TokenAuthenticator) Authenticate(ctx context.Context, token string) error {
	if !a.Enabled() {
		return nil
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrUnauthorized
	}

	digest := sha256.Sum256([]byte(token))
	key := hex.EncodeToString(digest[:])
	if _, ok := a.verified.Get(key); ok {
		return nil
	}

	if err := a.verify(a.hash, token); err != nil {
		logger := serviceLogger(ctx, a.logger, "TokenAuthenticator", "Authenticate")
		if errors.Is(err, ErrInvalidCredentials) {
			logger.WarnContext(ctx, "token rejected", "error_kind", ErrorKind(err))
			return ErrInvalidCredentials
		}
		logger.ErrorContext(ctx, "token verification failed", "error", err)
		return fmt.Errorf("verify token: %w", err)
	}
	a.verified.Store(key, struct{}{})
	return nil
}
