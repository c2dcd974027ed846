package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const defaultTokenTTL = 24 * time.Hour

var ErrInvalidToken = errors.New("invalid token")

// Claims is what a verified token says about its bearer.
type Claims struct {
	UserID uint
}

// Verifier turns a bearer token into claims.
type Verifier interface {
	Verify(ctx context.Context, token string) (Claims, error)
}

// HMACVerifier issues and checks HS256 JWTs signed with a secret shared with the
// identity service. The user id travels in the sub claim; exp is mandatory.
type HMACVerifier struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// ensure HMACVerifier implements the interface
var _ Verifier = (*HMACVerifier)(nil)

// Option configures an HMACVerifier.
type Option func(*HMACVerifier)

// WithTokenTTL sets how long issued tokens stay valid. Non-positive values keep the default.
func WithTokenTTL(ttl time.Duration) Option {
	return func(v *HMACVerifier) {
		if ttl > 0 {
			v.ttl = ttl
		}
	}
}

// WithClock replaces the clock used to stamp and check token times.
func WithClock(now func() time.Time) Option {
	return func(v *HMACVerifier) {
		v.now = now
	}
}

func NewHMACVerifier(secret string, opts ...Option) *HMACVerifier {
	v := &HMACVerifier{secret: []byte(secret), ttl: defaultTokenTTL, now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Sign issues a token for userID.
func (v *HMACVerifier) Sign(userID uint) (string, error) {
	now := v.now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatUint(uint64(userID), 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(v.ttl)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token for user %d: %w", userID, err)
	}
	return token, nil
}

func (v *HMACVerifier) Verify(_ context.Context, token string) (Claims, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(strings.TrimSpace(token), &claims,
		func(*jwt.Token) (any, error) { return v.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	id, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || id == 0 {
		return Claims{}, fmt.Errorf("%w: bad subject %q", ErrInvalidToken, claims.Subject)
	}
	return Claims{UserID: uint(id)}, nil
}
