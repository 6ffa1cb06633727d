package rpc

import (
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// PBKDF2Iterations for deriving the signing key from the cluster secret
	PBKDF2Iterations = 100000
	signingKeySize   = 32
	tokenIssuer      = "petasos"
	defaultTokenTTL  = time.Minute
)

// Authenticator signs and verifies per-request tokens with a key derived
// from the shared cluster secret.
type Authenticator struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewAuthenticator derives the signing key from secret and salt (typically
// the cluster name).
func NewAuthenticator(secret, salt string, ttl time.Duration) (*Authenticator, error) {
	if len(secret) < 32 {
		return nil, ErrShortSecret
	}
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &Authenticator{
		key: pbkdf2.Key([]byte(secret), []byte(salt), PBKDF2Iterations, signingKeySize, sha256.New),
		ttl: ttl,
		now: time.Now,
	}, nil
}

// Sign issues a token naming subject
func (a *Authenticator) Sign(subject string, method Method) (string, error) {
	now := a.now()
	claims := jwt.MapClaims{
		"iss":    tokenIssuer,
		"sub":    subject,
		"method": string(method),
		"iat":    now.Unix(),
		"exp":    now.Add(a.ttl).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}

// Verify checks a token issued for method and returns its subject
func (a *Authenticator) Verify(tokenString string, method Method) (string, error) {
	if tokenString == "" {
		return "", fmt.Errorf("%w: missing token", ErrUnauthorized)
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.key, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithTimeFunc(a.now))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("%w: invalid claims", ErrUnauthorized)
	}
	if m, _ := claims["method"].(string); m != string(method) {
		return "", fmt.Errorf("%w: token issued for %q", ErrUnauthorized, m)
	}
	sub, _ := claims.GetSubject()
	return sub, nil
}
