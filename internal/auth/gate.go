// Package auth is the single shared-password gate in front of the reviewer
// surface. A correct password is exchanged for a short-lived HS256 token.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"reception-agent-go/internal/config"
)

const (
	issuer  = "reception-agent"
	subject = "reviewer"
)

var (
	ErrBadPassword  = errors.New("invalid password")
	ErrInvalidToken = errors.New("invalid token")
)

type Claims struct {
	jwt.RegisteredClaims
}

type Gate struct {
	hash   []byte
	secret []byte
	ttl    time.Duration
}

// NewGate builds a gate from the auth config. A configured bcrypt hash wins
// over the plain password, which is hashed here and then forgotten. Without a
// configured secret a random one is generated, so tokens do not survive a
// restart.
func NewGate(cfg config.Auth) (*Gate, error) {
	var hash []byte
	switch {
	case cfg.AdminPasswordHash != "":
		hash = []byte(cfg.AdminPasswordHash)
		if _, err := bcrypt.Cost(hash); err != nil {
			return nil, fmt.Errorf("APP_ADMIN_PASSWORD_HASH: %w", err)
		}
	case cfg.AdminPassword != "":
		var err error
		hash, err = bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash admin password: %w", err)
		}
	default:
		return nil, errors.New("APP_ADMIN_PASSWORD is required")
	}
	secret := cfg.SessionSecret
	if secret == "" {
		secret = uuid.NewString() + uuid.NewString()
	}
	ttl := cfg.SessionTTL.Duration
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Gate{hash: hash, secret: []byte(secret), ttl: ttl}, nil
}

func (g *Gate) CheckPassword(password string) error {
	if err := bcrypt.CompareHashAndPassword(g.hash, []byte(password)); err != nil {
		return ErrBadPassword
	}
	return nil
}

// Login checks the password and issues a token valid for the configured TTL.
func (g *Gate) Login(password string, now time.Time) (string, time.Time, error) {
	if err := g.CheckPassword(password); err != nil {
		return "", time.Time{}, err
	}
	exp := now.Add(g.ttl)
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
		ID:        uuid.NewString(),
	}}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return tok, exp, nil
}

// Verify checks signature, issuer, and expiry at now.
func (g *Gate) Verify(token string, now time.Time) (Claims, error) {
	var claims Claims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithLeeway(30*time.Second),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(issuer),
	)
	_, err := parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return g.secret, nil
	})
	if err != nil {
		return Claims{}, errors.Join(ErrInvalidToken, err)
	}
	if claims.Subject != subject {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}
