package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token types carried in the "type" claim.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// subject is the identity stored in every token; the console has one user.
const subject = "user"

// ErrInvalidToken is returned for tokens that fail signature, expiry or type checks.
var ErrInvalidToken = errors.New("auth: invalid token")

// Claims are the JWT claims of a session token.
type Claims struct {
	Type string `json:"type"`
	jwt.RegisteredClaims
}

// Tokens is an issued access/refresh pair.
type Tokens struct {
	Access         string
	Refresh        string
	AccessExpires  time.Time
	RefreshExpires time.Time
}

// Issuer signs and parses HS256 session tokens.
type Issuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewIssuer creates an Issuer. The secret must not be empty.
func NewIssuer(secret string, accessTTL, refreshTTL time.Duration) (*Issuer, error) {
	if secret == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	if accessTTL <= 0 || refreshTTL <= 0 {
		return nil, errors.New("auth: token lifetimes must be positive")
	}
	return &Issuer{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}, nil
}

// RandomSecret returns a hex-encoded 32-byte secret for installs that did not
// configure one. Sessions signed with it do not survive a restart.
func RandomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("auth: random secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Issue signs a fresh access and refresh token.
func (i *Issuer) Issue() (Tokens, error) {
	access, accessExp, err := i.sign(TypeAccess, i.accessTTL)
	if err != nil {
		return Tokens{}, err
	}
	refresh, refreshExp, err := i.sign(TypeRefresh, i.refreshTTL)
	if err != nil {
		return Tokens{}, err
	}
	return Tokens{
		Access:         access,
		Refresh:        refresh,
		AccessExpires:  accessExp,
		RefreshExpires: refreshExp,
	}, nil
}

// IssueAccess signs a new access token only, used when refreshing a session.
func (i *Issuer) IssueAccess() (string, time.Time, error) {
	return i.sign(TypeAccess, i.accessTTL)
}

func (i *Issuer) sign(typ string, ttl time.Duration) (string, time.Time, error) {
	now := i.now()
	exp := now.Add(ttl)
	claims := Claims{
		Type: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign %s token: %w", typ, err)
	}
	return s, exp, nil
}

// Parse validates a token's signature, expiry and type.
func (i *Issuer) Parse(token, typ string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Type != typ {
		return nil, fmt.Errorf("%w: type %q, want %q", ErrInvalidToken, claims.Type, typ)
	}
	return claims, nil
}

// AccessTTL returns the access token lifetime.
func (i *Issuer) AccessTTL() time.Duration { return i.accessTTL }

// RefreshTTL returns the refresh token lifetime.
func (i *Issuer) RefreshTTL() time.Duration { return i.refreshTTL }
