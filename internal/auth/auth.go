// Package auth resolves a bearer token into a principal with a role.
// Which Authenticator runs is decided once at startup from configuration.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"grievance/backend/internal/config"
)

// Role is a staff or user role. Roles are ordered; see AtLeast.
type Role string

const (
	RoleStudent    Role = "student"
	RoleCommittee  Role = "committee"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

var rank = map[Role]int{
	RoleStudent:    1,
	RoleCommittee:  2,
	RoleAdmin:      3,
	RoleSuperAdmin: 4,
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := rank[r]
	return ok
}

// AtLeast reports whether r grants everything want grants.
func (r Role) AtLeast(want Role) bool {
	return r.Valid() && rank[r] >= rank[want]
}

// Principal is the authenticated caller.
type Principal struct {
	UserID string
	Role   Role
}

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid or expired token")
)

// Authenticator turns a raw bearer token into a Principal.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (Principal, error)
}

// DemoPrincipal is who every request runs as when auth is disabled.
var DemoPrincipal = Principal{UserID: "demo-user", Role: RoleSuperAdmin}

// Disabled accepts every request as DemoPrincipal. For local demos only.
type Disabled struct{}

func (Disabled) Authenticate(ctx context.Context, token string) (Principal, error) {
	return DemoPrincipal, nil
}

// Claims is the JWT payload: sub, role, exp and iss.
type Claims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

// JWTVerifier validates HS256 tokens signed with a shared secret.
type JWTVerifier struct {
	secret []byte
	issuer string
}

func NewJWTVerifier(secret, issuer string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret), issuer: issuer}
}

func (v *JWTVerifier) Authenticate(ctx context.Context, token string) (Principal, error) {
	if token == "" {
		return Principal{}, ErrMissingToken
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims.Subject == "" || !claims.Role.Valid() {
		return Principal{}, fmt.Errorf("%w: missing subject or unknown role", ErrInvalidToken)
	}

	return Principal{UserID: claims.Subject, Role: claims.Role}, nil
}

// New picks the Authenticator for cfg.
func New(cfg config.AuthConfig) Authenticator {
	if !cfg.Enabled {
		return Disabled{}
	}
	return NewJWTVerifier(cfg.JWTSecret, cfg.Issuer)
}

// IssueToken signs a token for userID with the given role, valid for ttl
// from now.
func IssueToken(cfg config.AuthConfig, userID string, role Role, now time.Time) (string, error) {
	if !role.Valid() {
		return "", fmt.Errorf("unknown role %q", role)
	}

	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.TokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.JWTSecret))
}
