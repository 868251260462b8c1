package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "keygate"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenExpired       = errors.New("token expired")
	ErrNoSigningSecret    = errors.New("admin jwt secret is not configured")
)

// AdminPrincipal identifies the operator behind an admin API request.
type AdminPrincipal struct {
	Actor string
}

// AuthService issues and validates the bearer tokens that guard the admin API.
type AuthService struct {
	jwtSecret []byte
}

func NewAuthService(jwtSecret string) *AuthService {
	return &AuthService{jwtSecret: []byte(jwtSecret)}
}

// Enabled reports whether a signing secret is configured.
func (s *AuthService) Enabled() bool {
	return len(s.jwtSecret) > 0
}

// ValidateJWT verifies a JWT bearer token and returns the operator identity.
func (s *AuthService) ValidateJWT(ctx context.Context, tokenStr string) (*AdminPrincipal, error) {
	if !s.Enabled() {
		return nil, ErrNoSigningSecret
	}
	claims := &jwtClaims{}

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	}, jwt.WithIssuer(tokenIssuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidCredentials
	}

	if !token.Valid || strings.TrimSpace(claims.Actor) == "" {
		return nil, ErrInvalidCredentials
	}

	return &AdminPrincipal{Actor: claims.Actor}, nil
}

// IssueJWT creates a signed token naming the operator. The actor name is what
// bans record as the deactivating party.
func (s *AuthService) IssueJWT(ctx context.Context, actor string, ttl time.Duration) (string, error) {
	if !s.Enabled() {
		return "", ErrNoSigningSecret
	}
	if strings.TrimSpace(actor) == "" {
		return "", &ValidationError{Field: "actor", Message: "actor is required"}
	}
	now := time.Now()
	claims := jwtClaims{
		Actor: actor,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    tokenIssuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

type jwtClaims struct {
	Actor string `json:"actor"`
	jwt.RegisteredClaims
}
