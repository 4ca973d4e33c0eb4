package providers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	DefaultIDTokenDuration      = time.Hour
	DefaultRefreshTokenDuration = 30 * 24 * time.Hour
	DefaultIssuer               = "mvp-hunter-auth"

	tokenUseID      = "id"
	tokenUseRefresh = "refresh"
)

var _ AuthProvider = &JWTAuthProvider{}

// Claims are carried by both the ID and the refresh token. TokenUse keeps
// one from being accepted as the other.
type Claims struct {
	Email    string `json:"email,omitempty"`
	TokenUse string `json:"token_use"`
	jwt.RegisteredClaims
}

// JWTAuthProvider issues and verifies HMAC-signed tokens for locally managed
// accounts.
type JWTAuthProvider struct {
	secret          []byte
	issuer          string
	idTokenDuration time.Duration
	refreshDuration time.Duration
	now             func() time.Time
}

type NewJWTAuthProviderOptions struct {
	Secret               string
	Issuer               string
	IDTokenDuration      time.Duration
	RefreshTokenDuration time.Duration
	Now                  func() time.Time
}

func NewJWTAuthProvider(opts NewJWTAuthProviderOptions) (*JWTAuthProvider, error) {
	if len(opts.Secret) < 16 {
		return nil, fmt.Errorf("JWT secret must be at least 16 characters")
	}
	p := &JWTAuthProvider{
		secret:          []byte(opts.Secret),
		issuer:          opts.Issuer,
		idTokenDuration: opts.IDTokenDuration,
		refreshDuration: opts.RefreshTokenDuration,
		now:             opts.Now,
	}
	if p.issuer == "" {
		p.issuer = DefaultIssuer
	}
	if p.idTokenDuration <= 0 {
		p.idTokenDuration = DefaultIDTokenDuration
	}
	if p.refreshDuration <= 0 {
		p.refreshDuration = DefaultRefreshTokenDuration
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p, nil
}

// IDTokenDuration is the lifetime of issued ID tokens.
func (p *JWTAuthProvider) IDTokenDuration() time.Duration {
	return p.idTokenDuration
}

// IssueIDToken signs a short-lived token accepted by VerifyToken.
func (p *JWTAuthProvider) IssueIDToken(uid string, email string) (string, error) {
	return p.issue(uid, email, tokenUseID, p.idTokenDuration)
}

// IssueRefreshToken signs a long-lived token accepted by VerifyRefreshToken.
func (p *JWTAuthProvider) IssueRefreshToken(uid string, email string) (string, error) {
	return p.issue(uid, email, tokenUseRefresh, p.refreshDuration)
}

func (p *JWTAuthProvider) issue(uid, email, use string, ttl time.Duration) (string, error) {
	now := p.now()
	claims := Claims{
		Email:    email,
		TokenUse: use,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    p.issuer,
			Subject:   uid,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("error signing token: %v", err)
	}
	return signed, nil
}

// VerifyToken verifies an ID token
func (p *JWTAuthProvider) VerifyToken(ctx context.Context, idToken string) (*TokenClaims, error) {
	return p.verify(idToken, tokenUseID)
}

// VerifyRefreshToken verifies a refresh token
func (p *JWTAuthProvider) VerifyRefreshToken(refreshToken string) (*TokenClaims, error) {
	return p.verify(refreshToken, tokenUseRefresh)
}

func (p *JWTAuthProvider) verify(tokenString string, use string) (*TokenClaims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return p.secret, nil
	},
		jwt.WithIssuer(p.issuer),
		jwt.WithTimeFunc(p.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("error verifying token: %v", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.TokenUse != use {
		return nil, fmt.Errorf("expected %s token, got %q", use, claims.TokenUse)
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return &TokenClaims{
		UID:   claims.Subject,
		Email: claims.Email,
	}, nil
}
