package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const defaultTokenCookie = "auth_token"

// Claims are the JWT claims the gremlin API issues and accepts.
type Claims struct {
	UserID string   `json:"user_id"`
	Email  string   `json:"email,omitempty"`
	Roles  []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// JWTProvider resolves sessions from HMAC-signed bearer tokens. Tokens
// are read from the Authorization header or, failing that, from the
// auth_token cookie.
type JWTProvider struct {
	secret     []byte
	cookieName string
}

// JWTOption customizes a JWTProvider.
type JWTOption func(*JWTProvider)

// WithCookieName overrides the cookie consulted for the token.
func WithCookieName(name string) JWTOption {
	return func(p *JWTProvider) { p.cookieName = name }
}

// NewJWTProvider creates a provider validating tokens with the secret.
func NewJWTProvider(secret []byte, opts ...JWTOption) *JWTProvider {
	p := &JWTProvider{secret: secret, cookieName: defaultTokenCookie}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// GetSession resolves the request's session. Requests without a valid
// token resolve to the anonymous session; GetSession never fails.
func (p *JWTProvider) GetSession(ctx context.Context, r *http.Request) Session {
	token := p.extractToken(r)
	if token == "" {
		return Anonymous()
	}

	claims, err := p.validateToken(token)
	if err != nil {
		return Anonymous()
	}

	session := Session{
		User: &User{ID: claims.UserID, Email: claims.Email, Roles: claims.Roles},
	}
	if claims.ExpiresAt != nil {
		session.Expires = claims.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return session
}

// RequireSession resolves the session and returns UNAUTHORIZED when no
// user is present.
func (p *JWTProvider) RequireSession(ctx context.Context, r *http.Request) (Session, error) {
	return requireUser(p.GetSession(ctx, r))
}

// IssueToken signs a token for the user, expiring after ttl.
func (p *JWTProvider) IssueToken(user User, ttl time.Duration) (string, error) {
	claims := &Claims{
		UserID: user.ID,
		Email:  user.Email,
		Roles:  user.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "gremlin-api",
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
}

func (p *JWTProvider) extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return authHeader[len("Bearer "):]
	}
	if cookie, err := r.Cookie(p.cookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return ""
}

func (p *JWTProvider) validateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return p.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}
