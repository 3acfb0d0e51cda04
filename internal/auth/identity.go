// Package auth resolves the acting user. Issuing credentials is someone
// else's job; this package only verifies them.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lazypower/crisp/internal/engagement"
)

// Identity returns the stable ID of the user behind ctx.
type Identity interface {
	CurrentUserID(ctx context.Context) (string, error)
}

type ctxKey struct{}

// WithUserID returns a context carrying an authenticated user ID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// ContextIdentity reads the user ID placed on the context by Middleware.
type ContextIdentity struct{}

// CurrentUserID implements Identity.
func (ContextIdentity) CurrentUserID(ctx context.Context) (string, error) {
	uid, _ := ctx.Value(ctxKey{}).(string)
	if uid == "" {
		return "", engagement.ErrUnauthenticated
	}
	return uid, nil
}

// Verifier checks HS256 bearer tokens whose subject is the user ID.
type Verifier struct {
	secret []byte
	issuer string
}

// NewVerifier returns a verifier for tokens signed with secret. An empty
// issuer accepts any issuer.
func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer}
}

// Verify parses token and returns its subject.
func (v *Verifier) Verify(token string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", engagement.ErrUnauthenticated, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: token has no subject", engagement.ErrUnauthenticated)
	}
	return claims.Subject, nil
}

// Issue signs a token for userID. Used by the CLI and tests; production
// tokens come from the identity provider.
func (v *Verifier) Issue(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    v.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Middleware attaches the bearer token's subject to the request context.
// Requests without a valid token pass through unauthenticated; handlers that
// mutate state reject them via Identity.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearer(r)
		if ok {
			if uid, err := v.Verify(token); err == nil {
				r = r.WithContext(WithUserID(r.Context(), uid))
			}
		}
		next.ServeHTTP(w, r)
	})
}

func bearer(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(h[len(prefix):]), true
}

// IsUnauthenticated reports whether err is an identity failure.
func IsUnauthenticated(err error) bool {
	return errors.Is(err, engagement.ErrUnauthenticated)
}
