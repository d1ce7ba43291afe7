package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Roles, lowest to highest. Each role implies the ones below it.
const (
	RoleViewer     = "viewer"
	RoleChangeLead = "change_lead"
	RoleAdmin      = "admin"
)

var roleRank = map[string]int{
	RoleViewer:     1,
	RoleChangeLead: 2,
	RoleAdmin:      3,
}

// Claims is the payload extracted from a bearer token.
type Claims struct {
	Subject string
	Role    string
}

var (
	// ErrMissingToken is returned when the Authorization header is absent.
	ErrMissingToken = errors.New("missing bearer token")
	// ErrInvalidToken wraps parsing/validation errors.
	ErrInvalidToken = errors.New("invalid bearer token")
)

// ParseToken validates an HS256 JWT and returns normalized claims.
func ParseToken(token, secret string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingToken
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	subject, _ := claims["sub"].(string)
	role, _ := claims["role"].(string)
	if subject == "" {
		return nil, ErrInvalidToken
	}
	if _, known := roleRank[role]; !known {
		return nil, ErrInvalidToken
	}
	return &Claims{Subject: subject, Role: role}, nil
}

// HasRole reports whether the claims carry at least the given role.
func (c *Claims) HasRole(role string) bool {
	if c == nil {
		return false
	}
	return roleRank[c.Role] >= roleRank[role]
}

type claimsKey struct{}

// ClaimsFromContext returns the authenticated claims, if any.
func ClaimsFromContext(ctx context.Context) *Claims {
	c, _ := ctx.Value(claimsKey{}).(*Claims)
	return c
}

// Authenticator guards handlers with the configured JWT secret. An empty
// secret disables auth entirely (local dev only).
type Authenticator struct {
	secret string
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: secret}
}

// Require wraps a handler so only callers holding at least minRole get
// through.
func (a *Authenticator) Require(minRole string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if a.secret == "" {
			next(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if token == header {
			token = ""
		}

		claims, err := ParseToken(token, a.secret)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, Fail("authentication required"))
			return
		}
		if !claims.HasRole(minRole) {
			writeJSON(w, http.StatusForbidden, Fail("insufficient role"))
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
	}
}
