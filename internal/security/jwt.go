package security

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/armelgeek/better-query/internal/orm/hooks"
	webcontext "github.com/armelgeek/better-query/internal/web/context"
)

var (
	// ErrInvalidToken is returned for a bearer token that fails validation
	ErrInvalidToken = errors.New("invalid token")
	// ErrInvalidAuthorization is returned for a malformed Authorization header
	ErrInvalidAuthorization = errors.New("invalid authorization format")
)

// TokenService issues and validates HS256 tokens
type TokenService struct {
	secretKey []byte
	tokenTTL  time.Duration
}

// NewTokenService creates a token service with the given secret and token TTL
func NewTokenService(secretKey string, tokenTTL time.Duration) *TokenService {
	return &TokenService{
		secretKey: []byte(secretKey),
		tokenTTL:  tokenTTL,
	}
}

// GenerateToken signs a token carrying the user's identity
func (s *TokenService) GenerateToken(user *hooks.User) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":    user.ID,
		"email":  user.Email,
		"roles":  user.Roles,
		"scopes": user.Scopes,
		"iat":    now.Unix(),
	}
	if s.tokenTTL != 0 {
		claims["exp"] = now.Add(s.tokenTTL).Unix()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secretKey)
}

// ParseToken validates a token and returns the user it identifies
func (s *TokenService) ParseToken(tokenString string) (*hooks.User, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secretKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	user := &hooks.User{
		ID:     stringClaim(claims, "sub"),
		Email:  stringClaim(claims, "email"),
		Roles:  listClaim(claims["roles"]),
		Scopes: listClaim(claims["scopes"]),
		Claims: claims,
	}
	if user.ID == "" {
		user.ID = stringClaim(claims, "user_id")
	}
	if len(user.Scopes) == 0 {
		user.Scopes = listClaim(claims["scope"])
	}
	if user.ID == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return user, nil
}

// JWTMiddleware is pipeline middleware that authenticates a bearer token.
// Requests without an Authorization header stay anonymous; a malformed or
// invalid token aborts the request.
func JWTMiddleware(secret string) hooks.Middleware {
	svc := NewTokenService(secret, 0)
	return func(ctx *hooks.Context) error {
		if ctx.Request == nil {
			return nil
		}
		user, err := svc.FromRequest(ctx.Request)
		if err != nil || user == nil {
			return err
		}
		ctx.User = user
		ctx.Scopes = mergeScopes(ctx.Scopes, user.Scopes)
		return nil
	}
}

// Authenticate is HTTP middleware storing the bearer token's user in the
// request context. Invalid tokens are rejected with 401.
func (s *TokenService) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := s.FromRequest(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		if user != nil {
			r = r.WithContext(webcontext.SetUser(r.Context(), user))
		}
		next.ServeHTTP(w, r)
	})
}

// FromRequest returns the user of the request's bearer token, or nil when the
// request carries no Authorization header
func (s *TokenService) FromRequest(r *http.Request) (*hooks.User, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, nil
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return nil, ErrInvalidAuthorization
	}
	return s.ParseToken(strings.TrimSpace(token))
}

func stringClaim(claims jwt.MapClaims, name string) string {
	s, _ := claims[name].(string)
	return s
}

// listClaim accepts a JSON array or a space separated string
func listClaim(v interface{}) []string {
	switch val := v.(type) {
	case []interface{}:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return val
	case string:
		return strings.Fields(val)
	}
	return nil
}

func mergeScopes(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, list := range [][]string{a, b} {
		for _, s := range list {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	return out
}
