package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"

	"github.com/xenking/emart-orders/internal/domain/apperr"
	"github.com/xenking/emart-orders/internal/domain/auth"
)

var errForbiddenRole = apperr.New(apperr.KindAuthorization, "you are not allowed to access this resource")

// Claims is the bearer token payload.
type Claims struct {
	UserID string    `json:"userId"`
	Email  string    `json:"email"`
	Role   auth.Role `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator verifies HS256 bearer tokens.
type Authenticator struct {
	secret []byte
	issuer string
	parser *jwt.Parser
}

// NewAuthenticator creates an Authenticator. When issuer is set, tokens must
// carry it.
func NewAuthenticator(secret, issuer string) *Authenticator {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return &Authenticator{
		secret: []byte(secret),
		issuer: issuer,
		parser: jwt.NewParser(opts...),
	}
}

// Sign issues a token for p valid for ttl. Used by the seed tool and tests.
func (a *Authenticator) Sign(p auth.Principal, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: p.UserID,
		Email:  p.Email,
		Role:   p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.issuer,
			Subject:   p.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return token, nil
}

// Parse verifies token and returns its principal.
func (a *Authenticator) Parse(token string) (auth.Principal, error) {
	var claims Claims
	if _, err := a.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}); err != nil {
		return auth.Principal{}, errors.Wrap(err, "parse token")
	}
	if claims.UserID == "" {
		return auth.Principal{}, errors.New("token has no user")
	}
	switch claims.Role {
	case auth.RoleAdmin, auth.RoleUser, auth.RoleAgent:
	default:
		return auth.Principal{}, errors.Errorf("unknown role %q", claims.Role)
	}
	return auth.Principal{UserID: claims.UserID, Email: claims.Email, Role: claims.Role}, nil
}

// Middleware rejects requests without a valid token with 401 and stores the
// principal in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, r, errUnauthorized)
			return
		}
		p, err := a.Parse(token)
		if err != nil {
			writeError(w, r, errUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
	})
}

// bearerToken accepts both "Bearer <token>" and a bare token.
func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return h
}

// RequireRole lets through principals holding one of roles and answers 403
// otherwise.
func RequireRole(roles ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := actor(r)
			if err != nil {
				writeError(w, r, err)
				return
			}
			if !p.HasRole(roles...) {
				writeError(w, r, errForbiddenRole)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
