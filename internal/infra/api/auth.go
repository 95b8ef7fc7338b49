package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"membership-access/internal/domain"
	"membership-access/internal/infra/logging"
	"membership-access/internal/infra/metrics"
)

// staticOperator names callers that present the shared admin secret.
const staticOperator = "static-token"

type OperatorClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AuthManager mints and verifies short-lived operator tokens.
type AuthManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewAuthManager(secret string, ttl time.Duration) *AuthManager {
	if secret == "" {
		return nil
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &AuthManager{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Mint returns a signed HS256 token whose subject is the operator name.
func (a *AuthManager) Mint(operator string) (string, time.Time, error) {
	now := a.now()
	exp := now.Add(a.ttl)
	claims := OperatorClaims{
		Role: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			Subject:   operator,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

func (a *AuthManager) Parse(tok string) (*OperatorClaims, error) {
	claims := &OperatorClaims{}
	tkn, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
	if err != nil || !tkn.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Role != "admin" || claims.Subject == "" {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// AdminAuth accepts either the shared admin secret or an operator JWT
// as a bearer token.
type AdminAuth struct {
	secret string
	jwt    *AuthManager
	log    *zerolog.Logger
}

func NewAdminAuth(secret string, mgr *AuthManager, logger *zerolog.Logger) *AdminAuth {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	return &AdminAuth{secret: secret, jwt: mgr, log: logger}
}

func bearer(r *http.Request) string {
	hdr := r.Header.Get("Authorization")
	if len(hdr) > 7 && strings.EqualFold(hdr[:7], "bearer ") {
		return strings.TrimSpace(hdr[7:])
	}
	return ""
}

// operator returns the authenticated operator name, or "" when the request is not authorized.
func (a *AdminAuth) operator(r *http.Request) (name string, static bool) {
	tok := bearer(r)
	if tok == "" {
		return "", false
	}
	if a.secret != "" && subtle.ConstantTimeCompare([]byte(tok), []byte(a.secret)) == 1 {
		return staticOperator, true
	}
	if a.jwt != nil {
		if c, err := a.jwt.Parse(tok); err == nil {
			return c.Subject, false
		}
	}
	return "", false
}

// Require wraps an admin handler. action labels the audit line and metrics.
func (a *AdminAuth) Require(action string, h http.HandlerFunc) http.HandlerFunc {
	return a.require(action, false, h)
}

// RequireStatic only admits the shared secret.
func (a *AdminAuth) RequireStatic(action string, h http.HandlerFunc) http.HandlerFunc {
	return a.require(action, true, h)
}

func (a *AdminAuth) require(action string, staticOnly bool, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		op, static := a.operator(r)
		if op == "" || (staticOnly && !static) {
			metrics.IncAdminRequest(action, "unauthorized")
			logging.With(r.Context(), a.log).Warn().
				Str("action", action).
				Str("remote", clientIP(r)).
				Msg("admin request denied")
			writeError(w, r, a.log, domain.ErrUnauthorized)
			return
		}
		metrics.IncAdminRequest(action, "authorized")
		ctx := logging.WithOperator(r.Context(), op)
		logging.With(ctx, a.log).Info().
			Str("action", action).
			Str("method", r.Method).
			Str("route", routePattern(r)).
			Msg("admin_audit")
		h(w, r.WithContext(ctx))
	}
}

// routePattern keeps token values out of audit lines.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
		return rc.RoutePattern()
	}
	return r.URL.Path
}
