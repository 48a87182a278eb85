package web

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// operatorCookie carries the session token for browser-based operator access;
// API clients send the same token as a bearer header instead.
const operatorCookie = "operator_session"

var errNoSession = errors.New("no operator session")

// AuthManager mints and verifies the HS256 session tokens guarding the
// operator endpoints.
type AuthManager struct {
	secret       []byte
	cookieDomain string
	secureCookie bool
	ttl          time.Duration
}

func NewAuthManager(secret string, secure bool, domain string, ttl time.Duration) *AuthManager {
	return &AuthManager{
		secret:       []byte(secret),
		cookieDomain: domain,
		secureCookie: secure,
		ttl:          ttl,
	}
}

type operatorClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Issue mints a session token and sets it as the operator cookie. The token
// is also returned so API clients can use it as a bearer credential.
func (a *AuthManager) Issue(w http.ResponseWriter) (string, error) {
	now := time.Now()
	claims := operatorClaims{
		Role: "operator",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "operator",
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", err
	}
	a.setCookie(w, signed, int(a.ttl.Seconds()))
	return signed, nil
}

// Clear expires the operator cookie. Bearer tokens stay valid until their TTL
// runs out; logout is a cookie concern only.
func (a *AuthManager) Clear(w http.ResponseWriter) {
	a.setCookie(w, "", -1)
}

func (a *AuthManager) setCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     operatorCookie,
		Value:    value,
		Path:     "/",
		Domain:   a.cookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   a.secureCookie,
		SameSite: http.SameSiteStrictMode,
	})
}

func (a *AuthManager) verifyRequest(r *http.Request) error {
	if hdr := r.Header.Get("Authorization"); strings.HasPrefix(strings.ToLower(hdr), "bearer ") {
		return a.verify(strings.TrimSpace(hdr[7:]))
	}
	if c, err := r.Cookie(operatorCookie); err == nil {
		return a.verify(c.Value)
	}
	return errNoSession
}

func (a *AuthManager) verify(token string) error {
	claims := &operatorClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil || !parsed.Valid {
		return errors.New("invalid session token")
	}
	return nil
}

// RequireOperator guards the operator endpoints. An empty secret disables
// operator access entirely instead of accepting unsigned tokens.
func (a *AuthManager) RequireOperator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(a.secret) == 0 {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		if err := a.verifyRequest(r); err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
