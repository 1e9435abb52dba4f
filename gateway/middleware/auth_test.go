package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"nftlend/crypto"
)

const testSecret = "test-secret"

var testCaller = [20]byte{0xaa, 0xbb, 0x01}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func callerEcho(t *testing.T, want [20]byte) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := CallerFromContext(r.Context())
		if !ok {
			t.Errorf("caller missing from context")
		} else if caller != want {
			t.Errorf("caller = %x, want %x", caller, want)
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestAuthenticatorResolvesSubject(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{Enabled: true, HMACSecret: testSecret, Issuer: "nftlend"}, nil)
	handler := auth.Middleware()(callerEcho(t, testCaller))

	token := signToken(t, testSecret, jwt.MapClaims{
		"sub": crypto.Format(crypto.AccountPrefix, testCaller),
		"iss": "nftlend",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/fixed/requests", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusNoContent {
		t.Fatalf("expected success, got %d: %s", res.Code, res.Body.String())
	}
}

func TestAuthenticatorRejects(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{Enabled: true, HMACSecret: testSecret, Audience: "loans"}, nil)
	handler := auth.Middleware()(okHandler())
	subject := crypto.Format(crypto.AccountPrefix, testCaller)
	future := time.Now().Add(time.Hour).Unix()

	cases := map[string]struct {
		header string
		want   int
	}{
		"missing":       {"", http.StatusUnauthorized},
		"wrong scheme":  {"Basic abc", http.StatusUnauthorized},
		"wrong secret":  {"Bearer " + signToken(t, "other", jwt.MapClaims{"sub": subject, "aud": "loans", "exp": future}), http.StatusUnauthorized},
		"expired":       {"Bearer " + signToken(t, testSecret, jwt.MapClaims{"sub": subject, "aud": "loans", "exp": time.Now().Add(-time.Hour).Unix()}), http.StatusUnauthorized},
		"bad audience":  {"Bearer " + signToken(t, testSecret, jwt.MapClaims{"sub": subject, "aud": "swap", "exp": future}), http.StatusUnauthorized},
		"bad subject":   {"Bearer " + signToken(t, testSecret, jwt.MapClaims{"sub": "nope", "aud": "loans", "exp": future}), http.StatusUnauthorized},
		"zero subject":  {"Bearer " + signToken(t, testSecret, jwt.MapClaims{"sub": crypto.Format(crypto.AccountPrefix, [20]byte{}), "aud": "loans", "exp": future}), http.StatusUnauthorized},
		"missing claim": {"Bearer " + signToken(t, testSecret, jwt.MapClaims{"aud": "loans", "exp": future}), http.StatusUnauthorized},
	}
	for name, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/v1/fixed/requests/1", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		if res.Code != tc.want {
			t.Fatalf("%s: got %d, want %d", name, res.Code, tc.want)
		}
	}
}

func TestAuthenticatorRequiresScopes(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{Enabled: true, HMACSecret: testSecret}, nil)
	handler := auth.Middleware("dev")(okHandler())
	subject := crypto.Format(crypto.AccountPrefix, testCaller)
	future := time.Now().Add(time.Hour).Unix()

	req := httptest.NewRequest(http.MethodPost, "/v1/dev/mint/token", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, jwt.MapClaims{"sub": subject, "exp": future, "scope": "loans"}))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected forbidden without dev scope, got %d", res.Code)
	}

	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, jwt.MapClaims{"sub": subject, "exp": future, "scope": "loans dev"}))
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected success with dev scope, got %d", res.Code)
	}
}

func TestAuthenticatorDisabledUsesCallerHeader(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{Enabled: false}, nil)
	handler := auth.Middleware()(callerEcho(t, testCaller))

	req := httptest.NewRequest(http.MethodPost, "/v1/fixed/requests", nil)
	req.Header.Set(CallerHeader, crypto.Format(crypto.AccountPrefix, testCaller))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusNoContent {
		t.Fatalf("expected success, got %d", res.Code)
	}

	req.Header.Set(CallerHeader, "garbage")
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected bad request for invalid caller header, got %d", res.Code)
	}
}

func TestAuthenticatorOptionalPaths(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{
		Enabled:        true,
		HMACSecret:     testSecret,
		OptionalPaths:  []string{"/v1/fixed/requests/"},
		AllowAnonymous: true,
	}, nil)
	handler := auth.Middleware()(okHandler())
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/fixed/requests/1", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected anonymous access to optional path, got %d", res.Code)
	}
}
