package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/papercrane/storefront/internal/common"
)

var testSecret = []byte("test-secret-at-least-32-bytes-long")

func signToken(t *testing.T, secret []byte, mutate func(b *jwt.Builder)) string {
	t.Helper()
	b := jwt.NewBuilder().
		Subject("user-123").
		Issuer("https://id.example.com").
		Audience([]string{"storefront"}).
		IssuedAt(time.Now()).
		Expiration(time.Now().Add(time.Hour))
	if mutate != nil {
		mutate(b)
	}
	token, err := b.Build()
	if err != nil {
		t.Fatalf("build token: %v", err)
	}
	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return string(signed)
}

func newVerifier() Verifier {
	return Verifier{
		Secret:   testSecret,
		Issuer:   "https://id.example.com",
		Audience: "storefront",
	}
}

func TestSubjectAcceptsValidToken(t *testing.T) {
	sub, err := newVerifier().Subject(signToken(t, testSecret, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sub != "user-123" {
		t.Fatalf("unexpected subject %q", sub)
	}
}

func TestSubjectRejectsWrongSecret(t *testing.T) {
	other := []byte("another-secret-also-32-bytes-long!")
	if _, err := newVerifier().Subject(signToken(t, other, nil)); err == nil {
		t.Fatal("expected error for token signed with the wrong secret")
	}
}

func TestSubjectRejectsWrongIssuer(t *testing.T) {
	token := signToken(t, testSecret, func(b *jwt.Builder) {
		b.Issuer("https://evil.example.com")
	})
	if _, err := newVerifier().Subject(token); err == nil {
		t.Fatal("expected error for wrong issuer")
	}
}

func TestSubjectRejectsWrongAudience(t *testing.T) {
	token := signToken(t, testSecret, func(b *jwt.Builder) {
		b.Audience([]string{"some-other-service"})
	})
	if _, err := newVerifier().Subject(token); err == nil {
		t.Fatal("expected error for wrong audience")
	}
}

func TestSubjectRejectsExpiredToken(t *testing.T) {
	token := signToken(t, testSecret, func(b *jwt.Builder) {
		b.Expiration(time.Now().Add(-time.Hour))
	})
	if _, err := newVerifier().Subject(token); err == nil {
		t.Fatal("expected error for expired token")
	}
}

func TestSubjectAllowsClockSkew(t *testing.T) {
	token := signToken(t, testSecret, func(b *jwt.Builder) {
		b.Expiration(time.Now().Add(-30 * time.Second))
	})
	v := newVerifier()
	v.ClockSkew = time.Minute
	if _, err := v.Subject(token); err != nil {
		t.Fatalf("expected skewed expiry to pass: %v", err)
	}
}

func TestSubjectRejectsMissingSubject(t *testing.T) {
	token := signToken(t, testSecret, func(b *jwt.Builder) {
		b.Subject("")
	})
	if _, err := newVerifier().Subject(token); err == nil {
		t.Fatal("expected error for missing subject")
	}
}

func TestSubjectRejectsEmptyToken(t *testing.T) {
	if _, err := newVerifier().Subject("   "); err == nil {
		t.Fatal("expected error for empty token")
	}
}

func TestRequireAuthRejectsAnonymous(t *testing.T) {
	m := Middleware{Verifier: newVerifier()}
	handler := m.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without a token")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRequireAuthAttachesUserID(t *testing.T) {
	m := Middleware{Verifier: newVerifier()}
	var seen string
	handler := m.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = common.UserID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, nil))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if seen != "user-123" {
		t.Fatalf("expected user id in context, got %q", seen)
	}
}

func TestAuthenticatePassesAnonymousThrough(t *testing.T) {
	m := Middleware{Verifier: newVerifier()}
	called := false
	handler := m.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if _, ok := common.UserID(r.Context()); ok {
			t.Fatal("anonymous request must not carry a user id")
		}
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if !called {
		t.Fatal("expected next handler to run")
	}
}
