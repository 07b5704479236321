package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var testSecret = []byte("test-secret")

func mintToken(t *testing.T, secret []byte, subject string, expiresIn time.Duration) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

// echoUser writes the resolved user ID, or 500 if it is missing.
func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := UserFromCtx(r.Context())
		if !ok {
			http.Error(w, "no user in context", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(id.String()))
	})
}

func doRequest(auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/v1/tasks", nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	Identity(testSecret)(echoUser()).ServeHTTP(rec, req)
	return rec
}

func TestIdentity_ValidToken(t *testing.T) {
	user := uuid.New()
	tok := mintToken(t, testSecret, user.String(), time.Hour)

	rec := doRequest("Bearer " + tok)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, body: %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != user.String() {
		t.Errorf("resolved user: got %q, want %q", rec.Body.String(), user)
	}
}

func TestIdentity_MissingHeader(t *testing.T) {
	if rec := doRequest(""); rec.Code != http.StatusUnauthorized {
		t.Errorf("status: got %d, want 401", rec.Code)
	}
}

func TestIdentity_MalformedHeader(t *testing.T) {
	for _, h := range []string{"Basic abc", "Bearer", "bearer "} {
		if rec := doRequest(h); rec.Code != http.StatusUnauthorized {
			t.Errorf("%q: status got %d, want 401", h, rec.Code)
		}
	}
}

func TestIdentity_WrongSecret(t *testing.T) {
	tok := mintToken(t, []byte("other-secret"), uuid.New().String(), time.Hour)
	if rec := doRequest("Bearer " + tok); rec.Code != http.StatusUnauthorized {
		t.Errorf("status: got %d, want 401", rec.Code)
	}
}

func TestIdentity_ExpiredToken(t *testing.T) {
	tok := mintToken(t, testSecret, uuid.New().String(), -time.Minute)
	if rec := doRequest("Bearer " + tok); rec.Code != http.StatusUnauthorized {
		t.Errorf("status: got %d, want 401", rec.Code)
	}
}

func TestIdentity_NonUUIDSubject(t *testing.T) {
	tok := mintToken(t, testSecret, "user-42", time.Hour)
	if rec := doRequest("Bearer " + tok); rec.Code != http.StatusUnauthorized {
		t.Errorf("status: got %d, want 401", rec.Code)
	}
}

func TestIdentity_RejectsUnsignedAlg(t *testing.T) {
	tok := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject: uuid.New().String(),
	})
	signed, err := tok.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if rec := doRequest("Bearer " + signed); rec.Code != http.StatusUnauthorized {
		t.Errorf("alg=none must be rejected: got %d", rec.Code)
	}
}
