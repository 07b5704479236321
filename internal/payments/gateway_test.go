package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func gatewayServer(t *testing.T, secret, response string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/payment/status" {
			t.Errorf("path: got %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(body)
		want := hex.EncodeToString(mac.Sum(nil))
		if got := r.Header.Get("X-Signature"); got != want {
			t.Errorf("signature: got %q, want %q", got, want)
		}
		_, _ = w.Write([]byte(response))
	}))
}

func TestVerifyPayment_Paid(t *testing.T) {
	srv := gatewayServer(t, "s3cret", `{"success": true, "status": "paid"}`)
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL, "merchant-1", "s3cret")
	confirmed, err := c.VerifyPayment(context.Background(), "ord-1")
	if err != nil {
		t.Fatalf("VerifyPayment: %v", err)
	}
	if !confirmed {
		t.Error("a paid order must confirm")
	}
}

func TestVerifyPayment_NotPaid(t *testing.T) {
	cases := []string{
		`{"success": true, "status": "pending"}`,
		`{"success": false, "status": "paid"}`,
		`{"success": false, "status": "unknown"}`,
	}
	for _, resp := range cases {
		srv := gatewayServer(t, "s3cret", resp)
		c := NewClient(srv.Client(), srv.URL, "merchant-1", "s3cret")
		confirmed, err := c.VerifyPayment(context.Background(), "ord-1")
		srv.Close()
		if err != nil {
			t.Fatalf("%s: %v", resp, err)
		}
		if confirmed {
			t.Errorf("%s: must not confirm", resp)
		}
	}
}

func TestVerifyPayment_GatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down for maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL, "merchant-1", "s3cret")
	if _, err := c.VerifyPayment(context.Background(), "ord-1"); err == nil {
		t.Fatal("non-2xx must error so the reconciler treats it as pending")
	}
}
