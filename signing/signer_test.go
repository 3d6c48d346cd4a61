package signing

import (
	"context"
	"crypto/sha256"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSignAndVerify(t *testing.T) {
	provider := NewLocalProvider()
	creds, err := provider.CredentialsFor(context.Background(), "arb-1")
	if err != nil {
		t.Fatalf("credentials: %v", err)
	}

	document := []byte("FINAL ARBITRATION AWARD\nReference: AWD-20260301-00001\n")
	sig, err := Sign(creds, document)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if sig.Algorithm != AlgorithmECDSASHA256 {
		t.Errorf("unexpected algorithm %q", sig.Algorithm)
	}
	if len(sig.CertFingerprint) != 64 {
		t.Errorf("expected sha256 hex fingerprint, got %d chars", len(sig.CertFingerprint))
	}

	if err := Verify(creds.Certificate, document, sig.Value); err != nil {
		t.Fatalf("verify: %v", err)
	}

	tampered := append([]byte(nil), document...)
	tampered[0] ^= 0xff
	if err := Verify(creds.Certificate, tampered, sig.Value); err == nil {
		t.Fatalf("expected verification failure for tampered document")
	}
}

func TestSign_NoCredentials(t *testing.T) {
	if _, err := Sign(Credentials{}, []byte("doc")); !errors.Is(err, ErrNoCredentials) {
		t.Fatalf("expected ErrNoCredentials, got %v", err)
	}
}

func TestLocalProvider_CachesPerArbitrator(t *testing.T) {
	provider := NewLocalProvider()

	first, err := provider.CredentialsFor(context.Background(), "arb-1")
	if err != nil {
		t.Fatalf("credentials: %v", err)
	}
	second, err := provider.CredentialsFor(context.Background(), "arb-1")
	if err != nil {
		t.Fatalf("credentials: %v", err)
	}
	if first.Certificate.SerialNumber.Cmp(second.Certificate.SerialNumber) != 0 {
		t.Errorf("expected cached credentials for same arbitrator")
	}

	other, err := provider.CredentialsFor(context.Background(), "arb-2")
	if err != nil {
		t.Fatalf("credentials: %v", err)
	}
	if first.Certificate.SerialNumber.Cmp(other.Certificate.SerialNumber) == 0 {
		t.Errorf("expected distinct credentials per arbitrator")
	}

	if got := first.Certificate.Subject.CommonName; got != "arbitrator:arb-1" {
		t.Errorf("unexpected certificate subject %q", got)
	}
}

func TestLocalProvider_EmptyID(t *testing.T) {
	provider := NewLocalProvider()
	if _, err := provider.CredentialsFor(context.Background(), ""); !errors.Is(err, ErrNoCredentials) {
		t.Fatalf("expected ErrNoCredentials, got %v", err)
	}
}

func TestTSAClient_Timestamp(t *testing.T) {
	token := []byte{0x30, 0x03, 0x02, 0x01, 0x00}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/timestamp-query" {
			t.Errorf("unexpected content type %q", ct)
		}
		body, _ := io.ReadAll(r.Body)
		if len(body) == 0 {
			t.Errorf("expected DER request body")
		}
		_, _ = w.Write(token)
	}))
	defer server.Close()

	client := NewTSAClient(server.URL, server.Client())
	digest := sha256.Sum256([]byte("document"))

	ts, err := client.Timestamp(context.Background(), digest[:])
	if err != nil {
		t.Fatalf("timestamp: %v", err)
	}
	if string(ts.Token) != string(token) {
		t.Errorf("unexpected token %x", ts.Token)
	}
	if ts.Authority != server.URL {
		t.Errorf("unexpected authority %q", ts.Authority)
	}
	if ts.Time.IsZero() {
		t.Errorf("expected non-zero attested time")
	}
}

func TestTSAClient_RejectsBadDigest(t *testing.T) {
	client := NewTSAClient("http://tsa.invalid", nil)
	if _, err := client.Timestamp(context.Background(), []byte("short")); err == nil {
		t.Fatalf("expected error for non-sha256 digest")
	}
}

func TestTSAClient_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewTSAClient(server.URL, server.Client())
	digest := sha256.Sum256([]byte("document"))
	if _, err := client.Timestamp(context.Background(), digest[:]); err == nil {
		t.Fatalf("expected error for non-200 response")
	}
}
