package federation

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/deemkeen/tusk/domain"
	"github.com/deemkeen/tusk/util"
)

// generateTestKeyPair generates an RSA key pair for testing
func generateTestKeyPair(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("Failed to generate key pair: %v", err)
	}
	keyBytes, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	if err != nil {
		t.Fatalf("Failed to marshal public key: %v", err)
	}
	return privateKey, string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: keyBytes}))
}

func signedRequest(t *testing.T, key *rsa.PrivateKey, keyID string, body []byte) *http.Request {
	t.Helper()
	method := http.MethodPost
	if body == nil {
		method = http.MethodGet
	}
	req, err := http.NewRequest(method, "https://example.com/u/bob/ap/inbox", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/activity+json")
	if err := SignRequest(req, body, key, keyID); err != nil {
		t.Fatalf("SignRequest failed: %v", err)
	}
	return req
}

func TestParseKeys(t *testing.T) {
	pair, err := util.GeneratePemKeypair(2048)
	if err != nil {
		t.Fatalf("Failed to generate keys: %v", err)
	}
	if _, err := ParsePrivateKey(pair.Private); err != nil {
		t.Errorf("Failed to parse private key: %v", err)
	}
	if _, err := ParsePublicKey(pair.Public); err != nil {
		t.Errorf("Failed to parse public key: %v", err)
	}

	for _, bad := range []string{"", "not a pem"} {
		if _, err := ParsePrivateKey(bad); err == nil {
			t.Errorf("Expected error for private key %q", bad)
		}
		if _, err := ParsePublicKey(bad); err == nil {
			t.Errorf("Expected error for public key %q", bad)
		}
	}
}

func TestSignAndVerifyRoundtrip(t *testing.T) {
	key, publicPEM := generateTestKeyPair(t)
	keyID := "https://myserver.com/u/alice#main-key"

	tests := []struct {
		name string
		body []byte
	}{
		{"POST with body", []byte(`{"type":"Create","object":{}}`)},
		{"GET without body", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := signedRequest(t, key, keyID, tt.body)
			if tt.body != nil && req.Header.Get("Digest") == "" {
				t.Fatal("Expected a Digest header on a signed POST")
			}

			got, err := VerifyRequest(req, tt.body, publicPEM)
			if err != nil {
				t.Fatalf("VerifyRequest failed: %v", err)
			}
			if got != keyID {
				t.Errorf("Expected keyId '%s', got '%s'", keyID, got)
			}
		})
	}
}

func TestVerifyRequestWrongKey(t *testing.T) {
	key, _ := generateTestKeyPair(t)
	_, otherPEM := generateTestKeyPair(t)
	body := []byte(`{"type":"Follow"}`)

	req := signedRequest(t, key, "https://myserver.com/u/alice#main-key", body)
	if _, err := VerifyRequest(req, body, otherPEM); err == nil {
		t.Error("Expected verification to fail with a different key")
	}
}

func TestVerifyRequestTamperedBody(t *testing.T) {
	key, publicPEM := generateTestKeyPair(t)
	body := []byte(`{"type":"Follow"}`)

	req := signedRequest(t, key, "https://myserver.com/u/alice#main-key", body)
	if _, err := VerifyRequest(req, []byte(`{"type":"Delete"}`), publicPEM); err == nil {
		t.Error("Expected digest mismatch for a modified body")
	}
}

func TestVerifyDigest(t *testing.T) {
	body := []byte("hello")
	// sha-256 of "hello"
	good := "SHA-256=LPJNul+wow4m6DsqxbninhsWHlwfp0JecwQzYpOLmCQ="

	if err := verifyDigest(good, body); err != nil {
		t.Errorf("Expected digest to match: %v", err)
	}
	if err := verifyDigest("SHA-512=abc, "+good, body); err != nil {
		t.Errorf("Expected SHA-256 entry to be found in a list: %v", err)
	}
	if err := verifyDigest("", body); err == nil {
		t.Error("Expected error for a missing digest")
	}
	if err := verifyDigest("SHA-256=AAAA", body); err == nil {
		t.Error("Expected error for a wrong digest")
	}
}

type staticActors map[string]*domain.User

func (s staticActors) Resolve(ctx context.Context, iri string) (*domain.User, error) {
	u, ok := s[iri]
	if !ok {
		if strings.HasSuffix(iri, "/main-key") {
			return nil, domain.Verification("resolve", fmt.Errorf("%s is a Key, not an actor", iri))
		}
		return nil, domain.Unavailable("resolve", domain.ErrNotFound)
	}
	return u, nil
}

// staticKeys serves key documents by IRI.
type staticKeys map[string]string

func (s staticKeys) Dereference(ctx context.Context, iri string, into any) error {
	doc, ok := s[iri]
	if !ok {
		return &StatusError{Code: http.StatusNotFound}
	}
	return json.Unmarshal([]byte(doc), into)
}

func TestVerifierResolvesKeyOwner(t *testing.T) {
	key, publicPEM := generateTestKeyPair(t)
	alice := &domain.User{APId: "https://myserver.com/u/alice", PublicKeyPem: publicPEM}
	v := NewVerifier(staticActors{alice.APId: alice}, staticKeys{})
	body := []byte(`{"type":"Like"}`)

	req := signedRequest(t, key, alice.APId+"#main-key", body)
	got, err := v.Verify(context.Background(), req, body)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if got.APId != alice.APId {
		t.Errorf("Expected signer %s, got %s", alice.APId, got.APId)
	}

	unsigned, _ := http.NewRequest(http.MethodPost, "https://example.com/ap/inbox", bytes.NewReader(body))
	_, err = v.Verify(context.Background(), unsigned, body)
	if domain.KindOf(err) != domain.KindVerification {
		t.Errorf("Expected verification failure for an unsigned request, got %v", err)
	}

	unknown := signedRequest(t, key, "https://elsewhere.example/u/x#main-key", body)
	_, err = v.Verify(context.Background(), unknown, body)
	if domain.KindOf(err) != domain.KindDependency {
		t.Errorf("Expected dependency failure for an unknown key owner, got %v", err)
	}
}

func TestVerifierFollowsKeyDocumentOwner(t *testing.T) {
	key, publicPEM := generateTestKeyPair(t)
	alice := &domain.User{APId: "https://gts.example/users/alice", PublicKeyPem: publicPEM}
	keys := staticKeys{
		"https://gts.example/users/alice/main-key":  `{"id":"https://gts.example/users/alice/main-key","owner":"https://gts.example/users/alice"}`,
		"https://gts.example/users/nested/main-key": `{"publicKey":{"owner":"https://gts.example/users/alice"}}`,
		"https://gts.example/users/rogue/main-key":  `{"owner":"https://elsewhere.example/users/alice"}`,
		"https://gts.example/users/empty/main-key":  `{}`,
	}
	v := NewVerifier(staticActors{alice.APId: alice}, keys)
	body := []byte(`{"type":"Follow"}`)

	for _, keyID := range []string{"https://gts.example/users/alice/main-key", "https://gts.example/users/nested/main-key"} {
		got, err := v.Verify(context.Background(), signedRequest(t, key, keyID, body), body)
		if err != nil {
			t.Fatalf("Verify with key %s failed: %v", keyID, err)
		}
		if got.APId != alice.APId {
			t.Errorf("Expected signer %s, got %s", alice.APId, got.APId)
		}
	}

	tests := []struct {
		name  string
		keyID string
		want  domain.Kind
	}{
		{"foreign owner", "https://gts.example/users/rogue/main-key", domain.KindVerification},
		{"no owner", "https://gts.example/users/empty/main-key", domain.KindVerification},
		{"key not served", "https://gts.example/users/gone/main-key", domain.KindDependency},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), signedRequest(t, key, tt.keyID, body), body)
			if domain.KindOf(err) != tt.want {
				t.Errorf("Expected kind %s, got %v", tt.want, err)
			}
		})
	}
}
