package util

import (
	"crypto/x509"
	"encoding/pem"
	"strings"
	"testing"
)

func TestGetVersion(t *testing.T) {
	version := GetVersion()
	if version == "" {
		t.Error("GetVersion should not return empty string")
	}
	if strings.Contains(version, "\n") {
		t.Error("GetVersion should trim whitespace")
	}
}

func TestUserAgent(t *testing.T) {
	ua := UserAgent()
	if !strings.HasPrefix(ua, "tusk/") {
		t.Errorf("Expected user agent to start with 'tusk/', got '%s'", ua)
	}
}

func TestNewIDSortable(t *testing.T) {
	prev := NewID()
	for i := 0; i < 100; i++ {
		next := NewID()
		if next <= prev {
			t.Fatalf("Expected ids to increase, got %s after %s", next, prev)
		}
		prev = next
	}
	if len(prev) != 26 {
		t.Errorf("Expected 26 character ULID, got %d", len(prev))
	}
}

func TestRandomToken(t *testing.T) {
	a := RandomToken(16)
	b := RandomToken(16)
	if len(a) != 32 {
		t.Errorf("Expected 32 hex characters, got %d", len(a))
	}
	if a == b {
		t.Error("Expected two tokens to differ")
	}
}

func TestGeneratePemKeypair(t *testing.T) {
	keypair, err := GeneratePemKeypair(1024)
	if err != nil {
		t.Fatalf("GeneratePemKeypair failed: %v", err)
	}

	privBlock, _ := pem.Decode([]byte(keypair.Private))
	if privBlock == nil || privBlock.Type != "RSA PRIVATE KEY" {
		t.Fatalf("Expected RSA PRIVATE KEY block")
	}
	if _, err := x509.ParsePKCS1PrivateKey(privBlock.Bytes); err != nil {
		t.Errorf("Private key should parse as PKCS1: %v", err)
	}

	pubBlock, _ := pem.Decode([]byte(keypair.Public))
	if pubBlock == nil || pubBlock.Type != "PUBLIC KEY" {
		t.Fatalf("Expected PUBLIC KEY block")
	}
	if _, err := x509.ParsePKIXPublicKey(pubBlock.Bytes); err != nil {
		t.Errorf("Public key should parse as PKIX: %v", err)
	}
}

func TestNewLoggerLevel(t *testing.T) {
	c := &AppConfig{}
	c.Conf.LogLevel = "debug"
	logger := NewLogger(c)
	if logger.GetLevel().String() != "debug" {
		t.Errorf("Expected debug level, got %s", logger.GetLevel())
	}

	c.Conf.LogLevel = ""
	logger = NewLogger(c)
	if logger.GetLevel().String() != "info" {
		t.Errorf("Expected info level by default, got %s", logger.GetLevel())
	}
}
