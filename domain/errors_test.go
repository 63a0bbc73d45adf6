package domain

import (
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"plain error", fmt.Errorf("boom"), KindStorage},
		{"malformed", Malformed("decode", fmt.Errorf("bad json")), KindMalformed},
		{"verification", Verification("accept", fmt.Errorf("actor mismatch")), KindVerification},
		{"wrapped dependency", fmt.Errorf("failed to resolve: %w", Unavailable("fetch", fmt.Errorf("timeout"))), KindDependency},
		{"explicit storage", &Error{Kind: KindStorage, Op: "claim", Err: fmt.Errorf("disk full")}, KindStorage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("Expected kind %s, got %s", tt.want, got)
			}
		})
	}
}

func TestErrorMessage(t *testing.T) {
	err := Verification("undo follow", fmt.Errorf("actor mismatch"))
	want := "verification failure: undo follow: actor mismatch"
	if err.Error() != want {
		t.Errorf("Expected '%s', got '%s'", want, err.Error())
	}
}

func TestIsNotFound(t *testing.T) {
	if !IsNotFound(fmt.Errorf("user by ap id: %w", ErrNotFound)) {
		t.Error("Expected wrapped ErrNotFound to be detected")
	}
	if IsNotFound(fmt.Errorf("other")) {
		t.Error("Expected unrelated error not to be detected as not found")
	}
}

func TestPreferredInbox(t *testing.T) {
	u := User{InboxURI: "https://remote.example/u/alice/inbox"}
	if u.PreferredInbox() != u.InboxURI {
		t.Errorf("Expected personal inbox, got '%s'", u.PreferredInbox())
	}

	u.SharedInboxURI = "https://remote.example/inbox"
	if u.PreferredInbox() != u.SharedInboxURI {
		t.Errorf("Expected shared inbox, got '%s'", u.PreferredInbox())
	}
}

func TestAcct(t *testing.T) {
	local := User{Name: "bob", Instance: "local.example", Local: true}
	remote := User{Name: "alice", Instance: "remote.example"}

	if local.Acct() != "bob" {
		t.Errorf("Expected 'bob', got '%s'", local.Acct())
	}
	if remote.Acct() != "alice@remote.example" {
		t.Errorf("Expected 'alice@remote.example', got '%s'", remote.Acct())
	}
}

func TestParseVisibility(t *testing.T) {
	for _, s := range []string{"public", "unlisted", "private", "direct"} {
		if _, ok := ParseVisibility(s); !ok {
			t.Errorf("Expected %s to parse", s)
		}
	}
	if _, ok := ParseVisibility("followers"); ok {
		t.Error("Expected unknown visibility to be rejected")
	}
}
