package password

import (
	"strings"
	"testing"
)

func TestHashRoundTrip(t *testing.T) {
	digest, err := Hash("correct horse battery staple")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}
	if digest == "correct horse battery staple" {
		t.Fatal("digest must not equal the plaintext")
	}
	if !Verify("correct horse battery staple", digest) {
		t.Fatal("Verify failed for matching password")
	}
	if Verify("wrong password", digest) {
		t.Fatal("Verify succeeded for non-matching password")
	}
}

func TestHashIsSalted(t *testing.T) {
	first, err := Hash("same input")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}
	second, err := Hash("same input")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}
	if first == second {
		t.Fatal("two hashes of the same input must differ (random salt)")
	}
	if !Verify("same input", first) || !Verify("same input", second) {
		t.Fatal("both digests must verify against the original input")
	}
}

func TestHashRejectsOverlongPassword(t *testing.T) {
	if _, err := Hash(strings.Repeat("a", 73)); err != ErrPasswordTooLong {
		t.Fatalf("expected ErrPasswordTooLong, got %v", err)
	}
}
