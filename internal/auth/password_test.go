package auth

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHasherHashAndVerify(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	hash, err := h.Hash("s3cret-pass")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if hash == "s3cret-pass" || !strings.HasPrefix(hash, "$2") {
		t.Fatalf("unexpected hash format: %s", hash)
	}

	if !h.Verify("s3cret-pass", hash) {
		t.Fatalf("correct password rejected")
	}
	if h.Verify("wrong-pass", hash) {
		t.Fatalf("wrong password accepted")
	}
}

func TestHasherSaltsEveryHash(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	a, err := h.Hash("same-input")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	b, err := h.Hash("same-input")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if a == b {
		t.Fatalf("expected distinct hashes for identical input")
	}
}

func TestHasherRejectsEmptyPassword(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	if _, err := h.Hash(""); err == nil {
		t.Fatalf("expected error for empty password")
	}
}

func TestHasherVerifyMalformedHash(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	if h.Verify("anything", "not-a-bcrypt-hash") {
		t.Fatalf("malformed hash verified")
	}
	if h.Verify("anything", "") {
		t.Fatalf("empty hash verified")
	}
}

func TestNewHasherClampsCost(t *testing.T) {
	for _, cost := range []int{-1, 0, bcrypt.MaxCost + 1} {
		h := NewHasher(cost)
		if h.cost != DefaultBcryptCost {
			t.Fatalf("cost %d: expected fallback to %d, got %d", cost, DefaultBcryptCost, h.cost)
		}
	}
	if h := NewHasher(bcrypt.MinCost); h.cost != bcrypt.MinCost {
		t.Fatalf("valid cost overridden: %d", h.cost)
	}
}
