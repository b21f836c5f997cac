// ABOUTME: Tests for scrypt password hashing
// ABOUTME: Covers round-trip verification and malformed stored hashes

package auth

import (
	"strings"
	"testing"
)

func TestPassword_RoundTrip(t *testing.T) {
	stored, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}

	if !strings.Contains(stored, ":") {
		t.Fatalf("Expected salt:hash format, got %q", stored)
	}

	if !VerifyPassword("correct horse battery staple", stored) {
		t.Error("Expected matching password to verify")
	}
	if VerifyPassword("wrong password", stored) {
		t.Error("Expected wrong password to fail")
	}
}

func TestPassword_FreshSalt(t *testing.T) {
	a, err := HashPassword("same")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	b, err := HashPassword("same")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if a == b {
		t.Error("Two hashes of the same password share a salt")
	}
}

func TestVerifyPassword_Malformed(t *testing.T) {
	cases := []string{
		"",
		"nocolon",
		":",
		"salt:",
		":hash",
		"salt:nothex",
		"salt:abcd", // wrong length
	}
	for _, stored := range cases {
		if VerifyPassword("anything", stored) {
			t.Errorf("Expected %q to fail verification", stored)
		}
	}
}
