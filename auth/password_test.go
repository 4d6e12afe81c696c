package auth

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  error
	}{
		{"valid", "correct-horse", nil},
		{"minimum length", "12345678", nil},
		{"too short", "1234567", ErrPasswordTooShort},
		{"too long", strings.Repeat("a", 101), ErrPasswordTooLong},
		{"maximum length", strings.Repeat("a", 100), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidatePassword(tt.password); !errors.Is(err, tt.wantErr) {
				t.Fatalf("ValidatePassword() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestBcryptHasherRoundTrip(t *testing.T) {
	hasher := BcryptHasher{Cost: bcrypt.MinCost}

	hash, err := hasher.Hash("secret-password")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if hash == "secret-password" {
		t.Fatal("hash equals plaintext")
	}

	if err := hasher.Verify(hash, "secret-password"); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if err := hasher.Verify(hash, "wrong-password"); !errors.Is(err, ErrPasswordMismatch) {
		t.Fatalf("Verify() error = %v, want ErrPasswordMismatch", err)
	}
}
