package crypto

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

const testKey = "k3y-for-session-tokens-32-bytes!"

func mustEncryptor(t *testing.T, key string) *Encryptor {
	t.Helper()
	enc, err := NewEncryptor(key)
	if err != nil {
		t.Fatalf("NewEncryptor() failed: %v", err)
	}
	return enc
}

func TestNewEncryptor_KeyLength(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr error
	}{
		{name: "Exactly 32 bytes", key: testKey},
		{name: "Too short", key: "short", wantErr: ErrInvalidKey},
		{name: "Too long", key: testKey + "x", wantErr: ErrInvalidKey},
		{name: "Empty", key: "", wantErr: ErrInvalidKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEncryptor(tt.key)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("NewEncryptor() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestEncryptor_SessionTokenRoundtrip(t *testing.T) {
	enc := mustEncryptor(t, testKey)

	tokens := []string{
		"sbMem5f2a1c9e0b7d3",
		"login.name+with/odd=chars",
		"ação-ñ-登录",
		strings.Repeat("t", 4096),
	}

	for _, token := range tokens {
		sealed, err := enc.Encrypt(token)
		if err != nil {
			t.Fatalf("Encrypt() failed: %v", err)
		}
		if strings.Contains(sealed, token) {
			t.Errorf("ciphertext leaks the plaintext for %q", token[:min(len(token), 16)])
		}

		opened, err := enc.Decrypt(sealed)
		if err != nil {
			t.Fatalf("Decrypt() failed: %v", err)
		}
		if opened != token {
			t.Errorf("Decrypt() = %q, want %q", opened, token)
		}
	}
}

func TestEncryptor_EmptyPassesThrough(t *testing.T) {
	enc := mustEncryptor(t, testKey)

	sealed, err := enc.Encrypt("")
	if err != nil || sealed != "" {
		t.Errorf("Encrypt(\"\") = %q, %v; want empty, nil", sealed, err)
	}
	opened, err := enc.Decrypt("")
	if err != nil || opened != "" {
		t.Errorf("Decrypt(\"\") = %q, %v; want empty, nil", opened, err)
	}
}

func TestEncryptor_RandomNonce(t *testing.T) {
	enc := mustEncryptor(t, testKey)

	a, _ := enc.Encrypt("same-token")
	b, _ := enc.Encrypt("same-token")
	if a == b {
		t.Error("two encryptions of the same token produced identical ciphertext")
	}
}

func TestEncryptor_DecryptRejects(t *testing.T) {
	enc := mustEncryptor(t, testKey)
	other := mustEncryptor(t, "another-key-that-is-32-bytes-ok!")

	sealed, _ := enc.Encrypt("sbMem5f2a1c9e0b7d3")
	raw, _ := base64.StdEncoding.DecodeString(sealed)
	raw[len(raw)-1] ^= 0xff
	tampered := base64.StdEncoding.EncodeToString(raw)

	foreign, _ := other.Encrypt("sbMem5f2a1c9e0b7d3")

	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{name: "Not base64", input: "%%%not-base64%%%"},
		{name: "Shorter than nonce and tag", input: base64.StdEncoding.EncodeToString([]byte("tiny")), wantErr: ErrInvalidCiphertext},
		{name: "Tampered tag", input: tampered},
		{name: "Sealed with another key", input: foreign},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := enc.Decrypt(tt.input)
			if err == nil {
				t.Fatal("Decrypt() expected error, got nil")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Decrypt() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
