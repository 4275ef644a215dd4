package storage

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"growth_quest/internal/models"
)

func testKey() []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func TestEncryption(t *testing.T) {
	enc, err := NewEncryption(testKey())
	if err != nil {
		t.Fatalf("Failed to create encryption: %v", err)
	}

	plaintext := []byte("Write a promo for the 11.11 sale")
	first, err := enc.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Failed to encrypt: %v", err)
	}
	second, _ := enc.Encrypt(plaintext)
	if first == second {
		t.Error("Each encryption should use a fresh nonce")
	}

	decrypted, err := enc.Decrypt(first)
	if err != nil {
		t.Fatalf("Failed to decrypt: %v", err)
	}
	if string(decrypted) != string(plaintext) {
		t.Errorf("Decrypted text doesn't match original. Got %s, want %s", decrypted, plaintext)
	}
}

func TestEncryptionFromBase64(t *testing.T) {
	keyBase64, err := GenerateKey(32)
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}

	enc, err := NewEncryptionFromBase64(keyBase64)
	if err != nil {
		t.Fatalf("Failed to create encryption from base64: %v", err)
	}

	other, _ := GenerateKey(32)
	wrong, _ := NewEncryptionFromBase64(other)

	ciphertext, _ := enc.Encrypt([]byte("test-data"))
	if _, err := wrong.Decrypt(ciphertext); err == nil {
		t.Error("Decrypt with a different key should fail")
	}

	if _, err := NewEncryptionFromBase64(""); err == nil {
		t.Error("Empty key should be rejected")
	}
	if _, err := NewEncryptionFromBase64("%%%"); err == nil {
		t.Error("Invalid base64 should be rejected")
	}
}

func TestEncryptPayload(t *testing.T) {
	enc, _ := NewEncryption(testKey())

	payload := models.GenerationPayload{
		Prompt:   "Summarize customer reviews for SKU-123",
		Response: "Customers love the battery life.",
	}

	sealed, err := enc.EncryptPayload(payload)
	if err != nil {
		t.Fatalf("EncryptPayload failed: %v", err)
	}
	if strings.Contains(sealed, "battery") {
		t.Error("Sealed payload leaks plaintext")
	}

	opened, err := enc.DecryptPayload(sealed)
	if err != nil {
		t.Fatalf("DecryptPayload failed: %v", err)
	}
	if opened != payload {
		t.Errorf("Payload mismatch: got %+v, want %+v", opened, payload)
	}
}

func TestGenerateKey(t *testing.T) {
	for _, size := range []int{16, 24, 32} {
		key, err := GenerateKey(size)
		if err != nil {
			t.Fatalf("GenerateKey(%d) failed: %v", size, err)
		}
		raw, err := base64.StdEncoding.DecodeString(key)
		if err != nil {
			t.Fatalf("GenerateKey(%d) returned invalid base64: %v", size, err)
		}
		if len(raw) != size {
			t.Errorf("GenerateKey(%d) returned %d bytes", size, len(raw))
		}
	}

	if _, err := GenerateKey(20); err == nil {
		t.Error("GenerateKey should reject invalid sizes")
	}
}

func TestInvalidKeySize(t *testing.T) {
	if _, err := NewEncryption(make([]byte, 10)); err == nil {
		t.Error("Expected error for 10-byte key")
	}
}

func TestDecryptShortCiphertext(t *testing.T) {
	enc, _ := NewEncryption(testKey())

	short := base64.StdEncoding.EncodeToString([]byte("abc"))
	if _, err := enc.Decrypt(short); !errors.Is(err, ErrCiphertextTooShort) {
		t.Errorf("Expected ErrCiphertextTooShort, got %v", err)
	}
}
