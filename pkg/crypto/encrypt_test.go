package crypto

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func testKey() []byte {
	return []byte("0123456789abcdef0123456789abcdef")
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := testKey()

	tests := []struct {
		name      string
		plaintext string
	}{
		{"api key", "bk_live_8f3a91c2d4e5"},
		{"api secret with symbols", "s3cr3t!@#$%^&*()_+{}|:<>?"},
		{"empty string", ""},
		{"unicode", "ключ доступа 密钥"},
		{"long value", strings.Repeat("x", 4096)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encrypted, err := Encrypt(tt.plaintext, key)
			if err != nil {
				t.Fatalf("Encrypt: %v", err)
			}
			if encrypted == tt.plaintext && tt.plaintext != "" {
				t.Error("ciphertext equals plaintext")
			}

			decrypted, err := Decrypt(encrypted, key)
			if err != nil {
				t.Fatalf("Decrypt: %v", err)
			}
			if decrypted != tt.plaintext {
				t.Errorf("round trip: got %q, want %q", decrypted, tt.plaintext)
			}
		})
	}
}

func TestEncryptNonceUnique(t *testing.T) {
	key := testKey()

	// Одинаковый plaintext обязан давать разный ciphertext (случайный nonce)
	a, err := Encrypt("same secret", key)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Encrypt("same secret", key)
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Error("two encryptions of the same plaintext produced identical ciphertext")
	}
}

func TestEncryptInvalidKeyLength(t *testing.T) {
	for _, n := range []int{0, 16, 31, 33, 64} {
		key := make([]byte, n)
		if _, err := Encrypt("data", key); !errors.Is(err, ErrInvalidKeyLength) {
			t.Errorf("key length %d: got %v, want ErrInvalidKeyLength", n, err)
		}
		if _, err := Decrypt("data", key); !errors.Is(err, ErrInvalidKeyLength) {
			t.Errorf("decrypt key length %d: got %v, want ErrInvalidKeyLength", n, err)
		}
	}
}

func TestDecryptRejectsGarbage(t *testing.T) {
	key := testKey()

	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"not base64", "!!!not-base64!!!", ErrInvalidCiphertext},
		{"too short", base64.StdEncoding.EncodeToString([]byte("short")), ErrCiphertextTooShort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decrypt(tt.input, key); !errors.Is(err, tt.wantErr) {
				t.Errorf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDecryptDetectsTampering(t *testing.T) {
	key := testKey()

	encrypted, err := Encrypt("broker secret", key)
	if err != nil {
		t.Fatal(err)
	}

	raw, _ := base64.StdEncoding.DecodeString(encrypted)
	raw[len(raw)-1] ^= 0xff
	tampered := base64.StdEncoding.EncodeToString(raw)

	if _, err := Decrypt(tampered, key); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("tampered ciphertext: got %v, want ErrDecryptionFailed", err)
	}
}

func TestDecryptWrongKey(t *testing.T) {
	encrypted, err := Encrypt("broker secret", testKey())
	if err != nil {
		t.Fatal(err)
	}

	other := []byte("ffffffffffffffffffffffffffffffff")
	if _, err := Decrypt(encrypted, other); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("wrong key: got %v, want ErrDecryptionFailed", err)
	}
}

func TestGenerateKey(t *testing.T) {
	a, err := GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	if err := ValidateKey(a); err != nil {
		t.Errorf("generated key failed validation: %v", err)
	}

	b, err := GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	if string(a) == string(b) {
		t.Error("two generated keys are identical")
	}
}

func TestValidateKey(t *testing.T) {
	if err := ValidateKey(testKey()); err != nil {
		t.Errorf("valid key rejected: %v", err)
	}
	if err := ValidateKey([]byte("short")); !errors.Is(err, ErrInvalidKeyLength) {
		t.Errorf("got %v, want ErrInvalidKeyLength", err)
	}
}

func TestKeyStringHelpers(t *testing.T) {
	keyString := string(testKey())

	encrypted, err := EncryptWithKeyString("api-key-value", keyString)
	if err != nil {
		t.Fatal(err)
	}
	decrypted, err := DecryptWithKeyString(encrypted, keyString)
	if err != nil {
		t.Fatal(err)
	}
	if decrypted != "api-key-value" {
		t.Errorf("round trip via string key: got %q", decrypted)
	}
}
