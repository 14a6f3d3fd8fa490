package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
)

// Ошибки шифрования
var (
	ErrInvalidKeyLength   = errors.New("encryption key must be exactly 32 bytes for AES-256")
	ErrInvalidCiphertext  = errors.New("invalid ciphertext")
	ErrCiphertextTooShort = errors.New("ciphertext too short")
	ErrDecryptionFailed   = errors.New("decryption failed: authentication error")
)

// KeyLength - длина ключа AES-256 в байтах
const KeyLength = 32

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeyLength {
		return nil, ErrInvalidKeyLength
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Encrypt шифрует plaintext через AES-256-GCM и возвращает base64.
// Используется для брокерских API ключей: в окружении и конфиге
// секреты хранятся только в зашифрованном виде.
func Encrypt(plaintext string, key []byte) (string, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	// GCM добавляет аутентификационный тег сам, nonce идет префиксом
	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt расшифровывает base64-encoded ciphertext.
// Подделанный или побитый ciphertext дает ErrDecryptionFailed.
func Decrypt(ciphertextBase64 string, key []byte) (string, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}

	ciphertext, err := base64.StdEncoding.DecodeString(ciphertextBase64)
	if err != nil {
		return "", ErrInvalidCiphertext
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return "", ErrCiphertextTooShort
	}

	nonce, data := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, data, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}

// GenerateKey генерирует криптографически стойкий 32-байтный ключ
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeyLength)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, err
	}
	return key, nil
}

// ValidateKey проверяет длину ключа
func ValidateKey(key []byte) error {
	if len(key) != KeyLength {
		return ErrInvalidKeyLength
	}
	return nil
}

// EncryptWithKeyString - обёртка для ключа из конфига (строка)
func EncryptWithKeyString(plaintext, keyString string) (string, error) {
	return Encrypt(plaintext, []byte(keyString))
}

// DecryptWithKeyString - обёртка для ключа из конфига (строка)
func DecryptWithKeyString(ciphertextBase64, keyString string) (string, error) {
	return Decrypt(ciphertextBase64, []byte(keyString))
}
