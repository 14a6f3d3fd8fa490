package crypto

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// Ошибки хеширования
var (
	ErrEmptyPassword    = errors.New("password cannot be empty")
	ErrPasswordMismatch = errors.New("password does not match hash")
	ErrInvalidHash      = errors.New("invalid password hash format")
	ErrPasswordTooLong  = errors.New("password exceeds maximum length of 72 bytes")
)

// DefaultCost - стоимость bcrypt для операторских паролей.
// Аутентификация здесь редкая (панель оператора), поэтому можно дороже дефолта.
const DefaultCost = 12

// MaxPasswordLength - лимит bcrypt (72 байта)
const MaxPasswordLength = 72

// HashPassword хеширует пароль оператора через bcrypt
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	if len(password) > MaxPasswordLength {
		return "", ErrPasswordTooLong
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword сверяет пароль с хешем (constant-time внутри bcrypt)
func VerifyPassword(password, hash string) error {
	if password == "" {
		return ErrEmptyPassword
	}
	if hash == "" {
		return ErrInvalidHash
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrPasswordMismatch
		}
		return ErrInvalidHash
	}
	return nil
}

// CheckPasswordMatch - булева обёртка для middleware
func CheckPasswordMatch(password, hash string) bool {
	return VerifyPassword(password, hash) == nil
}
