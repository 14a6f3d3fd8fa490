package gateway

import (
	"errors"
	"fmt"
	"os"

	"tradecore/pkg/crypto"
)

// Переменные окружения с зашифрованными (AES-256-GCM, base64)
// брокерскими ключами. Plaintext ключи в окружении не живут.
const (
	EnvBrokerAPIKey    = "BROKER_API_KEY_ENC"
	EnvBrokerAPISecret = "BROKER_API_SECRET_ENC"
)

var ErrCredentialsNotConfigured = errors.New("broker credentials are not configured")

// BrokerCredentials - расшифрованные ключи доступа к брокеру.
// Используются live-шлюзом; paper-режим работает без них.
type BrokerCredentials struct {
	APIKey    string
	APISecret string
}

// LoadBrokerCredentials читает зашифрованные ключи из окружения и
// расшифровывает их ключом из конфига. Вызывается на старте процесса:
// побитый ciphertext или неправильный ключ должны валить процесс сразу,
// а не при первом live-ордере.
func LoadBrokerCredentials(encryptionKey string) (*BrokerCredentials, error) {
	encKey := os.Getenv(EnvBrokerAPIKey)
	encSecret := os.Getenv(EnvBrokerAPISecret)

	if encKey == "" && encSecret == "" {
		return nil, ErrCredentialsNotConfigured
	}
	if encKey == "" || encSecret == "" {
		return nil, fmt.Errorf("both %s and %s must be set", EnvBrokerAPIKey, EnvBrokerAPISecret)
	}
	if err := crypto.ValidateKey([]byte(encryptionKey)); err != nil {
		return nil, fmt.Errorf("encryption key: %w", err)
	}

	apiKey, err := crypto.DecryptWithKeyString(encKey, encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("decrypt %s: %w", EnvBrokerAPIKey, err)
	}
	apiSecret, err := crypto.DecryptWithKeyString(encSecret, encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("decrypt %s: %w", EnvBrokerAPISecret, err)
	}

	return &BrokerCredentials{APIKey: apiKey, APISecret: apiSecret}, nil
}
