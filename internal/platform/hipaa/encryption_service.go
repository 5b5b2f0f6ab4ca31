package hipaa

import (
	"encoding/hex"
	"fmt"

	"github.com/rs/zerolog"
)

// EncryptionService seals note content at rest. Without a key it stores
// plaintext, which is only allowed outside production.
type EncryptionService struct {
	keyring *Keyring
}

// NewEncryptionService builds the service from a 64-char hex key. Previous
// keys, newest first, stay readable and are numbered below the current one.
func NewEncryptionService(hexKey string, logger zerolog.Logger, previous ...string) (*EncryptionService, error) {
	if hexKey == "" {
		logger.Warn().Msg("note encryption disabled: HIPAA_ENCRYPTION_KEY is not set")
		return &EncryptionService{}, nil
	}

	current := len(previous) + 1
	key, err := decodeKey(hexKey)
	if err != nil {
		return nil, fmt.Errorf("HIPAA_ENCRYPTION_KEY: %w", err)
	}
	ring, err := NewKeyring(key, current)
	if err != nil {
		return nil, err
	}
	for i, p := range previous {
		old, err := decodeKey(p)
		if err != nil {
			return nil, fmt.Errorf("previous key %d: %w", i+1, err)
		}
		if err := ring.AddKey(old, current-1-i); err != nil {
			return nil, err
		}
	}

	logger.Info().Int("key_version", current).Msg("note encryption enabled")
	return &EncryptionService{keyring: ring}, nil
}

func decodeKey(hexKey string) ([]byte, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("not valid hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("must be 32 bytes (64 hex chars), got %d bytes", len(key))
	}
	return key, nil
}

// Encryptor returns the keyring, or nil when encryption is disabled.
func (s *EncryptionService) Encryptor() FieldEncryptor {
	if s.keyring == nil {
		return nil
	}
	return s.keyring
}

func (s *EncryptionService) EncryptField(value string) (string, error) {
	if s.keyring == nil {
		return value, nil
	}
	return s.keyring.Encrypt(value)
}

// DecryptField opens sealed values. Plaintext rows written while encryption
// was off come back as-is.
func (s *EncryptionService) DecryptField(value string) (string, error) {
	if s.keyring == nil {
		if _, _, sealed := parseSealed(value); sealed {
			return "", fmt.Errorf("value is encrypted but no key is configured")
		}
		return value, nil
	}
	return s.keyring.Decrypt(value)
}

func (s *EncryptionService) IsEnabled() bool {
	return s.keyring != nil
}
