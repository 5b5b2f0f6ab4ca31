package hipaa

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// sealedPrefix marks an encrypted column value: "enc:v<version>:<base64>".
// Values without it are stored plaintext and are returned unchanged.
const sealedPrefix = "enc:v"

// Keyring encrypts with its current key version and decrypts any version it
// holds, so keys can be rotated without rewriting every row at once.
type Keyring struct {
	mu      sync.RWMutex
	current int
	ciphers map[int]*gcmCipher
}

func NewKeyring(key []byte, version int) (*Keyring, error) {
	if version < 1 {
		return nil, fmt.Errorf("key version must be positive, got %d", version)
	}
	c, err := newGCMCipher(key)
	if err != nil {
		return nil, err
	}
	return &Keyring{current: version, ciphers: map[int]*gcmCipher{version: c}}, nil
}

// AddKey registers a key that is only used for decryption.
func (k *Keyring) AddKey(key []byte, version int) error {
	c, err := newGCMCipher(key)
	if err != nil {
		return fmt.Errorf("key v%d: %w", version, err)
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if version == k.current {
		return fmt.Errorf("key v%d is already the current key", version)
	}
	k.ciphers[version] = c
	return nil
}

func (k *Keyring) Encrypt(plaintext string) (string, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	sealed, err := k.ciphers[k.current].seal(plaintext)
	if err != nil {
		return "", err
	}
	return sealedPrefix + strconv.Itoa(k.current) + ":" + sealed, nil
}

func (k *Keyring) Decrypt(value string) (string, error) {
	version, body, ok := parseSealed(value)
	if !ok {
		return value, nil
	}
	k.mu.RLock()
	c, found := k.ciphers[version]
	k.mu.RUnlock()
	if !found {
		return "", fmt.Errorf("no key for version %d", version)
	}
	return c.open(body)
}

// NeedsRotation reports whether value is plaintext or sealed with an older key.
func (k *Keyring) NeedsRotation(value string) bool {
	version, _, ok := parseSealed(value)
	k.mu.RLock()
	defer k.mu.RUnlock()
	return !ok || version != k.current
}

func parseSealed(value string) (int, string, bool) {
	if !strings.HasPrefix(value, sealedPrefix) {
		return 0, "", false
	}
	rest := value[len(sealedPrefix):]
	idx := strings.IndexByte(rest, ':')
	if idx <= 0 {
		return 0, "", false
	}
	version, err := strconv.Atoi(rest[:idx])
	if err != nil {
		return 0, "", false
	}
	return version, rest[idx+1:], true
}
