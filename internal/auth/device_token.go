package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters for device tokens. The salt is the server pepper, so
// the hash is deterministic and can be looked up with an index. Tokens are
// high-entropy, so a lighter cost than password hashing is enough.
const (
	deviceTokenTime    = 1
	deviceTokenMemory  = 19 * 1024 // 19 MiB
	deviceTokenThreads = 1
	deviceTokenKeyLen  = 32
	deviceTokenBytes   = 32
)

// HashDeviceToken derives the stored credential for a device connect token.
func HashDeviceToken(token, pepper string) string {
	key := argon2.IDKey([]byte(token), []byte(pepper),
		deviceTokenTime, deviceTokenMemory, deviceTokenThreads, deviceTokenKeyLen)
	return hex.EncodeToString(key)
}

// GenerateDeviceToken creates a random 256-bit token suitable for a
// provisioning key.
func GenerateDeviceToken() (string, error) {
	b := make([]byte, deviceTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating device token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
