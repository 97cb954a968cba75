package utils

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/zeebo/xxh3"
)

func GenerateSecretKey(length int) (string, error) {
	keyBytes := make([]byte, length)
	_, err := rand.Read(keyBytes)
	if err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}

	encodedKey := base64.URLEncoding.EncodeToString(keyBytes)
	return encodedKey, nil
}

// CalculateDigest hashes a response payload so list endpoints can expose a
// cheap change marker.
func CalculateDigest(data any) (string, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to marshal data: %w", err)
	}
	return fmt.Sprintf("%x", xxh3.Hash(raw)), nil
}
