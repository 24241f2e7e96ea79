package solicit

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// GenerateKey returns a random 64 character hex API key.
func GenerateKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return hex.EncodeToString(b), nil
}
