package maintenance

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

const agentKeyBytes = 24

// GenerateAgentKey returns "sk-" followed by 24 random bytes, base64url.
func GenerateAgentKey() (string, error) {
	buf := make([]byte, agentKeyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("maintenance: generate key: %w", err)
	}
	return "sk-" + base64.RawURLEncoding.EncodeToString(buf), nil
}

// GenerateAgentKeys returns count fresh keys.
func GenerateAgentKeys(count int) ([]string, error) {
	if count <= 0 {
		return nil, fmt.Errorf("maintenance: key count must be positive")
	}
	keys := make([]string, 0, count)
	for i := 0; i < count; i++ {
		k, err := GenerateAgentKey()
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}
