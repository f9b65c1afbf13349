package extraction

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Turn is one utterance in a call transcript.
type Turn struct {
	Role    string `json:"role"`
	Message string `json:"message"`
}

// FlattenTranscript accepts either a JSON array of turns or a JSON string and
// renders "role: message" lines.
func FlattenTranscript(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("extraction: decode transcript: %w", err)
		}
		return strings.TrimSpace(s), nil
	case '[':
		var turns []Turn
		if err := json.Unmarshal(raw, &turns); err != nil {
			return "", fmt.Errorf("extraction: decode transcript: %w", err)
		}
		lines := make([]string, 0, len(turns))
		for _, t := range turns {
			msg := strings.TrimSpace(t.Message)
			if msg == "" {
				continue
			}
			role := strings.TrimSpace(t.Role)
			if role == "" {
				role = "unknown"
			}
			lines = append(lines, role+": "+msg)
		}
		return strings.Join(lines, "\n"), nil
	}
	return "", fmt.Errorf("extraction: transcript must be a string or an array of turns")
}
