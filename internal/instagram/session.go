package instagram

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Session holds the authenticated state persisted between runs so that
// restarts reuse the login instead of re-authenticating every time.
type Session struct {
	UserID        string            `json:"user_id"`
	Username      string            `json:"username"`
	Authorization string            `json:"authorization"`
	Cookies       map[string]string `json:"cookies"`
	DeviceID      string            `json:"device_id"`
	CreatedAt     time.Time         `json:"created_at"`
}

// LoadSession reads a saved session. The second return is false when no
// session file exists, which is not an error.
func LoadSession(path string) (*Session, bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read session file: %w", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, false, fmt.Errorf("failed to parse session file: %w", err)
	}
	return &session, true, nil
}

// Save writes the session to disk with owner-only permissions; it holds
// credentials-equivalent tokens.
func (s *Session) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return nil
}
