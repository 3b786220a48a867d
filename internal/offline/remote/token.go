package remote

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// TokenSource supplies the bearer token for API requests. An empty token
// means requests go out unauthenticated.
type TokenSource interface {
	Token() (string, error)
}

// StaticToken is a fixed token.
type StaticToken string

// Token implements TokenSource.
func (t StaticToken) Token() (string, error) {
	return string(t), nil
}

// FileTokenSource reads the token from a file on every request, so a token
// stored by another process is picked up without a restart.
type FileTokenSource struct {
	Path string
}

// Token implements TokenSource. A missing file yields an empty token.
func (f FileTokenSource) Token() (string, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read token file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Save writes token to the file with owner-only permissions.
func (f FileTokenSource) Save(token string) error {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	if err := os.WriteFile(f.Path, []byte(strings.TrimSpace(token)+"\n"), 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}
