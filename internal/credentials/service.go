package credentials

import (
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"

	"github.com/Redysz/Graphoria/internal/config"
)

// Service stores per-host remote credentials in the OS keychain. Tokens
// never touch the database or the log output.
type Service struct {
	service string
}

func NewService() *Service {
	return &Service{service: config.KeyringService}
}

func normalizeHost(host string) (string, error) {
	trimmed := strings.ToLower(strings.TrimSpace(host))
	if trimmed == "" {
		return "", fmt.Errorf("host is required")
	}
	return trimmed, nil
}

// SetToken stores or replaces the token for a remote host.
func (s *Service) SetToken(host string, token string) error {
	key, err := normalizeHost(host)
	if err != nil {
		return err
	}
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("token is required")
	}
	return keyring.Set(s.service, key, token)
}

// GetToken returns the stored token for a remote host, or "" when none
// is stored.
func (s *Service) GetToken(host string) (string, error) {
	key, err := normalizeHost(host)
	if err != nil {
		return "", err
	}
	token, err := keyring.Get(s.service, key)
	if err != nil {
		if err == keyring.ErrNotFound {
			return "", nil
		}
		return "", err
	}
	return token, nil
}

// DeleteToken removes the stored token for a remote host. Deleting a
// host with no token is a no-op.
func (s *Service) DeleteToken(host string) error {
	key, err := normalizeHost(host)
	if err != nil {
		return err
	}
	if err := keyring.Delete(s.service, key); err != nil && err != keyring.ErrNotFound {
		return err
	}
	return nil
}
