// Package secrets stores provider API keys in the operating system keyring.
package secrets

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

const keyringService = "chatterbox"

// ErrNotFound is returned when no key is stored for a provider.
var ErrNotFound = errors.New("no API key stored")

func apiKeyUser(providerID string) string {
	return "provider.apikey." + strings.ToLower(strings.TrimSpace(providerID))
}

// LoadAPIKey reads the stored API key for providerID.
func LoadAPIKey(providerID string) (string, error) {
	val, err := keyring.Get(keyringService, apiKeyUser(providerID))
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", fmt.Errorf("provider %s: %w", providerID, ErrNotFound)
		}
		return "", fmt.Errorf("keyring lookup for provider %s: %w", providerID, err)
	}
	if strings.TrimSpace(val) == "" {
		return "", fmt.Errorf("provider %s: %w", providerID, ErrNotFound)
	}
	return val, nil
}

// SaveAPIKey stores key for providerID, replacing any previous value.
func SaveAPIKey(providerID, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("empty API key for provider %s", providerID)
	}
	if err := keyring.Set(keyringService, apiKeyUser(providerID), key); err != nil {
		return fmt.Errorf("keyring store for provider %s: %w", providerID, err)
	}
	return nil
}

// DeleteAPIKey removes the stored key for providerID. Deleting a missing key
// is not an error.
func DeleteAPIKey(providerID string) error {
	err := keyring.Delete(keyringService, apiKeyUser(providerID))
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("keyring delete for provider %s: %w", providerID, err)
	}
	return nil
}
