// Package secrets resolves channel credentials from config or the OS keychain.
package secrets

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

// KeyringService groups jobdigest credentials in the OS keychain.
const KeyringService = "jobdigest"

// ErrNotFound is returned when neither config nor the keychain holds a value.
var ErrNotFound = errors.New("secret not found (set it in config, env or keychain)")

// Resolve returns value when it is set, otherwise the keychain entry stored
// under account. An empty account with an empty value yields ErrNotFound.
func Resolve(value, account string) (string, error) {
	if v := strings.TrimSpace(value); v != "" {
		return v, nil
	}
	if strings.TrimSpace(account) == "" {
		return "", ErrNotFound
	}
	pw, err := keyring.Get(KeyringService, account)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("reading keychain entry %q: %w", account, err)
	}
	if strings.TrimSpace(pw) == "" {
		return "", ErrNotFound
	}
	return pw, nil
}

// Set stores secret in the keychain under account.
func Set(account, secret string) error {
	if strings.TrimSpace(account) == "" {
		return errors.New("keyring account name is empty")
	}
	if strings.TrimSpace(secret) == "" {
		return errors.New("secret is empty")
	}
	return keyring.Set(KeyringService, account, secret)
}

// Delete removes the keychain entry for account.
func Delete(account string) error {
	if strings.TrimSpace(account) == "" {
		return errors.New("keyring account name is empty")
	}
	return keyring.Delete(KeyringService, account)
}

// EmailAccount is the default keychain account for the SMTP app password.
func EmailAccount(from string) string {
	return "jobdigest:smtp:" + strings.ToLower(strings.TrimSpace(from))
}
