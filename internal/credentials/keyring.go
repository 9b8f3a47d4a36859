package credentials

import (
	"errors"
	"strings"

	"github.com/zalando/go-keyring"
)

// Service is the keyring service name entries are stored under.
const Service = "eprints2bags"

// ErrNotFound reports that the keyring holds no entry for an account.
var ErrNotFound = errors.New("credentials not found in keyring")

// Keyring is the part of an OS secret store used here. Accounts are
// EPrints server hosts.
type Keyring interface {
	Get(service, account string) (string, error)
	Set(service, account, secret string) error
}

// SystemKeyring stores entries in the platform keyring: the Secret Service
// on Linux, Keychain on macOS, and Credential Manager on Windows.
type SystemKeyring struct{}

func (SystemKeyring) Get(service, account string) (string, error) {
	secret, err := keyring.Get(service, account)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	return secret, err
}

func (SystemKeyring) Set(service, account, secret string) error {
	return keyring.Set(service, account, secret)
}

// The user name and password share one keyring entry.
const secretSeparator = "\n"

func encodeSecret(user, password string) string {
	return user + secretSeparator + password
}

func decodeSecret(secret string) (user, password string) {
	user, password, _ = strings.Cut(secret, secretSeparator)
	return user, password
}
