// Package secretstore implements the platform secret store collaborator
// described by the core's integrity.SecretStore interface, backed by the
// OS keyring.
package secretstore

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// service is the keyring service namespace under which all ownmon secrets
// are stored.
const service = "ownmon"

// Keyring stores secrets in the platform's native credential store
// (Keychain, libsecret, Windows Credential Manager) via go-keyring. The
// keyring library stores and returns strings, so values are base64-encoded
// on the way in and decoded on the way out.
type Keyring struct{}

// New returns a Keyring-backed secret store.
func New() *Keyring {
	return &Keyring{}
}

// Load retrieves the named secret. found is false (with a nil error) when
// no such secret exists.
func (k *Keyring) Load(name string) ([]byte, bool, error) {
	encoded, err := keyring.Get(service, name)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("secretstore: load %q: %w", name, err)
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, false, fmt.Errorf("secretstore: decode %q: %w", name, err)
	}
	return raw, true, nil
}

// Store persists value under name, overwriting any existing secret.
func (k *Keyring) Store(name string, value []byte) error {
	encoded := base64.StdEncoding.EncodeToString(value)
	if err := keyring.Set(service, name, encoded); err != nil {
		return fmt.Errorf("secretstore: store %q: %w", name, err)
	}
	return nil
}

// Delete removes the named secret. A missing secret is not an error.
func (k *Keyring) Delete(name string) error {
	err := keyring.Delete(service, name)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("secretstore: delete %q: %w", name, err)
	}
	return nil
}
