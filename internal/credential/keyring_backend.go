package credential

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/zalando/go-keyring"
)

// indexAccount is a reserved account name under which KeyringBackend keeps
// a JSON-encoded list of known keys per service, since the OS keychain APIs
// zalando/go-keyring wraps (macOS Keychain, Secret Service, Windows
// Credential Manager) have no enumeration call of their own.
const indexAccount = "\x00skillforge-index"

// KeyringBackend stores secrets in the host OS keychain via
// github.com/zalando/go-keyring.
type KeyringBackend struct {
	mu sync.Mutex
}

// NewKeyringBackend constructs a Backend over the OS keychain.
func NewKeyringBackend() *KeyringBackend {
	return &KeyringBackend{}
}

func (k *KeyringBackend) Name() string { return "os-keychain" }

type notFoundErr struct{ cause error }

func (e *notFoundErr) Error() string  { return e.cause.Error() }
func (e *notFoundErr) NotFound() bool { return true }
func (e *notFoundErr) Unwrap() error  { return e.cause }

func (k *KeyringBackend) Set(service, account, secret string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := keyring.Set(service, account, secret); err != nil {
		return fmt.Errorf("keychain set: %w", err)
	}
	return k.addToIndex(service, account)
}

func (k *KeyringBackend) Get(service, account string) (string, error) {
	val, err := keyring.Get(service, account)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", &notFoundErr{cause: err}
		}
		return "", fmt.Errorf("keychain get: %w", err)
	}
	return val, nil
}

func (k *KeyringBackend) Delete(service, account string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := keyring.Delete(service, account); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return &notFoundErr{cause: err}
		}
		return fmt.Errorf("keychain delete: %w", err)
	}
	_ = k.removeFromIndex(service, account)
	return nil
}

// List returns the accounts known to have been stored under service,
// ordered, via the side index (the OS keychain itself cannot enumerate).
func (k *KeyringBackend) List(service string) ([]string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	entries, err := k.readIndex(service)
	if err != nil {
		return nil, err
	}
	sort.Strings(entries)
	return entries, nil
}

func (k *KeyringBackend) readIndex(service string) ([]string, error) {
	raw, err := keyring.Get(service, indexAccount)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("keychain index read: %w", err)
	}
	var entries []string
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("corrupt keychain index: %w", err)
	}
	return entries, nil
}

func (k *KeyringBackend) writeIndex(service string, entries []string) error {
	b, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return keyring.Set(service, indexAccount, string(b))
}

func (k *KeyringBackend) addToIndex(service, account string) error {
	entries, err := k.readIndex(service)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e == account {
			return nil
		}
	}
	entries = append(entries, account)
	return k.writeIndex(service, entries)
}

func (k *KeyringBackend) removeFromIndex(service, account string) error {
	entries, err := k.readIndex(service)
	if err != nil {
		return err
	}
	out := entries[:0]
	for _, e := range entries {
		if e != account {
			out = append(out, e)
		}
	}
	return k.writeIndex(service, out)
}
