package trust

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Keyring manages a set of trusted Ed25519 public keys, indexed by key ID.
type Keyring struct {
	keys map[string]ed25519.PublicKey
}

// NewKeyring creates an empty keyring.
func NewKeyring() *Keyring {
	return &Keyring{keys: make(map[string]ed25519.PublicKey)}
}

// Add registers a public key under the given ID.
func (k *Keyring) Add(keyID string, pubKey ed25519.PublicKey) {
	k.keys[keyID] = pubKey
}

// Get returns the public key for the given ID, or nil if not found.
func (k *Keyring) Get(keyID string) ed25519.PublicKey {
	return k.keys[keyID]
}

// List returns all known key IDs.
func (k *Keyring) List() []string {
	ids := make([]string, 0, len(k.keys))
	for id := range k.keys {
		ids = append(ids, id)
	}
	return ids
}

// LoadFromDir reads every *.pub file in dir (each a base64-encoded Ed25519
// public key) and adds it under a key ID derived from the filename.
func (k *Keyring) LoadFromDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading key directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".pub") {
			continue
		}
		keyID := strings.TrimSuffix(entry.Name(), ".pub")
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("reading key %q: %w", keyID, err)
		}
		pubBytes, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data)))
		if err != nil {
			return fmt.Errorf("decoding key %q: %w", keyID, err)
		}
		if len(pubBytes) != ed25519.PublicKeySize {
			return fmt.Errorf("key %q has invalid size: %d (expected %d)", keyID, len(pubBytes), ed25519.PublicKeySize)
		}
		k.keys[keyID] = ed25519.PublicKey(pubBytes)
	}
	return nil
}

// VerifyAny tries every key in the keyring and returns the first match.
func (k *Keyring) VerifyAny(content, signature []byte) (keyID string, ok bool) {
	for id, pubKey := range k.keys {
		if Verify(content, signature, pubKey) {
			return id, true
		}
	}
	return "", false
}

// DefaultKeyring loads trusted keys from ~/.skillforge/trusted-keys/.
func DefaultKeyring() *Keyring {
	kr := NewKeyring()
	home, err := os.UserHomeDir()
	if err != nil {
		return kr
	}
	_ = kr.LoadFromDir(filepath.Join(home, ".skillforge", "trusted-keys"))
	return kr
}

// Policy gates which TrustLevel a compile artifact must carry to be
// accepted, and whether a checksum/signature is mandatory.
type Policy struct {
	MinTrustLevel     TrustLevel
	RequireChecksum   bool
	RequireSignature  bool
}

// TrustLevel ranks provenance from least to most trusted.
type TrustLevel string

const (
	TrustBuiltin   TrustLevel = "builtin"
	TrustVerified  TrustLevel = "verified"
	TrustLocal     TrustLevel = "local"
	TrustUntrusted TrustLevel = "untrusted"
)

var trustOrd = map[TrustLevel]int{
	TrustBuiltin:   3,
	TrustVerified:  2,
	TrustLocal:     1,
	TrustUntrusted: 0,
}

// DefaultPolicy accepts TrustLocal and above, with no mandatory checksum
// or signature — matching the reference stack's own default.
func DefaultPolicy() Policy {
	return Policy{MinTrustLevel: TrustLocal}
}

// Accepts reports whether level satisfies the policy's minimum.
func (p Policy) Accepts(level TrustLevel) bool {
	return trustOrd[level] >= trustOrd[p.MinTrustLevel]
}
