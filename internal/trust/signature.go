// Package trust provides content-hash computation for compile artifacts
// and Ed25519 signature verification for skill provenance — a supplemented
// feature: spec.md's CompileArtifact carries a content_hash; this package
// adds the optional signature/keyring layer on top of it.
package trust

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
)

// GenerateKeyPair creates a new Ed25519 key pair for signing artifacts.
func GenerateKeyPair() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("generating key pair: %w", err)
	}
	return pub, priv, nil
}

// Sign produces a detached Ed25519 signature of content.
func Sign(content []byte, privateKey ed25519.PrivateKey) ([]byte, error) {
	if len(privateKey) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid private key size: %d", len(privateKey))
	}
	return ed25519.Sign(privateKey, content), nil
}

// Verify checks a detached Ed25519 signature of content.
func Verify(content, signature []byte, publicKey ed25519.PublicKey) bool {
	if len(publicKey) != ed25519.PublicKeySize || len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(publicKey, content, signature)
}
