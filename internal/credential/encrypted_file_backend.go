package credential

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/crypto/argon2"
)

const (
	saltLen      = 16
	nonceLen     = 12
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
)

// EncryptedFileBackend stores secrets in an AES-256-GCM encrypted JSON file
// keyed by Argon2id, for hosts where no OS keychain is reachable (headless
// servers, CI). File format: salt(16) || nonce(12) || AES-GCM-ciphertext;
// plaintext is a JSON object mapping service and account, joined by a NUL
// byte, to secret value.
type EncryptedFileBackend struct {
	path       string
	passphrase func() (string, error)

	mu     sync.Mutex
	cache  map[string]string
	loaded bool
}

// NewEncryptedFileBackend creates a backend reading/writing path, deriving
// its encryption key from the passphrase callback (invoked lazily, keeping
// this package free of terminal I/O).
func NewEncryptedFileBackend(path string, passphrase func() (string, error)) *EncryptedFileBackend {
	return &EncryptedFileBackend{path: path, passphrase: passphrase}
}

func (p *EncryptedFileBackend) Name() string { return "encrypted-file" }

func compositeKey(service, account string) string {
	return service + "\x00" + account
}

func (p *EncryptedFileBackend) Set(service, account, secret string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ensureLoaded(); err != nil {
		return err
	}
	p.cache[compositeKey(service, account)] = secret
	return p.flush()
}

func (p *EncryptedFileBackend) Get(service, account string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ensureLoaded(); err != nil {
		return "", err
	}
	v, ok := p.cache[compositeKey(service, account)]
	if !ok {
		return "", &notFoundErr{cause: fmt.Errorf("%s/%s not in encrypted file", service, account)}
	}
	return v, nil
}

func (p *EncryptedFileBackend) Delete(service, account string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ensureLoaded(); err != nil {
		return err
	}
	k := compositeKey(service, account)
	if _, ok := p.cache[k]; !ok {
		return &notFoundErr{cause: fmt.Errorf("%s/%s not in encrypted file", service, account)}
	}
	delete(p.cache, k)
	return p.flush()
}

// List returns accounts stored under service.
func (p *EncryptedFileBackend) List(service string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ensureLoaded(); err != nil {
		return nil, err
	}
	prefix := service + "\x00"
	var out []string
	for k := range p.cache {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			out = append(out, k[len(prefix):])
		}
	}
	sort.Strings(out)
	return out, nil
}

func (p *EncryptedFileBackend) ensureLoaded() error {
	if p.loaded {
		return nil
	}
	data, err := os.ReadFile(p.path)
	if os.IsNotExist(err) {
		p.cache = make(map[string]string)
		p.loaded = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading secrets file: %w", err)
	}
	pass, err := p.passphrase()
	if err != nil {
		return fmt.Errorf("obtaining passphrase: %w", err)
	}
	plaintext, err := decryptBlob(data, pass)
	if err != nil {
		return fmt.Errorf("decrypting secrets file: %w", err)
	}
	m := make(map[string]string)
	if err := json.Unmarshal(plaintext, &m); err != nil {
		return fmt.Errorf("parsing secrets: %w", err)
	}
	p.cache = m
	p.loaded = true
	return nil
}

func (p *EncryptedFileBackend) flush() error {
	pass, err := p.passphrase()
	if err != nil {
		return fmt.Errorf("obtaining passphrase: %w", err)
	}
	plaintext, err := json.Marshal(p.cache)
	if err != nil {
		return fmt.Errorf("marshalling secrets: %w", err)
	}
	ciphertext, err := encryptBlob(plaintext, pass)
	if err != nil {
		return err
	}

	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating secrets directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".secrets-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(ciphertext); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0600); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(tmpPath, p.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

func encryptBlob(plaintext []byte, passphrase string) ([]byte, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}
	key := deriveKey(passphrase, salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	nonce := make([]byte, nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	result := make([]byte, 0, saltLen+nonceLen+len(ciphertext))
	result = append(result, salt...)
	result = append(result, nonce...)
	result = append(result, ciphertext...)
	return result, nil
}

func decryptBlob(data []byte, passphrase string) ([]byte, error) {
	minLen := saltLen + nonceLen + 1
	if len(data) < minLen {
		return nil, fmt.Errorf("encrypted data too short: %d bytes", len(data))
	}
	salt := data[:saltLen]
	nonce := data[saltLen : saltLen+nonceLen]
	ciphertext := data[saltLen+nonceLen:]

	key := deriveKey(passphrase, salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed (wrong passphrase?): %w", err)
	}
	return plaintext, nil
}
