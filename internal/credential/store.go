// Package credential implements the Credential Store (C1): one-way
// persistence and read of opaque secrets in the host OS keychain, with an
// encrypted-file fallback for headless environments where no keychain
// backend is reachable.
package credential

import (
	"fmt"

	"github.com/initializ/skillforge/internal/auditlog"
	"github.com/initializ/skillforge/internal/contract"
)

// Backend is the interface a concrete secret store implements. It never
// returns a secret through any channel other than Get's return value.
type Backend interface {
	Set(service, account, secret string) error
	Get(service, account string) (string, error)
	Delete(service, account string) error
	Name() string
}

// ErrNotFound is the backend-agnostic not-found sentinel. A backend reports
// not-found either by returning ErrNotFound itself or an error with a
// NotFound() bool method; isNotFound checks for both, without unwrapping.
var ErrNotFound = fmt.Errorf("secret not found")

// Store is the Credential Store: it namespaces (skill, instance, key)
// triples into a single backend account identifier and audits every
// operation without ever logging the secret value.
type Store struct {
	backend Backend
	audit   *auditlog.AuditLogger
	actor   string
}

// New constructs a Store over the given backend. audit may be nil, in
// which case operations are not recorded.
func New(backend Backend, audit *auditlog.AuditLogger) *Store {
	return &Store{backend: backend, audit: audit, actor: "skillforge-core"}
}

func namespacedAccount(instance contract.InstanceId, key string) string {
	return string(instance) + "/" + key
}

func serviceName(skill contract.SkillId) string {
	return "skillforge:" + string(skill)
}

func (s *Store) emit(op string, skill contract.SkillId, instance contract.InstanceId, key, outcome string) {
	if s.audit == nil {
		return
	}
	s.audit.Emit(auditlog.AuditEvent{
		Event: auditlog.EventCredentialAccess,
		Fields: map[string]any{
			"actor":    s.actor,
			"op":       op,
			"skill":    string(skill),
			"instance": string(instance),
			"key":      key,
			"outcome":  outcome,
		},
	})
}

// Put idempotently stores a secret for (skill, instance, key).
func (s *Store) Put(skill contract.SkillId, instance contract.InstanceId, key, secret string) *contract.Failure {
	err := s.backend.Set(serviceName(skill), namespacedAccount(instance, key), secret)
	if err != nil {
		s.emit("put", skill, instance, key, "error")
		return contract.Wrap(contract.FailureKeychainError, "failed to store credential", err).AsRetryable()
	}
	s.emit("put", skill, instance, key, "ok")
	return nil
}

// Get retrieves a secret. The secret is returned as a Go string, which is
// immutable; neither Get nor its caller can wipe it from memory.
func (s *Store) Get(skill contract.SkillId, instance contract.InstanceId, key string) (string, *contract.Failure) {
	val, err := s.backend.Get(serviceName(skill), namespacedAccount(instance, key))
	if err != nil {
		if isNotFound(err) {
			s.emit("get", skill, instance, key, "not_found")
			return "", contract.NewFailure(contract.FailureNotFound, fmt.Sprintf("credential %q not found", key))
		}
		s.emit("get", skill, instance, key, "error")
		return "", contract.Wrap(contract.FailureKeychainError, "keychain unavailable", err).AsRetryable()
	}
	s.emit("get", skill, instance, key, "ok")
	return val, nil
}

// Delete removes a secret, or reports NotFound if it never existed.
func (s *Store) Delete(skill contract.SkillId, instance contract.InstanceId, key string) *contract.Failure {
	err := s.backend.Delete(serviceName(skill), namespacedAccount(instance, key))
	if err != nil {
		if isNotFound(err) {
			s.emit("delete", skill, instance, key, "not_found")
			return contract.NewFailure(contract.FailureNotFound, fmt.Sprintf("credential %q not found", key))
		}
		s.emit("delete", skill, instance, key, "error")
		return contract.Wrap(contract.FailureKeychainError, "failed to delete credential", err).AsRetryable()
	}
	s.emit("delete", skill, instance, key, "ok")
	return nil
}

// List returns the key names stored for (skill, instance), never values.
func (s *Store) List(skill contract.SkillId, instance contract.InstanceId) ([]string, *contract.Failure) {
	lb, ok := s.backend.(interface {
		List(service string) ([]string, error)
	})
	if !ok {
		return nil, contract.NewFailure(contract.FailureInternal, "backend does not support enumeration")
	}
	accounts, err := lb.List(serviceName(skill))
	if err != nil {
		return nil, contract.Wrap(contract.FailureKeychainError, "failed to list credentials", err).AsRetryable()
	}
	prefix := string(instance) + "/"
	var keys []string
	for _, a := range accounts {
		if len(a) > len(prefix) && a[:len(prefix)] == prefix {
			keys = append(keys, a[len(prefix):])
		}
	}
	return keys, nil
}

// Accessor returns a callback closing over (skill, instance) that the
// Runtime Dispatch context passes to an executor. The executor never sees
// the full credential map — only the ability to ask for one key by name,
// and only keys the skill declared in its env/config map are answered.
func (s *Store) Accessor(skill contract.SkillId, instance contract.InstanceId, declaredKeys map[string]bool) func(key string) (string, *contract.Failure) {
	return func(key string) (string, *contract.Failure) {
		if !declaredKeys[key] {
			return "", contract.NewFailure(contract.FailureNotFound, fmt.Sprintf("credential %q not declared for this instance", key))
		}
		return s.Get(skill, instance, key)
	}
}

func isNotFound(err error) bool {
	type notFounder interface{ NotFound() bool }
	if nf, ok := err.(notFounder); ok {
		return nf.NotFound()
	}
	return err == ErrNotFound
}
