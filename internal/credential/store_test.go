package credential

import (
	"path/filepath"
	"testing"

	"github.com/initializ/skillforge/internal/contract"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	backend := NewEncryptedFileBackend(filepath.Join(dir, "secrets.enc"), func() (string, error) {
		return "test-passphrase", nil
	})
	return New(backend, nil)
}

func TestPutGetDeleteRoundTrip(t *testing.T) {
	s := testStore(t)
	skill, instance := contract.SkillId("github-skill"), contract.InstanceId("default")

	if f := s.Put(skill, instance, "token", "secret-value"); f != nil {
		t.Fatalf("put failed: %v", f)
	}
	val, f := s.Get(skill, instance, "token")
	if f != nil {
		t.Fatalf("get failed: %v", f)
	}
	if val != "secret-value" {
		t.Fatalf("got %q, want %q", val, "secret-value")
	}

	if f := s.Delete(skill, instance, "token"); f != nil {
		t.Fatalf("delete failed: %v", f)
	}

	_, f = s.Get(skill, instance, "token")
	if f == nil || f.Kind != contract.FailureNotFound {
		t.Fatalf("expected NotFound after delete, got %v", f)
	}
}

func TestGetMissingIsNotFound(t *testing.T) {
	s := testStore(t)
	_, f := s.Get("skill", "default", "missing")
	if f == nil || f.Kind != contract.FailureNotFound {
		t.Fatalf("expected NotFound, got %v", f)
	}
}

func TestListReturnsKeyNamesOnly(t *testing.T) {
	s := testStore(t)
	skill := contract.SkillId("skill")
	s.Put(skill, "default", "a", "1") //nolint:errcheck
	s.Put(skill, "default", "b", "2") //nolint:errcheck
	s.Put(skill, "prod", "c", "3")    //nolint:errcheck

	keys, f := s.List(skill, "default")
	if f != nil {
		t.Fatalf("list failed: %v", f)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys for default instance, got %v", keys)
	}
}

func TestAccessorRefusesUndeclaredKey(t *testing.T) {
	s := testStore(t)
	skill := contract.SkillId("skill")
	s.Put(skill, "default", "token", "v") //nolint:errcheck

	accessor := s.Accessor(skill, "default", map[string]bool{"token": true})
	if _, f := accessor("token"); f != nil {
		t.Fatalf("expected declared key to succeed, got %v", f)
	}
	if _, f := accessor("other-skills-secret"); f == nil || f.Kind != contract.FailureNotFound {
		t.Fatalf("expected undeclared key to be refused, got %v", f)
	}
}
