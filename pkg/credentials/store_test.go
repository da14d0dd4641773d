package credentials

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestValidateKey(t *testing.T) {
	tests := []struct {
		key   string
		valid bool
	}{
		{"api_key", true},
		{"github.token", true},
		{"gitlab-token", true},
		{"a1", true},
		{"", false},
		{"API_KEY", false},
		{".leading", false},
		{"has space", false},
	}
	for _, tt := range tests {
		err := ValidateKey(tt.key)
		if tt.valid && err != nil {
			t.Errorf("ValidateKey(%q) = %v, want nil", tt.key, err)
		}
		if !tt.valid && err == nil {
			t.Errorf("ValidateKey(%q) = nil, want error", tt.key)
		}
	}
}

func TestEnvStore(t *testing.T) {
	t.Setenv("THREATCANVAS_GITHUB_TOKEN", "ghp_test")

	s := NewEnvStore("THREATCANVAS_")
	ctx := context.Background()

	cred, err := s.Get(ctx, "github.token")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if cred.Value != "ghp_test" {
		t.Errorf("value = %q", cred.Value)
	}

	if _, err := s.Get(ctx, "missing.token"); err != ErrNotFound {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}
	if err := s.Set(ctx, "github.token", &Credential{Value: "x"}); err != ErrReadOnly {
		t.Errorf("Set() error = %v, want ErrReadOnly", err)
	}

	exists, err := s.Exists(ctx, "github.token")
	if err != nil || !exists {
		t.Errorf("Exists() = %v, %v, want true", exists, err)
	}
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Set(ctx, "api_key", &Credential{Type: TypeAPIKey, Value: "secret"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	cred, err := s.Get(ctx, "api_key")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if cred.Value != "secret" || cred.Type != TypeAPIKey {
		t.Errorf("cred = %+v", cred)
	}
	if cred.CreatedAt.IsZero() || cred.UpdatedAt.IsZero() {
		t.Error("timestamps not set")
	}

	// Mutating the returned copy must not affect the store.
	cred.Value = "changed"
	again, _ := s.Get(ctx, "api_key")
	if again.Value != "secret" {
		t.Error("Get() returned a shared pointer")
	}

	if err := s.Delete(ctx, "api_key"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := s.Get(ctx, "api_key"); err != ErrNotFound {
		t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
	}
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	ctx := context.Background()

	s, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	if err := s.Set(ctx, "api_key", &Credential{Type: TypeAPIKey, Value: "secret"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	// Reopen and verify persistence.
	reopened, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	cred, err := reopened.Get(ctx, "api_key")
	if err != nil {
		t.Fatalf("Get() after reopen error = %v", err)
	}
	if cred.Value != "secret" {
		t.Errorf("value = %q", cred.Value)
	}
}

func TestChain(t *testing.T) {
	ctx := context.Background()
	t.Setenv("THREATCANVAS_API_KEY", "from-env")

	mem := NewMemoryStore()
	if err := mem.Set(ctx, "api_key", &Credential{Value: "from-mem"}); err != nil {
		t.Fatal(err)
	}
	if err := mem.Set(ctx, "gitlab.token", &Credential{Value: "glpat"}); err != nil {
		t.Fatal(err)
	}

	chain := NewChain(NewEnvStore("THREATCANVAS_"), mem)

	// Env wins over the fallback store.
	v, err := GetValue(ctx, chain, "api_key")
	if err != nil || v != "from-env" {
		t.Errorf("GetValue(api_key) = %q, %v, want from-env", v, err)
	}

	// Falls through to the memory store.
	v, err = GetValue(ctx, chain, "gitlab.token")
	if err != nil || v != "glpat" {
		t.Errorf("GetValue(gitlab.token) = %q, %v, want glpat", v, err)
	}

	if _, err := GetValue(ctx, chain, "unknown.key"); err != ErrNotFound {
		t.Errorf("GetValue(unknown) error = %v, want ErrNotFound", err)
	}

	// Writes skip the read-only env store.
	if err := chain.Set(ctx, "new_key", &Credential{Value: "v"}); err != nil {
		t.Fatalf("chain Set() error = %v", err)
	}
	if v, _ := GetValue(ctx, mem, "new_key"); v != "v" {
		t.Error("Set() did not reach the writable store")
	}
}

func TestGetValue_Expired(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	past := time.Now().Add(-time.Hour)
	if err := mem.Set(ctx, "old_key", &Credential{Value: "v", ExpiresAt: &past}); err != nil {
		t.Fatal(err)
	}

	if _, err := GetValue(ctx, mem, "old_key"); err == nil {
		t.Error("GetValue() should fail for expired credential")
	}
}
