package rights

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tixgate/actionset/model"
)

func TestNew_closure(t *testing.T) {
	cfg, err := New(model.RightsConfig{
		"actionset": {
			"owner":  {Count: 1, CanEditRights: true, CountAs: []string{"editor"}},
			"editor": {CountAs: []string{"viewer"}},
			"viewer": {},
		},
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	got := cfg.Closure("actionset", "owner")
	want := []string{"editor", "viewer"}
	if len(got) != len(want) {
		t.Fatalf("Closure(owner) = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Closure(owner)[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	if !cfg.Implies("actionset", "owner", "viewer") {
		t.Error("owner should imply viewer transitively")
	}
	if cfg.Implies("actionset", "viewer", "owner") {
		t.Error("viewer must not imply owner")
	}
}

func TestNew_cycleIsFatal(t *testing.T) {
	_, err := New(model.RightsConfig{
		"actionset": {
			"a": {CountAs: []string{"b"}},
			"b": {CountAs: []string{"c"}},
			"c": {CountAs: []string{"a"}},
		},
	})
	if err == nil {
		t.Fatal("expected cycle error")
	}
	if !strings.Contains(err.Error(), "cycle") {
		t.Errorf("error = %v, want cycle mention", err)
	}
}

func TestNew_undeclaredReference(t *testing.T) {
	_, err := New(model.RightsConfig{
		"actionset": {
			"owner": {CountAs: []string{"ghost"}},
		},
	})
	if err == nil {
		t.Fatal("expected undeclared-right error")
	}
}

func TestConfig_HasPublic(t *testing.T) {
	cfg, err := New(model.RightsConfig{
		"category": {
			"route_search": {Public: true},
			"admin":        {CanEditRights: true},
		},
		"actionset": {
			"owner": {Count: 1, CanEditRights: true},
		},
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if !cfg.HasPublic("category") {
		t.Error("category declares a public right")
	}
	if cfg.HasPublic("actionset") {
		t.Error("actionset declares no public right")
	}
}

func TestLoad_yaml(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rights.yaml")
	content := `
actionset:
  owner:
    count: 1
    can_edit_rights: true
    count_as: [editor]
  editor: {}
category:
  route_search:
    public: true
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	def, ok := cfg.Get("actionset", "owner")
	if !ok {
		t.Fatal("actionset.owner not loaded")
	}
	if def.Count != 1 || !def.CanEditRights {
		t.Errorf("owner def = %+v", def)
	}
	if rs, ok := cfg.Get("category", "route_search"); !ok || !rs.Public {
		t.Errorf("route_search def = %+v ok=%v", rs, ok)
	}
}

func TestLoad_missingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
