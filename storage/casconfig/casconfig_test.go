package casconfig

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/multiformats/go-multicodec"

	"xdao.co/docloader/storage"
	"xdao.co/docloader/storage/casregistry"
	_ "xdao.co/docloader/storage/localfs"
	_ "xdao.co/docloader/storage/memory"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadFile_JSONAndYAML(t *testing.T) {
	jsonPath := writeFile(t, "cas.json", `{"write_policy":"all","backends":[{"name":"memory"},{"name":"localfs","id":"disk","config":{"localfs-dir":"/tmp/x"}}]}`)
	yamlPath := writeFile(t, "cas.yaml", `
write_policy: all
backends:
  - name: memory
  - name: localfs
    id: disk
    config:
      localfs-dir: /tmp/x
`)
	for _, path := range []string{jsonPath, yamlPath} {
		cfg, err := LoadFile(path)
		if err != nil {
			t.Fatalf("LoadFile(%s): %v", path, err)
		}
		if cfg.WritePolicy != "all" || len(cfg.Backends) != 2 {
			t.Fatalf("LoadFile(%s): unexpected config %+v", path, cfg)
		}
		if cfg.Backends[1].ID != "disk" || cfg.Backends[1].Config["localfs-dir"] != "/tmp/x" {
			t.Fatalf("LoadFile(%s): backend config lost: %+v", path, cfg.Backends[1])
		}
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]Config{
		"empty":     {},
		"noName":    {Backends: []BackendConfig{{}}},
		"duplicate": {Backends: []BackendConfig{{Name: "memory"}, {Name: "memory"}}},
		"policy":    {WritePolicy: "some", Backends: []BackendConfig{{Name: "memory"}}},
	}
	for name, cfg := range cases {
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
	ok := Config{Backends: []BackendConfig{{Name: "memory"}, {Name: "memory", ID: "second"}}}
	if err := ok.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestOpen_Policies(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	backends := []BackendConfig{
		{Name: "memory"},
		{Name: "localfs", Config: map[string]string{"localfs-dir": dir}},
	}

	cas, closeFn, err := Config{Backends: backends}.Open(casregistry.UsageCLI, "")
	if err != nil {
		t.Fatalf("Open(first): %v", err)
	}
	defer closeFn()
	if _, ok := cas.(storage.MultiCAS); !ok {
		t.Fatalf("Open(first): got %T want storage.MultiCAS", cas)
	}

	cas, closeFn2, err := Config{WritePolicy: "all", Backends: backends}.Open(casregistry.UsageCLI, "localfs")
	if err != nil {
		t.Fatalf("Open(all): %v", err)
	}
	defer closeFn2()
	rep, ok := cas.(storage.ReplicatingCAS)
	if !ok {
		t.Fatalf("Open(all): got %T want storage.ReplicatingCAS", cas)
	}
	if rep.Backends[0].Name != "localfs" {
		t.Fatalf("preferred backend not first: %q", rep.Backends[0].Name)
	}
	id, ids, err := rep.PutAll(ctx, multicodec.DagJson, []byte(`{"a":1}`))
	if err != nil {
		t.Fatalf("PutAll: %v", err)
	}
	if len(ids) != 2 || !ids["memory"].Equals(id) || !ids["localfs"].Equals(id) {
		t.Fatalf("PutAll ids: %v", ids)
	}

	if _, _, err := (Config{Backends: backends}).Open(casregistry.UsageCLI, "missing"); err == nil {
		t.Fatalf("expected error for unknown preferred backend")
	}
	if _, _, err := (Config{Backends: []BackendConfig{{Name: "localfs"}}}).Open(casregistry.UsageCLI, ""); err == nil {
		t.Fatalf("expected error for localfs without a directory")
	}
}
