package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jacentio/canopy/dict"
	"github.com/jacentio/canopy/store"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "canopy.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Store.Tables != store.DefaultTables() {
		t.Errorf("expected default tables, got %+v", cfg.Store.Tables)
	}
	if cfg.Store.NumShards != 1 {
		t.Errorf("expected 1 shard, got %d", cfg.Store.NumShards)
	}
	if cfg.Dict.TypeIndex != dict.DefaultTypeIndex {
		t.Errorf("expected %q, got %q", dict.DefaultTypeIndex, cfg.Dict.TypeIndex)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("expected :8080, got %q", cfg.Server.Addr)
	}
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
[tree]
id_field = "deptId"

[store]
region = "eu-west-1"
num_shards = 8

[store.tables]
depts = "prod_depts"

[redis]
addr = "localhost:6379"
db = 2

[dict]
ttl = "10m"
locale = "en-US"

[server]
addr = ":9000"
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Tree.IDField != "deptId" {
		t.Errorf("expected deptId, got %q", cfg.Tree.IDField)
	}
	if cfg.Tree.ParentIDField != "parentId" {
		t.Errorf("expected default parent field kept, got %q", cfg.Tree.ParentIDField)
	}
	if cfg.Store.Region != "eu-west-1" || cfg.Store.NumShards != 8 {
		t.Errorf("unexpected store config %+v", cfg.Store)
	}
	if cfg.Store.Tables.Depts != "prod_depts" || cfg.Store.Tables.Menus != "canopy_menus" {
		t.Errorf("expected depts overridden and menus defaulted, got %+v", cfg.Store.Tables)
	}
	if cfg.Redis.Addr != "localhost:6379" || cfg.Redis.DB != 2 {
		t.Errorf("unexpected redis config %+v", cfg.Redis)
	}
	if cfg.Dict.TTL != 10*time.Minute || cfg.Dict.Locale != "en-US" {
		t.Errorf("unexpected dict config %+v", cfg.Dict)
	}
	if cfg.Server.Addr != ":9000" || cfg.Server.ShutdownTimeout != 10*time.Second {
		t.Errorf("unexpected server config %+v", cfg.Server)
	}

	sc := cfg.Store.storeConfig()
	if sc.NumShards != 8 || sc.RelationshipTable != "canopy_relationships" {
		t.Errorf("unexpected store.Config %+v", sc)
	}
}

func TestLoadConfig_UnknownKey(t *testing.T) {
	path := writeConfig(t, "[server]\nadress = \":9000\"\n")

	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "server.adress") {
		t.Errorf("expected unknown key error, got %v", err)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	if _, err := LoadConfig(writeConfig(t, "[tree\n")); err == nil {
		t.Error("expected parse error")
	}
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("expected error for an explicit missing file")
	}
}

func TestLoadConfig_NoFile(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Server.Addr != DefaultConfig().Server.Addr {
		t.Errorf("expected defaults, got %+v", cfg.Server)
	}
}

func TestTreeCommand_UsesConfigFields(t *testing.T) {
	path := writeConfig(t, "[tree]\nid_field = \"code\"\nparent_id_field = \"up\"\n")

	out, _, err := run(t, `[{"code": "x"}, {"code": "y", "up": "x"}]`, "keys", "--config", path)
	if err != nil {
		t.Fatalf("keys failed: %v", err)
	}
	if strings.TrimSpace(out) != `["x","y"]` {
		t.Errorf(`expected ["x","y"], got %s`, out)
	}
}
