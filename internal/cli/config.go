package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jacentio/canopy/dict"
	"github.com/jacentio/canopy/store"
	"github.com/jacentio/canopy/tree"
)

// DefaultConfigFile is read from the working directory when --config is not
// given.
const DefaultConfigFile = "canopy.toml"

// Config is the canopy.toml layout.
//
//	[tree]
//	id_field = "deptId"
//
//	[store]
//	region = "eu-west-1"
//	num_shards = 4
//
//	[store.tables]
//	depts = "prod_depts"
//
//	[redis]
//	addr = "localhost:6379"
//
//	[dict]
//	ttl = "10m"
//
//	[server]
//	addr = ":8080"
type Config struct {
	Tree   TreeConfig       `toml:"tree"`
	Store  StoreConfig      `toml:"store"`
	Redis  dict.RedisConfig `toml:"redis"`
	Dict   DictConfig       `toml:"dict"`
	Server ServerConfig     `toml:"server"`
}

// TreeConfig holds the field names used by the tree commands when no kind
// is selected.
type TreeConfig struct {
	IDField       string `toml:"id_field"`
	ParentIDField string `toml:"parent_id_field"`
	ChildrenField string `toml:"children_field"`
}

// StoreConfig locates the DynamoDB tables.
type StoreConfig struct {
	Region string `toml:"region"`

	// Endpoint overrides the DynamoDB endpoint (e.g., DynamoDB Local).
	Endpoint string `toml:"endpoint"`

	RelationshipTable string       `toml:"relationship_table"`
	UniqueTable       string       `toml:"unique_table"`
	NumShards         int          `toml:"num_shards"`
	Tables            store.Tables `toml:"tables"`
}

// DictConfig configures the dictionary service.
type DictConfig struct {
	TTL    time.Duration `toml:"ttl"`
	Locale string        `toml:"locale"`

	// TypeIndex names the dictType index of the dict table; "-" queries
	// the table itself.
	TypeIndex string `toml:"type_index"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr            string        `toml:"addr"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() Config {
	sc := store.DefaultConfig()
	dc := dict.DefaultConfig()
	return Config{
		Tree: TreeConfig{
			IDField:       tree.DefaultIDField,
			ParentIDField: tree.DefaultParentIDField,
			ChildrenField: tree.DefaultChildrenField,
		},
		Store: StoreConfig{
			RelationshipTable: sc.RelationshipTable,
			UniqueTable:       sc.UniqueTable,
			NumShards:         sc.NumShards,
			Tables:            store.DefaultTables(),
		},
		Dict: DictConfig{
			TTL:       dc.TTL,
			Locale:    dc.Locale,
			TypeIndex: dict.DefaultTypeIndex,
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
	}
}

// LoadConfig decodes path over DefaultConfig. An empty path reads
// DefaultConfigFile if it exists. Unknown keys are an error so typos do not
// silently fall back to defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		if _, err := os.Stat(DefaultConfigFile); errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		path = DefaultConfigFile
	}

	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("load config %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		cfg.Server.ShutdownTimeout = DefaultConfig().Server.ShutdownTimeout
	}
	return cfg, nil
}

func (c StoreConfig) storeConfig() store.Config {
	return store.Config{
		RelationshipTable: c.RelationshipTable,
		UniqueTable:       c.UniqueTable,
		NumShards:         c.NumShards,
	}
}

func (c DictConfig) serviceConfig() dict.Config {
	return dict.Config{TTL: c.TTL, Locale: c.Locale}
}
