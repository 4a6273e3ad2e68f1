package store

const (
	defaultRelationshipTable = "canopy_relationships"
	defaultUniqueTable       = "canopy_unique_constraints"
	maxShards                = 256
)

// Config holds configuration for the Store.
type Config struct {
	// RelationshipTable records parent -> child edges.
	// Default: "canopy_relationships"
	RelationshipTable string

	// UniqueTable holds sibling uniqueness constraints.
	// Default: "canopy_unique_constraints"
	UniqueTable string

	// NumShards spreads the children of one parent over this many
	// partitions. Each shard sustains roughly 1,000 writes/sec, so a
	// department with a burst of imports may need more than one.
	// Default: 1. Max: 256.
	NumShards int
}

// DefaultConfig returns a single-shard configuration.
func DefaultConfig() Config {
	return Config{
		RelationshipTable: defaultRelationshipTable,
		UniqueTable:       defaultUniqueTable,
		NumShards:         1,
	}
}

// validate fills empty names and clamps NumShards to [1, 256].
func (c *Config) validate() {
	if c.RelationshipTable == "" {
		c.RelationshipTable = defaultRelationshipTable
	}
	if c.UniqueTable == "" {
		c.UniqueTable = defaultUniqueTable
	}
	if c.NumShards < 1 {
		c.NumShards = 1
	}
	if c.NumShards > maxShards {
		c.NumShards = maxShards
	}
}
