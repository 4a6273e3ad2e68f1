package tree

// Build converts a flat collection into an ordered forest.
//
// Roots are the records whose parent identifier does not name any record in
// flat, in input order. Each node is a shallow copy of its input record with
// cfg.ChildrenField set to its children, or to nil when it has none. The
// input records are not modified.
//
// Build is O(n) in time and auxiliary space and never fails: duplicates keep
// the first record, dangling parents become roots, and records reachable only
// through a parent cycle are left out of the forest.
func Build(flat []Record, cfg Config) []Record {
	if len(flat) == 0 {
		return []Record{}
	}
	return NewIndex(flat, cfg).Forest()
}

// Response is a fetched list as handed over by the data layer.
type Response struct {
	Data []Record
	Err  error
}

// Result pairs the display forest with the flat rows it was built from.
type Result struct {
	// Tree is the nested forest for display.
	Tree []Record `json:"tree"`

	// FlatData is the filtered, order-preserving projection of the response.
	// Its records are the response records themselves and are the source of
	// truth for row lookups by identifier.
	FlatData []Record `json:"flatData"`
}

// Transform filters resp.Data with cfg.Filter and builds the forest from what
// remains. A failed or empty response yields an empty Result.
//
// Records rejected by cfg.IncludeChild are kept in FlatData; only their
// placement in the forest is affected.
func Transform(resp Response, cfg Config) Result {
	if resp.Err != nil || len(resp.Data) == 0 {
		return Result{Tree: []Record{}, FlatData: []Record{}}
	}

	cfg = cfg.withDefaults()
	flat := make([]Record, 0, len(resp.Data))
	for _, r := range resp.Data {
		if cfg.Filter(r) {
			flat = append(flat, r)
		}
	}

	return Result{
		Tree:     Build(flat, cfg),
		FlatData: flat,
	}
}

// TransformList is Transform for data that cannot fail.
func TransformList(flat []Record, cfg Config) Result {
	return Transform(Response{Data: flat}, cfg)
}

// CollectKeys returns the value of keyField for every node of forest at every
// depth, walking the default children field. It backs "expand all".
func CollectKeys(forest []Record, keyField string) []any {
	return CollectKeysWith(forest, Config{IDField: keyField})
}

// CollectKeysWith is CollectKeys reading cfg.IDField and cfg.ChildrenField.
// Nodes missing the key field are skipped but their children are still
// visited.
func CollectKeysWith(forest []Record, cfg Config) []any {
	cfg = cfg.withDefaults()
	var keys []any
	walk(forest, cfg.ChildrenField, func(r Record) {
		if v, ok := r[cfg.IDField]; ok && v != nil {
			keys = append(keys, v)
		}
	})
	if keys == nil {
		return []any{}
	}
	return keys
}

// Flatten walks forest depth first in pre-order and returns copies of every
// node without the children field.
func Flatten(forest []Record, cfg Config) []Record {
	cfg = cfg.withDefaults()
	out := []Record{}
	walk(forest, cfg.ChildrenField, func(r Record) {
		out = append(out, r.without(cfg.ChildrenField))
	})
	return out
}

// Count returns the number of nodes in forest at every depth.
func Count(forest []Record, childrenField string) int {
	if childrenField == "" {
		childrenField = DefaultChildrenField
	}
	n := 0
	walk(forest, childrenField, func(Record) { n++ })
	return n
}

func walk(forest []Record, childrenField string, visit func(Record)) {
	for _, r := range forest {
		visit(r)
		walk(r.Children(childrenField), childrenField, visit)
	}
}
