// Package tree converts flat, parent-keyed record collections into ordered
// forests and back.
//
// Console views (menus, departments, workflow categories) are fetched as flat
// lists where every record names its parent. The table widgets that render
// them want nested children instead. This package bridges the two shapes
// without touching the input records.
//
// # Building
//
// [Build] indexes the collection once by identifier and once by parent
// identifier, picks the roots, and attaches children to copies of the input
// records:
//
//	forest := tree.Build(records, tree.Config{IDField: "deptId"})
//
// A record is a root when its parent identifier does not name any record in
// the collection. Children keep the relative order of the input. A node
// without children carries the children field with a nil value, so callers can
// test for children with a single lookup.
//
// # Transforming responses
//
// [Transform] is the shape table views consume: it filters the response data
// into the flat projection used for row operations and builds the display
// forest from that projection.
//
//	res := tree.Transform(tree.Response{Data: records}, tree.MenuConfig())
//	_ = res.Tree     // nested, for display
//	_ = res.FlatData // addressable rows
//
// # Identifiers
//
// Identifiers compare by value. Numeric identifiers are normalized, so 1,
// int64(1), float64(1) and json.Number("1") refer to the same node, while the
// string "1" does not. Missing or non-comparable identifiers never match a
// parent.
//
// # Malformed input
//
// Nothing in this package returns an error. Duplicate identifiers resolve to
// the first record seen, dangling parents produce roots, and a descent that
// would revisit an identifier already on its path stops there.
package tree
