// Package store persists the self-referencing console hierarchies (menus,
// departments, workflow categories) in DynamoDB and lists them back as
// display forests.
//
// Every write keeps the hierarchy consistent on its own: a child is only
// created while its parent is alive, sibling-unique fields are claimed in
// the same transaction, and deletes are soft so a stream handler can
// cascade them one level at a time.
//
// # Key Features
//
//   - Parent validation on child creation (atomic)
//   - Orphan protection (refuse to delete a node with live children)
//   - Cascading deletes via DynamoDB Streams + TTL
//   - Unique field constraints within one parent
//   - Optimistic locking with a version field
//   - Configurable write sharding for wide parents
//   - Full-table listing into a [tree.Result]
//
// # Nodes
//
// Everything the store writes implements [Node]:
//
//	type Node interface {
//	    TableName() string
//	    GetKey() PK
//	    NodeRef() string
//	    Kind() string
//	}
//
// Nodes that may hang below another node also implement [Parented], and
// nodes with sibling-unique fields implement [UniqueFielder]. [Member] does
// all three for the kinds of a [Registry]:
//
//	spec, _ := registry.Kind(store.KindDept)
//	m := store.Member{Spec: spec, ID: store.NewID(), ParentID: parentID,
//	    Unique: map[string]string{"deptName": "R&D"}}
//	item, _ := m.Item(fields)
//	err := s.Create(ctx, m, item)
//
// # Listing
//
// [Store.Forest] scans a table, drops deleted rows and managed attributes,
// and builds the forest with the kind's [tree.Config]. [Store.ForestOf] does
// the same by kind name.
//
// # Configuration
//
// Use [DefaultConfig] for small hierarchies (NumShards=1). Increase
// NumShards when one parent receives bursts of children:
//
//	cfg := store.DefaultConfig()
//	cfg.NumShards = 16
//
// # Errors
//
//   - [ErrNotFound] - node doesn't exist or is deleted
//   - [ErrParentNotFound] - parent validation failed
//   - [ErrAlreadyExists] - node with ID already exists
//   - [ErrHasChildren] - cannot delete a node with children
//   - [ErrConcurrentModification] - optimistic lock failed
//   - [ErrDuplicateValue] - unique constraint violated
//   - [ErrUnknownKind] - kind is not registered
package store
