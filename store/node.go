package store

import (
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// PK represents a DynamoDB primary key.
type PK map[string]types.AttributeValue

// Node is implemented by everything the store persists.
type Node interface {
	// TableName returns the DynamoDB table holding this node kind.
	TableName() string

	// GetKey returns the primary key for this node.
	GetKey() PK

	// NodeRef returns the kind-qualified reference (e.g., "dept#uuid").
	NodeRef() string

	// Kind returns the node kind (e.g., "dept").
	Kind() string
}

// Parented is implemented by nodes that may hang below another node.
type Parented interface {
	// ParentCheck returns the condition check used to validate the parent on
	// create. Returns nil for roots.
	ParentCheck() *ConditionCheck

	// ParentRef returns the parent's node reference, or "" for roots.
	ParentRef() string
}

// ConditionCheck names the parent a transaction must find alive.
type ConditionCheck struct {
	TableName string
	Key       PK

	// ConditionExpr overrides ParentExistsCondition() when set.
	ConditionExpr string
}

// UniqueFielder is implemented by nodes whose fields must be unique among
// their siblings (e.g., a menu name under one parent).
type UniqueFielder interface {
	UniqueFields() map[string]string
}

// Item is a stored node together with its managed fields.
type Item struct {
	// Raw is the DynamoDB item as read.
	Raw map[string]types.AttributeValue

	Version   int64
	CreatedAt string
	UpdatedAt string
	NodeRef   string

	// ParentRef is empty for roots.
	ParentRef string
}

// ChildRef locates a child through the relationship table.
type ChildRef struct {
	Ref       string
	TableName string
	Key       PK

	// ShardPK is the relationship partition the child was found in.
	ShardPK string
}

// QueryInput defines parameters for querying nodes. Deleted nodes are
// filtered out automatically.
type QueryInput struct {
	TableName                 string
	IndexName                 string
	KeyConditionExpression    string
	FilterExpression          string
	ExpressionAttributeNames  map[string]string
	ExpressionAttributeValues map[string]types.AttributeValue

	// Limit caps the page size (0 = no limit).
	Limit int32

	ScanIndexForward *bool
}

// Managed attribute names written by the store.
const (
	attrID        = "id"
	attrNodeRef   = "node_ref"
	attrParentRef = "parent_ref"
	attrVersion   = "version"
	attrCreatedAt = "created_at"
	attrUpdatedAt = "updated_at"
	attrTTL       = "ttl"
	attrUniquePKs = "_unique_pks"
)

// isManaged reports whether callers may not set attr through Update.
func isManaged(attr string) bool {
	switch attr {
	case attrID, attrNodeRef, attrParentRef, attrVersion,
		attrCreatedAt, attrUpdatedAt, attrTTL, attrUniquePKs:
		return true
	}
	return false
}
