package store

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/jacentio/canopy/tree"
)

// NewID returns a fresh node identifier.
func NewID() string {
	return uuid.NewString()
}

// Member is a node of a self-referencing kind such as a menu, department or
// workflow category. Its parent lives in the same table.
type Member struct {
	Spec     KindSpec
	ID       string
	ParentID string

	// Unique lists sibling-unique fields (e.g., {"deptName": "R&D"}).
	Unique map[string]string
}

func (m Member) TableName() string { return m.Spec.Table }
func (m Member) Kind() string      { return m.Spec.Name }
func (m Member) NodeRef() string   { return m.Spec.Name + "#" + m.ID }
func (m Member) GetKey() PK {
	return PK{attrID: stringAttr(m.ID)}
}

// IsRoot reports whether m has no parent.
func (m Member) IsRoot() bool {
	return m.ParentID == "" || m.ParentID == m.Spec.RootParent
}

func (m Member) ParentRef() string {
	if m.IsRoot() {
		return ""
	}
	return m.Spec.Name + "#" + m.ParentID
}

func (m Member) ParentCheck() *ConditionCheck {
	if m.IsRoot() {
		return nil
	}
	return &ConditionCheck{
		TableName: m.Spec.Table,
		Key:       PK{attrID: stringAttr(m.ParentID)},
	}
}

func (m Member) UniqueFields() map[string]string {
	return m.Unique
}

// Item marshals fields (a struct or map) and stamps the key, identifier and
// parent fields of the kind onto the result.
func (m Member) Item(fields any) (map[string]types.AttributeValue, error) {
	item := map[string]types.AttributeValue{}
	if fields != nil {
		av, err := attributevalue.MarshalMap(fields)
		if err != nil {
			return nil, fmt.Errorf("marshal %s fields: %w", m.Spec.Name, err)
		}
		item = av
	}

	cfg := m.Spec.Tree
	idField := cfg.IDField
	if idField == "" {
		idField = tree.DefaultIDField
	}
	parent := m.ParentID
	if m.IsRoot() {
		parent = m.Spec.RootParent
	}

	item[attrID] = stringAttr(m.ID)
	item[idField] = stringAttr(m.ID)
	item[parentField(m.Spec)] = stringAttr(parent)
	return item, nil
}
