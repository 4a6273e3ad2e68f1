package dict

import (
	"context"
	"fmt"
	"slices"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/canopy/store"
)

// DefaultTypeIndex is the secondary index on dictType.
const DefaultTypeIndex = "dictType-index"

// Querier runs store queries. *store.Store satisfies it.
type Querier interface {
	Query(ctx context.Context, input store.QueryInput) ([]*store.Item, error)
}

// StoreSource reads dictionary entries from a node table through an index
// keyed on dictType.
type StoreSource struct {
	Store Querier
	Table string

	// Index defaults to DefaultTypeIndex. Set it to "-" to query the table
	// itself when dictType is its partition key.
	Index string
}

// FetchDict returns the live entries of dictType ordered by DictSort.
func (s StoreSource) FetchDict(ctx context.Context, dictType string) ([]Entry, error) {
	index := s.Index
	switch index {
	case "":
		index = DefaultTypeIndex
	case "-":
		index = ""
	}

	items, err := s.Store.Query(ctx, store.QueryInput{
		TableName:                 s.Table,
		IndexName:                 index,
		KeyConditionExpression:    "#type = :type",
		ExpressionAttributeNames:  map[string]string{"#type": "dictType"},
		ExpressionAttributeValues: map[string]types.AttributeValue{":type": &types.AttributeValueMemberS{Value: dictType}},
	})
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", dictType, err)
	}

	entries := make([]Entry, 0, len(items))
	for _, item := range items {
		var e Entry
		if err := attributevalue.UnmarshalMap(item.Raw, &e); err != nil {
			return nil, fmt.Errorf("decode %s entry: %w", dictType, err)
		}
		entries = append(entries, e)
	}
	slices.SortStableFunc(entries, func(a, b Entry) int {
		return a.DictSort - b.DictSort
	})
	return entries, nil
}

var _ Source = StoreSource{}

// EntryNode writes an Entry through store.Store. Entries are roots keyed by
// DictCode; their "dict#<code>" node reference lets the stream handler tell
// dictionary writes apart from tree writes.
type EntryNode struct {
	Table string
	Entry Entry
}

func (n EntryNode) TableName() string { return n.Table }
func (n EntryNode) Kind() string      { return store.KindDict }
func (n EntryNode) NodeRef() string   { return store.KindDict + "#" + n.Entry.DictCode }
func (n EntryNode) GetKey() store.PK {
	return store.PK{"id": &types.AttributeValueMemberS{Value: n.Entry.DictCode}}
}

// Item marshals the entry for store.Store.Create or Update.
func (n EntryNode) Item() (map[string]types.AttributeValue, error) {
	item, err := attributevalue.MarshalMap(n.Entry)
	if err != nil {
		return nil, fmt.Errorf("marshal %s entry: %w", n.Entry.DictType, err)
	}
	item["id"] = &types.AttributeValueMemberS{Value: n.Entry.DictCode}
	return item, nil
}

var _ store.Node = EntryNode{}
