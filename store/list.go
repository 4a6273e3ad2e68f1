package store

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/canopy/tree"
)

// stripped lists the managed attributes List removes from records.
var stripped = []string{
	attrNodeRef, attrParentRef, attrVersion,
	attrCreatedAt, attrUpdatedAt, attrTTL, attrUniquePKs,
}

// List scans every live node of table and returns them as plain records
// ordered by creation time. Managed attributes are removed.
func (s *Store) List(ctx context.Context, table string) ([]tree.Record, error) {
	type row struct {
		created time.Time
		record  tree.Record
	}

	var rows []row
	paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName:                 aws.String(table),
		FilterExpression:          aws.String(TTLFilterExpr()),
		ExpressionAttributeNames:  TTLFilterNames(),
		ExpressionAttributeValues: TTLFilterValues(),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		for _, raw := range page.Items {
			record, err := toRecord(raw)
			if err != nil {
				return nil, fmt.Errorf("scan %s: %w", table, err)
			}
			created, _ := time.Parse(time.RFC3339Nano, stringOf(raw, attrCreatedAt))
			rows = append(rows, row{created: created, record: record})
		}
	}

	slices.SortStableFunc(rows, func(a, b row) int {
		return a.created.Compare(b.created)
	})

	records := make([]tree.Record, len(rows))
	for i, r := range rows {
		records[i] = r.record
	}
	s.logger.Debug("listed nodes", "table", table, "count", len(records))
	return records, nil
}

// Forest lists table and shapes it with cfg.
func (s *Store) Forest(ctx context.Context, table string, cfg tree.Config) (tree.Result, error) {
	records, err := s.List(ctx, table)
	if err != nil {
		return tree.Result{Tree: []tree.Record{}, FlatData: []tree.Record{}}, err
	}
	return tree.Transform(tree.Response{Data: records}, cfg), nil
}

// ForestOf resolves kind through the registry and returns its forest.
func (s *Store) ForestOf(ctx context.Context, kind string) (tree.Result, error) {
	if s.registry == nil {
		return tree.Result{Tree: []tree.Record{}, FlatData: []tree.Record{}}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	spec, err := s.registry.Kind(kind)
	if err != nil {
		return tree.Result{Tree: []tree.Record{}, FlatData: []tree.Record{}}, err
	}
	return s.Forest(ctx, spec.Table, spec.Tree)
}

func toRecord(raw map[string]types.AttributeValue) (tree.Record, error) {
	var m map[string]any
	if err := attributevalue.UnmarshalMap(raw, &m); err != nil {
		return nil, err
	}
	for _, attr := range stripped {
		delete(m, attr)
	}
	return tree.Record(m), nil
}
