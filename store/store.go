package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"golang.org/x/sync/errgroup"

	"github.com/jacentio/canopy/internal/shard"
)

// API is the subset of *dynamodb.Client the store uses.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	dynamodb.QueryAPIClient
	dynamodb.ScanAPIClient
}

var _ API = (*dynamodb.Client)(nil)

// Store persists console hierarchies in DynamoDB.
type Store struct {
	client   API
	config   Config
	registry *Registry
	logger   *slog.Logger
}

// New creates a Store.
func New(client API, config Config) *Store {
	config.validate()
	return &Store{
		client: client,
		config: config,
		logger: slog.Default(),
	}
}

// NewWithRegistry creates a Store that resolves kinds through registry.
func NewWithRegistry(client API, config Config, registry *Registry) *Store {
	s := New(client, config)
	s.registry = registry
	return s
}

// SetRegistry sets the kind registry.
func (s *Store) SetRegistry(registry *Registry) {
	s.registry = registry
}

// Registry returns the kind registry, or nil if not set.
func (s *Store) Registry() *Registry {
	return s.registry
}

// SetLogger replaces the logger. A nil logger restores slog.Default().
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	s.logger = logger
}

// Create writes node in one transaction that also validates the parent,
// claims sibling-unique values and records the parent -> child edge.
func (s *Store) Create(ctx context.Context, node Node, item map[string]types.AttributeValue) error {
	now := time.Now()
	nowISO := now.UTC().Format(time.RFC3339Nano)

	var items []types.TransactWriteItem
	parentCheckIndex := -1

	var parentRef string
	if p, ok := node.(Parented); ok {
		parentRef = p.ParentRef()
		if check := p.ParentCheck(); check != nil {
			parentCheckIndex = len(items)
			items = append(items, parentCheckItem(check, now))
		}
	}

	item[attrNodeRef] = stringAttr(node.NodeRef())
	item[attrVersion] = numberAttr(1)
	item[attrCreatedAt] = stringAttr(nowISO)
	item[attrUpdatedAt] = stringAttr(nowISO)
	if parentRef != "" {
		item[attrParentRef] = stringAttr(parentRef)
	}

	if uf, ok := node.(UniqueFielder); ok && parentRef != "" {
		fields := uf.UniqueFields()
		var pks []string
		for _, field := range slices.Sorted(maps.Keys(fields)) {
			pk := shard.UniqueKey(parentRef, node.Kind(), field, fields[field])
			pks = append(pks, pk)
			items = append(items, s.uniquePut(pk, parentRef, node, field, fields[field]))
		}
		if len(pks) > 0 {
			list, err := attributevalue.MarshalList(pks)
			if err != nil {
				return fmt.Errorf("marshal unique keys: %w", err)
			}
			item[attrUniquePKs] = &types.AttributeValueMemberL{Value: list}
		}
	}

	nodePutIndex := len(items)
	items = append(items, types.TransactWriteItem{
		Put: &types.Put{
			TableName:           aws.String(node.TableName()),
			Item:                item,
			ConditionExpression: aws.String("attribute_not_exists(id)"),
		},
	})

	if parentRef != "" {
		childRef := node.NodeRef()
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName: aws.String(s.config.RelationshipTable),
				Item: map[string]types.AttributeValue{
					"pk":          stringAttr(s.partition(parentRef, childRef)),
					"child_ref":   stringAttr(childRef),
					"parent_ref":  stringAttr(parentRef),
					"child_table": stringAttr(node.TableName()),
					"child_key":   &types.AttributeValueMemberM{Value: node.GetKey()},
				},
			},
		})
	}

	_, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	if err == nil {
		s.logger.Debug("node created", "node", node.NodeRef(), "parent", parentRef)
	}
	return mapCreateError(err, parentCheckIndex, nodePutIndex)
}

// Get retrieves a node by key. Deleted or missing nodes yield ErrNotFound.
func (s *Store) Get(ctx context.Context, table string, key PK) (*Item, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(table),
		Key:       key,
	})
	if err != nil {
		return nil, err
	}
	if result.Item == nil || IsDeleted(result.Item) {
		return nil, ErrNotFound
	}
	return unmarshalItem(result.Item), nil
}

// Query runs a key-condition query across all pages, hiding deleted nodes.
func (s *Store) Query(ctx context.Context, input QueryInput) ([]*Item, error) {
	params := &dynamodb.QueryInput{
		TableName:                 aws.String(input.TableName),
		KeyConditionExpression:    aws.String(input.KeyConditionExpression),
		FilterExpression:          aws.String(withTTLFilter(input.FilterExpression)),
		ExpressionAttributeNames:  mergeExprNames(TTLFilterNames(), input.ExpressionAttributeNames),
		ExpressionAttributeValues: mergeExprValues(TTLFilterValues(), input.ExpressionAttributeValues),
		ScanIndexForward:          input.ScanIndexForward,
	}
	if input.IndexName != "" {
		params.IndexName = aws.String(input.IndexName)
	}
	if input.Limit > 0 {
		params.Limit = aws.Int32(input.Limit)
	}

	var items []*Item
	paginator := dynamodb.NewQueryPaginator(s.client, params)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range page.Items {
			items = append(items, unmarshalItem(raw))
		}
	}
	return items, nil
}

// Update applies item to node if its version still equals expectedVersion.
// When sibling-unique fields change, the old claims are released and the new
// ones taken in the same transaction.
func (s *Store) Update(ctx context.Context, node Node, item map[string]types.AttributeValue, expectedVersion int64) error {
	uf, hasUnique := node.(UniqueFielder)
	p, hasParent := node.(Parented)
	if hasUnique && hasParent && p.ParentRef() != "" {
		return s.updateUnique(ctx, node, item, expectedVersion, uf, p.ParentRef())
	}

	set := newSetExpression(item, expectedVersion)
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(node.TableName()),
		Key:                       node.GetKey(),
		UpdateExpression:          aws.String(set.expression()),
		ConditionExpression:       aws.String(versionCondition),
		ExpressionAttributeNames:  set.names,
		ExpressionAttributeValues: set.values,
	})
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return ErrConcurrentModification
	}
	return err
}

func (s *Store) updateUnique(ctx context.Context, node Node, item map[string]types.AttributeValue, expectedVersion int64, uf UniqueFielder, parentRef string) error {
	current, err := s.Get(ctx, node.TableName(), node.GetKey())
	if err != nil {
		return err
	}

	kind := node.Kind()
	fields := uf.UniqueFields()
	var txItems []types.TransactWriteItem
	var pks []string

	for _, field := range slices.Sorted(maps.Keys(fields)) {
		value := fields[field]
		pks = append(pks, shard.UniqueKey(parentRef, kind, field, value))

		var old string
		if v, ok := current.Raw[field].(*types.AttributeValueMemberS); ok {
			old = v.Value
		}
		if old == value {
			continue
		}
		if old != "" {
			txItems = append(txItems, types.TransactWriteItem{
				Delete: &types.Delete{
					TableName: aws.String(s.config.UniqueTable),
					Key:       uniqueKey(shard.UniqueKey(parentRef, kind, field, old)),
				},
			})
		}
		txItems = append(txItems, s.uniquePut(shard.UniqueKey(parentRef, kind, field, value), parentRef, node, field, value))
	}

	set := newSetExpression(item, expectedVersion)
	if len(txItems) == 0 {
		_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:                 aws.String(node.TableName()),
			Key:                       node.GetKey(),
			UpdateExpression:          aws.String(set.expression()),
			ConditionExpression:       aws.String(versionCondition),
			ExpressionAttributeNames:  set.names,
			ExpressionAttributeValues: set.values,
		})
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return ErrConcurrentModification
		}
		return err
	}

	list, err := attributevalue.MarshalList(pks)
	if err != nil {
		return fmt.Errorf("marshal unique keys: %w", err)
	}
	set.add("#unique_pks", attrUniquePKs, ":unique_pks", &types.AttributeValueMemberL{Value: list})

	txItems = append(txItems, types.TransactWriteItem{
		Update: &types.Update{
			TableName:                 aws.String(node.TableName()),
			Key:                       node.GetKey(),
			UpdateExpression:          aws.String(set.expression()),
			ConditionExpression:       aws.String(versionCondition),
			ExpressionAttributeNames:  set.names,
			ExpressionAttributeValues: set.values,
		},
	})

	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: txItems,
	})
	return mapUpdateError(err, len(txItems)-1)
}

// DeleteOptions configures delete behavior.
type DeleteOptions struct {
	// Cascade lets the stream handler propagate the TTL to children.
	Cascade bool

	// OrphanProtect refuses to delete a node that still has active children.
	// With a registry set, kinds that are no relationship's parent skip the
	// check.
	OrphanProtect bool
}

// Delete soft-deletes node by setting its TTL to now.
func (s *Store) Delete(ctx context.Context, node Node, opts DeleteOptions) error {
	if opts.OrphanProtect && !opts.Cascade && s.mayHaveChildren(node.Kind()) {
		has, err := s.HasActiveChildren(ctx, node.NodeRef())
		if err != nil {
			return err
		}
		if has {
			return ErrHasChildren
		}
	}
	return s.SetTTL(ctx, node)
}

func (s *Store) mayHaveChildren(kind string) bool {
	return s.registry == nil || s.registry.HasChildren(kind)
}

// SetTTL marks node deleted as of now and bumps its version so concurrent
// updates fail. Deleting an already deleted node is a no-op.
func (s *Store) SetTTL(ctx context.Context, node Node) error {
	return s.SetTTLByKey(ctx, node.TableName(), node.GetKey(), time.Now().Unix())
}

// SetTTLByKey sets ttl on the node at table/key unless it already has one.
func (s *Store) SetTTLByKey(ctx context.Context, table string, key PK, ttl int64) error {
	return s.setTTL(ctx, table, key, ttl, true)
}

// SetRelationshipTTL expires the parent -> child edge.
func (s *Store) SetRelationshipTTL(ctx context.Context, childRef, parentRef string, ttl int64) error {
	key := PK{
		"pk":        stringAttr(s.partition(parentRef, childRef)),
		"child_ref": stringAttr(childRef),
	}
	return s.setTTL(ctx, s.config.RelationshipTable, key, ttl, false)
}

// SetUniqueConstraintTTL expires a sibling uniqueness claim.
func (s *Store) SetUniqueConstraintTTL(ctx context.Context, pk string, ttl int64) error {
	return s.setTTL(ctx, s.config.UniqueTable, uniqueKey(pk), ttl, false)
}

func (s *Store) setTTL(ctx context.Context, table string, key PK, ttl int64, bumpVersion bool) error {
	update := "SET #ttl = :ttl"
	names := map[string]string{"#ttl": attrTTL}
	values := map[string]types.AttributeValue{":ttl": numberAttr(ttl)}
	if bumpVersion {
		update += ", #version = #version + :one"
		names["#version"] = attrVersion
		values[":one"] = numberAttr(1)
	}

	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(table),
		Key:                       key,
		UpdateExpression:          aws.String(update),
		ConditionExpression:       aws.String("attribute_not_exists(#ttl)"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})

	// Already carries a TTL.
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return nil
	}
	return err
}

// errChildFound stops the shard fan-out once any shard reports a child.
var errChildFound = errors.New("child found")

// HasActiveChildren reports whether nodeRef has any child that is not deleted.
func (s *Store) HasActiveChildren(ctx context.Context, nodeRef string) (bool, error) {
	var found atomic.Bool

	g, ctx := errgroup.WithContext(ctx)
	for n := 0; n < s.config.NumShards; n++ {
		g.Go(func() error {
			// Limit is applied before the filter, so page until a live edge
			// shows up instead of asking for one item.
			paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
				TableName:                 aws.String(s.config.RelationshipTable),
				KeyConditionExpression:    aws.String("pk = :pk"),
				FilterExpression:          aws.String(TTLFilterExpr()),
				ExpressionAttributeNames:  TTLFilterNames(),
				ExpressionAttributeValues: mergeExprValues(TTLFilterValues(), map[string]types.AttributeValue{":pk": stringAttr(shard.Of(nodeRef, n))}),
			})
			for paginator.HasMorePages() {
				page, err := paginator.NextPage(ctx)
				if err != nil {
					return fmt.Errorf("shard %02x: %w", n, err)
				}
				if len(page.Items) > 0 {
					found.Store(true)
					return errChildFound
				}
			}
			return nil
		})
	}

	err := g.Wait()
	if found.Load() {
		return true, nil
	}
	return false, err
}

// QueryAllChildren returns every child edge of parentRef, including edges
// that already carry a TTL, so cascades stay idempotent.
func (s *Store) QueryAllChildren(ctx context.Context, parentRef string) ([]ChildRef, error) {
	var mu sync.Mutex
	var children []ChildRef

	g, ctx := errgroup.WithContext(ctx)
	for n := 0; n < s.config.NumShards; n++ {
		g.Go(func() error {
			pk := shard.Of(parentRef, n)
			paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
				TableName:                 aws.String(s.config.RelationshipTable),
				KeyConditionExpression:    aws.String("pk = :pk"),
				ExpressionAttributeValues: map[string]types.AttributeValue{":pk": stringAttr(pk)},
			})

			var found []ChildRef
			for paginator.HasMorePages() {
				page, err := paginator.NextPage(ctx)
				if err != nil {
					return fmt.Errorf("shard %02x: %w", n, err)
				}
				for _, raw := range page.Items {
					found = append(found, unmarshalChildRef(raw, pk))
				}
			}

			mu.Lock()
			children = append(children, found...)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return children, nil
}

func (s *Store) partition(parentRef, childRef string) string {
	return shard.Partition(parentRef, childRef, s.config.NumShards)
}

func (s *Store) uniquePut(pk, parentRef string, node Node, field, value string) types.TransactWriteItem {
	item := uniqueKey(pk)
	item["parent_ref"] = stringAttr(parentRef)
	item["kind"] = stringAttr(node.Kind())
	item["field_name"] = stringAttr(field)
	item["field_value"] = stringAttr(value)
	item["node_ref"] = stringAttr(node.NodeRef())

	return types.TransactWriteItem{
		Put: &types.Put{
			TableName:           aws.String(s.config.UniqueTable),
			Item:                item,
			ConditionExpression: aws.String("attribute_not_exists(pk)"),
		},
	}
}

func uniqueKey(pk string) PK {
	return PK{
		"pk": stringAttr(pk),
		"sk": stringAttr("CONSTRAINT"),
	}
}

func parentCheckItem(check *ConditionCheck, now time.Time) types.TransactWriteItem {
	cond := check.ConditionExpr
	if cond == "" {
		cond = ParentExistsCondition()
	}
	return types.TransactWriteItem{
		ConditionCheck: &types.ConditionCheck{
			TableName:                 aws.String(check.TableName),
			Key:                       check.Key,
			ConditionExpression:       aws.String(cond),
			ExpressionAttributeNames:  TTLFilterNames(),
			ExpressionAttributeValues: map[string]types.AttributeValue{":now": numberAttr(now.Unix())},
		},
	}
}

const versionCondition = "#version = :expected_version AND attribute_not_exists(#ttl)"

// setExpression accumulates an UpdateExpression SET clause.
type setExpression struct {
	clauses []string
	names   map[string]string
	values  map[string]types.AttributeValue
}

// newSetExpression sets every unmanaged attribute of item, bumps the version
// and refreshes updated_at.
func newSetExpression(item map[string]types.AttributeValue, expectedVersion int64) *setExpression {
	e := &setExpression{
		names: map[string]string{
			"#ttl":     attrTTL,
			"#version": attrVersion,
		},
		values: map[string]types.AttributeValue{
			":one":              numberAttr(1),
			":expected_version": numberAttr(expectedVersion),
		},
	}

	i := 0
	for _, k := range slices.Sorted(maps.Keys(item)) {
		if isManaged(k) {
			continue
		}
		e.add("#attr"+strconv.Itoa(i), k, ":val"+strconv.Itoa(i), item[k])
		i++
	}

	e.add("#updated_at", attrUpdatedAt, ":updated_at", stringAttr(time.Now().UTC().Format(time.RFC3339Nano)))
	e.clauses = append(e.clauses, "#version = #version + :one")
	return e
}

func (e *setExpression) add(nameKey, attr, valueKey string, v types.AttributeValue) {
	e.names[nameKey] = attr
	e.values[valueKey] = v
	e.clauses = append(e.clauses, nameKey+" = "+valueKey)
}

func (e *setExpression) expression() string {
	return "SET " + strings.Join(e.clauses, ", ")
}

// mapCreateError translates a cancelled create transaction into the
// sentinel for the first failed condition.
func mapCreateError(err error, parentCheckIndex, nodePutIndex int) error {
	var txErr *types.TransactionCanceledException
	if !errors.As(err, &txErr) {
		return err
	}
	for i, reason := range txErr.CancellationReasons {
		if aws.ToString(reason.Code) != "ConditionalCheckFailed" {
			continue
		}
		switch i {
		case parentCheckIndex:
			return ErrParentNotFound
		case nodePutIndex:
			return ErrAlreadyExists
		default:
			return ErrDuplicateValue
		}
	}
	return err
}

// mapUpdateError translates a cancelled update transaction. The node update
// sits at updateIndex; every other item is a uniqueness claim.
func mapUpdateError(err error, updateIndex int) error {
	var txErr *types.TransactionCanceledException
	if !errors.As(err, &txErr) {
		return err
	}
	for i, reason := range txErr.CancellationReasons {
		if aws.ToString(reason.Code) != "ConditionalCheckFailed" {
			continue
		}
		if i == updateIndex {
			return ErrConcurrentModification
		}
		return ErrDuplicateValue
	}
	return err
}

func unmarshalItem(raw map[string]types.AttributeValue) *Item {
	item := &Item{Raw: raw}
	if v, ok := raw[attrVersion].(*types.AttributeValueMemberN); ok {
		item.Version, _ = strconv.ParseInt(v.Value, 10, 64)
	}
	item.CreatedAt = stringOf(raw, attrCreatedAt)
	item.UpdatedAt = stringOf(raw, attrUpdatedAt)
	item.NodeRef = stringOf(raw, attrNodeRef)
	item.ParentRef = stringOf(raw, attrParentRef)
	return item
}

func unmarshalChildRef(raw map[string]types.AttributeValue, shardPK string) ChildRef {
	ref := ChildRef{
		Ref:       stringOf(raw, "child_ref"),
		TableName: stringOf(raw, "child_table"),
		ShardPK:   shardPK,
	}
	if v, ok := raw["child_key"].(*types.AttributeValueMemberM); ok {
		ref.Key = v.Value
	}
	return ref
}

func stringOf(raw map[string]types.AttributeValue, attr string) string {
	if v, ok := raw[attr].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}
