// Package dynamotest provides an in-memory stand-in for the DynamoDB
// operations the store issues. It understands the condition, filter and
// update expressions the store writes and nothing more.
package dynamotest

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Item is a stored DynamoDB item.
type Item = map[string]types.AttributeValue

type table struct {
	order []string
	items map[string]Item
}

// Fake is a goroutine-safe in-memory DynamoDB.
type Fake struct {
	mu     sync.Mutex
	tables map[string]*table
	keys   map[string][]string
	errs   map[string]error
	calls  map[string]int

	// PageSize caps the items evaluated per Query or Scan page (0 = all).
	PageSize int
}

// New returns an empty Fake. Tables key on "id" unless told otherwise.
func New() *Fake {
	return &Fake{
		tables: make(map[string]*table),
		keys:   make(map[string][]string),
		errs:   make(map[string]error),
		calls:  make(map[string]int),
	}
}

// SetKey declares the key attributes of table.
func (f *Fake) SetKey(tableName string, attrs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys[tableName] = attrs
}

// Fail makes every later call of op (e.g., "Scan") return err. A nil err
// clears the failure.
func (f *Fake) Fail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.errs, op)
		return
	}
	f.errs[op] = err
}

// Calls returns how often op was invoked.
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// Put stores item unconditionally.
func (f *Fake) Put(tableName string, item Item) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.put(tableName, item)
}

// Get returns a copy of the item stored under key, or nil.
func (f *Fake) Get(tableName string, key Item) Item {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.table(tableName).items[f.keyOf(tableName, key)]
	if !ok {
		return nil
	}
	return copyItem(item)
}

// Items returns copies of every item of table in insertion order.
func (f *Fake) Items(tableName string) []Item {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.table(tableName)
	out := make([]Item, 0, len(t.order))
	for _, k := range t.order {
		out = append(out, copyItem(t.items[k]))
	}
	return out
}

func (f *Fake) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("GetItem"); err != nil {
		return nil, err
	}
	tableName := aws.ToString(params.TableName)
	out := &dynamodb.GetItemOutput{}
	if item, ok := f.table(tableName).items[f.keyOf(tableName, params.Key)]; ok {
		out.Item = copyItem(item)
	}
	return out, nil
}

func (f *Fake) UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("UpdateItem"); err != nil {
		return nil, err
	}
	u := types.Update{
		TableName:                 params.TableName,
		Key:                       params.Key,
		UpdateExpression:          params.UpdateExpression,
		ConditionExpression:       params.ConditionExpression,
		ExpressionAttributeNames:  params.ExpressionAttributeNames,
		ExpressionAttributeValues: params.ExpressionAttributeValues,
	}
	if !f.updateAllowed(&u) {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
	}
	f.applyUpdate(&u)
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *Fake) TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("TransactWriteItems"); err != nil {
		return nil, err
	}

	reasons := make([]types.CancellationReason, len(params.TransactItems))
	failed := false
	for i, ti := range params.TransactItems {
		reasons[i].Code = aws.String("None")
		if !f.transactAllowed(ti) {
			reasons[i].Code = aws.String("ConditionalCheckFailed")
			failed = true
		}
	}
	if failed {
		return nil, &types.TransactionCanceledException{
			Message:             aws.String("Transaction cancelled"),
			CancellationReasons: reasons,
		}
	}

	for _, ti := range params.TransactItems {
		switch {
		case ti.Put != nil:
			f.put(aws.ToString(ti.Put.TableName), ti.Put.Item)
		case ti.Delete != nil:
			f.remove(aws.ToString(ti.Delete.TableName), ti.Delete.Key)
		case ti.Update != nil:
			f.applyUpdate(ti.Update)
		}
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func (f *Fake) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("Query"); err != nil {
		return nil, err
	}
	items, last := f.page(aws.ToString(params.TableName), params.ExclusiveStartKey, aws.ToInt32(params.Limit),
		aws.ToString(params.KeyConditionExpression), aws.ToString(params.FilterExpression),
		params.ExpressionAttributeNames, params.ExpressionAttributeValues)
	return &dynamodb.QueryOutput{Items: items, Count: int32(len(items)), LastEvaluatedKey: last}, nil
}

func (f *Fake) Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("Scan"); err != nil {
		return nil, err
	}
	items, last := f.page(aws.ToString(params.TableName), params.ExclusiveStartKey, aws.ToInt32(params.Limit),
		"", aws.ToString(params.FilterExpression),
		params.ExpressionAttributeNames, params.ExpressionAttributeValues)
	return &dynamodb.ScanOutput{Items: items, Count: int32(len(items)), LastEvaluatedKey: last}, nil
}

func (f *Fake) begin(op string) error {
	f.calls[op]++
	return f.errs[op]
}

// page evaluates up to limit items after start. As in DynamoDB, the limit
// counts items read before the filter is applied.
func (f *Fake) page(tableName string, start Item, limit int32, keyCond, filter string, names map[string]string, values map[string]types.AttributeValue) ([]Item, Item) {
	t := f.table(tableName)
	if f.PageSize > 0 && (limit == 0 || int(limit) > f.PageSize) {
		limit = int32(f.PageSize)
	}

	var matching []Item
	for _, k := range t.order {
		item := t.items[k]
		if keyCond != "" && !eval(keyCond, item, names, values) {
			continue
		}
		matching = append(matching, item)
	}

	from := 0
	if start != nil {
		startKey := f.keyOf(tableName, start)
		for i, item := range matching {
			if f.keyOf(tableName, item) == startKey {
				from = i + 1
				break
			}
		}
	}

	to := len(matching)
	if limit > 0 && from+int(limit) < to {
		to = from + int(limit)
	}

	var out []Item
	for _, item := range matching[from:to] {
		if filter == "" || eval(filter, item, names, values) {
			out = append(out, copyItem(item))
		}
	}

	var last Item
	if to < len(matching) {
		last = Item{}
		for _, attr := range f.keyAttrs(tableName) {
			last[attr] = matching[to-1][attr]
		}
	}
	return out, last
}

func (f *Fake) transactAllowed(ti types.TransactWriteItem) bool {
	switch {
	case ti.ConditionCheck != nil:
		c := ti.ConditionCheck
		return f.allowed(aws.ToString(c.TableName), c.Key, aws.ToString(c.ConditionExpression), c.ExpressionAttributeNames, c.ExpressionAttributeValues)
	case ti.Put != nil:
		p := ti.Put
		return f.allowed(aws.ToString(p.TableName), p.Item, aws.ToString(p.ConditionExpression), p.ExpressionAttributeNames, p.ExpressionAttributeValues)
	case ti.Delete != nil:
		d := ti.Delete
		return f.allowed(aws.ToString(d.TableName), d.Key, aws.ToString(d.ConditionExpression), d.ExpressionAttributeNames, d.ExpressionAttributeValues)
	case ti.Update != nil:
		return f.updateAllowed(ti.Update)
	}
	return true
}

func (f *Fake) updateAllowed(u *types.Update) bool {
	return f.allowed(aws.ToString(u.TableName), u.Key, aws.ToString(u.ConditionExpression), u.ExpressionAttributeNames, u.ExpressionAttributeValues)
}

// allowed evaluates cond against the item currently stored under key.
func (f *Fake) allowed(tableName string, key Item, cond string, names map[string]string, values map[string]types.AttributeValue) bool {
	if cond == "" {
		return true
	}
	current := f.table(tableName).items[f.keyOf(tableName, key)]
	if current == nil {
		current = Item{}
	}
	return eval(cond, current, names, values)
}

// applyUpdate supports "SET a = :v, b = b + :n" expressions.
func (f *Fake) applyUpdate(u *types.Update) {
	tableName := aws.ToString(u.TableName)
	k := f.keyOf(tableName, u.Key)
	t := f.table(tableName)

	item, ok := t.items[k]
	if !ok {
		item = copyItem(u.Key)
	} else {
		item = copyItem(item)
	}

	expr := strings.TrimSpace(aws.ToString(u.UpdateExpression))
	expr = strings.TrimPrefix(expr, "SET ")
	for _, clause := range strings.Split(expr, ",") {
		lhs, rhs, found := strings.Cut(clause, "=")
		if !found {
			continue
		}
		attr := resolveName(strings.TrimSpace(lhs), u.ExpressionAttributeNames)
		if a, b, sum := strings.Cut(rhs, "+"); sum {
			x, _ := number(operand(strings.TrimSpace(a), item, u.ExpressionAttributeNames, u.ExpressionAttributeValues))
			y, _ := number(operand(strings.TrimSpace(b), item, u.ExpressionAttributeNames, u.ExpressionAttributeValues))
			item[attr] = numberValue(x + y)
			continue
		}
		item[attr] = operand(strings.TrimSpace(rhs), item, u.ExpressionAttributeNames, u.ExpressionAttributeValues)
	}

	if !ok {
		t.order = append(t.order, k)
	}
	t.items[k] = item
}

func (f *Fake) put(tableName string, item Item) {
	t := f.table(tableName)
	k := f.keyOf(tableName, item)
	if _, exists := t.items[k]; !exists {
		t.order = append(t.order, k)
	}
	t.items[k] = copyItem(item)
}

func (f *Fake) remove(tableName string, key Item) {
	t := f.table(tableName)
	k := f.keyOf(tableName, key)
	if _, exists := t.items[k]; !exists {
		return
	}
	delete(t.items, k)
	for i, o := range t.order {
		if o == k {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

func (f *Fake) table(name string) *table {
	t, ok := f.tables[name]
	if !ok {
		t = &table{items: make(map[string]Item)}
		f.tables[name] = t
	}
	return t
}

func (f *Fake) keyAttrs(tableName string) []string {
	if attrs, ok := f.keys[tableName]; ok {
		return attrs
	}
	return []string{"id"}
}

func (f *Fake) keyOf(tableName string, item Item) string {
	var parts []string
	for _, attr := range f.keyAttrs(tableName) {
		parts = append(parts, attr+"="+scalar(item[attr]))
	}
	return strings.Join(parts, "|")
}

func copyItem(item Item) Item {
	out := make(Item, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

// Keys returns the sorted attribute names of item.
func Keys(item Item) []string {
	keys := make([]string, 0, len(item))
	for k := range item {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
