//go:build e2e

// Package e2e contains end-to-end integration tests using real DynamoDB tables.
// Run with: go test -tags=e2e -v ./e2e/...
package e2e

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/jacentio/canopy/store"
	"github.com/jacentio/canopy/tree"
)

// tablePrefix keeps every run in its own set of tables.
const tablePrefix = "canopy-e2e"

var (
	testID    string
	tables    store.Tables
	relTable  string
	uniqTable string

	ddbClient *dynamodb.Client
	testStore *store.Store
	registry  *store.Registry
)

func TestMain(m *testing.M) {
	testID = uuid.New().String()[:8]
	name := func(s string) string { return fmt.Sprintf("%s-%s-%s", tablePrefix, testID, s) }
	tables = store.Tables{
		Menus:      name("menus"),
		Depts:      name("depts"),
		Categories: name("categories"),
		Dicts:      name("dicts"),
	}
	relTable = name("relationships")
	uniqTable = name("unique")

	fmt.Printf("Test ID: %s\n", testID)

	// Uses the default credential chain; set AWS_PROFILE to pick an account.
	ctx := context.Background()
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		fmt.Printf("Failed to load AWS config: %v\n", err)
		os.Exit(1)
	}
	ddbClient = dynamodb.NewFromConfig(cfg)

	if err := createTables(ctx); err != nil {
		fmt.Printf("Failed to create tables: %v\n", err)
		os.Exit(1)
	}

	registry = store.ConsoleRegistry(tables)
	testStore = store.NewWithRegistry(ddbClient, store.Config{
		RelationshipTable: relTable,
		UniqueTable:       uniqTable,
		NumShards:         2,
	}, registry)

	code := m.Run()

	deleteTables(ctx)
	os.Exit(code)
}

func allTables() []string {
	return []string{tables.Menus, tables.Depts, tables.Categories, relTable, uniqTable}
}

func createTable(ctx context.Context, tableName string, keys ...string) error {
	schema := []types.KeySchemaElement{}
	defs := []types.AttributeDefinition{}
	for i, k := range keys {
		kt := types.KeyTypeHash
		if i > 0 {
			kt = types.KeyTypeRange
		}
		schema = append(schema, types.KeySchemaElement{AttributeName: aws.String(k), KeyType: kt})
		defs = append(defs, types.AttributeDefinition{AttributeName: aws.String(k), AttributeType: types.ScalarAttributeTypeS})
	}
	_, err := ddbClient.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:            aws.String(tableName),
		KeySchema:            schema,
		AttributeDefinitions: defs,
		BillingMode:          types.BillingModePayPerRequest,
	})
	if err != nil {
		return fmt.Errorf("create table %s: %w", tableName, err)
	}
	return nil
}

func createTables(ctx context.Context) error {
	for _, t := range []string{tables.Menus, tables.Depts, tables.Categories} {
		if err := createTable(ctx, t, "id"); err != nil {
			return err
		}
	}
	if err := createTable(ctx, relTable, "pk", "child_ref"); err != nil {
		return err
	}
	if err := createTable(ctx, uniqTable, "pk", "sk"); err != nil {
		return err
	}

	waiter := dynamodb.NewTableExistsWaiter(ddbClient)
	for _, t := range allTables() {
		if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(t)}, 2*time.Minute); err != nil {
			return fmt.Errorf("wait for table %s: %w", t, err)
		}
	}
	return nil
}

func deleteTables(ctx context.Context) {
	for _, t := range allTables() {
		if _, err := ddbClient.DeleteTable(ctx, &dynamodb.DeleteTableInput{TableName: aws.String(t)}); err != nil {
			fmt.Printf("Warning: failed to delete table %s: %v\n", t, err)
		}
	}
}

func dept(t *testing.T, parentID, name string) store.Member {
	t.Helper()
	spec, err := registry.Kind(store.KindDept)
	if err != nil {
		t.Fatalf("Kind failed: %v", err)
	}
	return store.Member{
		Spec:     spec,
		ID:       store.NewID(),
		ParentID: parentID,
		Unique:   map[string]string{"deptName": name},
	}
}

// create stores m; nil fields default to its unique deptName so later
// updates can release the claim.
func create(t *testing.T, m store.Member, fields map[string]any) {
	t.Helper()
	if fields == nil {
		fields = map[string]any{"deptName": m.Unique["deptName"]}
	}
	item, err := m.Item(fields)
	if err != nil {
		t.Fatalf("Item failed: %v", err)
	}
	if err := testStore.Create(context.Background(), m, item); err != nil {
		t.Fatalf("Create %s failed: %v", m.NodeRef(), err)
	}
}

func TestCreate_RootAndChild(t *testing.T) {
	ctx := context.Background()

	root := dept(t, "", "Root "+testID)
	create(t, root, map[string]any{"deptName": root.Unique["deptName"]})

	child := dept(t, root.ID, "R&D")
	create(t, child, map[string]any{"deptName": "R&D"})

	got, err := testStore.Get(ctx, child.TableName(), child.GetKey())
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Version != 1 {
		t.Errorf("expected version 1, got %d", got.Version)
	}
	if got.ParentRef != root.NodeRef() {
		t.Errorf("expected parent_ref %q, got %q", root.NodeRef(), got.ParentRef)
	}

	children, err := testStore.QueryAllChildren(ctx, root.NodeRef())
	if err != nil {
		t.Fatalf("QueryAllChildren failed: %v", err)
	}
	if len(children) != 1 || children[0].Ref != child.NodeRef() {
		t.Errorf("expected child %q, got %+v", child.NodeRef(), children)
	}
}

func TestCreate_ParentNotFound(t *testing.T) {
	orphan := dept(t, "missing", "Orphan")
	item, _ := orphan.Item(nil)

	err := testStore.Create(context.Background(), orphan, item)
	if !errors.Is(err, store.ErrParentNotFound) {
		t.Errorf("expected ErrParentNotFound, got %v", err)
	}
}

func TestUniqueConstraint_Siblings(t *testing.T) {
	ctx := context.Background()

	root := dept(t, "", "Unique root "+testID)
	create(t, root, nil)
	create(t, dept(t, root.ID, "Sales"), nil)

	dup := dept(t, root.ID, "Sales")
	item, _ := dup.Item(nil)
	if err := testStore.Create(ctx, dup, item); !errors.Is(err, store.ErrDuplicateValue) {
		t.Errorf("expected ErrDuplicateValue, got %v", err)
	}

	other := dept(t, "", "Other root "+testID)
	create(t, other, nil)
	create(t, dept(t, other.ID, "Sales"), nil)
}

func TestUpdate_OptimisticLock(t *testing.T) {
	ctx := context.Background()

	root := dept(t, "", "Lock root "+testID)
	create(t, root, nil)

	m := dept(t, root.ID, "Ops")
	create(t, m, nil)

	m.Unique["deptName"] = "Operations"
	update := map[string]types.AttributeValue{"deptName": &types.AttributeValueMemberS{Value: "Operations"}}
	if err := testStore.Update(ctx, m, update, 1); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if err := testStore.Update(ctx, m, update, 1); !errors.Is(err, store.ErrConcurrentModification) {
		t.Errorf("expected ErrConcurrentModification, got %v", err)
	}

	create(t, dept(t, root.ID, "Ops"), nil)
}

func TestDelete_OrphanProtectAndTTL(t *testing.T) {
	ctx := context.Background()

	root := dept(t, "", "Delete root "+testID)
	create(t, root, nil)
	child := dept(t, root.ID, "Leaf")
	create(t, child, nil)

	if err := testStore.Delete(ctx, root, store.DeleteOptions{OrphanProtect: true}); !errors.Is(err, store.ErrHasChildren) {
		t.Fatalf("expected ErrHasChildren, got %v", err)
	}

	if err := testStore.Delete(ctx, child, store.DeleteOptions{}); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := testStore.Delete(ctx, child, store.DeleteOptions{}); err != nil {
		t.Errorf("second Delete should be idempotent, got %v", err)
	}
	if _, err := testStore.Get(ctx, child.TableName(), child.GetKey()); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	// The stream handler does this in production.
	if err := testStore.SetRelationshipTTL(ctx, child.NodeRef(), root.NodeRef(), time.Now().Unix()); err != nil {
		t.Fatalf("SetRelationshipTTL failed: %v", err)
	}
	has, err := testStore.HasActiveChildren(ctx, root.NodeRef())
	if err != nil {
		t.Fatalf("HasActiveChildren failed: %v", err)
	}
	if has {
		t.Error("expected no active children")
	}
	if err := testStore.Delete(ctx, root, store.DeleteOptions{OrphanProtect: true}); err != nil {
		t.Errorf("expected delete to succeed, got %v", err)
	}
}

func TestForestOf(t *testing.T) {
	ctx := context.Background()

	root := dept(t, "", "Forest root "+testID)
	create(t, root, map[string]any{"deptName": "Forest root"})
	a := dept(t, root.ID, "A")
	create(t, a, map[string]any{"deptName": "A"})
	create(t, dept(t, a.ID, "A1"), map[string]any{"deptName": "A1"})

	res, err := testStore.ForestOf(ctx, store.KindDept)
	if err != nil {
		t.Fatalf("ForestOf failed: %v", err)
	}

	var found tree.Record
	for _, r := range res.Tree {
		if r.String("deptId") == root.ID {
			found = r
		}
	}
	if found == nil {
		t.Fatalf("expected %s among %d roots", root.ID, len(res.Tree))
	}
	if n := tree.Count([]tree.Record{found}, tree.DefaultChildrenField); n != 3 {
		t.Errorf("expected 3 nodes under the new root, got %d", n)
	}
	if _, ok := found["node_ref"]; ok {
		t.Error("expected managed attributes stripped")
	}
}
