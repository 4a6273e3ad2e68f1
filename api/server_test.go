package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jacentio/canopy/api"
	"github.com/jacentio/canopy/dict"
	"github.com/jacentio/canopy/store"
	"github.com/jacentio/canopy/tree"
)

type mockForests struct {
	tables map[string][]tree.Record
	err    error
}

func (m *mockForests) Forest(ctx context.Context, table string, cfg tree.Config) (tree.Result, error) {
	if m.err != nil {
		return tree.Result{}, m.err
	}
	return tree.TransformList(m.tables[table], cfg), nil
}

func menus() []tree.Record {
	return []tree.Record{
		{"menuId": 1, "parentId": 0, "menuName": "System", "menuType": "M", "status": "0"},
		{"menuId": 100, "parentId": 1, "menuName": "Users", "menuType": "C", "status": "0"},
		{"menuId": 1001, "parentId": 100, "menuName": "Add user", "menuType": "F", "status": "0"},
		{"menuId": 101, "parentId": 1, "menuName": "Roles", "menuType": "C", "status": "1"},
	}
}

func newTestServer(forests api.Forests, dicts *dict.Service) http.Handler {
	return api.NewServer(forests, store.ConsoleRegistry(store.DefaultTables()), dicts, nil).Handler()
}

func do(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

type treeBody struct {
	Tree     []map[string]any `json:"tree"`
	FlatData []map[string]any `json:"flatData"`
}

func TestServer_Tree(t *testing.T) {
	h := newTestServer(&mockForests{tables: map[string][]tree.Record{"canopy_menus": menus()}}, nil)

	rec := do(t, h, http.MethodGet, "/api/trees/menu")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected application/json, got %q", ct)
	}

	var body treeBody
	decode(t, rec, &body)
	if len(body.FlatData) != 4 {
		t.Errorf("expected 4 flat records, got %d", len(body.FlatData))
	}
	if len(body.Tree) != 1 {
		t.Fatalf("expected 1 root, got %d", len(body.Tree))
	}
	children, _ := body.Tree[0]["children"].([]any)
	if len(children) != 2 {
		t.Fatalf("expected 2 children under System, got %d", len(children))
	}
	users := children[0].(map[string]any)
	if v, ok := users["children"]; !ok || v != nil {
		t.Errorf("expected buttons excluded and an explicit null marker, got %v", v)
	}
}

func TestServer_TreeQueryFilter(t *testing.T) {
	h := newTestServer(&mockForests{tables: map[string][]tree.Record{"canopy_menus": menus()}}, nil)

	rec := do(t, h, http.MethodGet, "/api/trees/menu?status=1")
	var body treeBody
	decode(t, rec, &body)

	if len(body.FlatData) != 1 {
		t.Fatalf("expected 1 matching record, got %d", len(body.FlatData))
	}
	if body.FlatData[0]["menuName"] != "Roles" {
		t.Errorf("expected Roles, got %v", body.FlatData[0]["menuName"])
	}
	if len(body.Tree) != 1 {
		t.Errorf("expected orphaned match to become a root, got %d roots", len(body.Tree))
	}
}

func TestServer_TreeEmptyTable(t *testing.T) {
	h := newTestServer(&mockForests{}, nil)

	rec := do(t, h, http.MethodGet, "/api/trees/dept")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Body.String(); got != "{\"tree\":[],\"flatData\":[]}\n" {
		t.Errorf("expected empty arrays, got %q", got)
	}
}

func TestServer_Keys(t *testing.T) {
	h := newTestServer(&mockForests{tables: map[string][]tree.Record{"canopy_menus": menus()}}, nil)

	rec := do(t, h, http.MethodGet, "/api/trees/menu/keys")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body struct {
		Keys  []float64 `json:"keys"`
		Count int       `json:"count"`
	}
	decode(t, rec, &body)
	if len(body.Keys) != 3 {
		t.Errorf("expected 3 keys in the forest, got %v", body.Keys)
	}
	if body.Count != len(body.Keys) {
		t.Errorf("expected count to match the %d keys, got %d", len(body.Keys), body.Count)
	}
}

func TestServer_Errors(t *testing.T) {
	tests := []struct {
		name    string
		forests *mockForests
		method  string
		path    string
		status  int
		code    string
	}{
		{"unknown kind", &mockForests{}, http.MethodGet, "/api/trees/widget", http.StatusNotFound, "unknown_kind"},
		{"store failure", &mockForests{err: errors.New("scan failed")}, http.MethodGet, "/api/trees/dept", http.StatusInternalServerError, "internal"},
		{"timeout", &mockForests{err: context.DeadlineExceeded}, http.MethodGet, "/api/trees/dept", http.StatusGatewayTimeout, "timeout"},
		{"no route", &mockForests{}, http.MethodGet, "/api/nope", http.StatusNotFound, "not_found"},
		{"wrong method", &mockForests{}, http.MethodPost, "/api/trees/dept", http.StatusMethodNotAllowed, "method_not_allowed"},
		{"dicts disabled", &mockForests{}, http.MethodGet, "/api/dicts/a", http.StatusServiceUnavailable, "dicts_disabled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(tt.forests, nil)
			rec := do(t, h, tt.method, tt.path)
			if rec.Code != tt.status {
				t.Errorf("expected %d, got %d", tt.status, rec.Code)
			}
			var body struct {
				Code string `json:"code"`
				Msg  string `json:"msg"`
			}
			decode(t, rec, &body)
			if body.Code != tt.code {
				t.Errorf("expected code %q, got %q", tt.code, body.Code)
			}
			if body.Msg == "" {
				t.Error("expected a message")
			}
		})
	}
}

func TestServer_InternalErrorHidesDetail(t *testing.T) {
	h := newTestServer(&mockForests{err: errors.New("arn:aws:dynamodb:secret")}, nil)

	rec := do(t, h, http.MethodGet, "/api/trees/dept")
	var body struct {
		Msg string `json:"msg"`
	}
	decode(t, rec, &body)
	if body.Msg != "internal error" {
		t.Errorf("expected generic message, got %q", body.Msg)
	}
}

func TestServer_Kinds(t *testing.T) {
	h := newTestServer(&mockForests{}, nil)

	var kinds []struct {
		Name     string   `json:"name"`
		IDField  string   `json:"idField"`
		Children []string `json:"children"`
	}
	decode(t, do(t, h, http.MethodGet, "/api/kinds"), &kinds)
	if len(kinds) != 3 {
		t.Fatalf("expected 3 kinds, got %d", len(kinds))
	}
	if kinds[0].Name != "menu" || kinds[0].IDField != "menuId" {
		t.Errorf("unexpected first kind %+v", kinds[0])
	}
	for _, k := range kinds {
		if len(k.Children) != 1 || k.Children[0] != k.Name {
			t.Errorf("%s: expected children [%s], got %v", k.Name, k.Name, k.Children)
		}
	}
}

func TestServer_Healthz(t *testing.T) {
	rec := do(t, newTestServer(&mockForests{}, nil), http.MethodGet, "/healthz")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func newDicts() (*dict.Service, *dict.MemoryCache) {
	src := dict.SourceFunc(func(ctx context.Context, dictType string) ([]dict.Entry, error) {
		if dictType != "sys_normal_disable" {
			return nil, nil
		}
		return []dict.Entry{
			{DictLabel: "Enabled", DictValue: "0", ListClass: "primary"},
			{DictLabel: "Disabled", DictValue: "1", ListClass: "danger"},
		}, nil
	})
	cache := dict.NewMemoryCache()
	return dict.NewService(src, cache, dict.DefaultConfig()), cache
}

func TestServer_Dicts(t *testing.T) {
	svc, _ := newDicts()
	h := newTestServer(&mockForests{}, svc)

	rec := do(t, h, http.MethodGet, "/api/dicts/sys_normal_disable,sys_user_sex")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]map[string]string
	decode(t, rec, &body)
	if body["sys_normal_disable"]["1"] != "Disabled" {
		t.Errorf("expected Disabled, got %v", body["sys_normal_disable"])
	}
	if m, ok := body["sys_user_sex"]; !ok || len(m) != 0 {
		t.Errorf("expected empty map for unknown type, got %v", m)
	}
}

func TestServer_DictOptions(t *testing.T) {
	svc, _ := newDicts()
	h := newTestServer(&mockForests{}, svc)

	var body map[string][]dict.Option
	decode(t, do(t, h, http.MethodGet, "/api/dicts/sys_normal_disable?shape=options"), &body)
	opts := body["sys_normal_disable"]
	if len(opts) != 2 || opts[0].Label != "Enabled" || opts[0].TagType != "primary" {
		t.Errorf("unexpected options %+v", opts)
	}
}

func TestServer_InvalidateDicts(t *testing.T) {
	svc, cache := newDicts()
	h := newTestServer(&mockForests{}, svc)

	do(t, h, http.MethodGet, "/api/dicts/sys_normal_disable,other")
	if cache.Len() != 2 {
		t.Fatalf("expected 2 cached types, got %d", cache.Len())
	}

	if rec := do(t, h, http.MethodDelete, "/api/dicts/other"); rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
	if cache.Len() != 1 {
		t.Errorf("expected 1 cached type, got %d", cache.Len())
	}

	if rec := do(t, h, http.MethodDelete, "/api/dicts"); rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
	if cache.Len() != 0 {
		t.Errorf("expected empty cache, got %d", cache.Len())
	}
}
