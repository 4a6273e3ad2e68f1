package tree

import (
	"encoding/json"
	"math"
	"testing"
)

// --- Key Tests ---

func TestKey_Normalization(t *testing.T) {
	tests := []struct {
		name     string
		in       any
		expected any
		ok       bool
	}{
		{"nil", nil, nil, false},
		{"string", "42", "42", true},
		{"empty string", "", "", true},
		{"int", 42, int64(42), true},
		{"int32", int32(42), int64(42), true},
		{"uint16", uint16(42), int64(42), true},
		{"uint64 small", uint64(42), int64(42), true},
		{"uint64 huge", uint64(math.MaxUint64), uint64(math.MaxUint64), true},
		{"integral float", float64(42), int64(42), true},
		{"fractional float", 1.5, 1.5, true},
		{"float32", float32(7), int64(7), true},
		{"NaN", math.NaN(), nil, false},
		{"json int", json.Number("42"), int64(42), true},
		{"json float", json.Number("2.5"), 2.5, true},
		{"bool", true, true, true},
		{"slice", []int{1}, nil, false},
		{"map", map[string]any{}, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Key(tt.in)
			if ok != tt.ok {
				t.Fatalf("expected ok=%v, got %v", tt.ok, ok)
			}
			if ok && got != tt.expected {
				t.Errorf("expected %v (%T), got %v (%T)", tt.expected, tt.expected, got, got)
			}
		})
	}
}

func TestKey_StringAndNumberDiffer(t *testing.T) {
	a, _ := Key("1")
	b, _ := Key(1)
	if a == b {
		t.Error("expected string and numeric identifiers to differ")
	}
}

// --- Config Tests ---

func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()

	if cfg.IDField != "id" {
		t.Errorf("expected IDField 'id', got %q", cfg.IDField)
	}
	if cfg.ParentIDField != "parentId" {
		t.Errorf("expected ParentIDField 'parentId', got %q", cfg.ParentIDField)
	}
	if cfg.ChildrenField != "children" {
		t.Errorf("expected ChildrenField 'children', got %q", cfg.ChildrenField)
	}
	if cfg.Filter == nil || !cfg.Filter(Record{}) {
		t.Error("expected default Filter to accept everything")
	}
	if cfg.IncludeChild == nil || !cfg.IncludeChild(Record{}) {
		t.Error("expected default IncludeChild to accept everything")
	}
}

func TestConfig_WithDefaultsKeepsValues(t *testing.T) {
	cfg := Config{IDField: "menuId", ChildrenField: "subs"}.withDefaults()

	if cfg.IDField != "menuId" {
		t.Errorf("expected IDField 'menuId', got %q", cfg.IDField)
	}
	if cfg.ChildrenField != "subs" {
		t.Errorf("expected ChildrenField 'subs', got %q", cfg.ChildrenField)
	}
}

func TestMenuConfig_IncludeChild(t *testing.T) {
	cfg := MenuConfig()

	if cfg.IncludeChild(Record{"menuType": MenuTypeButton}) {
		t.Error("expected buttons to be rejected as children")
	}
	if !cfg.IncludeChild(Record{"menuType": MenuTypeMenu}) {
		t.Error("expected menus to be accepted as children")
	}
	if !cfg.IncludeChild(Record{}) {
		t.Error("expected records without menuType to be accepted")
	}
}

// --- Record Tests ---

func TestRecord_String(t *testing.T) {
	r := Record{"s": "x", "n": 3, "nil": nil}

	if r.String("s") != "x" {
		t.Errorf("expected 'x', got %q", r.String("s"))
	}
	if r.String("n") != "3" {
		t.Errorf("expected '3', got %q", r.String("n"))
	}
	if r.String("nil") != "" || r.String("missing") != "" {
		t.Error("expected empty string for nil and missing fields")
	}
}

func TestRecord_Children(t *testing.T) {
	r := Record{
		"typed":   []Record{{"id": 1}},
		"decoded": []any{map[string]any{"id": 2}, "junk"},
		"marker":  nil,
	}

	if len(r.Children("typed")) != 1 {
		t.Error("expected 1 typed child")
	}
	if got := r.Children("decoded"); len(got) != 1 || got[0]["id"] != 2 {
		t.Errorf("expected 1 decoded child, got %v", got)
	}
	if r.Children("marker") != nil || r.Children("missing") != nil {
		t.Error("expected nil for marker and missing fields")
	}
}

func TestRecord_WithoutCopies(t *testing.T) {
	r := Record{"id": 1, "children": nil}
	out := r.without("children")

	if _, ok := out["children"]; ok {
		t.Error("expected children to be removed from the copy")
	}
	if _, ok := r["children"]; !ok {
		t.Error("expected original to keep children")
	}
}

// --- Index Tests ---

func TestIndex_Lookups(t *testing.T) {
	x := NewIndex([]Record{
		{"id": 1, "parentId": 0},
		{"id": 2, "parentId": 1},
		{"id": 3, "parentId": 1},
	}, Config{})

	if len(x.Roots()) != 1 {
		t.Errorf("expected 1 root, got %d", len(x.Roots()))
	}
	if got := x.ChildIDs(float64(1)); len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Errorf("expected child ids [2 3], got %v", got)
	}
	if _, ok := x.Parent(1); ok {
		t.Error("expected root to have no parent")
	}
	if p, ok := x.Parent(3); !ok || p["id"] != 1 {
		t.Errorf("expected parent 1, got %v", p)
	}
	if _, ok := x.Node(nil); ok {
		t.Error("expected nil id lookup to fail")
	}
	if x.Children([]int{1}) != nil {
		t.Error("expected non-comparable id lookup to return nil")
	}
}
