package store

import (
	"fmt"

	"github.com/jacentio/canopy/tree"
)

// KindSpec describes one self-referencing node kind.
type KindSpec struct {
	// Name is the kind name used in node references (e.g., "dept").
	Name string

	// Table is the DynamoDB table holding the kind.
	Table string

	// Tree names the identifier, parent and children fields of the kind's
	// records and any child exclusion rule.
	Tree tree.Config

	// RootParent is the parent identifier written on roots (e.g., "0").
	RootParent string
}

// Relationship is a parent-child edge between kinds. Delete only looks for
// live children of kinds that are the parent of some relationship.
type Relationship struct {
	ParentKind string
	ChildKind  string

	// ParentKeyAttr is the child attribute that references the parent (e.g., "parentId").
	ParentKeyAttr string
}

// Registry holds the known kinds and the relationships between them.
type Registry struct {
	kinds    []KindSpec
	byName   map[string]KindSpec
	byParent map[string][]Relationship
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byName:   make(map[string]KindSpec),
		byParent: make(map[string][]Relationship),
	}
}

// RegisterKind adds or replaces a kind. A kind is its own parent kind, so the
// self relationship is registered alongside it.
func (r *Registry) RegisterKind(k KindSpec) {
	if _, exists := r.byName[k.Name]; !exists {
		r.kinds = append(r.kinds, k)
		r.Register(Relationship{
			ParentKind:    k.Name,
			ChildKind:     k.Name,
			ParentKeyAttr: parentField(k),
		})
	} else {
		for i := range r.kinds {
			if r.kinds[i].Name == k.Name {
				r.kinds[i] = k
			}
		}
	}
	r.byName[k.Name] = k
}

// Kind looks up a kind by name.
func (r *Registry) Kind(name string) (KindSpec, error) {
	k, ok := r.byName[name]
	if !ok {
		return KindSpec{}, fmt.Errorf("%w: %q", ErrUnknownKind, name)
	}
	return k, nil
}

// Kinds returns the registered kinds in registration order.
func (r *Registry) Kinds() []KindSpec {
	return r.kinds
}

// Register adds a relationship.
func (r *Registry) Register(rel Relationship) {
	r.byParent[rel.ParentKind] = append(r.byParent[rel.ParentKind], rel)
}

// ChildrenOf returns the relationships whose parent is parentKind.
func (r *Registry) ChildrenOf(parentKind string) []Relationship {
	return r.byParent[parentKind]
}

// HasChildren reports whether parentKind has any child relationship.
func (r *Registry) HasChildren(parentKind string) bool {
	return len(r.byParent[parentKind]) > 0
}

func parentField(k KindSpec) string {
	if k.Tree.ParentIDField != "" {
		return k.Tree.ParentIDField
	}
	return tree.DefaultParentIDField
}

// Tables names the console tables.
type Tables struct {
	Menus      string `toml:"menus"`
	Depts      string `toml:"depts"`
	Categories string `toml:"categories"`
	Dicts      string `toml:"dicts"`
}

// DefaultTables returns the default console table names.
func DefaultTables() Tables {
	return Tables{
		Menus:      "canopy_menus",
		Depts:      "canopy_depts",
		Categories: "canopy_categories",
		Dicts:      "canopy_dict_data",
	}
}

// Console kind names.
const (
	KindMenu     = "menu"
	KindDept     = "dept"
	KindCategory = "category"
	KindDict     = "dict"
)

// ConsoleRegistry registers the menu, department and workflow category
// hierarchies.
func ConsoleRegistry(t Tables) *Registry {
	def := DefaultTables()
	if t.Menus == "" {
		t.Menus = def.Menus
	}
	if t.Depts == "" {
		t.Depts = def.Depts
	}
	if t.Categories == "" {
		t.Categories = def.Categories
	}

	r := NewRegistry()
	r.RegisterKind(KindSpec{Name: KindMenu, Table: t.Menus, Tree: tree.MenuConfig(), RootParent: "0"})
	r.RegisterKind(KindSpec{Name: KindDept, Table: t.Depts, Tree: tree.DeptConfig(), RootParent: "0"})
	r.RegisterKind(KindSpec{Name: KindCategory, Table: t.Categories, Tree: tree.CategoryConfig(), RootParent: "0"})
	return r
}
