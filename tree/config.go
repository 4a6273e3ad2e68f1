package tree

// Default field names used when a Config leaves them empty.
const (
	DefaultIDField       = "id"
	DefaultParentIDField = "parentId"
	DefaultChildrenField = "children"
)

// Menu types as stored in the menu table.
const (
	MenuTypeDirectory = "M"
	MenuTypeMenu      = "C"
	MenuTypeButton    = "F"
)

// Predicate reports whether a record is accepted.
type Predicate func(Record) bool

// Config names the fields a transform reads and writes.
type Config struct {
	// IDField identifies a node. Default: "id".
	IDField string

	// ParentIDField identifies a node's parent. Default: "parentId".
	ParentIDField string

	// ChildrenField is where nested children are attached. Default: "children".
	ChildrenField string

	// Filter selects the records that make up the flat projection returned by
	// Transform. Rejected records appear neither in FlatData nor in the tree.
	// Default: accept all.
	Filter Predicate

	// IncludeChild decides whether a record may be attached as a child.
	// Rejected records stay addressable as parents and in FlatData, and still
	// become roots when their parent is missing. Default: accept all.
	IncludeChild Predicate
}

// withDefaults returns a copy of c with empty fields filled in.
func (c Config) withDefaults() Config {
	if c.IDField == "" {
		c.IDField = DefaultIDField
	}
	if c.ParentIDField == "" {
		c.ParentIDField = DefaultParentIDField
	}
	if c.ChildrenField == "" {
		c.ChildrenField = DefaultChildrenField
	}
	if c.Filter == nil {
		c.Filter = acceptAll
	}
	if c.IncludeChild == nil {
		c.IncludeChild = acceptAll
	}
	return c
}

func acceptAll(Record) bool { return true }

// MenuConfig keys menus by "menuId" and keeps button entries out of the
// tree while leaving them in the flat projection.
func MenuConfig() Config {
	return Config{
		IDField: "menuId",
		IncludeChild: func(r Record) bool {
			return r.String("menuType") != MenuTypeButton
		},
	}
}

// DeptConfig keys departments by "deptId".
func DeptConfig() Config {
	return Config{IDField: "deptId"}
}

// CategoryConfig keys workflow categories by "categoryId".
func CategoryConfig() Config {
	return Config{IDField: "categoryId"}
}

// Not negates p.
func Not(p Predicate) Predicate {
	return func(r Record) bool { return !p(r) }
}

// FieldEquals matches records whose field holds value, using identifier
// equality (so numeric types are interchangeable).
func FieldEquals(field string, value any) Predicate {
	want, ok := Key(value)
	return func(r Record) bool {
		got, present := Key(r[field])
		return ok && present && got == want
	}
}
