package tree

// Index is the arena form of a forest: records stay flat and children are
// resolved by identifier lookup. Build renders an Index into nested copies;
// callers that only need lookups can use the Index directly.
//
// An Index never modifies the records it was built from. It is safe for
// concurrent readers once constructed.
type Index struct {
	cfg      Config
	flat     []Record
	byID     map[any]int
	children map[any][]int
	roots    []int
}

// NewIndex scans flat twice: once to index nodes by identifier (first record
// wins on duplicates) and children by parent identifier, and once to collect
// roots in input order.
func NewIndex(flat []Record, cfg Config) *Index {
	cfg = cfg.withDefaults()
	x := &Index{
		cfg:      cfg,
		flat:     flat,
		byID:     make(map[any]int, len(flat)),
		children: make(map[any][]int),
	}

	for i, r := range flat {
		if id, ok := Key(r[cfg.IDField]); ok {
			if _, seen := x.byID[id]; !seen {
				x.byID[id] = i
			}
		}
		pid, ok := Key(r[cfg.ParentIDField])
		if !ok || !cfg.IncludeChild(r) {
			continue
		}
		x.children[pid] = append(x.children[pid], i)
	}

	for i, r := range flat {
		pid, ok := Key(r[cfg.ParentIDField])
		if ok {
			if _, found := x.byID[pid]; found {
				continue
			}
		}
		x.roots = append(x.roots, i)
	}

	return x
}

// Config returns the effective configuration, defaults applied.
func (x *Index) Config() Config { return x.cfg }

// Len returns the number of distinct identifiers.
func (x *Index) Len() int { return len(x.byID) }

// Node returns the first record carrying id.
func (x *Index) Node(id any) (Record, bool) {
	k, ok := Key(id)
	if !ok {
		return nil, false
	}
	i, ok := x.byID[k]
	if !ok {
		return nil, false
	}
	return x.flat[i], true
}

// Roots returns the root records in input order.
func (x *Index) Roots() []Record {
	return x.pick(x.roots)
}

// Children returns the records attached under id in input order.
func (x *Index) Children(id any) []Record {
	k, ok := Key(id)
	if !ok {
		return nil
	}
	return x.pick(x.children[k])
}

// ChildIDs returns the identifiers of the records attached under id.
func (x *Index) ChildIDs(id any) []any {
	k, ok := Key(id)
	if !ok {
		return nil
	}
	ids := make([]any, 0, len(x.children[k]))
	for _, i := range x.children[k] {
		ids = append(ids, x.flat[i][x.cfg.IDField])
	}
	return ids
}

// Parent returns the record named by id's parent identifier, if present.
func (x *Index) Parent(id any) (Record, bool) {
	r, ok := x.Node(id)
	if !ok {
		return nil, false
	}
	return x.Node(r[x.cfg.ParentIDField])
}

// Forest renders the index into nested copies of the records.
func (x *Index) Forest() []Record {
	out := make([]Record, 0, len(x.roots))
	onPath := make(map[any]bool)
	for _, i := range x.roots {
		out = append(out, x.attach(i, onPath))
	}
	return out
}

// attach copies flat[i] and recursively attaches its children. onPath holds
// the identifiers of the current descent so repeated identifiers cannot
// recurse forever.
func (x *Index) attach(i int, onPath map[any]bool) Record {
	node := x.flat[i].clone()

	id, ok := Key(node[x.cfg.IDField])
	if !ok || onPath[id] || len(x.children[id]) == 0 {
		node[x.cfg.ChildrenField] = nil
		return node
	}

	onPath[id] = true
	kids := make([]Record, 0, len(x.children[id]))
	for _, c := range x.children[id] {
		kids = append(kids, x.attach(c, onPath))
	}
	delete(onPath, id)

	node[x.cfg.ChildrenField] = kids
	return node
}

func (x *Index) pick(idx []int) []Record {
	out := make([]Record, 0, len(idx))
	for _, i := range idx {
		out = append(out, x.flat[i])
	}
	return out
}
