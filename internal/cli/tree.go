package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jacentio/canopy/store"
	"github.com/jacentio/canopy/tree"
)

// treeOpts holds the flags shared by the tree, keys and flatten commands.
type treeOpts struct {
	kind          string   // console kind preset: menu, dept, category
	idField       string   // overrides the identifier field
	parentField   string   // overrides the parent identifier field
	childrenField string   // overrides the children field
	where         []string // field=value pairs every flat record must match
	exclude       []string // field=value pairs that keep a record out of the tree
	indent        bool     // pretty-print the output
}

func (o *treeOpts) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.kind, "kind", "k", "", "field preset: menu, dept, category")
	cmd.Flags().StringVar(&o.idField, "id-field", "", "identifier field")
	cmd.Flags().StringVar(&o.parentField, "parent-field", "", "parent identifier field")
	cmd.Flags().StringVar(&o.childrenField, "children-field", "", "children field")
	cmd.Flags().BoolVar(&o.indent, "indent", false, "pretty-print JSON output")
}

func (o *treeOpts) addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().StringArrayVarP(&o.where, "where", "w", nil, "keep records whose field equals value (field=value, repeatable)")
	cmd.Flags().StringArrayVar(&o.exclude, "exclude-child", nil, "keep matching records out of the tree (field=value, repeatable)")
}

// treeConfig resolves the effective tree.Config: the kind preset or the
// [tree] section, then the field flags, then the filters.
func (c *CLI) treeConfig(o *treeOpts) (tree.Config, error) {
	cfg, err := c.config()
	if err != nil {
		return tree.Config{}, err
	}

	tc := tree.Config{
		IDField:       cfg.Tree.IDField,
		ParentIDField: cfg.Tree.ParentIDField,
		ChildrenField: cfg.Tree.ChildrenField,
	}
	if o.kind != "" {
		spec, err := store.ConsoleRegistry(cfg.Store.Tables).Kind(o.kind)
		if err != nil {
			return tree.Config{}, err
		}
		tc = spec.Tree
	}

	if o.idField != "" {
		tc.IDField = o.idField
	}
	if o.parentField != "" {
		tc.ParentIDField = o.parentField
	}
	if o.childrenField != "" {
		tc.ChildrenField = o.childrenField
	}

	where, err := matchAll(o.where)
	if err != nil {
		return tree.Config{}, err
	}
	if where != nil {
		tc.Filter = and(tc.Filter, where)
	}

	if len(o.exclude) > 0 {
		excluded, err := matchAny(o.exclude)
		if err != nil {
			return tree.Config{}, err
		}
		tc.IncludeChild = and(tc.IncludeChild, tree.Not(excluded))
	}
	return tc, nil
}

func (c *CLI) treeCommand() *cobra.Command {
	var opts treeOpts
	var treeOnly bool

	cmd := &cobra.Command{
		Use:   "tree [file]",
		Short: "Build a forest from a flat JSON list",
		Long: `Reads a JSON array of records, or a {"code", "msg", "data"} envelope, from
file or stdin and prints {"tree": [...], "flatData": [...]}.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.treeConfig(&opts)
			if err != nil {
				return err
			}
			resp, err := readResponse(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			if resp.Err != nil {
				c.Logger.Warn("upstream response failed, printing empty result", "err", resp.Err)
			}

			res := tree.Transform(resp, cfg)
			c.Logger.Debug("built forest", "records", len(resp.Data), "kept", len(res.FlatData), "roots", len(res.Tree))
			if treeOnly {
				return writeJSON(cmd.OutOrStdout(), res.Tree, opts.indent)
			}
			return writeJSON(cmd.OutOrStdout(), res, opts.indent)
		},
	}

	opts.addFlags(cmd)
	opts.addFilterFlags(cmd)
	cmd.Flags().BoolVar(&treeOnly, "tree-only", false, "print only the forest")
	return cmd
}

func (c *CLI) keysCommand() *cobra.Command {
	var opts treeOpts
	var nested bool

	cmd := &cobra.Command{
		Use:   "keys [file]",
		Short: "Print every identifier in a forest (expand all)",
		Long: `Prints the identifiers of all nodes at every depth. The input is a flat list
that is built into a forest first, or a forest already when --nested is set.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.treeConfig(&opts)
			if err != nil {
				return err
			}
			resp, err := readResponse(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}

			forest := resp.Data
			if !nested {
				forest = tree.Transform(resp, cfg).Tree
			}
			return writeJSON(cmd.OutOrStdout(), tree.CollectKeysWith(forest, cfg), opts.indent)
		},
	}

	opts.addFlags(cmd)
	opts.addFilterFlags(cmd)
	cmd.Flags().BoolVar(&nested, "nested", false, "input is already a forest")
	return cmd
}

func (c *CLI) flattenCommand() *cobra.Command {
	var opts treeOpts

	cmd := &cobra.Command{
		Use:   "flatten [file]",
		Short: "Flatten a forest back into a pre-order list",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.treeConfig(&opts)
			if err != nil {
				return err
			}
			resp, err := readResponse(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), tree.Flatten(resp.Data, cfg), opts.indent)
		},
	}

	opts.addFlags(cmd)
	return cmd
}

func (c *CLI) kindsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "kinds",
		Short: "List the console kinds and their tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.config()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, k := range store.ConsoleRegistry(cfg.Store.Tables).Kinds() {
				fmt.Fprintln(out, StyleTitle.Render(k.Name))
				printKeyValue(out, "table", k.Table)
				printKeyValue(out, "id field", orDefault(k.Tree.IDField, tree.DefaultIDField))
				printKeyValue(out, "parent field", orDefault(k.Tree.ParentIDField, tree.DefaultParentIDField))
				printKeyValue(out, "root parent", k.RootParent)
			}
			return nil
		},
	}
}

// readResponse reads args[0], or stdin when no file or "-" is given.
func readResponse(stdin io.Reader, args []string) (tree.Response, error) {
	var (
		data []byte
		err  error
	)
	if len(args) == 0 || args[0] == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return tree.Response{}, fmt.Errorf("read input: %w", err)
	}
	return decodeResponse(data)
}

// envelope is the {"code", "msg", "data"} shape returned by the console API.
type envelope struct {
	Code json.Number   `json:"code"`
	Msg  string        `json:"msg"`
	Data []tree.Record `json:"data"`
}

// decodeResponse accepts a bare array or an envelope. A non-200 envelope
// code becomes Response.Err. Numbers are kept as json.Number so large
// identifiers survive the round trip.
func decodeResponse(data []byte) (tree.Response, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return tree.Response{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	if data[0] == '[' {
		var records []tree.Record
		if err := dec.Decode(&records); err != nil {
			return tree.Response{}, fmt.Errorf("decode records: %w", err)
		}
		return tree.Response{Data: records}, nil
	}

	var env envelope
	if err := dec.Decode(&env); err != nil {
		return tree.Response{}, fmt.Errorf("decode response: %w", err)
	}
	if env.Code != "" && env.Code != "200" {
		return tree.Response{Err: fmt.Errorf("code %s: %s", env.Code, env.Msg)}, nil
	}
	return tree.Response{Data: env.Data}, nil
}

func writeJSON(w io.Writer, v any, indent bool) error {
	enc := json.NewEncoder(w)
	if indent {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

// parseMatch splits "field=value".
func parseMatch(s string) (string, string, error) {
	field, value, ok := strings.Cut(s, "=")
	if !ok || field == "" {
		return "", "", fmt.Errorf("invalid match %q: want field=value", s)
	}
	return field, value, nil
}

// matchAll returns a predicate requiring every pair, or nil for no pairs.
// Values compare against the field's string form.
func matchAll(pairs []string) (tree.Predicate, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	fields, values, err := parseMatches(pairs)
	if err != nil {
		return nil, err
	}
	return func(r tree.Record) bool {
		for i, f := range fields {
			if r.String(f) != values[i] {
				return false
			}
		}
		return true
	}, nil
}

// matchAny returns a predicate accepting records that match any pair.
func matchAny(pairs []string) (tree.Predicate, error) {
	fields, values, err := parseMatches(pairs)
	if err != nil {
		return nil, err
	}
	return func(r tree.Record) bool {
		for i, f := range fields {
			if r.String(f) == values[i] {
				return true
			}
		}
		return false
	}, nil
}

func parseMatches(pairs []string) ([]string, []string, error) {
	fields := make([]string, 0, len(pairs))
	values := make([]string, 0, len(pairs))
	var errs []error
	for _, p := range pairs {
		f, v, err := parseMatch(p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		fields = append(fields, f)
		values = append(values, v)
	}
	return fields, values, errors.Join(errs...)
}

// and combines a and b; a nil side is ignored.
func and(a, b tree.Predicate) tree.Predicate {
	if a == nil {
		return b
	}
	return func(r tree.Record) bool { return a(r) && b(r) }
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
