package querysql

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/txgraph/internal/ir"
	"github.com/roach88/txgraph/internal/queryir"
)

// RecordColumns is the column list every compiled Select returns, in scan order.
const RecordColumns = "class, key, revision, properties, refs, lists"

// Compiler compiles query descriptors to parameterized SQLite over the
// records table.
//
// Every query ends with ORDER BY ... key ASC COLLATE BINARY so results are
// deterministic. Values are always bound as parameters.
type Compiler struct {
	// Table is the records table name. Empty means "records".
	Table string
}

// NewCompiler creates a Compiler for the default records table.
func NewCompiler() *Compiler {
	return &Compiler{Table: "records"}
}

func (c *Compiler) table() string {
	if c.Table == "" {
		return "records"
	}
	return c.Table
}

// Compile converts q to SQL and its parameters.
//
// A Select returns RecordColumns. A Project returns "key" followed by the
// output columns in the order given by Columns.
func (c *Compiler) Compile(q queryir.Query) (string, []any, error) {
	switch query := q.(type) {
	case nil:
		return "", nil, fmt.Errorf("cannot compile nil query")
	case queryir.Select:
		return c.compileSelect(RecordColumns, nil, query)
	case *queryir.Select:
		return c.compileSelect(RecordColumns, nil, *query)
	case queryir.Project:
		return c.compileProject(query)
	case *queryir.Project:
		return c.compileProject(*query)
	default:
		return "", nil, fmt.Errorf("unsupported query type: %T", q)
	}
}

// Columns returns the projected properties of p ordered by output column
// name. The compiled SQL selects them in this order after "key".
func Columns(p queryir.Project) []string {
	props := make([]string, 0, len(p.Fields))
	for prop := range p.Fields {
		props = append(props, prop)
	}
	slices.SortFunc(props, func(a, b string) int {
		return strings.Compare(p.Fields[a], p.Fields[b])
	})
	return props
}

func (c *Compiler) compileProject(p queryir.Project) (string, []any, error) {
	cols := []string{"key"}
	var params []any
	for _, prop := range Columns(p) {
		path, err := jsonPath(prop)
		if err != nil {
			return "", nil, err
		}
		// -> keeps JSON types, so booleans come back as true/false.
		cols = append(cols, fmt.Sprintf("properties -> ? AS %s", quoteIdent(p.Fields[prop])))
		params = append(params, path)
	}
	return c.compileSelect(strings.Join(cols, ", "), params, p.Source)
}

func (c *Compiler) compileSelect(columns string, params []any, s queryir.Select) (string, []any, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s WHERE class = ?", columns, c.table())
	params = append(params, s.Class)

	if s.Filter != nil {
		where, whereParams, err := c.compilePredicate(s.Filter)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		sb.WriteString(" AND ")
		sb.WriteString(where)
		params = append(params, whereParams...)
	}

	order, orderParams, err := c.orderBy(s)
	if err != nil {
		return "", nil, err
	}
	sb.WriteString(" ORDER BY ")
	sb.WriteString(order)
	params = append(params, orderParams...)

	if s.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		params = append(params, s.Limit)
	}
	return sb.String(), params, nil
}

// orderBy builds the ORDER BY list. The key tiebreaker is always last.
// SQLite sorts NULL first ascending, matching the in-memory executor.
func (c *Compiler) orderBy(s queryir.Select) (string, []any, error) {
	var parts []string
	var params []any
	for _, o := range s.OrderBy {
		path, err := jsonPath(o.Property)
		if err != nil {
			return "", nil, err
		}
		dir := "ASC"
		if o.Descending {
			dir = "DESC"
		}
		parts = append(parts, "json_extract(properties, ?) "+dir)
		params = append(params, path)
	}
	parts = append(parts, "key ASC COLLATE BINARY")
	return strings.Join(parts, ", "), params, nil
}

func (c *Compiler) compilePredicate(p queryir.Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case nil:
		return "1 = 1", nil, nil
	case queryir.Equals:
		return compileEquals(pred)
	case *queryir.Equals:
		return compileEquals(*pred)
	case queryir.RefEquals:
		return compileRefEquals(pred)
	case *queryir.RefEquals:
		return compileRefEquals(*pred)
	case queryir.And:
		return c.compileAnd(pred)
	case *queryir.And:
		return c.compileAnd(*pred)
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

// compileEquals matches one property. Booleans compare on json_type because
// json_extract folds them into 0 and 1.
func compileEquals(eq queryir.Equals) (string, []any, error) {
	path, err := jsonPath(eq.Property)
	if err != nil {
		return "", nil, err
	}
	switch val := eq.Value.(type) {
	case nil, ir.IRNull:
		return "0 = 1", nil, nil
	case ir.IRString:
		return "json_extract(properties, ?) = ?", []any{path, string(val)}, nil
	case ir.IRInt:
		return "(json_type(properties, ?) = 'integer' AND json_extract(properties, ?) = ?)",
			[]any{path, path, int64(val)}, nil
	case ir.IRBool:
		return "json_type(properties, ?) = ?", []any{path, boolType(bool(val))}, nil
	case ir.IRArray, ir.IRObject:
		text, err := ir.MarshalCanonical(val)
		if err != nil {
			return "", nil, fmt.Errorf("convert value: %w", err)
		}
		return "json_extract(properties, ?) = ?", []any{path, string(text)}, nil
	default:
		return "", nil, fmt.Errorf("unsupported value type for SQL parameter: %T", eq.Value)
	}
}

// compileRefEquals matches a single real reference. Refs are stored as
// "Class/Key" text; a null target matches records with no reference.
func compileRefEquals(ref queryir.RefEquals) (string, []any, error) {
	path, err := jsonPath(ref.Relation)
	if err != nil {
		return "", nil, err
	}
	if ref.Target.IsNull() {
		return "json_extract(refs, ?) IS NULL", []any{path}, nil
	}
	return "json_extract(refs, ?) = ?", []any{path, ref.Target.String()}, nil
}

func (c *Compiler) compileAnd(and queryir.And) (string, []any, error) {
	if len(and.Predicates) == 0 {
		return "1 = 1", nil, nil
	}
	var parts []string
	var params []any
	for _, pred := range and.Predicates {
		sql, predParams, err := c.compilePredicate(pred)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, sql)
		params = append(params, predParams...)
	}
	return "(" + strings.Join(parts, " AND ") + ")", params, nil
}

func boolType(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// jsonPath returns the SQLite JSON path for a top-level member.
func jsonPath(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `"\`) {
		return "", fmt.Errorf("invalid member name %q", name)
	}
	return `$."` + name + `"`, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
