package querysql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/txgraph/internal/ir"
	"github.com/roach88/txgraph/internal/queryir"
)

func TestCompile_SimpleSelect(t *testing.T) {
	sql, params, err := NewCompiler().Compile(queryir.Select{
		Class:  "Person",
		Filter: queryir.Equals{Property: "name", Value: ir.IRString("ada")},
	})
	require.NoError(t, err)

	assert.Equal(t,
		`SELECT class, key, revision, properties, refs, lists FROM records WHERE class = ? AND json_extract(properties, ?) = ? ORDER BY key ASC COLLATE BINARY`,
		sql)
	assert.Equal(t, []any{"Person", `$."name"`, "ada"}, params)
}

func TestCompile_SelectPointer(t *testing.T) {
	sql, params, err := NewCompiler().Compile(&queryir.Select{Class: "Desk"})
	require.NoError(t, err)
	assert.Contains(t, sql, "WHERE class = ?")
	assert.Equal(t, []any{"Desk"}, params)
}

func TestCompile_NoStringInterpolation(t *testing.T) {
	evil := `x'; DROP TABLE records; --`
	sql, params, err := NewCompiler().Compile(queryir.Select{
		Class:  "Person",
		Filter: queryir.Equals{Property: "name", Value: ir.IRString(evil)},
	})
	require.NoError(t, err)
	assert.NotContains(t, sql, "DROP")
	assert.Contains(t, params, evil)
}

func TestCompile_OrderByAlwaysEndsWithKey(t *testing.T) {
	tests := []struct {
		name  string
		query queryir.Select
		order string
	}{
		{"no order", queryir.Select{Class: "Order"}, "ORDER BY key ASC COLLATE BINARY"},
		{
			"ascending",
			queryir.Select{Class: "Order", OrderBy: []queryir.Order{{Property: "qty"}}},
			"ORDER BY json_extract(properties, ?) ASC, key ASC COLLATE BINARY",
		},
		{
			"descending",
			queryir.Select{Class: "Order", OrderBy: []queryir.Order{{Property: "qty", Descending: true}}},
			"ORDER BY json_extract(properties, ?) DESC, key ASC COLLATE BINARY",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, _, err := NewCompiler().Compile(tt.query)
			require.NoError(t, err)
			assert.Contains(t, sql, tt.order)
		})
	}
}

func TestCompile_Limit(t *testing.T) {
	sql, params, err := NewCompiler().Compile(queryir.Select{Class: "Order", Limit: 2})
	require.NoError(t, err)
	assert.Contains(t, sql, "COLLATE BINARY LIMIT ?")
	assert.Equal(t, []any{"Order", 2}, params)
}

func TestCompile_ValueTypes(t *testing.T) {
	tests := []struct {
		name   string
		value  ir.IRValue
		where  string
		params []any
	}{
		{"int", ir.IRInt(3), "(json_type(properties, ?) = 'integer' AND json_extract(properties, ?) = ?)",
			[]any{`$."qty"`, `$."qty"`, int64(3)}},
		{"bool true", ir.IRBool(true), "json_type(properties, ?) = ?", []any{`$."qty"`, "true"}},
		{"bool false", ir.IRBool(false), "json_type(properties, ?) = ?", []any{`$."qty"`, "false"}},
		{"array", ir.IRArray{ir.IRInt(1)}, "json_extract(properties, ?) = ?", []any{`$."qty"`, "[1]"}},
		{"null never matches", ir.IRNull{}, "0 = 1", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, params, err := NewCompiler().Compile(queryir.Select{
				Class:  "Order",
				Filter: queryir.Equals{Property: "qty", Value: tt.value},
			})
			require.NoError(t, err)
			assert.Contains(t, sql, "AND "+tt.where+" ORDER BY")
			assert.Equal(t, append([]any{"Order"}, tt.params...), params)
		})
	}
}

func TestCompile_RefEquals(t *testing.T) {
	c1 := ir.EntityID{Class: "Customer", Key: "c1"}

	sql, params, err := NewCompiler().Compile(queryir.Select{
		Class:  "Order",
		Filter: queryir.RefEquals{Relation: "customer", Target: c1},
	})
	require.NoError(t, err)
	assert.Contains(t, sql, "json_extract(refs, ?) = ?")
	assert.Equal(t, []any{"Order", `$."customer"`, "Customer/c1"}, params)

	sql, params, err = NewCompiler().Compile(queryir.Select{
		Class:  "Order",
		Filter: &queryir.RefEquals{Relation: "customer"},
	})
	require.NoError(t, err)
	assert.Contains(t, sql, "json_extract(refs, ?) IS NULL")
	assert.Equal(t, []any{"Order", `$."customer"`}, params)
}

func TestCompile_AndPredicate(t *testing.T) {
	sql, params, err := NewCompiler().Compile(queryir.Select{
		Class: "Order",
		Filter: queryir.And{Predicates: []queryir.Predicate{
			queryir.Equals{Property: "status", Value: ir.IRString("open")},
			&queryir.RefEquals{Relation: "customer", Target: ir.EntityID{Class: "Customer", Key: "c2"}},
		}},
	})
	require.NoError(t, err)
	assert.Contains(t, sql, "(json_extract(properties, ?) = ? AND json_extract(refs, ?) = ?)")
	assert.Equal(t, []any{"Order", `$."status"`, "open", `$."customer"`, "Customer/c2"}, params)
}

func TestCompile_EmptyAndPredicate(t *testing.T) {
	sql, _, err := NewCompiler().Compile(queryir.Select{Class: "Order", Filter: queryir.And{}})
	require.NoError(t, err)
	assert.Contains(t, sql, "AND 1 = 1")
}

func TestCompile_Project(t *testing.T) {
	p := queryir.Project{
		Source: queryir.Select{Class: "Person", Filter: queryir.Equals{Property: "name", Value: ir.IRString("ada")}},
		Fields: map[string]string{"name": "who", "age": "years"},
	}
	assert.Equal(t, []string{"name", "age"}, Columns(p))

	sql, params, err := NewCompiler().Compile(&p)
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT key, properties -> ? AS "who", properties -> ? AS "years" FROM records WHERE class = ? AND json_extract(properties, ?) = ? ORDER BY key ASC COLLATE BINARY`,
		sql)
	assert.Equal(t, []any{`$."name"`, `$."age"`, "Person", `$."name"`, "ada"}, params)
}

func TestCompile_CustomTable(t *testing.T) {
	sql, _, err := (&Compiler{Table: "snapshot"}).Compile(queryir.Select{Class: "Tag"})
	require.NoError(t, err)
	assert.Contains(t, sql, "FROM snapshot WHERE")
}

func TestCompile_Errors(t *testing.T) {
	_, _, err := NewCompiler().Compile(nil)
	assert.Error(t, err)

	_, _, err = NewCompiler().Compile(queryir.Select{
		Class:  "Person",
		Filter: queryir.Equals{Property: `na"me`, Value: ir.IRString("x")},
	})
	assert.ErrorContains(t, err, "invalid member name")
}
