package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/txgraph/internal/ir"
	"github.com/roach88/txgraph/internal/queryir"
)

var bigOrders = queryir.Select{
	Class:   "Order",
	Filter:  queryir.Equals{Property: "qty", Value: ir.IRInt(3)},
	OrderBy: []queryir.Order{{Property: "number"}},
}

func keysOf(recs []*Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID().Key
	}
	return out
}

func TestExecute_RegistersRows(t *testing.T) {
	f := newFixture(t)
	known := mustGet(t, f.root, o1)
	r := record(f.root)

	recs, err := f.root.Execute(f.ctx, bigOrders)
	require.NoError(t, err)

	assert.Equal(t, []string{"o1", "o3"}, keysOf(recs))
	assert.Same(t, known, recs[0])
	assert.Equal(t, []string{"ObjectsLoading [Order/o3]", "ObjectsLoaded [Order/o3]"}, r.Lines())
	assert.Equal(t, 1, f.storage.Calls().Load)
}

func TestExecute_SkipsDeleted(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.root.SetRelated(f.ctx, ep(o3, "customer"), c2))
	require.NoError(t, f.root.Delete(f.ctx, o3))

	recs, err := f.root.Execute(f.ctx, bigOrders)
	require.NoError(t, err)
	assert.Equal(t, []string{"o1"}, keysOf(recs))
}

type dropKeys struct {
	ExtensionFunc
	keys map[string]bool
}

func (d dropKeys) FilterQueryResult(_ *Transaction, _ queryir.Query, recs []*Record) ([]*Record, error) {
	var out []*Record
	for _, r := range recs {
		if !d.keys[r.ID().Key] {
			out = append(out, r)
		}
	}
	return out, nil
}

func (d dropKeys) FilterCustomQueryResult(_ *Transaction, _ queryir.Query, rows []ir.IRObject) ([]ir.IRObject, error) {
	var out []ir.IRObject
	for _, row := range rows {
		if key, _ := row["key"].(ir.IRString); !d.keys[string(key)] {
			out = append(out, row)
		}
	}
	return out, nil
}

func TestExecute_FilterChain(t *testing.T) {
	f := newFixture(t)
	noop := ExtensionFunc(func(Event) error { return nil })
	f.root.AddExtension(dropKeys{ExtensionFunc: noop, keys: map[string]bool{"o1": true}})
	f.root.AddExtension(dropKeys{ExtensionFunc: noop, keys: map[string]bool{"o9": true}})

	recs, err := f.root.Execute(f.ctx, bigOrders)
	require.NoError(t, err)
	assert.Equal(t, []string{"o3"}, keysOf(recs))

	rows, err := f.root.ExecuteCustom(f.ctx, queryir.Project{Source: bigOrders, Fields: map[string]string{"number": "n"}})
	require.NoError(t, err)
	assert.Equal(t, []ir.IRObject{{"key": ir.IRString("o3"), "n": ir.IRString("3")}}, rows)
}

func TestExecute_SubResolvesThroughParent(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.root.SetProperty(f.ctx, o3, "number", ir.IRString("33")))
	sub, err := f.root.CreateSub()
	require.NoError(t, err)

	recs, err := sub.Execute(f.ctx, bigOrders)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Same(t, sub, recs[1].Transaction())
	v, _ := recs[1].Property("number")
	assert.Equal(t, ir.IRString("33"), v)
}

func TestExecute_InvalidQuery(t *testing.T) {
	f := newFixture(t)
	_, err := f.root.Execute(f.ctx, queryir.Select{Class: "Order", Filter: queryir.Equals{Property: "nope", Value: ir.IRInt(1)}})
	assert.Equal(t, ErrCodeInvalidOperation, CodeOf(err))

	bare := New(f.storage, f.engine.Schema()).CreateRoot()
	_, err = bare.Execute(f.ctx, bigOrders)
	assert.Equal(t, ErrCodeInvalidOperation, CodeOf(err))
}
