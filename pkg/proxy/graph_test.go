package proxy

import (
	"context"
	"testing"

	"github.com/dd0wney/cluso-graphtx/pkg/binding"
	"github.com/dd0wney/cluso-graphtx/pkg/errcode"
	"github.com/dd0wney/cluso-graphtx/pkg/graph"
	"github.com/dd0wney/cluso-graphtx/pkg/metrics"
	"github.com/dd0wney/cluso-graphtx/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dto "github.com/prometheus/client_model/go"
)

func openHandle(t *testing.T, name string) *registry.Handle {
	t.Helper()
	db, err := graph.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Shutdown() })
	return &registry.Handle{Name: name, DB: db}
}

func TestGraph_RejectsAccessOutsideTransaction(t *testing.T) {
	m := metrics.NewRegistry()
	g := New(binding.NewLink(), m)
	ctx := context.Background()

	calls := map[string]func() error{
		"Database":          func() error { _, err := g.Database(ctx); return err },
		"CreateNode":        func() error { _, err := g.CreateNode(ctx, nil, nil); return err },
		"GetNode":           func() error { _, err := g.GetNode(ctx, 1); return err },
		"SetNodeProperties": func() error { return g.SetNodeProperties(ctx, 1, nil) },
		"DeleteNode":        func() error { return g.DeleteNode(ctx, 1) },
		"CreateEdge":        func() error { _, err := g.CreateEdge(ctx, 1, 2, "X", nil); return err },
		"GetEdge":           func() error { _, err := g.GetEdge(ctx, 1); return err },
		"DeleteEdge":        func() error { return g.DeleteEdge(ctx, 1) },
		"NodesByLabel":      func() error { _, err := g.NodesByLabel(ctx, "X"); return err },
		"OutgoingEdges":     func() error { _, err := g.OutgoingEdges(ctx, 1); return err },
		"CountNodes":        func() error { _, err := g.CountNodes(ctx); return err },
		"CountEdges":        func() error { _, err := g.CountEdges(ctx); return err },
	}

	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			err := call()
			require.Error(t, err)
			assert.ErrorIs(t, err, errcode.ErrAccessOutsideTransaction)
			assert.Contains(t, err.Error(), "operation="+name)
		})
	}

	var counter dto.Metric
	require.NoError(t, m.AccessOutsideTxnsTotal.Write(&counter))
	assert.Equal(t, float64(len(calls)), counter.GetCounter().GetValue())
}

func TestGraph_ForwardsToInnermostTransaction(t *testing.T) {
	link := binding.NewLink()
	g := New(link, nil)
	people, places := openHandle(t, "people"), openHandle(t, "places")

	outerTx, err := people.DB.Begin(context.Background())
	require.NoError(t, err)
	defer outerTx.Rollback()
	ctx := link.Push(context.Background(), people, outerTx)

	alice, err := g.CreateNode(ctx, []string{"Person"}, map[string]graph.Value{"name": graph.StringValue("Alice")})
	require.NoError(t, err)
	bob, err := g.CreateNode(ctx, []string{"Person"}, nil)
	require.NoError(t, err)
	knows, err := g.CreateEdge(ctx, alice.ID, bob.ID, "KNOWS", nil)
	require.NoError(t, err)

	innerTx, err := places.DB.Begin(context.Background())
	require.NoError(t, err)
	defer innerTx.Rollback()
	inner := link.Push(ctx, places, innerTx)

	name, err := g.Database(inner)
	require.NoError(t, err)
	assert.Equal(t, "places", name)
	count, err := g.CountNodes(inner)
	require.NoError(t, err)
	assert.Zero(t, count, "inner scope sees the places database")

	require.NoError(t, link.Pop(inner))
	name, _ = g.Database(inner)
	assert.Equal(t, "people", name, "popping the inner scope restores the enclosing one")

	name, _ = g.Database(ctx)
	assert.Equal(t, "people", name)

	got, err := g.GetNode(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.ID)

	require.NoError(t, g.SetNodeProperties(ctx, bob.ID, map[string]graph.Value{"age": graph.IntValue(40)}))
	people2, err := g.NodesByLabel(ctx, "Person")
	require.NoError(t, err)
	assert.Len(t, people2, 2)

	edges, err := g.OutgoingEdges(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, knows.ID, edges[0].ID)

	edge, err := g.GetEdge(ctx, knows.ID)
	require.NoError(t, err)
	assert.Equal(t, "KNOWS", edge.Type)

	require.NoError(t, g.DeleteEdge(ctx, knows.ID))
	edgeCount, _ := g.CountEdges(ctx)
	assert.Zero(t, edgeCount)

	require.NoError(t, g.DeleteNode(ctx, bob.ID))
	count, _ = g.CountNodes(ctx)
	assert.Equal(t, 1, count)
}
