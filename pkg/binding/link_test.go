package binding

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/dd0wney/cluso-graphtx/pkg/errcode"
	"github.com/dd0wney/cluso-graphtx/pkg/graph"
	"github.com/dd0wney/cluso-graphtx/pkg/registry"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func openHandles(t *testing.T, names ...string) []*registry.Handle {
	t.Helper()
	handles := make([]*registry.Handle, 0, len(names))
	for _, name := range names {
		db, err := graph.Open(t.TempDir())
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Shutdown() })
		handles = append(handles, &registry.Handle{Name: name, DB: db})
	}
	return handles
}

func beginOn(t *testing.T, h *registry.Handle) graph.Transaction {
	t.Helper()
	tx, err := h.DB.Begin(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = tx.Rollback() })
	return tx
}

func TestLink_EmptyStack(t *testing.T) {
	link := NewLink()
	ctx := context.Background()

	_, err := link.Current(ctx)
	assert.ErrorIs(t, err, errcode.ErrAccessOutsideTransaction)

	tx, ok := link.CurrentTransaction(ctx)
	assert.False(t, ok)
	assert.Nil(t, tx)

	assert.Zero(t, link.Depth(ctx))
	assert.ErrorIs(t, link.Pop(ctx), ErrUnbalancedPop)

	_, ok = link.ScopeID(ctx)
	assert.False(t, ok)
}

func TestLink_NestedPushPop(t *testing.T) {
	handles := openHandles(t, "a", "b")
	link := NewLink()

	txA := beginOn(t, handles[0])
	outer := link.Push(context.Background(), handles[0], txA)
	scopeID, ok := link.ScopeID(outer)
	require.True(t, ok)

	txB := beginOn(t, handles[1])
	inner := link.Push(outer, handles[1], txB)

	entry, err := link.Current(inner)
	require.NoError(t, err)
	assert.Equal(t, "b", entry.Database.Name)
	assert.Same(t, txB, entry.Tx)
	assert.Equal(t, 2, link.Depth(inner))

	innerID, _ := link.ScopeID(inner)
	assert.Equal(t, scopeID, innerID, "nested pushes share the outer identity")

	entry, err = link.Current(outer)
	require.NoError(t, err)
	assert.Equal(t, "a", entry.Database.Name, "the enclosing context never sees the nested entry")
	assert.Equal(t, 1, link.Depth(outer))

	require.NoError(t, link.Pop(inner))
	entry, err = link.Current(inner)
	require.NoError(t, err)
	assert.Equal(t, "a", entry.Database.Name)

	require.NoError(t, link.Pop(inner))
	_, ok = link.CurrentTransaction(inner)
	assert.False(t, ok)
	_, ok = link.CurrentTransaction(outer)
	assert.False(t, ok, "popping through the nested context releases the outer entry too")
	assert.ErrorIs(t, link.Pop(inner), ErrUnbalancedPop)
	assert.ErrorIs(t, link.Pop(outer), ErrUnbalancedPop)

	_, ok = link.ScopeID(inner)
	assert.False(t, ok)
}

func TestLink_ReleaseOutOfOrder(t *testing.T) {
	handles := openHandles(t, "a", "b")
	link := NewLink()

	txA, txB := beginOn(t, handles[0]), beginOn(t, handles[1])
	outer := link.Push(context.Background(), handles[0], txA)
	inner := link.Push(outer, handles[1], txB)

	err := link.Release(inner, txA)
	assert.ErrorIs(t, err, ErrOutOfOrder)
	assert.ErrorIs(t, err, ErrUnbalancedPop)
	assert.Equal(t, 1, link.Depth(inner), "the released entry is gone even out of order")

	require.NoError(t, link.Release(inner, txB))
	_, err = link.Current(inner)
	assert.ErrorIs(t, err, errcode.ErrAccessOutsideTransaction)
	_, err = link.Current(outer)
	assert.ErrorIs(t, err, errcode.ErrAccessOutsideTransaction)

	assert.ErrorIs(t, link.Release(inner, txB), ErrUnbalancedPop)
}

func TestLink_ReleaseIgnoresUnrelatedContexts(t *testing.T) {
	handles := openHandles(t, "a", "b")
	link := NewLink()

	txA, txB := beginOn(t, handles[0]), beginOn(t, handles[1])
	outer := link.Push(context.Background(), handles[0], txA)
	inner := link.Push(outer, handles[1], txB)

	assert.ErrorIs(t, link.Release(outer, txB), ErrUnbalancedPop, "outer cannot see the nested entry")
	assert.Equal(t, 2, link.Depth(inner))
}

func TestLink_NilContextPanics(t *testing.T) {
	handles := openHandles(t, "a")
	link := NewLink()
	tx := beginOn(t, handles[0])

	var ctx context.Context
	assert.Panics(t, func() { link.Push(ctx, handles[0], tx) })
	assert.Panics(t, func() { _, _ = link.Current(ctx) })
}

func TestLink_LinksAreIndependent(t *testing.T) {
	handles := openHandles(t, "a")
	first, second := NewLink(), NewLink()

	ctx := first.Push(context.Background(), handles[0], beginOn(t, handles[0]))
	assert.Equal(t, 1, first.Depth(ctx))
	assert.Zero(t, second.Depth(ctx))
}

func TestLink_DetachStartsFreshScope(t *testing.T) {
	handles := openHandles(t, "a", "b")
	link := NewLink()

	parent := link.Push(context.Background(), handles[0], beginOn(t, handles[0]))
	child := link.Detach(parent)

	_, err := link.Current(child)
	assert.ErrorIs(t, err, errcode.ErrAccessOutsideTransaction)

	child = link.Push(child, handles[1], beginOn(t, handles[1]))
	entry, _ := link.Current(parent)
	assert.Equal(t, "a", entry.Database.Name, "child pushes never reach the parent")

	parentID, _ := link.ScopeID(parent)
	childID, _ := link.ScopeID(child)
	assert.NotEqual(t, parentID, childID)

	plain := context.Background()
	assert.Equal(t, plain, link.Detach(plain))
}

func TestLink_ConcurrentContextsAreIsolated(t *testing.T) {
	handles := openHandles(t, "a", "b")
	link := NewLink()

	var g errgroup.Group
	for i := 0; i < 16; i++ {
		h := handles[i%2]
		g.Go(func() error {
			tx, err := h.DB.Begin(context.Background())
			if err != nil {
				return err
			}
			defer tx.Rollback()

			ctx := link.Push(context.Background(), h, tx)
			for j := 0; j < 100; j++ {
				entry, err := link.Current(ctx)
				if err != nil {
					return err
				}
				if entry.Database.Name != h.Name || entry.Tx != tx {
					return fmt.Errorf("context bound to %s observed %s", h.Name, entry.Database.Name)
				}
			}
			return link.Pop(ctx)
		})
	}
	require.NoError(t, g.Wait())
}

func TestLink_SiblingsOfOneParentAreIsolated(t *testing.T) {
	handles := openHandles(t, "a", "b")
	link := NewLink()

	parentTx := beginOn(t, handles[0])
	parent := link.Push(context.Background(), handles[0], parentTx)

	const workers = 16
	var ready sync.WaitGroup
	ready.Add(workers)

	g, gctx := errgroup.WithContext(parent)
	for i := 0; i < workers; i++ {
		h := handles[i%2]
		g.Go(func() error {
			tx, err := h.DB.Begin(context.Background())
			if err != nil {
				return err
			}
			defer tx.Rollback()

			ctx := link.Push(gctx, h, tx)
			ready.Done()
			ready.Wait()

			if d := link.Depth(ctx); d != 2 {
				return fmt.Errorf("depth %d, want 2", d)
			}
			entry, err := link.Current(ctx)
			if err != nil {
				return err
			}
			if entry.Tx != tx {
				return fmt.Errorf("goroutine bound to %s observed transaction %d", h.Name, entry.Tx.ID())
			}
			return link.Release(ctx, tx)
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, 1, link.Depth(parent))
	top, ok := link.CurrentTransaction(parent)
	require.True(t, ok)
	assert.Same(t, parentTx, top)
}

// Any balanced sequence of pushes and pops leaves the innermost open entry
// on top and restores the enclosing one when it is popped.
func TestLink_StackProperties(t *testing.T) {
	handles := openHandles(t, "a", "b", "c")
	txs := make([]graph.Transaction, len(handles))
	for i, h := range handles {
		txs[i] = beginOn(t, h)
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("current tracks innermost entry", prop.ForAll(
		func(ops []int) bool {
			link := NewLink()
			ctx := link.Push(context.Background(), handles[0], txs[0])
			model := []int{0}

			for _, op := range ops {
				if op < 0 {
					if len(model) == 0 {
						if link.Pop(ctx) != ErrUnbalancedPop {
							return false
						}
						continue
					}
					if link.Pop(ctx) != nil {
						return false
					}
					model = model[:len(model)-1]
				} else {
					i := op % len(handles)
					ctx = link.Push(ctx, handles[i], txs[i])
					model = append(model, i)
				}

				if link.Depth(ctx) != len(model) {
					return false
				}
				entry, err := link.Current(ctx)
				if len(model) == 0 {
					if err == nil {
						return false
					}
					continue
				}
				top := model[len(model)-1]
				if err != nil || entry.Database != handles[top] || entry.Tx != txs[top] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(-1, 5)),
	))

	properties.TestingRun(t)
}
