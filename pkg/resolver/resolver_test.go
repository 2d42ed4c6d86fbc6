package resolver

import (
	"testing"

	"github.com/dd0wney/cluso-graphtx/pkg/failure"
	"github.com/dd0wney/cluso-graphtx/pkg/transaction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const graphHandler transaction.HandlerID = "graph"

func defaultIs(name string) DefaultDatabase {
	return func() (string, bool) { return name, name != "" }
}

func TestResolve(t *testing.T) {
	selectors := transaction.NewSelectors().
		Type("OrderRepo", "orders").
		Extends("ArchivedOrderRepo", "OrderRepo")

	graphDefaults := &transaction.Metadata{Handler: graphHandler}
	otherDefaults := &transaction.Metadata{Handler: "jdbc"}

	tests := []struct {
		name      string
		defaultDB string
		call      *transaction.Call
		defaults  *transaction.Metadata
		want      string // empty means declined
	}{
		{"explicit selector ignores default", "A", &transaction.Call{Database: "B"}, graphDefaults, "B"},
		{"explicit selector without default handler", "A", &transaction.Call{Database: "B"}, otherDefaults, "B"},
		{"explicit selector without any default", "", &transaction.Call{Database: "B"}, nil, "B"},
		{"type registration", "A", &transaction.Call{Receiver: "OrderRepo", Method: "Find"}, otherDefaults, "orders"},
		{"inherited type registration", "A", &transaction.Call{Receiver: "ArchivedOrderRepo"}, nil, "orders"},
		{"default handler match", "A", &transaction.Call{Method: "Plain"}, graphDefaults, "A"},
		{"default handler mismatch", "A", &transaction.Call{Method: "Plain"}, otherDefaults, ""},
		{"no defaults", "A", &transaction.Call{Method: "Plain"}, nil, ""},
		{"no default database", "", &transaction.Call{Method: "Plain"}, graphDefaults, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(graphHandler, defaultIs(tt.defaultDB), WithSelectors(selectors))
			md := r.Resolve(tt.call, tt.defaults)

			if tt.want == "" {
				assert.Nil(t, md)
				return
			}
			require.NotNil(t, md)
			assert.Equal(t, tt.want, md.Resource)
			assert.Equal(t, graphHandler, md.Handler)
			assert.Equal(t, failure.Identity, md.ExceptionHandler)
		})
	}
}

func TestResolve_RecomputedEveryCall(t *testing.T) {
	current := ""
	r := New(graphHandler, func() (string, bool) { return current, current != "" })
	defaults := &transaction.Metadata{Handler: graphHandler}
	call := &transaction.Call{Method: "Plain"}

	assert.Nil(t, r.Resolve(call, defaults), "default unknown before the registry opens")

	current = "main"
	md := r.Resolve(call, defaults)
	require.NotNil(t, md)
	assert.Equal(t, "main", md.Resource)

	other := r.Resolve(call, defaults)
	assert.NotSame(t, md, other, "metadata is produced fresh per call")
}

func TestResolve_NilDefaultFunc(t *testing.T) {
	r := New(graphHandler, nil)
	assert.Nil(t, r.Resolve(&transaction.Call{}, &transaction.Metadata{Handler: graphHandler}))

	md := r.Resolve(&transaction.Call{Database: "B"}, nil)
	require.NotNil(t, md)
	assert.Equal(t, "B", md.Resource)
}
