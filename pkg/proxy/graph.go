// Package proxy provides the stable "current database" handle. Every call
// is forwarded to the transaction bound for the calling context.
package proxy

import (
	"context"

	"github.com/dd0wney/cluso-graphtx/pkg/binding"
	"github.com/dd0wney/cluso-graphtx/pkg/errcode"
	"github.com/dd0wney/cluso-graphtx/pkg/graph"
	"github.com/dd0wney/cluso-graphtx/pkg/metrics"
)

// Graph forwards graph operations to the bound transaction. It holds no
// per-call state and is safe to share.
type Graph struct {
	link    *binding.Link
	metrics *metrics.Registry
}

// New creates a proxy over link. m may be nil.
func New(link *binding.Link, m *metrics.Registry) *Graph {
	return &Graph{link: link, metrics: m}
}

func (g *Graph) current(ctx context.Context, op string) (binding.Entry, error) {
	entry, err := g.link.Current(ctx)
	if err != nil {
		g.metrics.AccessRejected()
		return binding.Entry{}, errcode.New(errcode.AccessOutsideTransaction).
			Detail("operation", op).
			Err()
	}
	return entry, nil
}

// Database returns the name of the database bound for ctx
func (g *Graph) Database(ctx context.Context) (string, error) {
	entry, err := g.current(ctx, "Database")
	if err != nil {
		return "", err
	}
	return entry.Database.Name, nil
}

func (g *Graph) CreateNode(ctx context.Context, labels []string, properties map[string]graph.Value) (*graph.Node, error) {
	entry, err := g.current(ctx, "CreateNode")
	if err != nil {
		return nil, err
	}
	return entry.Tx.CreateNode(labels, properties)
}

func (g *Graph) GetNode(ctx context.Context, id uint64) (*graph.Node, error) {
	entry, err := g.current(ctx, "GetNode")
	if err != nil {
		return nil, err
	}
	return entry.Tx.GetNode(id)
}

func (g *Graph) SetNodeProperties(ctx context.Context, id uint64, properties map[string]graph.Value) error {
	entry, err := g.current(ctx, "SetNodeProperties")
	if err != nil {
		return err
	}
	return entry.Tx.SetNodeProperties(id, properties)
}

func (g *Graph) DeleteNode(ctx context.Context, id uint64) error {
	entry, err := g.current(ctx, "DeleteNode")
	if err != nil {
		return err
	}
	return entry.Tx.DeleteNode(id)
}

func (g *Graph) CreateEdge(ctx context.Context, fromID, toID uint64, edgeType string, properties map[string]graph.Value) (*graph.Edge, error) {
	entry, err := g.current(ctx, "CreateEdge")
	if err != nil {
		return nil, err
	}
	return entry.Tx.CreateEdge(fromID, toID, edgeType, properties)
}

func (g *Graph) GetEdge(ctx context.Context, id uint64) (*graph.Edge, error) {
	entry, err := g.current(ctx, "GetEdge")
	if err != nil {
		return nil, err
	}
	return entry.Tx.GetEdge(id)
}

func (g *Graph) DeleteEdge(ctx context.Context, id uint64) error {
	entry, err := g.current(ctx, "DeleteEdge")
	if err != nil {
		return err
	}
	return entry.Tx.DeleteEdge(id)
}

func (g *Graph) NodesByLabel(ctx context.Context, label string) ([]*graph.Node, error) {
	entry, err := g.current(ctx, "NodesByLabel")
	if err != nil {
		return nil, err
	}
	return entry.Tx.NodesByLabel(label)
}

func (g *Graph) OutgoingEdges(ctx context.Context, nodeID uint64) ([]*graph.Edge, error) {
	entry, err := g.current(ctx, "OutgoingEdges")
	if err != nil {
		return nil, err
	}
	return entry.Tx.OutgoingEdges(nodeID)
}

func (g *Graph) CountNodes(ctx context.Context) (int, error) {
	entry, err := g.current(ctx, "CountNodes")
	if err != nil {
		return 0, err
	}
	return entry.Tx.CountNodes()
}

func (g *Graph) CountEdges(ctx context.Context) (int, error) {
	entry, err := g.current(ctx, "CountEdges")
	if err != nil {
		return 0, err
	}
	return entry.Tx.CountEdges()
}
