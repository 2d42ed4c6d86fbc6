package health

import (
	"context"
	"fmt"

	"github.com/dd0wney/cluso-graphtx/pkg/graph"
)

// TransactionCheck probes a database by opening a read transaction,
// counting nodes and edges, and rolling it back.
func TransactionCheck(name string, db graph.Database) CheckFunc {
	return func(ctx context.Context) Check {
		check := Check{
			Name:    "database:" + name,
			Details: map[string]any{"database": name},
		}

		nodes, edges, err := probe(ctx, db)
		if err != nil {
			check.Status = StatusUnhealthy
			check.Message = err.Error()
			return check
		}

		check.Status = StatusHealthy
		check.Message = "Accepting transactions"
		check.Details["nodes"] = nodes
		check.Details["edges"] = edges
		return check
	}
}

func probe(ctx context.Context, db graph.Database) (nodes, edges int, err error) {
	tx, err := db.Begin(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if nodes, err = tx.CountNodes(); err != nil {
		return 0, 0, err
	}
	if edges, err = tx.CountEdges(); err != nil {
		return 0, 0, err
	}
	return nodes, edges, nil
}

// RegistryCheck reports how many databases are open. No databases means
// graph support is disabled, which is degraded rather than down.
func RegistryCheck(names func() []string) CheckFunc {
	return func(ctx context.Context) Check {
		open := names()
		check := Check{
			Name:    "registry",
			Details: map[string]any{"databases": open},
		}

		if len(open) == 0 {
			check.Status = StatusDegraded
			check.Message = "No graph database configured"
		} else {
			check.Status = StatusHealthy
			check.Message = fmt.Sprintf("%d graph database(s) open", len(open))
		}
		return check
	}
}
