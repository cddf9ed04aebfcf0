package service

import (
	"context"
	"fmt"

	"github.com/gammazero/toposort"
	"github.com/google/uuid"
	"github.com/phrazzld/batchflow/internal/store"
)

// verifyAcyclic checks that attaching the given dependency edges to taskID
// keeps the dependency graph acyclic. It walks the transitive dependency
// closure of the requested edges, collecting edges as it goes, and runs a
// topological sort over the combined graph. Returns ErrDependencyCycle if
// the sort fails.
//
// The closure walk is bounded by the size of the ancestor graph of the
// requested dependencies, not the whole task table.
func verifyAcyclic(ctx context.Context, tasks store.TaskStore, taskID uuid.UUID, dependsOn []uuid.UUID) error {
	var edges []toposort.Edge
	for _, depID := range dependsOn {
		edges = append(edges, toposort.Edge{depID, taskID})
	}

	visited := map[uuid.UUID]bool{taskID: true}
	frontier := append([]uuid.UUID(nil), dependsOn...)

	for len(frontier) > 0 {
		id := frontier[0]
		frontier = frontier[1:]
		if visited[id] {
			continue
		}
		visited[id] = true

		deps, err := tasks.ListDependencies(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to walk dependency graph: %w", err)
		}
		for _, dep := range deps {
			edges = append(edges, toposort.Edge{dep.ID, id})
			if !visited[dep.ID] {
				frontier = append(frontier, dep.ID)
			}
		}
	}

	if _, err := toposort.Toposort(edges); err != nil {
		return fmt.Errorf("%w: %v", ErrDependencyCycle, err)
	}

	return nil
}
