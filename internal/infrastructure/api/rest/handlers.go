// Package rest is the Control API transport: a gin router exposing the
// seven operations (deploy, execute, getExecutionStatus,
// resumeExecution, rollback, replayTimeline, nodeStates) over HTTP JSON.
package rest

import (
	"context"
	"fmt"
	"sync"

	"github.com/wfcore/engine/internal/domain"
	"github.com/wfcore/engine/internal/engine"
	"github.com/wfcore/engine/internal/eventstore"
	"github.com/wfcore/engine/internal/graph"
	"github.com/wfcore/engine/internal/graph/parser"
	"github.com/wfcore/engine/internal/infrastructure/storage"
	"github.com/wfcore/engine/internal/logger"
	"github.com/wfcore/engine/internal/replay"
	"github.com/wfcore/engine/internal/rollback"
	"github.com/wfcore/engine/internal/statemanager"
)

// Handlers holds every collaborator the Control API's seven operations
// need. It owns a small in-memory cache of parsed graphs keyed by
// (tenant, workflowId, version) so execute/resumeExecution don't
// re-parse the stored JSON document on every call.
type Handlers struct {
	definitions *storage.DefinitionRepository
	states statemanager.StateManager
	events eventstore.EventStore
	engine *engine.Engine
	rollback *rollback.Coordinator
	replay *replay.Engine
	log *logger.Logger

	mu sync.RWMutex
	graphs map[string]*graph.WorkflowGraph
}

// NewHandlers builds the Control API's handler set.
func NewHandlers(
	definitions *storage.DefinitionRepository,
	states statemanager.StateManager,
	events eventstore.EventStore,
	eng *engine.Engine,
	rb *rollback.Coordinator,
	rp *replay.Engine,
	log *logger.Logger) *Handlers {
	return &Handlers{
		definitions: definitions,
		states: states,
		events: events,
		engine: eng,
		rollback: rb,
		replay: rp,
		log: log,
		graphs: make(map[string]*graph.WorkflowGraph),
	}
}

func graphCacheKey(tenant domain.Tenant, workflowID string, version int) string {
	return fmt.Sprintf("%s/%s/%d", tenant, workflowID, version)
}

func (h *Handlers) cacheGraph(tenant domain.Tenant, g *graph.WorkflowGraph) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.graphs[graphCacheKey(tenant, g.WorkflowID, g.Version)] = g
}

// loadGraph returns the parsed graph for (tenant, workflowID, version),
// consulting the cache before re-fetching and re-parsing the stored
// definition document. version == 0 means "latest deployed version".
func (h *Handlers) loadGraph(ctx context.Context, tenant domain.Tenant, workflowID string, version int) (*graph.WorkflowGraph, error) {
	if version != 0 {
		h.mu.RLock()
		g, ok := h.graphs[graphCacheKey(tenant, workflowID, version)]
		h.mu.RUnlock()
		if ok {
			return g, nil
		}
	}

	var raw string
	var err error
	if version == 0 {
		raw, version, err = h.definitions.GetLatest(ctx, tenant, workflowID)
	} else {
		raw, err = h.definitions.Get(ctx, tenant, workflowID, version)
	}
	if err != nil {
		return nil, err
	}

	g, err := parser.Parse([]byte(raw))
	if err != nil {
		return nil, err
	}
	h.cacheGraph(tenant, g)
	return g, nil
}
