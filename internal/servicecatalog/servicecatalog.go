// Package servicecatalog is the explicit, reflection-free registry of
// named callables a SERVICE_TASK node dispatches to.
package servicecatalog

import (
	"context"
	"fmt"
	"sync"

	"github.com/itchyny/gojq"

	"github.com/wfcore/engine/internal/domain"
)

// Callable is the shape every registered service method implements.
type Callable func(ctx context.Context, input domain.Vars) (domain.Vars, error)

// Catalog resolves "{serviceName}.{serviceMethod}" to a Callable.
type Catalog struct {
	mu sync.RWMutex
	callables map[string]Callable
}

// New creates an empty Catalog.
func New() *Catalog {
	return &Catalog{callables: make(map[string]Callable)}
}

// Register adds a callable under (serviceName, serviceMethod). Registering
// the same pair twice replaces the previous entry — callers own startup
// ordering.
func (c *Catalog) Register(serviceName, serviceMethod string, fn Callable) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callables[key(serviceName, serviceMethod)] = fn
}

// Resolve looks up a previously registered callable.
func (c *Catalog) Resolve(serviceName, serviceMethod string) (Callable, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fn, ok := c.callables[key(serviceName, serviceMethod)]
	return fn, ok
}

func key(serviceName, serviceMethod string) string {
	return serviceName + "." + serviceMethod
}

// ApplyOutputMapping copies result[src] -> vars[tgt] for each mapping. A
// source prefixed with "." is evaluated as a gojq path against result
// rather than a flat key lookup, for nested service responses.
func ApplyOutputMapping(result domain.Vars, mappings map[string]string) (domain.Vars, error) {
	out := make(domain.Vars, len(mappings))
	for tgt, src := range mappings {
		if len(src) > 0 && src[0] == '.' {
			v, err := evalJQPath(src, result)
			if err != nil {
				return nil, fmt.Errorf("output mapping %q: %w", src, err)
			}
			out[tgt] = v
			continue
		}
		out[tgt] = result[src]
	}
	return out, nil
}

func evalJQPath(path string, input domain.Vars) (any, error) {
	query, err := gojq.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("parse jq path: %w", err)
	}
	iter := query.Run(map[string]any(input))
	v, ok := iter.Next()
	if !ok {
		return nil, nil
	}
	if err, ok := v.(error); ok {
		return nil, err
	}
	return v, nil
}

// ApplyInputMapping copies vars[src] -> callInput[tgt] for each mapping —
// always a flat key copy by design
func ApplyInputMapping(vars domain.Vars, mappings map[string]string) domain.Vars {
	out := make(domain.Vars, len(mappings))
	for tgt, src := range mappings {
		out[tgt] = vars[src]
	}
	return out
}
