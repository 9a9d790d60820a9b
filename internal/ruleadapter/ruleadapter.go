// Package ruleadapter is the concrete default implementation of the
// "rule-engine invocation" collaborator: a BUSINESS_RULE_TASK handler
// needs something to delegate to, and this package backs it with
// github.com/expr-lang/expr. It is unrelated to and never used by
// internal/condition, which is the hand-rolled evaluator the
// edge-condition grammar requires.
package ruleadapter

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/wfcore/engine/internal/domain"
)

// RuleSet is a compiled (ruleFile, ruleflowGroup) program, cached so
// repeated evaluations of the same rule don't recompile the expression.
type RuleSet struct {
	program *vm.Program
}

// Adapter compiles and evaluates business-rule expressions, caching
// compiled programs by (ruleFile, ruleflowGroup).
type Adapter struct {
	mu sync.RWMutex
	cache map[string]*RuleSet
	// Source resolves a (ruleFile, ruleflowGroup) pair to the raw expr
	// source text. In production this reads from a rule repository;
	// tests can substitute an in-memory map.
	Source func(ruleFile, ruleflowGroup string) (string, error)
}

// New creates an Adapter backed by source.
func New(source func(ruleFile, ruleflowGroup string) (string, error)) *Adapter {
	return &Adapter{cache: make(map[string]*RuleSet), Source: source}
}

// Evaluate compiles (once, cached) and runs the rule set identified by
// (ruleFile, ruleflowGroup) against input, returning the rule's output
// variables.
func (a *Adapter) Evaluate(ruleFile, ruleflowGroup string, input domain.Vars) (domain.Vars, error) {
	set, err := a.compiled(ruleFile, ruleflowGroup)
	if err != nil {
		return nil, err
	}

	result, err := expr.Run(set.program, map[string]any(input))
	if err != nil {
		return nil, fmt.Errorf("evaluate rule %s/%s: %w", ruleFile, ruleflowGroup, err)
	}

	out, ok := result.(map[string]any)
	if !ok {
		return domain.Vars{"result": result}, nil
	}
	return domain.Vars(out), nil
}

func (a *Adapter) compiled(ruleFile, ruleflowGroup string) (*RuleSet, error) {
	cacheKey := ruleFile + "::" + ruleflowGroup

	a.mu.RLock()
	set, ok := a.cache[cacheKey]
	a.mu.RUnlock()
	if ok {
		return set, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if set, ok := a.cache[cacheKey]; ok {
		return set, nil
	}

	source, err := a.Source(ruleFile, ruleflowGroup)
	if err != nil {
		return nil, fmt.Errorf("load rule source %s/%s: %w", ruleFile, ruleflowGroup, err)
	}

	program, err := expr.Compile(source, expr.AllowUndefinedVariables)
	if err != nil {
		return nil, fmt.Errorf("compile rule %s/%s: %w", ruleFile, ruleflowGroup, err)
	}

	set = &RuleSet{program: program}
	a.cache[cacheKey] = set
	return set, nil
}
