// Package engine runs every stored pattern against one chart context and
// collects the matches. Patterns evaluate strictly one at a time in store
// order; a failing pattern is logged and skipped, never fatal to the run.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/kexing/starmatch/guard"
	"github.com/kexing/starmatch/sandbox"
	"github.com/kexing/starmatch/store"
)

// PatternSource supplies the patterns to evaluate, in creation order.
type PatternSource interface {
	List() ([]store.Pattern, error)
}

// Observer is notified of every per-pattern outcome. Observation is
// best-effort; it can never fail a run.
type Observer interface {
	Record(runID, patternID string, matched bool, elapsed time.Duration)
}

// Match identifies one pattern that held for the evaluated chart.
type Match struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Coordinator evaluates all stored patterns against chart contexts. One
// Coordinator may serve many concurrent runs; each run wraps its chart in a
// cache of its own.
type Coordinator struct {
	source   PatternSource
	executor *sandbox.Executor
	observer Observer
	log      commonlog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithObserver attaches an outcome observer (e.g. an audit recorder).
func WithObserver(o Observer) Option {
	return func(c *Coordinator) { c.observer = o }
}

// NewCoordinator creates a Coordinator over the given pattern source and
// executor.
func NewCoordinator(source PatternSource, executor *sandbox.Executor, opts ...Option) *Coordinator {
	c := &Coordinator{
		source:   source,
		executor: executor,
		log:      commonlog.GetLogger("starmatch.engine"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EvaluateAll runs every stored pattern against chartContext and returns the
// matched subset in store order. The chart is wrapped once and the same
// guarded view is reused for every pattern in the run. Per-pattern failures
// of any kind read as no-match; only a storage failure listing the patterns
// is an error. An empty result is a valid outcome, not an error.
func (c *Coordinator) EvaluateAll(ctx context.Context, chartContext any) ([]Match, error) {
	patterns, err := c.source.List()
	if err != nil {
		return nil, fmt.Errorf("listing patterns: %w", err)
	}

	view := guard.NewWrapper().Wrap(chartContext)
	runID := uuid.NewString()

	matches := make([]Match, 0)
	for _, p := range patterns {
		if err := ctx.Err(); err != nil {
			return matches, err
		}

		start := time.Now()
		matched := c.executor.Evaluate(p.Script, view)
		elapsed := time.Since(start)

		if c.observer != nil {
			c.observer.Record(runID, p.ID, matched, elapsed)
		}
		if !matched {
			c.log.Debugf("run %s: pattern %s (%s) did not match", runID, p.ID, p.Name)
			continue
		}
		matches = append(matches, Match{ID: p.ID, Name: p.Name, Description: p.Description})
	}

	c.log.Infof("run %s: %d/%d patterns matched", runID, len(matches), len(patterns))
	return matches, nil
}
