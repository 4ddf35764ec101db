package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/quantmind-br/pkglife/internal/adapter"
	"github.com/quantmind-br/pkglife/internal/core"
	"github.com/quantmind-br/pkglife/internal/planner"
	"github.com/quantmind-br/pkglife/internal/scriptlet"
	"github.com/rs/zerolog"
)

// Store is the package database contract the engine needs
type Store interface {
	planner.Lookup

	// Commit applies the end-of-transaction write atomically
	Commit(ctx context.Context, change core.Change) error
}

// Engine plans, runs and commits install and remove transactions
type Engine struct {
	store        Store
	planner      *planner.Planner
	orchestrator *Orchestrator
	logger       *zerolog.Logger

	// Observer, when set, is passed to every orchestrator run
	Observer Observer

	// One transaction at a time per engine; cross-process exclusion is the
	// caller's job.
	mu sync.Mutex
}

// NewEngine wires the planner and orchestrator around store and executor
func NewEngine(store Store, executor scriptlet.Executor, log *zerolog.Logger) *Engine {
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	return &Engine{
		store:        store,
		planner:      planner.New(store, log),
		orchestrator: NewOrchestrator(executor, log),
		logger:       log,
	}
}

// Install installs desc, upgrading whatever version of the name is recorded
func (e *Engine) Install(ctx context.Context, desc *core.PackageDescriptor, opts core.TransactionOptions) (*Outcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	plan, err := e.planner.PlanInstall(ctx, desc)
	if err != nil {
		return nil, err
	}
	return e.execute(ctx, plan, opts)
}

// Remove removes the recorded package called name
func (e *Engine) Remove(ctx context.Context, name string, opts core.TransactionOptions) (*Outcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	plan, err := e.planner.PlanRemove(ctx, name)
	if err != nil {
		return nil, err
	}
	return e.execute(ctx, plan, opts)
}

// Preview classifies a request and returns the invocations it would run, without
// executing anything or touching the database.
func (e *Engine) Preview(ctx context.Context, action core.Action, desc *core.PackageDescriptor) (*core.TransactionPlan, []core.ScriptletInvocation, error) {
	plan, err := e.planner.Plan(ctx, action, desc)
	if err != nil {
		return nil, nil, err
	}
	invocations, err := adapter.Invocations(plan)
	if err != nil {
		return nil, nil, err
	}
	return plan, invocations, nil
}

func (e *Engine) execute(ctx context.Context, plan *core.TransactionPlan, opts core.TransactionOptions) (*Outcome, error) {
	// Once planned, a transaction runs to completion or to its first fatal
	// pre-phase failure; interrupts only stop transactions that have not started.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ctx = context.WithoutCancel(ctx)

	log := e.logger.With().
		Str("action", string(plan.Action)).
		Str("package", plan.Name()).
		Logger()

	if plan.Action == core.ActionUpgrade {
		log.Info().
			Str("old_version", plan.Old.FullVersion()).
			Str("new_version", plan.New.FullVersion()).
			Str("relation", string(plan.Relation)).
			Msg("upgrading package")
	}

	outcome, runErr := e.orchestrator.Run(ctx, plan, RunOptions{
		Suppressed: opts.NoScripts,
		WorkDir:    opts.Root,
		Env:        opts.Env,
		Observer:   e.Observer,
	})
	if outcome == nil {
		return nil, runErr
	}

	if runErr != nil {
		// Package records stay untouched; only the audit trail is written.
		if err := e.store.Commit(ctx, core.Change{History: historyEntry(outcome)}); err != nil {
			log.Warn().Err(err).Msg("failed to record aborted transaction")
		}
		log.Error().Err(runErr).Msg("transaction aborted")
		return outcome, fmt.Errorf("%s %s aborted: %w", plan.Action, plan.Name(), runErr)
	}

	change := core.Change{History: historyEntry(outcome)}
	change.History.Committed = true
	switch plan.Action {
	case core.ActionInstall, core.ActionUpgrade:
		change.Put = plan.New
	case core.ActionRemove:
		change.Delete = plan.Old.Name
	}

	if err := e.store.Commit(ctx, change); err != nil {
		return outcome, &core.DatabaseError{Op: "commit " + plan.Name(), Err: err}
	}
	outcome.Committed = true

	log.Info().
		Int("executed", outcome.Executed()).
		Int("warnings", len(outcome.Warnings)).
		Msg("transaction committed")

	return outcome, nil
}

func historyEntry(outcome *Outcome) *core.HistoryEntry {
	plan := outcome.Plan
	entry := &core.HistoryEntry{
		Action:     plan.Action,
		Name:       plan.Name(),
		Format:     plan.Format(),
		Relation:   plan.Relation,
		Suppressed: outcome.Suppressed,
		CreatedAt:  time.Now().UTC(),
	}
	if plan.Old != nil {
		entry.OldVersion = plan.Old.FullVersion()
	}
	if plan.New != nil {
		entry.NewVersion = plan.New.FullVersion()
	}
	for _, w := range outcome.Warnings {
		entry.Warnings = append(entry.Warnings, w.Error())
	}
	for _, e := range outcome.Entries {
		rec := core.InvocationRecord{
			Owner:      e.Invocation.Owner,
			Phase:      e.Invocation.Phase,
			Argv:       e.Invocation.Argv,
			Status:     string(e.Status),
			ExitCode:   e.ExitCode,
			DurationMS: e.Duration.Milliseconds(),
		}
		if e.Err != nil {
			rec.Error = e.Err.Error()
		}
		entry.Invocations = append(entry.Invocations, rec)
	}
	return entry
}
