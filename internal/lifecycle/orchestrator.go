package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/quantmind-br/pkglife/internal/adapter"
	"github.com/quantmind-br/pkglife/internal/core"
	"github.com/quantmind-br/pkglife/internal/scriptlet"
	"github.com/rs/zerolog"
)

// Status is the result of one attempted invocation
type Status string

const (
	StatusOK      Status = "ok"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Entry is one line of the ordered outcome log
type Entry struct {
	Invocation core.ScriptletInvocation
	Status     Status
	ExitCode   int
	Err        error
	Duration   time.Duration
}

// Outcome is everything a transaction attempted, in order
type Outcome struct {
	Plan        *core.TransactionPlan
	Entries     []Entry
	Warnings    []error // post-phase failures; they do not block the commit
	Suppressed  bool
	Committable bool
	Committed   bool
}

// Executed counts invocations that actually ran, successfully or not
func (o *Outcome) Executed() int {
	n := 0
	for _, e := range o.Entries {
		if e.Status != StatusSkipped {
			n++
		}
	}
	return n
}

// Observer is notified after each invocation is attempted
type Observer func(index, total int, entry Entry)

// RunOptions controls a single orchestrator run
type RunOptions struct {
	Suppressed bool
	WorkDir    string
	Env        map[string]string
	Observer   Observer
}

// Orchestrator executes adapter-produced invocation lists
type Orchestrator struct {
	executor scriptlet.Executor
	logger   *zerolog.Logger
}

// NewOrchestrator creates an orchestrator delegating each run to executor
func NewOrchestrator(executor scriptlet.Executor, log *zerolog.Logger) *Orchestrator {
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	return &Orchestrator{executor: executor, logger: log}
}

// Run executes the plan's invocations one at a time, in order. A failed pre phase
// stops the run and leaves the outcome uncommittable; a failed post phase becomes a
// warning and the run continues.
func (o *Orchestrator) Run(ctx context.Context, plan *core.TransactionPlan, opts RunOptions) (*Outcome, error) {
	invocations, err := adapter.Invocations(plan)
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{
		Plan:       plan,
		Entries:    make([]Entry, 0, len(invocations)),
		Suppressed: opts.Suppressed,
	}

	o.logger.Info().
		Str("action", string(plan.Action)).
		Str("package", plan.Name()).
		Str("format", string(plan.Format())).
		Int("invocations", len(invocations)).
		Bool("suppressed", opts.Suppressed).
		Msg("running scriptlet plan")

	for i, inv := range invocations {
		result, execErr := o.executor.Execute(ctx, scriptlet.Request{
			Invocation: inv,
			WorkDir:    opts.WorkDir,
			Env:        opts.Env,
			Suppressed: opts.Suppressed,
		})

		entry := Entry{
			Invocation: inv,
			ExitCode:   result.ExitCode,
			Duration:   result.Duration,
		}
		switch {
		case execErr != nil:
			entry.Status = StatusFailed
			entry.Err = execErr
		case result.Skipped:
			entry.Status = StatusSkipped
		case result.ExitCode != 0:
			entry.Status = StatusFailed
			entry.Err = &core.ScriptletExitError{Phase: inv.Phase, Owner: inv.Owner, ExitCode: result.ExitCode}
		default:
			entry.Status = StatusOK
		}

		outcome.Entries = append(outcome.Entries, entry)
		if opts.Observer != nil {
			opts.Observer(i, len(invocations), entry)
		}

		if entry.Status != StatusFailed {
			continue
		}

		failure := fmt.Errorf("%s of %s: %w", inv, inv.Package, entry.Err)
		if inv.Phase.IsPre() {
			o.logger.Error().
				Err(entry.Err).
				Str("invocation", inv.String()).
				Msg("pre-phase scriptlet failed, aborting transaction")
			return outcome, failure
		}

		o.logger.Warn().
			Err(entry.Err).
			Str("invocation", inv.String()).
			Msg("post-phase scriptlet failed, continuing")
		outcome.Warnings = append(outcome.Warnings, failure)
	}

	outcome.Committable = true
	return outcome, nil
}
