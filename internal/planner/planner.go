package planner

import (
	"context"
	"fmt"

	"github.com/quantmind-br/pkglife/internal/core"
	"github.com/rs/zerolog"

	rpmversion "github.com/knqyf263/go-rpm-version"
)

// Lookup is the read side of the package database consumed by the planner
type Lookup interface {
	// Get returns the installed record for name, or nil when nothing is installed
	Get(ctx context.Context, name string) (*core.PackageDescriptor, error)
}

// Planner classifies requested operations against the package database
type Planner struct {
	lookup Lookup
	logger *zerolog.Logger
}

// New creates a planner reading installed records through lookup
func New(lookup Lookup, log *zerolog.Logger) *Planner {
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	return &Planner{lookup: lookup, logger: log}
}

// PlanInstall classifies the installation of requested as a fresh install or an upgrade.
// Installing a name that is already present is always an upgrade, including same-version
// reinstalls and downgrades.
func (p *Planner) PlanInstall(ctx context.Context, requested *core.PackageDescriptor) (*core.TransactionPlan, error) {
	if err := requested.Validate(); err != nil {
		return nil, fmt.Errorf("invalid package: %w", err)
	}

	existing, err := p.lookup.Get(ctx, requested.Name)
	if err != nil {
		return nil, &core.DatabaseError{Op: "lookup " + requested.Name, Err: err}
	}

	if existing == nil {
		p.logger.Debug().
			Str("package", requested.String()).
			Str("format", string(requested.Format)).
			Msg("no installed record, planning fresh install")
		return &core.TransactionPlan{Action: core.ActionInstall, New: requested}, nil
	}

	if existing.Format != requested.Format {
		return nil, &core.FormatMismatchError{
			Name: requested.Name,
			Old:  existing.Format,
			New:  requested.Format,
		}
	}

	relation := Relate(existing, requested)
	p.logger.Debug().
		Str("package", requested.Name).
		Str("old_version", existing.FullVersion()).
		Str("new_version", requested.FullVersion()).
		Str("relation", string(relation)).
		Msg("installed record found, planning upgrade")

	return &core.TransactionPlan{
		Action:   core.ActionUpgrade,
		Old:      existing,
		New:      requested,
		Relation: relation,
	}, nil
}

// PlanRemove classifies the removal of name; it fails when nothing is installed
func (p *Planner) PlanRemove(ctx context.Context, name string) (*core.TransactionPlan, error) {
	if name == "" {
		return nil, fmt.Errorf("package name cannot be empty")
	}

	existing, err := p.lookup.Get(ctx, name)
	if err != nil {
		return nil, &core.DatabaseError{Op: "lookup " + name, Err: err}
	}
	if existing == nil {
		return nil, &core.NotInstalledError{Name: name}
	}

	p.logger.Debug().
		Str("package", existing.String()).
		Msg("planning removal")

	return &core.TransactionPlan{Action: core.ActionRemove, Old: existing}, nil
}

// Plan dispatches on the requested action. ActionUpgrade is accepted as a synonym
// for install since the database decides whether an upgrade takes place.
func (p *Planner) Plan(ctx context.Context, action core.Action, requested *core.PackageDescriptor) (*core.TransactionPlan, error) {
	switch action {
	case core.ActionInstall, core.ActionUpgrade:
		return p.PlanInstall(ctx, requested)
	case core.ActionRemove:
		if requested == nil {
			return nil, fmt.Errorf("remove requires a package name")
		}
		return p.PlanRemove(ctx, requested.Name)
	default:
		return nil, fmt.Errorf("unknown action: %q", action)
	}
}

// Relate compares full versions using rpmvercmp ordering
func Relate(old, updated *core.PackageDescriptor) core.Relation {
	oldV := rpmversion.NewVersion(old.FullVersion())
	newV := rpmversion.NewVersion(updated.FullVersion())

	switch cmp := newV.Compare(oldV); {
	case cmp > 0:
		return core.RelationUpgrade
	case cmp < 0:
		return core.RelationDowngrade
	default:
		return core.RelationReinstall
	}
}
