// Package adapter translates a transaction plan into the ordered scriptlet
// invocations each native package format expects.
//
// The set of formats is closed: Invocations switches over every known FormatTag and
// each format keeps its own install, upgrade and remove branches. RPM and Debian fold
// the old package's removal scriptlets into an upgrade; Arch never does.
package adapter

import (
	"fmt"

	"github.com/quantmind-br/pkglife/internal/core"
)

// Invocations returns the ordered scriptlet invocations for plan. Phases without a
// scriptlet body are left out of the result.
func Invocations(plan *core.TransactionPlan) ([]core.ScriptletInvocation, error) {
	if plan == nil {
		return nil, fmt.Errorf("transaction plan is nil")
	}
	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("invalid transaction plan: %w", err)
	}

	switch plan.Format() {
	case core.FormatRPM:
		return rpmInvocations(plan), nil
	case core.FormatDeb:
		return debInvocations(plan), nil
	case core.FormatArch:
		return archInvocations(plan), nil
	default:
		return nil, &core.UnsupportedFormatError{Format: string(plan.Format())}
	}
}

// sequence accumulates invocations, skipping phases the package does not define
type sequence []core.ScriptletInvocation

func (s *sequence) add(owner core.Owner, pkg *core.PackageDescriptor, phase core.Phase, argv ...string) {
	body, ok := pkg.Scriptlet(phase)
	if !ok {
		return
	}
	*s = append(*s, core.ScriptletInvocation{
		Owner:     owner,
		Phase:     phase,
		Argv:      argv,
		Scriptlet: body,
		Package:   pkg,
	})
}
