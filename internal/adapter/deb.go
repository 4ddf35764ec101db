package adapter

import "github.com/quantmind-br/pkglife/internal/core"

// Maintainer script action keywords
const (
	debInstall   = "install"
	debUpgrade   = "upgrade"
	debConfigure = "configure"
	debRemove    = "remove"
)

// debInvocations follows Debian policy: every script gets an action keyword and,
// during an upgrade, the counterpart package's bare version.
func debInvocations(plan *core.TransactionPlan) []core.ScriptletInvocation {
	var seq sequence

	switch plan.Action {
	case core.ActionInstall:
		seq.add(core.OwnerNew, plan.New, core.PhasePreInstall, debInstall)
		seq.add(core.OwnerNew, plan.New, core.PhasePostInstall, debConfigure)

	case core.ActionUpgrade:
		oldVersion := plan.Old.Version
		newVersion := plan.New.Version

		seq.add(core.OwnerNew, plan.New, core.PhasePreInstall, debUpgrade, oldVersion)
		seq.add(core.OwnerOld, plan.Old, core.PhasePreRemove, debUpgrade, newVersion)
		seq.add(core.OwnerOld, plan.Old, core.PhasePostRemove, debUpgrade, newVersion)
		seq.add(core.OwnerNew, plan.New, core.PhasePostInstall, debConfigure, oldVersion)

	case core.ActionRemove:
		seq.add(core.OwnerOld, plan.Old, core.PhasePreRemove, debRemove)
		seq.add(core.OwnerOld, plan.Old, core.PhasePostRemove, debRemove)
	}

	return seq
}
