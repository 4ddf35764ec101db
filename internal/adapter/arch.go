package adapter

import "github.com/quantmind-br/pkglife/internal/core"

// archInvocations passes full version-pkgrel strings. An upgrade is an in-place
// replacement: only the new package's upgrade functions run and the old package's
// remove functions are never called.
func archInvocations(plan *core.TransactionPlan) []core.ScriptletInvocation {
	var seq sequence

	switch plan.Action {
	case core.ActionInstall:
		newFull := plan.New.FullVersion()
		seq.add(core.OwnerNew, plan.New, core.PhasePreInstall, newFull)
		seq.add(core.OwnerNew, plan.New, core.PhasePostInstall, newFull)

	case core.ActionUpgrade:
		newFull := plan.New.FullVersion()
		oldFull := plan.Old.FullVersion()
		seq.add(core.OwnerNew, plan.New, core.PhasePreUpgrade, newFull, oldFull)
		seq.add(core.OwnerNew, plan.New, core.PhasePostUpgrade, newFull, oldFull)

	case core.ActionRemove:
		oldFull := plan.Old.FullVersion()
		seq.add(core.OwnerOld, plan.Old, core.PhasePreRemove, oldFull)
		seq.add(core.OwnerOld, plan.Old, core.PhasePostRemove, oldFull)
	}

	return seq
}
