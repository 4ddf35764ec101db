package adapter

import "github.com/quantmind-br/pkglife/internal/core"

// RPM passes a single integer: how many instances of the name remain installed
// once the operation completes.
const (
	rpmInstalledNone  = "0"
	rpmInstalledOne   = "1"
	rpmInstalledTwice = "2"
)

func rpmInvocations(plan *core.TransactionPlan) []core.ScriptletInvocation {
	var seq sequence

	switch plan.Action {
	case core.ActionInstall:
		seq.add(core.OwnerNew, plan.New, core.PhasePreInstall, rpmInstalledOne)
		seq.add(core.OwnerNew, plan.New, core.PhasePostInstall, rpmInstalledOne)

	case core.ActionUpgrade:
		// Both versions are present while the old one is erased, so the new side
		// sees 2 and the old side's removal leaves 1.
		seq.add(core.OwnerNew, plan.New, core.PhasePreInstall, rpmInstalledTwice)
		seq.add(core.OwnerOld, plan.Old, core.PhasePreRemove, rpmInstalledOne)
		seq.add(core.OwnerOld, plan.Old, core.PhasePostRemove, rpmInstalledOne)
		seq.add(core.OwnerNew, plan.New, core.PhasePostInstall, rpmInstalledTwice)

	case core.ActionRemove:
		seq.add(core.OwnerOld, plan.Old, core.PhasePreRemove, rpmInstalledNone)
		seq.add(core.OwnerOld, plan.Old, core.PhasePostRemove, rpmInstalledNone)
	}

	return seq
}
