package core

import (
	"fmt"
	"strings"
)

// FormatTag identifies the native packaging convention a package was built for
type FormatTag string

const (
	FormatRPM  FormatTag = "rpm"
	FormatDeb  FormatTag = "deb"
	FormatArch FormatTag = "arch"
)

// Formats lists every supported format in display order
var Formats = []FormatTag{FormatRPM, FormatDeb, FormatArch}

// ParseFormat converts a user or database supplied string into a FormatTag
func ParseFormat(s string) (FormatTag, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rpm":
		return FormatRPM, nil
	case "deb", "debian", "dpkg":
		return FormatDeb, nil
	case "arch", "pacman", "alpm":
		return FormatArch, nil
	default:
		return "", &UnsupportedFormatError{Format: s}
	}
}

// Phase is a lifecycle point at which a scriptlet runs
type Phase string

const (
	PhasePreInstall  Phase = "pre-install"
	PhasePostInstall Phase = "post-install"
	PhasePreUpgrade  Phase = "pre-upgrade"
	PhasePostUpgrade Phase = "post-upgrade"
	PhasePreRemove   Phase = "pre-remove"
	PhasePostRemove  Phase = "post-remove"
)

// Phases lists all phases in lifecycle order
var Phases = []Phase{
	PhasePreInstall,
	PhasePostInstall,
	PhasePreUpgrade,
	PhasePostUpgrade,
	PhasePreRemove,
	PhasePostRemove,
}

// ParsePhase converts a phase name into a Phase
func ParsePhase(s string) (Phase, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-")
	for _, p := range Phases {
		if string(p) == normalized {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown scriptlet phase: %q", s)
}

// IsPre reports whether a failure in this phase aborts the transaction
func (p Phase) IsPre() bool {
	switch p {
	case PhasePreInstall, PhasePreUpgrade, PhasePreRemove:
		return true
	default:
		return false
	}
}

// Scriptlet is a single hook body as extracted from a package
type Scriptlet struct {
	Interpreter string   `json:"interpreter,omitempty"` // empty means the configured default
	Flags       []string `json:"flags,omitempty"`       // shebang arguments passed before the script path
	Body        string   `json:"body"`
}

// PackageDescriptor is the format-independent view of a package
type PackageDescriptor struct {
	Name       string              `json:"name"`
	Version    string              `json:"version"`
	Release    string              `json:"release,omitempty"` // RPM release, Debian revision or Arch pkgrel
	Format     FormatTag           `json:"format"`
	Scriptlets map[Phase]Scriptlet `json:"scriptlets,omitempty"`
}

// FullVersion returns version-release, or the bare version when no release is set
func (d *PackageDescriptor) FullVersion() string {
	if d.Release == "" {
		return d.Version
	}
	return d.Version + "-" + d.Release
}

// Scriptlet returns the body registered for phase, if any
func (d *PackageDescriptor) Scriptlet(phase Phase) (Scriptlet, bool) {
	if d == nil || d.Scriptlets == nil {
		return Scriptlet{}, false
	}
	s, ok := d.Scriptlets[phase]
	return s, ok
}

// String renders name@fullversion for logs and messages
func (d *PackageDescriptor) String() string {
	if d == nil {
		return "<none>"
	}
	return d.Name + "@" + d.FullVersion()
}

// Validate checks the identity fields required by the planner and adapters
func (d *PackageDescriptor) Validate() error {
	if d == nil {
		return fmt.Errorf("package descriptor is nil")
	}
	if d.Name == "" {
		return fmt.Errorf("package name cannot be empty")
	}
	if d.Version == "" {
		return fmt.Errorf("package %s: version cannot be empty", d.Name)
	}
	if _, err := ParseFormat(string(d.Format)); err != nil {
		return fmt.Errorf("package %s: %w", d.Name, err)
	}
	return nil
}

// Action is the kind of transaction being performed
type Action string

const (
	ActionInstall Action = "install"
	ActionUpgrade Action = "upgrade"
	ActionRemove  Action = "remove"
)

// Owner says which side of a transaction a scriptlet belongs to
type Owner string

const (
	OwnerNew Owner = "new"
	OwnerOld Owner = "old"
)

// Relation describes how the new version of an upgrade compares to the old one
type Relation string

const (
	RelationNone      Relation = ""
	RelationUpgrade   Relation = "upgrade"
	RelationDowngrade Relation = "downgrade"
	RelationReinstall Relation = "reinstall"
)

// TransactionPlan is the classified form of a requested operation
type TransactionPlan struct {
	Action   Action             `json:"action"`
	New      *PackageDescriptor `json:"new,omitempty"`
	Old      *PackageDescriptor `json:"old,omitempty"`
	Relation Relation           `json:"relation,omitempty"`
}

// Format returns the format shared by the package records of the plan
func (p *TransactionPlan) Format() FormatTag {
	if p.New != nil {
		return p.New.Format
	}
	if p.Old != nil {
		return p.Old.Format
	}
	return ""
}

// Name returns the package name the plan operates on
func (p *TransactionPlan) Name() string {
	if p.New != nil {
		return p.New.Name
	}
	if p.Old != nil {
		return p.Old.Name
	}
	return ""
}

// Validate enforces which records each action carries
func (p *TransactionPlan) Validate() error {
	switch p.Action {
	case ActionInstall:
		if p.New == nil || p.Old != nil {
			return fmt.Errorf("install plan must carry only a new package")
		}
	case ActionRemove:
		if p.Old == nil || p.New != nil {
			return fmt.Errorf("remove plan must carry only an old package")
		}
	case ActionUpgrade:
		if p.New == nil || p.Old == nil {
			return fmt.Errorf("upgrade plan must carry both new and old packages")
		}
		if p.Old.Name != p.New.Name {
			return fmt.Errorf("upgrade plan name mismatch: %s != %s", p.Old.Name, p.New.Name)
		}
		if p.Old.Format != p.New.Format {
			return &FormatMismatchError{Name: p.New.Name, Old: p.Old.Format, New: p.New.Format}
		}
	default:
		return fmt.Errorf("unknown action: %q", p.Action)
	}
	return nil
}

// ScriptletInvocation is one planned scriptlet run within a transaction
type ScriptletInvocation struct {
	Owner     Owner              `json:"owner"`
	Phase     Phase              `json:"phase"`
	Argv      []string           `json:"argv"`
	Scriptlet Scriptlet          `json:"-"`
	Package   *PackageDescriptor `json:"-"`
}

// String renders owner.Phase([argv]) as used in logs and the plan command
func (i ScriptletInvocation) String() string {
	quoted := make([]string, len(i.Argv))
	for n, a := range i.Argv {
		quoted[n] = fmt.Sprintf("%q", a)
	}
	return fmt.Sprintf("%s.%s([%s])", i.Owner, i.Phase, strings.Join(quoted, ", "))
}
