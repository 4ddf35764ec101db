package core

import "time"

// InvocationRecord is the persisted form of one attempted scriptlet run
type InvocationRecord struct {
	Owner      Owner    `json:"owner"`
	Phase      Phase    `json:"phase"`
	Argv       []string `json:"argv"`
	Status     string   `json:"status"`
	ExitCode   int      `json:"exit_code"`
	Error      string   `json:"error,omitempty"`
	DurationMS int64    `json:"duration_ms"`
}

// HistoryEntry records a finished transaction, committed or aborted
type HistoryEntry struct {
	ID          int64              `json:"id"`
	Action      Action             `json:"action"`
	Name        string             `json:"name"`
	Format      FormatTag          `json:"format"`
	OldVersion  string             `json:"old_version,omitempty"`
	NewVersion  string             `json:"new_version,omitempty"`
	Relation    Relation           `json:"relation,omitempty"`
	Committed   bool               `json:"committed"`
	Suppressed  bool               `json:"suppressed"`
	Warnings    []string           `json:"warnings,omitempty"`
	Invocations []InvocationRecord `json:"invocations,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
}

// Change is the single database write issued at the end of a transaction.
// At most one of Put and Delete is set; both are empty for aborted transactions.
type Change struct {
	Put     *PackageDescriptor
	Delete  string
	History *HistoryEntry
}
