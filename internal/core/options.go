package core

// TransactionOptions contains per-transaction switches
type TransactionOptions struct {
	NoScripts bool              // Skip every scriptlet; files and database still change
	Root      string            // Installation root used as scriptlet working directory
	Env       map[string]string // Extra environment passed to every scriptlet
}
