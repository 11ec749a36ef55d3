package engine

import "time"

// Config carries the knobs the replicators honor. Zero values fall back to
// the package defaults.
type Config struct {
	BatchSize  int
	BatchDelay time.Duration

	// DefaultCurrency is stamped on monetary fields whose master carries
	// no currency.
	DefaultCurrency string

	// UpdateExistingStages enables in-place sort/color updates for stages
	// that already exist on the slave by name. Off by default: historical
	// behavior only writes them on creation.
	UpdateExistingStages bool

	// DeleteExtraRoles removes slave roles absent from the master. Off by
	// default; operator roles on slaves are usually intentional.
	DeleteExtraRoles bool
}

func (c Config) batchSize() int {
	if c.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return c.BatchSize
}

func (c Config) batchDelay() time.Duration {
	if c.BatchDelay < 0 {
		return 0
	}
	if c.BatchDelay == 0 {
		return DefaultBatchDelay
	}
	return c.BatchDelay
}

func (c Config) defaultCurrency() string {
	if c.DefaultCurrency == "" {
		return "USD"
	}
	return c.DefaultCurrency
}

// PhaseResult aggregates what one replication phase did to a slave.
type PhaseResult struct {
	Created  int
	Updated  int
	Deleted  int
	Warnings int
	Errors   []error
}

// Add folds another result into this one.
func (r *PhaseResult) Add(other *PhaseResult) {
	r.Created += other.Created
	r.Updated += other.Updated
	r.Deleted += other.Deleted
	r.Warnings += other.Warnings
	r.Errors = append(r.Errors, other.Errors...)
}
