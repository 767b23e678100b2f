package execution

import (
	"github.com/rs/zerolog"

	"github.com/arthur-debert/fsbatch/pkg/fsbatch/core"
	"github.com/arthur-debert/fsbatch/pkg/fsbatch/snapshot"
)

// Options controls how a batch is executed and reverted.
type Options struct {
	// Policy is applied uniformly to every failure of one Execute call.
	Policy core.Policy
	// RevertPolicy overrides Policy when reverting; empty means inherit.
	RevertPolicy core.Policy
	// Snapshots enables capturing deleted and overwritten content so that
	// it can be restored on revert.
	Snapshots bool
	// ResolvePrerequisites inserts CreateDir operations for missing parent
	// directories ahead of the operations that need them.
	ResolvePrerequisites bool
	// MaxSnapshotMB caps the snapshot size of one execution.
	MaxSnapshotMB int
	// Store holds snapshots until revert. Defaults to a MemoryStore.
	Store    snapshot.Store
	Logger   zerolog.Logger
	EventBus core.EventBus
}

// Option mutates Options.
type Option func(*Options)

// DefaultOptions returns sensible defaults for execution
func DefaultOptions() Options {
	return Options{
		Policy:        core.DefaultPolicy,
		Snapshots:     false, // no snapshot overhead unless asked for
		MaxSnapshotMB: core.DefaultMaxSnapshotMB,
		Logger:        zerolog.Nop(),
	}
}

// Apply returns a copy of o with opts applied.
func (o Options) Apply(opts ...Option) Options {
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithPolicy sets the failure policy.
func WithPolicy(p core.Policy) Option {
	return func(o *Options) { o.Policy = p }
}

// WithRevertPolicy sets the policy used by Result.Revert.
func WithRevertPolicy(p core.Policy) Option {
	return func(o *Options) { o.RevertPolicy = p }
}

// WithSnapshots enables or disables snapshots of deleted and overwritten content.
func WithSnapshots(enabled bool) Option {
	return func(o *Options) { o.Snapshots = enabled }
}

// WithResolvePrerequisites enables creating missing parent directories.
func WithResolvePrerequisites(enabled bool) Option {
	return func(o *Options) { o.ResolvePrerequisites = enabled }
}

// WithMaxSnapshotMB sets the snapshot size limit in megabytes.
func WithMaxSnapshotMB(mb int) Option {
	return func(o *Options) { o.MaxSnapshotMB = mb }
}

// WithStore sets where snapshots are kept.
func WithStore(s snapshot.Store) Option {
	return func(o *Options) { o.Store = s }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// WithEventBus sets the bus operation events are published on.
func WithEventBus(bus core.EventBus) Option {
	return func(o *Options) { o.EventBus = bus }
}
