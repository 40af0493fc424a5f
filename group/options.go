// File: group/options.go
// Author: momentics <momentics@gmail.com>
//
// Functional options for Connect, grounded on
// sakateka-yanet2/controlplane/pkg/yncp's DirectorOption/WithLog pattern:
// an unexported options struct with sane defaults, a public Option func
// type, and one With* constructor per overridable field.

package group

import (
	"go.uber.org/zap"

	"github.com/momentics/ringallreduce/control"
)

type options struct {
	log      *zap.Logger
	tunables *control.Tunables
}

func newOptions() *options {
	return &options{
		log:      zap.NewNop(),
		tunables: control.DefaultTunables(),
	}
}

// Option configures a Connect call.
type Option func(*options)

// WithLogger overrides the structured logger used throughout the
// handle's lifetime and collectives.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// WithTunables overrides the default tunable parameters (retry budgets,
// poll spin limit, base port, completion queue depth multiplier).
func WithTunables(t *control.Tunables) Option {
	return func(o *options) {
		if t != nil {
			o.tunables = t
		}
	}
}
