package relay

import (
	"fmt"
	"time"

	"github.com/dshills/sqlrelay-go/relay/emit"
)

// Config holds the validated deployment configuration for the relay.
//
// Configuration problems are fatal at construction: a relay built from an
// invalid Config never handles a request. There is no hidden global state;
// the Config travels explicitly into each component that needs it.
type Config struct {
	// Region is the deployment region embedded in synthesized ad-hoc
	// execution references. Required.
	Region string

	// RetentionDays is how long retired correlation records are kept
	// before the reaper deletes them. Required, must be positive.
	RetentionDays int
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	if c.Region == "" {
		return fmt.Errorf("region is required")
	}
	if c.RetentionDays <= 0 {
		return fmt.Errorf("retention days should be the number of days correlation state is kept, got %d", c.RetentionDays)
	}
	return nil
}

// Option is a functional option for configuring relay components.
//
// Example:
//
//	router, err := relay.NewRouter(st, wh, eng, cfg,
//	    relay.WithEmitter(emit.NewLogEmitter(os.Stdout, true)),
//	    relay.WithMetrics(relay.NewMetrics(prometheus.DefaultRegisterer)),
//	)
type Option func(*options) error

type options struct {
	emitter emit.Emitter
	metrics *Metrics
	now     func() time.Time
}

func defaultOptions() options {
	return options{
		emitter: emit.NewNullEmitter(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func applyOptions(opts []Option) (options, error) {
	cfg := defaultOptions()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return options{}, err
		}
	}
	return cfg, nil
}

// WithEmitter sets the observability emitter. Default: NullEmitter.
func WithEmitter(e emit.Emitter) Option {
	return func(o *options) error {
		if e == nil {
			return fmt.Errorf("emitter must not be nil")
		}
		o.emitter = e
		return nil
	}
}

// WithMetrics sets the Prometheus metrics collector. Default: none.
func WithMetrics(m *Metrics) Option {
	return func(o *options) error {
		o.metrics = m
		return nil
	}
}

// WithClock overrides the time source. Intended for tests that pin "now"
// for retention and invocation-marker behavior.
func WithClock(now func() time.Time) Option {
	return func(o *options) error {
		if now == nil {
			return fmt.Errorf("clock must not be nil")
		}
		o.now = now
		return nil
	}
}
