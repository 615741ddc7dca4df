package media

import (
	"context"
	"errors"
	"log/slog"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"gifwright/internal/logging"
	"gifwright/internal/services"
)

// BreakerConfig tunes the probe circuit breaker.
type BreakerConfig struct {
	Name             string
	FailureThreshold uint32
	Cooldown         time.Duration
	// MaxRequests is the number of trial calls allowed while half-open.
	MaxRequests uint32
}

// GuardedProber wraps a Prober with a circuit breaker. After FailureThreshold
// consecutive failures, probes fail fast with services.ErrProbeFailure until
// the cooldown elapses.
type GuardedProber struct {
	next    Prober
	breaker *gobreaker.CircuitBreaker[Info]
	logger  *slog.Logger
}

// NewGuardedProber returns next wrapped in a circuit breaker.
func NewGuardedProber(next Prober, cfg BreakerConfig, logger *slog.Logger) *GuardedProber {
	if cfg.Name == "" {
		cfg.Name = "media-probe"
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = 1
	}
	g := &GuardedProber{next: next, logger: logging.NewComponentLogger(logger, "probe_breaker")}
	g.breaker = gobreaker.NewCircuitBreaker[Info](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		// A cancelled batch says nothing about the probe tool's health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				logging.WarnWithContext(g.logger, "probe circuit opened", "probe_breaker_open",
					logging.String("breaker", name),
					logging.String("from", from.String()),
					logging.String(logging.FieldErrorHint, "check the ffprobe binary and input files"),
					logging.String(logging.FieldImpact, "files fall back to default settings until the breaker closes"),
				)
				return
			}
			g.logger.Info("probe circuit state changed",
				logging.String("breaker", name),
				logging.String("from", from.String()),
				logging.String("to", to.String()),
			)
		},
	})
	return g
}

// Probe implements Prober.
func (g *GuardedProber) Probe(ctx context.Context, path string) (Info, error) {
	info, err := g.breaker.Execute(func() (Info, error) {
		return g.next.Probe(ctx, path)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return Info{}, services.Wrap(services.ErrProbeFailure, "probe", "breaker", g.breaker.State().String(), err)
	}
	return info, err
}

// State reports the breaker state name.
func (g *GuardedProber) State() string {
	return g.breaker.State().String()
}

// BreakerState reports the raw breaker state for metrics.
func (g *GuardedProber) BreakerState() gobreaker.State {
	return g.breaker.State()
}
