package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// Reconnector keeps a viewer attached across connection loss. Every attempt
// gets a brand new Session, so each connection starts from an empty store.
type Reconnector struct {
	// NewSession builds the session for the next attempt.
	NewSession func() *Session
	// Policy decides how long to wait between attempts. backoff.StopBackOff
	// makes a single attempt.
	Policy backoff.BackOff
	Logger zerolog.Logger
	// OnSession is told about each session before it starts.
	OnSession func(*Session)
}

// NewBackOff builds the exponential policy described by cfg.
func NewBackOff(cfg ReconnectConfig) backoff.BackOff {
	if !cfg.Enabled {
		return &backoff.StopBackOff{}
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialInterval
	b.MaxInterval = cfg.MaxInterval
	b.MaxElapsedTime = cfg.MaxElapsed
	b.Reset()
	return b
}

// Run drives sessions until ctx is cancelled or the policy gives up. It
// returns ctx.Err() on cancellation and the last failure otherwise.
func (r *Reconnector) Run(ctx context.Context) error {
	policy := r.Policy
	if policy == nil {
		policy = &backoff.StopBackOff{}
	}
	policy = backoff.WithContext(policy, ctx)
	policy.Reset()

	for attempt := 1; ; attempt++ {
		s := r.NewSession()
		if r.OnSession != nil {
			r.OnSession(s)
		}
		lastErr := s.Start(ctx)
		if lastErr == nil {
			policy.Reset()
			select {
			case <-ctx.Done():
				_ = s.Close()
				return ctx.Err()
			case <-s.Done():
				lastErr = ErrStreamEnded
			}
		}
		_ = s.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}

		wait := policy.NextBackOff()
		if wait == backoff.Stop {
			return fmt.Errorf("reconnect: giving up after %d attempts: %w", attempt, lastErr)
		}
		r.Logger.Info().Err(lastErr).Dur("wait", wait).Int("attempt", attempt).Msg("reconnecting")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
