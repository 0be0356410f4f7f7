// Package presence samples a contact's online/offline signal over a bounded
// window and appends the reliable readings to the presence log.
package presence

import (
	"context"
	"errors"
	"fmt"
	"time"

	waLog "go.mau.fi/whatsmeow/util/log"

	"profilewatch/internal/profile"
	"profilewatch/internal/utils/clock"
)

// SignalSource answers the current presence of a contact. It never fails;
// anything unreliable is SignalUnknown.
type SignalSource interface {
	Signal(ctx context.Context, contactID string) profile.Signal
}

// Log appends presence samples.
type Log interface {
	AppendPresence(ctx context.Context, contactID string, sample profile.PresenceSample) error
}

// Summary describes one sampling window.
type Summary struct {
	ContactID string
	Ticks     int
	Online    int
	Offline   int
	Unknown   int
	Started   time.Time
	Ended     time.Time
}

// Appended is the number of samples written to the log.
func (s Summary) Appended() int { return s.Online + s.Offline }

// Observer is notified of every tick, including skipped ones.
type Observer func(contactID string, sig profile.Signal)

// Sampler polls a SignalSource at a fixed interval.
type Sampler struct {
	source  SignalSource
	sink    Log
	clock   clock.Clock
	log     waLog.Logger
	observe Observer
}

// New creates a Sampler.
func New(source SignalSource, sink Log, clk clock.Clock, log waLog.Logger) *Sampler {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Sampler{
		source: source,
		sink:   sink,
		clock:  clk,
		log:    log.Sub("Presence"),
	}
}

// SetObserver installs a per-tick callback, used for metrics.
func (s *Sampler) SetObserver(fn Observer) {
	s.observe = fn
}

// Run samples contactID at start, start+interval, ... for every tick whose
// offset does not exceed duration. Unknown readings are skipped. Each call
// is an independent window.
//
// Cancelling ctx stops the window at the next tick or sleep; the partial
// summary is returned together with ctx.Err(). A failed append aborts the
// window with a *profile.PersistenceError.
func (s *Sampler) Run(ctx context.Context, contactID string, duration, interval time.Duration) (Summary, error) {
	if duration < 0 {
		return Summary{}, fmt.Errorf("invalid duration %s", duration)
	}
	if interval <= 0 {
		return Summary{}, fmt.Errorf("invalid interval %s", interval)
	}

	start := s.clock.Now()
	sum := Summary{ContactID: contactID, Started: start, Ended: start}
	last := start

	s.log.Infof("Sampling %s for %s every %s", contactID, duration, interval)

	// Offsets are k*interval with k <= duration/interval, so they never
	// exceed duration. k >= 0 stops the loop if k itself wraps.
	lastTick := int64(duration / interval)
	for k := int64(0); k >= 0 && k <= lastTick; k++ {
		offset := time.Duration(k) * interval
		if wait := start.Add(offset).Sub(s.clock.Now()); wait > 0 {
			if err := s.clock.Sleep(ctx, wait); err != nil {
				return s.finish(sum), err
			}
		}
		if err := ctx.Err(); err != nil {
			return s.finish(sum), err
		}

		sig := s.source.Signal(ctx, contactID)
		at := s.clock.Now()
		if at.Before(last) {
			at = last
		}
		last = at
		sum.Ticks++
		sum.Ended = at
		if s.observe != nil {
			s.observe(contactID, sig)
		}

		switch sig {
		case profile.SignalOnline:
			sum.Online++
		case profile.SignalOffline:
			sum.Offline++
		default:
			sum.Unknown++
			s.log.Debugf("Presence of %s unknown at tick %d, skipping", contactID, sum.Ticks)
			continue
		}

		if err := s.sink.AppendPresence(ctx, contactID, profile.PresenceSample{Signal: sig, At: at}); err != nil {
			var pe *profile.PersistenceError
			if !errors.As(err, &pe) {
				err = &profile.PersistenceError{Op: "append presence", Err: err}
			}
			s.log.Errorf("Failed to append presence for %s: %v", contactID, err)
			return s.finish(sum), err
		}
	}

	return s.finish(sum), nil
}

func (s *Sampler) finish(sum Summary) Summary {
	s.log.Infof("Presence window for %s done: %d ticks, %d online, %d offline, %d unknown",
		sum.ContactID, sum.Ticks, sum.Online, sum.Offline, sum.Unknown)
	return sum
}
