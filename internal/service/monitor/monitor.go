// Package monitor runs profile passes for tracked contacts.
//
// A pass takes a snapshot, runs the avatar and status checks and persists
// everything that changed in one transaction. Passes for the same contact
// never overlap; passes for different contacts run on a bounded worker pool.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"

	"profilewatch/internal/data/store"
	"profilewatch/internal/infra/metrics"
	"profilewatch/internal/profile"
	"profilewatch/internal/service/detect"
	"profilewatch/internal/service/fingerprint"
	"profilewatch/internal/service/media"
	"profilewatch/internal/service/presence"
	"profilewatch/internal/utils/clock"
	"profilewatch/internal/utils/retry"
)

// Contacts is the contact store used by the monitor.
type Contacts interface {
	Get(ctx context.Context, phone string) (*store.Contact, error)
	GetAll(ctx context.Context) ([]*store.Contact, error)
	UpdateProfile(ctx context.Context, phone string, snap profile.Snapshot) error
	MarkChecked(ctx context.Context, phone string, at time.Time, checkErr error) error
}

// Baselines reads and writes baselines.
type Baselines interface {
	Get(ctx context.Context, phone string) (profile.Baseline, bool, error)
	ApplyPass(ctx context.Context, phone string, upd profile.Update) error
}

// SnapshotSource observes a contact's current profile.
type SnapshotSource interface {
	Snapshot(ctx context.Context, who types.JID) (profile.Snapshot, error)
}

// FileStore keeps downloaded avatar images.
type FileStore interface {
	Save(owner types.JID, img *fingerprint.Image, variant media.Variant) (string, error)
	Remove(refs ...string) error
}

// Config configures passes and the scheduler.
type Config struct {
	Interval     time.Duration
	Workers      int
	CheckTimeout time.Duration
	Retry        retry.Config
}

func (c *Config) defaults() {
	if c.Interval <= 0 {
		c.Interval = 30 * time.Minute
	}
	if c.Workers <= 0 {
		c.Workers = 3
	}
	if c.CheckTimeout <= 0 {
		c.CheckTimeout = 2 * time.Minute
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry = retry.DefaultConfig()
	}
}

// Result describes one successful pass.
type Result struct {
	ContactID string
	Avatar    detect.Outcome
	Status    detect.Outcome
	Events    []profile.ChangeEvent
	CheckedAt time.Time
}

// Changed reports whether the pass wrote a change.
func (r *Result) Changed() bool {
	return len(r.Events) > 0
}

// Report is the outcome of one contact in CheckAll.
type Report struct {
	ContactID string
	Result    *Result
	Err       error
}

// Monitor runs passes.
type Monitor struct {
	contacts  Contacts
	baselines Baselines
	source    SnapshotSource
	detector  *detect.Detector
	files     FileStore
	clock     clock.Clock
	metrics   *metrics.Metrics
	config    Config
	log       waLog.Logger

	locks KeyedMutex

	listenersMu sync.RWMutex
	listeners   []func(profile.ChangeEvent)

	schedulerCtx    context.Context
	schedulerCancel context.CancelFunc
	schedulerWg     sync.WaitGroup

	triggerMu  sync.Mutex
	triggerCtx context.Context
	pending    map[string]struct{}
}

// Deps bundles the collaborators of a Monitor.
type Deps struct {
	Contacts  Contacts
	Baselines Baselines
	Source    SnapshotSource
	Detector  *detect.Detector
	Files     FileStore
	Clock     clock.Clock
	Metrics   *metrics.Metrics
}

// New creates a Monitor.
func New(deps Deps, cfg Config, log waLog.Logger) *Monitor {
	cfg.defaults()
	clk := deps.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	return &Monitor{
		contacts:  deps.Contacts,
		baselines: deps.Baselines,
		source:    deps.Source,
		detector:  deps.Detector,
		files:     deps.Files,
		clock:     clk,
		metrics:   deps.Metrics,
		config:    cfg,
		log:       log.Sub("Monitor"),
	}
}

// OnChange registers fn to be called for every persisted change.
func (m *Monitor) OnChange(fn func(profile.ChangeEvent)) {
	m.listenersMu.Lock()
	m.listeners = append(m.listeners, fn)
	m.listenersMu.Unlock()
}

// Check runs one pass for phone. On error nothing of the pass is persisted
// except the contact's last-checked time and error.
func (m *Monitor) Check(ctx context.Context, phone string) (*Result, error) {
	unlock := m.locks.Lock(phone)
	defer unlock()

	c, err := m.contacts.Get(ctx, phone)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, m.config.CheckTimeout)
	defer cancel()

	started := time.Now()
	now := m.clock.Now()
	res, err := m.check(ctx, c, now)
	m.metrics.ObservePass(time.Since(started))

	if markErr := m.contacts.MarkChecked(context.WithoutCancel(ctx), phone, now, err); markErr != nil {
		m.log.Warnf("Failed to mark %s as checked: %v", phone, markErr)
	}
	if err != nil {
		m.metrics.ObserveFailure(failureStage(err))
		m.log.Warnf("Pass for %s failed: %v", phone, err)
		return nil, err
	}

	m.metrics.ObserveCheck("avatar", res.Avatar.String())
	m.metrics.ObserveCheck("status", res.Status.String())
	for _, evt := range res.Events {
		m.metrics.ObserveChange(string(evt.Kind))
		m.emit(evt)
	}
	m.log.Debugf("Pass for %s: avatar=%s status=%s", phone, res.Avatar, res.Status)
	return res, nil
}

func (m *Monitor) check(ctx context.Context, c *store.Contact, now time.Time) (*Result, error) {
	base, _, err := m.baselines.Get(ctx, c.Phone)
	if err != nil {
		return nil, err
	}

	snap, err := m.source.Snapshot(ctx, c.JID)
	if err != nil {
		return nil, err
	}

	avatarOut, avatarUpd, err := m.detector.CheckAvatar(ctx, base.Avatar, snap, now)
	if err != nil {
		return nil, err
	}
	statusOut, statusUpd := m.detector.CheckStatus(base.Status, snap, now)

	written, err := m.storeImages(c.JID, avatarUpd)
	if err != nil {
		return nil, err
	}

	upd := profile.Update{CheckedAt: now}
	if avatarUpd != nil {
		upd.Avatar = &avatarUpd.Write
	}
	if statusUpd != nil {
		upd.Status = &statusUpd.Write
	}
	// Unchanged passes leave the baseline untouched.
	if !upd.Empty() {
		if err := m.baselines.ApplyPass(ctx, c.Phone, upd); err != nil {
			if rmErr := m.files.Remove(written...); rmErr != nil {
				m.log.Warnf("Failed to remove avatar files of aborted pass: %v", rmErr)
			}
			return nil, err
		}
	}

	if err := m.contacts.UpdateProfile(ctx, c.Phone, snap); err != nil {
		m.log.Warnf("Failed to update profile details of %s: %v", c.Phone, err)
	}

	return &Result{
		ContactID: c.Phone,
		Avatar:    avatarOut,
		Status:    statusOut,
		Events:    changeEvents(c, base, avatarUpd, statusUpd, now),
		CheckedAt: now,
	}, nil
}

// storeImages writes the downloaded images of upd and binds their refs.
func (m *Monitor) storeImages(owner types.JID, upd *detect.AvatarUpdate) ([]string, error) {
	if upd == nil || upd.Small == nil {
		return nil, nil
	}
	smallRef, err := m.files.Save(owner, upd.Small, media.VariantSmall)
	if err != nil {
		return nil, &profile.PersistenceError{Op: "save avatar", Err: err}
	}
	written := []string{smallRef}

	var fullRef string
	if upd.Full != nil {
		fullRef, err = m.files.Save(owner, upd.Full, media.VariantFull)
		if err != nil {
			if rmErr := m.files.Remove(written...); rmErr != nil {
				m.log.Warnf("Failed to remove avatar preview after full save failed: %v", rmErr)
			}
			return nil, &profile.PersistenceError{Op: "save full avatar", Err: err}
		}
		written = append(written, fullRef)
	}
	upd.Bind(smallRef, fullRef)
	return written, nil
}

func changeEvents(c *store.Contact, base profile.Baseline, av *detect.AvatarUpdate, st *detect.StatusUpdate, now time.Time) []profile.ChangeEvent {
	var events []profile.ChangeEvent
	if av != nil && av.Kind != "" {
		evt := profile.ChangeEvent{ContactID: c.Phone, Name: c.Name(), Kind: av.Kind, At: now}
		if old, ok := base.Avatar.Get(); ok {
			evt.Previous = string(old.Hash)
		}
		if cur, ok := av.Write.Next.Get(); ok {
			evt.Current = string(cur.Hash)
		}
		events = append(events, evt)
	}
	if st != nil && st.Kind != "" {
		events = append(events, profile.ChangeEvent{
			ContactID: c.Phone,
			Name:      c.Name(),
			Kind:      st.Kind,
			Previous:  base.Status.Value,
			Current:   st.Write.Next.Value,
			At:        now,
		})
	}
	return events
}

func (m *Monitor) emit(evt profile.ChangeEvent) {
	m.listenersMu.RLock()
	listeners := m.listeners
	m.listenersMu.RUnlock()
	for _, fn := range listeners {
		fn(evt)
	}
}

func failureStage(err error) string {
	switch {
	case profile.IsNetwork(err):
		return "fetch"
	case profile.IsPersistence(err):
		return "persist"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	default:
		return "other"
	}
}

// CheckWithRetry runs Check until it succeeds or the retry budget is spent.
// After the last attempt the error is a *retry.ExhaustedError.
func (m *Monitor) CheckWithRetry(ctx context.Context, phone string) (*Result, error) {
	cfg := m.config.Retry
	cfg.OnRetry = func(attempt int, err error, wait time.Duration) {
		m.log.Infof("Pass for %s failed (attempt %d/%d), retrying in %s: %v", phone, attempt, cfg.MaxAttempts, wait, err)
	}
	return retry.DoWithConfig(ctx, cfg, func(ctx context.Context) (*Result, error) {
		res, err := m.Check(ctx, phone)
		if errors.Is(err, profile.ErrContactNotTracked) {
			return nil, retry.Permanent(err)
		}
		return res, err
	})
}

// CheckAll runs a retried pass for every tracked contact on the worker pool.
// Reports come back in contact order.
func (m *Monitor) CheckAll(ctx context.Context) ([]Report, error) {
	contacts, err := m.contacts.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}
	m.metrics.SetTracked(len(contacts))
	if len(contacts) == 0 {
		return nil, nil
	}

	reports := make([]Report, len(contacts))
	queue := make(chan int)
	var wg sync.WaitGroup

	workers := min(m.config.Workers, len(contacts))
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range queue {
				phone := contacts[idx].Phone
				res, err := m.CheckWithRetry(ctx, phone)
				reports[idx] = Report{ContactID: phone, Result: res, Err: err}
			}
		}()
	}

	for i := range contacts {
		select {
		case <-ctx.Done():
			for j := i; j < len(contacts); j++ {
				reports[j] = Report{ContactID: contacts[j].Phone, Err: ctx.Err()}
			}
			close(queue)
			wg.Wait()
			return reports, ctx.Err()
		case queue <- i:
		}
	}
	close(queue)
	wg.Wait()

	failed := 0
	for _, r := range reports {
		if r.Err != nil {
			failed++
		}
	}
	m.log.Infof("Checked %d contacts, %d failed", len(contacts), failed)
	return reports, nil
}

// Start runs CheckAll now and then every configured interval until Stop.
func (m *Monitor) Start(ctx context.Context) {
	if m.schedulerCancel != nil {
		m.log.Warnf("Scheduler already running")
		return
	}

	m.schedulerCtx, m.schedulerCancel = context.WithCancel(ctx)
	m.triggerMu.Lock()
	m.triggerCtx = m.schedulerCtx
	m.triggerMu.Unlock()
	m.log.Infof("Starting pass scheduler every %s", m.config.Interval)

	m.schedulerWg.Add(1)
	go m.runPeriodic("passes", m.config.Interval, func(ctx context.Context) error {
		_, err := m.CheckAll(ctx)
		return err
	})
}

// Stop stops the scheduler and waits for a running round to finish.
func (m *Monitor) Stop() {
	if m.schedulerCancel != nil {
		m.log.Infof("Stopping pass scheduler...")
		m.triggerMu.Lock()
		m.triggerCtx = nil
		m.triggerMu.Unlock()
		m.schedulerCancel()
		m.schedulerWg.Wait()
		m.schedulerCancel = nil
		m.log.Infof("Pass scheduler stopped")
	}
}

func (m *Monitor) runPeriodic(name string, interval time.Duration, fn func(context.Context) error) {
	defer m.schedulerWg.Done()

	run := func() {
		m.log.Infof("Running periodic %s", name)
		if err := fn(m.schedulerCtx); err != nil && m.schedulerCtx.Err() == nil {
			m.log.Warnf("Periodic %s failed: %v", name, err)
		}
	}
	run()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.schedulerCtx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}

// PresenceLog wraps sink so that appends for a contact are serialized with
// that contact's passes.
func (m *Monitor) PresenceLog(sink presence.Log) presence.Log {
	return &lockedLog{sink: sink, locks: &m.locks}
}

type lockedLog struct {
	sink  presence.Log
	locks *KeyedMutex
}

func (l *lockedLog) AppendPresence(ctx context.Context, contactID string, sample profile.PresenceSample) error {
	unlock := l.locks.Lock(contactID)
	defer unlock()
	return l.sink.AppendPresence(ctx, contactID, sample)
}
