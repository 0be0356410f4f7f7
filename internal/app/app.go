package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"

	"profilewatch/internal/api"
	"profilewatch/internal/auth"
	"profilewatch/internal/data/store"
	"profilewatch/internal/infra/config"
	"profilewatch/internal/infra/logger"
	"profilewatch/internal/infra/metrics"
	"profilewatch/internal/profile"
	"profilewatch/internal/service/detect"
	"profilewatch/internal/service/export"
	"profilewatch/internal/service/fingerprint"
	"profilewatch/internal/service/media"
	"profilewatch/internal/service/monitor"
	"profilewatch/internal/service/notify"
	"profilewatch/internal/service/presence"
	"profilewatch/internal/service/whatsapp"
	"profilewatch/internal/utils/clock"
	"profilewatch/internal/utils/jid"
	"profilewatch/internal/utils/retry"
)

const connectTimeout = 30 * time.Second

// App is the main application orchestrator.
type App struct {
	Config *config.Config
	Log    waLog.Logger

	Stores   *store.Container
	Client   *Client
	Files    *media.AvatarFiles
	Metrics  *metrics.Metrics
	Source   *whatsapp.Source
	Presence *whatsapp.PresenceTracker
	Events   *whatsapp.ProfileEvents
	Monitor  *monitor.Monitor
	Sampler  *presence.Sampler
	Notifier *notify.Notifier
	API      *api.Server
}

// New wires every component. Nothing connects to WhatsApp yet.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	log := logger.New("profilewatch", cfg.LogLevel)

	if err := cfg.EnsureStorePath(); err != nil {
		return nil, fmt.Errorf("failed to ensure store path: %w", err)
	}

	appStore, err := store.New(ctx, cfg.DatabasePath(), log)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	stores := store.NewContainer(appStore)

	client, err := NewClient(ctx, appStore, cfg.DeviceName, log)
	if err != nil {
		stores.Close()
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	fetcher, err := fingerprint.New(fingerprint.Config{
		Timeout:   cfg.Fetch.Timeout(),
		MaxBytes:  cfg.Fetch.MaxBytes,
		UserAgent: cfg.Fetch.UserAgent,
	})
	if err != nil {
		stores.Close()
		return nil, fmt.Errorf("failed to create fetcher: %w", err)
	}

	a := &App{
		Config:  cfg,
		Log:     log,
		Stores:  stores,
		Client:  client,
		Files:   media.NewAvatarFiles(cfg.StorePath, log),
		Metrics: metrics.New(),
		Source:  whatsapp.NewSource(client.WAClient, log),
	}
	a.Presence = whatsapp.NewPresenceTracker(client.WAClient, client.ResolvePN, log)
	a.Presence.OnUpdate(a.recordPresence)

	retryCfg := retry.Config{
		MaxAttempts: cfg.Monitor.RetryMaxAttempts,
		InitialWait: cfg.Monitor.RetryInitialBackoff(),
		MaxWait:     cfg.Monitor.RetryMaxBackoff(),
		Multiplier:  2,
		OnRetry: func(attempt int, err error, wait time.Duration) {
			log.Warnf("Check attempt %d failed, retrying in %s: %v", attempt, wait, err)
		},
	}
	a.Monitor = monitor.New(monitor.Deps{
		Contacts:  stores.Contacts,
		Baselines: stores.Baselines,
		Source:    a.Source,
		Detector:  detect.New(fetcher, log),
		Files:     a.Files,
		Clock:     clock.Real{},
		Metrics:   a.Metrics,
	}, monitor.Config{
		Interval:     cfg.Monitor.Interval(),
		Workers:      cfg.Monitor.Workers,
		CheckTimeout: cfg.Monitor.CheckTimeout(),
		Retry:        retryCfg,
	}, log)
	a.Monitor.OnChange(func(evt profile.ChangeEvent) {
		log.Infof("%s", notify.Format(evt))
	})

	a.Events = whatsapp.NewProfileEvents(client.ResolvePN, a.Presence.IsTracked, a.Monitor.Trigger, log)

	a.Sampler = presence.New(a.Presence, a.Monitor.PresenceLog(stores.Baselines), clock.Real{}, log)
	a.Sampler.SetObserver(func(_ string, sig profile.Signal) {
		a.Metrics.ObservePresence(sig.String())
	})

	if cfg.Notify.JID != "" {
		to, err := jid.Parse(cfg.Notify.JID)
		if err != nil {
			stores.Close()
			return nil, fmt.Errorf("invalid notify jid: %w", err)
		}
		a.Notifier = notify.New(client.WAClient, to, log)
		a.Monitor.OnChange(a.Notifier.OnChange)
	}

	a.API = api.New(api.Deps{
		Contacts:  stores.Contacts,
		History:   stores.Baselines,
		Checker:   a.Monitor,
		Stats:     stores.GetStats,
		Connected: client.IsConnected,
		Metrics:   a.Metrics.Handler(),
	}, log)

	client.AddEventHandler(a.handleEvent)

	if err := a.trackStored(ctx); err != nil {
		stores.Close()
		return nil, err
	}
	return a, nil
}

// trackStored registers every stored contact with the presence tracker.
func (a *App) trackStored(ctx context.Context) error {
	contacts, err := a.Stores.Contacts.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load contacts: %w", err)
	}
	for _, c := range contacts {
		if !c.JID.IsEmpty() {
			if err := a.Presence.Track(ctx, c.JID); err != nil {
				a.Log.Warnf("Failed to subscribe presence for %s: %v", c.Phone, err)
			}
		}
	}
	a.Metrics.SetTracked(len(contacts))
	return nil
}

// Pair links a new device by QR code. It is a no-op when a session exists.
func (a *App) Pair(ctx context.Context, out io.Writer, savePath string) error {
	if a.Client.IsLoggedIn() {
		a.Log.Infof("Already paired as %s", a.Client.GetJID())
		return nil
	}

	qrChan, err := a.Client.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("failed to get QR channel: %w", err)
	}
	if err := a.Client.WAClient.Connect(); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	qr := auth.NewQRHandler(out, a.Log)
	qr.SavePath = savePath
	if err := qr.HandleQRChannel(ctx, qrChan); err != nil {
		return err
	}
	return a.Client.WaitConnected(ctx, connectTimeout)
}

// Connect connects with the stored session and waits until the connection
// is usable.
func (a *App) Connect(ctx context.Context) error {
	if err := a.Client.Connect(); err != nil {
		return err
	}
	return a.Client.WaitConnected(ctx, connectTimeout)
}

// Track resolves phone and starts monitoring it.
func (a *App) Track(ctx context.Context, phone, name string) (*store.Contact, error) {
	phone, err := jid.NormalizePhone(phone)
	if err != nil {
		return nil, err
	}
	who, err := whatsapp.Resolve(ctx, a.Client.WAClient, phone)
	if err != nil {
		return nil, err
	}
	if err := a.Stores.Contacts.Put(ctx, &store.Contact{Phone: phone, JID: who, DisplayName: name}); err != nil {
		return nil, fmt.Errorf("failed to save contact: %w", err)
	}
	if err := a.Presence.Track(ctx, who); err != nil {
		a.Log.Warnf("Failed to subscribe presence for %s: %v", phone, err)
	}
	a.refreshTracked(ctx)
	return a.Stores.Contacts.Get(ctx, phone)
}

// Untrack stops monitoring phone and deletes its history and stored avatars.
func (a *App) Untrack(ctx context.Context, phone string) error {
	phone, err := jid.NormalizePhone(phone)
	if err != nil {
		return err
	}
	c, err := a.Stores.Contacts.Get(ctx, phone)
	if err != nil {
		return err
	}
	refs, err := a.avatarRefs(ctx, phone)
	if err != nil {
		return err
	}
	if err := a.Stores.Contacts.Delete(ctx, phone); err != nil {
		return err
	}
	a.Presence.Untrack(c.JID)
	if err := a.Files.Remove(refs...); err != nil {
		a.Log.Warnf("Failed to remove avatar files of %s: %v", phone, err)
	}
	a.refreshTracked(ctx)
	return nil
}

func (a *App) avatarRefs(ctx context.Context, phone string) ([]string, error) {
	var refs []string
	add := func(f profile.Field[profile.Avatar]) {
		if av, ok := f.Get(); ok {
			refs = append(refs, av.Ref, av.FullRef)
		}
	}
	base, _, err := a.Stores.Baselines.Get(ctx, phone)
	if err != nil {
		return nil, err
	}
	add(base.Avatar)
	history, err := a.Stores.Baselines.AvatarHistory(ctx, phone)
	if err != nil {
		return nil, err
	}
	for _, h := range history {
		add(h.Previous)
	}
	return refs, nil
}

func (a *App) refreshTracked(ctx context.Context) {
	contacts, err := a.Stores.Contacts.GetAll(ctx)
	if err != nil {
		a.Log.Warnf("Failed to count contacts: %v", err)
		return
	}
	a.Metrics.SetTracked(len(contacts))
}

// Check runs one pass for phone, retrying transient failures.
func (a *App) Check(ctx context.Context, phone string) (*monitor.Result, error) {
	phone, err := jid.NormalizePhone(phone)
	if err != nil {
		return nil, err
	}
	return a.Monitor.CheckWithRetry(ctx, phone)
}

// SamplePresence runs one sampling window for phone.
func (a *App) SamplePresence(ctx context.Context, phone string, duration, interval time.Duration) (presence.Summary, error) {
	phone, err := jid.NormalizePhone(phone)
	if err != nil {
		return presence.Summary{}, err
	}
	c, err := a.Stores.Contacts.Get(ctx, phone)
	if err != nil {
		return presence.Summary{}, err
	}
	if err := a.Presence.Track(ctx, c.JID); err != nil {
		a.Log.Warnf("Failed to subscribe presence for %s: %v", phone, err)
	}
	return a.Sampler.Run(ctx, phone, duration, interval)
}

// ExportVCards writes every tracked contact as a vCard with its current
// about text and avatar.
func (a *App) ExportVCards(ctx context.Context, w io.Writer) (int, error) {
	contacts, err := a.Stores.Contacts.GetAll(ctx)
	if err != nil {
		return 0, err
	}
	entries := make([]export.Entry, 0, len(contacts))
	for _, c := range contacts {
		base, _, err := a.Stores.Baselines.Get(ctx, c.Phone)
		if err != nil {
			return 0, err
		}
		entries = append(entries, export.Entry{Contact: c, Baseline: base})
	}
	load := func(ref string) ([]byte, error) {
		return os.ReadFile(a.Files.Path(ref))
	}
	return len(entries), export.Write(w, entries, load, a.Log)
}

// Run connects and monitors until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.Log.Infof("Starting profilewatch...")
	if err := a.Connect(ctx); err != nil {
		return err
	}

	a.Monitor.Start(ctx)

	var wg sync.WaitGroup
	errCh := make(chan error, 1)
	if a.Config.Presence.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.runPresence(ctx)
		}()
	}
	if a.Config.API.Listen != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.API.Serve(ctx, a.Config.API.Listen); err != nil {
				errCh <- fmt.Errorf("status API: %w", err)
			}
		}()
	}

	a.Log.Infof("profilewatch is running. Press Ctrl+C to stop.")
	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	a.Monitor.Stop()
	wg.Wait()
	return runErr
}

// runPresence samples every tracked contact in back-to-back windows, one
// interval apart.
func (a *App) runPresence(ctx context.Context) {
	duration, interval := a.Config.Presence.Duration(), a.Config.Presence.Frequency()
	for {
		contacts, err := a.Stores.Contacts.GetAll(ctx)
		if err != nil && ctx.Err() == nil {
			a.Log.Errorf("Failed to list contacts for presence: %v", err)
		}

		var wg sync.WaitGroup
		for _, c := range contacts {
			wg.Add(1)
			go func(phone string) {
				defer wg.Done()
				sum, err := a.Sampler.Run(ctx, phone, duration, interval)
				if err != nil && ctx.Err() == nil {
					a.Log.Warnf("Presence window for %s failed: %v", phone, err)
					return
				}
				a.Log.Debugf("Presence window for %s: %d ticks, %d samples", phone, sum.Ticks, sum.Appended())
			}(c.Phone)
		}
		wg.Wait()

		if err := (clock.Real{}).Sleep(ctx, interval); err != nil {
			return
		}
	}
}

func (a *App) recordPresence(upd whatsapp.PresenceUpdate) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Stores.Contacts.UpdatePresence(ctx, upd.Phone, upd.Online, upd.LastSeen); err != nil {
		a.Log.Warnf("Failed to store presence of %s: %v", upd.Phone, err)
	}
}

// handleEvent routes whatsmeow events.
func (a *App) handleEvent(evt any) {
	switch e := evt.(type) {
	case *events.Connected:
		a.Log.Infof("Connected to WhatsApp as %s", a.Client.GetJID())
		a.Client.setConnected(true)
		a.Metrics.SetConnected(true)
		// Presence of others is only delivered while we are available.
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := a.Client.SendPresence(ctx, types.PresenceAvailable); err != nil {
				a.Log.Warnf("Failed to send presence: %v", err)
			}
			a.Presence.HandleEvent(e)
		}()
		return

	case *events.Disconnected:
		a.Log.Warnf("Disconnected from WhatsApp")
		a.Client.setConnected(false)
		a.Metrics.SetConnected(false)

	case *events.LoggedOut:
		a.Log.Errorf("Logged out (reason %v), run pair again", e.Reason)
		a.Client.setConnected(false)
		a.Metrics.SetConnected(false)

	case *events.PairSuccess:
		a.Log.Infof("Paired successfully as %s", e.ID)
	}

	a.Presence.HandleEvent(evt)
	a.Events.HandleEvent(evt)
}

// Close disconnects and closes the database.
func (a *App) Close() error {
	a.Client.Disconnect()
	a.Metrics.SetConnected(false)
	return a.Stores.Close()
}
