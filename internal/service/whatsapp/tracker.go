package whatsapp

import (
	"context"
	"sync"
	"time"

	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"

	"profilewatch/internal/profile"
)

// Subscriber is the part of *whatsmeow.Client used for presence.
type Subscriber interface {
	SubscribePresence(ctx context.Context, jid types.JID) error
}

// PNResolver maps a LID to the phone number JID it belongs to.
type PNResolver func(ctx context.Context, lid types.JID) (types.JID, error)

// PresenceUpdate is passed to the update hook for every presence event of
// a tracked contact.
type PresenceUpdate struct {
	Phone    string
	Online   bool
	LastSeen time.Time
}

type presenceState struct {
	online bool
	at     time.Time
}

// PresenceTracker remembers the latest presence event of each tracked
// contact. Presence is only reliable while connected and subscribed, so the
// state is dropped on disconnect and subscriptions are renewed on connect.
type PresenceTracker struct {
	sub       Subscriber
	resolvePN PNResolver
	log       waLog.Logger

	mu        sync.RWMutex
	connected bool
	tracked   map[string]types.JID
	latest    map[string]presenceState
	onUpdate  func(PresenceUpdate)
}

// NewPresenceTracker creates a PresenceTracker. resolvePN may be nil, in
// which case presence events addressed by LID are ignored.
func NewPresenceTracker(sub Subscriber, resolvePN PNResolver, log waLog.Logger) *PresenceTracker {
	return &PresenceTracker{
		sub:       sub,
		resolvePN: resolvePN,
		log:       log.Sub("Presence"),
		tracked:   make(map[string]types.JID),
		latest:    make(map[string]presenceState),
	}
}

// OnUpdate installs a hook called for every presence event of a tracked
// contact.
func (t *PresenceTracker) OnUpdate(fn func(PresenceUpdate)) {
	t.mu.Lock()
	t.onUpdate = fn
	t.mu.Unlock()
}

// SetConnected marks the connection state without waiting for an event.
func (t *PresenceTracker) SetConnected(connected bool) {
	t.mu.Lock()
	t.connected = connected
	if !connected {
		t.latest = make(map[string]presenceState)
	}
	t.mu.Unlock()
}

// Track subscribes to presence of who. The subscription is renewed on every
// reconnect.
func (t *PresenceTracker) Track(ctx context.Context, who types.JID) error {
	t.mu.Lock()
	t.tracked[who.User] = who
	connected := t.connected
	t.mu.Unlock()

	if !connected {
		t.log.Debugf("Not connected, deferring presence subscription for %s", who)
		return nil
	}
	return t.sub.SubscribePresence(ctx, who)
}

// Untrack forgets who.
func (t *PresenceTracker) Untrack(who types.JID) {
	t.mu.Lock()
	delete(t.tracked, who.User)
	delete(t.latest, who.User)
	t.mu.Unlock()
}

// IsTracked reports whether phone is tracked.
func (t *PresenceTracker) IsTracked(phone string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.tracked[phone]
	return ok
}

// HandleEvent is registered as a whatsmeow event handler.
func (t *PresenceTracker) HandleEvent(evt any) {
	switch e := evt.(type) {
	case *events.Connected:
		t.SetConnected(true)
		go t.resubscribe()
	case *events.Disconnected:
		t.SetConnected(false)
	case *events.LoggedOut:
		t.SetConnected(false)
	case *events.Presence:
		t.onPresence(e)
	}
}

func (t *PresenceTracker) resubscribe() {
	t.mu.RLock()
	jids := make([]types.JID, 0, len(t.tracked))
	for _, j := range t.tracked {
		jids = append(jids, j)
	}
	t.mu.RUnlock()

	for _, j := range jids {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := t.sub.SubscribePresence(ctx, j); err != nil {
			t.log.Warnf("Failed to subscribe presence for %s: %v", j, err)
		}
		cancel()
	}
	if len(jids) > 0 {
		t.log.Infof("Subscribed to presence of %d contacts", len(jids))
	}
}

func (t *PresenceTracker) onPresence(evt *events.Presence) {
	from, ok := userJID(t.resolvePN, evt.From)
	if !ok {
		t.log.Debugf("Ignoring presence from unmapped LID %s", evt.From)
		return
	}

	t.mu.Lock()
	if _, ok := t.tracked[from.User]; !ok {
		t.mu.Unlock()
		return
	}
	t.latest[from.User] = presenceState{online: !evt.Unavailable, at: time.Now()}
	hook := t.onUpdate
	t.mu.Unlock()

	t.log.Debugf("Presence of %s: online=%v", from.User, !evt.Unavailable)
	if hook != nil {
		hook(PresenceUpdate{Phone: from.User, Online: !evt.Unavailable, LastSeen: evt.LastSeen})
	}
}

// Signal returns the current presence of phone. It is Unknown while
// disconnected or before any presence event for phone arrived.
func (t *PresenceTracker) Signal(_ context.Context, phone string) profile.Signal {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if !t.connected {
		return profile.SignalUnknown
	}
	st, ok := t.latest[phone]
	if !ok {
		return profile.SignalUnknown
	}
	if st.online {
		return profile.SignalOnline
	}
	return profile.SignalOffline
}
