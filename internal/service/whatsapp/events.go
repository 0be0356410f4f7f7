package whatsapp

import (
	"context"
	"time"

	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
)

// ProfileEvents turns profile updates pushed by the server into passes for
// tracked contacts, so changes are picked up before the next scheduled round.
type ProfileEvents struct {
	resolvePN PNResolver
	isTracked func(phone string) bool
	trigger   func(phone, reason string) bool
	log       waLog.Logger
}

// NewProfileEvents creates a ProfileEvents. trigger is expected to coalesce
// repeated calls for the same phone.
func NewProfileEvents(resolvePN PNResolver, isTracked func(string) bool, trigger func(phone, reason string) bool, log waLog.Logger) *ProfileEvents {
	return &ProfileEvents{
		resolvePN: resolvePN,
		isTracked: isTracked,
		trigger:   trigger,
		log:       log.Sub("ProfileEvents"),
	}
}

// HandleEvent is registered as a whatsmeow event handler.
func (p *ProfileEvents) HandleEvent(evt any) {
	switch e := evt.(type) {
	case *events.Picture:
		reason := "picture"
		if e.Remove {
			reason = "picture removal"
		}
		p.fire(e.JID, reason)
	case *events.UserAbout:
		p.fire(e.JID, "about")
	case *events.BusinessName:
		p.fire(e.JID, "business name")
	}
}

func (p *ProfileEvents) fire(who types.JID, reason string) {
	user, ok := userJID(p.resolvePN, who)
	if !ok || !p.isTracked(user.User) {
		return
	}
	if p.trigger(user.User, reason) {
		p.log.Debugf("Queued pass for %s after %s update", user.User, reason)
	}
}

// userJID returns the phone-number JID behind who, mapping LIDs through
// resolve. It fails for LIDs without a known mapping.
func userJID(resolve PNResolver, who types.JID) (types.JID, bool) {
	who = who.ToNonAD()
	if who.Server != types.HiddenUserServer {
		return who, true
	}
	if resolve == nil {
		return types.EmptyJID, false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pn, err := resolve(ctx, who)
	if err != nil || pn.IsEmpty() {
		return types.EmptyJID, false
	}
	return pn.ToNonAD(), true
}
