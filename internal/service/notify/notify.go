// Package notify sends a WhatsApp text to the operator for every persisted
// profile change.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	"profilewatch/internal/profile"
)

// Sender is the part of *whatsmeow.Client used to send messages.
type Sender interface {
	SendMessage(ctx context.Context, to types.JID, message *waE2E.Message, extra ...whatsmeow.SendRequestExtra) (whatsmeow.SendResponse, error)
	IsConnected() bool
}

// Notifier formats change events and sends them to one chat.
type Notifier struct {
	sender  Sender
	to      types.JID
	timeout time.Duration
	log     waLog.Logger
}

// New creates a Notifier sending to to.
func New(sender Sender, to types.JID, log waLog.Logger) *Notifier {
	return &Notifier{
		sender:  sender,
		to:      to,
		timeout: 30 * time.Second,
		log:     log.Sub("Notify"),
	}
}

// OnChange sends one message for evt. Failures are logged, never returned;
// a lost notification must not fail the pass that produced it.
func (n *Notifier) OnChange(evt profile.ChangeEvent) {
	if !n.sender.IsConnected() {
		n.log.Warnf("Not connected, dropping notification for %s", evt.ContactID)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()

	msg := &waE2E.Message{Conversation: proto.String(Format(evt))}
	if _, err := n.sender.SendMessage(ctx, n.to, msg); err != nil {
		n.log.Errorf("Failed to send notification for %s: %v", evt.ContactID, err)
		return
	}
	n.log.Debugf("Sent %s notification for %s", evt.Kind, evt.ContactID)
}

// Format renders evt as a short human message.
func Format(evt profile.ChangeEvent) string {
	who := evt.Name
	if who == "" || who == evt.ContactID {
		who = "+" + evt.ContactID
	} else {
		who = fmt.Sprintf("%s (+%s)", evt.Name, evt.ContactID)
	}

	var b strings.Builder
	switch evt.Kind {
	case profile.AvatarAdded:
		fmt.Fprintf(&b, "%s set a profile picture", who)
	case profile.AvatarChanged:
		fmt.Fprintf(&b, "%s changed their profile picture", who)
	case profile.AvatarRemoved:
		fmt.Fprintf(&b, "%s removed their profile picture", who)
	case profile.StatusSet:
		fmt.Fprintf(&b, "%s set their about to %q", who, evt.Current)
	case profile.StatusChanged:
		fmt.Fprintf(&b, "%s changed their about from %q to %q", who, evt.Previous, evt.Current)
	case profile.StatusCleared:
		fmt.Fprintf(&b, "%s cleared their about (was %q)", who, evt.Previous)
	default:
		fmt.Fprintf(&b, "%s: %s", who, evt.Kind)
	}
	fmt.Fprintf(&b, " at %s", evt.At.Format("2006-01-02 15:04:05"))
	return b.String()
}
