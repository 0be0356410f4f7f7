package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"

	appstore "profilewatch/internal/data/store"
)

// ErrNotPaired is returned when a command needs a session but none is stored.
var ErrNotPaired = errors.New("no session stored, run pair first")

// Client wraps whatsmeow.Client with connection tracking.
type Client struct {
	WAClient *whatsmeow.Client
	Device   *store.Device
	Log      waLog.Logger

	connected atomic.Bool

	readyMu sync.Mutex
	ready   chan struct{}
}

// NewClient creates a new Client for the stored device, or a fresh device
// when none was paired yet.
func NewClient(ctx context.Context, appStore *appstore.Store, deviceName string, log waLog.Logger) (*Client, error) {
	device, err := appStore.GetDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}
	if deviceName != "" {
		store.DeviceProps.Os = &deviceName
	}

	waClient := whatsmeow.NewClient(device, log.Sub("whatsmeow"))
	waClient.EnableAutoReconnect = true

	return &Client{
		WAClient: waClient,
		Device:   device,
		Log:      log.Sub("Client"),
		ready:    make(chan struct{}),
	}, nil
}

// AddEventHandler adds an event handler function.
func (c *Client) AddEventHandler(handler func(any)) {
	c.WAClient.AddEventHandler(handler)
}

// Connect opens the websocket. It fails with ErrNotPaired when no session
// is stored.
func (c *Client) Connect() error {
	if !c.IsLoggedIn() {
		return ErrNotPaired
	}
	c.Log.Infof("Using existing session, connecting...")
	return c.WAClient.Connect()
}

// WaitConnected blocks until the first Connected event since the last
// disconnect, or until timeout.
func (c *Client) WaitConnected(ctx context.Context, timeout time.Duration) error {
	c.readyMu.Lock()
	ready := c.ready
	c.readyMu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("not connected after %s", timeout)
	}
}

// Disconnect disconnects from WhatsApp.
func (c *Client) Disconnect() {
	c.WAClient.Disconnect()
	c.setConnected(false)
}

// IsLoggedIn returns true if the client has stored credentials.
func (c *Client) IsLoggedIn() bool {
	return c.Device.ID != nil
}

// IsConnected returns true if currently connected to WhatsApp.
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

func (c *Client) setConnected(connected bool) {
	if c.connected.Swap(connected) == connected {
		return
	}
	c.readyMu.Lock()
	defer c.readyMu.Unlock()
	if connected {
		close(c.ready)
	} else {
		c.ready = make(chan struct{})
	}
}

// GetJID returns the client's JID.
func (c *Client) GetJID() types.JID {
	if c.Device.ID != nil {
		return *c.Device.ID
	}
	return types.JID{}
}

// GetQRChannel returns a channel for QR code events.
func (c *Client) GetQRChannel(ctx context.Context) (<-chan whatsmeow.QRChannelItem, error) {
	return c.WAClient.GetQRChannel(ctx)
}

// SendPresence sends presence update.
func (c *Client) SendPresence(ctx context.Context, presence types.Presence) error {
	return c.WAClient.SendPresence(ctx, presence)
}

// ResolvePN maps a LID to its phone-number JID using the mappings whatsmeow
// stores while syncing.
func (c *Client) ResolvePN(ctx context.Context, lid types.JID) (types.JID, error) {
	pn, err := c.WAClient.Store.LIDs.GetPNForLID(ctx, lid)
	if err != nil {
		return types.EmptyJID, err
	}
	if pn.IsEmpty() {
		return types.EmptyJID, fmt.Errorf("no phone number known for %s", lid)
	}
	return pn, nil
}
