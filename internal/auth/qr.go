package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/skip2/go-qrcode"
	"go.mau.fi/whatsmeow"
	waLog "go.mau.fi/whatsmeow/util/log"
)

var ErrQRTimeout = errors.New("QR code timeout")

// QRHandler renders pairing codes while a new device is linked.
type QRHandler struct {
	log waLog.Logger
	out io.Writer

	// SavePath, when set, also writes each code as a PNG.
	SavePath string
}

// NewQRHandler creates a QRHandler printing to out (os.Stdout if nil).
func NewQRHandler(out io.Writer, log waLog.Logger) *QRHandler {
	if out == nil {
		out = os.Stdout
	}
	return &QRHandler{log: log.Sub("QR"), out: out}
}

// HandleQRChannel consumes pairing events until success, failure or ctx
// cancellation.
func (h *QRHandler) HandleQRChannel(ctx context.Context, qrChan <-chan whatsmeow.QRChannelItem) error {
	codes := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case item, ok := <-qrChan:
			if !ok {
				return fmt.Errorf("pairing channel closed after %d codes", codes)
			}
			switch item.Event {
			case "code":
				codes++
				h.log.Infof("Scan the QR code below with WhatsApp (Linked Devices)")
				h.render(item.Code)
				if h.SavePath != "" {
					if err := h.SaveQRToFile(item.Code, h.SavePath); err != nil {
						h.log.Warnf("%v", err)
					}
				}
			case "timeout":
				h.log.Warnf("QR code timeout, run pair again for a new code")
				return ErrQRTimeout
			case "success":
				h.log.Infof("Successfully paired")
				return nil
			case "error":
				h.log.Errorf("QR error: %v", item.Error)
				return item.Error
			default:
				h.log.Debugf("Ignoring pairing event %q", item.Event)
			}
		}
	}
}

func (h *QRHandler) render(code string) {
	qr, err := qrcode.New(code, qrcode.Medium)
	if err != nil {
		h.log.Errorf("Failed to generate QR code: %v", err)
		fmt.Fprintln(h.out, "QR Code content:", code)
		return
	}
	fmt.Fprintln(h.out)
	fmt.Fprintln(h.out, qr.ToSmallString(false))
}

// SaveQRToFile writes code as a 256px PNG.
func (h *QRHandler) SaveQRToFile(code, path string) error {
	if err := qrcode.WriteFile(code, qrcode.Medium, 256, path); err != nil {
		return fmt.Errorf("failed to save QR code: %w", err)
	}
	h.log.Infof("QR code saved to %s", path)
	return nil
}
