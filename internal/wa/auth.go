package wa

import (
	"context"
	"encoding/base64"

	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/ovidiomatos/waweb/internal/status"
)

// StartLogin drives the credential-linking flow. With stored credentials
// it just connects; otherwise it opens the QR channel before connecting
// and feeds each issued code into the lifecycle machine, which replaces
// the previous one and broadcasts it to waiting clients.
func (a *Adapter) StartLogin(ctx context.Context, machine *status.Machine) error {
	if err := machine.Transition(status.Connecting); err != nil {
		return err
	}

	if a.IsLoggedIn() {
		return a.Connect()
	}

	qrChan, err := a.GetQRChannel(ctx)
	if err != nil {
		return err
	}
	if err := a.Connect(); err != nil {
		return err
	}

	go func() {
		for item := range qrChan {
			switch item.Event {
			case "code":
				uri, err := qrDataURI(item.Code)
				if err != nil {
					a.logger.Error("failed to encode QR code", zap.Error(err))
					continue
				}
				if err := machine.SetQR(uri); err != nil {
					a.logger.Warn("ignoring QR code in current state", zap.Error(err))
				}
			case "success":
				a.logger.Info("QR pairing succeeded")
				return
			case "timeout":
				a.logger.Warn("QR channel timed out")
				a.bus.Emit("session.auth_timeout", nil)
				return
			default:
				if item.Error != nil {
					a.logger.Error("QR channel error", zap.Error(item.Error))
					a.bus.Emit("session.auth_failed", item.Error.Error())
					return
				}
			}
		}
	}()

	return nil
}

// qrDataURI renders a QR string as a PNG data URI for direct display in
// an <img> tag.
func qrDataURI(code string) (string, error) {
	png, err := qrcode.Encode(code, qrcode.Medium, 256)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
