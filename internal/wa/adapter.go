package wa

import (
	"context"
	"fmt"
	"strings"

	"go.mau.fi/whatsmeow"
	wastore "go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.uber.org/zap"

	"github.com/ovidiomatos/waweb/internal/bus"
	"github.com/ovidiomatos/waweb/internal/model"
	"github.com/ovidiomatos/waweb/internal/session"
	"github.com/ovidiomatos/waweb/internal/store"

	_ "github.com/mattn/go-sqlite3"
)

// Adapter owns the single whatsmeow session handle. All provider actions
// and events go through it; nothing it does is allowed to crash the
// process — failures surface as errors to the caller or as bus events.
type Adapter struct {
	client    *whatsmeow.Client
	container *sqlstore.Container
	bus       *bus.Bus
	logger    *zap.Logger
	session   string
}

// NewAdapter creates the WhatsApp adapter for the given session.
func NewAdapter(ctx context.Context, sessionName string, b *bus.Bus, logger *zap.Logger) (*Adapter, error) {
	// Device name shown on the phone's linked devices list.
	wastore.SetOSInfo("WAWeb", [3]uint32{0, 1, 0})

	dbPath := session.CredentialDBPath(sessionName)

	container, err := sqlstore.New(ctx, "sqlite3",
		fmt.Sprintf("file:%s?_foreign_keys=on", dbPath),
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("create credential store: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("get device store: %w", err)
	}

	client := whatsmeow.NewClient(deviceStore, nil)

	return &Adapter{
		client:    client,
		container: container,
		bus:       b,
		logger:    logger,
		session:   sessionName,
	}, nil
}

// Client returns the underlying whatsmeow client.
func (a *Adapter) Client() *whatsmeow.Client {
	return a.client
}

// IsLoggedIn returns whether the adapter has valid credentials.
func (a *Adapter) IsLoggedIn() bool {
	return a.client.Store.ID != nil
}

// Connect initiates or resumes the WhatsApp connection. Idempotent:
// whatsmeow reports an error on double-connect which is swallowed here.
func (a *Adapter) Connect() error {
	if a.client.IsConnected() {
		return nil
	}
	a.logger.Info("connecting to WhatsApp")
	return a.client.Connect()
}

// Disconnect terminates the WhatsApp connection.
func (a *Adapter) Disconnect() {
	a.logger.Info("disconnecting from WhatsApp")
	a.client.Disconnect()
}

// Logout invalidates the session and removes credentials.
func (a *Adapter) Logout(ctx context.Context) error {
	return a.client.Logout(ctx)
}

// RegisterEventHandler adds a handler for whatsmeow events.
func (a *Adapter) RegisterEventHandler(handler whatsmeow.EventHandler) {
	a.client.AddEventHandler(handler)
}

// GetQRChannel returns the QR channel for pairing. Must be called before Connect.
func (a *Adapter) GetQRChannel(ctx context.Context) (<-chan whatsmeow.QRChannelItem, error) {
	if a.IsLoggedIn() {
		return nil, fmt.Errorf("already logged in")
	}
	ch, err := a.client.GetQRChannel(ctx)
	if err != nil {
		return nil, fmt.Errorf("get QR channel: %w", err)
	}
	return ch, nil
}

// PairPhone requests a pairing code for the given phone number, the
// QR-less linking alternative. Non-digits are stripped first.
func (a *Adapter) PairPhone(ctx context.Context, phone string) (string, error) {
	digits := digitsOnly(phone)
	if digits == "" {
		return "", fmt.Errorf("phone number %q has no digits", phone)
	}
	code, err := a.client.PairPhone(ctx, digits, true, whatsmeow.PairClientChrome, "Chrome (Linux)")
	if err != nil {
		return "", fmt.Errorf("request pairing code: %w", err)
	}
	return code, nil
}

// SelfUser returns the session owner's identity, or nil when not linked.
func (a *Adapter) SelfUser() *model.User {
	id := a.client.Store.ID
	if id == nil {
		return nil
	}
	name := a.client.Store.PushName
	if name == "" {
		name = "Me"
	}
	return &model.User{
		ID:   model.StripDevice(id.String()),
		Name: name,
	}
}

// Contacts returns a snapshot of the device store's contacts.
func (a *Adapter) Contacts(ctx context.Context) []store.Contact {
	all, err := a.client.Store.Contacts.GetAllContacts(ctx)
	if err != nil {
		a.logger.Warn("failed to get contacts from device store", zap.Error(err))
		return nil
	}
	var contacts []store.Contact
	for jid, info := range all {
		contacts = append(contacts, store.Contact{
			JID:      jid.ToNonAD().String(),
			Name:     info.FullName,
			PushName: info.PushName,
		})
	}
	return contacts
}

// parseJID resolves a wire conversation id to a whatsmeow JID. Bare
// phone numbers get the direct-chat server appended, matching what the
// browser sends for new chats.
func parseJID(jid string) (types.JID, error) {
	if !strings.ContainsRune(jid, '@') {
		digits := digitsOnly(jid)
		if digits == "" {
			return types.EmptyJID, fmt.Errorf("invalid recipient %q", jid)
		}
		return types.NewJID(digits, types.DefaultUserServer), nil
	}
	parsed, err := types.ParseJID(jid)
	if err != nil {
		return types.EmptyJID, fmt.Errorf("parse JID %q: %w", jid, err)
	}
	return parsed, nil
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
