package transport

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"
)

const eventBufferSize = 32

// whatsmeowTransport adapts a whatsmeow client to the Transport interface.
// Each instance gets its own sqlite device store under storeDir, so the
// same instance id reconnects to the same WhatsApp device after a restart.
type whatsmeowTransport struct {
	instanceID string
	client     *whatsmeow.Client
	handlerID  uint32

	mu     sync.Mutex
	closed bool
	events chan Event
}

// NewWhatsmeowFactory returns a Factory that builds whatsmeow-backed
// transports with per-instance sqlite session stores under storeDir.
func NewWhatsmeowFactory(storeDir string) Factory {
	return func(instanceID, name string) (Transport, error) {
		if err := os.MkdirAll(storeDir, 0o755); err != nil {
			return nil, fmt.Errorf("create session store dir: %w", err)
		}

		dsn := fmt.Sprintf("file:%s?_foreign_keys=on", filepath.Join(storeDir, instanceID+".db"))
		container, err := sqlstore.New(context.Background(), "sqlite3", dsn, waLog.Stdout("Database", "WARN", true))
		if err != nil {
			return nil, fmt.Errorf("open session store: %w", err)
		}

		device, err := container.GetFirstDevice(context.Background())
		if err != nil {
			return nil, fmt.Errorf("get device: %w", err)
		}

		t := &whatsmeowTransport{
			instanceID: instanceID,
			client:     whatsmeow.NewClient(device, waLog.Stdout("Client", "WARN", true)),
			events:     make(chan Event, eventBufferSize),
		}
		t.handlerID = t.client.AddEventHandler(t.handleEvent)
		return t, nil
	}
}

func (t *whatsmeowTransport) Events() <-chan Event {
	return t.events
}

// Start connects the client. For an unpaired device it drives the QR pairing
// loop, emitting each rotated code as a fresh pairing artifact.
func (t *whatsmeowTransport) Start(ctx context.Context) error {
	if t.client.Store.ID == nil {
		qrChan, err := t.client.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("get qr channel: %w", err)
		}
		if err := t.client.Connect(); err != nil {
			return fmt.Errorf("connect: %w", err)
		}

		for item := range qrChan {
			switch item.Event {
			case "code":
				t.emit(Event{Kind: EventPairingReady, PairingCode: item.Code})
			case "success":
				t.emit(Event{Kind: EventAuthenticated})
			case "timeout":
				return fmt.Errorf("pairing timed out before the code was scanned")
			default:
				return fmt.Errorf("pairing failed: %s", item.Event)
			}
		}
		return nil
	}

	if err := t.client.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

func (t *whatsmeowTransport) Send(ctx context.Context, target string, payload Payload) (string, error) {
	jid, err := parseTarget(target)
	if err != nil {
		return "", err
	}

	text := payload.Text
	if payload.MediaRef != "" {
		text = strings.TrimSpace(text + "\n" + payload.MediaRef)
	}

	resp, err := t.client.SendMessage(ctx, jid, &waE2E.Message{Conversation: proto.String(text)})
	if err != nil {
		return "", err
	}
	return string(resp.ID), nil
}

func (t *whatsmeowTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true

	t.client.RemoveEventHandler(t.handlerID)
	t.client.Disconnect()
	close(t.events)
	return nil
}

func (t *whatsmeowTransport) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Connected:
		address := ""
		if t.client.Store.ID != nil {
			address = t.client.Store.ID.User
		}
		t.emit(Event{Kind: EventReady, Address: address})
	case *events.Disconnected:
		t.emit(Event{Kind: EventDisconnected, Reason: "connection closed"})
	case *events.StreamReplaced:
		t.emit(Event{Kind: EventDisconnected, Reason: "stream replaced by another client"})
	case *events.LoggedOut:
		t.emit(Event{Kind: EventAuthFailed, Reason: fmt.Sprintf("logged out: %v", v.Reason)})
	}
}

func (t *whatsmeowTransport) emit(ev Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	select {
	case t.events <- ev:
	default:
		log.Warn().
			Str("instanceId", t.instanceID).
			Str("kind", string(ev.Kind)).
			Msg("transport event buffer full, dropping event")
	}
}

func parseTarget(target string) (types.JID, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return types.JID{}, fmt.Errorf("empty target address")
	}
	if strings.Contains(target, "@") {
		return types.ParseJID(target)
	}
	return types.NewJID(strings.TrimPrefix(target, "+"), types.DefaultUserServer), nil
}
