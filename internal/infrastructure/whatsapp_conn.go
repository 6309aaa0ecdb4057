package infrastructure

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow"
	waProto "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/elmyly/whaty/internal/entities"
)

const chatCacheSize = 50

// WhatsAppConnector opens whatsmeow-backed connections, one SQLite device
// store per session key under baseDir.
type WhatsAppConnector struct {
	baseDir string
	log     zerolog.Logger
}

func NewWhatsAppConnector(baseDir string, log zerolog.Logger) (*WhatsAppConnector, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create device directory: %w", err)
	}
	return &WhatsAppConnector{baseDir: baseDir, log: log}, nil
}

// Open creates a client bound to the key's device store and starts connecting.
// It returns once the connection attempt is underway; pairing and connection
// progress arrive through onEvent.
func (c *WhatsAppConnector) Open(key string, onEvent func(Event)) (Conn, error) {
	dbPath := filepath.Join(c.baseDir, fmt.Sprintf("session_%s.db", key))
	dbLog := waLog.Stdout("Database", "ERROR", true)
	container, err := sqlstore.New(context.Background(), "sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)", dbLog)
	if err != nil {
		return nil, fmt.Errorf("open device store: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(context.Background())
	if err != nil {
		return nil, fmt.Errorf("get device: %w", err)
	}

	clientLog := waLog.Stdout("Client", "ERROR", true)
	client := whatsmeow.NewClient(deviceStore, clientLog)

	conn := &whatsAppConn{
		client:  client,
		onEvent: onEvent,
		recent:  make(map[string][]entities.ChatMessage),
		log:     c.log.With().Str("session", key).Logger(),
	}
	client.AddEventHandler(conn.handleEvent)

	if client.Store.ID == nil {
		// New login: QR channel must be requested before connecting.
		qrChan, err := client.GetQRChannel(context.Background())
		if err != nil {
			return nil, fmt.Errorf("get qr channel: %w", err)
		}
		if err := client.Connect(); err != nil {
			return nil, fmt.Errorf("connect: %w", err)
		}
		go conn.consumeQR(qrChan)
	} else {
		if err := client.Connect(); err != nil {
			return nil, fmt.Errorf("connect: %w", err)
		}
	}

	return conn, nil
}

// whatsAppConn adapts one *whatsmeow.Client to the provider Conn interface.
type whatsAppConn struct {
	client  *whatsmeow.Client
	onEvent func(Event)
	log     zerolog.Logger

	// whatsmeow has no on-demand history fetch; FetchMessages serves the
	// messages this handle has observed, bounded per chat.
	mu     sync.RWMutex
	recent map[string][]entities.ChatMessage
}

func (w *whatsAppConn) consumeQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for evt := range qrChan {
		switch evt.Event {
		case "code":
			w.onEvent(EventQR{Code: evt.Code, ExpiresAt: time.Now().Add(evt.Timeout)})
		case "success":
			w.onEvent(EventAuthenticated{})
		case "timeout":
			w.onEvent(EventDisconnected{Reason: "pairing code expired"})
		}
	}
}

func (w *whatsAppConn) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Connected:
		phone, name := "", ""
		if w.client.Store.ID != nil {
			phone = w.client.Store.ID.User
			name = w.client.Store.PushName
		}
		w.onEvent(EventReady{Phone: phone, Name: name})

	case *events.OfflineSyncPreview:
		w.onEvent(EventLoading{})

	case *events.PairSuccess:
		w.onEvent(EventAuthenticated{})

	case *events.LoggedOut:
		w.onEvent(EventAuthFailure{Reason: "logged out by provider"})

	case *events.StreamReplaced:
		w.onEvent(EventDisconnected{Reason: "stream replaced by another device"})

	case *events.Disconnected:
		w.onEvent(EventDisconnected{Reason: "connection closed"})

	case *events.Message:
		if v.Info.IsGroup {
			return
		}
		body := extractBody(v)
		msgType := v.Info.Type
		if msgType == "" {
			msgType = "text"
		}
		msg := entities.ChatMessage{
			ID:        v.Info.ID,
			ChatID:    v.Info.Chat.String(),
			FromMe:    v.Info.IsFromMe,
			Body:      body,
			Type:      msgType,
			Timestamp: v.Info.Timestamp.Unix(),
		}
		w.remember(msg)
		w.onEvent(EventMessage{
			ChatID:    msg.ChatID,
			FromMe:    msg.FromMe,
			Body:      msg.Body,
			Type:      msg.Type,
			Timestamp: v.Info.Timestamp,
		})

	case *events.Receipt:
		if v.Type == types.ReceiptTypeDelivered {
			w.onEvent(EventAck{ChatID: v.MessageSource.Chat.String(), Timestamp: v.Timestamp})
		}
	}
}

func extractBody(evt *events.Message) string {
	if evt.Message == nil {
		return ""
	}
	if evt.Message.Conversation != nil {
		return evt.Message.GetConversation()
	}
	if evt.Message.ExtendedTextMessage != nil {
		return evt.Message.ExtendedTextMessage.GetText()
	}
	if evt.Message.ImageMessage != nil {
		return evt.Message.ImageMessage.GetCaption()
	}
	return ""
}

func (w *whatsAppConn) remember(msg entities.ChatMessage) {
	w.mu.Lock()
	defer w.mu.Unlock()
	msgs := append(w.recent[msg.ChatID], msg)
	if len(msgs) > chatCacheSize {
		msgs = msgs[len(msgs)-chatCacheSize:]
	}
	w.recent[msg.ChatID] = msgs
}

func (w *whatsAppConn) SendMessage(ctx context.Context, target, body string, att *entities.Attachment) error {
	jid, err := types.ParseJID(target)
	if err != nil {
		return fmt.Errorf("invalid target %q: %w", target, err)
	}

	var msg *waProto.Message
	if att != nil {
		msg, err = w.buildMediaMessage(ctx, body, att)
		if err != nil {
			return err
		}
	} else {
		msg = &waProto.Message{Conversation: proto.String(body)}
	}

	_, err = w.client.SendMessage(ctx, jid, msg)
	return err
}

func (w *whatsAppConn) buildMediaMessage(ctx context.Context, caption string, att *entities.Attachment) (*waProto.Message, error) {
	if strings.HasPrefix(att.MimeType, "image/") {
		uploaded, err := w.client.Upload(ctx, att.Data, whatsmeow.MediaImage)
		if err != nil {
			return nil, fmt.Errorf("upload image: %w", err)
		}
		return &waProto.Message{ImageMessage: &waProto.ImageMessage{
			Caption:       proto.String(caption),
			Mimetype:      proto.String(att.MimeType),
			URL:           proto.String(uploaded.URL),
			DirectPath:    proto.String(uploaded.DirectPath),
			MediaKey:      uploaded.MediaKey,
			FileEncSHA256: uploaded.FileEncSHA256,
			FileSHA256:    uploaded.FileSHA256,
			FileLength:    proto.Uint64(uploaded.FileLength),
		}}, nil
	}

	uploaded, err := w.client.Upload(ctx, att.Data, whatsmeow.MediaDocument)
	if err != nil {
		return nil, fmt.Errorf("upload document: %w", err)
	}
	return &waProto.Message{DocumentMessage: &waProto.DocumentMessage{
		Caption:       proto.String(caption),
		FileName:      proto.String(att.FileName),
		Mimetype:      proto.String(att.MimeType),
		URL:           proto.String(uploaded.URL),
		DirectPath:    proto.String(uploaded.DirectPath),
		MediaKey:      uploaded.MediaKey,
		FileEncSHA256: uploaded.FileEncSHA256,
		FileSHA256:    uploaded.FileSHA256,
		FileLength:    proto.Uint64(uploaded.FileLength),
	}}, nil
}

func (w *whatsAppConn) ResolveAddress(ctx context.Context, digits string) (string, error) {
	resp, err := w.client.IsOnWhatsApp(ctx, []string{"+" + digits})
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", digits, err)
	}
	if len(resp) == 0 || !resp[0].IsIn {
		return "", entities.ErrUnknownRecipient
	}
	return resp[0].JID.String(), nil
}

func (w *whatsAppConn) ListChats(ctx context.Context) ([]entities.Chat, error) {
	contacts, err := w.client.Store.Contacts.GetAllContacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	chats := make([]entities.Chat, 0, len(contacts))
	for jid, info := range contacts {
		name := info.FullName
		if name == "" {
			name = info.PushName
		}
		chats = append(chats, entities.Chat{ID: jid.String(), Name: name})
	}
	return chats, nil
}

func (w *whatsAppConn) FetchMessages(_ context.Context, chatID string, limit int) ([]entities.ChatMessage, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	msgs := w.recent[chatID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]entities.ChatMessage, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (w *whatsAppConn) Logout(ctx context.Context) error {
	return w.client.Logout(ctx)
}

func (w *whatsAppConn) Teardown() error {
	w.client.RemoveEventHandlers()
	w.client.Disconnect()
	return nil
}
