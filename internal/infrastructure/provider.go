package infrastructure

import (
	"context"
	"time"

	"github.com/elmyly/whaty/internal/entities"
)

// Event is a lifecycle or traffic signal observed on a live connection.
// The registry maps each one onto a state mutation or a broadcast.
type Event interface{ isEvent() }

type EventQR struct {
	Code      string
	ExpiresAt time.Time
}

type EventLoading struct{}

type EventAuthenticated struct{}

type EventReady struct {
	Phone string
	Name  string
}

type EventAuthFailure struct {
	Reason string
}

type EventDisconnected struct {
	Reason string
}

type EventMessage struct {
	ChatID    string
	FromMe    bool
	Body      string
	Type      string
	Timestamp time.Time
}

type EventAck struct {
	ChatID    string
	Timestamp time.Time
}

func (EventQR) isEvent()            {}
func (EventLoading) isEvent()       {}
func (EventAuthenticated) isEvent() {}
func (EventReady) isEvent()         {}
func (EventAuthFailure) isEvent()   {}
func (EventDisconnected) isEvent()  {}
func (EventMessage) isEvent()       {}
func (EventAck) isEvent()           {}

// Conn is one live link to the connectivity provider for a single session key.
// It is exclusively owned by the session registry; nobody else tears it down.
type Conn interface {
	SendMessage(ctx context.Context, target, body string, att *entities.Attachment) error
	// ResolveAddress maps normalized digits to a provider target, or
	// entities.ErrUnknownRecipient if the number is not registered.
	ResolveAddress(ctx context.Context, digits string) (string, error)
	ListChats(ctx context.Context) ([]entities.Chat, error)
	FetchMessages(ctx context.Context, chatID string, limit int) ([]entities.ChatMessage, error)
	Logout(ctx context.Context) error
	Teardown() error
}

// Connector opens connections. Open must not block on pairing or connection
// completion; progress is reported through onEvent.
type Connector interface {
	Open(key string, onEvent func(Event)) (Conn, error)
}
