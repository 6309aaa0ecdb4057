package entities

import "time"

// SessionStatus is the lifecycle phase of a tenant's provider connection.
type SessionStatus string

const (
	StatusStarting      SessionStatus = "starting"
	StatusQR            SessionStatus = "qr"
	StatusLoading       SessionStatus = "loading"
	StatusAuthenticated SessionStatus = "authenticated"
	StatusConnected     SessionStatus = "connected"
	StatusDisconnected  SessionStatus = "disconnected"
	StatusAuthFailure   SessionStatus = "auth_failure"
	StatusRestarting    SessionStatus = "restarting"
)

// ClientInfo identifies the provider account a session is paired with.
type ClientInfo struct {
	Phone string `json:"phone"`
	Name  string `json:"name"`
}

// SessionState is the snapshot of one tenant session. QRPayload is only
// populated while Status == qr; it is cleared on every transition away.
type SessionState struct {
	Status      SessionStatus `json:"status"`
	QRPayload   string        `json:"qr_payload,omitempty"`
	QRExpiresAt time.Time     `json:"qr_expires_at,omitempty"`
	ClientInfo  *ClientInfo   `json:"client_info,omitempty"`
	LastError   string        `json:"last_error,omitempty"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// InboxEntry is one message observed on a tenant session, kept in a bounded
// recent-history buffer and streamed live.
type InboxEntry struct {
	ID         string    `json:"id"`
	SessionKey string    `json:"session_key"`
	ChatID     string    `json:"chat_id"`
	FromMe     bool      `json:"from_me"`
	Body       string    `json:"body"`
	Type       string    `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
}
