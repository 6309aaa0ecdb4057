package infrastructure

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/elmyly/whaty/internal/entities"
)

// SessionRegistry owns one state record and at most one live connection
// handle per session key. All provider lifecycle signals funnel through it;
// nothing else ever tears a handle down.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*session

	connector  Connector
	bus        *Broadcaster
	inbox      *InboxBuffer
	retryDelay time.Duration
	qrTTL      time.Duration
	log        zerolog.Logger
}

// session is the per-key entry. gen increments every time a new handle is
// installed; stale callbacks and retry timers compare it before acting.
type session struct {
	key   string
	mu    sync.Mutex
	state entities.SessionState
	conn  Conn
	gen   int
}

func NewSessionRegistry(connector Connector, bus *Broadcaster, inbox *InboxBuffer, log zerolog.Logger) *SessionRegistry {
	return &SessionRegistry{
		sessions:   make(map[string]*session),
		connector:  connector,
		bus:        bus,
		inbox:      inbox,
		retryDelay: 5 * time.Second,
		qrTTL:      60 * time.Second,
		log:        log,
	}
}

// SetRetryDelay overrides the disconnect auto-retry backoff.
func (r *SessionRegistry) SetRetryDelay(d time.Duration) { r.retryDelay = d }

// getOrCreate returns the session entry for key, creating the state record
// lazily on first reference. created reports whether this call made it.
func (r *SessionRegistry) getOrCreate(key string) (s *session, created bool) {
	r.mu.RLock()
	s = r.sessions[key]
	r.mu.RUnlock()
	if s != nil {
		return s, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s = r.sessions[key]; s != nil {
		return s, false
	}
	s = &session{
		key: key,
		state: entities.SessionState{
			Status:    entities.StatusStarting,
			UpdatedAt: time.Now(),
		},
	}
	r.sessions[key] = s
	return s, true
}

// Ensure idempotently creates the state record and handle for key and returns
// the current snapshot. Connection bring-up runs asynchronously; completion is
// observed through the state stream.
func (r *SessionRegistry) Ensure(key string) entities.SessionState {
	s, created := r.getOrCreate(key)
	if created {
		go r.bringUp(s)
	}
	return r.snapshot(s)
}

// GetState returns the latest snapshot for key, creating the session lazily.
func (r *SessionRegistry) GetState(key string) entities.SessionState {
	return r.Ensure(key)
}

// Watch subscribes to the state stream for key. The current snapshot is
// delivered first; every subsequent mutation follows in publish order.
func (r *SessionRegistry) Watch(key string) *StateSub {
	s, created := r.getOrCreate(key)
	if created {
		go r.bringUp(s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return r.bus.SubscribeState(key, s.state)
}

// Restart tears down the current handle (best-effort) and installs a fresh
// one. It returns once the new handle is installed, not once it is connected.
func (r *SessionRegistry) Restart(key string) entities.SessionState {
	s, _ := r.getOrCreate(key)
	s.mu.Lock()
	r.setStateLocked(s, func(st *entities.SessionState) {
		st.Status = entities.StatusRestarting
		st.LastError = ""
	})
	s.mu.Unlock()
	r.bringUp(s)
	return r.snapshot(s)
}

// Logout requests a provider-side logout on the current handle, then performs
// the same teardown and reinstall as Restart. Logout errors are logged only.
func (r *SessionRegistry) Logout(key string) entities.SessionState {
	s, _ := r.getOrCreate(key)
	s.mu.Lock()
	conn := s.conn
	r.setStateLocked(s, func(st *entities.SessionState) {
		st.Status = entities.StatusRestarting
		st.LastError = ""
		st.ClientInfo = nil
	})
	s.mu.Unlock()

	if conn != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		if err := conn.Logout(ctx); err != nil {
			r.log.Warn().Str("session", key).Err(err).Msg("provider logout failed")
		}
		cancel()
	}
	r.bringUp(s)
	return r.snapshot(s)
}

// RequireConnected returns the live handle for key, or ErrNotReady when no
// handle exists or the session is not in the connected state.
func (r *SessionRegistry) RequireConnected(key string) (Conn, error) {
	r.mu.RLock()
	s := r.sessions[key]
	r.mu.RUnlock()
	if s == nil {
		return nil, entities.ErrNotReady
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil || s.state.Status != entities.StatusConnected {
		return nil, entities.ErrNotReady
	}
	return s.conn, nil
}

// ConnectedCount returns how many sessions are currently connected.
func (r *SessionRegistry) ConnectedCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, s := range r.sessions {
		s.mu.Lock()
		if s.state.Status == entities.StatusConnected {
			n++
		}
		s.mu.Unlock()
	}
	return n
}

// TeardownAll releases every live handle. Used on shutdown.
func (r *SessionRegistry) TeardownAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		s.mu.Lock()
		conn := s.conn
		s.conn = nil
		s.gen++
		s.mu.Unlock()
		if conn != nil {
			if err := conn.Teardown(); err != nil {
				r.log.Warn().Str("session", s.key).Err(err).Msg("teardown failed")
			}
		}
	}
}

// bringUp replaces the session's handle with a freshly opened one. The old
// handle is released first so two handles never emit events under one key.
func (r *SessionRegistry) bringUp(s *session) {
	s.mu.Lock()
	old := s.conn
	s.conn = nil
	s.gen++
	gen := s.gen
	r.setStateLocked(s, func(st *entities.SessionState) {
		st.Status = entities.StatusStarting
	})
	s.mu.Unlock()

	if old != nil {
		if err := old.Teardown(); err != nil {
			r.log.Warn().Str("session", s.key).Err(err).Msg("teardown of previous handle failed")
		}
	}

	conn, err := r.connector.Open(s.key, func(evt Event) {
		r.handleEvent(s, gen, evt)
	})

	s.mu.Lock()
	if s.gen != gen {
		// Superseded by a concurrent restart while opening.
		s.mu.Unlock()
		if conn != nil {
			if terr := conn.Teardown(); terr != nil {
				r.log.Warn().Str("session", s.key).Err(terr).Msg("teardown of superseded handle failed")
			}
		}
		return
	}
	if err != nil {
		r.log.Error().Str("session", s.key).Err(err).Msg("connection bring-up failed")
		r.setStateLocked(s, func(st *entities.SessionState) {
			st.Status = entities.StatusDisconnected
			st.LastError = err.Error()
		})
		r.scheduleRetryLocked(s, gen)
		s.mu.Unlock()
		return
	}
	s.conn = conn
	s.mu.Unlock()
}

// scheduleRetryLocked arms the auto-reconnect timer. The timer only fires a
// reconnect if the generation it was armed for is still current and the
// session is still disconnected; an explicit restart supersedes it.
func (r *SessionRegistry) scheduleRetryLocked(s *session, gen int) {
	time.AfterFunc(r.retryDelay, func() {
		s.mu.Lock()
		stale := s.gen != gen || s.state.Status != entities.StatusDisconnected
		s.mu.Unlock()
		if stale {
			return
		}
		r.bringUp(s)
	})
}

// handleEvent maps one provider signal onto a state mutation or a broadcast.
// It must never panic past the registry boundary and must tolerate duplicate
// signals from the provider.
func (r *SessionRegistry) handleEvent(s *session, gen int, evt Event) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error().Str("session", s.key).Interface("panic", rec).Msg("provider event handler panicked")
		}
	}()

	switch e := evt.(type) {
	case EventMessage:
		s.mu.Lock()
		stale := s.gen != gen
		s.mu.Unlock()
		if stale {
			return
		}
		entry := entities.InboxEntry{
			ID:         uuid.NewString(),
			SessionKey: s.key,
			ChatID:     e.ChatID,
			FromMe:     e.FromMe,
			Body:       e.Body,
			Type:       e.Type,
			Timestamp:  e.Timestamp,
		}
		r.inbox.Add(entry)
		r.bus.PublishInbox(entry)
		return

	case EventAck:
		s.mu.Lock()
		stale := s.gen != gen
		s.mu.Unlock()
		if stale {
			return
		}
		r.bus.PublishInbox(entities.InboxEntry{
			ID:         uuid.NewString(),
			SessionKey: s.key,
			ChatID:     e.ChatID,
			FromMe:     true,
			Type:       "ack",
			Timestamp:  e.Timestamp,
		})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		// Event from a handle that has already been replaced.
		return
	}

	switch e := evt.(type) {
	case EventQR:
		if s.state.Status == entities.StatusQR && s.state.QRPayload == e.Code {
			return
		}
		expires := e.ExpiresAt
		if expires.IsZero() {
			expires = time.Now().Add(r.qrTTL)
		}
		r.setStateLocked(s, func(st *entities.SessionState) {
			st.Status = entities.StatusQR
			st.QRPayload = e.Code
			st.QRExpiresAt = expires
		})

	case EventLoading:
		r.setStateLocked(s, func(st *entities.SessionState) {
			st.Status = entities.StatusLoading
		})

	case EventAuthenticated:
		if s.state.Status == entities.StatusAuthenticated {
			return
		}
		r.setStateLocked(s, func(st *entities.SessionState) {
			st.Status = entities.StatusAuthenticated
			st.LastError = ""
		})

	case EventReady:
		if s.state.Status == entities.StatusConnected {
			return
		}
		r.setStateLocked(s, func(st *entities.SessionState) {
			st.Status = entities.StatusConnected
			st.ClientInfo = &entities.ClientInfo{Phone: e.Phone, Name: e.Name}
			st.LastError = ""
		})

	case EventAuthFailure:
		// Terminal until an explicit restart.
		r.setStateLocked(s, func(st *entities.SessionState) {
			st.Status = entities.StatusAuthFailure
			st.LastError = e.Reason
		})

	case EventDisconnected:
		if s.state.Status == entities.StatusDisconnected {
			return
		}
		r.setStateLocked(s, func(st *entities.SessionState) {
			st.Status = entities.StatusDisconnected
			st.LastError = e.Reason
		})
		r.scheduleRetryLocked(s, gen)
	}
}

// setStateLocked mutates the state record and publishes the new snapshot.
// Callers hold s.mu, which serializes mutations per key and guarantees
// subscribers observe them in production order. The QR payload is cleared on
// every transition away from qr, and UpdatedAt strictly advances.
func (r *SessionRegistry) setStateLocked(s *session, mutate func(*entities.SessionState)) {
	prev := s.state.UpdatedAt
	mutate(&s.state)
	if s.state.Status != entities.StatusQR {
		s.state.QRPayload = ""
		s.state.QRExpiresAt = time.Time{}
	}
	now := time.Now()
	if !now.After(prev) {
		now = prev.Add(time.Nanosecond)
	}
	s.state.UpdatedAt = now
	r.bus.PublishState(s.key, s.state)
}

func (r *SessionRegistry) snapshot(s *session) entities.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
