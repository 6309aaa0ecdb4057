package infrastructure

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/elmyly/whaty/internal/entities"
)

const subscriberBuffer = 16

// StateSub receives session-state snapshots for one key. C is closed when the
// subscriber is dropped or unsubscribed.
type StateSub struct {
	Key string
	C   chan entities.SessionState
}

// InboxSub receives live inbox entries for one key.
type InboxSub struct {
	Key string
	C   chan entities.InboxEntry
}

// Broadcaster fans session-state and inbox updates out to live subscribers,
// keyed by session key. Publishing never blocks: a subscriber whose channel
// is full is dropped and implicitly unsubscribed.
type Broadcaster struct {
	mu        sync.RWMutex
	stateSubs map[string]map[*StateSub]struct{}
	inboxSubs map[string]map[*InboxSub]struct{}
	log       zerolog.Logger
}

func NewBroadcaster(log zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		stateSubs: make(map[string]map[*StateSub]struct{}),
		inboxSubs: make(map[string]map[*InboxSub]struct{}),
		log:       log,
	}
}

// SubscribeState registers a subscriber and delivers the given snapshot as its
// first message, before any update published after registration. Callers must
// capture the snapshot and register atomically with respect to publishers
// (the session registry does this under its per-session lock).
func (b *Broadcaster) SubscribeState(key string, snapshot entities.SessionState) *StateSub {
	sub := &StateSub{Key: key, C: make(chan entities.SessionState, subscriberBuffer)}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stateSubs[key] == nil {
		b.stateSubs[key] = make(map[*StateSub]struct{})
	}
	b.stateSubs[key][sub] = struct{}{}
	sub.C <- snapshot
	return sub
}

// PublishState delivers a state snapshot to every live subscriber for key.
func (b *Broadcaster) PublishState(key string, state entities.SessionState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.stateSubs[key] {
		select {
		case sub.C <- state:
		default:
			// Slow subscriber: drop it rather than block the producer.
			b.log.Warn().Str("session", key).Msg("dropping slow state subscriber")
			delete(b.stateSubs[key], sub)
			close(sub.C)
		}
	}
}

// UnsubscribeState removes a subscriber. Safe to call after a drop.
func (b *Broadcaster) UnsubscribeState(sub *StateSub) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if subs, ok := b.stateSubs[sub.Key]; ok {
		if _, live := subs[sub]; live {
			delete(subs, sub)
			close(sub.C)
		}
	}
}

// SubscribeInbox registers a live-only inbox subscriber for key. Catch-up is
// served separately by the bounded recent-history buffer.
func (b *Broadcaster) SubscribeInbox(key string) *InboxSub {
	sub := &InboxSub{Key: key, C: make(chan entities.InboxEntry, subscriberBuffer)}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.inboxSubs[key] == nil {
		b.inboxSubs[key] = make(map[*InboxSub]struct{})
	}
	b.inboxSubs[key][sub] = struct{}{}
	return sub
}

// PublishInbox delivers an entry to subscribers of its session key only.
func (b *Broadcaster) PublishInbox(entry entities.InboxEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.inboxSubs[entry.SessionKey] {
		select {
		case sub.C <- entry:
		default:
			b.log.Warn().Str("session", entry.SessionKey).Msg("dropping slow inbox subscriber")
			delete(b.inboxSubs[entry.SessionKey], sub)
			close(sub.C)
		}
	}
}

// UnsubscribeInbox removes a subscriber. Safe to call after a drop.
func (b *Broadcaster) UnsubscribeInbox(sub *InboxSub) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if subs, ok := b.inboxSubs[sub.Key]; ok {
		if _, live := subs[sub]; live {
			delete(subs, sub)
			close(sub.C)
		}
	}
}
