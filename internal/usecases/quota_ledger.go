package usecases

import (
	"fmt"
	"sync"

	"github.com/elmyly/whaty/internal/entities"
	"github.com/elmyly/whaty/internal/interfaces"
)

// QuotaLedger serializes quota reads and writes per user so concurrent sends
// can never double-spend. Every read-modify-write runs inside a per-user
// critical section.
type QuotaLedger struct {
	users interfaces.UserStore

	mu    sync.Mutex
	locks map[int]*sync.Mutex
}

func NewQuotaLedger(users interfaces.UserStore) *QuotaLedger {
	return &QuotaLedger{
		users: users,
		locks: make(map[int]*sync.Mutex),
	}
}

func (l *QuotaLedger) userLock(userID int) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, exists := l.locks[userID]
	if !exists {
		lock = &sync.Mutex{}
		l.locks[userID] = lock
	}
	return lock
}

func (l *QuotaLedger) load(userID int) (*entities.User, error) {
	user, err := l.users.GetByID(userID)
	if err != nil {
		return nil, fmt.Errorf("load user %d: %w", userID, err)
	}
	if user == nil {
		return nil, entities.ErrNotFound
	}
	return user, nil
}

// Check fails with QuotaExceededError when fewer than needed messages remain.
// Pure read, no mutation.
func (l *QuotaLedger) Check(userID, needed int) (entities.QuotaInfo, error) {
	user, err := l.load(userID)
	if err != nil {
		return entities.QuotaInfo{}, err
	}
	quota := user.Quota()
	if quota.Remaining < needed {
		return quota, &entities.QuotaExceededError{Limit: quota.Limit, Used: quota.Used, Remaining: quota.Remaining}
	}
	return quota, nil
}

// Consume re-reads the record, re-validates remaining >= count and increments
// quota_used. The re-check closes the race between an earlier Check and this
// decrement.
func (l *QuotaLedger) Consume(userID, count int) (entities.QuotaInfo, error) {
	lock := l.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	user, err := l.load(userID)
	if err != nil {
		return entities.QuotaInfo{}, err
	}
	quota := user.Quota()
	if quota.Remaining < count {
		return quota, &entities.QuotaExceededError{Limit: quota.Limit, Used: quota.Used, Remaining: quota.Remaining}
	}

	user.QuotaUsed += count
	if err := l.users.UpdateQuota(user.ID, user.QuotaLimit, user.QuotaUsed); err != nil {
		return quota, fmt.Errorf("persist quota for user %d: %w", userID, err)
	}
	return user.Quota(), nil
}

// Grant raises the quota limit by delta (credit purchase or admin top-up).
func (l *QuotaLedger) Grant(userID, delta int) (entities.QuotaInfo, error) {
	lock := l.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	user, err := l.load(userID)
	if err != nil {
		return entities.QuotaInfo{}, err
	}
	user.QuotaLimit += delta
	if err := l.users.UpdateQuota(user.ID, user.QuotaLimit, user.QuotaUsed); err != nil {
		return user.Quota(), fmt.Errorf("persist quota for user %d: %w", userID, err)
	}
	return user.Quota(), nil
}
