package guard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mariovalmir/chatwoot/internal/constants"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var ErrLockTimeout = errors.New("timed out waiting for channel lock")

// ChannelLocker serializes work per inbox channel.
type ChannelLocker interface {
	WithLock(ctx context.Context, channelID int64, fn func(ctx context.Context) error) error
}

// KeyedMutex is the in-process ChannelLocker.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[int64]*refLock
}

type refLock struct {
	mu   sync.Mutex
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[int64]*refLock)}
}

func (k *KeyedMutex) WithLock(ctx context.Context, channelID int64, fn func(ctx context.Context) error) error {
	k.mu.Lock()
	l, ok := k.locks[channelID]
	if !ok {
		l = &refLock{}
		k.locks[channelID] = l
	}
	l.refs++
	k.mu.Unlock()

	defer func() {
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, channelID)
		}
		k.mu.Unlock()
	}()

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}

// LeaseLocker holds a lease key in a shared Backend so that several
// processes serialize on the same channel. The lease expires after ttl if
// its holder dies.
type LeaseLocker struct {
	backend Backend
	ttl     time.Duration
	poll    time.Duration
	logger  *logrus.Logger
}

func NewLeaseLocker(backend Backend, logger *logrus.Logger) *LeaseLocker {
	if logger == nil {
		logger = logrus.New()
	}
	return &LeaseLocker{
		backend: backend,
		ttl:     constants.ChannelLockTTL,
		poll:    constants.ChannelLockPoll,
		logger:  logger,
	}
}

func (l *LeaseLocker) WithLock(ctx context.Context, channelID int64, fn func(ctx context.Context) error) error {
	key := fmt.Sprintf(constants.ChannelLockKeyFormat, channelID)
	token := uuid.NewString()

	waitCtx, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()

	for {
		ok, err := l.backend.SetNX(waitCtx, key, token, l.ttl)
		if err != nil {
			return fmt.Errorf("failed to acquire channel lock: %w", err)
		}
		if ok {
			break
		}
		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return ErrLockTimeout
		case <-ticker.C:
		}
	}

	defer func() {
		// Released on a fresh context so a cancelled request still frees the lease.
		releaseCtx, releaseCancel := context.WithTimeout(context.Background(), time.Second)
		defer releaseCancel()
		if _, err := l.backend.CompareAndDelete(releaseCtx, key, token); err != nil && l.logger != nil {
			l.logger.WithFields(logrus.Fields{
				"channel_id": channelID,
				"error":      err,
			}).Warn("Failed to release channel lock, it expires with its lease")
		}
	}()

	return fn(ctx)
}
