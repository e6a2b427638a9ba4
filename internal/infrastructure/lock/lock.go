package lock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/andreyxaxa/Ledger-Outbox/internal/infrastructure"
	"github.com/andreyxaxa/Ledger-Outbox/pkg/logger"
	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/jonboulle/clockwork"
	goredislib "github.com/redis/go-redis/v9"
)

const keyPrefix = "ledger:lock:"

// shrinks the key TTL to the remaining minimum hold, only while we still own it.
var holdScript = goredislib.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

type Locker struct {
	client  goredislib.UniversalClient
	redsync *redsync.Redsync
	clock   clockwork.Clock
	l       logger.Interface
}

var _ infrastructure.Locker = (*Locker)(nil)

func New(client goredislib.UniversalClient, clock clockwork.Clock, l logger.Interface) *Locker {
	return &Locker{
		client:  client,
		redsync: redsync.New(goredis.NewPool(client)),
		clock:   clock,
		l:       l,
	}
}

// TryLock makes a single attempt. A lock held elsewhere is reported as (nil, false, nil).
func (lk *Locker) TryLock(ctx context.Context, name string, opts infrastructure.LeaseOptions) (infrastructure.Lease, bool, error) {
	if opts.AtMost <= 0 {
		return nil, false, fmt.Errorf("Locker - TryLock - lock %s: lockAtMostFor must be positive", name)
	}

	mutex := lk.redsync.NewMutex(
		keyPrefix+name,
		redsync.WithExpiry(opts.AtMost),
		redsync.WithTries(1),
	)

	if err := mutex.LockContext(ctx); err != nil {
		if isContention(err) {
			lk.l.Debug("Locker - TryLock - lock %s is held by another instance", name)

			return nil, false, nil
		}

		return nil, false, fmt.Errorf("Locker - TryLock - mutex.LockContext: %w", err)
	}

	return &lease{
		locker:     lk,
		mutex:      mutex,
		key:        keyPrefix + name,
		acquiredAt: lk.clock.Now(),
		atLeast:    opts.AtLeast,
	}, true, nil
}

func isContention(err error) bool {
	var taken *redsync.ErrTaken
	if errors.Is(err, redsync.ErrFailed) || errors.As(err, &taken) {
		return true
	}

	msg := err.Error()

	return strings.Contains(msg, "lock already taken") || strings.Contains(msg, "failed to acquire lock")
}

type lease struct {
	locker     *Locker
	mutex      *redsync.Mutex
	key        string
	acquiredAt time.Time
	atLeast    time.Duration
}

// Release frees the lock, or keeps it until acquiredAt+atLeast when the job ran shorter.
func (ls *lease) Release(ctx context.Context) error {
	remaining := ls.atLeast - ls.locker.clock.Since(ls.acquiredAt)
	if remaining > 0 {
		ms := remaining.Milliseconds()
		if ms < 1 {
			ms = 1
		}

		if err := holdScript.Run(ctx, ls.locker.client, []string{ls.key}, ls.mutex.Value(), ms).Err(); err != nil {
			return fmt.Errorf("Lease - Release - holdScript.Run: %w", err)
		}

		return nil
	}

	if _, err := ls.mutex.UnlockContext(ctx); err != nil {
		return fmt.Errorf("Lease - Release - mutex.UnlockContext: %w", err)
	}

	return nil
}
