package distlock

import (
	"context"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
)

// EtcdLocker acquires per-team-id leases backed by etcd sessions.
type EtcdLocker struct {
	client  *clientv3.Client
	ttl     time.Duration
	keyRoot string
}

// NewEtcdLocker builds a Locker over an existing etcd client. keyRoot
// is prefixed to every lock key, e.g. "orchestrator/lock/".
func NewEtcdLocker(client *clientv3.Client, keyRoot string, ttl time.Duration) *EtcdLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if keyRoot == "" {
		keyRoot = "orchestrator/lock/"
	}
	return &EtcdLocker{client: client, ttl: ttl, keyRoot: keyRoot}
}

func (l *EtcdLocker) Acquire(ctx context.Context, teamID string) (Lease, error) {
	session, err := concurrency.NewSession(l.client, concurrency.WithTTL(int(l.ttl.Seconds())))
	if err != nil {
		return nil, fmt.Errorf("distlock: create etcd session: %w", err)
	}

	mutex := concurrency.NewMutex(session, l.keyRoot+teamID)
	if err := mutex.TryLock(ctx); err != nil {
		session.Close()
		if err == concurrency.ErrLocked {
			return nil, ErrAlreadyLocked
		}
		return nil, fmt.Errorf("distlock: acquire etcd lock: %w", err)
	}

	return &etcdLease{session: session, mutex: mutex}, nil
}

type etcdLease struct {
	session *concurrency.Session
	mutex   *concurrency.Mutex
}

func (l *etcdLease) Release(ctx context.Context) error {
	if err := l.mutex.Unlock(ctx); err != nil {
		l.session.Close()
		return fmt.Errorf("distlock: release etcd lock: %w", err)
	}
	return l.session.Close()
}
