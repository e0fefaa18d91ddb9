package distlock

import (
	"context"
	"fmt"

	consulapi "github.com/hashicorp/consul/api"
)

// ConsulLocker acquires per-team-id leases backed by Consul sessions
// and the KV store's check-and-set semantics.
type ConsulLocker struct {
	client  *consulapi.Client
	ttl     string
	keyRoot string
}

// NewConsulLocker builds a Locker over an existing Consul client.
func NewConsulLocker(client *consulapi.Client, keyRoot, ttl string) *ConsulLocker {
	if ttl == "" {
		ttl = "30s"
	}
	if keyRoot == "" {
		keyRoot = "orchestrator/lock/"
	}
	return &ConsulLocker{client: client, ttl: ttl, keyRoot: keyRoot}
}

func (l *ConsulLocker) Acquire(ctx context.Context, teamID string) (Lease, error) {
	sessionID, _, err := l.client.Session().Create(&consulapi.SessionEntry{
		Name:      "flowcrew-lock-" + teamID,
		TTL:       l.ttl,
		Behavior:  consulapi.SessionBehaviorRelease,
		LockDelay: 0,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("distlock: create consul session: %w", err)
	}

	key := l.keyRoot + teamID
	acquired, _, err := l.client.KV().Acquire(&consulapi.KVPair{
		Key:     key,
		Value:   []byte(sessionID),
		Session: sessionID,
	}, nil)
	if err != nil {
		l.client.Session().Destroy(sessionID, nil)
		return nil, fmt.Errorf("distlock: acquire consul lock: %w", err)
	}
	if !acquired {
		l.client.Session().Destroy(sessionID, nil)
		return nil, ErrAlreadyLocked
	}

	return &consulLease{client: l.client, key: key, sessionID: sessionID}, nil
}

type consulLease struct {
	client    *consulapi.Client
	key       string
	sessionID string
}

func (l *consulLease) Release(ctx context.Context) error {
	if _, _, err := l.client.KV().Release(&consulapi.KVPair{
		Key:     l.key,
		Session: l.sessionID,
	}, nil); err != nil {
		return fmt.Errorf("distlock: release consul lock: %w", err)
	}
	_, err := l.client.Session().Destroy(l.sessionID, nil)
	return err
}
