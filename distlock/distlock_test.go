package distlock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopLocker_AlwaysAcquiresAndReleases(t *testing.T) {
	var l NoopLocker
	lease, err := l.Acquire(context.Background(), "team-1")
	require.NoError(t, err)
	require.NoError(t, lease.Release(context.Background()))
}

func TestNoopLocker_NeverContends(t *testing.T) {
	var l NoopLocker
	first, err := l.Acquire(context.Background(), "team-1")
	require.NoError(t, err)
	second, err := l.Acquire(context.Background(), "team-1")
	require.NoError(t, err)

	assert.NoError(t, first.Release(context.Background()))
	assert.NoError(t, second.Release(context.Background()))
}

func TestNewConsulLocker_DefaultsTTLAndKeyRoot(t *testing.T) {
	l := NewConsulLocker(nil, "", "")
	assert.Equal(t, "30s", l.ttl)
	assert.Equal(t, "orchestrator/lock/", l.keyRoot)
}

func TestNewConsulLocker_KeepsExplicitValues(t *testing.T) {
	l := NewConsulLocker(nil, "custom/", "10s")
	assert.Equal(t, "10s", l.ttl)
	assert.Equal(t, "custom/", l.keyRoot)
}

func TestNewEtcdLocker_DefaultsTTLAndKeyRoot(t *testing.T) {
	l := NewEtcdLocker(nil, "", 0)
	assert.Equal(t, 30*time.Second, l.ttl)
	assert.Equal(t, "orchestrator/lock/", l.keyRoot)
}

func TestNewEtcdLocker_KeepsExplicitValues(t *testing.T) {
	l := NewEtcdLocker(nil, "custom/", 5*time.Second)
	assert.Equal(t, 5*time.Second, l.ttl)
	assert.Equal(t, "custom/", l.keyRoot)
}
