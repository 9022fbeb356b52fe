package peerpool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thaligo/thali/internal/registry"
)

func TestDuplicateSubmissionIsNoOp(t *testing.T) {
	pool := New(4, nil)
	key := Key{ConnectionType: registry.TCPNative, PeerID: "peer-a"}

	started := make(chan struct{})
	release := make(chan struct{})
	var runs int32

	first := pool.Submit(context.Background(), key, func(ctx context.Context) {
		atomic.AddInt32(&runs, 1)
		close(started)
		<-release
	})
	require.True(t, first)

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("action never started")
	}

	second := pool.Submit(context.Background(), key, func(ctx context.Context) {
		atomic.AddInt32(&runs, 1)
	})
	assert.False(t, second, "submitting an in-flight key must be a no-op")

	close(release)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&runs))
}

func TestCancelAllowsResubmission(t *testing.T) {
	pool := New(4, nil)
	key := Key{ConnectionType: registry.Bluetooth, PeerID: "peer-b"}

	started := make(chan struct{})
	blocked := make(chan struct{})
	pool.Submit(context.Background(), key, func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		close(blocked)
	})

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("action never started")
	}

	pool.Cancel(key)
	select {
	case <-blocked:
	case <-time.After(time.Second):
		t.Fatal("cancel did not propagate to the running action")
	}

	assert.Eventually(t, func() bool {
		return pool.Submit(context.Background(), key, func(ctx context.Context) {})
	}, time.Second, 10*time.Millisecond)
}

func TestDistinctKeysRunConcurrently(t *testing.T) {
	pool := New(4, nil)
	var running int32
	var maxSeen int32
	done := make(chan struct{}, 2)

	action := func(ctx context.Context) {
		n := atomic.AddInt32(&running, 1)
		for {
			cur := atomic.LoadInt32(&maxSeen)
			if n <= cur || atomic.CompareAndSwapInt32(&maxSeen, cur, n) {
				break
			}
		}
		time.Sleep(100 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		done <- struct{}{}
	}

	pool.Submit(context.Background(), Key{ConnectionType: registry.TCPNative, PeerID: "a"}, action)
	pool.Submit(context.Background(), Key{ConnectionType: registry.TCPNative, PeerID: "b"}, action)

	<-done
	<-done
	assert.Equal(t, int32(2), atomic.LoadInt32(&maxSeen))
}
