package corelock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/hetcore/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_Serializes(t *testing.T) {
	m := NewManager()
	ctx := context.Background()

	var active, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := m.WithLock(ctx, "dsp", func(ctx context.Context) error {
				n := atomic.AddInt32(&active, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&active, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, peak)
}

func TestManager_LockLifecycle(t *testing.T) {
	m := NewManager()
	ctx := context.Background()
	for i := 0; i < 1000; i++ {
		require.NoError(t, m.WithLock(ctx, fmt.Sprintf("core-%d", i), func(context.Context) error { return nil }))
	}
	assert.Zero(t, m.Held(), "entries leak after release")
}

func TestManager_ContextCancelledWhileWaiting(t *testing.T) {
	m := NewManager()
	hold := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = m.WithLock(context.Background(), "simcop", func(context.Context) error {
			close(started)
			<-hold
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := m.WithLock(ctx, "simcop", func(context.Context) error {
		t.Fatal("must not run")
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(hold)
}

type fakeLocker struct {
	mu       sync.Mutex
	locked   []string
	unlocked int
	err      error
}

func (f *fakeLocker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	f.locked = append(f.locked, key)
	f.mu.Unlock()
	return func(context.Context) error {
		f.mu.Lock()
		f.unlocked++
		f.mu.Unlock()
		return nil
	}, nil
}

func TestManager_DistributedLocker(t *testing.T) {
	locker := &fakeLocker{}
	m := NewManager(WithLocker(locker), WithTTL(time.Second))
	require.NoError(t, m.WithLock(context.Background(), "eve", func(context.Context) error { return nil }))
	assert.Equal(t, []string{"eve"}, locker.locked)
	assert.Equal(t, 1, locker.unlocked)

	locker.err = errors.New("redis down")
	ran := false
	err := m.WithLock(context.Background(), "eve", func(context.Context) error {
		ran = true
		return nil
	})
	assert.Error(t, err)
	assert.False(t, ran)
}
