package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeGuard_OneMergePerKeyAtATime(t *testing.T) {
	guard := newMergeGuard(nil)
	var inside, maxInside, calls, leaders atomic.Int32
	merge := func() (mergeOutcome, error) {
		calls.Add(1)
		n := inside.Add(1)
		for {
			m := maxInside.Load()
			if n <= m || maxInside.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inside.Add(-1)
		return mergeOutcome{size: 1, merged: true}, nil
	}

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			out, led, err := guard.run(context.Background(), "f1", merge, nil)
			if assert.NoError(t, err) {
				assert.True(t, out.merged)
			}
			if led {
				leaders.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), maxInside.Load())
	assert.Equal(t, calls.Load(), leaders.Load(), "every merge run has exactly one leading caller")
}

func TestMergeGuard_KeysAreIndependent(t *testing.T) {
	guard := newMergeGuard(nil)
	unblock := make(chan struct{})
	defer close(unblock)
	go func() {
		_, _, _ = guard.run(context.Background(), "a", func() (mergeOutcome, error) {
			<-unblock
			return mergeOutcome{}, nil
		}, nil)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	out, led, err := guard.run(ctx, "b", func() (mergeOutcome, error) {
		return mergeOutcome{size: 2, merged: true}, nil
	}, nil)
	require.NoError(t, err)
	assert.True(t, led)
	assert.Equal(t, int64(2), out.size)
}

func TestMergeGuard_WaitHonoursContext(t *testing.T) {
	guard := newMergeGuard(nil)
	entered := make(chan struct{})
	unblock := make(chan struct{})
	afterCalled := make(chan struct{})

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, _, err := guard.run(leaderCtx, "f1", func() (mergeOutcome, error) {
			close(entered)
			<-unblock
			return mergeOutcome{size: 3, merged: true}, nil
		}, func(ctx context.Context, out mergeOutcome) {
			assert.NoError(t, ctx.Err(), "the notification context outlives the caller")
			close(afterCalled)
		})
		leaderErr <- err
	}()
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, led, err := guard.run(ctx, "f1", func() (mergeOutcome, error) {
		t.Error("a second merge must not start while the first is running")
		return mergeOutcome{}, nil
	}, nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, led)

	cancelLeader()
	require.ErrorIs(t, <-leaderErr, context.Canceled)

	// 调用方离开后合并和通知仍然完成
	close(unblock)
	select {
	case <-afterCalled:
	case <-time.After(time.Second):
		t.Fatal("after hook was not called once the merge finished")
	}
}

func TestMergeGuard_LeaseFailureSkipsMerge(t *testing.T) {
	var events []string
	guard := newMergeGuard(recordingLocker{name: "lease", log: &events, err: errors.New("redis down")})

	_, _, err := guard.run(context.Background(), "f1", func() (mergeOutcome, error) {
		t.Error("merge ran without the lease")
		return mergeOutcome{}, nil
	}, nil)
	require.Error(t, err)
	assert.Empty(t, events)
}

func TestMergeGuard_AfterRunsOnlyWhenMerged(t *testing.T) {
	var events []string
	guard := newMergeGuard(recordingLocker{name: "lease", log: &events})
	after := func(context.Context, mergeOutcome) { events = append(events, "after") }

	_, _, err := guard.run(context.Background(), "f1", func() (mergeOutcome, error) {
		return mergeOutcome{}, nil
	}, after)
	require.NoError(t, err)
	assert.Equal(t, []string{"acquire lease", "release lease"}, events)

	events = nil
	_, _, err = guard.run(context.Background(), "f1", func() (mergeOutcome, error) {
		return mergeOutcome{size: 1, merged: true}, nil
	}, after)
	require.NoError(t, err)
	assert.Equal(t, []string{"acquire lease", "release lease", "after"}, events)
}

type recordingLocker struct {
	name string
	log  *[]string
	err  error
}

func (l recordingLocker) Acquire(context.Context, string) (func(), error) {
	if l.err != nil {
		return nil, l.err
	}
	*l.log = append(*l.log, "acquire "+l.name)
	return func() { *l.log = append(*l.log, "release "+l.name) }, nil
}

func TestChainMergeLockers_ReleasesInReverseOrder(t *testing.T) {
	var events []string
	chain := ChainMergeLockers(recordingLocker{name: "local", log: &events}, nil, recordingLocker{name: "lease", log: &events})

	release, err := chain.Acquire(context.Background(), "f1")
	require.NoError(t, err)
	release()

	assert.Equal(t, []string{"acquire local", "acquire lease", "release lease", "release local"}, events)
}

func TestChainMergeLockers_FailureReleasesAcquired(t *testing.T) {
	var events []string
	chain := ChainMergeLockers(recordingLocker{name: "local", log: &events}, recordingLocker{name: "lease", log: &events, err: context.Canceled})

	_, err := chain.Acquire(context.Background(), "f1")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"acquire local", "release local"}, events)
}
