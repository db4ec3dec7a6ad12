package service

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// MergeLocker 为同一 fileId 的 "检查完整性 → 合并 → 清理" 提供跨进程的互斥区。
type MergeLocker interface {
	Acquire(ctx context.Context, fileID string) (release func(), err error)
}

// chainedLocker 依次获取多个锁，按相反顺序释放。
type chainedLocker []MergeLocker

// ChainMergeLockers 把多个租约组合成一个 MergeLocker，nil 会被忽略；全部为 nil 时不加锁。
func ChainMergeLockers(lockers ...MergeLocker) MergeLocker {
	chain := make(chainedLocker, 0, len(lockers))
	for _, l := range lockers {
		if l != nil {
			chain = append(chain, l)
		}
	}
	return chain
}

func (c chainedLocker) Acquire(ctx context.Context, fileID string) (func(), error) {
	releases := make([]func(), 0, len(c))
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	for _, l := range c {
		release, err := l.Acquire(ctx, fileID)
		if err != nil {
			releaseAll()
			return nil, err
		}
		releases = append(releases, release)
	}
	return releaseAll, nil
}

// mergeOutcome 是一次合并尝试的结果，merged 为 false 表示分片已被别人合并或仍不完整。
type mergeOutcome struct {
	size   int64
	merged bool
}

// mergeGuard 保证进程内同一 fileId 同一时刻只有一个合并在执行，跨进程的互斥交给 lease。
type mergeGuard struct {
	flights singleflight.Group
	lease   MergeLocker
}

func newMergeGuard(lease MergeLocker) *mergeGuard {
	return &mergeGuard{lease: ChainMergeLockers(lease)}
}

// run 在 fileId 的互斥区内执行 merge，release 之后再执行 after。
// 与正在进行的合并同时到达的调用共享它的结果，led 只对真正执行了 merge 的那次调用为 true。
// merge 与 after 不随调用方的 ctx 取消而中断；调用方取消时直接返回 ctx.Err()，合并在后台完成。
func (g *mergeGuard) run(ctx context.Context, fileID string, merge func() (mergeOutcome, error), after func(context.Context, mergeOutcome)) (mergeOutcome, bool, error) {
	flightCtx := context.WithoutCancel(ctx)
	// 只有执行 merge 的 goroutine 写 led，读取发生在从 ch 收到结果之后
	var led bool
	ch := g.flights.DoChan(fileID, func() (interface{}, error) {
		led = true
		release, err := g.lease.Acquire(flightCtx, fileID)
		if err != nil {
			return mergeOutcome{}, err
		}
		out, err := merge()
		release()
		if err != nil {
			return mergeOutcome{}, err
		}
		if out.merged && after != nil {
			after(flightCtx, out)
		}
		return out, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return mergeOutcome{}, led, res.Err
		}
		return res.Val.(mergeOutcome), led, nil
	case <-ctx.Done():
		return mergeOutcome{}, false, ctx.Err()
	}
}
