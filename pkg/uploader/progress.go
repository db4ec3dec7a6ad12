package uploader

import "sync"

// ProgressFunc 接收 0 到 100 的整体进度，调用序列单调不减。
type ProgressFunc func(percent float64)

// progressTracker 汇总每个分片的已发送字节数。每个分片只记录最高水位，
// 因此重试时重新发送的字节不会让进度回退。
type progressTracker struct {
	mu      sync.Mutex
	sent    []int64
	lengths []int64
	total   int64
	last    float64
	publish ProgressFunc
}

func newProgressTracker(total int64, lengths []int64, publish ProgressFunc) *progressTracker {
	if publish == nil {
		publish = func(float64) {}
	}
	return &progressTracker{
		sent:    make([]int64, len(lengths)),
		lengths: lengths,
		total:   total,
		publish: publish,
	}
}

// update 记录分片 index 已发送 n 字节。
func (t *progressTracker) update(index int, n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n > t.lengths[index] {
		n = t.lengths[index]
	}
	if n <= t.sent[index] {
		return
	}
	t.sent[index] = n
	t.emit()
}

// markDone 把分片 index 记为全部完成。
func (t *progressTracker) markDone(index int) {
	t.update(index, t.lengths[index])
}

// preload 把服务端已有的分片记为完成，但不发布进度。
func (t *progressTracker) preload(index int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent[index] = t.lengths[index]
}

// report 发布当前进度，即使没有变化。
func (t *progressTracker) report() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p := t.percent(); p > t.last {
		t.last = p
	}
	t.publish(t.last)
}

// finish 发布最终的 100。
func (t *progressTracker) finish() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.last < 100 {
		t.last = 100
		t.publish(100)
	}
}

func (t *progressTracker) percent() float64 {
	var done int64
	for _, n := range t.sent {
		done += n
	}
	if t.total <= 0 {
		return 100
	}
	percent := float64(done) * 100 / float64(t.total)
	if percent > 100 {
		percent = 100
	}
	return percent
}

func (t *progressTracker) emit() {
	if percent := t.percent(); percent > t.last {
		t.last = percent
		t.publish(percent)
	}
}
