package uploader

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgressTracker_HighWaterMark(t *testing.T) {
	var values []float64
	tracker := newProgressTracker(20, []int64{10, 10}, func(p float64) { values = append(values, p) })

	tracker.update(0, 5)
	tracker.update(0, 2) // 重试从 0 开始计数
	tracker.update(0, 8)
	tracker.update(1, 50) // 超出分片长度
	tracker.markDone(0)
	tracker.finish()

	assert.Equal(t, []float64{25, 40, 90, 100}, values)
}

func TestProgressTracker_PreloadAndReport(t *testing.T) {
	var values []float64
	tracker := newProgressTracker(10, []int64{4, 4, 2}, func(p float64) { values = append(values, p) })

	tracker.preload(0)
	tracker.preload(1)
	assert.Empty(t, values)

	tracker.report()
	tracker.finish()
	tracker.finish()
	assert.Equal(t, []float64{80, 100}, values)
}
