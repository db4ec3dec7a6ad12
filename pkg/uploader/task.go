package uploader

import (
	"context"
	"fmt"
	"sync"

	"chunkvault/pkg/log"
)

// State 是 Task 的生命周期状态。
type State string

const (
	StateIdle       State = "idle"
	StateValidating State = "validating"
	StateUploading  State = "uploading"
	StateComplete   State = "complete"
	StateFailed     State = "failed"
)

// FileProgressFunc 接收某个文件的进度。
type FileProgressFunc func(src Source, percent float64)

// Task 管理一组文件的一次上传：校验后按顺序逐个上传，任一文件失败则整体失败。
// 失败后可以用 Retry 重新上传同一组文件，已在服务端的分片会被跳过。
type Task struct {
	uploader FileUploader
	rules    ValidationRules

	mu      sync.Mutex
	state   State
	files   []Source
	results []FileItem
	err     error
}

// NewTask 创建一个处于 idle 状态的 Task。
func NewTask(uploader FileUploader, rules ValidationRules) *Task {
	return &Task{uploader: uploader, rules: rules, state: StateIdle}
}

// State 返回当前状态。
func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Err 返回最近一次失败的原因。
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Results 返回最近一次成功上传的文件。
func (t *Task) Results() []FileItem {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]FileItem(nil), t.results...)
}

// Start 校验并上传新选择的文件。任务正在运行时返回 ErrTaskBusy。
func (t *Task) Start(ctx context.Context, files []Source, onProgress FileProgressFunc) ([]FileItem, error) {
	t.mu.Lock()
	if t.running() {
		t.mu.Unlock()
		return nil, ErrTaskBusy
	}
	t.state = StateValidating
	t.err = nil
	t.results = nil
	t.mu.Unlock()

	if err := t.rules.Validate(files); err != nil {
		t.mu.Lock()
		t.files = nil
		t.mu.Unlock()
		return nil, t.fail(err)
	}

	t.mu.Lock()
	t.files = files
	t.mu.Unlock()
	return t.upload(ctx, files, onProgress)
}

// Retry 重新上传上一次失败的文件，不重新校验。
func (t *Task) Retry(ctx context.Context, onProgress FileProgressFunc) ([]FileItem, error) {
	t.mu.Lock()
	if t.running() {
		t.mu.Unlock()
		return nil, ErrTaskBusy
	}
	if t.state != StateFailed || len(t.files) == 0 {
		t.mu.Unlock()
		return nil, ErrNothingToRetry
	}
	files := t.files
	t.err = nil
	t.mu.Unlock()
	return t.upload(ctx, files, onProgress)
}

// running 需要持有 t.mu。
func (t *Task) running() bool {
	return t.state == StateValidating || t.state == StateUploading
}

func (t *Task) upload(ctx context.Context, files []Source, onProgress FileProgressFunc) ([]FileItem, error) {
	t.mu.Lock()
	t.state = StateUploading
	t.mu.Unlock()

	results := make([]FileItem, 0, len(files))
	for _, src := range files {
		src := src
		item, err := t.uploader.Upload(ctx, src, func(percent float64) {
			if onProgress != nil {
				onProgress(src, percent)
			}
		})
		if err != nil {
			return nil, t.fail(fmt.Errorf("%s: %w", src.Name(), err))
		}
		log.Infof("[Task] 文件上传完成: %s", src.Name())
		results = append(results, *item)
	}

	t.mu.Lock()
	t.state = StateComplete
	t.results = results
	t.mu.Unlock()
	return results, nil
}

func (t *Task) fail(err error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = StateFailed
	t.err = err
	return err
}
