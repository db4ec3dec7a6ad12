package uploader

import (
	"chunkvault/internal/config"
)

// NewFromConfig 按客户端配置组装 Dispatcher 和本地校验规则。
func NewFromConfig(cfg config.ClientConfig) (*Dispatcher, ValidationRules, error) {
	fileID, err := FileIDFuncFor(cfg.FileIDMode)
	if err != nil {
		return nil, ValidationRules{}, err
	}
	api := NewClient(cfg.ServerURL, ClientOptions{Timeout: cfg.RequestTimeout, RetryMax: cfg.RetryMax})
	scheduler := NewChunkScheduler(api, SchedulerOptions{
		ChunkSize:       cfg.ChunkBytes(),
		ParallelLimit:   cfg.ParallelLimit,
		FileID:          fileID,
		ConfirmAttempts: cfg.ConfirmAttempts,
		ConfirmInterval: cfg.ConfirmInterval,
	})
	rules := ValidationRules{
		AcceptedTypes: cfg.AcceptedTypes,
		MaxFiles:      cfg.MaxFiles,
		MaxTotalSize:  cfg.MaxTotalBytes(),
	}
	return NewDispatcher(api, scheduler, cfg.SingleFileThresholdBytes()), rules, nil
}

// API 返回 Dispatcher 使用的 API 客户端。
func (d *Dispatcher) API() *Client { return d.api }
