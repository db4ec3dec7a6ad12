package service

import "errors"

var (
	// ErrValidation 表示请求缺少必要字段或字段非法，对应 4xx。
	ErrValidation = errors.New("invalid request")

	// ErrStorage 表示磁盘读写或合并失败，对应 5xx；分片记录会被保留以便重试。
	ErrStorage = errors.New("storage failure")
)
