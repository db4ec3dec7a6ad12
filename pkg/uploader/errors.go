package uploader

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrIncomplete 表示上传结束时仍有分片既未上传成功也未被服务端记录。
	ErrIncomplete = errors.New("upload finished without every chunk being stored")
	// ErrMergeUnconfirmed 表示所有分片都已提交，但始终没有收到 complete 响应，且文件列表里也找不到该文件。
	ErrMergeUnconfirmed = errors.New("server did not confirm the merged file")
	// ErrTaskBusy 表示任务正在校验或上传，不能重新开始。
	ErrTaskBusy = errors.New("upload task is already running")
	// ErrNothingToRetry 表示任务没有可以重试的文件。
	ErrNothingToRetry = errors.New("no failed upload to retry")
)

// TransportError 是请求失败或服务端返回非 2xx 状态码。
type TransportError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s failed with status: %d. Response: %s", e.Op, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ParseError 是 2xx 响应体无法解析为预期的 JSON。
type ParseError struct {
	Op  string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: invalid response: %v", e.Op, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ValidationError 是上传前的本地校验失败，Message 可以直接展示给用户。
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// FriendlyMessage 把错误转换为面向用户的一句话。
func FriendlyMessage(err error) string {
	if err == nil {
		return ""
	}
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Message
	}
	if errors.Is(err, ErrMergeUnconfirmed) {
		return "All chunks were uploaded but the server did not confirm the file. Please check the file list or retry."
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "File too large"):
		return "The file exceeds the server size limit."
	case strings.Contains(msg, "Error saving chunk"), strings.Contains(msg, "Error saving file"):
		return "The server could not store the upload. Please retry."
	case strings.Contains(msg, "<pre>"):
		// 非 JSON 的 HTML 错误页，取 <pre> 中的内容
		if start := strings.Index(msg, "<pre>"); start >= 0 {
			rest := msg[start+len("<pre>"):]
			if end := strings.Index(rest, "</pre>"); end >= 0 {
				return strings.TrimSpace(rest[:end])
			}
		}
	}
	return "Upload failed: " + msg
}
