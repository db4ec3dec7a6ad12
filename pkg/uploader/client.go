package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"chunkvault/internal/model"
	"chunkvault/pkg/log"

	"github.com/hashicorp/go-retryablehttp"
)

// maxResponseBytes 限制读取的响应体大小。
const maxResponseBytes = 1 << 20

// ClientOptions 配置 API 客户端的超时与重试。
type ClientOptions struct {
	Timeout  time.Duration
	RetryMax int
}

// Client 是上传服务 HTTP API 的客户端。
type Client struct {
	baseURL string
	http    *retryablehttp.Client
}

// NewClient 创建 Client。baseURL 形如 http://localhost:3000/api。
func NewClient(baseURL string, opts ClientOptions) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = opts.RetryMax
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.Logger = log.Leveled()
	// 重试耗尽后把最后一次响应交给调用方解析
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	if opts.Timeout > 0 {
		rc.HTTPClient.Timeout = opts.Timeout
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: rc}
}

// ChunkUpload 是一次分片上传的参数。
type ChunkUpload struct {
	FileID      string
	FileName    string
	Index       int
	TotalChunks int
	Data        []byte
}

// QueryStatus 查询服务端已经保存的分片序号。
func (c *Client) QueryStatus(ctx context.Context, fileID string) ([]int, error) {
	endpoint := c.baseURL + "/upload-chunk/status?" + url.Values{"fileId": {fileID}}.Encode()
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	var out model.ChunkStatusResponse
	if err := c.do(req, "Chunk status query", &out); err != nil {
		return nil, err
	}
	return out.UploadedChunks, nil
}

// UploadChunk 上传一个分片。onSent 会收到本次请求已发送的分片字节数，重试时从 0 重新计数。
func (c *Client) UploadChunk(ctx context.Context, chunk ChunkUpload, onSent func(n int64)) (*ChunkUploadResponse, error) {
	fields := map[string]string{
		"fileId":            chunk.FileID,
		"currentChunkIndex": strconv.Itoa(chunk.Index),
		"totalChunks":       strconv.Itoa(chunk.TotalChunks),
	}
	req, err := c.multipartRequest(ctx, "/upload-chunk", fields, chunk.FileName, chunk.Data, onSent)
	if err != nil {
		return nil, err
	}
	var out ChunkUploadResponse
	if err := c.do(req, "Chunk upload", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UploadSingle 直传一个完整文件。
func (c *Client) UploadSingle(ctx context.Context, fileName string, data []byte, onSent func(n int64)) (*SingleUploadResponse, error) {
	req, err := c.multipartRequest(ctx, "/upload-single", nil, fileName, data, onSent)
	if err != nil {
		return nil, err
	}
	var out SingleUploadResponse
	if err := c.do(req, "File upload", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListFiles 返回服务端的最终文件列表。
func (c *Client) ListFiles(ctx context.Context) ([]FileItem, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/files", nil)
	if err != nil {
		return nil, err
	}
	var out model.FileListResponse
	if err := c.do(req, "File list", &out); err != nil {
		return nil, err
	}
	return out.Files, nil
}

// multipartRequest 在内存中编码 multipart 表单。每次（重）发送都从头读取一份新的 body，
// 并按已读取的字节比例换算出已发送的文件字节数。
func (c *Client) multipartRequest(ctx context.Context, path string, fields map[string]string, fileName string, data []byte, onSent func(n int64)) (*retryablehttp.Request, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for key, value := range fields {
		if err := mw.WriteField(key, value); err != nil {
			return nil, err
		}
	}
	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	body := buf.Bytes()
	payload := int64(len(data))
	bodyFunc := retryablehttp.ReaderFunc(func() (io.Reader, error) {
		return &countingReader{r: bytes.NewReader(body), total: int64(len(body)), payload: payload, onSent: onSent}, nil
	})

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bodyFunc)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req, nil
}

func (c *Client) do(req *retryablehttp.Request, op string, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &TransportError{Op: op, StatusCode: resp.StatusCode, Body: string(body)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &ParseError{Op: op, Err: err}
	}
	return nil
}

// countingReader 统计 multipart body 的读取进度。
type countingReader struct {
	r       *bytes.Reader
	read    int64
	total   int64
	payload int64
	onSent  func(n int64)
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 && c.onSent != nil && c.total > 0 {
		c.read += int64(n)
		c.onSent(c.read * c.payload / c.total)
	}
	return n, err
}

// Len 让 retryablehttp 能够设置 Content-Length。
func (c *countingReader) Len() int { return c.r.Len() }
