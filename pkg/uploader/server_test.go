package uploader

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"chunkvault/internal/handler"
	"chunkvault/internal/repository"
	"chunkvault/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

// testServer 是挂在 httptest 上的真实上传服务，并记录收到的分片请求。
type testServer struct {
	*httptest.Server
	artifacts *repository.ArtifactRepository

	mu       sync.Mutex
	chunks   []int
	singles  int
	inFlight int
	peak     int
}

func newTestServer(t *testing.T, delay time.Duration) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	root := t.TempDir()
	artifacts, err := repository.NewArtifactRepository(filepath.Join(root, "uploads"))
	require.NoError(t, err)
	store, err := repository.NewChunkStore(filepath.Join(root, "chunks"), artifacts)
	require.NoError(t, err)
	svc := service.NewUploadService(store, artifacts, nil, nil)
	router := handler.NewRouter(handler.NewUploadHandler(svc, 0, 0), "/api")

	ts := &testServer{artifacts: artifacts}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/upload-chunk":
			if err := r.ParseMultipartForm(32 << 20); err == nil {
				index, _ := strconv.Atoi(r.FormValue("currentChunkIndex"))
				ts.enter(index)
				defer ts.leave()
				time.Sleep(delay)
			}
		case r.Method == http.MethodPost && r.URL.Path == "/api/upload-single":
			ts.mu.Lock()
			ts.singles++
			ts.mu.Unlock()
		}
		router.ServeHTTP(w, r)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *testServer) enter(index int) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.chunks = append(ts.chunks, index)
	ts.inFlight++
	if ts.inFlight > ts.peak {
		ts.peak = ts.inFlight
	}
}

func (ts *testServer) leave() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.inFlight--
}

func (ts *testServer) sentChunks() []int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return append([]int(nil), ts.chunks...)
}

func (ts *testServer) singleCount() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.singles
}

func (ts *testServer) peakInFlight() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.peak
}

func (ts *testServer) apiURL() string { return ts.URL + "/api" }

func newTestClient(baseURL string) *Client {
	return NewClient(baseURL, ClientOptions{Timeout: 10 * time.Second, RetryMax: 0})
}

func fixedID(id string) FileIDFunc {
	return func(Source, int64) (string, error) { return id, nil }
}

// progressRecorder 记录进度回调的全部取值。
type progressRecorder struct {
	mu     sync.Mutex
	values []float64
}

func (p *progressRecorder) record(v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values = append(p.values, v)
}

func (p *progressRecorder) snapshot() []float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]float64(nil), p.values...)
}

var bg = context.Background()
