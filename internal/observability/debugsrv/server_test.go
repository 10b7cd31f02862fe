package debugsrv

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"websum/internal/task/queue"
	logx "websum/pkg/logx"
)

type fakeStats struct{}

func (fakeStats) Status(chatID int64) queue.QueueStatus {
	st := queue.QueueStatus{MaxConcurrentJobs: 2, MaxQueueSize: 8, MaxQueueSizePerChat: 3, GlobalPending: 4, GlobalRunning: 1}
	if chatID == 7 {
		st.ChatPending, st.ChatRunning = 2, 1
	}
	return st
}

func (fakeStats) Chats() int { return 3 }

func TestQueueEndpoint(t *testing.T) {
	t.Parallel()

	h := New(Config{}, fakeStats{}, logx.Nop()).handler("")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/queue?chat_id=7", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var snap queueSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, 3, snap.Chats)
	assert.Equal(t, int64(7), snap.ChatID)
	assert.Equal(t, 4, snap.Status.GlobalPending)
	assert.Equal(t, 2, snap.Status.ChatPending)
	assert.Equal(t, 1, snap.Status.ChatRunning)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/queue?chat_id=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	New(Config{}, nil, logx.Nop()).handler("").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/queue", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestTokenAuth(t *testing.T) {
	t.Parallel()

	h := New(Config{}, fakeStats{}, logx.Nop()).handler("s3cret")

	tests := []struct {
		name   string
		target string
		header string
		want   int
	}{
		{"missing", "/healthz", "", http.StatusUnauthorized},
		{"wrong query", "/healthz?token=nope", "", http.StatusUnauthorized},
		{"query", "/healthz?token=s3cret", "", http.StatusOK},
		{"bearer", "/healthz", "Bearer s3cret", http.StatusOK},
		{"wrong bearer", "/healthz", "Bearer nope", http.StatusUnauthorized},
		{"basic", "/healthz", "Basic s3cret", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()

	assert.True(t, isLoopbackAddr("127.0.0.1:6060"))
	assert.True(t, isLoopbackAddr("localhost:6060"))
	assert.True(t, isLoopbackAddr("[::1]:6060"))
	assert.False(t, isLoopbackAddr(":6060"))
	assert.False(t, isLoopbackAddr("0.0.0.0:6060"))
	assert.False(t, isLoopbackAddr("example.com:6060"))
	assert.False(t, isLoopbackAddr("nonsense"))
}

func TestStartRefusesInsecureBind(t *testing.T) {
	t.Parallel()

	s := New(Config{Enabled: true, Addr: "0.0.0.0:0"}, fakeStats{}, logx.Nop())
	require.ErrorIs(t, s.Start(context.Background()), ErrInsecureBind)
	assert.Empty(t, s.Addr())
}

func TestStartServeStop(t *testing.T) {
	t.Parallel()

	s := New(Config{Enabled: true, Addr: "127.0.0.1:0"}, fakeStats{}, logx.Nop())
	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return s.Addr() != "" }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Stop(ctx)
	assert.Eventually(t, func() bool { return s.Addr() == "" }, 2*time.Second, 10*time.Millisecond)

	s.Reconfigure(ctx, Config{Enabled: false})
	assert.False(t, s.Enabled())
}

func TestReconfigureOutlivesCallerContext(t *testing.T) {
	t.Parallel()

	appCtx, stopApp := context.WithCancel(context.Background())
	defer stopApp()

	s := New(Config{}, fakeStats{}, logx.Nop())
	require.NoError(t, s.Start(appCtx))
	assert.Empty(t, s.Addr())

	rctx, cancel := context.WithTimeout(appCtx, time.Second)
	s.Reconfigure(rctx, Config{Enabled: true, Addr: "127.0.0.1:0"})
	cancel()

	require.Eventually(t, func() bool { return s.Addr() != "" }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	rctx, cancel = context.WithTimeout(appCtx, time.Second)
	s.Reconfigure(rctx, Config{Enabled: true, Addr: "127.0.0.1:0", Token: "t"})
	cancel()
	require.Eventually(t, func() bool { return s.Addr() != "" }, 2*time.Second, 10*time.Millisecond)

	resp, err = http.Get("http://" + s.Addr() + "/healthz?token=t")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	stopApp()
	assert.Eventually(t, func() bool { return s.Addr() == "" }, 2*time.Second, 10*time.Millisecond)
}
