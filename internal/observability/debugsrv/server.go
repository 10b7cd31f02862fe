// Package debugsrv serves an optional operator HTTP endpoint with pprof
// profiles, a liveness probe and a JSON snapshot of the job scheduler.
package debugsrv

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"strconv"
	"strings"
	"sync"
	"time"

	"websum/internal/runtime/supervisor"
	"websum/internal/task/queue"
	logx "websum/pkg/logx"
)

const defaultAddr = "127.0.0.1:6060"

var ErrInsecureBind = errors.New("debugsrv: non-loopback addr requires token or allow_insecure")

type Config struct {
	Enabled       bool
	Addr          string
	Token         string
	AllowInsecure bool
}

// QueueStats is the read-only view of the scheduler served on /debug/queue.
type QueueStats interface {
	Status(chatID int64) queue.QueueStatus
	Chats() int
}

type Service struct {
	log   logx.Logger
	stats QueueStats

	mu    sync.Mutex
	cfg   Config
	base  context.Context
	sup   *supervisor.Supervisor
	srv   *http.Server
	bound string
}

func New(cfg Config, stats QueueStats, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, stats: stats, log: log}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Addr is the address the server is listening on, or "" when it is not.
func (s *Service) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bound
}

// Start launches the server when enabled. It is idempotent. The first ctx
// passed to Start bounds the server lifetime, including later restarts made
// by Reconfigure.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.base == nil {
		s.base = ctx
	}
	return s.startLocked()
}

// running reports whether a live supervisor owns the server. Caller holds mu.
func (s *Service) running() bool {
	return s.sup != nil && s.sup.Context().Err() == nil
}

func (s *Service) startLocked() error {
	if s.running() || !s.cfg.Enabled {
		return nil
	}
	if s.base.Err() != nil {
		return s.base.Err()
	}
	cfg := s.cfg
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		addr = defaultAddr
	}
	if cfg.Token == "" && !isLoopbackAddr(addr) {
		if !cfg.AllowInsecure {
			s.log.Error("debug server refused to start", logx.String("addr", addr), logx.Err(ErrInsecureBind))
			return ErrInsecureBind
		}
		s.log.Warn("debug server running without token on non-loopback addr (insecure)", logx.String("addr", addr))
	}

	sup := supervisor.New(s.base,
		supervisor.WithLogger(s.log),
		// Optional tooling never takes the app down.
		supervisor.WithCancelOnError(false),
	)
	s.sup = sup
	handler := s.handler(cfg.Token)
	sup.GoRestart0("debugsrv.serve", func(c context.Context) {
		s.serveOnce(c, addr, handler)
	}, supervisor.WithRestartBackoff(500*time.Millisecond, 10*time.Second))
	return nil
}

func (s *Service) serveOnce(ctx context.Context, addr string, handler http.Handler) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.log.Error("debug server listen failed", logx.String("addr", addr), logx.Err(err))
		return
	}
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.mu.Lock()
	s.srv = srv
	s.bound = ln.Addr().String()
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = srv.Shutdown(cctx)
		cancel()
	}()

	s.log.Info("debug server started", logx.String("addr", ln.Addr().String()))
	err = srv.Serve(ln)

	s.mu.Lock()
	if s.srv == srv {
		s.srv = nil
		s.bound = ""
	}
	s.mu.Unlock()

	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.log.Warn("debug server exited", logx.Err(err))
	}
}

// Stop shuts the server down, bounded by ctx.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	sup, srv := s.sup, s.srv
	s.sup = nil
	s.mu.Unlock()
	if sup == nil {
		return
	}
	sup.Cancel()
	if srv != nil {
		_ = srv.Shutdown(ctx)
	}
	_ = sup.Wait(ctx)
	s.log.Info("debug server stopped")
}

// Reconfigure applies cfg and starts, stops or restarts the server as needed.
// ctx only bounds the shutdown of a running server; a (re)started server lives
// as long as the ctx given to the first Start.
func (s *Service) Reconfigure(ctx context.Context, cfg Config) {
	s.mu.Lock()
	prev := s.cfg
	running := s.running()
	s.cfg = cfg
	s.mu.Unlock()

	switch {
	case !cfg.Enabled:
		if running {
			s.Stop(ctx)
		}
	case !running:
		s.restart(ctx)
	case prev != cfg:
		s.Stop(ctx)
		s.restart(ctx)
	}
}

func (s *Service) restart(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.base == nil {
		s.base = context.WithoutCancel(ctx)
	}
	if err := s.startLocked(); err != nil {
		s.log.Warn("debug server not restarted", logx.Err(err))
	}
}

func (s *Service) handler(token string) http.Handler {
	mux := http.NewServeMux()
	wrap := func(h http.HandlerFunc) http.HandlerFunc { return withAuth(token, h) }

	mux.HandleFunc("/healthz", wrap(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	mux.HandleFunc("/debug/queue", wrap(s.serveQueue))

	mux.HandleFunc("/debug/pprof/", wrap(hpprof.Index))
	mux.HandleFunc("/debug/pprof/cmdline", wrap(hpprof.Cmdline))
	mux.HandleFunc("/debug/pprof/profile", wrap(hpprof.Profile))
	mux.HandleFunc("/debug/pprof/symbol", wrap(hpprof.Symbol))
	mux.HandleFunc("/debug/pprof/trace", wrap(hpprof.Trace))
	return mux
}

type queueSnapshot struct {
	Chats  int               `json:"chats"`
	ChatID int64             `json:"chat_id,omitempty"`
	Status queue.QueueStatus `json:"status"`
}

// serveQueue reports global counters, plus per-chat ones for ?chat_id=.
func (s *Service) serveQueue(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		http.Error(w, "scheduler not available", http.StatusServiceUnavailable)
		return
	}
	var chatID int64
	if raw := strings.TrimSpace(r.URL.Query().Get("chat_id")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			http.Error(w, "bad chat_id", http.StatusBadRequest)
			return
		}
		chatID = id
	}
	snap := queueSnapshot{Chats: s.stats.Chats(), ChatID: chatID, Status: s.stats.Status(chatID)}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(snap)
}

// withAuth accepts "Authorization: Bearer <token>" or ?token=<token>.
func withAuth(token string, h http.HandlerFunc) http.HandlerFunc {
	tok := strings.TrimSpace(token)
	if tok == "" {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("token"); got != "" {
			if got == tok {
				h(w, r)
				return
			}
			unauthorized(w)
			return
		}
		const p = "Bearer "
		if ah := r.Header.Get("Authorization"); strings.HasPrefix(ah, p) && strings.TrimSpace(strings.TrimPrefix(ah, p)) == tok {
			h(w, r)
			return
		}
		unauthorized(w)
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

func isLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	h = strings.TrimSpace(h)
	if h == "" {
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
