package monitor

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Config holds the dashboard server's listen address and optional TLS
// material. TLS is enabled when CertPath and KeyPath are both set; New
// returns an error when only one of them is set. With neither set the
// server listens over plain HTTP, which is the expected mode for a local
// debugging dashboard.
type Config struct {
	Addr     string // e.g. "127.0.0.1:8765"
	CertPath string
	KeyPath  string
	Logger   *zap.Logger
}

// Server wraps a Hub with an HTTP listener that upgrades "/ws" requests
// to WebSocket and serves a minimal static dashboard page at "/".
type Server struct {
	cfg    Config
	hub    *Hub
	http   *http.Server
	logger *zap.Logger
	tls    *tls.Config

	upgrader websocket.Upgrader
}

// New constructs a Server around hub. Call ListenAndServe to start it.
func New(cfg Config, hub *Hub) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8765"
	}

	var tlsConfig *tls.Config
	if cfg.CertPath != "" || cfg.KeyPath != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertPath, cfg.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("monitor: load TLS certificate: %w", err)
		}
		tlsConfig = &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}
	}

	s := &Server{
		cfg:    cfg,
		hub:    hub,
		logger: logger,
		tls:    tlsConfig,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/", s.handleDashboard)

	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		TLSConfig:         tlsConfig,
	}

	return s, nil
}

// ListenAndServe runs the Hub's broadcast loop and the HTTP listener
// until ctx is cancelled, then shuts both down. It blocks.
func (s *Server) ListenAndServe(ctx context.Context) error {
	hubCtx, cancelHub := context.WithCancel(ctx)
	defer cancelHub()
	go s.hub.Run(hubCtx)

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("monitor: listen %s: %w", s.cfg.Addr, err)
	}
	if s.tls != nil {
		ln = tls.NewListener(ln, s.tls)
	}

	s.logger.Info("monitor: dashboard listening",
		zap.String("addr", s.cfg.Addr),
		zap.Bool("tls", s.tls != nil),
	)

	errCh := make(chan error, 1)
	go func() { errCh <- s.http.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("monitor: shutdown", zap.Error(err))
		}
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("monitor: upgrade failed", zap.Error(err))
		return
	}
	c := s.hub.addClient(conn)
	go s.hub.writePump(c)
	s.hub.readPump(c)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(dashboardHTML))
}

const dashboardHTML = `<!doctype html>
<html>
<head><meta charset="utf-8"><title>midealan monitor</title>
<style>
body { font-family: monospace; background: #1a1a1a; color: #eee; padding: 1em; }
table { border-collapse: collapse; width: 100%; }
td, th { border-bottom: 1px solid #444; padding: 0.3em 0.6em; text-align: left; }
tr:hover { background: #272727; }
</style>
</head>
<body>
<h3>midealan monitor</h3>
<table id="t"><thead><tr><th>time</th><th>device</th><th>name</th><th>status</th></tr></thead><tbody></tbody></table>
<script>
const body = document.querySelector('#t tbody');
const ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/ws');
ws.onmessage = (ev) => {
  const e = JSON.parse(ev.data);
  const row = document.createElement('tr');
  row.innerHTML = '<td>' + e.time + '</td><td>' + e.device_id + '</td><td>' + (e.name || '') + '</td><td>' + JSON.stringify(e.status) + '</td>';
  body.insertBefore(row, body.firstChild);
  while (body.childElementCount > 200) body.removeChild(body.lastChild);
};
</script>
</body>
</html>
`
