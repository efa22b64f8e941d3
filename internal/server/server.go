// Package server implements the development server: a static file server
// rooted at the output directory that injects a live-reload client into
// every HTML page and pushes reload and build status messages over a
// websocket.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"path"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/conneroisu/assetpipe/internal/errors"
	"github.com/conneroisu/assetpipe/internal/logging"
)

// Endpoint paths served next to the output directory.
const (
	LiveReloadPath = "/__livereload"
	HealthPath     = "/__assetpipe/health"
	StatusPath     = "/__assetpipe/status"
)

// Config describes what the server serves and where it listens.
type Config struct {
	Host string
	Port int
	// Dir is the absolute directory served at "/".
	Dir string
	// Base is Dir relative to the project root, slash separated. It is
	// stripped from the paths passed to NotifyReload.
	Base           string
	AllowedOrigins []string
	Open           bool
}

// StatusFunc reports build statistics for the status endpoint.
type StatusFunc func() interface{}

// DevServer serves the output directory with live reload.
type DevServer struct {
	config  Config
	logger  logging.Logger
	status  StatusFunc
	errors  *errors.ErrorCollector
	opener  func(url string) error
	started time.Time

	httpServer  *http.Server
	listener    net.Listener
	serverMutex sync.RWMutex

	clients      map[*websocket.Conn]*Client
	clientsMutex sync.RWMutex
	broadcast    chan []byte
	register     chan *Client
	unregister   chan *websocket.Conn
	done         chan struct{}
	shutdownOnce sync.Once
}

// Option customises a DevServer.
type Option func(*DevServer)

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(s *DevServer) { s.logger = l }
}

// WithStatus sets the source of build statistics.
func WithStatus(f StatusFunc) Option {
	return func(s *DevServer) { s.status = f }
}

// WithErrors sets the collector whose errors are shown on page load.
func WithErrors(c *errors.ErrorCollector) Option {
	return func(s *DevServer) { s.errors = c }
}

// WithOpener replaces the command used to open the browser.
func WithOpener(f func(url string) error) Option {
	return func(s *DevServer) { s.opener = f }
}

// New creates a dev server for cfg. Nothing listens until Listen is called.
func New(cfg Config, opts ...Option) (*DevServer, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("server has no directory to serve")
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("port %d is not in valid range 0-65535", cfg.Port)
	}
	cfg.Base = strings.Trim(path.Clean("/"+cfg.Base), "/")

	s := &DevServer{
		config:     cfg,
		logger:     logging.Discard(),
		errors:     errors.NewErrorCollector(),
		opener:     openBrowser,
		clients:    make(map[*websocket.Conn]*Client),
		broadcast:  make(chan []byte, 16),
		register:   make(chan *Client),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent("server")
	return s, nil
}

// Handler returns the HTTP handler with all routes and middleware.
func (s *DevServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(LiveReloadPath, s.handleWebSocket)
	mux.HandleFunc(HealthPath, s.handleHealth)
	mux.HandleFunc(StatusPath, s.handleStatus)
	mux.HandleFunc("/", s.handleStatic)
	return s.addMiddleware(mux)
}

// Listen binds the listening socket so that URL reports the real port.
func (s *DevServer) Listen() error {
	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	s.serverMutex.Lock()
	s.started = time.Now()
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.serverMutex.Unlock()
	return nil
}

// URL returns the address browsers should open.
func (s *DevServer) URL() string {
	s.serverMutex.RLock()
	defer s.serverMutex.RUnlock()

	host := s.config.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	port := s.config.Port
	if s.listener != nil {
		if tcp, ok := s.listener.Addr().(*net.TCPAddr); ok {
			port = tcp.Port
		}
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(port))
}

// Start serves until ctx is done, then shuts down gracefully. Listen is
// called first when it has not been.
func (s *DevServer) Start(ctx context.Context) error {
	s.serverMutex.RLock()
	listening := s.listener != nil
	s.serverMutex.RUnlock()
	if !listening {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	s.serverMutex.RLock()
	server, ln := s.httpServer, s.listener
	s.serverMutex.RUnlock()

	go s.runWebSocketHub(ctx)

	url := s.URL()
	s.logger.Info(ctx, "Serving files", "url", url, "dir", s.config.Dir)
	if s.config.Open {
		go func() {
			if err := s.opener(url); err != nil {
				s.logger.Warn(ctx, err, "Failed to open browser", "url", url)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server error: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

// Shutdown gracefully shuts down the server and cleans up resources
func (s *DevServer) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.logger.Info(ctx, "Shutting down server")
		close(s.done)

		s.clientsMutex.Lock()
		for conn, client := range s.clients {
			close(client.send)
			conn.Close(websocket.StatusGoingAway, "server shutting down")
		}
		s.clients = make(map[*websocket.Conn]*Client)
		s.clientsMutex.Unlock()

		s.serverMutex.RLock()
		server := s.httpServer
		s.serverMutex.RUnlock()
		if server != nil {
			shutdownErr = server.Shutdown(ctx)
		}
	})

	return shutdownErr
}

func (s *DevServer) addMiddleware(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if s.isAllowedOrigin(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
		}
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Cache-Control", "no-store")

		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
			w.WriteHeader(http.StatusNoContent)
			return
		}

		start := time.Now()
		handler.ServeHTTP(w, r)
		s.logger.Debug(r.Context(), "Request served", "method", r.Method, "path", r.URL.Path,
			"duration", time.Since(start))
	})
}

// isAllowedOrigin checks if the origin is in the allowed origins list
func (s *DevServer) isAllowedOrigin(origin string) bool {
	if origin == "" {
		return false
	}
	for _, allowed := range s.config.AllowedOrigins {
		if strings.EqualFold(strings.TrimSuffix(allowed, "/"), origin) {
			return true
		}
	}
	return false
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	case "darwin":
		cmd = exec.Command("open", url)
	default:
		return fmt.Errorf("unsupported platform %s", runtime.GOOS)
	}
	return cmd.Start()
}
