package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/conneroisu/assetpipe/internal/errors"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Send pings to peer with this period.
	pingPeriod = 54 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

// Message types sent to the browser.
const (
	MessageCSSUpdate    = "css_update"
	MessageFullReload   = "full_reload"
	MessageBuildError   = "build_error"
	MessageBuildSuccess = "build_success"
)

// UpdateMessage represents a message sent to the browser
type UpdateMessage struct {
	Type      string    `json:"type"`
	Paths     []string  `json:"paths,omitempty"`
	Task      string    `json:"task,omitempty"`
	Content   string    `json:"content,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Client represents a WebSocket client
type Client struct {
	conn   *websocket.Conn
	send   chan []byte
	server *DevServer
}

func (s *DevServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.checkOrigin(r) {
		http.Error(w, "Origin not allowed", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.originPatterns(r),
	})
	if err != nil {
		s.logger.Warn(r.Context(), err, "WebSocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxMessageSize)

	client := &Client{
		conn:   conn,
		send:   make(chan []byte, 64),
		server: s,
	}

	select {
	case s.register <- client:
	case <-s.done:
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}

	go client.writePump()
	client.readPump()
}

// checkOrigin accepts same-origin requests, loopback origins on the served
// port and the configured allowed origins.
func (s *DevServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return false
	}

	originURL, err := url.Parse(origin)
	if err != nil || originURL.Host == "" {
		return false
	}
	if originURL.Scheme != "http" && originURL.Scheme != "https" {
		return false
	}

	if strings.EqualFold(originURL.Host, r.Host) {
		return true
	}
	if s.isAllowedOrigin(origin) {
		return true
	}

	port := s.port()
	for _, host := range []string{s.config.Host, "localhost", "127.0.0.1", "[::1]"} {
		if host != "" && strings.EqualFold(originURL.Host, host+":"+port) {
			return true
		}
	}
	return false
}

// originPatterns lists the origin hosts the websocket library should accept
// once checkOrigin has passed.
func (s *DevServer) originPatterns(r *http.Request) []string {
	if o, err := url.Parse(r.Header.Get("Origin")); err == nil && o.Host != "" {
		return []string{o.Host}
	}
	return nil
}

func (s *DevServer) port() string {
	s.serverMutex.RLock()
	defer s.serverMutex.RUnlock()
	if s.listener != nil {
		_, port, err := net.SplitHostPort(s.listener.Addr().String())
		if err == nil {
			return port
		}
	}
	return strconv.Itoa(s.config.Port)
}

func (s *DevServer) runWebSocketHub(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case client := <-s.register:
			s.clientsMutex.Lock()
			s.clients[client.conn] = client
			count := len(s.clients)
			s.clientsMutex.Unlock()
			s.logger.Info(ctx, "Browser connected", "clients", count)

		case conn := <-s.unregister:
			s.clientsMutex.Lock()
			if client, ok := s.clients[conn]; ok {
				delete(s.clients, conn)
				close(client.send)
				conn.Close(websocket.StatusNormalClosure, "")
				s.logger.Info(ctx, "Browser disconnected", "clients", len(s.clients))
			}
			s.clientsMutex.Unlock()

		case message := <-s.broadcast:
			s.clientsMutex.Lock()
			for conn, client := range s.clients {
				select {
				case client.send <- message:
				default:
					// Client's send channel is full, drop it
					delete(s.clients, conn)
					close(client.send)
					conn.Close(websocket.StatusPolicyViolation, "client too slow")
				}
			}
			s.clientsMutex.Unlock()
		}
	}
}

// Clients returns the number of connected browsers.
func (s *DevServer) Clients() int {
	s.clientsMutex.RLock()
	defer s.clientsMutex.RUnlock()
	return len(s.clients)
}

func (s *DevServer) broadcastMessage(msg UpdateMessage) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Warn(context.Background(), err, "Failed to marshal message")
		data = []byte(`{"type":"full_reload"}`)
	}

	select {
	case s.broadcast <- data:
	case <-s.done:
	}
}

// NotifyReload tells every browser about freshly written files. When all of
// them are stylesheets they are swapped in place, otherwise pages reload.
func (s *DevServer) NotifyReload(paths []string) {
	if len(paths) == 0 {
		return
	}
	urls := make([]string, 0, len(paths))
	allCSS := true
	for _, p := range paths {
		urls = append(urls, s.urlPath(p))
		if strings.ToLower(path.Ext(p)) != ".css" {
			allCSS = false
		}
	}

	msgType := MessageFullReload
	if allCSS {
		msgType = MessageCSSUpdate
	}
	s.broadcastMessage(UpdateMessage{Type: msgType, Paths: urls})
}

// BuildFailed shows be in every browser's error overlay.
func (s *DevServer) BuildFailed(be errors.BuildError) {
	s.errors.Record(be)
	s.broadcastMessage(UpdateMessage{
		Type:    MessageBuildError,
		Task:    be.Task,
		Content: s.errors.ErrorOverlay(),
	})
}

// BuildRecovered removes the overlay entry of task.
func (s *DevServer) BuildRecovered(task string) {
	s.errors.ClearTask(task)
	s.broadcastMessage(UpdateMessage{
		Type:    MessageBuildSuccess,
		Task:    task,
		Content: s.errors.ErrorOverlay(),
	})
}

// urlPath maps a root-relative written path to the URL path it is served at.
func (s *DevServer) urlPath(p string) string {
	p = strings.TrimPrefix(path.Clean("/"+p), "/")
	base := s.config.Base
	switch {
	case base == "" || base == ".":
	case p == base:
		p = ""
	case strings.HasPrefix(p, base+"/"):
		p = strings.TrimPrefix(p, base+"/")
	}
	return "/" + p
}

// readPump drains the connection until the browser goes away.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.server.unregister <- c.conn:
		case <-c.server.done:
		}
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	// A cancelled read context closes the connection, so reads never time
	// out; dead peers are detected by the pings of writePump.
	for {
		_, _, err := c.conn.Read(context.Background())
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
				c.server.logger.Debug(context.Background(), "WebSocket closed", "error", err)
			}
			return
		}
	}
}

// writePump pumps messages to the websocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Write(writeCtx, websocket.MessageText, message)
			cancel()
			if err != nil {
				c.server.logger.Debug(context.Background(), "WebSocket write failed", "error", err)
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
