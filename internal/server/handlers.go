package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/conneroisu/assetpipe/internal/version"
)

// handleStatic serves the output directory. Directories resolve to their
// index.html and HTML pages get the live-reload client injected.
func (s *DevServer) handleStatic(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	upath := path.Clean("/" + r.URL.Path)
	name := filepath.Join(s.config.Dir, filepath.FromSlash(upath))

	info, err := os.Stat(name)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if info.IsDir() {
		if !strings.HasSuffix(r.URL.Path, "/") {
			http.Redirect(w, r, upath+"/", http.StatusMovedPermanently)
			return
		}
		name = filepath.Join(name, "index.html")
		if info, err = os.Stat(name); err != nil || info.IsDir() {
			http.NotFound(w, r)
			return
		}
	}

	switch strings.ToLower(filepath.Ext(name)) {
	case ".html", ".htm":
		s.serveHTML(w, r, name)
	default:
		http.ServeFile(w, r, name)
	}
}

func (s *DevServer) serveHTML(w http.ResponseWriter, r *http.Request, name string) {
	page, err := os.ReadFile(name)
	if err != nil {
		http.Error(w, "Failed to read page", http.StatusInternalServerError)
		return
	}
	snippet, err := s.snippet(r.Context())
	if err != nil {
		s.logger.Error(r.Context(), err, "Failed to render live-reload client")
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	// zero modtime: the injected overlay changes without the file changing
	http.ServeContent(w, r, name, time.Time{}, bytes.NewReader(injectBeforeBody(page, snippet)))
}

// handleHealth returns the server health status for health checks
func (s *DevServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	health := map[string]interface{}{
		"status":     "healthy",
		"timestamp":  time.Now().UTC(),
		"version":    version.GetShortVersion(),
		"build_info": version.GetBuildInfo(),
		"clients":    s.Clients(),
	}
	if !s.started.IsZero() {
		health["uptime"] = time.Since(s.started).Round(time.Second).String()
	}

	s.writeJSON(w, r, health)
}

// handleStatus returns build statistics and the current failures.
func (s *DevServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	errs := s.errors.GetErrors()
	status := "ok"
	if len(errs) > 0 {
		status = "error"
	}

	response := map[string]interface{}{
		"status":    status,
		"clients":   s.Clients(),
		"errors":    errs,
		"timestamp": time.Now().Unix(),
	}
	if s.status != nil {
		response["metrics"] = s.status()
	}

	s.writeJSON(w, r, response)
}

func (s *DevServer) writeJSON(w http.ResponseWriter, r *http.Request, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn(r.Context(), err, "Failed to encode response")
	}
}
