package server

import (
	"bytes"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/lifelonglearners/tortoise/internal/model"
)

// spaHandler serves the built web client. Unknown paths get index.html so the
// client-side router can resolve them; unknown API paths get a JSON 404.
type spaHandler struct {
	fsys   fs.FS
	files  http.Handler
	index  []byte
	loaded time.Time
}

func newSPAHandler(fsys fs.FS) http.Handler {
	index, err := fs.ReadFile(fsys, "index.html")
	if err != nil {
		index = []byte("<!doctype html><title>Tortoise</title><p>The web client is missing index.html.</p>")
	}
	return &spaHandler{
		fsys:   fsys,
		files:  http.FileServerFS(fsys),
		index:  index,
		loaded: time.Now(),
	}
}

func (h *spaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p := path.Clean("/" + r.URL.Path)

	if isAPIPath(p) {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "endpoint not found")
		return
	}

	if name := strings.TrimPrefix(p, "/"); name != "" && name != "index.html" {
		if info, err := fs.Stat(h.fsys, name); err == nil && !info.IsDir() {
			w.Header().Set("Cache-Control", cacheControl(p))
			h.files.ServeHTTP(w, r)
			return
		}
	}
	h.serveIndex(w, r)
}

// serveIndex writes index.html. It must never be cached, or clients keep
// loading bundles that no longer exist after a deploy.
func (h *spaHandler) serveIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	http.ServeContent(w, r, "index.html", h.loaded, bytes.NewReader(h.index))
}

// isAPIPath reports whether p belongs to the API or MCP surface.
func isAPIPath(p string) bool {
	return p == "/api" || strings.HasPrefix(p, "/api/") || p == "/mcp"
}

// cacheControl picks the Cache-Control value for a static file. Bundles under
// /assets/ carry a content hash in their name.
func cacheControl(p string) string {
	if strings.HasPrefix(p, "/assets/") {
		return "public, max-age=31536000, immutable"
	}
	return "public, max-age=3600"
}
