// Package web embeds the dashboard page (dist/) and serves it as a
// single-page application.
package web

import (
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
)

//go:embed all:dist
var distFS embed.FS

// reservedPrefixes never fall back to index.html, so unknown API paths
// answer 404 instead of the page.
var reservedPrefixes = []string{"api/", "ws/"}

// SPAHandler returns an http.Handler that serves the embedded dashboard.
// Paths that don't match a file fall back to index.html.
func SPAHandler() (http.Handler, error) {
	subFS, err := fs.Sub(distFS, "dist")
	if err != nil {
		return nil, fmt.Errorf("web: sub filesystem: %w", err)
	}
	return spaHandler(subFS), nil
}

func spaHandler(fsys fs.FS) http.Handler {
	fileServer := http.FileServer(http.FS(fsys))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/")
		for _, p := range reservedPrefixes {
			if strings.HasPrefix(path, p) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(`{"error":"not found","kind":"not_found"}`))
				return
			}
		}
		if path == "" {
			path = "index.html"
		}

		if f, err := fsys.Open(path); err == nil {
			if closeErr := f.Close(); closeErr != nil {
				slog.Debug("web: failed to close embedded file", "path", path, "error", closeErr)
			}
			fileServer.ServeHTTP(w, r)
			return
		}

		r.URL.Path = "/"
		fileServer.ServeHTTP(w, r)
	})
}
