package daemon

import (
	"net/http"
	"path/filepath"
	"strings"
)

// staticHandler serves the web UI's built assets from cfg.StaticDir,
// rejecting any request whose cleaned path begins with "..". Go's
// http.FileServer (through http.Dir) already refuses paths whose ".."
// segments would leave the root. Symlinks inside StaticDir are followed;
// this check does not resolve them.
func (d *Daemon) staticHandler() http.Handler {
	root := d.cfg.StaticDir
	fileServer := http.FileServer(http.Dir(root))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cleaned := filepath.Clean(r.URL.Path)
		if strings.HasPrefix(cleaned, "..") {
			http.NotFound(w, r)
			return
		}
		fileServer.ServeHTTP(w, r)
	})
}
