package middleware

import (
	"net/http"
	"os"
	"path/filepath"
)

const placeholderSVG = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 200 200"><rect width="200" height="200" fill="#1a1a1a"/><circle cx="100" cy="90" r="38" fill="none" stroke="#555" stroke-width="6"/><circle cx="100" cy="90" r="12" fill="#555"/><text x="100" y="170" text-anchor="middle" font-family="Arial" font-size="14" fill="#888">COVER</text></svg>`

// StaticFileServer serves album cover art with a placeholder fallback for
// missing files.
func StaticFileServer(dir string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := filepath.Join(dir, filepath.Clean(r.URL.Path))

		if _, err := os.Stat(path); err == nil {
			w.Header().Set("Cache-Control", "public, max-age=2592000")
			http.ServeFile(w, r, path)
			return
		}

		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "public, max-age=86400")
		w.Write([]byte(placeholderSVG))
	})
}
