package security

import "net/http"

// ContentSecurityPolicy admits the plotting bundle from its CDN and the inline
// viewer script. The WebGL 3D traces generate helper functions at runtime, hence
// unsafe-eval. Images are only ever served by this process.
const ContentSecurityPolicy = "default-src 'self'; " +
	"script-src 'self' 'unsafe-inline' 'unsafe-eval' https://cdn.plot.ly; " +
	"style-src 'self' 'unsafe-inline'; " +
	"img-src 'self' data: blob:"

// Headers adds security-related HTTP headers
func Headers(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Prevent clickjacking
		w.Header().Set("X-Frame-Options", "DENY")

		// Image bytes are labelled image/jpeg whatever they contain
		w.Header().Set("X-Content-Type-Options", "nosniff")

		w.Header().Set("Referrer-Policy", "same-origin")
		w.Header().Set("Content-Security-Policy", ContentSecurityPolicy)

		next.ServeHTTP(w, r)
	})
}
