package websocket

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// allowedSchemes are origins of clients that are not web pages: OBS browser
// sources and the cookie-export browser extension.
var allowedSchemes = []string{"obs://", "chrome-extension://", "moz-extension://"}

// NewCheckOrigin returns an upgrader origin check. It allows empty origins
// (non-browser clients), OBS and extension origins, and the app's own origin
// derived from appURL. When isDevelopment is true, localhost origins are
// additionally allowed.
func NewCheckOrigin(appURL string, isDevelopment bool) func(r *http.Request) bool {
	appOrigin := extractOrigin(appURL)

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || origin == appOrigin {
			return true
		}

		for _, scheme := range allowedSchemes {
			if strings.HasPrefix(origin, scheme) {
				return true
			}
		}

		if isDevelopment && isLocalhostOrigin(origin) {
			return true
		}

		slog.Warn("WebSocket origin rejected", "origin", origin, "remote_addr", r.RemoteAddr)
		return false
	}
}

func extractOrigin(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

func isLocalhostOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	default:
		return false
	}
}
