// Package web serves the live detection dashboard.
package web

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"net/http"
)

//go:embed dashboard.html
var dashboardHTML []byte

// Dashboard returns a handler for the dashboard page. The page opens the
// event websocket at wsPath on the same host.
func Dashboard(wsPath string) http.Handler {
	quoted, _ := json.Marshal(wsPath)
	page := bytes.ReplaceAll(dashboardHTML, []byte("{{WS_PATH}}"), quoted)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		_, _ = w.Write(page)
	})
}
