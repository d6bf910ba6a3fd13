// Package httpserver builds the intake API's http.Server. Request bodies are
// small JSON documents, so the read/write limits are tight.
package httpserver

import (
	"net/http"
	"time"
)

// New builds an HTTP server with the project's defaults.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
