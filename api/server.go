package api

import (
	"net/http"
	"time"

	"github.com/angelmondragon/scentmarket-backend/pkg/config"
)

const (
	readHeaderTimeout = 5 * time.Second
	readTimeout       = 15 * time.Second
	writeTimeout      = 30 * time.Second
	idleTimeout       = 60 * time.Second
)

// NewServer returns the HTTP server that cmd/api runs. port overrides the
// configured port when set (platforms such as Heroku inject PORT).
func NewServer(cfg *config.Config, port string, handler http.Handler) *http.Server {
	if port == "" {
		port = cfg.App.Port
	}
	return &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}
}
