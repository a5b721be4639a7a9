package instance

import (
	"os"

	"github.com/angelmondragon/scentmarket-backend/pkg/env"
)

// GetID identifies the running process in logs. WORKER_ID wins, then the
// Heroku DYNO name, then the host name.
func GetID() string {
	if id := env.First("WORKER_ID", "DYNO"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}
