package logger

import (
	"net/http"

	"github.com/arrikto/simpleauth/common"
	log "github.com/sirupsen/logrus"
)

// ForRequest returns a log entry annotated with the request's client and
// target. Never add the Authorization header or reload secret to it.
func ForRequest(r *http.Request) *log.Entry {
	return log.WithContext(r.Context()).WithFields(log.Fields{
		"ip":     common.ClientIP(r),
		"host":   r.Host,
		"path":   r.URL.Path,
		"method": r.Method,
	})
}

// Setup configures the standard logger for the service.
func Setup(level log.Level) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(level)
}
