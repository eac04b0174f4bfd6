package common

import (
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	FailureStoreMemory = "memory"
	FailureStoreRedis  = "redis"

	// Where the brute-force key comes from.
	ClientIPFirstForwarded = "first-forwarded"
	ClientIPLastForwarded  = "last-forwarded"
	ClientIPRemoteAddr     = "remote-addr"
)

type Config struct {
	// Credentials
	CredentialsFile string          `split_words:"true" default:"./config/users.cfg" envconfig:"CONFIG_FILE"`
	ReloadSecret    ProtectedString `split_words:"true"`
	WatchConfigFile bool            `split_words:"true" default:"false"`

	// Identity Headers
	AuthHeader   string `split_words:"true" default:"Authorization"`
	UserIDHeader string `split_words:"true" default:"X-Forwarded-User" envconfig:"USERID_HEADER"`
	UserIDPrefix string `split_words:"true" envconfig:"USERID_PREFIX"`

	// Infra
	Hostname           string `split_words:"true" envconfig:"SERVER_HOSTNAME"`
	Port               int    `split_words:"true" default:"8080" envconfig:"SERVER_PORT"`
	ReadinessProbePort int    `split_words:"true" default:"8081"`
	LogLevel           string `split_words:"true" default:"INFO"`
	AccessLog          bool   `split_words:"true" default:"false"`

	// Brute-force protection
	BruteForceProtection  bool            `split_words:"true" default:"true"`
	FailureWindow         time.Duration   `split_words:"true" default:"60s"`
	BackoffBase           time.Duration   `split_words:"true" default:"500ms"`
	BackoffMax            time.Duration   `split_words:"true" default:"5s"`
	FailureStoreType      string          `split_words:"true" default:"memory"`
	FailureStoreRedisAddr string          `split_words:"true" default:"127.0.0.1:6379"`
	FailureStoreRedisPWD  ProtectedString `split_words:"true" envconfig:"FAILURE_STORE_REDIS_PWD"`
	FailureStoreRedisDB   int             `split_words:"true" default:"0" envconfig:"FAILURE_STORE_REDIS_DB"`
	ClientIPSource        string          `split_words:"true" default:"first-forwarded" envconfig:"CLIENT_IP_SOURCE"`
}

// ParseConfig reads the Config from the environment and validates it.
func ParseConfig() (*Config, error) {

	var c Config
	err := envconfig.Process("", &c)
	if err != nil {
		return nil, err
	}

	c.LogLevel = strings.ToUpper(strings.TrimSpace(c.LogLevel))
	if !validLogLevel(c.LogLevel) {
		return nil, errors.Errorf("unsupported value for the log level: LOG_LEVEL=%s", c.LogLevel)
	}
	if !validFailureStoreType(c.FailureStoreType) {
		return nil, errors.Errorf("unsupported value for the failure store type: "+
			"FAILURE_STORE_TYPE=%s", c.FailureStoreType)
	}
	if !validClientIPSource(c.ClientIPSource) {
		return nil, errors.Errorf("unsupported value for the client IP source: "+
			"CLIENT_IP_SOURCE=%s", c.ClientIPSource)
	}
	if c.BackoffMax < c.BackoffBase {
		return nil, errors.Errorf("BACKOFF_MAX (%s) must not be smaller than BACKOFF_BASE (%s)",
			c.BackoffMax, c.BackoffBase)
	}
	if c.FailureWindow <= 0 {
		return nil, errors.Errorf("FAILURE_WINDOW must be positive, got %s", c.FailureWindow)
	}
	c.CredentialsFile = strings.TrimSpace(c.CredentialsFile)
	if c.CredentialsFile == "" {
		return nil, errors.New("CONFIG_FILE must not be empty")
	}

	return &c, nil
}

// LogrusLevel maps the configured LOG_LEVEL to a logrus level.
func (c *Config) LogrusLevel() log.Level {
	switch c.LogLevel {
	case "FATAL":
		return log.FatalLevel
	case "ERROR":
		return log.ErrorLevel
	case "WARN":
		return log.WarnLevel
	case "DEBUG":
		return log.DebugLevel
	default:
		return log.InfoLevel
	}
}

// validFailureStoreType() examines if the admins have configured a valid
// value for the FAILURE_STORE_TYPE envvar.
func validFailureStoreType(storeType string) bool {
	if storeType == FailureStoreMemory {
		return true
	}
	if storeType == FailureStoreRedis {
		return true
	}

	log.Warn("Please select exactly one of the options: " +
		"i) memory: to track failed attempts in process memory, " +
		"ii) redis: to share failed attempts between replicas through Redis")

	return false
}

// validClientIPSource() examines if the admins have configured a valid value
// for the CLIENT_IP_SOURCE envvar.
func validClientIPSource(source string) bool {
	switch source {
	case ClientIPFirstForwarded, ClientIPLastForwarded, ClientIPRemoteAddr:
		return true
	}
	log.Warn("Please select exactly one of the options: " +
		"i) first-forwarded: the first X-Forwarded-For entry, " +
		"ii) last-forwarded: the entry appended by the proxy in front of us, " +
		"iii) remote-addr: the TCP peer")
	return false
}

// validLogLevel() examines if the admins have configured a valid value for the
// LOG_LEVEL envvar.
func validLogLevel(level string) bool {
	switch level {
	case "FATAL", "ERROR", "WARN", "INFO", "DEBUG":
		return true
	}

	log.Warn("Please select exactly one of the options for the LOG_LEVEL: " +
		"FATAL, ERROR, WARN, INFO or DEBUG")

	return false
}
