// internal/infra/logger/logger.go
package logger

import (
	"os"
	"strings"

	"youtrack_notification_bot/internal/infra/config"

	"github.com/sirupsen/logrus"
)

// New builds the application logger from configuration: JSON in production and
// staging, colored text otherwise.
func New(cfg *config.AppConfig) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		log.Warnf("Invalid log level '%s', defaulting to 'info'. Error: %v", cfg.LogLevel, err)
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	switch strings.ToLower(cfg.Environment) {
	case "production", "staging":
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00", // ISO8601
		})
	default:
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	log.Debugf("Logger initialized: level=%s environment=%s", log.GetLevel(), cfg.Environment)
	return log
}

// Component returns an entry tagged with the component name.
func Component(log *logrus.Logger, name string) *logrus.Entry {
	return log.WithField("component", name)
}
