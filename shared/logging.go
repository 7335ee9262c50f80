package shared

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// ConfigureLogging applies the logging configuration to the global logrus
// logger. When Output names a file path, log lines go through a rotating
// file writer in addition to stdout.
func ConfigureLogging(cfg LoggingConfig) {
	level, err := logrus.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if strings.EqualFold(cfg.Format, "json") {
		logrus.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if cfg.Output != "" && cfg.Output != "stdout" {
		rotating := &lumberjack.Logger{
			Filename:   cfg.Output,
			MaxSize:    100, // MB
			MaxBackups: 5,
			MaxAge:     14, // days
			Compress:   true,
		}
		logrus.SetOutput(io.MultiWriter(os.Stdout, rotating))
	} else {
		logrus.SetOutput(os.Stdout)
	}

	logrus.WithFields(logrus.Fields{
		"service": cfg.ServiceName,
		"level":   level.String(),
		"format":  cfg.Format,
		"output":  cfg.Output,
	}).Info("Logging configured")
}
