// Package logger wires logrus to the console and an optional rotated log
// file. Init also configures the global logrus instance so component loggers
// created with logrus.WithField share the same output.
package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the configured instance. Packages usually derive their own entry
// via logrus.WithField("component", ...) instead of using it directly.
var Logger *logrus.Logger

type Config struct {
	Level      string `yaml:"level"`      // debug, info, warn, error
	OutputFile string `yaml:"outputFile"` // empty logs to the console only
	MaxSize    int    `yaml:"maxSize"`    // MB per file before rotation
	MaxBackups int    `yaml:"maxBackups"` // rotated files to keep
	MaxAge     int    `yaml:"maxAge"`     // days to keep rotated files
	Compress   bool   `yaml:"compress"`
}

// Init configures logging from config. Safe to call again to reconfigure.
func Init(config Config) error {
	logger := logrus.New()

	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	formatter := &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "06-01-02 15:04:05",
		ForceColors:     true,
	}
	logger.SetFormatter(formatter)

	writers := []io.Writer{os.Stdout}
	if config.OutputFile != "" {
		if err := os.MkdirAll(filepath.Dir(config.OutputFile), 0755); err != nil {
			return err
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   config.OutputFile,
			MaxSize:    config.MaxSize,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAge,
			Compress:   config.Compress,
		})
	}
	multiWriter := io.MultiWriter(writers...)
	logger.SetOutput(multiWriter)

	// keep component loggers built on the global logrus in sync
	logrus.SetOutput(multiWriter)
	logrus.SetLevel(level)
	logrus.SetFormatter(formatter)

	Logger = logger
	return nil
}

// InitDefault is console-only logging at info level.
func InitDefault() error {
	return Init(Config{Level: "info"})
}
