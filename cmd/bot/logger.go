package main

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/eddiefleurent/delta_neutral/internal/config"
)

// newLogger writes to stdout and, when configured, to a rotating log file
func newLogger(cfg *config.Config) (*logrus.Logger, func(), error) {
	level, err := logrus.ParseLevel(cfg.Environment.LogLevel)
	if err != nil {
		return nil, nil, err
	}

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	if cfg.Logging.File == "" {
		logger.SetOutput(os.Stdout)
		return logger, func() {}, nil
	}

	rotator := &lumberjack.Logger{
		Filename:   cfg.Logging.File,
		MaxSize:    cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		Compress:   true,
	}
	logger.SetOutput(io.MultiWriter(os.Stdout, rotator))
	return logger, func() { _ = rotator.Close() }, nil
}
