package main

import (
	"io"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/writer"
	"gopkg.in/natefinch/lumberjack.v2"
)

var logCloser io.Closer

func setupLogging(logDebug, logTrace bool, dataDir, logFile string, maxSizeMB int) {

	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:  true,
		DisableSorting: true,
	})

	if logDebug {
		log.SetLevel(log.DebugLevel)
	}

	if logTrace {
		log.SetLevel(log.TraceLevel)
	}

	if logFile == "" {
		return
	}

	logLocation := logFile
	if !filepath.IsAbs(logLocation) {
		logLocation = filepath.Join(dataDir, logFile)
	}

	rotator := &lumberjack.Logger{
		Filename:   logLocation,
		MaxSize:    maxSizeMB,
		MaxBackups: 5,
		Compress:   true,
	}
	logCloser = rotator

	// Write everything to log file too
	log.AddHook(&writer.Hook{
		Writer:    rotator,
		LogLevels: log.AllLevels,
	})
}

func closeLogging() {
	if logCloser != nil {
		_ = logCloser.Close()
	}
}
