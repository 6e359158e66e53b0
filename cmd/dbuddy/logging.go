package main

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// defaultLogFile is where the TUI logs when no file is configured; the
// terminal belongs to the UI.
func defaultLogFile() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "dbuddy", "dbuddy.log")
}

func rotatingFile(path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     7,
	}
}

// setupLogging points the global logger at w.
func setupLogging(level string, w io.Writer) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return errors.Wrapf(err, "log level %q", level)
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
	return nil
}

// tuiLogOutput always logs to a file.
func tuiLogOutput(path string) io.WriteCloser {
	if path == "" {
		path = defaultLogFile()
	}
	return rotatingFile(path)
}

// dumpLogOutput logs to the file when one is configured, else to stderr.
func dumpLogOutput(path string) io.WriteCloser {
	if path != "" {
		return rotatingFile(path)
	}
	return nopCloser{zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}}
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }
