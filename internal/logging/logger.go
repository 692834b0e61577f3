// Package logging wires the named package loggers used across the module.
//
// Every package obtains its logger once with logger.GetLogger(name). Init
// installs a factory that writes "LEVEL | package | message" lines to stdout
// and applies the configured level to every known package logger.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/lni/dragonboat/v4/logger"
)

// Packages lists the logger names used by the module.
var Packages = []string{
	"cluster",
	"health",
	"coordinator",
	"peer",
	"replica",
	"storage",
	"http",
	"node",
}

// --------------------------------------------------------------------------
// Custom Logger (implements dragonboat's logger.ILogger)
// --------------------------------------------------------------------------

type quorraLogger struct {
	name   string
	level  logger.LogLevel
	logger *log.Logger
	mu     sync.RWMutex
}

func (l *quorraLogger) SetLevel(level logger.LogLevel) {
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
}

func (l *quorraLogger) enabled(level logger.LogLevel) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.level >= level
}

func (l *quorraLogger) Debugf(format string, args ...interface{}) {
	if l.enabled(logger.DEBUG) {
		l.log("DEBUG", format, args...)
	}
}

func (l *quorraLogger) Infof(format string, args ...interface{}) {
	if l.enabled(logger.INFO) {
		l.log("INFO", format, args...)
	}
}

func (l *quorraLogger) Warningf(format string, args ...interface{}) {
	if l.enabled(logger.WARNING) {
		l.log("WARN", format, args...)
	}
}

func (l *quorraLogger) Errorf(format string, args ...interface{}) {
	if l.enabled(logger.ERROR) {
		l.log("ERROR", format, args...)
	}
}

func (l *quorraLogger) Panicf(format string, args ...interface{}) {
	panic(fmt.Sprintf(format, args...))
}

func (l *quorraLogger) log(levelStr string, format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	l.logger.Printf("%-5s | %-11s | %s", levelStr, l.name, message)
}

// --------------------------------------------------------------------------
// Logger Factory
// --------------------------------------------------------------------------

var output io.Writer = os.Stdout

// CreateLogger creates the logger for a package. It is installed as the
// dragonboat logger factory by Init.
func CreateLogger(pkgName string) logger.ILogger {
	return &quorraLogger{
		name:   pkgName,
		level:  logger.INFO,
		logger: log.New(output, "", log.Ldate|log.Ltime),
	}
}

// ParseLevel converts a configured level name to a logger.LogLevel.
func ParseLevel(level string) (logger.LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return logger.DEBUG, nil
	case "info", "":
		return logger.INFO, nil
	case "warning", "warn":
		return logger.WARNING, nil
	case "error":
		return logger.ERROR, nil
	default:
		return logger.INFO, fmt.Errorf("invalid log level: %s. must be one of debug, info, warn, error", level)
	}
}

var factoryOnce sync.Once

// Init installs the logger factory (once per process) and sets the level of
// every package logger.
func Init(level string) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}

	factoryOnce.Do(func() {
		logger.SetLoggerFactory(CreateLogger)
	})

	for _, pkg := range Packages {
		logger.GetLogger(pkg).SetLevel(lvl)
	}
	return nil
}
