// Package common provides shared configuration, logging and wire types for
// the rkv RPC layer.
package common

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
)

// --------------------------------------------------------------------------
// Log Levels
// --------------------------------------------------------------------------

type LogLevel int

const (
	LevelError LogLevel = iota
	LevelWarning
	LevelInfo
	LevelDebug
)

// ParseLogLevel converts a string level to a LogLevel
func ParseLogLevel(level string) (LogLevel, error) {
	switch strings.ToLower(level) {
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warning", "warn":
		return LevelWarning, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("invalid log level: %s. must be one of debug, info, warn, error", level)
	}
}

// --------------------------------------------------------------------------
// Logger Interface
// --------------------------------------------------------------------------

// ILogger is the leveled logger used by all rkv packages. Each package
// obtains a named logger via GetLogger; names show up in the log output so
// subsystems can be told apart.
type ILogger interface {
	SetLevel(level LogLevel)
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warningf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// --------------------------------------------------------------------------
// Logger Implementation
// --------------------------------------------------------------------------

// rkvLogger implements the ILogger interface with custom formatting
type rkvLogger struct {
	name   string
	level  LogLevel
	logger *log.Logger
}

func (l *rkvLogger) SetLevel(level LogLevel) {
	l.level = level
}

func (l *rkvLogger) Debugf(format string, args ...interface{}) {
	if l.level >= LevelDebug {
		l.log("DEBUG", format, args...)
	}
}

func (l *rkvLogger) Infof(format string, args ...interface{}) {
	if l.level >= LevelInfo {
		l.log("INFO", format, args...)
	}
}

func (l *rkvLogger) Warningf(format string, args ...interface{}) {
	if l.level >= LevelWarning {
		l.log("WARN", format, args...)
	}
}

func (l *rkvLogger) Errorf(format string, args ...interface{}) {
	if l.level >= LevelError {
		l.log("ERROR", format, args...)
	}
}

// log formats and writes a log message. this internal helper is used by the public methods
func (l *rkvLogger) log(levelStr string, format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	l.logger.Printf("%-5s | %-15s | %s", levelStr, l.name, message)
}

// --------------------------------------------------------------------------
// Logger Registry
// --------------------------------------------------------------------------

var (
	loggersMu    sync.Mutex
	loggers      = map[string]*rkvLogger{}
	defaultLevel = LevelInfo
)

// GetLogger returns the named logger, creating it on first use.
// New loggers start at the current default level.
func GetLogger(pkgName string) ILogger {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	if l, ok := loggers[pkgName]; ok {
		return l
	}

	l := &rkvLogger{
		name:   pkgName,
		level:  defaultLevel,
		logger: log.New(os.Stdout, "", log.Ldate|log.Ltime),
	}
	loggers[pkgName] = l
	return l
}

// SetLogLevel applies the given level to every logger created so far and to
// all loggers created afterwards.
func SetLogLevel(level LogLevel) {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	defaultLevel = level
	for _, l := range loggers {
		l.level = level
	}
}

// InitLoggers configures all subsystem loggers from the server config.
func InitLoggers(config ServerConfig) {
	level, err := ParseLogLevel(config.LogLevel)
	if err != nil {
		panic(err.Error())
	}
	SetLogLevel(level)
}
