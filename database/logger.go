/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"
	"github.com/tomoncle/mmailer/utils"
)

const loggerName = "DATABASE"

var (
	globalLogger   Logger
	globalLoggerMu sync.RWMutex
	driverLogOnce  sync.Once
)

type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

func (l LogLevel) String() string {
	switch l {
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "DEBUG"
	}
}

// Logger is the key/value logger used across the package.
type Logger interface {
	SetLevel(LogLevel)
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// InitLogger installs log as the package logger unless one is already set.
func InitLogger(log Logger) {
	if log == nil {
		return
	}
	globalLoggerMu.Lock()
	defer globalLoggerMu.Unlock()
	if globalLogger == nil {
		globalLogger = log
	}
}

func GetLogger() Logger {
	globalLoggerMu.RLock()
	l := globalLogger
	globalLoggerMu.RUnlock()
	if l != nil {
		return l
	}

	globalLoggerMu.Lock()
	defer globalLoggerMu.Unlock()
	if globalLogger == nil {
		globalLogger = NewDefaultLogger(utils.NewLogger(loggerName))
	}
	return globalLogger
}

// routeDriverLog sends go-sql-driver/mysql's internal messages (bad
// connections, packet errors) to the package logrus logger.
func routeDriverLog() {
	driverLogOnce.Do(func() {
		_ = mysql.SetLogger(utils.NewLogger("MYSQL"))
	})
}

// DefaultLogger passes key/value pairs to logrus as fields and reports the
// caller of its methods rather than its own location.
type DefaultLogger struct {
	logger *logrus.Logger
}

// NewDefaultLogger wraps a logrus logger. Caller reporting on l is turned off
// and replaced by the utils.CallerField field.
func NewDefaultLogger(l *logrus.Logger) *DefaultLogger {
	l.SetReportCaller(false)
	return &DefaultLogger{logger: l}
}

func (l *DefaultLogger) Debug(msg string, fields ...interface{}) {
	l.entry(fields).Debug(msg)
}

func (l *DefaultLogger) Info(msg string, fields ...interface{}) {
	l.entry(fields).Info(msg)
}

func (l *DefaultLogger) Warn(msg string, fields ...interface{}) {
	l.entry(fields).Warn(msg)
}

func (l *DefaultLogger) Error(msg string, fields ...interface{}) {
	l.entry(fields).Error(msg)
}

func (l *DefaultLogger) SetLevel(level LogLevel) {
	l.logger.SetLevel(utils.ParseLogLevel(strings.ToLower(level.String())))
}

// entry must be called directly from a logging method.
func (l *DefaultLogger) entry(fields []interface{}) *logrus.Entry {
	f := toFields(fields...)
	if _, file, line, ok := runtime.Caller(2); ok {
		f[utils.CallerField] = fmt.Sprintf("%s:%d", filepath.Base(file), line)
	}
	return l.logger.WithFields(f)
}

// toFields turns key/value pairs into logrus fields. Keys that are not
// strings are formatted with %v and a trailing key without a value is dropped.
func toFields(fields ...interface{}) logrus.Fields {
	f := make(logrus.Fields, len(fields)/2+1)
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			key = fmt.Sprint(fields[i])
		}
		f[key] = fields[i+1]
	}
	return f
}
