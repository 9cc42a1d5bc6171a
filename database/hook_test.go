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
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/mmailer/utils"
	"github.com/uptrace/bun"
)

type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) SetLevel(LogLevel) {}

func (l *recordingLogger) record(level, msg string, fields ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, level+" "+msg+formatFields(fields...))
}

func (l *recordingLogger) Debug(msg string, fields ...interface{}) { l.record("DEBUG", msg, fields...) }
func (l *recordingLogger) Info(msg string, fields ...interface{})  { l.record("INFO", msg, fields...) }
func (l *recordingLogger) Warn(msg string, fields ...interface{})  { l.record("WARN", msg, fields...) }
func (l *recordingLogger) Error(msg string, fields ...interface{}) { l.record("ERROR", msg, fields...) }

func (l *recordingLogger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lines)
}

func TestSlowQueryHook(t *testing.T) {
	log := &recordingLogger{}
	h := &SlowQueryHook{SlowTime: 10 * time.Millisecond, Logger: log}
	ctx := context.Background()

	h.AfterQuery(ctx, &bun.QueryEvent{Query: "SELECT 1", StartTime: time.Now()})
	assert.Equal(t, 0, log.count())

	h.AfterQuery(ctx, &bun.QueryEvent{Query: "SELECT 1", StartTime: time.Now().Add(-time.Second)})
	assert.Equal(t, 1, log.count())
	assert.Contains(t, log.lines[0], "WARN")
	assert.Contains(t, log.lines[0], "query=SELECT 1")

	h.AfterQuery(ctx, &bun.QueryEvent{Query: "SELECT 1", StartTime: time.Now(), Err: sql.ErrNoRows})
	assert.Equal(t, 1, log.count())

	h.AfterQuery(ctx, &bun.QueryEvent{Query: "SELECT 1", StartTime: time.Now(), Err: errors.New("no such table: User")})
	assert.Equal(t, 2, log.count())
	assert.Contains(t, log.lines[1], "DEBUG")

	EnableBunSqlSilent(true)
	defer EnableBunSqlSilent(false)
	h.AfterQuery(ctx, &bun.QueryEvent{Query: "SELECT 1", StartTime: time.Now().Add(-time.Second)})
	assert.Equal(t, 2, log.count())
}

func formatFields(fields ...interface{}) string {
	var b strings.Builder
	for i := 0; i+1 < len(fields); i += 2 {
		fmt.Fprintf(&b, " %v=%v", fields[i], fields[i+1])
	}
	return b.String()
}

func TestToFields(t *testing.T) {
	assert.Empty(t, toFields())
	assert.Empty(t, toFields("lonely"))
	assert.Equal(t, logrus.Fields{"a": 1, "b": "x", "3": true}, toFields("a", 1, "b", "x", 3, true, "dangling"))
}

func TestDefaultLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	l.SetReportCaller(true)
	l.SetFormatter(&utils.JSONLogFormatter{LoggerName: loggerName})
	log := NewDefaultLogger(l)

	log.Info("Database connected successfully", "type", "sqlite", "dbname", "MAILLIST")

	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "Database connected successfully", rec["message"])
	assert.Equal(t, map[string]interface{}{"type": "sqlite", "dbname": "MAILLIST"}, rec["fields"])
	caller, _ := rec["caller"].(string)
	assert.True(t, strings.HasPrefix(caller, "hook_test.go:"), "caller %q", caller)
}
