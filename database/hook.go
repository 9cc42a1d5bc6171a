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
	"context"
	"database/sql"
	"errors"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"github.com/uptrace/bun"
)

var bunSqlSilentMode atomic.Bool

// EnableBunSqlSilent mutes SlowQueryHook, e.g. while provisioning tables.
func EnableBunSqlSilent(b bool) {
	bunSqlSilentMode.Store(b)
}

var (
	slowMarker  = color.New(color.FgYellow, color.Bold).SprintFunc()
	errorMarker = color.New(color.BgRed, color.FgWhite).SprintFunc()
)

// SlowQueryHook warns about queries slower than SlowTime and reports failed
// queries other than "no rows" at debug level.
type SlowQueryHook struct {
	SlowTime time.Duration
	Logger   Logger
}

var _ bun.QueryHook = (*SlowQueryHook)(nil)

func (h *SlowQueryHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *SlowQueryHook) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	if bunSqlSilentMode.Load() || h.Logger == nil {
		return
	}
	duration := time.Since(event.StartTime)
	if event.Err != nil {
		if errors.Is(event.Err, sql.ErrNoRows) || errors.Is(event.Err, sql.ErrTxDone) {
			return
		}
		h.Logger.Debug(errorMarker(" query failed "),
			"operation", event.Operation(),
			"duration", duration.Round(time.Microsecond),
			"error", event.Err,
		)
		return
	}
	if h.SlowTime > 0 && duration > h.SlowTime {
		h.Logger.Warn(slowMarker("Database slow query detected"),
			"operation", event.Operation(),
			"duration", duration.Round(time.Microsecond),
			"slow_threshold", h.SlowTime,
			"query", event.Query,
		)
	}
}
