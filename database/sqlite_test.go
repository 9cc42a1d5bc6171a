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
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

type sampleUser struct {
	bun.BaseModel `bun:"table:User,alias:u"`

	ID        int64     `bun:"id,pk,autoincrement"`
	Email     string    `bun:"email,notnull,unique"`
	Name      string    `bun:"name,nullzero"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type sampleCompleted struct {
	bun.BaseModel `bun:"table:UsersCompleted,alias:uc"`

	ID          int64     `bun:"id,pk,autoincrement"`
	UserID      int64     `bun:"user_id,notnull"`
	Email       string    `bun:"email,notnull"`
	CompletedAt time.Time `bun:"completed_at,nullzero,notnull,default:current_timestamp"`
}

func sampleModels() []SQLModel {
	return []SQLModel{
		NewModelAdapter((*sampleCompleted)(nil), 20),
		NewModelAdapter((*sampleUser)(nil), 10),
	}
}

// sqliteConfig returns a config for a private in-memory database that lives
// as long as its single pooled connection.
func sqliteConfig(t *testing.T) *Config {
	t.Helper()
	cfg := DefaultConfig()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	cfg.ConnectionConfig.Type = "sqlite"
	cfg.ConnectionConfig.DBName = fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	cfg.ConnectionConfig.MaxOpenConns = 1
	cfg.ConnectionConfig.MaxIdleConns = 1
	cfg.ConnectionConfig.ConnMaxLifetime = 0
	cfg.ConnectionConfig.ConnMaxIdleTime = 0
	cfg.ConnectionConfig.HealthCheckInterval = 0
	return cfg
}

func openSQLite(t *testing.T, cfg *Config) *bun.DB {
	t.Helper()
	m := NewDatabaseManager(cfg)
	m.SetLogger(&recordingLogger{})
	require.NoError(t, m.Connect(context.Background()))
	t.Cleanup(func() { _ = m.Disconnect() })
	return m.GetDB()
}
