//go:build integration

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

package mmailer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/tomoncle/mmailer/database"
	"github.com/tomoncle/mmailer/model"
	"github.com/uptrace/bun"
)

func setupMySQLContainer(t *testing.T) *database.Config {
	t.Helper()
	ctx := context.Background()

	container, err := tcmysql.Run(ctx, "mysql:8.0",
		tcmysql.WithDatabase(database.DefaultDBName),
		tcmysql.WithUsername(database.DefaultUsername),
		tcmysql.WithPassword("maillist"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "3306/tcp")
	require.NoError(t, err)

	cfg := database.DefaultConfig()
	cfg.ConnectionConfig.Type = "mysql2"
	cfg.ConnectionConfig.Host = host
	cfg.ConnectionConfig.Port = port.Int()
	cfg.ConnectionConfig.Password = "maillist"
	cfg.ConnectionConfig.HealthCheckInterval = 0
	return cfg
}

func setupPostgresContainer(t *testing.T) *database.Config {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase(database.DefaultDBName),
		tcpostgres.WithUsername("mailer"),
		tcpostgres.WithPassword("mailer"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	cfg := database.DefaultConfig()
	cfg.ConnectionConfig.Type = "postgres"
	cfg.ConnectionConfig.Host = host
	cfg.ConnectionConfig.Port = port.Int()
	cfg.ConnectionConfig.Username = "mailer"
	cfg.ConnectionConfig.Password = "mailer"
	cfg.ConnectionConfig.HealthCheckInterval = 0
	return cfg
}

func TestMySQLBootstrap(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	cfg := setupMySQLContainer(t)

	// the tables do not exist yet: the bootstrap succeeds, first use fails
	c, err := Open(ctx, cfg)
	require.NoError(t, err)
	_, err = c.Users().All(ctx)
	is, kind := database.IsSqlError(err)
	assert.True(t, is)
	assert.Equal(t, database.NoTableErr, kind)
	require.NoError(t, c.Close())

	cfg.DataMigrateConfig.EnableMigrateOnStartup = true
	cfg.DataMigrateConfig.EnableForeignKey = true
	first, err := Establish(ctx, cfg)
	require.NoError(t, err)
	defer func() { _ = first.Close() }()
	second, err := Establish(ctx, cfg)
	require.NoError(t, err)
	assert.Same(t, first, second)

	ok, err := database.TableExists(ctx, first.DB(), model.TableUser)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = database.TableExists(ctx, first.DB(), "user")
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, first.VerifyBindings(ctx))

	user := &model.User{Email: "ada@example.com", Name: "Ada"}
	require.NoError(t, first.Users().Save(ctx, user))
	require.NoError(t, first.MarkCompleted(ctx, user))
	require.NoError(t, first.MarkCompleted(ctx, user))
	pending, err := first.Pending(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// the foreign key rejects completions for unknown users
	err = first.Completed().Save(ctx, &model.UsersCompleted{UserID: 999, Email: "ghost@example.com"})
	is, kind = database.IsSqlError(err)
	assert.True(t, is)
	assert.Equal(t, database.ForeignKeyViolationErr, kind)
}

func TestPostgresBootstrap(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	cfg := setupPostgresContainer(t)
	cfg.DataMigrateConfig.EnableMigrateOnStartup = true
	cfg.DataMigrateConfig.EnableForeignKey = true

	c, err := Open(ctx, cfg)
	require.NoError(t, err)
	defer func() { _ = c.Close() }()
	require.NoError(t, c.VerifyBindings(ctx))

	users := []*model.User{{Email: "a@example.com"}, {Email: "b@example.com"}}
	require.NoError(t, c.Users().Save(ctx, users...))
	require.NoError(t, c.MarkCompleted(ctx, users[0]))

	pending, err := c.Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "b@example.com", pending[0].Email)
	// adding the constraints again inside a transaction must leave it usable
	fkm := database.NewForeignKeyManager(database.GetLogger())
	err = c.DB().RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := fkm.AddAllForeignKeys(ctx, tx); err != nil {
			return err
		}
		_, err := tx.NewInsert().Model(&model.User{Email: "c@example.com"}).Exec(ctx)
		return err
	})
	require.NoError(t, err)
	count, err := c.Users().Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}
