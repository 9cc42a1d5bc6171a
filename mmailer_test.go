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
	"database/sql"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/mmailer/database"
	"github.com/tomoncle/mmailer/model"
	"github.com/tomoncle/mmailer/types"
)

func sqliteConfig(t *testing.T, migrate bool) *database.Config {
	t.Helper()
	cfg := database.DefaultConfig()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	cfg.ConnectionConfig.Type = "sqlite"
	cfg.ConnectionConfig.DBName = fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	cfg.ConnectionConfig.MaxOpenConns = 1
	cfg.ConnectionConfig.MaxIdleConns = 1
	cfg.ConnectionConfig.ConnMaxLifetime = 0
	cfg.ConnectionConfig.ConnMaxIdleTime = 0
	cfg.ConnectionConfig.HealthCheckInterval = 0
	cfg.DataMigrateConfig.EnableMigrateOnStartup = migrate
	return cfg
}

func openClient(t *testing.T) *Client {
	t.Helper()
	c, err := Open(context.Background(), sqliteConfig(t, true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestOpenBindsTablesByExactName(t *testing.T) {
	c := openClient(t)

	user, ok := database.LookupModel(model.TableUser)
	require.True(t, ok)
	assert.IsType(t, (*model.User)(nil), user.Instance())

	completed, ok := database.LookupModel(model.TableUsersCompleted)
	require.True(t, ok)
	assert.IsType(t, (*model.UsersCompleted)(nil), completed.Instance())

	_, ok = database.LookupModel("user")
	assert.False(t, ok)
	_, ok = database.LookupModel("users_completed")
	assert.False(t, ok)

	assert.NoError(t, c.VerifyBindings(context.Background()))
}

func TestEstablishConnectsOnce(t *testing.T) {
	ctx := context.Background()
	cfg := sqliteConfig(t, true)

	first, err := Establish(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = first.Close() })
	binding, _ := database.LookupModel(model.TableUser)

	second, err := Establish(ctx, cfg)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Same(t, first.DB(), database.GetDB())

	rebound, _ := database.LookupModel(model.TableUser)
	assert.Same(t, binding, rebound, "re-establishing must keep the existing binding")

	other := sqliteConfig(t, false)
	other.ConnectionConfig.DBName = "file:elsewhere?mode=memory&cache=shared"
	_, err = Establish(ctx, other)
	assert.ErrorIs(t, err, database.ErrAlreadyEstablished)

	require.NoError(t, first.Close())
	assert.Nil(t, database.GetDB())

	third, err := Establish(ctx, cfg)
	require.NoError(t, err)
	defer func() { _ = third.Close() }()
	assert.NotSame(t, first, third)
}

func TestEstablishRetryAfterFailure(t *testing.T) {
	ctx := context.Background()
	bad := sqliteConfig(t, false)
	bad.ConnectionConfig.Type = "oracle"
	_, err := Establish(ctx, bad)
	require.Error(t, err)

	c, err := Establish(ctx, sqliteConfig(t, false))
	require.NoError(t, err)
	assert.NoError(t, c.Close())
}

func TestMissingTableFailsAtFirstUse(t *testing.T) {
	ctx := context.Background()
	c, err := Open(ctx, sqliteConfig(t, false))
	require.NoError(t, err, "bootstrap does not check tables")
	defer func() { _ = c.Close() }()

	_, err = c.Users().All(ctx)
	require.Error(t, err)
	is, kind := database.IsSqlError(err)
	assert.True(t, is)
	assert.Equal(t, database.NoTableErr, kind)

	_, err = c.Completed().Count(ctx, nil)
	assert.True(t, database.IsMissingTable(err))

	err = c.VerifyBindings(ctx)
	assert.True(t, database.IsMissingTable(err))
}

func TestVerifyBindingsOnStartup(t *testing.T) {
	cfg := sqliteConfig(t, false)
	cfg.DataMigrateConfig.VerifyBindingsOnStartup = true
	_, err := Open(context.Background(), cfg)
	require.Error(t, err)
	assert.True(t, database.IsMissingTable(err))
}

func TestMailingWorkflow(t *testing.T) {
	ctx := context.Background()
	c := openClient(t)

	ada := &model.User{Email: "ada@example.com", Name: "Ada"}
	bob := &model.User{Email: "bob@example.com"}
	cat := &model.User{Email: "cat@example.com"}
	require.NoError(t, c.Users().Save(ctx, ada))
	require.NoError(t, c.Users().Save(ctx, bob, cat))
	require.NotZero(t, ada.ID)

	found, err := c.Users().FindByEmail(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, "", found.Name)
	assert.False(t, found.CreatedAt.IsZero())

	_, err = c.Users().FindByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	pending, err := c.Pending(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, pending, 3)

	require.NoError(t, c.MarkCompleted(ctx, ada))
	require.NoError(t, c.MarkCompleted(ctx, ada))
	done, err := c.IsCompleted(ctx, ada.ID)
	require.NoError(t, err)
	assert.True(t, done)

	count, err := c.Completed().Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	pending, err = c.Pending(ctx, 1)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "bob@example.com", pending[0].Email)

	assert.Error(t, c.MarkCompleted(ctx, &model.User{Email: "new@example.com"}))
}

func TestUserServicePageAndUpsert(t *testing.T) {
	ctx := context.Background()
	c := openClient(t)

	for i := 1; i <= 5; i++ {
		require.NoError(t, c.Users().Save(ctx, &model.User{Email: fmt.Sprintf("u%d@example.com", i)}))
	}

	page, err := c.Users().Page(ctx, types.NewPageRequestWithOrders(2, 2, []string{"id ASC"}))
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	assert.Equal(t, 3, page.Pages())
	assert.True(t, page.HasNext())
	require.Len(t, page.Items, 2)
	assert.Equal(t, "u3@example.com", page.Items[0].Email)

	filtered, err := c.Users().List(ctx, types.NewQueryFilter("email LIKE ?", "u1%"))
	require.NoError(t, err)
	assert.Len(t, filtered, 1)

	require.NoError(t, c.Users().SaveOrUpdate(ctx, []string{"name"}, []string{"email"},
		&model.User{Email: "u1@example.com", Name: "First"}))
	u1, err := c.Users().FindByEmail(ctx, "u1@example.com")
	require.NoError(t, err)
	assert.Equal(t, "First", u1.Name)

	u1.Name = "Renamed"
	require.NoError(t, c.Users().Update(ctx, u1))
	got, err := c.Users().Get(ctx, u1.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)

	require.NoError(t, c.Users().Delete(ctx, u1.ID))
	total, err := c.Users().Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, total)
}

func TestClientSurvivesReconnect(t *testing.T) {
	ctx := context.Background()
	c, err := Establish(ctx, sqliteConfig(t, true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	require.NoError(t, c.Users().Save(ctx, &model.User{Email: "ada@example.com"}))

	require.NoError(t, database.GetDatabaseManager().Reconnect(ctx))
	assert.Same(t, c.DB(), database.GetDB())

	users, err := c.Users().All(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
	pending, err := c.Pending(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestStaleClientCloseKeepsNewConnection(t *testing.T) {
	ctx := context.Background()
	cfg := sqliteConfig(t, true)

	stale, err := Establish(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, database.CloseDB())

	current, err := Establish(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = current.Close() })
	assert.NotSame(t, stale, current)

	require.NoError(t, stale.Close())
	require.NotNil(t, database.GetDB())
	assert.NoError(t, current.Ping(ctx))

	again, err := Establish(ctx, cfg)
	require.NoError(t, err)
	assert.Same(t, current, again)
}

func TestGlobalServiceBeforeEstablish(t *testing.T) {
	ctx := context.Background()
	require.Nil(t, database.GetDB())
	users := NewService[model.User]()

	_, err := users.All(ctx)
	assert.ErrorIs(t, err, database.ErrNotEstablished)
	_, err = users.Count(ctx, nil)
	assert.ErrorIs(t, err, database.ErrNotEstablished)
	assert.ErrorIs(t, users.Save(ctx, &model.User{Email: "early@example.com"}), database.ErrNotEstablished)
	assert.PanicsWithValue(t, database.ErrNotEstablished, func() { users.SelectBuilder() })

	c, err := Establish(ctx, sqliteConfig(t, true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	require.NoError(t, users.Save(ctx, &model.User{Email: "late@example.com"}))
	count, err := users.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
