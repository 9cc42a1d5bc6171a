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

package repository

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/mmailer/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type subscriber struct {
	bun.BaseModel `bun:"table:User,alias:u"`

	ID    int64  `bun:"id,pk,autoincrement"`
	Email string `bun:"email,notnull,unique"`
	Name  string `bun:"name,nullzero"`
}

func newTestRepo(t *testing.T) Repository[subscriber] {
	t.Helper()
	sqldb, err := sql.Open(sqliteshim.ShimName, "file:"+t.Name()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.NewCreateTable().Model((*subscriber)(nil)).Exec(context.Background())
	require.NoError(t, err)
	return NewRepository[subscriber](db)
}

func TestRepositoryCRUD(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	ada := &subscriber{Email: "ada@example.com", Name: "Ada"}
	require.NoError(t, repo.Create(ctx, ada))
	require.NoError(t, repo.Create(ctx, &subscriber{Email: "bob@example.com"}, &subscriber{Email: "cat@example.com"}))
	require.NoError(t, repo.Create(ctx))
	require.NotZero(t, ada.ID)

	got, err := repo.GetOne(ctx, ada.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.Name)

	_, err = repo.GetOne(ctx, 404)
	assert.ErrorIs(t, err, sql.ErrNoRows)

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	ok, err := repo.Exists(ctx, "email = ?", "bob@example.com")
	require.NoError(t, err)
	assert.True(t, ok)

	n, err := repo.Count(ctx, types.NewQueryFilter("name IS NULL"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got.Name = "Ada L."
	require.NoError(t, repo.Update(ctx, got))
	found, err := repo.FindOne(ctx, "email = ?", "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Ada L.", found.Name)

	require.NoError(t, repo.Delete(ctx, ada.ID))
	n, err = repo.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRepositoryPage(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	empty, err := repo.Page(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Total)
	assert.Empty(t, empty.Items)

	for _, email := range []string{"a@x.io", "b@x.io", "c@x.io"} {
		require.NoError(t, repo.Create(ctx, &subscriber{Email: email}))
	}
	page, err := repo.Page(ctx, types.NewPageRequest(2, 2, types.NewQueryFilter("email LIKE ?", "%@x.io"), []string{"email DESC"}))
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "a@x.io", page.Items[0].Email)
}

func TestRepositoryUpsertAndTx(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	assert.Error(t, repo.Upsert(ctx, nil, nil, &subscriber{Email: "a@x.io"}))
	require.NoError(t, repo.Upsert(ctx, []string{"name"}, []string{"email"}, &subscriber{Email: "a@x.io", Name: "one"}))
	require.NoError(t, repo.Upsert(ctx, []string{"name"}, []string{"email"}, &subscriber{Email: "a@x.io", Name: "two"}))

	n, err := repo.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got, err := repo.FindOne(ctx, "email = ?", "a@x.io")
	require.NoError(t, err)
	assert.Equal(t, "two", got.Name)

	err = repo.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		if err := repo.CreateWithTx(ctx, tx, &subscriber{Email: "b@x.io"}); err != nil {
			return err
		}
		return repo.CreateWithTx(ctx, tx, &subscriber{Email: "a@x.io"})
	})
	require.Error(t, err)
	n, err = repo.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "failed transaction must roll back")
}
