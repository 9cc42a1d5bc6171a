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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

type registryUser struct {
	bun.BaseModel `bun:"table:User,alias:u"`

	ID    int64  `bun:"id,pk,autoincrement"`
	Email string `bun:"email,notnull"`
}

type registryUserShadow struct {
	bun.BaseModel `bun:"table:User"`

	ID int64 `bun:"id,pk"`
}

type registryCompleted struct {
	bun.BaseModel `bun:"table:UsersCompleted,alias:uc"`

	ID          int64     `bun:"id,pk,autoincrement"`
	CompletedAt time.Time `bun:"completed_at"`
}

type untagged struct {
	ID int64
}

func TestResolveTableNameKeepsCase(t *testing.T) {
	name, err := ResolveTableName((*registryUser)(nil))
	require.NoError(t, err)
	assert.Equal(t, "User", name)

	name, err = ResolveTableName(&registryCompleted{})
	require.NoError(t, err)
	assert.Equal(t, "UsersCompleted", name)

	_, err = ResolveTableName(&untagged{})
	assert.Error(t, err)
	_, err = ResolveTableName(nil)
	assert.Error(t, err)
}

func TestRegistryRegisterIsIdempotent(t *testing.T) {
	r := NewModelRegistry()
	first := NewModelAdapter((*registryUser)(nil), 1)

	added, err := r.Register(first)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = r.Register(NewModelAdapter((*registryUserShadow)(nil), 0))
	require.NoError(t, err)
	assert.False(t, added)

	got, ok := r.Lookup("User")
	require.True(t, ok)
	assert.Same(t, first, got)

	_, ok = r.Lookup("user")
	assert.False(t, ok)
}

func TestRegistryModelsOrderedByPriority(t *testing.T) {
	r := NewModelRegistry()
	_, _ = r.Register(NewModelAdapter((*registryCompleted)(nil), 20))
	_, _ = r.Register(NewModelAdapter((*registryUser)(nil), 10))

	models := r.Models()
	require.Len(t, models, 2)
	assert.IsType(t, (*registryUser)(nil), models[0].Instance())
	assert.IsType(t, (*registryCompleted)(nil), models[1].Instance())

	_, err := r.Register(NewModelAdapter(&untagged{}, 0))
	assert.Error(t, err)
	assert.Len(t, r.Models(), 2)
}
