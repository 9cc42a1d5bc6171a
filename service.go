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

	"github.com/tomoncle/mmailer/database"
	"github.com/tomoncle/mmailer/repository"
	"github.com/tomoncle/mmailer/types"
	"github.com/uptrace/bun"
)

type Service[T any] interface {
	// Get returns a single entity by its identifier.
	Get(ctx context.Context, id any) (*T, error)

	// First returns the first entity matching query, or sql.ErrNoRows.
	First(ctx context.Context, query string, args ...interface{}) (*T, error)

	All(ctx context.Context) ([]*T, error)

	List(ctx context.Context, filter *types.QueryFilter) ([]*T, error)

	// Query returns the entities matching a WHERE clause.
	Query(ctx context.Context, query string, args ...interface{}) ([]*T, error)

	Count(ctx context.Context, filter *types.QueryFilter) (int, error)

	Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error)

	Update(ctx context.Context, model *T) error

	Delete(ctx context.Context, id any) error

	// Save inserts one or more new entities.
	Save(ctx context.Context, model ...*T) error

	// SaveOrUpdate upserts entities based on fields and duplicate keys.
	SaveOrUpdate(ctx context.Context, fields []string, duplicateKeys []string, model ...*T) error

	SaveWithTx(ctx context.Context, tx bun.IDB, model ...*T) error

	SaveOrUpdateWithTx(ctx context.Context, tx bun.IDB, fields []string, duplicateKeys []string, model ...*T) error

	UpdateWithTx(ctx context.Context, tx bun.IDB, model *T) error

	DeleteWithTx(ctx context.Context, tx bun.IDB, id any) error

	// Transaction runs fn in a transaction committed when fn returns nil.
	Transaction(ctx context.Context, fn func(ctx context.Context, tx bun.Tx) error) error

	// SelectBuilder returns a select query with the entity as model. The
	// builders panic with database.ErrNotEstablished when there is no
	// connection.
	SelectBuilder() *bun.SelectQuery

	InsertBuilder() *bun.InsertQuery

	UpdateBuilder() *bun.UpdateQuery

	DeleteBuilder() *bun.DeleteQuery
}

type baseServiceImpl[T any] struct {
	db func() *bun.DB
}

// NewService returns a Service bound to the process-wide connection. The
// connection is looked up on every call, so the Service may be created before
// Establish; calls made while no connection exists fail with
// database.ErrNotEstablished.
func NewService[T any]() Service[T] {
	return &baseServiceImpl[T]{db: database.GetDB}
}

// NewServiceWithDB returns a Service bound to db.
func NewServiceWithDB[T any](db *bun.DB) Service[T] {
	return &baseServiceImpl[T]{db: func() *bun.DB { return db }}
}

func (s *baseServiceImpl[T]) repo() (repository.Repository[T], error) {
	db := s.db()
	if db == nil {
		return nil, database.ErrNotEstablished
	}
	return repository.NewRepository[T](db), nil
}

// mustRepo backs the query builders, which have no error return.
func (s *baseServiceImpl[T]) mustRepo() repository.Repository[T] {
	r, err := s.repo()
	if err != nil {
		panic(err)
	}
	return r
}

func (s *baseServiceImpl[T]) Save(ctx context.Context, model ...*T) error {
	r, err := s.repo()
	if err != nil {
		return err
	}
	return r.Create(ctx, model...)
}

func (s *baseServiceImpl[T]) SaveOrUpdate(ctx context.Context, fields []string, duplicateKeys []string, model ...*T) error {
	r, err := s.repo()
	if err != nil {
		return err
	}
	return r.Upsert(ctx, fields, duplicateKeys, model...)
}

func (s *baseServiceImpl[T]) Get(ctx context.Context, id any) (*T, error) {
	r, err := s.repo()
	if err != nil {
		return nil, err
	}
	return r.GetOne(ctx, id)
}

func (s *baseServiceImpl[T]) First(ctx context.Context, query string, args ...interface{}) (*T, error) {
	r, err := s.repo()
	if err != nil {
		return nil, err
	}
	return r.FindOne(ctx, query, args...)
}

func (s *baseServiceImpl[T]) All(ctx context.Context) ([]*T, error) {
	r, err := s.repo()
	if err != nil {
		return nil, err
	}
	return r.GetAll(ctx)
}

func (s *baseServiceImpl[T]) List(ctx context.Context, filter *types.QueryFilter) ([]*T, error) {
	r, err := s.repo()
	if err != nil {
		return nil, err
	}
	return r.List(ctx, filter)
}

func (s *baseServiceImpl[T]) Query(ctx context.Context, query string, args ...interface{}) ([]*T, error) {
	r, err := s.repo()
	if err != nil {
		return nil, err
	}
	return r.Query(ctx, query, args...)
}

func (s *baseServiceImpl[T]) Count(ctx context.Context, filter *types.QueryFilter) (int, error) {
	r, err := s.repo()
	if err != nil {
		return 0, err
	}
	return r.Count(ctx, filter)
}

func (s *baseServiceImpl[T]) Update(ctx context.Context, model *T) error {
	r, err := s.repo()
	if err != nil {
		return err
	}
	return r.Update(ctx, model)
}

func (s *baseServiceImpl[T]) Delete(ctx context.Context, id any) error {
	r, err := s.repo()
	if err != nil {
		return err
	}
	return r.Delete(ctx, id)
}

func (s *baseServiceImpl[T]) Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error) {
	r, err := s.repo()
	if err != nil {
		return nil, err
	}
	return r.Page(ctx, page)
}

func (s *baseServiceImpl[T]) SaveWithTx(ctx context.Context, tx bun.IDB, model ...*T) error {
	r, err := s.repo()
	if err != nil {
		return err
	}
	return r.CreateWithTx(ctx, tx, model...)
}

func (s *baseServiceImpl[T]) SaveOrUpdateWithTx(ctx context.Context, tx bun.IDB, fields []string, duplicateKeys []string, model ...*T) error {
	r, err := s.repo()
	if err != nil {
		return err
	}
	return r.UpsertWithTx(ctx, tx, fields, duplicateKeys, model...)
}

func (s *baseServiceImpl[T]) UpdateWithTx(ctx context.Context, tx bun.IDB, model *T) error {
	r, err := s.repo()
	if err != nil {
		return err
	}
	return r.UpdateWithTx(ctx, tx, model)
}

func (s *baseServiceImpl[T]) DeleteWithTx(ctx context.Context, tx bun.IDB, id any) error {
	r, err := s.repo()
	if err != nil {
		return err
	}
	return r.DeleteWithTx(ctx, tx, id)
}

func (s *baseServiceImpl[T]) Transaction(ctx context.Context, fn func(ctx context.Context, tx bun.Tx) error) error {
	r, err := s.repo()
	if err != nil {
		return err
	}
	return r.RunInTx(ctx, fn)
}

func (s *baseServiceImpl[T]) SelectBuilder() *bun.SelectQuery {
	return s.mustRepo().NewSelect()
}

func (s *baseServiceImpl[T]) InsertBuilder() *bun.InsertQuery {
	return s.mustRepo().NewInsert()
}

func (s *baseServiceImpl[T]) UpdateBuilder() *bun.UpdateQuery {
	return s.mustRepo().NewUpdate()
}

func (s *baseServiceImpl[T]) DeleteBuilder() *bun.DeleteQuery {
	return s.mustRepo().NewDelete()
}
