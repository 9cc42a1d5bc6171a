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
	"fmt"
	"sync"

	"github.com/tomoncle/mmailer/database"
	"github.com/tomoncle/mmailer/model"
	"github.com/uptrace/bun"
)

var (
	establishMu sync.Mutex
	established *Client
)

// Client is a connected handle to the mailing list database exposing the
// User and UsersCompleted bindings.
type Client struct {
	db        *bun.DB
	config    *database.Config
	users     UserService
	completed Service[model.UsersCompleted]
	closeFn   func() error
	closeOnce sync.Once
	closeErr  error
}

// Open connects with cfg and returns a Client owned by the caller. A nil cfg
// means database.DefaultConfig. The connection is pinged before Open returns.
func Open(ctx context.Context, cfg *database.Config) (*Client, error) {
	if err := model.RegisterDefaults(); err != nil {
		return nil, fmt.Errorf("failed to bind tables: %w", err)
	}
	factory := database.NewDatabaseFactory()
	if _, err := factory.CreateFromConfig(cfg); err != nil {
		return nil, err
	}
	if err := factory.InitializeDatabase(ctx); err != nil {
		return nil, err
	}
	return newClient(factory.GetDB(), factory.GetConfig(), factory.Close), nil
}

// Establish returns the process-wide Client. The first successful call
// connects. Later calls with the same connection parameters return the same
// Client; different parameters fail with database.ErrAlreadyEstablished.
func Establish(ctx context.Context, cfg *database.Config) (*Client, error) {
	establishMu.Lock()
	defer establishMu.Unlock()

	if err := model.RegisterDefaults(); err != nil {
		return nil, fmt.Errorf("failed to bind tables: %w", err)
	}
	db, err := database.InitDBContext(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if established != nil && established.db == db {
		return established, nil
	}
	c := newClient(db, database.GetGlobalConfig(), nil)
	c.closeFn = func() error { return closeEstablished(c) }
	established = c
	return c, nil
}

// closeEstablished closes the process-wide connection only while c still owns
// it. A Client left over from an earlier establishment closes nothing.
func closeEstablished(c *Client) error {
	establishMu.Lock()
	defer establishMu.Unlock()
	if established != c {
		return nil
	}
	established = nil
	if database.GetDB() != c.db {
		return nil
	}
	return database.CloseDB()
}

func newClient(db *bun.DB, config *database.Config, closeFn func() error) *Client {
	return &Client{
		db:        db,
		config:    config,
		users:     NewUserService(db),
		completed: NewServiceWithDB[model.UsersCompleted](db),
		closeFn:   closeFn,
	}
}

func (c *Client) DB() *bun.DB { return c.db }

// Config returns the resolved configuration the Client connected with.
func (c *Client) Config() *database.Config { return c.config }

// Users is the binding of table User.
func (c *Client) Users() UserService { return c.users }

// Completed is the binding of table UsersCompleted.
func (c *Client) Completed() Service[model.UsersCompleted] { return c.completed }

func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// VerifyBindings checks both tables and their mapped columns against the
// live schema.
func (c *Client) VerifyBindings(ctx context.Context) error {
	return database.VerifyBindings(ctx, c.db, model.Bindings())
}

// Close releases the connection. Closing twice is harmless.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		if c.closeFn != nil {
			c.closeErr = c.closeFn()
		}
	})
	return c.closeErr
}
