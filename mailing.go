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
	"time"

	"github.com/tomoncle/mmailer/model"
	"github.com/uptrace/bun"
)

// UserService adds subscriber lookups to the generic User service.
type UserService interface {
	Service[model.User]
	FindByEmail(ctx context.Context, email string) (*model.User, error)
}

type userServiceImpl struct {
	Service[model.User]
}

func NewUserService(db *bun.DB) UserService {
	return &userServiceImpl{Service: NewServiceWithDB[model.User](db)}
}

// FindByEmail returns the user with email, or sql.ErrNoRows.
func (s *userServiceImpl) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.First(ctx, "?TableAlias.email = ?", email)
}

// Pending returns users without a UsersCompleted row, oldest id first. A
// limit of zero or less returns all of them.
func (c *Client) Pending(ctx context.Context, limit int) ([]*model.User, error) {
	var users []*model.User
	completed := c.db.NewSelect().
		Model((*model.UsersCompleted)(nil)).
		ColumnExpr("1").
		Where("uc.user_id = u.id")
	query := c.db.NewSelect().
		Model(&users).
		Where("NOT EXISTS (?)", completed).
		Order("u.id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list pending users: %w", err)
	}
	return users, nil
}

// IsCompleted reports whether userID has a UsersCompleted row.
func (c *Client) IsCompleted(ctx context.Context, userID int64) (bool, error) {
	return isCompleted(ctx, c.db, userID)
}

func isCompleted(ctx context.Context, db bun.IDB, userID int64) (bool, error) {
	return db.NewSelect().
		Model((*model.UsersCompleted)(nil)).
		Where("uc.user_id = ?", userID).
		Exists(ctx)
}

// MarkCompleted records that user has received the mailing. Marking a user
// twice leaves a single row.
func (c *Client) MarkCompleted(ctx context.Context, user *model.User) error {
	if user == nil || user.ID == 0 {
		return fmt.Errorf("user must be persisted before it can be marked completed")
	}
	return c.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		done, err := isCompleted(ctx, tx, user.ID)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		return c.completed.SaveWithTx(ctx, tx, &model.UsersCompleted{
			UserID:      user.ID,
			Email:       user.Email,
			CompletedAt: time.Now(),
		})
	})
}
