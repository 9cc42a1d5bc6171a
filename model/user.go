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

package model

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	TableUser           = "User"
	TableUsersCompleted = "UsersCompleted"
)

// User is a mailing list subscriber, bound to table User.
type User struct {
	bun.BaseModel `bun:"table:User,alias:u"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id"`
	Email     string    `bun:"email,notnull,unique" json:"email"`
	Name      string    `bun:"name,nullzero" json:"name,omitempty"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}

// UsersCompleted records a user the mailing has been delivered to, bound to
// table UsersCompleted.
type UsersCompleted struct {
	bun.BaseModel `bun:"table:UsersCompleted,alias:uc"`

	ID          int64     `bun:"id,pk,autoincrement" json:"id"`
	UserID      int64     `bun:"user_id,notnull" json:"user_id"`
	Email       string    `bun:"email,notnull" json:"email"`
	CompletedAt time.Time `bun:"completed_at,nullzero,notnull,default:current_timestamp" json:"completed_at"`

	User *User `bun:"rel:belongs-to,join:user_id=id" json:"user,omitempty"`
}
