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
	"github.com/tomoncle/mmailer/database"
)

// Bindings returns the table bindings in provisioning order. User comes
// first because UsersCompleted refers to it.
func Bindings() []database.SQLModel {
	return []database.SQLModel{
		database.NewModelAdapter((*User)(nil), 10),
		database.NewModelAdapter((*UsersCompleted)(nil), 20),
	}
}

// CompletedUserForeignKey links UsersCompleted.user_id to User.id.
func CompletedUserForeignKey() database.ForeignKeyConstraint {
	return database.ForeignKeyConstraint{
		Table:           TableUsersCompleted,
		Column:          "user_id",
		ReferenceTable:  TableUser,
		ReferenceColumn: "id",
		OnDelete:        "CASCADE",
	}
}

// Register binds both tables in registry. Tables already bound keep their
// existing binding.
func Register(registry database.ModelRegistry) error {
	for _, binding := range Bindings() {
		if _, err := registry.Register(binding); err != nil {
			return err
		}
	}
	return nil
}

// RegisterDefaults binds both tables in the package-wide registry and adds
// the default foreign key used by provisioning.
func RegisterDefaults() error {
	for _, binding := range Bindings() {
		if err := database.RegisterModel(binding); err != nil {
			return err
		}
	}
	database.RegisterForeignKey(CompletedUserForeignKey())
	return nil
}
