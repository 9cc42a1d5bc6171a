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
	"errors"
	"fmt"
	"reflect"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// ColumnInfo is a column of a live table.
type ColumnInfo struct {
	Name     string `bun:"name"`
	Type     string `bun:"type"`
	Nullable bool   `bun:"nullable"`
}

// TableExists reports whether table exists in the connected database. Names
// are compared exactly, so "User" and "user" are different tables.
func TableExists(ctx context.Context, db bun.IDB, table string) (bool, error) {
	var query string
	switch db.Dialect().Name() {
	case dialect.MySQL:
		query = "SELECT TABLE_NAME AS name FROM information_schema.TABLES WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?"
	case dialect.PG:
		query = "SELECT table_name AS name FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = ?"
	case dialect.SQLite:
		query = "SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?"
	default:
		return false, fmt.Errorf("unsupported dialect: %s", db.Dialect().Name())
	}

	var names []string
	if err := db.NewRaw(query, table).Scan(ctx, &names); err != nil {
		return false, err
	}
	// information_schema collations may fold case
	for _, name := range names {
		if name == table {
			return true, nil
		}
	}
	return false, nil
}

// DescribeTable lists the columns of table in ordinal order.
func DescribeTable(ctx context.Context, db bun.IDB, table string) ([]ColumnInfo, error) {
	var query string
	switch db.Dialect().Name() {
	case dialect.MySQL:
		query = "SELECT COLUMN_NAME AS name, COLUMN_TYPE AS type, IS_NULLABLE = 'YES' AS nullable " +
			"FROM information_schema.COLUMNS WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? ORDER BY ORDINAL_POSITION"
	case dialect.PG:
		query = "SELECT column_name AS name, data_type AS type, is_nullable = 'YES' AS nullable " +
			"FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = ? ORDER BY ordinal_position"
	case dialect.SQLite:
		query = `SELECT name, type, "notnull" = 0 AS nullable FROM pragma_table_info(?) ORDER BY cid`
	default:
		return nil, fmt.Errorf("unsupported dialect: %s", db.Dialect().Name())
	}

	var columns []ColumnInfo
	if err := db.NewRaw(query, table).Scan(ctx, &columns); err != nil {
		return nil, err
	}
	return columns, nil
}

// MappedColumns returns the column names model maps, in field order.
func MappedColumns(db bun.IDB, model interface{}) []string {
	typ := reflect.TypeOf(model)
	for typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	table := db.Dialect().Tables().Get(typ)
	columns := make([]string, 0, len(table.Fields))
	for _, field := range table.Fields {
		columns = append(columns, field.Name)
	}
	return columns
}

// VerifyBinding checks that model's table and every mapped column exist. It
// returns a *MappingError naming the first mismatch.
func VerifyBinding(ctx context.Context, db bun.IDB, model interface{}) error {
	table, err := ResolveTableName(model)
	if err != nil {
		return err
	}
	exists, err := TableExists(ctx, db, table)
	if err != nil {
		return fmt.Errorf("failed to check table %s: %w", table, err)
	}
	if !exists {
		return &MappingError{Table: table, Kind: NoTableErr}
	}

	columns, err := DescribeTable(ctx, db, table)
	if err != nil {
		return fmt.Errorf("failed to describe table %s: %w", table, err)
	}
	live := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		live[c.Name] = struct{}{}
	}
	for _, name := range MappedColumns(db, model) {
		if _, ok := live[name]; !ok {
			return &MappingError{Table: table, Column: name, Kind: NoColumnErr}
		}
	}
	return nil
}

// VerifyBindings runs VerifyBinding for every model and joins the failures.
func VerifyBindings(ctx context.Context, db bun.IDB, models []SQLModel) error {
	var errs []error
	for _, model := range models {
		if err := VerifyBinding(ctx, db, model.Instance()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
