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
	"strings"

	"github.com/tomoncle/mmailer/types"
)

// Adapter identifies the database driver and SQL dialect of a connection.
type Adapter int

const (
	AdapterUnknown Adapter = iota
	AdapterMySQL
	AdapterPostgres
	AdapterSQLite
)

var _ types.BaseEnum = AdapterMySQL

var adapterNames = map[Adapter]string{
	AdapterMySQL:    "mysql",
	AdapterPostgres: "postgres",
	AdapterSQLite:   "sqlite",
}

var adapterDescs = map[Adapter]string{
	AdapterMySQL:    "MySQL / MariaDB via go-sql-driver/mysql",
	AdapterPostgres: "PostgreSQL via lib/pq",
	AdapterSQLite:   "SQLite via bun sqliteshim",
}

var adapterPorts = map[Adapter]int{
	AdapterMySQL:    DefaultPort,
	AdapterPostgres: 5432,
}

// DefaultPort is the server port used when a config leaves Port at zero. It
// is zero for SQLite.
func (a Adapter) DefaultPort() int {
	return adapterPorts[a]
}

// ParseAdapter maps a configured adapter kind to an Adapter. "mysql2" is
// accepted for configs carried over from ActiveRecord.
func ParseAdapter(s string) Adapter {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mysql", "mysql2", "mariadb":
		return AdapterMySQL
	case "postgres", "postgresql", "pg":
		return AdapterPostgres
	case "sqlite", "sqlite3":
		return AdapterSQLite
	default:
		return AdapterUnknown
	}
}

// SupportedAdapters lists the canonical adapter names.
func SupportedAdapters() []string {
	return []string{AdapterMySQL.Name(), AdapterPostgres.Name(), AdapterSQLite.Name()}
}

func (a Adapter) IsValid() bool {
	_, ok := adapterNames[a]
	return ok
}

func (a Adapter) Number() int {
	if !a.IsValid() {
		return types.IllegalValue
	}
	return int(a)
}

func (a Adapter) Name() string {
	if n, ok := adapterNames[a]; ok {
		return n
	}
	return types.IllegalName
}

func (a Adapter) Desc() string {
	if d, ok := adapterDescs[a]; ok {
		return d
	}
	return types.IllegalDesc
}

func (a Adapter) String() string { return a.Name() }
