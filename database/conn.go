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
	"sync"

	"github.com/uptrace/bun"
)

var (
	globalMu      sync.Mutex
	globalFactory *BaseDatabaseFactory
)

// GetDB returns the process-wide Bun database, or nil before InitDB.
func GetDB() *bun.DB {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalFactory != nil {
		return globalFactory.GetDB()
	}
	return nil
}

func GetDatabaseManager() AbstractDatabaseManager {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalFactory != nil {
		return globalFactory.GetManager()
	}
	return nil
}

// GetGlobalConfig returns the resolved configuration of the process-wide
// connection, or nil before InitDB.
func GetGlobalConfig() *Config {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalFactory != nil {
		return globalFactory.GetConfig()
	}
	return nil
}

// InitDB establishes the process-wide connection with a background context.
func InitDB(cfg *Config) (*bun.DB, error) {
	return InitDBContext(context.Background(), cfg)
}

// InitDBContext establishes the process-wide connection. The first successful
// call connects. Later calls whose connection identity matches return the
// same handle without reconnecting; a different identity fails with
// ErrAlreadyEstablished. A failed call leaves nothing established.
func InitDBContext(ctx context.Context, cfg *Config) (*bun.DB, error) {
	globalMu.Lock()
	defer globalMu.Unlock()

	factory := NewDatabaseFactory()
	manager, err := factory.CreateFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	if globalFactory != nil {
		if globalFactory.GetConfig().ConnectionConfig.Identity() == factory.GetConfig().ConnectionConfig.Identity() {
			return globalFactory.GetDB(), nil
		}
		return nil, ErrAlreadyEstablished
	}

	if err := factory.InitializeDatabase(ctx); err != nil {
		return nil, err
	}
	db := manager.GetDB()
	db.RegisterModel(RegisteredModelInstances()...)
	globalFactory = factory
	return db, nil
}

// CloseDB closes the process-wide connection. InitDB may be called again
// afterwards.
func CloseDB() error {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalFactory == nil {
		return nil
	}
	err := globalFactory.Close()
	globalFactory = nil
	return err
}

func GetHealthStatus(ctx context.Context) *HealthStatus {
	globalMu.Lock()
	factory := globalFactory
	globalMu.Unlock()
	if factory != nil {
		return factory.GetHealthStatus(ctx)
	}
	return &HealthStatus{LastError: ErrNotEstablished.Error()}
}

func GetDatabaseStats() *DBStats {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalFactory != nil {
		return globalFactory.GetStats()
	}
	return &DBStats{}
}

// RunMigrations provisions the registered tables on the process-wide
// connection.
func RunMigrations(ctx context.Context) error {
	manager := GetDatabaseManager()
	if manager == nil {
		return ErrNotEstablished
	}
	return manager.RunMigrations(ctx)
}

// InitData runs the configured SQL seed files on the process-wide connection.
func InitData(ctx context.Context) error {
	manager := GetDatabaseManager()
	if manager == nil {
		return ErrNotEstablished
	}
	return manager.InitData(ctx)
}
