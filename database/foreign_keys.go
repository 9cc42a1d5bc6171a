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
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/schema"
	"gopkg.in/yaml.v3"
)

var (
	registeredConstraints   []ForeignKeyConstraint
	registeredConstraintsMu sync.RWMutex
)

var referentialActions = []string{"CASCADE", "RESTRICT", "SET NULL", "NO ACTION"}

// ForeignKeyConstraint describes a foreign key relationship between tables.
type ForeignKeyConstraint struct {
	Table           string
	Column          string
	ReferenceTable  string
	ReferenceColumn string
	OnDelete        string // CASCADE, RESTRICT, SET NULL, NO ACTION
	OnUpdate        string
	ConstraintName  string
}

func (fk *ForeignKeyConstraint) GenerateConstraintName() string {
	if fk.ConstraintName != "" {
		return fk.ConstraintName
	}
	return fmt.Sprintf("fk_%s_%s", fk.Table, fk.Column)
}

// GenerateSQL renders the ALTER TABLE statement with identifiers quoted for d.
func (fk *ForeignKeyConstraint) GenerateSQL(d schema.Dialect) string {
	query := schema.NewFormatter(d).FormatQuery("ALTER TABLE ? ADD CONSTRAINT ? FOREIGN KEY (?) REFERENCES ? (?)",
		bun.Ident(fk.Table),
		bun.Ident(fk.GenerateConstraintName()),
		bun.Ident(fk.Column),
		bun.Ident(fk.ReferenceTable),
		bun.Ident(fk.ReferenceColumn),
	)
	if fk.OnDelete != "" {
		query += " ON DELETE " + strings.ToUpper(fk.OnDelete)
	}
	if fk.OnUpdate != "" {
		query += " ON UPDATE " + strings.ToUpper(fk.OnUpdate)
	}
	return query
}

// RegisterForeignKey adds a code-defined constraint, used when no FK file is
// configured. Constraints are unique by name.
func RegisterForeignKey(fk ForeignKeyConstraint) {
	registeredConstraintsMu.Lock()
	defer registeredConstraintsMu.Unlock()
	for _, c := range registeredConstraints {
		if c.GenerateConstraintName() == fk.GenerateConstraintName() {
			return
		}
	}
	registeredConstraints = append(registeredConstraints, fk)
}

func getForeignKeyConstraints() []ForeignKeyConstraint {
	registeredConstraintsMu.RLock()
	defer registeredConstraintsMu.RUnlock()
	out := make([]ForeignKeyConstraint, len(registeredConstraints))
	copy(out, registeredConstraints)
	return out
}

// ForeignKeyManager adds and validates foreign key constraints.
type ForeignKeyManager struct {
	constraints []ForeignKeyConstraint
	logger      Logger
}

func NewForeignKeyManager(logger Logger) *ForeignKeyManager {
	return &ForeignKeyManager{
		constraints: getForeignKeyConstraints(),
		logger:      logger,
	}
}

// AddAllForeignKeys adds every constraint that does not exist yet. A
// constraint that fails is logged and skipped. SQLite cannot add constraints
// to existing tables, so nothing is done there.
func (fkm *ForeignKeyManager) AddAllForeignKeys(ctx context.Context, db bun.IDB) error {
	if db.Dialect().Name() == dialect.SQLite {
		fkm.logger.Debug("Skipping foreign keys, dialect cannot alter constraints", "dialect", db.Dialect().Name())
		return nil
	}
	for _, constraint := range fkm.constraints {
		name := constraint.GenerateConstraintName()
		exists, err := foreignKeyExists(ctx, db, constraint.Table, name)
		if err != nil {
			return fmt.Errorf("failed to look up foreign key %s: %w", name, err)
		}
		if exists {
			fkm.logger.Debug("Foreign key constraint already exists", "constraint", name)
			continue
		}
		if err := addForeignKey(ctx, db, constraint); err != nil {
			fkm.logger.Debug("Failed to add foreign key constraint", "constraint", name, "error", err)
			continue
		}
		fkm.logger.Debug("Successfully added foreign key constraint", "constraint", name)
	}
	return nil
}

func foreignKeyExists(ctx context.Context, db bun.IDB, table, name string) (bool, error) {
	schemaExpr := "DATABASE()"
	if db.Dialect().Name() == dialect.PG {
		schemaExpr = "current_schema()"
	}
	var count int
	err := db.NewRaw("SELECT COUNT(*) FROM information_schema.table_constraints"+
		" WHERE constraint_type = 'FOREIGN KEY' AND table_schema = "+schemaExpr+
		" AND table_name = ? AND constraint_name = ?", table, name).Scan(ctx, &count)
	return count > 0, err
}

// addForeignKey runs the ALTER TABLE. On Postgres a failed statement aborts
// the enclosing transaction, so it runs in its own savepoint there. MySQL
// commits DDL implicitly, which would discard a savepoint.
func addForeignKey(ctx context.Context, db bun.IDB, constraint ForeignKeyConstraint) error {
	query := constraint.GenerateSQL(db.Dialect())
	if db.Dialect().Name() != dialect.PG {
		_, err := db.ExecContext(ctx, query)
		return err
	}
	return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.ExecContext(ctx, query)
		return err
	})
}

func (fkm *ForeignKeyManager) GetConstraintsByTable(tableName string) []ForeignKeyConstraint {
	var result []ForeignKeyConstraint
	for _, constraint := range fkm.constraints {
		if constraint.Table == tableName {
			result = append(result, constraint)
		}
	}
	return result
}

func (fkm *ForeignKeyManager) ListAllConstraints() []ForeignKeyConstraint {
	return fkm.constraints
}

// ValidateConstraints checks the configured constraints for missing names
// and unknown referential actions.
func (fkm *ForeignKeyManager) ValidateConstraints() []error {
	var errs []error
	for _, c := range fkm.constraints {
		if c.Table == "" {
			errs = append(errs, fmt.Errorf("table name cannot be empty"))
		}
		if c.Column == "" {
			errs = append(errs, fmt.Errorf("column name cannot be empty: %s", c.Table))
		}
		if c.ReferenceTable == "" {
			errs = append(errs, fmt.Errorf("reference table name cannot be empty: %s.%s", c.Table, c.Column))
		}
		if c.ReferenceColumn == "" {
			errs = append(errs, fmt.Errorf("reference column name cannot be empty: %s.%s -> %s", c.Table, c.Column, c.ReferenceTable))
		}
		if !validAction(c.OnDelete) {
			errs = append(errs, fmt.Errorf("invalid delete policy: %s, constraint: %s", c.OnDelete, c.GenerateConstraintName()))
		}
		if !validAction(c.OnUpdate) {
			errs = append(errs, fmt.Errorf("invalid update policy: %s, constraint: %s", c.OnUpdate, c.GenerateConstraintName()))
		}
	}
	return errs
}

func validAction(action string) bool {
	if action == "" {
		return true
	}
	for _, a := range referentialActions {
		if strings.EqualFold(action, a) {
			return true
		}
	}
	return false
}

// ConfigurableForeignKeyManager loads constraints from a YAML file and falls
// back to the registered defaults.
type ConfigurableForeignKeyManager struct {
	*ForeignKeyManager
	configPath string
}

func NewConfigurableForeignKeyManager(logger Logger, configPath string) *ConfigurableForeignKeyManager {
	manager := &ConfigurableForeignKeyManager{configPath: configPath}
	constraints := getForeignKeyConstraints()
	if configPath != "" {
		loaded, err := manager.loadFromConfig()
		if err != nil {
			logger.Debug("Failed to load foreign key constraints from config, using code-defined defaults", "error", err, "config_path", configPath)
		} else {
			constraints = loaded
		}
	}
	manager.ForeignKeyManager = &ForeignKeyManager{constraints: constraints, logger: logger}
	return manager
}

func (cfm *ConfigurableForeignKeyManager) loadFromConfig() ([]ForeignKeyConstraint, error) {
	data, err := os.ReadFile(cfm.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var config ForeignKeyConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	constraints := make([]ForeignKeyConstraint, 0, len(config.ForeignKeys))
	for _, fkConfig := range config.ForeignKeys {
		constraints = append(constraints, fkConfig.ToForeignKeyConstraint())
	}
	return constraints, nil
}

func (cfm *ConfigurableForeignKeyManager) ReloadConfig() error {
	constraints, err := cfm.loadFromConfig()
	if err != nil {
		return err
	}
	cfm.constraints = constraints
	return nil
}

// ExportToConfig writes the current constraints to a YAML file.
func (cfm *ConfigurableForeignKeyManager) ExportToConfig(outputPath string) error {
	config := ForeignKeyConfig{ForeignKeys: make([]ForeignKeyConstraintConfig, 0, len(cfm.constraints))}
	for _, c := range cfm.constraints {
		config.ForeignKeys = append(config.ForeignKeys, ForeignKeyConstraintConfig{
			Table:           c.Table,
			Column:          c.Column,
			ReferenceTable:  c.ReferenceTable,
			ReferenceColumn: c.ReferenceColumn,
			OnDelete:        c.OnDelete,
			OnUpdate:        c.OnUpdate,
			ConstraintName:  c.ConstraintName,
			Description:     fmt.Sprintf("%s.%s -> %s.%s", c.Table, c.Column, c.ReferenceTable, c.ReferenceColumn),
		})
	}
	data, err := yaml.Marshal(&config)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func (cfm *ConfigurableForeignKeyManager) GetConfigPath() string {
	return cfm.configPath
}
