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
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
)

var defaultRegistry = NewModelRegistry()

// SQLModel is an entity binding: a Bun model bound to one table. Priority
// orders models when tables are provisioned (lower first).
type SQLModel interface {
	Instance() interface{}
	Priority() int
}

// ModelRegistry stores entity bindings keyed by table name.
type ModelRegistry interface {
	// Register binds model to its table. It returns false and leaves the
	// existing binding untouched when the table is already bound.
	Register(model SQLModel) (bool, error)
	Lookup(table string) (SQLModel, bool)
	Models() []SQLModel
}

type modelRegistry struct {
	models map[string]SQLModel
	order  []string
	mutex  sync.RWMutex
}

func NewModelRegistry() ModelRegistry {
	return &modelRegistry{models: make(map[string]SQLModel)}
}

func (r *modelRegistry) Register(model SQLModel) (bool, error) {
	table, err := ResolveTableName(model.Instance())
	if err != nil {
		return false, err
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if _, ok := r.models[table]; ok {
		return false, nil
	}
	r.models[table] = model
	r.order = append(r.order, table)
	return true, nil
}

func (r *modelRegistry) Lookup(table string) (SQLModel, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	m, ok := r.models[table]
	return m, ok
}

func (r *modelRegistry) Models() []SQLModel {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	result := make([]SQLModel, 0, len(r.order))
	for _, table := range r.order {
		result = append(result, r.models[table])
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Priority() < result[j].Priority()
	})
	return result
}

type ModelAdapter struct {
	instance interface{}
	priority int
}

// NewModelAdapter wraps a struct pointer and priority into an SQLModel.
func NewModelAdapter(instance interface{}, priority int) SQLModel {
	return &ModelAdapter{
		instance: instance,
		priority: priority,
	}
}

func (a *ModelAdapter) Instance() interface{} {
	return a.instance
}

func (a *ModelAdapter) Priority() int {
	return a.priority
}

// ResolveTableName reads the table name from the `bun:"table:..."` tag of the
// embedded bun.BaseModel. The name is returned exactly as written.
func ResolveTableName(model interface{}) (string, error) {
	t := reflect.TypeOf(model)
	if t == nil {
		return "", fmt.Errorf("nil model")
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return "", fmt.Errorf("model %s is not a struct", t)
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Type.Name() != "BaseModel" || !strings.Contains(f.Type.PkgPath(), "uptrace/bun") {
			continue
		}
		for _, part := range strings.Split(f.Tag.Get("bun"), ",") {
			part = strings.TrimSpace(part)
			if strings.HasPrefix(part, "table:") {
				return strings.Trim(strings.TrimPrefix(part, "table:"), "`\""), nil
			}
		}
	}
	return "", fmt.Errorf("model %s: missing table tag on bun.BaseModel", t)
}

// RegisterModel adds a binding to the default registry. Re-registering a
// bound table is a no-op.
func RegisterModel(model SQLModel) error {
	_, err := defaultRegistry.Register(model)
	return err
}

// GetRegisteredModels returns the default registry's bindings by priority.
func GetRegisteredModels() []SQLModel {
	return defaultRegistry.Models()
}

// LookupModel returns the binding for table from the default registry.
func LookupModel(table string) (SQLModel, bool) {
	return defaultRegistry.Lookup(table)
}

func RegisteredModelInstances() []interface{} {
	return modelInstances(defaultRegistry.Models())
}

func modelInstances(models []SQLModel) []interface{} {
	instances := make([]interface{}, len(models))
	for i, model := range models {
		instances[i] = model.Instance()
	}
	return instances
}
