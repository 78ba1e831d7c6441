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

package repository

import (
	"context"

	"github.com/tomoncle/crudkit/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

// Repository exposes read access to T.
type Repository[T any] interface {
	// AsQueryable returns a deferred query over every T.
	AsQueryable() *Query[T]

	All(ctx context.Context) ([]*T, error)

	List(ctx context.Context, filter *types.QueryFilter) ([]*T, error)

	Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error)

	DB() bun.IDB
	Dialect() schema.Dialect
}

// CrudRepository adds keyed lookup and writes for models identified by a key
// tuple K (types.Key1, types.Key2 or types.Key3).
type CrudRepository[T any, K types.Key] interface {
	Repository[T]

	// Find returns the entity with the given key or a KeyNotFoundError.
	Find(ctx context.Context, key K) (*T, error)

	// Add inserts model and returns it with store generated values filled in.
	Add(ctx context.Context, model *T) (*T, error)

	// Update overwrites an existing entity with the values of model and
	// returns the entity as stored.
	Update(ctx context.Context, model *T) (*T, error)

	// Delete removes an existing entity.
	Delete(ctx context.Context, model *T) error

	// Upsert inserts models, updating fields of rows whose primary key
	// already exists.
	Upsert(ctx context.Context, fields []string, models ...*T) error

	// WithTx returns the same repository bound to tx.
	WithTx(tx bun.Tx) CrudRepository[T, K]
}
