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
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/tomoncle/crudkit/database"
	"github.com/tomoncle/crudkit/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/feature"
	"github.com/uptrace/bun/schema"
)

type baseRepositoryImpl[T any] struct {
	db bun.IDB
}

// NewRepository returns a read-only repository over T backed by db, which may
// be a *bun.DB or a bun.Tx. It panics when db is nil.
func NewRepository[T any](db bun.IDB) Repository[T] {
	mustDB(db)
	return &baseRepositoryImpl[T]{db: db}
}

func mustDB(db bun.IDB) {
	if db == nil {
		panic("repository: nil database")
	}
	if d, ok := db.(*bun.DB); ok && d == nil {
		panic("repository: nil database")
	}
}

func (r *baseRepositoryImpl[T]) DB() bun.IDB { return r.db }

func (r *baseRepositoryImpl[T]) Dialect() schema.Dialect { return r.db.Dialect() }

func (r *baseRepositoryImpl[T]) AsQueryable() *Query[T] { return newQuery[T](r.db) }

func (r *baseRepositoryImpl[T]) All(ctx context.Context) ([]*T, error) {
	return r.AsQueryable().List(ctx)
}

func (r *baseRepositoryImpl[T]) List(ctx context.Context, filter *types.QueryFilter) ([]*T, error) {
	return r.AsQueryable().Filter(filter).List(ctx)
}

func (r *baseRepositoryImpl[T]) Page(ctx context.Context, pageRequest *types.PageRequest) (*types.Pagination[T], error) {
	return r.AsQueryable().Page(ctx, pageRequest)
}

type crudRepositoryImpl[T any, K types.Key, PT interface {
	*T
	types.Model[K]
}] struct {
	*baseRepositoryImpl[T]
	options
	model string
}

// NewCrudRepository returns a CRUD repository for T keyed by K. PT is inferred:
//
//	repo := repository.NewCrudRepository[User, types.Key1[int64]](db)
//
// The components of K map in order onto the primary key columns of T's table.
// It panics when db is nil.
func NewCrudRepository[T any, K types.Key, PT interface {
	*T
	types.Model[K]
}](db bun.IDB, opts ...Option) CrudRepository[T, K] {
	mustDB(db)
	r := &crudRepositoryImpl[T, K, PT]{
		baseRepositoryImpl: &baseRepositoryImpl[T]{db: db},
		model:              modelName[T](),
	}
	for _, opt := range opts {
		opt(&r.options)
	}
	if r.name == "" {
		r.name = r.model + "Repository"
	}
	return r
}

// NewCrudRepository1 is NewCrudRepository for single column keys.
func NewCrudRepository1[T any, A comparable, PT interface {
	*T
	types.Model[types.Key1[A]]
}](db bun.IDB, opts ...Option) CrudRepository[T, types.Key1[A]] {
	return NewCrudRepository[T, types.Key1[A], PT](db, opts...)
}

// NewCrudRepository2 is NewCrudRepository for two column keys.
func NewCrudRepository2[T any, A, B comparable, PT interface {
	*T
	types.Model[types.Key2[A, B]]
}](db bun.IDB, opts ...Option) CrudRepository[T, types.Key2[A, B]] {
	return NewCrudRepository[T, types.Key2[A, B], PT](db, opts...)
}

// NewCrudRepository3 is NewCrudRepository for three column keys.
func NewCrudRepository3[T any, A, B, C comparable, PT interface {
	*T
	types.Model[types.Key3[A, B, C]]
}](db bun.IDB, opts ...Option) CrudRepository[T, types.Key3[A, B, C]] {
	return NewCrudRepository[T, types.Key3[A, B, C], PT](db, opts...)
}

func modelName[T any]() string {
	t := reflect.TypeOf((*T)(nil)).Elem()
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

func (r *crudRepositoryImpl[T, K, PT]) WithTx(tx bun.Tx) CrudRepository[T, K] {
	return &crudRepositoryImpl[T, K, PT]{
		baseRepositoryImpl: &baseRepositoryImpl[T]{db: tx},
		options:            r.options,
		model:              r.model,
	}
}

func (r *crudRepositoryImpl[T, K, PT]) table() *schema.Table {
	return r.db.Dialect().Tables().Get(reflect.TypeOf((*T)(nil)).Elem())
}

// wherePK narrows q to the row identified by key.
func (r *crudRepositoryImpl[T, K, PT]) wherePK(q *bun.SelectQuery, key K) (*bun.SelectQuery, error) {
	pks := r.table().PKs
	values := key.Values()
	if len(pks) != len(values) {
		return nil, fmt.Errorf("%w: %s has %d primary key column(s), key %s has %d",
			ErrKeyArity, r.model, len(pks), key, len(values))
	}
	for i, pk := range pks {
		q = q.Where("?TableAlias.? = ?", bun.Ident(pk.Name), values[i])
	}
	return q, nil
}

func (r *crudRepositoryImpl[T, K, PT]) Find(ctx context.Context, key K) (*T, error) {
	return r.find(ctx, r.db, key)
}

func (r *crudRepositoryImpl[T, K, PT]) find(ctx context.Context, db bun.IDB, key K) (*T, error) {
	entity := new(T)
	q, err := r.wherePK(db.NewSelect().Model(entity), key)
	if err != nil {
		return nil, err
	}
	if err := q.Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &KeyNotFoundError{Model: r.model, Key: key.String()}
		}
		return nil, err
	}
	return entity, nil
}

func (r *crudRepositoryImpl[T, K, PT]) Add(ctx context.Context, model *T) (*T, error) {
	if err := r.check(ctx, model); err != nil {
		return nil, err
	}

	q := r.db.NewInsert().Model(model)
	if r.db.Dialect().Features().Has(feature.InsertReturning) {
		q = q.Returning("*")
	}
	if _, err := q.Exec(ctx); err != nil {
		return nil, r.fail("Add", model, err)
	}
	return model, nil
}

// Update runs the existence check, the write and the re-read in one unit of
// work. model is refreshed in place with the stored values.
func (r *crudRepositoryImpl[T, K, PT]) Update(ctx context.Context, model *T) (*T, error) {
	if err := r.check(ctx, model); err != nil {
		return nil, err
	}

	key := PT(model).PrimaryKey()
	var updated *T
	err := database.InTx(ctx, r.db, func(ctx context.Context, tx bun.IDB) error {
		if _, err := r.find(ctx, tx, key); err != nil {
			return err
		}
		if _, err := tx.NewUpdate().Model(model).WherePK().Exec(ctx); err != nil {
			return err
		}
		fresh, err := r.find(ctx, tx, key)
		if err != nil {
			return err
		}
		updated = fresh
		return nil
	})
	if err != nil {
		return nil, r.fail("Update", model, err)
	}
	*model = *updated
	return model, nil
}

func (r *crudRepositoryImpl[T, K, PT]) Delete(ctx context.Context, model *T) error {
	if model == nil {
		return &ArgumentError{Name: "model"}
	}

	key := PT(model).PrimaryKey()
	err := database.InTx(ctx, r.db, func(ctx context.Context, tx bun.IDB) error {
		if _, err := r.find(ctx, tx, key); err != nil {
			return err
		}
		_, err := tx.NewDelete().Model(model).WherePK().Exec(ctx)
		return err
	})
	if err != nil {
		return r.fail("Delete", model, err)
	}
	return nil
}

func (r *crudRepositoryImpl[T, K, PT]) Upsert(ctx context.Context, fields []string, models ...*T) error {
	if len(models) == 0 {
		return nil
	}
	for _, m := range models {
		if err := r.check(ctx, m); err != nil {
			return err
		}
	}
	if len(fields) == 0 {
		return r.fail("Upsert", models, errors.New("fields cannot be empty"))
	}

	entities := make([]*T, len(models))
	copy(entities, models)

	var err error
	switch {
	case r.db.Dialect().Features().Has(feature.InsertOnConflict):
		err = r.upsertOnConflict(ctx, fields, entities)
	case r.db.Dialect().Features().Has(feature.InsertOnDuplicateKey):
		err = r.upsertOnDuplicateKey(ctx, fields, entities)
	default:
		err = database.InTx(ctx, r.db, func(ctx context.Context, tx bun.IDB) error {
			return r.upsertFallback(ctx, tx, entities)
		})
	}
	if err != nil {
		return r.fail("Upsert", models, err)
	}
	return nil
}

func (r *crudRepositoryImpl[T, K, PT]) upsertOnDuplicateKey(ctx context.Context, fields []string, entities []*T) error {
	q := r.db.NewInsert().Model(&entities)
	for _, field := range fields {
		q = q.Set("? = VALUES(?)", bun.Ident(field), bun.Ident(field))
	}
	_, err := q.On("DUPLICATE KEY UPDATE").Exec(ctx)
	return err
}

func (r *crudRepositoryImpl[T, K, PT]) upsertOnConflict(ctx context.Context, fields []string, entities []*T) error {
	pks := r.table().PKs
	keys := make([]string, len(pks))
	for i, pk := range pks {
		keys[i] = string(pk.SQLName)
	}

	q := r.db.NewInsert().
		Model(&entities).
		On("CONFLICT (" + strings.Join(keys, ", ") + ") DO UPDATE")
	for _, field := range fields {
		q = q.Set("? = EXCLUDED.?", bun.Ident(field), bun.Ident(field))
	}
	_, err := q.Exec(ctx)
	return err
}

func (r *crudRepositoryImpl[T, K, PT]) upsertFallback(ctx context.Context, tx bun.IDB, entities []*T) error {
	for _, entity := range entities {
		exists, err := tx.NewSelect().Model(entity).WherePK().Exists(ctx)
		if err != nil {
			return err
		}
		if exists {
			_, err = tx.NewUpdate().Model(entity).WherePK().Exec(ctx)
		} else {
			_, err = tx.NewInsert().Model(entity).Exec(ctx)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// check rejects a nil model and runs the configured validator. Its errors are
// returned to the caller unwrapped.
func (r *crudRepositoryImpl[T, K, PT]) check(ctx context.Context, model *T) error {
	if model == nil {
		return &ArgumentError{Name: "model"}
	}
	if r.validate == nil {
		return nil
	}
	if err := r.validate.StructCtx(ctx, model); err != nil {
		return &ValidationError{Model: r.model, Err: err}
	}
	return nil
}

func (r *crudRepositoryImpl[T, K, PT]) fail(op string, model interface{}, err error) error {
	return &RepositoryError{
		Repository: r.name,
		Model:      r.model,
		Op:         op,
		Snapshot:   types.Snapshot(model),
		Code:       database.ClassifyError(err),
		Err:        err,
	}
}
