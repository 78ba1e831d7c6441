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
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/tomoncle/crudkit/database"
	"github.com/tomoncle/crudkit/types"
	"github.com/uptrace/bun"
)

// CachedRepository is a CrudRepository whose Find results are kept in memory.
type CachedRepository[T any, K types.Key] interface {
	CrudRepository[T, K]

	// RunInTx runs fn with a repository bound to a new transaction. Keys
	// written through it are kept out of the cache until the transaction
	// has committed or rolled back, then evicted.
	RunInTx(ctx context.Context, fn func(ctx context.Context, repo CrudRepository[T, K]) error) error

	// Invalidate drops the cached entity for key.
	Invalidate(key K)

	// Flush drops every cached entity.
	Flush()
}

type cachedRepositoryImpl[T any, K types.Key, PT interface {
	*T
	types.Model[K]
}] struct {
	CrudRepository[T, K]
	c *gocache.Cache

	mu      sync.Mutex
	pending map[string]int // keys held by open RunInTx transactions
}

// NewCachedRepository decorates inner with a read-through cache for Find.
// Add and Update refresh the cached entry, Delete and Upsert evict it.
// Queries are not cached. The repository returned by WithTx reads and writes
// past the cache and evicts every key it writes; RunInTx additionally keeps
// those keys uncached until the transaction ends.
func NewCachedRepository[T any, K types.Key, PT interface {
	*T
	types.Model[K]
}](inner CrudRepository[T, K], ttl time.Duration) CachedRepository[T, K] {
	if inner == nil {
		panic("repository: nil inner repository")
	}
	return &cachedRepositoryImpl[T, K, PT]{
		CrudRepository: inner,
		c:              gocache.New(ttl, time.Minute),
		pending:        make(map[string]int),
	}
}

// cacheKey is an unambiguous encoding of key. String is meant for messages.
func cacheKey[K types.Key](key K) string {
	return fmt.Sprintf("%#v", key)
}

func (r *cachedRepositoryImpl[T, K, PT]) Find(ctx context.Context, key K) (*T, error) {
	if v, ok := r.c.Get(cacheKey(key)); ok {
		return clone(v.(*T)), nil
	}
	entity, err := r.CrudRepository.Find(ctx, key)
	if err != nil {
		return nil, err
	}
	r.store(entity)
	return entity, nil
}

func (r *cachedRepositoryImpl[T, K, PT]) Add(ctx context.Context, model *T) (*T, error) {
	entity, err := r.CrudRepository.Add(ctx, model)
	if err != nil {
		return nil, err
	}
	r.store(entity)
	return entity, nil
}

func (r *cachedRepositoryImpl[T, K, PT]) Update(ctx context.Context, model *T) (*T, error) {
	if model != nil {
		r.evict(model)
	}
	entity, err := r.CrudRepository.Update(ctx, model)
	if err != nil {
		return nil, err
	}
	r.store(entity)
	return entity, nil
}

func (r *cachedRepositoryImpl[T, K, PT]) Delete(ctx context.Context, model *T) error {
	if model != nil {
		r.evict(model)
	}
	return r.CrudRepository.Delete(ctx, model)
}

func (r *cachedRepositoryImpl[T, K, PT]) Upsert(ctx context.Context, fields []string, models ...*T) error {
	for _, m := range models {
		if m != nil {
			r.evict(m)
		}
	}
	return r.CrudRepository.Upsert(ctx, fields, models...)
}

func (r *cachedRepositoryImpl[T, K, PT]) WithTx(tx bun.Tx) CrudRepository[T, K] {
	return &txCachedRepository[T, K, PT]{
		CrudRepository: r.CrudRepository.WithTx(tx),
		parent:         r,
	}
}

func (r *cachedRepositoryImpl[T, K, PT]) RunInTx(ctx context.Context, fn func(ctx context.Context, repo CrudRepository[T, K]) error) error {
	if fn == nil {
		return &ArgumentError{Name: "fn"}
	}

	held := &heldKeys{}
	defer r.release(held)

	return database.InTx(ctx, r.DB(), func(ctx context.Context, tx bun.IDB) error {
		var txRepo CrudRepository[T, K]
		switch v := tx.(type) {
		case bun.Tx:
			txRepo = r.CrudRepository.WithTx(v)
		case *bun.Tx:
			txRepo = r.CrudRepository.WithTx(*v)
		default:
			return fmt.Errorf("repository: unexpected transaction type %T", tx)
		}
		return fn(ctx, &txCachedRepository[T, K, PT]{
			CrudRepository: txRepo,
			parent:         r,
			held:           held,
		})
	})
}

func (r *cachedRepositoryImpl[T, K, PT]) Invalidate(key K) {
	r.c.Delete(cacheKey(key))
}

func (r *cachedRepositoryImpl[T, K, PT]) Flush() {
	r.c.Flush()
}

func (r *cachedRepositoryImpl[T, K, PT]) store(entity *T) {
	key := cacheKey(PT(entity).PrimaryKey())
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending[key] > 0 {
		return
	}
	r.c.SetDefault(key, clone(entity))
}

func (r *cachedRepositoryImpl[T, K, PT]) evict(model *T) {
	r.c.Delete(cacheKey(PT(model).PrimaryKey()))
}

// hold evicts key and, when held is set, keeps it out of the cache until
// release.
func (r *cachedRepositoryImpl[T, K, PT]) hold(key string, held *heldKeys) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.c.Delete(key)
	if held == nil {
		return
	}
	if held.keys == nil {
		held.keys = make(map[string]struct{})
	}
	if _, ok := held.keys[key]; ok {
		return
	}
	held.keys[key] = struct{}{}
	r.pending[key]++
}

func (r *cachedRepositoryImpl[T, K, PT]) release(held *heldKeys) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key := range held.keys {
		if r.pending[key]--; r.pending[key] <= 0 {
			delete(r.pending, key)
		}
		r.c.Delete(key)
	}
	held.keys = nil
}

type heldKeys struct {
	keys map[string]struct{}
}

// txCachedRepository is a transaction bound repository that keeps its
// parent's cache free of the rows it writes.
type txCachedRepository[T any, K types.Key, PT interface {
	*T
	types.Model[K]
}] struct {
	CrudRepository[T, K]
	parent *cachedRepositoryImpl[T, K, PT]
	held   *heldKeys
}

func (r *txCachedRepository[T, K, PT]) touch(model *T) {
	if model != nil {
		r.parent.hold(cacheKey(PT(model).PrimaryKey()), r.held)
	}
}

func (r *txCachedRepository[T, K, PT]) Add(ctx context.Context, model *T) (*T, error) {
	entity, err := r.CrudRepository.Add(ctx, model)
	if err != nil {
		return nil, err
	}
	r.touch(entity)
	return entity, nil
}

func (r *txCachedRepository[T, K, PT]) Update(ctx context.Context, model *T) (*T, error) {
	r.touch(model)
	entity, err := r.CrudRepository.Update(ctx, model)
	r.touch(model)
	return entity, err
}

func (r *txCachedRepository[T, K, PT]) Delete(ctx context.Context, model *T) error {
	r.touch(model)
	err := r.CrudRepository.Delete(ctx, model)
	r.touch(model)
	return err
}

func (r *txCachedRepository[T, K, PT]) Upsert(ctx context.Context, fields []string, models ...*T) error {
	for _, m := range models {
		r.touch(m)
	}
	err := r.CrudRepository.Upsert(ctx, fields, models...)
	for _, m := range models {
		r.touch(m)
	}
	return err
}

func (r *txCachedRepository[T, K, PT]) WithTx(tx bun.Tx) CrudRepository[T, K] {
	return r.parent.WithTx(tx)
}

// clone returns a shallow copy so callers cannot mutate cached entries.
func clone[T any](v *T) *T {
	c := *v
	return &c
}
