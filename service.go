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

package crudkit

import (
	"context"
	"sync"

	"github.com/tomoncle/crudkit/database"
	"github.com/tomoncle/crudkit/repository"
	"github.com/tomoncle/crudkit/types"
	"github.com/uptrace/bun"
)

// Service is a CRUD facade over a repository bound on first use.
type Service[T any, K types.Key] interface {
	// Get returns a single entity by its key.
	Get(ctx context.Context, key K) (*T, error)

	// All returns all entities.
	All(ctx context.Context) ([]*T, error)

	// List returns entities that match the provided filter.
	List(ctx context.Context, filter *types.QueryFilter) ([]*T, error)

	// Page returns a paginated list of entities.
	Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error)

	// Query returns a deferred query over the entities.
	Query() (*repository.Query[T], error)

	// Save inserts a new entity.
	Save(ctx context.Context, model *T) (*T, error)

	// SaveOrUpdate upserts entities, updating fields on key conflicts.
	SaveOrUpdate(ctx context.Context, fields []string, models ...*T) error

	// Update overwrites an existing entity.
	Update(ctx context.Context, model *T) (*T, error)

	// Delete removes an existing entity.
	Delete(ctx context.Context, model *T) error

	// Transaction runs fn with a repository bound to a new transaction.
	Transaction(ctx context.Context, fn func(ctx context.Context, repo repository.CrudRepository[T, K]) error) error

	// Repository returns the bound repository.
	Repository() (repository.CrudRepository[T, K], error)
}

type baseServiceImpl[T any, K types.Key, PT interface {
	*T
	types.Model[K]
}] struct {
	provider func() *bun.DB
	opts     []repository.Option
	mu       sync.Mutex
	db       *bun.DB
	repo     repository.CrudRepository[T, K]
}

// NewService returns a Service backed by the global database connection
// (database.InitDB). The repository is created on first use, so services can
// be declared before the database is initialized, and is rebuilt when InitDB
// replaces the connection.
func NewService[T any, K types.Key, PT interface {
	*T
	types.Model[K]
}](opts ...repository.Option) Service[T, K] {
	return NewServiceWithDB[T, K, PT](database.GetDB, opts...)
}

// NewServiceWithDB is NewService with an explicit database provider.
func NewServiceWithDB[T any, K types.Key, PT interface {
	*T
	types.Model[K]
}](provider func() *bun.DB, opts ...repository.Option) Service[T, K] {
	return &baseServiceImpl[T, K, PT]{provider: provider, opts: opts}
}

func (s *baseServiceImpl[T, K, PT]) Repository() (repository.CrudRepository[T, K], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	db := s.provider()
	if db == nil {
		return nil, database.ErrNotConnected
	}
	if s.repo == nil || s.db != db {
		s.db = db
		s.repo = repository.NewCrudRepository[T, K, PT](db, s.opts...)
	}
	return s.repo, nil
}

func (s *baseServiceImpl[T, K, PT]) Get(ctx context.Context, key K) (*T, error) {
	repo, err := s.Repository()
	if err != nil {
		return nil, err
	}
	return repo.Find(ctx, key)
}

func (s *baseServiceImpl[T, K, PT]) All(ctx context.Context) ([]*T, error) {
	repo, err := s.Repository()
	if err != nil {
		return nil, err
	}
	return repo.All(ctx)
}

func (s *baseServiceImpl[T, K, PT]) List(ctx context.Context, filter *types.QueryFilter) ([]*T, error) {
	repo, err := s.Repository()
	if err != nil {
		return nil, err
	}
	return repo.List(ctx, filter)
}

func (s *baseServiceImpl[T, K, PT]) Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error) {
	repo, err := s.Repository()
	if err != nil {
		return nil, err
	}
	return repo.Page(ctx, page)
}

func (s *baseServiceImpl[T, K, PT]) Query() (*repository.Query[T], error) {
	repo, err := s.Repository()
	if err != nil {
		return nil, err
	}
	return repo.AsQueryable(), nil
}

func (s *baseServiceImpl[T, K, PT]) Save(ctx context.Context, model *T) (*T, error) {
	repo, err := s.Repository()
	if err != nil {
		return nil, err
	}
	return repo.Add(ctx, model)
}

func (s *baseServiceImpl[T, K, PT]) SaveOrUpdate(ctx context.Context, fields []string, models ...*T) error {
	repo, err := s.Repository()
	if err != nil {
		return err
	}
	return repo.Upsert(ctx, fields, models...)
}

func (s *baseServiceImpl[T, K, PT]) Update(ctx context.Context, model *T) (*T, error) {
	repo, err := s.Repository()
	if err != nil {
		return nil, err
	}
	return repo.Update(ctx, model)
}

func (s *baseServiceImpl[T, K, PT]) Delete(ctx context.Context, model *T) error {
	repo, err := s.Repository()
	if err != nil {
		return err
	}
	return repo.Delete(ctx, model)
}

func (s *baseServiceImpl[T, K, PT]) Transaction(ctx context.Context, fn func(ctx context.Context, repo repository.CrudRepository[T, K]) error) error {
	repo, err := s.Repository()
	if err != nil {
		return err
	}
	db, ok := repo.DB().(*bun.DB)
	if !ok {
		return database.InTx(ctx, repo.DB(), func(ctx context.Context, _ bun.IDB) error {
			return fn(ctx, repo)
		})
	}
	return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, repo.WithTx(tx))
	})
}
