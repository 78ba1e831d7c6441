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

	"github.com/tomoncle/crudkit/types"
	"github.com/uptrace/bun"
)

type queryStep func(*bun.SelectQuery) *bun.SelectQuery

// Query is a deferred, composable select over T. Builder methods return a new
// Query and leave the receiver untouched; nothing reaches the database until
// a terminal method (List, First, Count, Exists, Page) runs.
type Query[T any] struct {
	db    bun.IDB
	steps []queryStep
}

func newQuery[T any](db bun.IDB) *Query[T] {
	return &Query[T]{db: db}
}

func (q *Query[T]) with(step queryStep) *Query[T] {
	steps := make([]queryStep, len(q.steps), len(q.steps)+1)
	copy(steps, q.steps)
	return &Query[T]{db: q.db, steps: append(steps, step)}
}

func (q *Query[T]) Where(query string, args ...interface{}) *Query[T] {
	return q.with(func(sq *bun.SelectQuery) *bun.SelectQuery {
		return sq.Where(query, args...)
	})
}

func (q *Query[T]) WhereOr(query string, args ...interface{}) *Query[T] {
	return q.with(func(sq *bun.SelectQuery) *bun.SelectQuery {
		return sq.WhereOr(query, args...)
	})
}

// Filter applies a QueryFilter; an empty filter is a no-op.
func (q *Query[T]) Filter(filter *types.QueryFilter) *Query[T] {
	if filter.IsEmpty() {
		return q.with(func(sq *bun.SelectQuery) *bun.SelectQuery { return sq })
	}
	return q.Where(filter.Schema, filter.Args...)
}

// Order accepts "column" or "column ASC|DESC" items.
func (q *Query[T]) Order(orders ...string) *Query[T] {
	return q.with(func(sq *bun.SelectQuery) *bun.SelectQuery {
		return sq.Order(orders...)
	})
}

func (q *Query[T]) OrderExpr(query string, args ...interface{}) *Query[T] {
	return q.with(func(sq *bun.SelectQuery) *bun.SelectQuery {
		return sq.OrderExpr(query, args...)
	})
}

func (q *Query[T]) Column(columns ...string) *Query[T] {
	return q.with(func(sq *bun.SelectQuery) *bun.SelectQuery {
		return sq.Column(columns...)
	})
}

// Relation joins or eagerly loads a relation declared on T.
func (q *Query[T]) Relation(name string, apply ...func(*bun.SelectQuery) *bun.SelectQuery) *Query[T] {
	return q.with(func(sq *bun.SelectQuery) *bun.SelectQuery {
		return sq.Relation(name, apply...)
	})
}

func (q *Query[T]) Limit(n int) *Query[T] {
	return q.with(func(sq *bun.SelectQuery) *bun.SelectQuery {
		return sq.Limit(n)
	})
}

func (q *Query[T]) Offset(n int) *Query[T] {
	return q.with(func(sq *bun.SelectQuery) *bun.SelectQuery {
		return sq.Offset(n)
	})
}

// Apply adds an arbitrary step for anything the builder does not cover.
func (q *Query[T]) Apply(fn func(*bun.SelectQuery) *bun.SelectQuery) *Query[T] {
	if fn == nil {
		return q.with(func(sq *bun.SelectQuery) *bun.SelectQuery { return sq })
	}
	return q.with(fn)
}

func (q *Query[T]) build(model interface{}) *bun.SelectQuery {
	sq := q.db.NewSelect().Model(model)
	for _, step := range q.steps {
		sq = step(sq)
	}
	return sq
}

// String renders the SQL the query would run.
func (q *Query[T]) String() string {
	return q.build((*T)(nil)).String()
}

// List runs the query and returns every matching entity.
func (q *Query[T]) List(ctx context.Context) ([]*T, error) {
	entities := make([]*T, 0)
	if err := q.build(&entities).Scan(ctx); err != nil {
		return nil, err
	}
	return entities, nil
}

// First returns the first matching entity or ErrNotFound.
func (q *Query[T]) First(ctx context.Context) (*T, error) {
	var entity T
	err := q.build(&entity).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &entity, nil
}

// Count ignores Limit, Offset and Order.
func (q *Query[T]) Count(ctx context.Context) (int, error) {
	return q.build((*T)(nil)).Count(ctx)
}

func (q *Query[T]) Exists(ctx context.Context) (bool, error) {
	return q.build((*T)(nil)).Exists(ctx)
}

// Page counts the matches of q narrowed by the request's filter, then loads
// the requested page in the requested order.
func (q *Query[T]) Page(ctx context.Context, pageRequest *types.PageRequest) (*types.Pagination[T], error) {
	if pageRequest == nil {
		pageRequest = types.NewDefaultPageRequest(types.DefaultPage, types.DefaultPageSize)
	}
	filtered := q.Filter(pageRequest.GetFilter())
	pagination := types.NewDefaultPagination[T](pageRequest.GetPage(), pageRequest.GetPageSize())

	total, err := filtered.Count(ctx)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return pagination, nil
	}

	items, err := filtered.
		Order(pageRequest.GetOrders()...).
		Offset(pageRequest.GetOffset()).
		Limit(pageRequest.GetPageSize()).
		List(ctx)
	if err != nil {
		return nil, err
	}
	pagination.Total = total
	pagination.Items = items
	return pagination, nil
}

// Project runs q and scans the selected columns into values of R, which may
// be a struct (matched by column name) or a scalar for single column queries.
func Project[T any, R any](ctx context.Context, q *Query[T]) ([]R, error) {
	results := make([]R, 0)
	if err := q.build((*T)(nil)).Scan(ctx, &results); err != nil {
		return nil, err
	}
	return results, nil
}
