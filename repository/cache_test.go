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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/crudkit/types"
	"github.com/uptrace/bun"
)

func TestCachedRepositoryFind(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewCachedRepository(NewCrudRepository[Author, types.Key1[int64]](db), time.Minute)

	added, err := repo.Add(ctx, &Author{Name: "cached"})
	require.NoError(t, err)
	key := added.PrimaryKey()

	// change the row behind the cache's back
	_, err = db.NewUpdate().Model((*Author)(nil)).Set("books = ?", 9).Where("id = ?", added.ID).Exec(ctx)
	require.NoError(t, err)

	hit, err := repo.Find(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 0, hit.Books)

	hit.Name = "mutated by caller"
	again, err := repo.Find(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "cached", again.Name)

	repo.Invalidate(key)
	fresh, err := repo.Find(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 9, fresh.Books)
}

func TestCachedRepositoryWritesKeepCacheCurrent(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewCachedRepository(NewCrudRepository[Author, types.Key1[int64]](db), time.Minute)

	added, err := repo.Add(ctx, &Author{Name: "writer"})
	require.NoError(t, err)
	key := added.PrimaryKey()

	added.Books = 3
	_, err = repo.Update(ctx, added)
	require.NoError(t, err)

	found, err := repo.Find(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 3, found.Books)

	require.NoError(t, repo.Delete(ctx, found))
	_, err = repo.Find(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = repo.Update(ctx, &Author{ID: 404, Name: "ghost"})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.Find(ctx, types.NewKey1[int64](404))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCachedRepositoryWithTxBypassesCache(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewCachedRepository(NewCrudRepository[Author, types.Key1[int64]](db), time.Minute)

	var key types.Key1[int64]
	err := db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		txRepo := repo.WithTx(tx)
		_, isCached := txRepo.(CachedRepository[Author, types.Key1[int64]])
		assert.False(t, isCached)

		a, err := txRepo.Add(ctx, &Author{Name: "in-tx"})
		require.NoError(t, err)
		key = a.PrimaryKey()
		return context.Canceled
	})
	require.ErrorIs(t, err, context.Canceled)

	_, err = repo.Find(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)

	repo.Flush()
	all, err := repo.AsQueryable().List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCachedRepositoryCommittedTxEvicts(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewCachedRepository(NewCrudRepository[Author, types.Key1[int64]](db), time.Minute)

	kept := seedAuthors(t, repo, "kept", "gone")
	keptKey, goneKey := kept[0].PrimaryKey(), kept[1].PrimaryKey()
	_, err := repo.Find(ctx, keptKey)
	require.NoError(t, err)
	_, err = repo.Find(ctx, goneKey)
	require.NoError(t, err)

	err = db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		txRepo := repo.WithTx(tx)
		edited := *kept[0]
		edited.Books = 5
		if _, err := txRepo.Update(ctx, &edited); err != nil {
			return err
		}
		return txRepo.Delete(ctx, kept[1])
	})
	require.NoError(t, err)

	found, err := repo.Find(ctx, keptKey)
	require.NoError(t, err)
	assert.Equal(t, 5, found.Books)
	_, err = repo.Find(ctx, goneKey)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCachedRepositoryRunInTx(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewCachedRepository(NewCrudRepository[Author, types.Key1[int64]](db), time.Minute)

	impl := repo.(*cachedRepositoryImpl[Author, types.Key1[int64], *Author])
	a := seedAuthors(t, repo, "reader")[0]
	key := a.PrimaryKey()

	err := repo.RunInTx(ctx, func(ctx context.Context, txRepo CrudRepository[Author, types.Key1[int64]]) error {
		edited := *a
		edited.Books = 7
		if _, err := txRepo.Update(ctx, &edited); err != nil {
			return err
		}
		// a read on the parent while the transaction is open must not pin
		// a row into the cache
		impl.store(a)
		_, cached := impl.c.Get(cacheKey(key))
		assert.False(t, cached)
		return nil
	})
	require.NoError(t, err)

	found, err := repo.Find(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 7, found.Books)

	boom := errors.New("boom")
	err = repo.RunInTx(ctx, func(ctx context.Context, txRepo CrudRepository[Author, types.Key1[int64]]) error {
		require.NoError(t, txRepo.Delete(ctx, found))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	again, err := repo.Find(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 7, again.Books)

	var arg *ArgumentError
	assert.ErrorAs(t, repo.RunInTx(ctx, nil), &arg)
}

func TestCachedRepositoryKeysWithQuotes(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewCachedRepository(NewCrudRepository[Label, types.Key2[string, string]](db), time.Minute)

	left, err := repo.Add(ctx, &Label{Scope: "x', 'y", Name: "z", Color: "red"})
	require.NoError(t, err)
	right, err := repo.Add(ctx, &Label{Scope: "x", Name: "y', 'z", Color: "blue"})
	require.NoError(t, err)
	assert.NotEqual(t, cacheKey(left.PrimaryKey()), cacheKey(right.PrimaryKey()))

	got, err := repo.Find(ctx, left.PrimaryKey())
	require.NoError(t, err)
	assert.Equal(t, "red", got.Color)
	got, err = repo.Find(ctx, right.PrimaryKey())
	require.NoError(t, err)
	assert.Equal(t, "blue", got.Color)
}
