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

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/crudkit/database"
	"github.com/tomoncle/crudkit/types"
	"github.com/uptrace/bun"
)

func TestCrudRepositorySingleKey(t *testing.T) {
	ctx := context.Background()
	repo := NewCrudRepository[Author, types.Key1[int64]](newTestDB(t))

	added, err := repo.Add(ctx, &Author{Name: "ursula", Email: "ursula@example.com"})
	require.NoError(t, err)
	require.NotZero(t, added.ID)
	assert.Equal(t, 0, added.Books)

	found, err := repo.Find(ctx, added.PrimaryKey())
	require.NoError(t, err)
	assert.Equal(t, "ursula", found.Name)

	found.Books = 23
	found.Email = "ukl@example.com"
	updated, err := repo.Update(ctx, found)
	require.NoError(t, err)
	assert.Equal(t, 23, updated.Books)

	again, err := repo.Find(ctx, types.NewKey1(added.ID))
	require.NoError(t, err)
	assert.Equal(t, "ukl@example.com", again.Email)
	assert.Equal(t, 23, again.Books)

	require.NoError(t, repo.Delete(ctx, again))

	_, err = repo.Find(ctx, types.NewKey1(added.ID))
	assert.ErrorIs(t, err, ErrNotFound)
	var nf *KeyNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "Author", nf.Model)
	assert.Equal(t, added.PrimaryKey().String(), nf.Key)
}

func TestCrudRepositoryUpdateMissing(t *testing.T) {
	repo := NewCrudRepository[Author, types.Key1[int64]](newTestDB(t))

	_, err := repo.Update(context.Background(), &Author{ID: 404, Name: "ghost"})
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	var repoErr *RepositoryError
	require.ErrorAs(t, err, &repoErr)
	assert.Equal(t, "AuthorRepository", repoErr.Repository)
	assert.Equal(t, "Author", repoErr.Model)
	assert.Equal(t, "Update", repoErr.Op)
	assert.Contains(t, repoErr.Snapshot, `"name":"ghost"`)
	assert.Contains(t, repoErr.Error(), "AuthorRepository.Update(Author) failed")
}

func TestCrudRepositoryDeleteMissing(t *testing.T) {
	ctx := context.Background()
	repo := NewCrudRepository[Author, types.Key1[int64]](newTestDB(t), WithName("Authors"))
	seedAuthors(t, repo, "kept")

	err := repo.Delete(ctx, &Author{ID: 404})
	assert.ErrorIs(t, err, ErrNotFound)
	var repoErr *RepositoryError
	require.ErrorAs(t, err, &repoErr)
	assert.Equal(t, "Authors", repoErr.Repository)
	assert.Equal(t, "Delete", repoErr.Op)

	n, err := repo.AsQueryable().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCrudRepositoryNilArguments(t *testing.T) {
	ctx := context.Background()
	repo := NewCrudRepository[Author, types.Key1[int64]](newTestDB(t))

	_, err := repo.Add(ctx, nil)
	assertArgumentError(t, err)
	_, err = repo.Update(ctx, nil)
	assertArgumentError(t, err)
	assertArgumentError(t, repo.Delete(ctx, nil))
	assertArgumentError(t, repo.Upsert(ctx, []string{"name"}, &Author{Name: "a"}, nil))

	assert.Panics(t, func() { NewCrudRepository[Author, types.Key1[int64]](nil) })
	assert.Panics(t, func() { NewRepository[Author]((*bun.DB)(nil)) })
}

func assertArgumentError(t *testing.T, err error) {
	t.Helper()
	var argErr *ArgumentError
	require.ErrorAs(t, err, &argErr)
	assert.Equal(t, "model", argErr.Name)
	assert.ErrorIs(t, err, ErrNilArgument)
	assert.ErrorIs(t, err, database.ErrNilArgument)
	var repoErr *RepositoryError
	assert.False(t, errors.As(err, &repoErr), "argument errors are not wrapped")
}

func TestCrudRepositoryValidation(t *testing.T) {
	ctx := context.Background()
	repo := NewCrudRepository[Author, types.Key1[int64]](newTestDB(t), WithDefaultValidator())

	_, err := repo.Add(ctx, &Author{Email: "not-an-email"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.ElementsMatch(t, []string{"Name", "Email"}, verr.Fields())
	var repoErr *RepositoryError
	assert.False(t, errors.As(err, &repoErr))

	n, err := repo.AsQueryable().Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	added := seedAuthors(t, repo, "valid")[0]
	added.Name = ""
	_, err = repo.Update(ctx, added)
	assert.ErrorAs(t, err, &verr)
}

func TestCrudRepositoryDuplicateKeyIsClassified(t *testing.T) {
	ctx := context.Background()
	repo := NewCrudRepository[Author, types.Key1[int64]](newTestDB(t))
	seedAuthors(t, repo, "dup")

	_, err := repo.Add(ctx, &Author{Name: "dup"})
	var repoErr *RepositoryError
	require.ErrorAs(t, err, &repoErr)
	assert.Equal(t, "Add", repoErr.Op)
	assert.Equal(t, database.DuplicateKeyErr, repoErr.Code)
	assert.Contains(t, repoErr.Error(), "[duplicate_key]")
}

func TestCrudRepositoryCompositeKey(t *testing.T) {
	ctx := context.Background()
	repo := NewCrudRepository2[Membership, int64, string](newTestDB(t))

	_, err := repo.Add(ctx, &Membership{GroupID: 1, UserID: "ann", Role: "owner"})
	require.NoError(t, err)
	_, err = repo.Add(ctx, &Membership{GroupID: 1, UserID: "bob", Role: "member"})
	require.NoError(t, err)
	_, err = repo.Add(ctx, &Membership{GroupID: 2, UserID: "ann", Role: "member"})
	require.NoError(t, err)

	m, err := repo.Find(ctx, types.NewKey2[int64, string](2, "ann"))
	require.NoError(t, err)
	assert.Equal(t, "member", m.Role)

	_, err = repo.Find(ctx, types.NewKey2[int64, string](2, "bob"))
	assert.ErrorIs(t, err, ErrNotFound)

	m.Role = "admin"
	_, err = repo.Update(ctx, m)
	require.NoError(t, err)

	owner, err := repo.Find(ctx, types.NewKey2[int64, string](1, "ann"))
	require.NoError(t, err)
	assert.Equal(t, "owner", owner.Role, "update touches only the keyed row")

	require.NoError(t, repo.Delete(ctx, &Membership{GroupID: 1, UserID: "bob"}))
	n, err := repo.AsQueryable().Where("group_id = ?", 1).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCrudRepositoryThreePartKey(t *testing.T) {
	ctx := context.Background()
	repo := NewCrudRepository3[Seat, uuid.UUID, string, int](newTestDB(t))
	venue := uuid.New()

	for i := 1; i <= 3; i++ {
		_, err := repo.Add(ctx, &Seat{Venue: venue, Block: "A", Number: i})
		require.NoError(t, err)
	}

	seat, err := repo.Find(ctx, types.NewKey3(venue, "A", 2))
	require.NoError(t, err)
	seat.Holder = "grace"
	_, err = repo.Update(ctx, seat)
	require.NoError(t, err)

	seat, err = repo.Find(ctx, types.NewKey3(venue, "A", 2))
	require.NoError(t, err)
	assert.Equal(t, "grace", seat.Holder)

	_, err = repo.Find(ctx, types.NewKey3(uuid.New(), "A", 2))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = repo.Update(ctx, &Seat{Venue: venue, Block: "B", Number: 2})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCrudRepositoryKeyArity(t *testing.T) {
	ctx := context.Background()
	repo := NewCrudRepository[shortAuthor, types.Key2[int64, string]](newTestDB(t))

	_, err := repo.Find(ctx, types.NewKey2[int64, string](1, "x"))
	assert.ErrorIs(t, err, ErrKeyArity)

	err = repo.Delete(ctx, &shortAuthor{ID: 1})
	assert.ErrorIs(t, err, ErrKeyArity)
	var repoErr *RepositoryError
	assert.ErrorAs(t, err, &repoErr)
}

func TestCrudRepositoryWithTx(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewCrudRepository[Author, types.Key1[int64]](db)

	rollback := errors.New("rollback")
	err := db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		txRepo := repo.WithTx(tx)
		a, err := txRepo.Add(ctx, &Author{Name: "uncommitted"})
		require.NoError(t, err)
		a.Books = 2
		_, err = txRepo.Update(ctx, a)
		require.NoError(t, err)
		return rollback
	})
	require.ErrorIs(t, err, rollback)

	all, err := repo.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	err = db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := repo.WithTx(tx).Add(ctx, &Author{Name: "committed"})
		return err
	})
	require.NoError(t, err)

	all, err = repo.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "committed", all[0].Name)
}

func TestCrudRepositoryUpsert(t *testing.T) {
	ctx := context.Background()
	repo := NewCrudRepository2[Membership, int64, string](newTestDB(t))
	_, err := repo.Add(ctx, &Membership{GroupID: 7, UserID: "ann", Role: "member"})
	require.NoError(t, err)

	err = repo.Upsert(ctx, []string{"role"},
		&Membership{GroupID: 7, UserID: "ann", Role: "owner"},
		&Membership{GroupID: 7, UserID: "cy", Role: "member"},
	)
	require.NoError(t, err)

	ann, err := repo.Find(ctx, types.NewKey2[int64, string](7, "ann"))
	require.NoError(t, err)
	assert.Equal(t, "owner", ann.Role)
	_, err = repo.Find(ctx, types.NewKey2[int64, string](7, "cy"))
	require.NoError(t, err)

	err = repo.Upsert(ctx, nil, &Membership{GroupID: 7, UserID: "dee"})
	var repoErr *RepositoryError
	assert.ErrorAs(t, err, &repoErr)
	assert.NoError(t, repo.Upsert(ctx, []string{"role"}))
}

func TestRepositoryListAndFilter(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	seedAuthors(t, NewCrudRepository[Author, types.Key1[int64]](db), "alice", "albert", "bob")
	repo := NewRepository[Author](db)

	all, err := repo.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	list, err := repo.List(ctx, types.NewQueryFilter("name LIKE ?", "al%"))
	require.NoError(t, err)
	assert.Len(t, list, 2)

	list, err = repo.List(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, list, 3)
}
