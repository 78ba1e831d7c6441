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
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/crudkit/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type Author struct {
	bun.BaseModel `bun:"table:authors,alias:a"`

	ID    int64  `bun:"id,pk,autoincrement" json:"id"`
	Name  string `bun:"name,notnull,unique" json:"name" validate:"required,max=32"`
	Email string `bun:"email" json:"email" validate:"omitempty,email"`
	Books int    `bun:"books,notnull,default:0" json:"books"`
}

func (a *Author) PrimaryKey() types.Key1[int64] { return types.NewKey1(a.ID) }

type Membership struct {
	bun.BaseModel `bun:"table:memberships,alias:m"`

	GroupID int64  `bun:"group_id,pk" json:"group_id"`
	UserID  string `bun:"user_id,pk" json:"user_id"`
	Role    string `bun:"role" json:"role"`
}

func (m *Membership) PrimaryKey() types.Key2[int64, string] {
	return types.NewKey2(m.GroupID, m.UserID)
}

type Seat struct {
	bun.BaseModel `bun:"table:seats,alias:s"`

	Venue  uuid.UUID `bun:"venue,pk,type:varchar(36)" json:"venue"`
	Block  string    `bun:"block,pk" json:"block"`
	Number int       `bun:"number,pk" json:"number"`
	Holder string    `bun:"holder" json:"holder"`
}

func (s *Seat) PrimaryKey() types.Key3[uuid.UUID, string, int] {
	return types.NewKey3(s.Venue, s.Block, s.Number)
}

type Label struct {
	bun.BaseModel `bun:"table:labels,alias:l"`

	Scope string `bun:"scope,pk" json:"scope"`
	Name  string `bun:"name,pk" json:"name"`
	Color string `bun:"color" json:"color"`
}

func (l *Label) PrimaryKey() types.Key2[string, string] {
	return types.NewKey2(l.Scope, l.Name)
}

// shortAuthor maps the authors table with a key that has one component too many.
type shortAuthor struct {
	bun.BaseModel `bun:"table:authors,alias:a"`

	ID   int64  `bun:"id,pk,autoincrement"`
	Name string `bun:"name"`
}

func (a *shortAuthor) PrimaryKey() types.Key2[int64, string] {
	return types.NewKey2(a.ID, a.Name)
}

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	sqldb, err := sql.Open(sqliteshim.ShimName, "file:"+name+"?mode=memory&cache=shared")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	for _, model := range []interface{}{(*Author)(nil), (*Membership)(nil), (*Seat)(nil), (*Label)(nil)} {
		_, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx)
		require.NoError(t, err)
	}
	return db
}

func seedAuthors(t *testing.T, repo CrudRepository[Author, types.Key1[int64]], names ...string) []*Author {
	t.Helper()
	authors := make([]*Author, len(names))
	for i, name := range names {
		a, err := repo.Add(context.Background(), &Author{Name: name})
		require.NoError(t, err)
		authors[i] = a
	}
	return authors
}
