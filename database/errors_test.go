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
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestClassifyError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want SQLError
	}{
		{"nil", nil, UnknownErr},
		{"no rows", fmt.Errorf("find: %w", sql.ErrNoRows), NoRowsErr},
		{"mysql duplicate", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}, DuplicateKeyErr},
		{"mysql missing table", &mysql.MySQLError{Number: 1146}, NoTableErr},
		{"mysql deadlock", &mysql.MySQLError{Number: 1213}, SerializationFailureErr},
		{"pgx unique", &pgconn.PgError{Code: "23505"}, DuplicateKeyErr},
		{"pgx undefined table", fmt.Errorf("query: %w", &pgconn.PgError{Code: "42p01"}), NoTableErr},
		{"pq foreign key", &pq.Error{Code: "23503"}, ForeignKeyViolationErr},
		{"sqlite unique", errors.New("constraint failed: UNIQUE constraint failed: users.email (2067)"), DuplicateKeyErr},
		{"sqlite not null", errors.New("NOT NULL constraint failed: users.name"), NotNullViolationErr},
		{"sqlite no table", errors.New("SQL logic error: no such table: users (1)"), NoTableErr},
		{"plain", errors.New("connection refused"), UnknownErr},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyError(tc.err))
		})
	}
}

func TestIsSqlErrorDriverErrors(t *testing.T) {
	is, class := IsSqlError(&mysql.MySQLError{Number: 9999})
	assert.True(t, is)
	assert.Equal(t, UnknownErr, class)

	is, _ = IsSqlError(errors.New("timeout"))
	assert.False(t, is)
}

func TestSQLErrorString(t *testing.T) {
	assert.Equal(t, "duplicate_key", DuplicateKeyErr.String())
	assert.Equal(t, "unknown", SQLError(100).String())
}
