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
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/tomoncle/crudkit/database"
)

var (
	// ErrNilArgument is matched by every ArgumentError.
	ErrNilArgument = database.ErrNilArgument

	// ErrNotFound is matched by every KeyNotFoundError.
	ErrNotFound = errors.New("entity not found")

	// ErrKeyArity is returned when a key tuple does not have one component
	// per primary key column.
	ErrKeyArity = errors.New("key arity does not match primary key")
)

// ArgumentError reports a required argument that was nil.
type ArgumentError struct {
	Name string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("argument %q cannot be nil", e.Name)
}

func (e *ArgumentError) Unwrap() error { return ErrNilArgument }

// ValidationError reports a model rejected by struct validation.
type ValidationError struct {
	Model string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s validation failed: %v", e.Model, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Fields returns the struct fields that failed validation.
func (e *ValidationError) Fields() []string {
	var verrs validator.ValidationErrors
	if !errors.As(e.Err, &verrs) {
		return nil
	}
	fields := make([]string, len(verrs))
	for i, fe := range verrs {
		fields[i] = fe.Field()
	}
	return fields
}

// KeyNotFoundError reports that no row matches a key tuple.
type KeyNotFoundError struct {
	Model string
	Key   string
}

func (e *KeyNotFoundError) Error() string {
	return fmt.Sprintf("no %s found with key %s", e.Model, e.Key)
}

func (e *KeyNotFoundError) Unwrap() error { return ErrNotFound }

// RepositoryError wraps a failure of a write operation together with the
// repository, the model type, a JSON snapshot of the model and the SQL error
// class of the cause.
type RepositoryError struct {
	Repository string
	Model      string
	Op         string
	Snapshot   string
	Code       database.SQLError
	Err        error
}

func (e *RepositoryError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s.%s(%s) failed", e.Repository, e.Op, e.Model)
	if e.Code != database.UnknownErr {
		fmt.Fprintf(&b, " [%s]", e.Code)
	}
	fmt.Fprintf(&b, ": %v; model: %s", e.Err, e.Snapshot)
	return b.String()
}

func (e *RepositoryError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is or wraps a KeyNotFoundError.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
