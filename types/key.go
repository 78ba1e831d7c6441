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

package types

import (
	"fmt"
	"strings"
)

// Key is an ordered tuple of primary key values. Its components map, in
// order, onto the primary key columns of the model's table.
type Key interface {
	Values() []any
	String() string
}

// Model is implemented by entities identified by a key tuple of type K.
type Model[K Key] interface {
	PrimaryKey() K
}

// Key1 is a single component key.
type Key1[A comparable] struct {
	K1 A
}

// NewKey1 builds a single component key.
func NewKey1[A comparable](k1 A) Key1[A] {
	return Key1[A]{K1: k1}
}

func (k Key1[A]) Values() []any { return []any{k.K1} }

func (k Key1[A]) String() string { return formatKey(k.K1) }

// Key2 is a two component composite key.
type Key2[A, B comparable] struct {
	K1 A
	K2 B
}

// NewKey2 builds a two component composite key.
func NewKey2[A, B comparable](k1 A, k2 B) Key2[A, B] {
	return Key2[A, B]{K1: k1, K2: k2}
}

func (k Key2[A, B]) Values() []any { return []any{k.K1, k.K2} }

func (k Key2[A, B]) String() string { return formatKey(k.K1, k.K2) }

// Key3 is a three component composite key.
type Key3[A, B, C comparable] struct {
	K1 A
	K2 B
	K3 C
}

// NewKey3 builds a three component composite key.
func NewKey3[A, B, C comparable](k1 A, k2 B, k3 C) Key3[A, B, C] {
	return Key3[A, B, C]{K1: k1, K2: k2, K3: k3}
}

func (k Key3[A, B, C]) Values() []any { return []any{k.K1, k.K2, k.K3} }

func (k Key3[A, B, C]) String() string { return formatKey(k.K1, k.K2, k.K3) }

// formatKey renders values as a quoted list. Embedded quotes are doubled so
// distinct tuples never render alike.
func formatKey(values ...any) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = "'" + strings.ReplaceAll(fmt.Sprint(v), "'", "''") + "'"
	}
	return strings.Join(parts, ", ")
}
