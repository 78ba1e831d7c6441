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
	"github.com/go-playground/validator/v10"
)

type options struct {
	name     string
	validate *validator.Validate
}

// Option configures a repository.
type Option func(*options)

// WithName sets the repository name reported in RepositoryError.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithValidator validates models with v before Add, Update and Upsert.
func WithValidator(v *validator.Validate) Option {
	return func(o *options) {
		o.validate = v
	}
}

// WithDefaultValidator validates models with a validator that honors
// `validate` struct tags, including required nested structs.
func WithDefaultValidator() Option {
	return WithValidator(validator.New(validator.WithRequiredStructEnabled()))
}
