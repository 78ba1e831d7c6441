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

import "strings"

// Common illegal/default values used by enums.
const (
	IllegalValue = -1
	IllegalName  = "unknown"
	IllegalDesc  = "unknown"
)

// BaseEnum represents a basic enum contract used by domain types.
type BaseEnum interface {
	IsValid() bool
	Number() int
	String() string
	Desc() string
	Name() string
}

// Environment tags the deployment stage a process runs in. Destructive
// database operations are only honored in Development. The zero value is
// Production.
type Environment int

const (
	Production Environment = iota
	Staging
	Development
)

var _ BaseEnum = Environment(0)

var environmentNames = map[Environment]string{
	Development: "development",
	Staging:     "staging",
	Production:  "production",
}

var environmentDescs = map[Environment]string{
	Development: "local or shared development environment",
	Staging:     "pre-production environment",
	Production:  "production environment",
}

// ParseEnvironment maps common spellings ("dev", "Development", "prod", ...)
// onto an Environment. Anything unrecognized is treated as Production.
func ParseEnvironment(s string) Environment {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "dev", "develop", "development", "local":
		return Development
	case "stage", "staging", "test", "qa":
		return Staging
	default:
		return Production
	}
}

func (e Environment) IsValid() bool {
	_, ok := environmentNames[e]
	return ok
}

func (e Environment) Number() int {
	if !e.IsValid() {
		return IllegalValue
	}
	return int(e)
}

func (e Environment) Name() string {
	if n, ok := environmentNames[e]; ok {
		return n
	}
	return IllegalName
}

func (e Environment) String() string { return e.Name() }

func (e Environment) Desc() string {
	if d, ok := environmentDescs[e]; ok {
		return d
	}
	return IllegalDesc
}

// IsDevelopment reports whether destructive startup steps are allowed.
func (e Environment) IsDevelopment() bool { return e == Development }

// MarshalText implements encoding.TextMarshaler.
func (e Environment) MarshalText() ([]byte, error) { return []byte(e.Name()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (e *Environment) UnmarshalText(text []byte) error {
	*e = ParseEnvironment(string(text))
	return nil
}
