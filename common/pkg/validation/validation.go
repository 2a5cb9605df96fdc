// Copyright 2022 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package validation checks API request bodies against declarative field
// schemas before any remote call is made. A schema is an ordered tree of
// Rules; a body is the generic mapping produced by decoding JSON
// (map[string]interface{}, []interface{}, string, float64, bool, nil).
//
// Validation is deterministic: rules are walked in declaration order, depth
// first, and the first violation is returned. Body keys no rule covers pass
// through untouched.
package validation

import (
	"fmt"
	"strings"

	"bitbucket.org/creachadair/stringset"
)

// Kind is the expected shape of a field value.
type Kind string

const (
	// Scalar accepts any non-container value. It is the default Kind.
	Scalar Kind = "scalar"
	Dict        = "dict"
	List        = "list"
)

// Rule describes one field of a request body.
type Rule struct {
	// Name is the body key the rule applies to.
	Name string
	// Kind is the expected shape of the value; empty means Scalar.
	Kind Kind
	// Optional permits the field to be absent.
	Optional bool
	// NonEmpty rejects a present-but-empty value: the empty string, an
	// empty list, an empty dict, or an explicit null.
	NonEmpty bool
	// Fields validates the children of a Dict-kinded rule.
	Fields []Rule
}

// Error reports the first rule a body violates. Path is the dotted location
// of the offending field.
type Error struct {
	Path   string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid body: field %q %s", e.Path, e.Reason)
}

// Validate walks rules against body and returns nil, a *Error for the first
// violated rule, or a plain error when the schema itself is malformed.
func Validate(body map[string]interface{}, rules []Rule) error {
	return validate(body, rules, "")
}

func validate(body map[string]interface{}, rules []Rule, prefix string) error {
	seen := stringset.New()
	for _, r := range rules {
		if r.Name == "" {
			return fmt.Errorf("schema error: rule under %q has no name", prefix)
		}
		p := fieldPath(prefix, r.Name)
		if !seen.Add(r.Name) {
			return fmt.Errorf("schema error: duplicate rule %q", p)
		}

		value, ok := body[r.Name]
		if !ok {
			if r.Optional {
				continue
			}
			return &Error{Path: p, Reason: "is required"}
		}
		if err := validateValue(value, r, p); err != nil {
			return err
		}
	}
	return nil
}

func validateValue(value interface{}, r Rule, p string) error {
	switch kind(r) {
	case Dict:
		m, ok := value.(map[string]interface{})
		if !ok {
			return &Error{Path: p, Reason: fmt.Sprintf("must be a dict, got %T", value)}
		}
		if r.NonEmpty && len(m) == 0 {
			return &Error{Path: p, Reason: "must not be empty"}
		}
		return validate(m, r.Fields, p)
	case List:
		// List elements are opaque: only presence, shape and emptiness
		// are checked.
		l, ok := value.([]interface{})
		if !ok {
			return &Error{Path: p, Reason: fmt.Sprintf("must be a list, got %T", value)}
		}
		if r.NonEmpty && len(l) == 0 {
			return &Error{Path: p, Reason: "must not be empty"}
		}
		return nil
	default:
		switch v := value.(type) {
		case map[string]interface{}, []interface{}:
			return &Error{Path: p, Reason: fmt.Sprintf("must be a scalar, got %T", value)}
		case string:
			if r.NonEmpty && v == "" {
				return &Error{Path: p, Reason: "must not be empty"}
			}
		case nil:
			if r.NonEmpty {
				return &Error{Path: p, Reason: "must not be empty"}
			}
		}
		return nil
	}
}

func kind(r Rule) Kind {
	if r.Kind == "" {
		return Scalar
	}
	return r.Kind
}

func fieldPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

// UnknownKeys returns the top-level body keys no rule covers, sorted.
// Validate leaves them untouched; callers may log them at a verbose level.
func UnknownKeys(body map[string]interface{}, rules []Rule) []string {
	known := stringset.New()
	for _, r := range rules {
		known.Add(r.Name)
	}
	keys := stringset.New()
	for k := range body {
		keys.Add(k)
	}
	return keys.Diff(known).Elements()
}

// Describe renders a schema as a readable field list, mainly for error
// context in logs.
func Describe(rules []Rule) string {
	var b strings.Builder
	describe(&b, rules, "")
	return strings.TrimSuffix(b.String(), ", ")
}

func describe(b *strings.Builder, rules []Rule, prefix string) {
	for _, r := range rules {
		p := fieldPath(prefix, r.Name)
		b.WriteString(p)
		if r.Optional {
			b.WriteString("?")
		}
		b.WriteString(", ")
		if kind(r) == Dict {
			describe(b, r.Fields, p)
		}
	}
}
