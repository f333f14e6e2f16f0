// Package config describes, validates and loads connector properties.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

var ErrInvalidConfig = errors.New("invalid configuration")

const (
	TopicPrefix          = "topic.prefix"
	RetriableRestartWait = "retriable.restart.connector.wait.ms"
	DatabaseNames        = "task.database.dbnames"

	DefaultRetriableRestartWaitMillis = 10000
)

// FieldError reports one property that failed validation.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *FieldError) Unwrap() error {
	return ErrInvalidConfig
}

// Validator checks a non-empty property value.
type Validator func(value string) error

type Field struct {
	Name        string
	DisplayName string
	Description string
	Default     string
	Required    bool
	Secret      bool
	Validator   Validator
}

// Validate checks the field against props. Missing optional fields are valid.
func (f Field) Validate(props map[string]string) error {
	value, ok := props[f.Name]
	if !ok || strings.TrimSpace(value) == "" {
		if f.Required && f.Default == "" {
			return &FieldError{Field: f.Name, Reason: "a value is required"}
		}
		return nil
	}

	if f.Validator == nil {
		return nil
	}

	if err := f.Validator(value); err != nil {
		return &FieldError{Field: f.Name, Reason: err.Error()}
	}

	return nil
}

type FieldSet []Field

// Merge returns a new set with the fields of other appended. Later fields
// replace earlier ones with the same name.
func (fs FieldSet) Merge(other ...FieldSet) FieldSet {
	out := slices.Clone(fs)
	for _, set := range other {
		for _, f := range set {
			if i := out.index(f.Name); i >= 0 {
				out[i] = f
				continue
			}
			out = append(out, f)
		}
	}
	return out
}

func (fs FieldSet) index(name string) int {
	return slices.IndexFunc(fs, func(f Field) bool { return f.Name == name })
}

func (fs FieldSet) Lookup(name string) (Field, bool) {
	i := fs.index(name)
	if i < 0 {
		return Field{}, false
	}
	return fs[i], true
}

// Validate returns every validation failure, in field order.
func (fs FieldSet) Validate(props map[string]string) []error {
	var errs []error
	for _, f := range fs {
		if err := f.Validate(props); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func PositiveInteger(value string) error {
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return fmt.Errorf("%q is not an integer", value)
	}
	if n <= 0 {
		return fmt.Errorf("%d must be positive", n)
	}
	return nil
}

func Boolean(value string) error {
	if _, err := strconv.ParseBool(strings.TrimSpace(value)); err != nil {
		return fmt.Errorf("%q is not a boolean", value)
	}
	return nil
}

func OneOf(allowed ...string) Validator {
	return func(value string) error {
		if slices.Contains(allowed, strings.TrimSpace(value)) {
			return nil
		}
		return fmt.Errorf("%q must be one of %s", value, strings.Join(allowed, ", "))
	}
}

// CommonFields are understood by every connector.
func CommonFields() FieldSet {
	return FieldSet{
		{
			Name:        TopicPrefix,
			DisplayName: "Topic prefix",
			Description: "Logical name of the source server. Used as the server of every partition and as the prefix of every topic.",
			Required:    true,
		},
		{
			Name:        RetriableRestartWait,
			DisplayName: "Retriable restart wait (ms)",
			Description: "Time to wait before restarting the connector after a retriable error.",
			Default:     strconv.Itoa(DefaultRetriableRestartWaitMillis),
			Validator:   PositiveInteger,
		},
	}
}

// TaskFields are assigned to each task by the host.
func TaskFields() FieldSet {
	return FieldSet{
		{
			Name:        DatabaseNames,
			DisplayName: "Task databases",
			Description: "Comma separated list of the databases this task captures.",
			Required:    true,
		},
	}
}
