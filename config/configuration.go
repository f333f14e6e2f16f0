package config

import (
	"strings"
	"time"

	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/v2"
)

// Property names are dotted but flat, so the typed view uses a delimiter
// that never appears in them.
const flatDelim = "/"

const maskedValue = "********"

// Configuration is a typed, read-only view over a property snapshot with the
// defaults of its fields applied.
type Configuration struct {
	k      *koanf.Koanf
	fields FieldSet
}

func New(props map[string]string, fields ...FieldSet) (*Configuration, error) {
	all := FieldSet(nil).Merge(fields...)
	k := koanf.New(flatDelim)

	defaults := make(map[string]any)
	for _, f := range all {
		if f.Default != "" {
			defaults[f.Name] = f.Default
		}
	}
	if err := k.Load(confmap.Provider(defaults, flatDelim), nil); err != nil {
		return nil, err
	}

	// blank values are absent, as in Field.Validate
	values := make(map[string]any, len(props))
	for name, value := range props {
		if value = strings.TrimSpace(value); value != "" {
			values[name] = value
		}
	}
	if err := k.Load(confmap.Provider(values, flatDelim), nil); err != nil {
		return nil, err
	}

	return &Configuration{k: k, fields: all}, nil
}

func (c *Configuration) Has(name string) bool {
	return c.k.Exists(name)
}

func (c *Configuration) String(name string) string {
	return strings.TrimSpace(c.k.String(name))
}

func (c *Configuration) Int(name string) int {
	return c.k.Int(name)
}

// Millis reads an integer property as a number of milliseconds.
func (c *Configuration) Millis(name string) time.Duration {
	return time.Duration(c.k.Int64(name)) * time.Millisecond
}

func (c *Configuration) Bool(name string) bool {
	return c.k.Bool(name)
}

// List splits a comma separated property, trimming every element. Empty
// elements are kept.
func (c *Configuration) List(name string) []string {
	raw := c.k.String(name)
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// Props returns every property including applied defaults.
func (c *Configuration) Props() map[string]string {
	out := make(map[string]string)
	for _, key := range c.k.Keys() {
		out[key] = c.k.String(key)
	}
	return out
}

// Masked returns Props with the values of secret fields hidden, for logging.
func (c *Configuration) Masked() map[string]string {
	out := c.Props()
	for key := range out {
		if f, ok := c.fields.Lookup(key); ok && f.Secret {
			out[key] = maskedValue
		}
	}
	return out
}

type TaskConfig struct {
	ServerName           string
	DatabaseNames        []string
	RetriableRestartWait time.Duration
}

func NewTaskConfig(c *Configuration) TaskConfig {
	return TaskConfig{
		ServerName:           c.String(TopicPrefix),
		DatabaseNames:        c.List(DatabaseNames),
		RetriableRestartWait: c.Millis(RetriableRestartWait),
	}
}
