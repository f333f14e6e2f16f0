package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load merges a YAML file (if present) with environment variables and
// flattens the result into connector properties. Nested YAML keys are joined
// with dots and lists are joined with commas. With envPrefix "CDC__" the
// variable CDC__TOPIC__PREFIX sets topic.prefix.
func Load(path, envPrefix string) (map[string]string, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil &&
			!errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	if envPrefix != "" {
		err := k.Load(
			env.Provider(
				envPrefix, ".", func(s string) string {
					return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
				},
			), nil,
		)
		if err != nil {
			return nil, fmt.Errorf("load environment: %w", err)
		}
	}

	props := make(map[string]string)
	for key, value := range k.All() {
		props[key] = stringify(value)
	}

	return props, nil
}

func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []any:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = stringify(item)
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(v)
	}
}
