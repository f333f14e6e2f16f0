package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hugolhafner/go-connect/partition"
)

var ErrUnknownDatabase = errors.New("database not found in catalog")

// CatalogResolver resolves names case-insensitively against catalog and
// returns the catalog spelling. An empty catalog accepts every name as is.
func CatalogResolver(catalog []string) partition.Resolver {
	return partition.ResolverFunc(
		func(ctx context.Context, name string) (string, error) {
			if err := ctx.Err(); err != nil {
				return "", err
			}

			if len(catalog) == 0 {
				return name, nil
			}

			for _, known := range catalog {
				if strings.EqualFold(known, name) {
					return known, nil
				}
			}

			return "", fmt.Errorf("%w: %q", ErrUnknownDatabase, name)
		},
	)
}
