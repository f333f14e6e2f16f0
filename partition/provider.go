package partition

import (
	"context"
	"fmt"

	"github.com/hugolhafner/go-connect/logger"
)

// Resolver maps a configured database name onto the name the source
// database actually uses.
type Resolver interface {
	RealDatabaseName(ctx context.Context, name string) (string, error)
}

type ResolverFunc func(ctx context.Context, name string) (string, error)

func (f ResolverFunc) RealDatabaseName(ctx context.Context, name string) (string, error) {
	return f(ctx, name)
}

// Provider turns the configured database names of a task into partitions.
type Provider struct {
	serverName string
	names      []string
	resolver   Resolver
	logger     logger.Logger
}

func NewProvider(serverName string, names []string, resolver Resolver, l logger.Logger) *Provider {
	if l == nil {
		l = logger.NewNoopLogger()
	}

	return &Provider{
		serverName: serverName,
		names:      append([]string(nil), names...),
		resolver:   resolver,
		logger:     l.With("component", "partition-provider"),
	}
}

// Partitions resolves every configured name. Names that cannot be resolved
// are logged and skipped; the result is never nil and keeps the configured
// order. Duplicates are preserved.
func (p *Provider) Partitions(ctx context.Context) []Partition {
	out := make([]Partition, 0, len(p.names))

	for _, name := range p.names {
		part, err := p.resolve(ctx, name)
		if err != nil {
			p.logger.Warn("Couldn't obtain real name for database", "database", name, "error", err)
			continue
		}
		out = append(out, part)
	}

	return out
}

func (p *Provider) resolve(ctx context.Context, name string) (part Partition, err error) {
	if p.resolver == nil {
		return Partition{}, fmt.Errorf("no resolver configured")
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("resolver panicked: %v", r)
		}
	}()

	resolved, err := p.resolver.RealDatabaseName(ctx, name)
	if err != nil {
		return Partition{}, err
	}

	return New(p.serverName, resolved)
}
