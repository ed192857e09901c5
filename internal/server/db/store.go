package db

import (
	"context"
	"strings"

	"go.uber.org/fx"

	"github.com/charm-corp/ai-value-matching-sub001/internal/docstore"
	"github.com/charm-corp/ai-value-matching-sub001/internal/docstore/memory"
	"github.com/charm-corp/ai-value-matching-sub001/internal/docstore/redisdoc"
	"github.com/charm-corp/ai-value-matching-sub001/internal/docstore/sqldoc"
	"github.com/charm-corp/ai-value-matching-sub001/internal/log"
	"github.com/charm-corp/ai-value-matching-sub001/internal/pkg/xredis"
)

// Open builds the document store selected by cfg.Dialect.
func Open(ctx context.Context, cfg Config) (docstore.Store, error) {
	switch strings.ToLower(cfg.Dialect) {
	case "", "memory":
		return memory.New(), nil
	case "redis":
		client, err := xredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}

		return redisdoc.New(client, cfg.Redis.Prefix()), nil
	default:
		dialect, err := sqldoc.ParseDialect(cfg.Dialect)
		if err != nil {
			return nil, err
		}

		return sqldoc.Open(ctx, dialect, cfg.DSN)
	}
}

// NewStore opens the store and closes it when the application stops.
func NewStore(lc fx.Lifecycle, cfg Config) (docstore.Store, error) {
	store, err := Open(context.Background(), cfg)
	if err != nil {
		return nil, err
	}

	log.Info(context.Background(), "document store opened", log.String("dialect", cfg.Dialect))

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return store.Close()
		},
	})

	return store, nil
}
