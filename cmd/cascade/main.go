// Command cascade is the Lambda function attached to the node table streams.
// It propagates soft deletes one level per invocation and drops cached
// dictionary types whose entries changed.
//
// Environment:
//
//	CANOPY_CONFIG      path to a canopy.toml bundled with the function
//	CANOPY_REDIS_ADDR  Redis shared with the API servers (optional)
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/jacentio/canopy/dict"
	"github.com/jacentio/canopy/internal/cli"
	"github.com/jacentio/canopy/store"
	"github.com/jacentio/canopy/stream"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	handler, closeFn, err := setup(context.Background(), logger)
	if err != nil {
		logger.Error("cascade setup failed", "error", err)
		os.Exit(1)
	}
	defer closeFn()

	lambda.Start(handler.Handle)
}

func setup(ctx context.Context, logger *slog.Logger) (*stream.Handler, func(), error) {
	cfg, err := cli.LoadConfig(os.Getenv("CANOPY_CONFIG"))
	if err != nil {
		return nil, nil, err
	}
	if addr := os.Getenv("CANOPY_REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}

	var opts []func(*config.LoadOptions) error
	if cfg.Store.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Store.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, nil, err
	}
	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Store.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Store.Endpoint)
		}
	})

	st := store.NewWithRegistry(client, store.Config{
		RelationshipTable: cfg.Store.RelationshipTable,
		UniqueTable:       cfg.Store.UniqueTable,
		NumShards:         cfg.Store.NumShards,
	}, store.ConsoleRegistry(cfg.Store.Tables))
	st.SetLogger(logger)

	h := stream.NewHandler(st, logger)
	if cfg.Redis.Addr == "" {
		logger.Warn("no redis configured, dictionary caches will expire on their own")
		return h, func() {}, nil
	}

	cache, err := dict.NewRedisCache(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	svc := dict.NewService(nil, cache, dict.Config{TTL: cfg.Dict.TTL, Locale: cfg.Dict.Locale})
	svc.SetLogger(logger)
	h.OnChange(invalidateDicts(svc))

	return h, func() { _ = cache.Close() }, nil
}

// invalidateDicts drops the cached type of every changed dictionary entry,
// in every locale the API servers may be serving.
func invalidateDicts(svc *dict.Service) stream.ChangeFunc {
	return func(ctx context.Context, c stream.Change) error {
		if c.Kind != store.KindDict {
			return nil
		}
		dictType := c.Attr("dictType")
		if dictType == "" {
			return nil
		}
		return svc.InvalidateAllLocales(ctx, dictType)
	}
}
