package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jacentio/canopy/api"
	"github.com/jacentio/canopy/dict"
	"github.com/jacentio/canopy/store"
)

func (c *CLI) serveCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve console trees and dictionaries over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.config()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			return c.serve(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "listen address (overrides [server] addr)")
	return cmd
}

// serve runs the API until ctx is cancelled, then drains in-flight requests.
func (c *CLI) serve(ctx context.Context, cfg Config, out io.Writer) error {
	logger := c.slog()

	client, err := newDynamoClient(ctx, cfg.Store)
	if err != nil {
		return err
	}
	registry := store.ConsoleRegistry(cfg.Store.Tables)
	st := store.NewWithRegistry(client, cfg.Store.storeConfig(), registry)
	st.SetLogger(logger)

	cache, err := c.newDictCache(ctx, cfg)
	if err != nil {
		return err
	}
	defer cache.Close()

	source := dict.StoreSource{Store: st, Table: cfg.Store.Tables.Dicts, Index: cfg.Dict.TypeIndex}
	dicts := dict.NewService(source, cache, cfg.Dict.serviceConfig())
	dicts.SetLogger(logger)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.NewServer(st, registry, dicts, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		printSuccess(out, "Listening on %s", StyleHighlight.Render(cfg.Server.Addr))
		printDetail(out, "%d kinds, dictionaries from %s", len(registry.Kinds()), cfg.Store.Tables.Dicts)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen %s: %w", cfg.Server.Addr, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		c.Logger.Info("shutting down", "timeout", cfg.Server.ShutdownTimeout)
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	printInfo(out, "Server stopped")
	return nil
}

// newDynamoClient loads the default AWS credential chain.
func newDynamoClient(ctx context.Context, sc StoreConfig) (*dynamodb.Client, error) {
	var opts []func(*config.LoadOptions) error
	if sc.Region != "" {
		opts = append(opts, config.WithRegion(sc.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if sc.Endpoint != "" {
			o.BaseEndpoint = aws.String(sc.Endpoint)
		}
	}), nil
}

// newDictCache shares the cache through Redis when [redis] addr is set and
// falls back to process memory otherwise.
func (c *CLI) newDictCache(ctx context.Context, cfg Config) (dict.Cache, error) {
	if cfg.Redis.Addr == "" {
		c.Logger.Debug("no redis configured, caching dictionaries in memory")
		return dict.NewMemoryCache(), nil
	}
	cache, err := dict.NewRedisCache(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	c.Logger.Debug("caching dictionaries in redis", "addr", cfg.Redis.Addr, "db", cfg.Redis.DB)
	return cache, nil
}
