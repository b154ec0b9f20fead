package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/vecstash/internal/config"
	"github.com/abdul-hamid-achik/vecstash/internal/embed"
	"github.com/abdul-hamid-achik/vecstash/internal/items"
	"github.com/abdul-hamid-achik/vecstash/internal/mcp"
	"github.com/abdul-hamid-achik/vecstash/internal/search"
	"github.com/abdul-hamid-achik/vecstash/internal/web"
)

func runServe(cmd *cobra.Command, args []string) error {
	mcpMode, _ := cmd.Flags().GetBool("mcp")
	webMode, _ := cmd.Flags().GetBool("web")
	host, _ := cmd.Flags().GetString("host")
	port, _ := cmd.Flags().GetInt("port")

	// Default to web mode if neither is specified
	if !mcpMode && !webMode {
		webMode = true
	}

	e, err := setup(cmd)
	if err != nil {
		return err
	}
	if host == "" {
		host = e.cfg.Server.Host
	}
	if port == 0 {
		port = e.cfg.Server.Port
	}

	provider, err := newProvider(e.cfg)
	if err != nil {
		return err
	}
	cached := embed.WithCache(provider, e.cfg.Server.CacheSize, e.cfg.Server.CacheTTL)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	store, err := e.open(ctx, e.cfg.Database.MaxConns)
	if err != nil {
		return err
	}
	defer store.Close()

	service := items.NewService(store, cached, e.logger)
	searcher := search.NewSearcher(store, cached, e.logger, e.cfg.Search.Limit)

	err = e.loader.Watch(func(cfg *config.Config) {
		searcher.SetDefaultLimit(cfg.Search.Limit)
		e.logger.Info("Config reloaded", "search.limit", searcher.DefaultLimitValue())
	}, func(err error) {
		e.logger.Warn("Ignoring invalid config change", "err", err)
	})
	if err != nil {
		e.logger.Debug("Config reload disabled", "reason", err)
	}

	if e.cfg.Server.CacheTTL > 0 {
		go func() {
			ticker := time.NewTicker(e.cfg.Server.CacheTTL)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if n := cached.Cleanup(); n > 0 {
						e.logger.Debug("Expired cached embeddings", "count", n)
					}
				}
			}
		}()
	}

	start := time.Now()
	errCh := make(chan error, 2)
	running := 0

	if webMode {
		running++
		webServer := web.NewServer(web.ServerConfig{
			Host:     host,
			Port:     port,
			Service:  service,
			Searcher: searcher,
			Logger:   e.logger,
		})
		go func() { errCh <- webServer.ListenAndServe(ctx) }()
	}

	if mcpMode {
		running++
		mcpServer := mcp.NewServer(mcp.ServerConfig{
			Service:  service,
			Searcher: searcher,
			Logger:   e.logger,
		})
		go func() { errCh <- mcpServer.Run(ctx) }()
	}

	// The first server to stop takes the other down with it.
	var firstErr error
	for range running {
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) && firstErr == nil {
			firstErr = err
		}
		cancel()
	}

	stats := cached.Stats()
	e.logger.Info("Shutting down",
		"uptime", time.Since(start).Round(time.Second),
		"cache_hits", stats.Hits,
		"cache_misses", stats.Misses)
	return firstErr
}
