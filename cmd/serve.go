package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kiesman99/scrollstitch/internal/cache"
	"github.com/kiesman99/scrollstitch/internal/server"
	"github.com/kiesman99/scrollstitch/internal/viewport/browser"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for the capture API",
	Long: `Start an HTTP server that provides a REST API for full-page captures.

Chrome is launched on the first capture request and shared by all requests;
each request gets its own tab. With --redis-addr, encoded composites are
cached by request.

Examples:
  # Start server on default port 8080
  scrollstitch serve

  # Start server on custom port
  scrollstitch serve --port 3000

  # Start server with custom bind address and a Redis cache
  scrollstitch serve --bind 0.0.0.0 --port 8080 --redis-addr localhost:6379`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	// Server configuration
	serveCmd.Flags().StringP("bind", "b", "localhost", "bind address")
	serveCmd.Flags().IntP("port", "p", 8080, "port to listen on")
	serveCmd.Flags().Duration("timeout", 2*time.Minute, "request timeout")

	// Cache configuration
	serveCmd.Flags().String("redis-addr", "", "Redis address for the composite cache (default: no cache)")
	serveCmd.Flags().Duration("cache-ttl", time.Hour, "composite cache TTL")

	// Bind flags to viper
	cobra.CheckErr(viper.BindPFlag("server.bind", serveCmd.Flags().Lookup("bind")))
	cobra.CheckErr(viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port")))
	cobra.CheckErr(viper.BindPFlag("server.timeout", serveCmd.Flags().Lookup("timeout")))
	cobra.CheckErr(viper.BindPFlag("cache.redis-addr", serveCmd.Flags().Lookup("redis-addr")))
	cobra.CheckErr(viper.BindPFlag("cache.ttl", serveCmd.Flags().Lookup("cache-ttl")))
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := loggerFromContext(ctx)

	bind := viper.GetString("server.bind")
	port := viper.GetInt("server.port")
	timeout := viper.GetDuration("server.timeout")

	addr := fmt.Sprintf("%s:%d", bind, port)

	var c cache.Cache = cache.NewNullCache()
	if redisAddr := viper.GetString("cache.redis-addr"); redisAddr != "" {
		rc, err := cache.NewRedisCache(ctx, cache.RedisConfig{Addr: redisAddr})
		if err != nil {
			return err
		}
		logger.Info("composite cache enabled", "redis", redisAddr, "ttl", viper.GetDuration("cache.ttl"))
		c = rc
	}
	defer c.Close()

	m := browser.NewManager(browserConfig(logger))
	defer m.Close()

	apiServer := server.NewServer(server.Config{
		Version:   version,
		Browser:   server.ManagedBrowser(m),
		Cache:     c,
		CacheTTL:  viper.GetDuration("cache.ttl"),
		Settle:    viper.GetDuration("capture.settle"),
		Attempts:  viper.GetInt("capture.attempts"),
		MaxPixels: viper.GetInt("capture.max-pixels"),
		Logger:    logger,
	})

	httpServer := &http.Server{
		Addr:        addr,
		Handler:     apiServer.Routes(timeout),
		ReadTimeout: timeout,
		// Leave room for the handler's own timeout response.
		WriteTimeout: timeout + 5*time.Second,
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()

		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", "err", err)
		}
	}()

	logger.Info("starting scrollstitch server", "addr", addr, "version", version)
	logger.Info("endpoints",
		"health", fmt.Sprintf("http://%s/api/v1/health", addr),
		"capture", fmt.Sprintf("http://%s/api/v1/capture", addr),
		"demo", fmt.Sprintf("http://%s/api/v1/demo", addr))

	if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}
