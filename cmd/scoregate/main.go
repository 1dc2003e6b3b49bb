package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"scoregate/internal"
	"scoregate/internal/config"
	"scoregate/internal/container"
)

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger := internal.NewLogger(internal.ParseLogLevel(cfg.Log.Level), cfg.Log.Format, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := container.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build application: %v", err)
		os.Exit(1)
	}

	if err := run(ctx, c); err != nil {
		logger.Error("scoregate stopped with error: %v", err)
		os.Exit(1)
	}
	logger.Info("scoregate stopped")
}

func run(ctx context.Context, c *container.Container) error {
	log := c.Log
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("listening on port %s", c.Config.Server.Port)
		return c.Server.Start()
	})
	g.Go(func() error {
		return c.Pipeline.Run(ctx)
	})
	g.Go(func() error {
		cleanupLoop(ctx, c, c.Config.Housekeeping.CleanupInterval)
		return nil
	})
	if c.Config.Profiling.Enabled {
		g.Go(func() error {
			addr := net.JoinHostPort("localhost", c.Config.Profiling.Port)
			log.Info("pprof listening on %s", addr)
			srv := &http.Server{Addr: addr, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-ctx.Done()
				_ = srv.Close()
			}()
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	// First stop accepting requests, then let the pipeline drain.
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return c.Server.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	if closeErr := c.Shutdown(context.Background()); err == nil {
		err = closeErr
	}
	return err
}

func cleanupLoop(ctx context.Context, c *container.Container, every time.Duration) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Cleanup(ctx)
		}
	}
}
