package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/logrusorgru/aurora"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rkarchen/okx-stream/internal/config"
	"github.com/rkarchen/okx-stream/internal/stream"
	"github.com/rkarchen/okx-stream/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/streamwatch.yaml", "path to config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	// Local development drops credentials in a .env file; absence is fine.
	_ = godotenv.Load()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	logger.Info("starting streamwatch",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"public_url", cfg.Endpoints.PublicURL,
		"private", cfg.Credentials.Configured(),
		"subscriptions", len(cfg.Subscriptions),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	client, err := stream.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create client", "error", err)
		os.Exit(1)
	}

	metricsServer := startMetricsServer(cfg, client, logger)

	if err := client.Start(ctx); err != nil {
		logger.Error("failed to start client", "error", err)
		os.Exit(1)
	}

	printEvents(ctx, client)

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := client.Stop(shutdownCtx); err != nil {
		logger.Warn("client shutdown incomplete", "error", err)
	}
	metricsServer.Shutdown(shutdownCtx)

	logger.Info("streamwatch stopped")
}

// startMetricsServer serves Prometheus metrics plus a health endpoint.
func startMetricsServer(cfg *config.Config, client *stream.Client, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Metrics.Path, promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"status":  "ok",
			"version": version.String(),
		})
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler: mux,
	}

	go func() {
		logger.Info("starting metrics server",
			"port", cfg.Metrics.Port,
			"path", cfg.Metrics.Path,
		)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()

	return srv
}

// printEvents renders the event stream until the context is cancelled.
func printEvents(ctx context.Context, client *stream.Client) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-client.Events():
			if !ok {
				return
			}
			printEvent(ev)
		}
	}
}

func printEvent(ev stream.Event) {
	ts := ev.At.Format("15:04:05.000")

	switch ev.Type {
	case stream.EventBookUpdate:
		bid, bidOK := ev.Book.BestBid()
		ask, askOK := ev.Book.BestAsk()
		if !bidOK || !askOK {
			return
		}
		fmt.Printf("%s %s %-14s bid %s x %s  ask %s x %s\n",
			ts,
			aurora.Cyan("book"),
			ev.InstID,
			aurora.Green(bid.PriceRaw), bid.SizeRaw,
			aurora.Red(ask.PriceRaw), ask.SizeRaw,
		)

	case stream.EventBookInvalid:
		fmt.Printf("%s %s %-14s checksum mismatch, resyncing\n",
			ts, aurora.Yellow("book"), ev.InstID)

	case stream.EventPush:
		fmt.Printf("%s %s %-14s %s %s\n",
			ts, aurora.Blue("push"), ev.InstID, ev.Channel, truncate(ev.Data, 120))

	case stream.EventSubscriptionRejected:
		fmt.Printf("%s %s %s/%s: %v\n",
			ts, aurora.Red("reject"), ev.Channel, ev.InstID, ev.Err)

	case stream.EventConnectionUp:
		fmt.Printf("%s %s %s connected\n", ts, aurora.Green("conn"), ev.Conn)

	case stream.EventConnectionDown:
		fmt.Printf("%s %s %s disconnected\n", ts, aurora.Yellow("conn"), ev.Conn)

	case stream.EventAuthenticated:
		fmt.Printf("%s %s private session authenticated\n", ts, aurora.Green("auth"))

	case stream.EventAuthFailed:
		fmt.Printf("%s %s login failed: %v\n", ts, aurora.Red("auth"), ev.Err)
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
