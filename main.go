package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/cepro/linewatch/config"
	"github.com/cepro/linewatch/dashboard"
	"github.com/cepro/linewatch/docstore"
	"github.com/cepro/linewatch/history"
	"github.com/cepro/linewatch/ingest"
	"github.com/cepro/linewatch/mqttingest"
	"github.com/cepro/linewatch/supabase"
	"github.com/cepro/linewatch/telemetry"
	"github.com/cepro/linewatch/viewmodel"
	"github.com/cepro/linewatch/wsfeed"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
)

func main() {

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)

	configPath := flag.String("config", "linewatch.toml", "path to the config file")
	flag.Parse()

	slog.Info("Starting linewatch server...")

	// Secrets live in the environment; a .env file is honoured when present.
	err := godotenv.Load()
	if err != nil && !os.IsNotExist(err) {
		slog.Warn("Could not load .env file", "error", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var store docstore.Store
	if cfg.Server.StateDB != "" {
		sqlStore, err := docstore.NewSQLite(cfg.Server.StateDB)
		if err != nil {
			slog.Error("Failed to open state store", "error", err)
			return
		}
		store = sqlStore
	} else {
		slog.Warn("No state_db configured, dashboard state will not survive restarts")
		store = docstore.NewMemory()
	}

	service := dashboard.NewService(store)

	// History upload is optional: without a supabase URL the samples and relay
	// events simply aren't collected.
	var samples chan telemetry.Sample
	var relayEvents chan telemetry.RelayEvent
	if cfg.History.Supabase.Url != "" {
		supaClient, err := supabase.New(cfg.History.Supabase.Url, os.Getenv("SUPABASE_KEY"), "", cfg.History.Supabase.Schema)
		if err != nil {
			slog.Error("Failed to create supabase client", "error", err)
			return
		}
		hist, err := history.New(supaClient, cfg.History.BufferDB, time.Duration(cfg.History.UploadIntervalSecs)*time.Second)
		if err != nil {
			slog.Error("Failed to create history", "error", err)
			return
		}
		go hist.Run(ctx)
		samples = hist.Samples
		relayEvents = hist.RelayEvents
	}

	updates := make(chan viewmodel.Snapshot, 1)
	vm := viewmodel.New(viewmodel.Config{
		Store:       store,
		Service:     service,
		Updates:     updates,
		Samples:     samples,
		RelayEvents: relayEvents,
	})
	go vm.Run(ctx)

	feed := wsfeed.New(vm)
	go feed.Run(ctx, updates)

	if cfg.MQTT.Broker != "" {
		bridge := mqttingest.New(cfg.MQTT.Broker, cfg.MQTT.Topic, cfg.MQTT.ClientID, store)
		go bridge.Run(ctx)
	}

	router := mux.NewRouter()
	ingest.NewHandler(store).Register(router)
	feed.Register(router)

	listen := fmt.Sprintf("%s:%d", cfg.Server.ListenAddress, cfg.Server.ListenPort)
	server := &http.Server{
		Addr:    listen,
		Handler: handlers.LoggingHandler(os.Stdout, router),
	}

	go func() {
		slog.Info("Listening", "addr", listen)
		err := server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server failed", "error", err)
			cancel()
		}
	}()

	// wait for a ctrl-c interrupt before exiting
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt)
	select {
	case <-signalChan:
	case <-ctx.Done():
	}

	// cancel any open go-routines and give them a moment to gracefully shutdown
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)

	slog.Info("Exiting")
}
