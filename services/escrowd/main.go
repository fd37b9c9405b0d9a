package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"workledger/escrow"
	"workledger/ledger"
	"workledger/observability"
	"workledger/observability/logging"
)

// metricsEmitter forwards coordinator events to the prometheus registry.
type metricsEmitter struct{}

func (metricsEmitter) Emit(evt escrow.Event) {
	observability.Coordinator().RecordEvent(evt.Type)
}

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to TOML configuration file")
	flag.Parse()

	cfg, err := LoadConfig(configPath)
	if err != nil {
		logging.Setup("escrowd", "").Error("load configuration", "error", err.Error())
		os.Exit(1)
	}
	log := logging.Setup("escrowd", cfg.Environment)

	store, err := OpenStore(cfg.DatabasePath)
	if err != nil {
		log.Error("open store", "error", err.Error())
		os.Exit(1)
	}

	gw := observability.InstrumentGateway(ledger.NewClient(cfg.LedgerURL, cfg.LedgerAuthToken))
	coordinator := escrow.New(gw, cfg.Program())
	coordinator.SetEmitter(metricsEmitter{})

	auth := NewAuthenticator(cfg.APIKeys, cfg.AllowedTimestampSkew, nil)
	srv := NewServer(ServerConfig{
		Coordinator: coordinator,
		Store:       store,
		Auth:        auth,
		RatePerMin:  cfg.RateLimitPerMinute,
		Log:         log,
	})

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info("escrowd listening", "addr", cfg.ListenAddress)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server", "error", err.Error())
			os.Exit(1)
		}
	}()

	<-done
	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		log.Error("shutdown", "error", err.Error())
	}
}
