package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/agentpayments/gate/config"
	"github.com/agentpayments/gate/gate"
	"github.com/agentpayments/gate/proxy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	logLevel := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	upstream, err := proxy.New(cfg.UpstreamURL)
	if err != nil {
		slog.Error("failed to create upstream proxy", "err", err)
		os.Exit(1)
	}

	var metrics *gate.Metrics
	if cfg.MetricsEnabled {
		metrics = gate.NewMetrics(prometheus.DefaultRegisterer)
		go serveMetrics(cfg.MetricsAddr)
	}

	g, err := gate.New(gate.Config{
		ChallengeSecret:     cfg.ChallengeSecret,
		VerifyURL:           cfg.VerifyURL,
		APIKey:              cfg.APIKey,
		PublicPathAllowlist: cfg.PublicPathAllowlist,
		MinPayment:          cfg.MinPayment,
		HTTPClientTimeout:   cfg.HTTPClientTimeout,
		Debug:               cfg.Debug,
		Next:                upstream,
		Metrics:             metrics,
	})
	if err != nil {
		slog.Error("failed to construct gate", "err", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	slog.Info("agentpayments gate starting",
		"addr", addr,
		"upstream", cfg.UpstreamURL,
		"verify_url", cfg.VerifyURL,
		"metrics_enabled", cfg.MetricsEnabled,
	)

	if err := http.ListenAndServe(addr, g); err != nil {
		slog.Error("server exited", "err", err)
		os.Exit(1)
	}
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	slog.Info("metrics server starting", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("metrics server exited", "err", err)
	}
}
