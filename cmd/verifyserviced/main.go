package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/agentpayments/gate/verifyservice"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Logger()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	dsn := os.Getenv("VERIFYSERVICE_DATABASE_URL")
	if dsn == "" {
		log.Fatal().Msg("VERIFYSERVICE_DATABASE_URL is required")
	}
	pool, err := verifyservice.NewPool(ctx, dsn, log)
	if err != nil {
		log.Fatal().Err(err).Msg("connecting to database")
	}
	defer pool.Close()
	store := verifyservice.NewStore(pool, log)

	natsURL := getEnv("VERIFYSERVICE_NATS_URL", nats.DefaultURL)
	nc, err := nats.Connect(natsURL)
	if err != nil {
		log.Fatal().Err(err).Msg("connecting to NATS")
	}
	defer nc.Close()

	jwtSecret := os.Getenv("VERIFYSERVICE_JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal().Msg("VERIFYSERVICE_JWT_SECRET is required")
	}
	issuer := verifyservice.NewKeyIssuer([]byte(jwtSecret))

	adminToken := os.Getenv("VERIFYSERVICE_ADMIN_TOKEN")
	if adminToken == "" {
		log.Warn().Msg("VERIFYSERVICE_ADMIN_TOKEN is unset; POST /merchants is disabled")
	}

	metrics := verifyservice.NewMetrics(prometheus.DefaultRegisterer)
	api := verifyservice.NewAPI(store, issuer, adminToken, log, metrics)

	rpcURL := getEnv("VERIFYSERVICE_SOLANA_RPC_URL", defaultSolanaRPCURL)
	scanner := verifyservice.NewScanner(rpcURL, nc, store, log)
	go scanner.Run(ctx)
	go func() {
		if err := verifyservice.RunStoreApplier(ctx, nc, store, log); err != nil {
			log.Error().Err(err).Msg("store applier exited")
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/", api)
	mux.Handle("/metrics", promhttp.Handler())

	addr := ":" + getEnv("VERIFYSERVICE_PORT", "8090")
	log.Info().Str("addr", addr).Msg("verify service starting")

	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		_ = server.Close()
	}()
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server exited")
	}
}

const defaultSolanaRPCURL = "https://api.devnet.solana.com"

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}
