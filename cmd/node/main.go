package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/uhyunpark/starledger/params"
	"github.com/uhyunpark/starledger/pkg/api"
	"github.com/uhyunpark/starledger/pkg/chain"
	"github.com/uhyunpark/starledger/pkg/ownership"
	"github.com/uhyunpark/starledger/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("")

	logger, err := util.NewLoggerWithFile(cfg.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.LogFile)

	// ---- Chain core ----
	// The chain lives for the process lifetime only; a durable Store
	// implementation can be swapped in here without touching the service.
	store := chain.NewMemoryStore()
	clock := util.RealClock{}
	verifier := ownership.NewVerifier(clock, cfg.Chain.ChallengeWindow)

	svc, err := chain.New(store, verifier, clock, sugar)
	if err != nil {
		sugar.Fatalw("chain_init_failed", "err", err)
	}

	sugar.Infow("chain_ready",
		"height", svc.Height(context.Background()),
		"challenge_window_secs", int(cfg.Chain.ChallengeWindow.Seconds()))

	// ---- API Server ----
	apiServer := api.NewServer(svc, sugar, cfg.API.CORSOrigins)

	// Push every committed block to websocket subscribers.
	svc.OnCommit = apiServer.BroadcastBlock

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := apiServer.Start(cfg.API.Addr); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	<-ctx.Done()
	sugar.Info("shutting down")
}
