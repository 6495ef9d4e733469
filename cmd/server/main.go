package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/lendchat/lendchat/internal/bot"
	"github.com/lendchat/lendchat/internal/config"
	"github.com/lendchat/lendchat/internal/eth"
	"github.com/lendchat/lendchat/internal/keys"
	"github.com/lendchat/lendchat/internal/logger"
	"github.com/lendchat/lendchat/internal/market"
	"github.com/lendchat/lendchat/internal/metrics"
	"github.com/lendchat/lendchat/internal/session"
	"github.com/lendchat/lendchat/internal/storage"
	"github.com/lendchat/lendchat/internal/webhook"
)

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("logger init failed: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logger.Error(ctx, "server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Wallet store: postgres when configured, in-memory otherwise.
	var wallets storage.WalletStore
	if cfg.PostgresDSN != "" {
		store, err := storage.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.Migrate(ctx); err != nil {
			return err
		}
		wallets = storage.NewWalletRepository(store)
		logger.Info(ctx, "using postgres wallet store")
	} else {
		wallets = storage.NewMemoryWalletStore()
		logger.Warn(ctx, "POSTGRES_DSN not set, wallet records will not survive restarts")
	}

	provider, err := keys.NewMasterKeyProvider(cfg)
	if err != nil {
		return err
	}
	masterKey, err := provider.MasterKey(ctx)
	if err != nil {
		return err
	}
	cipher, err := keys.NewCipher(masterKey)
	keys.Zeroize(masterKey)
	if err != nil {
		return err
	}
	logger.Info(ctx, "master key loaded", "provider", provider.Provider())

	chain, err := eth.NewClient(ctx, cfg.RPCURL, common.HexToAddress(cfg.CometAddress))
	if err != nil {
		return err
	}
	defer chain.Close()

	registry := market.NewRegistry(
		common.HexToAddress(cfg.USDCAddress),
		common.HexToAddress(cfg.WETHAddress),
	)
	orch := market.NewOrchestrator(chain, registry, common.HexToAddress(cfg.CometAddress), cfg.CallTimeout)

	sessions := session.NewStore()
	sessions.StartSweeper(ctx)
	metrics.RegisterSessionGauge(func() float64 {
		return float64(sessions.Len())
	})

	botService := bot.NewService(wallets, cipher, orch, chain, sessions, cfg.ExplorerTxURL, cfg.CallTimeout)
	messenger := webhook.NewGraphMessenger(cfg.GraphAPIURL, cfg.GraphAPIToken, cfg.PhoneNumberID)
	server := webhook.NewServer(cfg, botService, messenger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info(ctx, "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Stop(shutdownCtx)
}
