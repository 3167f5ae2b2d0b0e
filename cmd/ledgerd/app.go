package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sendo/ledger/internal/db"
	"github.com/sendo/ledger/internal/gateway"
	"github.com/sendo/ledger/internal/handlers"
	"github.com/sendo/ledger/internal/logger"
	"github.com/sendo/ledger/internal/repository/postgres"
	"github.com/sendo/ledger/internal/service/card"
	"github.com/sendo/ledger/internal/service/debt"
	"github.com/sendo/ledger/internal/service/notify"
	"github.com/sendo/ledger/internal/service/reconciler"
	"github.com/sendo/ledger/internal/service/transaction"
	"github.com/sendo/ledger/internal/service/wallet"
)

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	poller *reconciler.Poller
	logger logger.Logger
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	if c.WebhookSecret == "" {
		return nil, fmt.Errorf("webhook secret is required")
	}

	// Initialize logger
	l, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}

	// Initialize repositories
	storage := postgres.NewStorage(pool)

	// Initialize gateway client and services
	gatewayClient := gateway.NewClient(c.GatewayAddr, c.GatewayAPIKey, l)
	notifier := &notify.LogNotifier{L: l}

	walletService := wallet.NewService(storage)
	debtService := debt.NewService(storage, gatewayClient, notifier, l)
	cardService := card.NewService(storage, gatewayClient, notifier, debtService, l)
	transactionService := transaction.NewService(storage, gatewayClient, l)
	reconcilerService := reconciler.NewService(storage, notifier, debtService, l)

	mux := handlers.NewRouter(handlers.RouterConfig{
		WalletService:      walletService,
		CardService:        cardService,
		TransactionService: transactionService,
		ReconcilerService:  reconcilerService,
		WebhookSecret:      c.WebhookSecret,
		Logger:             l,
	})

	return &ServerApp{
		ListenAddr: c.ListenAddr,
		Handler:    mux,
		poller:     reconciler.NewPoller(gatewayClient, storage, reconcilerService, l),
		logger:     l,
	}, nil
}

// Run starts the background poller and the http server, then closes
// both gracefully on context cancellation.
func (s *ServerApp) Run(ctx context.Context) error {
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	pollerStopped := s.poller.Run(srvCtx)

	httpServer := &http.Server{
		Addr:    s.ListenAddr,
		Handler: s.Handler,
	}

	idleConnsClosed := make(chan struct{})

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); err == context.DeadlineExceeded {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	s.logger.Info("Starting server", "addr", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed
	<-pollerStopped

	return err
}
