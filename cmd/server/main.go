package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/roshkins/sputnik-dao-contract/internal/application"
	"github.com/roshkins/sputnik-dao-contract/internal/domain"
	"github.com/roshkins/sputnik-dao-contract/internal/infrastructure/custody"
	"github.com/roshkins/sputnik-dao-contract/internal/infrastructure/governance"
	"github.com/roshkins/sputnik-dao-contract/internal/infrastructure/postgres"
	httpHandler "github.com/roshkins/sputnik-dao-contract/internal/interfaces/http"
	"github.com/roshkins/sputnik-dao-contract/internal/staking"
	"github.com/roshkins/sputnik-dao-contract/pkg/config"
	"github.com/roshkins/sputnik-dao-contract/pkg/logger"
	"github.com/roshkins/sputnik-dao-contract/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Environment)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting NFT staking service...")

	if err := postgres.RunMigrations(cfg.Database.URL, log); err != nil {
		log.Fatalw("Failed to run migrations", "error", err)
	}

	db, err := postgres.NewConnection(&cfg.Database, log)
	if err != nil {
		log.Fatalw("Failed to connect to database", "error", err)
	}
	defer db.Close()

	collector := metrics.NewCollector()
	repo := postgres.NewRepository(db, log)
	custodyClient := custody.NewClient(&cfg.Custody, log, collector)
	governanceClient := governance.NewClient(&cfg.Governance, log)

	service := application.NewService(
		repo,
		custodyClient,
		governanceClient,
		log,
		collector,
		stakingConfig(&cfg.Staking),
		cfg.Custody.RequestTimeout,
		stakingOptions(&cfg.Staking)...,
	)

	bootCtx, cancelBoot := context.WithTimeout(context.Background(), cfg.Database.ConnectionTimeout)
	err = service.Bootstrap(bootCtx)
	cancelBoot()
	if err != nil {
		log.Fatalw("Failed to bootstrap staking state", "error", err)
	}

	router := httpHandler.NewRouter(service, log, collector, httpHandler.RouterConfig{
		RequestTimeout:  cfg.Server.RequestTimeout,
		RateLimit:       cfg.Server.RateLimit,
		RateBurst:       cfg.Server.RateBurst,
		CustodyCallerID: cfg.Custody.CallerID,
	})

	servers := []*http.Server{{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Server.RequestTimeout,
		IdleTimeout:  60 * time.Second,
	}}

	if cfg.Metrics.Enabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", collector.Handler())
		servers = append(servers, &http.Server{
			Addr:    ":" + cfg.Metrics.Port,
			Handler: metricsMux,
		})
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	for _, srv := range servers {
		srv := srv
		g.Go(func() error {
			log.Infow("Starting HTTP server", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server %s: %w", srv.Addr, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		var errs []error
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("server %s forced to shutdown: %w", srv.Addr, err))
			}
		}
		if err := service.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		log.Errorw("Service stopped with error", "error", err)
		return
	}

	log.Info("Server shutdown complete")
}

func stakingConfig(cfg *config.Staking) staking.Config {
	weights := make(map[domain.TokenID]domain.Amount, len(cfg.TokenWeights))
	for token, weight := range cfg.TokenWeights {
		weights[domain.TokenID(token)] = domain.Amount(weight)
	}

	return staking.Config{
		Owner:        domain.AccountID(cfg.OwnerID),
		Self:         domain.AccountID(cfg.SelfID),
		TokenWeights: weights,
		Cooldown:     cfg.Cooldown,
	}
}

func stakingOptions(cfg *config.Staking) []staking.Option {
	var opts []staking.Option
	if cfg.StrictUndelegate {
		opts = append(opts, staking.WithUndelegatePolicy(staking.UndelegateStrict))
	}
	return opts
}
