package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"membership-access/internal/config"
	"membership-access/internal/domain/ports/adapter"
	"membership-access/internal/domain/ports/repository"
	tele "membership-access/internal/infra/adapters/telegram"
	"membership-access/internal/infra/api"
	pg "membership-access/internal/infra/db/postgres"
	"membership-access/internal/infra/logging"
	"membership-access/internal/infra/metrics"
	red "membership-access/internal/infra/redis"
	"membership-access/internal/infra/sched"
	"membership-access/internal/infra/security"
	"membership-access/internal/usecase"
)

// Set with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "none"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, unredacted tokens)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] Enabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pg.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	// Redis is optional. Without it the profile cache and the closer lock
	// are skipped and rate limits are kept per process.
	var (
		redisClient *red.Client
		limiter     api.Limiter = api.NewLocalLimiter()
		locker      red.Locker
	)
	if cfg.Redis.URL != "" {
		redisClient, err = red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis")
		}
		defer redisClient.Close()
		limiter = red.NewRateLimiter(redisClient)
		locker = red.NewLocker(redisClient, 1, 0)
	} else {
		logger.Warn().Msg("redis.url not set; using in-process rate limits and no profile cache")
	}

	cipher, err := security.NewFieldCipher(cfg.Security.EncryptionKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("encryption")
	}
	if cfg.Security.EncryptionKey == "" {
		logger.Warn().Msg("security.encryption_key not set; redeemer handles are stored in plaintext")
	}

	tokenRepo := pg.NewAccessTokenRepo(pool, cipher)
	proposalRepo := pg.NewProposalRepo(pool)
	voteRepo := pg.NewVoteRepo(pool)
	var profileRepo repository.ProfileRepository = pg.NewProfileRepo(pool)
	if redisClient != nil {
		profileRepo = pg.NewProfileRepoCacheDecorator(profileRepo, redisClient, cfg.Redis.TTL, logger)
	}
	txm := pg.NewTxManager(pool)

	var granter adapter.ChannelAccessGranter = tele.NewNoopGranter(logger)
	if cfg.Bot.Token != "" {
		g, err := tele.NewInviteGranter(&cfg.Bot, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("telegram")
		}
		granter = g
	}

	tokenUC := usecase.NewTokenUseCase(tokenRepo, granter, cfg.Server.PublicBaseURL, logger)
	tierUC := usecase.NewTierUseCase(profileRepo, logger)
	voteUC := usecase.NewVoteUseCase(proposalRepo, voteRepo, tierUC, txm, logger)
	proposalUC := usecase.NewProposalUseCase(proposalRepo, voteRepo, txm, logger)

	if cfg.Metrics.Enabled {
		metrics.MustRegister()
		metrics.SetBuildInfo(version, commit)
	}

	minter := api.NewAuthManager(cfg.Admin.JWTSecret, cfg.Admin.JWTTTL)
	srv := api.NewServer(api.Deps{
		Tokens:      tokenUC,
		Votes:       voteUC,
		Proposals:   proposalUC,
		Tiers:       tierUC,
		Auth:        api.NewAdminAuth(cfg.Admin.APIToken, minter, logger),
		Minter:      minter,
		Limiter:     limiter,
		BotUsername: cfg.Bot.Username,
		Health: func(ctx context.Context) error {
			return pool.Ping(ctx)
		},
		Server:    cfg.Server,
		RateLimit: cfg.RateLimit,
		Metrics:   cfg.Metrics.Enabled,
		Dev:       cfg.Runtime.Dev,
	}, logger)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Str("version", version).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
			stop()
		}
	}()

	closer := sched.NewProposalCloser(cfg.Governance.CloseInterval, proposalUC, locker, logger)
	go func() { _ = closer.Run(ctx) }()

	if cfg.Metrics.Enabled {
		gauges := sched.NewTokenGaugeRefresher(cfg.Metrics.RefreshInterval, tokenUC, func() (int32, int32, int32) {
			st := pool.Stat()
			return st.TotalConns(), st.IdleConns(), st.AcquiredConns()
		}, logger)
		go func() { _ = gauges.Run(ctx) }()
	}

	<-ctx.Done()
	logger.Info().Msg("shutdown requested")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
}
