package apiapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ivankudzin/amour/internal/config"
	"github.com/ivankudzin/amour/internal/infra/metrics"
	s3infra "github.com/ivankudzin/amour/internal/infra/s3"
	"github.com/ivankudzin/amour/internal/infra/telegram"
	"github.com/ivankudzin/amour/internal/infra/tracing"
	"github.com/ivankudzin/amour/internal/jobs/cleanup"
	"github.com/ivankudzin/amour/internal/realtime"
	pgrepo "github.com/ivankudzin/amour/internal/repo/postgres"
	redrepo "github.com/ivankudzin/amour/internal/repo/redis"
	authsvc "github.com/ivankudzin/amour/internal/services/auth"
	candidatesvc "github.com/ivankudzin/amour/internal/services/candidates"
	"github.com/ivankudzin/amour/internal/services/events"
	interactionsvc "github.com/ivankudzin/amour/internal/services/interactions"
	matchsvc "github.com/ivankudzin/amour/internal/services/matches"
	"github.com/ivankudzin/amour/internal/services/messaging"
	"github.com/ivankudzin/amour/internal/services/notifications"
	ratesvc "github.com/ivankudzin/amour/internal/services/rate"
)

const rateWindow = 10 * time.Second

type App struct {
	cfg      config.Config
	logger   *zap.Logger
	server   *http.Server
	postgres *pgxpool.Pool
	redis    *goredis.Client
	nats     *nats.Conn
	router   http.Handler

	background []func(context.Context)
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	tracing    tracing.Shutdown
}

func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing.ServiceName, cfg.Tracing.OTLPEndpoint)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	pool, err := pgrepo.NewPool(ctx, cfg.Postgres.DSN)
	if err != nil {
		return nil, err
	}
	if cfg.Postgres.MigrateOnStart {
		if err := pgrepo.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
	}
	db := pgrepo.NewDB(pool, cfg.Postgres.QueryTimeout)

	redisClient := redrepo.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err := redrepo.Ping(ctx, redisClient); err != nil {
		log.Warn("redis ping failed, sessions and rate limits are unavailable until it recovers", zap.Error(err))
	}

	app := &App{
		cfg:      cfg,
		logger:   log,
		postgres: pool,
		redis:    redisClient,
		tracing:  shutdownTracing,
	}

	var signer *s3infra.URLSigner
	if client, err := s3infra.NewClient(s3infra.Config{
		Endpoint:  cfg.S3.Endpoint,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
		UseSSL:    cfg.S3.UseSSL,
	}); err != nil {
		log.Warn("s3 init failed, media urls are disabled", zap.Error(err))
	} else {
		signer = s3infra.NewURLSigner(client, cfg.S3.Bucket, cfg.S3.URLTTL)
	}

	accounts := pgrepo.NewAccountRepo(db)
	profiles := pgrepo.NewProfileRepo(db)
	leases := pgrepo.NewLeaseRepo(db)
	interactions := pgrepo.NewInteractionRepo(db)
	reports := pgrepo.NewReportRepo(db)
	matchRepo := pgrepo.NewMatchRepo(db)
	messageRepo := pgrepo.NewMessageRepo(db)
	notificationRepo := pgrepo.NewNotificationRepo(db)
	recorder := metrics.Recorder{}
	bus := events.NewBus(log.Named("events"))

	authService := authsvc.NewService(authsvc.Dependencies{
		Sessions: redrepo.NewSessionRepo(redisClient),
		Accounts: accounts,
	}, authsvc.Config{
		JWTSecret:  cfg.Auth.JWTSecret,
		AccessTTL:  cfg.Auth.JWTAccessTTL,
		RefreshTTL: cfg.Auth.RefreshTTL,
		BotToken:   cfg.Telegram.BotToken,
	})

	candidateDeps := candidatesvc.Dependencies{
		Accounts: accounts,
		Profiles: profiles,
		Leases:   leases,
		Recorder: recorder,
		Logger:   log.Named("candidates"),
	}
	messageDeps := messaging.Dependencies{
		Tx:       db,
		Matches:  matchRepo,
		Messages: messageRepo,
		Bus:      bus,
		Recorder: recorder,
		Logger:   log.Named("messaging"),
	}
	if signer != nil {
		candidateDeps.Photos = signer
		messageDeps.Media = signer
	}

	candidateService := candidatesvc.NewService(candidateDeps, candidatesvc.Config{
		LeaseTTL: cfg.Candidates.LeaseTTL,
	})
	candidateService.Subscribe(bus)

	matchService := matchsvc.NewService(matchsvc.Dependencies{
		Tx:           db,
		Accounts:     accounts,
		Matches:      matchRepo,
		Interactions: interactions,
		Bus:          bus,
		Recorder:     recorder,
		Logger:       log.Named("matches"),
	})
	interactionService := interactionsvc.NewService(interactionsvc.Dependencies{
		Tx:           db,
		Accounts:     accounts,
		Interactions: interactions,
		Reports:      reports,
		Matcher:      matchService,
		Bus:          bus,
	})
	messageService := messaging.NewService(messageDeps, messaging.Config{
		MaxContentLen:   cfg.Messages.MaxContentLen,
		DefaultPageSize: cfg.Messages.DefaultPageSize,
		MaxPageSize:     cfg.Messages.MaxPageSize,
	})

	registry := realtime.NewRegistry()
	presence, err := app.newPresence(registry)
	if err != nil {
		app.closeStores()
		return nil, err
	}
	broker, err := app.newBroker(registry)
	if err != nil {
		app.closeStores()
		return nil, err
	}
	app.background = append(app.background, func(ctx context.Context) {
		if err := broker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("realtime broker stopped", zap.Error(err))
		}
	})

	notificationDeps := notifications.Dependencies{
		Summaries: notificationRepo,
		Accounts:  accounts,
		Publisher: realtime.NewPublisher(broker),
		Presence:  presence,
		Logger:    log.Named("notifications"),
	}
	if cfg.Telegram.BotToken != "" {
		bot, err := telegram.NewBot(cfg.Telegram.BotToken)
		if err != nil {
			log.Warn("telegram bot init failed, offline pushes are disabled", zap.Error(err))
		} else {
			notifier := telegram.NewNotifier(bot, cfg.Telegram.NotifyQueue, recorder, log.Named("telegram"))
			notificationDeps.Offline = notifier
			app.background = append(app.background, notifier.Run)
		}
	}
	notificationService := notifications.NewService(notificationDeps)
	notificationService.Subscribe(bus)

	limiter := ratesvc.NewLimiter(redrepo.NewRateRepo(redisClient), map[string]ratesvc.Rule{
		ratesvc.ActionMessage: {Limit: cfg.Realtime.MessagesPer10s, Window: rateWindow},
		ratesvc.ActionTyping:  {Limit: cfg.Realtime.TypingPer10s, Window: rateWindow},
	})

	gateway := realtime.NewGateway(realtime.Dependencies{
		Auth:          authService,
		Messages:      messageService,
		Notifications: notificationService,
		Limiter:       limiter,
		Registry:      registry,
		Presence:      presence,
		Broker:        broker,
		Recorder:      recorder,
		Logger:        log.Named("realtime"),
	}, realtime.Config{
		Client: realtime.ClientConfig{
			SendBuffer:      cfg.Realtime.SendBuffer,
			WriteTimeout:    cfg.Realtime.WriteTimeout,
			PongWait:        cfg.Realtime.PongWait,
			PingPeriod:      cfg.Realtime.PingPeriod,
			MaxMessageBytes: cfg.Realtime.MaxMessageBytes,
		},
		AllowedOrigins: cfg.HTTP.CORSOrigins,
	})

	job := cleanup.New(leases, cleanup.Config{
		Interval:   cfg.Cleanup.Interval,
		LeaseGrace: cfg.Cleanup.LeaseGrace,
	}, log.Named("cleanup"))
	app.background = append(app.background, job.Start)

	r := chi.NewRouter()
	ApplyMiddlewares(r, cfg, log)
	RegisterRoutes(r, Dependencies{
		AuthService:         authService,
		CandidateService:    candidateService,
		InteractionService:  interactionService,
		MatchService:        matchService,
		MessageService:      messageService,
		NotificationService: notificationService,
		Gateway:             gateway,
		Health:              []Pinger{db, redisPinger{redisClient}},
		Logger:              log,
	})

	// WriteTimeout stays zero: it would cut upgraded websocket connections.
	app.server = &http.Server{
		Addr:        cfg.HTTP.Addr,
		Handler:     r,
		ReadTimeout: cfg.HTTP.ReadTimeout,
		IdleTimeout: cfg.HTTP.IdleTimeout,
	}
	app.router = r

	return app, nil
}

func (a *App) newPresence(registry *realtime.Registry) (realtime.Presence, error) {
	switch a.cfg.Realtime.Presence {
	case "", "local":
		return realtime.NewLocalPresence(registry), nil
	case "redis":
		store := redrepo.NewPresenceRepo(a.redis, 2*a.cfg.Realtime.PongWait)
		return realtime.NewRedisPresence(store, registry), nil
	default:
		return nil, fmt.Errorf("unknown realtime presence backend %q", a.cfg.Realtime.Presence)
	}
}

func (a *App) newBroker(registry *realtime.Registry) (realtime.Broker, error) {
	switch a.cfg.Realtime.Broker {
	case "", "local":
		return realtime.NewLocalBroker(registry), nil
	case "redis":
		return realtime.NewRedisBroker(a.redis, registry, a.logger.Named("broker")), nil
	case "nats":
		conn, err := nats.Connect(a.cfg.NATS.URL,
			nats.Name(a.cfg.Tracing.ServiceName),
			nats.MaxReconnects(-1),
		)
		if err != nil {
			return nil, fmt.Errorf("connect nats: %w", err)
		}
		a.nats = conn
		return realtime.NewNATSBroker(conn, registry, a.logger.Named("broker")), nil
	default:
		return nil, fmt.Errorf("unknown realtime broker backend %q", a.cfg.Realtime.Broker)
	}
}

// Run starts the background workers and blocks serving HTTP until Shutdown.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	for _, fn := range a.background {
		a.wg.Add(1)
		go func(fn func(context.Context)) {
			defer a.wg.Done()
			fn(ctx)
		}(fn)
	}

	a.logger.Info("api server started", zap.String("addr", a.cfg.HTTP.Addr))
	err := a.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error

	if err := a.server.Shutdown(ctx); err != nil {
		shutdownErr = err
	}
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()

	if a.tracing != nil {
		if err := a.tracing(ctx); err != nil && shutdownErr == nil {
			shutdownErr = err
		}
	}
	if err := a.closeStores(); err != nil && shutdownErr == nil {
		shutdownErr = err
	}
	return shutdownErr
}

func (a *App) closeStores() error {
	var err error
	if a.nats != nil {
		a.nats.Close()
	}
	if a.postgres != nil {
		a.postgres.Close()
	}
	if a.redis != nil {
		err = a.redis.Close()
	}
	return err
}

func (a *App) Handler() http.Handler {
	return a.router
}

type redisPinger struct {
	client *goredis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return redrepo.Ping(ctx, p.client)
}
