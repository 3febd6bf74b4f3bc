// Command server runs the peopleflow API: invitation lifecycle, credit
// ledger, workflow transitions, and the retention sweeper, behind one HTTP
// listener.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"peopleflow/internal/authz"
	credithandler "peopleflow/internal/credit/handler"
	creditmetrics "peopleflow/internal/credit/metrics"
	creditservice "peopleflow/internal/credit/service"
	creditpostgres "peopleflow/internal/credit/store/postgres"
	"peopleflow/internal/delivery"
	httpapi "peopleflow/internal/http"
	invitationhandler "peopleflow/internal/invitation/handler"
	invitationmetrics "peopleflow/internal/invitation/metrics"
	invitationservice "peopleflow/internal/invitation/service"
	invitationpostgres "peopleflow/internal/invitation/store/postgres"
	"peopleflow/internal/invitation/store/revocation"
	"peopleflow/internal/invitation/token"
	"peopleflow/internal/platform/config"
	"peopleflow/internal/platform/httpserver"
	"peopleflow/internal/platform/logger"
	"peopleflow/internal/platform/metrics"
	platformredis "peopleflow/internal/platform/redis"
	"peopleflow/internal/retention"
	"peopleflow/internal/sessiontoken"
	workflowhandler "peopleflow/internal/workflow/handler"
	workflowservice "peopleflow/internal/workflow/service"
	workflowpostgres "peopleflow/internal/workflow/store/postgres"
	"peopleflow/pkg/platform/audit/publisher"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.IsProduction())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage. The credit ledger runs on pgx for its row-locked balance
	// updates; the other stores share one database/sql pool.
	pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("connect postgres pool: %w", err)
	}
	defer pool.Close()

	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}

	creditStore := creditpostgres.New(pool)
	if err := creditStore.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure credit schema: %w", err)
	}
	if _, err := db.ExecContext(ctx, invitationpostgres.Schema); err != nil {
		return fmt.Errorf("ensure invitation schema: %w", err)
	}
	if _, err := db.ExecContext(ctx, workflowpostgres.Schema); err != nil {
		return fmt.Errorf("ensure workflow schema: %w", err)
	}
	invitationStore := invitationpostgres.New(db)
	workflowStore := workflowpostgres.New(db)

	redisClient, err := platformredis.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisClient.Close()
	trl := revocation.NewRedisTRL(redisClient.Client)

	auditor, err := publisher.NewKafka(ctx, cfg.KafkaBrokers, cfg.AuditTopic, publisher.WithLogger(log))
	if err != nil {
		return fmt.Errorf("connect kafka: %w", err)
	}
	defer auditor.Close()

	engine := authz.NewEngine(
		authz.WithLogger(log),
		authz.WithAuditPublisher(auditor),
		authz.WithMetrics(authz.NewMetrics()),
	)

	codec, err := token.NewCodec(
		[]byte(cfg.TokenSigningKey), cfg.TokenKeyID, cfg.IdentityKey,
		invitationservice.StatusSource{Store: invitationStore},
		token.WithRevocationList(trl),
	)
	if err != nil {
		return fmt.Errorf("build token codec: %w", err)
	}

	dispatcher := delivery.NewDispatcher(delivery.LogSender{Logger: log},
		delivery.WithLogger(log),
		delivery.WithAuditPublisher(auditor),
		delivery.WithMetrics(delivery.NewMetrics()),
	)

	invitations := invitationservice.New(invitationStore, codec, engine,
		invitationservice.WithLogger(log),
		invitationservice.WithAuditPublisher(auditor),
		invitationservice.WithMetrics(invitationmetrics.New()),
		invitationservice.WithTokenRevoker(trl),
		invitationservice.WithDispatcher(dispatcher),
		invitationservice.WithInviteTTL(cfg.InviteTTL),
	)
	// Delivery bookkeeping loops back into the invitation service.
	delivery.WithAttemptRecorder(invitations)(dispatcher)

	credits := creditservice.New(creditStore, engine,
		creditservice.WithLogger(log),
		creditservice.WithAuditPublisher(auditor),
		creditservice.WithMetrics(creditmetrics.New()),
	)

	workflows := workflowservice.New(workflowStore, credits, engine,
		workflowservice.WithLogger(log),
		workflowservice.WithAuditPublisher(auditor),
	)

	sweeper := retention.New([]retention.Purger{invitationStore},
		retention.WithInterval(cfg.RetentionInterval),
		retention.WithLogger(log),
		retention.WithAuditPublisher(auditor),
		retention.WithMetrics(retention.NewMetrics()),
	)

	sessions := sessiontoken.NewManager(cfg.SessionSigningKey, cfg.SessionTTL)

	router := httpapi.NewRouter(httpapi.Dependencies{
		Logger:      log,
		Metrics:     metrics.New(),
		Sessions:    sessions,
		Invitations: invitationhandler.New(invitations, log),
		Credits:     credithandler.New(credits, log),
		Workflows:   workflowhandler.New(workflows, log),
		HealthChecks: map[string]func(context.Context) error{
			"postgres": db.PingContext,
			"redis":    redisClient.Health,
		},
	})

	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting peopleflow", "addr", cfg.Addr, "env", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := sweeper.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("retention sweeper: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
