package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/discount-engine/internal/domain/discount"
	"github.com/xenking/discount-engine/internal/handler"
	"github.com/xenking/discount-engine/internal/repository"
	"github.com/xenking/discount-engine/pkg/health"
	"github.com/xenking/discount-engine/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, _ *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("strategy", cfg.Engine.Strategy),
	)

	// Engine configuration fails fast on invalid strategy or rounding setup.
	strategyCfg, err := cfg.Engine.StrategyConfig()
	if err != nil {
		return errors.Wrap(err, "engine config")
	}
	strategy, err := discount.NewStrategy(cfg.Engine.Strategy, strategyCfg)
	if err != nil {
		return errors.Wrap(err, "create strategy")
	}

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.DatabasePingCheck(pool))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Repositories and the discount engine.
	discountRepo := repository.NewDiscountRepository(pool)
	assignmentRepo := repository.NewAssignmentRepository(pool)
	auditRepo := repository.NewAuditRepository(pool)
	txRunner := repository.NewTxRunner(pool)

	engine := discount.NewEngine(discountRepo, assignmentRepo, auditRepo, txRunner, strategy, discount.EngineOptions{
		Notifier:     &logNotifier{lg: lg.Named("notify")},
		Logger:       lg.Named("engine"),
		DisableAudit: cfg.Engine.DisableAudit,
	})

	// Mux: health endpoints + API routes on one server.
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	handler.NewHandler(engine, discountRepo, auditRepo, lg.Named("http")).Routes(mux)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", "X-Actor"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.LogRequests(),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// logNotifier emits user-facing discount events to the log. It stands in for
// a real delivery channel (mail, push, webhook) behind the same interface.
type logNotifier struct {
	lg *zap.Logger
}

var _ discount.Notifier = (*logNotifier)(nil)

func (n *logNotifier) DiscountAssigned(_ context.Context, userID uuid.UUID, d *discount.Discount, assignedBy string) error {
	n.lg.Info("discount assigned",
		zap.Stringer("user_id", userID),
		zap.String("code", d.Code),
		zap.String("assigned_by", assignedBy),
	)
	return nil
}

func (n *logNotifier) DiscountRevoked(_ context.Context, userID uuid.UUID, d *discount.Discount, revokedBy string) error {
	n.lg.Info("discount revoked",
		zap.Stringer("user_id", userID),
		zap.String("code", d.Code),
		zap.String("revoked_by", revokedBy),
	)
	return nil
}

func (n *logNotifier) DiscountsApplied(_ context.Context, userID uuid.UUID, res *discount.ApplicationResult) error {
	n.lg.Info("discounts applied",
		zap.Stringer("user_id", userID),
		zap.Int("count", len(res.Applied)),
		zap.String("discount_amount", res.DiscountAmount.String()),
		zap.String("final_amount", res.FinalAmount.String()),
	)
	return nil
}
