package router

import (
	"time"

	"farmacaixa/internal/config"
	"farmacaixa/internal/handler"
	"farmacaixa/internal/infra"
	"farmacaixa/internal/middleware"
	"farmacaixa/internal/repository"
	"farmacaixa/internal/service"
	"farmacaixa/internal/worker"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// New wires all dependencies and returns a configured Gin engine.
// Dependency graph: Handler ← Service ← Repository ← DB/Redis
// rdb may be nil: audit gaps are then only logged and rate limiting is off.
func New(cfg *config.Config, db *gorm.DB, rdb *redis.Client, auditCB *infra.CircuitBreaker) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global middleware chain (order matters)
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.CORS(cfg.AllowedOrigins()))
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.RateLimiter(rdb, cfg.RateLimitPerMinute, time.Minute))

	// ── Repositories ─────────────────────────────────────────────────────────
	sessionRepo := repository.NewSessionRepository(db)
	movementRepo := repository.NewMovementRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	actorRepo := repository.NewActorRepository(db)

	// ── Services ─────────────────────────────────────────────────────────────
	// Worker dispatcher: injected into services that enqueue async jobs
	var (
		auditQueue service.AuditQueue
		notifier   service.ReportNotifier
	)
	if rdb != nil {
		dispatcher := worker.NewDispatcher(rdb)
		auditQueue = dispatcher
		if cfg.MailEnabled() {
			notifier = dispatcher
		}
	}

	recorder := service.NewAuditRecorder(auditRepo, auditQueue)
	actors := service.NewActorDirectory(actorRepo, rdb)
	sessionSvc := service.NewSessionManager(sessionRepo, movementRepo, auditRepo, recorder, actors, notifier,
		service.SessionManagerConfig{
			StoreTimeout:  cfg.StoreTimeout,
			Thresholds:    service.NewVarianceThresholds(cfg.VarianceWarningPct, cfg.VarianceCriticalPct),
			ReportEmailTo: cfg.ReportRecipients(),
		})
	ledgerSvc := service.NewLedgerService(sessionRepo, movementRepo, recorder, cfg.StoreTimeout)

	// ── Handlers ─────────────────────────────────────────────────────────────
	caixaH := handler.NewCaixaHandler(sessionSvc, ledgerSvc)

	// ── Routes ───────────────────────────────────────────────────────────────

	// Public
	r.GET("/health", handler.Health(db, rdb, auditCB))

	// Protected routes
	jwtMW := middleware.JWTAuth(cfg.JWTSecret, cfg.JWTIssuer)
	operators := middleware.RequireRole(middleware.RoleCashier, middleware.RoleSupervisor, middleware.RoleAdmin)
	supervisors := middleware.RequireRole(middleware.RoleSupervisor, middleware.RoleAdmin)
	anyRole := middleware.RequireRole(middleware.RoleCashier, middleware.RoleSupervisor, middleware.RoleAdmin, middleware.RoleSales)

	caixa := r.Group("/v1/caixa", jwtMW)
	{
		caixa.POST("/sessions", operators, caixaH.Open)
		caixa.POST("/sessions/:id/close", operators, caixaH.Close)
		caixa.POST("/sessions/:id/movements", operators, caixaH.RecordMovement)
		// Only the sales subsystem settles sales into the till
		caixa.POST("/sessions/:id/sale-settlements", middleware.RequireRole(middleware.RoleSales), caixaH.RecordSaleSettlement)

		caixa.GET("/status", anyRole, caixaH.Status)
		caixa.GET("/sessions/:id/movements", anyRole, caixaH.ListMovements)

		// Expected amounts stay hidden from cashiers until they have counted
		caixa.GET("/history", supervisors, caixaH.History)
		caixa.GET("/sessions/:id", supervisors, caixaH.Detail)
		caixa.GET("/sessions/:id/report.pdf", supervisors, caixaH.ReportPDF)
		caixa.GET("/sessions/:id/audit", supervisors, caixaH.AuditTrail)
	}

	// Swagger UI: only enabled outside production
	if !cfg.IsProduction() {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	return r
}
