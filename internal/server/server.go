// Package server wires the wager engine behind an HTTP API.
package server

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/matchpit/bounty/internal/arbitration"
	"github.com/matchpit/bounty/internal/auth"
	"github.com/matchpit/bounty/internal/bounty"
	"github.com/matchpit/bounty/internal/config"
	"github.com/matchpit/bounty/internal/escrow"
	"github.com/matchpit/bounty/internal/events"
	"github.com/matchpit/bounty/internal/health"
	"github.com/matchpit/bounty/internal/logging"
	"github.com/matchpit/bounty/internal/metrics"
	"github.com/matchpit/bounty/internal/ratelimit"
	"github.com/matchpit/bounty/internal/realtime"
	"github.com/matchpit/bounty/internal/reconciliation"
	"github.com/matchpit/bounty/internal/security"
	"github.com/matchpit/bounty/internal/validation"
	"github.com/matchpit/bounty/internal/wallet"
)

// Server wraps the HTTP server and its dependencies.
type Server struct {
	cfg         *config.Config
	db          *sql.DB // nil when running in-memory
	walletSvc   *wallet.Service
	authMgr     *auth.Manager
	wagers      *bounty.Service
	sweeper     *bounty.Sweeper
	roster      *arbitration.Roster
	dispatcher  *events.Dispatcher
	eventStore  events.Store
	hub         *realtime.Hub
	reconTimer  *reconciliation.Timer
	reconRunner *reconciliation.Runner
	rateLimiter *ratelimit.Limiter
	checks      *health.Registry

	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger
	cancelRunCtx context.CancelFunc

	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server.
type Option func(*Server)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates a server instance. With DATABASE_URL set it runs against
// PostgreSQL; otherwise everything lives in memory for demo mode.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
		checks: health.NewRegistry(),
	}

	for _, opt := range opts {
		opt(s)
	}

	var (
		walletStore wallet.Store
		wagerStore  bounty.Store
		authStore   auth.Store
	)

	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		walletStore = wallet.NewPostgresStore(db)
		wagerStore = bounty.NewPostgresStore(db)
		authStore = auth.NewPostgresStore(db)
		s.eventStore = events.NewPostgresStore(db)
		s.checks.Register("database", health.DatabaseChecker(db))
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))
	} else {
		walletStore = wallet.NewMemoryStore()
		wagerStore = bounty.NewMemoryStore()
		authStore = auth.NewMemoryStore()
		s.eventStore = events.NewMemoryStore()
		s.logger.Info("using in-memory storage (data will not persist)")
	}

	s.walletSvc = wallet.New(walletStore)
	s.authMgr = auth.NewManager(authStore)
	s.roster = arbitration.NewRoster(cfg.Moderators)
	if len(cfg.Moderators) == 0 {
		s.logger.Warn("no moderators configured, disputes cannot be resolved")
	}

	s.dispatcher = events.NewDispatcher(s.eventStore, s.logger)
	s.hub = realtime.NewHub(s.logger)

	ledger := escrow.NewLedger(s.walletSvc, s.logger)
	s.wagers = bounty.NewService(wagerStore, ledger, bounty.Config{
		MinStake:         cfg.MinStake,
		MaxStake:         cfg.MaxStake,
		FeeBps:           cfg.PlatformFeeBps,
		AcceptanceWindow: cfg.AcceptanceWindow,
		DisputeWindow:    cfg.DisputeWindow,
	}, s.logger).
		WithNotifier(fanout{events.NewNotifier(s.dispatcher, s.logger), s.hub}).
		WithAssigner(s.roster)

	s.sweeper = bounty.NewSweeper(s.wagers, wagerStore, cfg.SweepInterval, s.logger)
	s.checks.Register("sweeper", health.RunningChecker(s.sweeper.Running))

	s.reconRunner = reconciliation.NewRunner(
		walletStore,
		wagerStore,
		reconciliation.NewWagerScanner(wagerStore, cfg.DisputeWindow),
		s.logger,
	)
	s.reconTimer = reconciliation.NewTimer(s.reconRunner, 5*time.Minute, s.logger)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// fanout delivers wager events to every registered sink.
type fanout []bounty.Notifier

func (f fanout) Notify(ctx context.Context, event string, snap *bounty.Snapshot) {
	for _, n := range f {
		n.Notify(ctx, event, snap)
	}
}

// maskDSN hides the password in a connection string for logging.
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	s.router.Use(security.HeadersMiddleware())
	s.router.Use(security.CORSMiddleware([]string{"*"}))
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))
	s.router.Use(metrics.Middleware())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())

	// Auth runs before the limiter so authenticated players get
	// per-player buckets instead of sharing an IP bucket.
	s.router.Use(auth.Middleware(s.authMgr))

	burst := s.cfg.RateLimitRPM / 6
	if burst < 1 {
		burst = 1
	}
	s.rateLimiter = ratelimit.New(ratelimit.Config{
		RequestsPerMinute: s.cfg.RateLimitRPM,
		BurstSize:         burst,
		CleanupInterval:   time.Minute,
	})
	s.router.Use(s.rateLimiter.Middleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		logger := logging.L(c.Request.Context())

		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// requireAdminSecret gates operator endpoints behind a shared secret.
func (s *Server) requireAdminSecret() gin.HandlerFunc {
	return func(c *gin.Context) {
		secret := s.cfg.ModeratorSecret
		if secret == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "Admin endpoints are disabled (no MODERATOR_SECRET set).",
			})
			return
		}
		provided := c.GetHeader("X-Admin-Secret")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "Invalid admin secret.",
			})
			return
		}
		c.Next()
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.checks.Handler())
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// Spectator stream
	s.router.GET("/ws", func(c *gin.Context) {
		s.hub.HandleWebSocket(c.Writer, c.Request)
	})

	s.router.GET("/", s.platformHandler)

	v1 := s.router.Group("/v1")

	wagerHandler := bounty.NewHandler(s.wagers)
	walletHandler := wallet.NewHandler(s.walletSvc, s.logger)
	authHandler := auth.NewHandler(s.authMgr)
	webhookHandler := events.NewHandler(s.eventStore)
	arbitrationHandler := arbitration.NewHandler(s.wagers, s.roster)
	reconHandler := reconciliation.NewHandler(s.reconRunner)

	// PUBLIC ROUTES: wager reads and player registration.
	wagerHandler.RegisterRoutes(v1)
	authHandler.RegisterRoutes(v1)

	// PROTECTED ROUTES: anything that moves money or mutates state.
	protected := v1.Group("", auth.RequireAuth())
	wagerHandler.RegisterProtectedRoutes(protected)
	authHandler.RegisterProtectedRoutes(protected)
	webhookHandler.RegisterRoutes(protected)
	arbitrationHandler.RegisterRoutes(protected)

	// Balances and ledger history are visible only to their owner.
	selfOnly := v1.Group("", auth.RequireSelf("userId"))
	walletHandler.RegisterRoutes(selfOnly)

	// ADMIN ROUTES: deposits and reconciliation, gated by shared secret.
	admin := v1.Group("", s.requireAdminSecret())
	walletHandler.RegisterAdminRoutes(admin)
	reconHandler.RegisterAdminRoutes(admin)
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// platformHandler returns platform info and the wager parameters
// players need before creating anything.
func (s *Server) platformHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"platform": gin.H{
			"name":    "Matchpit",
			"version": "0.1.0",
		},
		"wagers": gin.H{
			"minStake":         s.cfg.MinStake,
			"maxStake":         s.cfg.MaxStake,
			"platformFeeBps":   s.cfg.PlatformFeeBps,
			"acceptanceWindow": s.cfg.AcceptanceWindow.String(),
			"disputeWindow":    s.cfg.DisputeWindow.String(),
		},
		"instructions": gin.H{
			"register": "POST /v1/auth/register to get an API key",
			"create":   "POST /v1/wagers with 'Authorization: Bearer sk_...' header",
			"stream":   "Connect to /ws for live wager events",
		},
	})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown.
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	go s.hub.Run(runCtx)
	go s.sweeper.Start(runCtx)
	go s.reconTimer.Start(runCtx)

	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark ready after a brief startup delay
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	// Give load balancers time to stop sending traffic
	time.Sleep(2 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	s.sweeper.Stop()
	s.logger.Info("sweeper stopped")

	s.reconTimer.Stop()
	s.logger.Info("reconciliation timer stopped")

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}
