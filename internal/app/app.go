package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"linkvault/internal/config"
	"linkvault/internal/domain/accesslog"
	"linkvault/internal/domain/link"
	"linkvault/internal/middleware"
	"linkvault/internal/pkg/credential"
	"linkvault/internal/pkg/jwt"
	"linkvault/internal/storage"
)

const ownerTokenTTL = 24 * time.Hour

// App holds the wired service graph behind the HTTP router.
type App struct {
	Router   *gin.Engine
	Links    *link.Service
	Recorder *accesslog.Recorder
	Hub      *accesslog.Hub
	JWT      *jwt.Service
}

// New wires storage, credentials, the link lifecycle and the access log
// onto one gin engine. Call Start before serving and Close after.
func New(cfg *config.Config, db *gorm.DB, blobs storage.BlobStore) (*App, error) {
	creds, err := credential.NewVerifier(cfg.LinkToken.Secret, cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("credential verifier: %w", err)
	}

	issuer := storage.NewIssuer(blobs, storage.IssuerConfig{
		Delivery:   storage.Delivery(cfg.Storage.Delivery),
		Timeout:    cfg.Storage.Timeout,
		MaxRetries: cfg.Storage.MaxRetries,
		CacheSize:  cfg.Storage.ExistsCacheSize,
		CacheTTL:   cfg.Storage.ExistsCacheTTL,
	})

	jwtService := jwt.New(cfg.JWTSecret, ownerTokenTTL)

	hub := accesslog.NewHub()
	logStore := accesslog.NewRepository(db)
	recorder := accesslog.NewRecorder(logStore, hub, cfg.AccessLog.Buffer, cfg.AccessLog.Workers)

	linkStore := link.NewRepository(db)
	linkService := link.NewService(linkStore, creds, issuer, recorder, link.Config{
		TokenTTL:      cfg.LinkToken.TTL,
		SignedURLTTL:  cfg.Storage.SignedURLTTL,
		PublicBaseURL: cfg.PublicBaseURL,
	})
	linkHandler := link.NewHandler(linkService, link.NewLegacyAdapter(linkStore, linkService))
	logHandler := accesslog.NewHandler(logStore, linkService, hub, jwtService, cfg.CORS.AllowedOrigins)

	r := gin.New()
	r.Use(
		middleware.ErrorLogger(),
		middleware.RequestID(),
		middleware.RequestLogger(),
		middleware.Metrics(),
		middleware.CORS(cfg.CORS.AllowedOrigins),
	)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if local, ok := blobs.(*storage.LocalStore); ok {
		storage.NewHandler(local).RegisterRoutes(r)
	}

	verifyLimit := middleware.RateLimit(middleware.NewIPLimiter(cfg.RateLimit.VerifyRPS, cfg.RateLimit.VerifyBurst))
	linkHandler.RegisterPublicRoutes(&r.RouterGroup, verifyLimit)

	v1 := r.Group("/api/v1")
	{
		logHandler.RegisterWSRoutes(v1)

		protected := v1.Group("")
		protected.Use(middleware.JWTAuth(jwtService))
		{
			linkHandler.RegisterRoutes(protected)
			logHandler.RegisterRoutes(protected)
		}

		admin := v1.Group("/admin")
		admin.Use(middleware.JWTAuth(jwtService), middleware.AdminOnly())
		{
			linkHandler.RegisterAdminRoutes(admin)
		}
	}

	return &App{
		Router:   r,
		Links:    linkService,
		Recorder: recorder,
		Hub:      hub,
		JWT:      jwtService,
	}, nil
}

// Start launches the access log workers. They stop when ctx is done.
func (a *App) Start(ctx context.Context) {
	a.Recorder.Start(ctx)
}

// Close drains pending access events and disconnects live subscribers.
func (a *App) Close() {
	a.Recorder.Close()
	a.Hub.Close()
}
