package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/router-for-me/marketplace-core/internal/auth"
	"github.com/router-for-me/marketplace-core/internal/chat"
	"github.com/router-for-me/marketplace-core/internal/config"
	"github.com/router-for-me/marketplace-core/internal/db"
	"github.com/router-for-me/marketplace-core/internal/featureflag"
	"github.com/router-for-me/marketplace-core/internal/http/api"
	internalhttp "github.com/router-for-me/marketplace-core/internal/http/api/admin"
	"github.com/router-for-me/marketplace-core/internal/http/api/front"
	"github.com/router-for-me/marketplace-core/internal/jobs"
	"github.com/router-for-me/marketplace-core/internal/listing"
	"github.com/router-for-me/marketplace-core/internal/logging"
	"github.com/router-for-me/marketplace-core/internal/media"
	"github.com/router-for-me/marketplace-core/internal/moderation"
	"github.com/router-for-me/marketplace-core/internal/notify"
	"github.com/router-for-me/marketplace-core/internal/ratelimit"
	"github.com/router-for-me/marketplace-core/internal/sms"
	"github.com/router-for-me/marketplace-core/internal/trust"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	shutdownTimeout = 15 * time.Second
	sweepTimeout    = 10 * time.Minute
)

// Runtime is the wired application.
type Runtime struct {
	Config   config.Config
	DB       *gorm.DB
	Services api.Services
	Jobs     []*jobs.Periodic

	redis *redis.Client
}

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.Config) error {
	conn, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer closeDatabase(conn)
	return db.Migrate(conn.WithContext(ctx))
}

// Build opens the database, migrates it and wires every service.
func Build(ctx context.Context, cfg config.Config) (*Runtime, error) {
	conn, err := openDatabase(cfg)
	if err != nil {
		return nil, err
	}
	if errMigrate := db.Migrate(conn.WithContext(ctx)); errMigrate != nil {
		closeDatabase(conn)
		return nil, errMigrate
	}
	rt, errWire := wire(conn, cfg)
	if errWire != nil {
		closeDatabase(conn)
		return nil, errWire
	}
	if missing := missingAdmins(conn, cfg.AdminEmails); len(missing) > 0 {
		log.WithField("emails", missing).Warn("admin allow-list entries have no account yet")
	}
	return rt, nil
}

func wire(conn *gorm.DB, cfg config.Config) (*Runtime, error) {
	rt := &Runtime{Config: cfg, DB: conn}

	var flagCache featureflag.Cache
	if cfg.Redis.Addr != "" {
		rt.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		flagCache = featureflag.NewRedisCache(rt.redis, cfg.Redis.Prefix)
	}
	flags := featureflag.NewService(conn, flagCache, featureflag.DefaultTTL)

	sender, errSMS := sms.New(cfg.SMS)
	if errSMS != nil {
		return nil, errSMS
	}

	dispatcher := notify.NewDispatcher(conn, notify.LogPusher{})
	calculator := trust.NewCalculator(conn)
	threads := chat.NewService(conn, flags, dispatcher)
	listings := listing.NewService(conn, dispatcher, calculator, flags, cfg.Listings.ActiveDuration)
	moderationService := moderation.NewService(conn, flags, calculator, threads, dispatcher, cfg.Moderation.AutoHideThreshold)
	authService := auth.NewService(conn, auth.SettingsFromConfig(cfg), sender)

	mediaService, errMedia := media.NewService(cfg.Media)
	if errMedia != nil {
		log.WithError(errMedia).Warn("media signing disabled")
		mediaService = nil
	}

	redisSettings := ratelimit.SettingsFromConfig(cfg.Redis)
	limiter := ratelimit.NewManager(func() ratelimit.SettingsConfig { return redisSettings }, nil, nil)

	rt.Services = api.Services{
		DB:              conn,
		Auth:            authService,
		Listings:        listings,
		Chat:            threads,
		Moderation:      moderationService,
		Trust:           calculator,
		Flags:           flags,
		Notifications:   dispatcher,
		Media:           mediaService,
		Limiter:         limiter,
		Rules:           ratelimit.ResolveRules(cfg.RateLimits),
		FingerprintSalt: cfg.FingerprintSalt,
		AdminEmails:     cfg.AdminEmails,
	}
	rt.Jobs = []*jobs.Periodic{
		{Name: "listing-expiry", Interval: cfg.Jobs.ExpirySweepInterval, Timeout: sweepTimeout, Run: listings.ExpireDue},
		{Name: "trust-recalculation", Interval: cfg.Jobs.TrustSweepInterval, Timeout: sweepTimeout, Run: calculator.RecalculateAll},
	}
	return rt, nil
}

// Router builds the gin engine with every route registered.
func (rt *Runtime) Router() *gin.Engine {
	if rt.Config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(logging.GinLogger(), gin.Recovery())
	front.RegisterFrontRoutes(engine, rt.Services)
	internalhttp.RegisterAdminRoutes(engine, rt.Services)
	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "NOT_FOUND", "message": "route not found"})
	})
	return engine
}

// Sweep runs every periodic job once.
func (rt *Runtime) Sweep(ctx context.Context) error {
	var errs []error
	for _, job := range rt.Jobs {
		if _, errRun := job.RunOnce(ctx); errRun != nil {
			errs = append(errs, fmt.Errorf("%s: %w", job.Name, errRun))
		}
	}
	return errors.Join(errs...)
}

// Close drains pending notifications and releases connections.
func (rt *Runtime) Close() {
	if rt.Services.Notifications != nil {
		rt.Services.Notifications.Wait()
	}
	if rt.Services.Limiter != nil {
		if errClose := rt.Services.Limiter.Close(); errClose != nil {
			log.WithError(errClose).Warn("close rate limiter")
		}
	}
	if rt.redis != nil {
		if errClose := rt.redis.Close(); errClose != nil {
			log.WithError(errClose).Warn("close redis client")
		}
	}
	closeDatabase(rt.DB)
}

// RunServer serves the API until ctx is cancelled, running the periodic jobs alongside.
func RunServer(ctx context.Context, cfg config.Config) error {
	rt, err := Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	jobCtx, cancelJobs := context.WithCancel(ctx)
	done := make([]<-chan struct{}, 0, len(rt.Jobs))
	for _, job := range rt.Jobs {
		done = append(done, job.Start(jobCtx))
	}
	defer func() {
		cancelJobs()
		for _, ch := range done {
			<-ch
		}
	}()

	server := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           rt.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		if database, errSafe := safeDSN(cfg.DatabaseDSN); errSafe == nil {
			log.WithFields(log.Fields{"addr": server.Addr, "database": database}).Info("marketplace api listening")
		} else {
			log.WithField("addr", server.Addr).Info("marketplace api listening")
		}
		if errServe := server.ListenAndServe(); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			serveErr <- errServe
		}
		close(serveErr)
	}()

	select {
	case errServe, ok := <-serveErr:
		if ok {
			return fmt.Errorf("http server: %w", errServe)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
		return fmt.Errorf("http shutdown: %w", errShutdown)
	}
	return nil
}

// Sweep builds the application and runs every periodic job once.
func Sweep(ctx context.Context, cfg config.Config) error {
	rt, err := Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()
	return rt.Sweep(ctx)
}

func openDatabase(cfg config.Config) (*gorm.DB, error) {
	conn, err := db.Open(cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func closeDatabase(conn *gorm.DB) {
	if conn == nil {
		return
	}
	sqlDB, errDB := conn.DB()
	if errDB != nil {
		return
	}
	if errClose := sqlDB.Close(); errClose != nil {
		log.Errorf("sql db close error: %v", errClose)
	}
}
