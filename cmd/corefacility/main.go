package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/corefacility/pkg/access"
	"github.com/platinummonkey/corefacility/pkg/config"
	"github.com/platinummonkey/corefacility/pkg/groups"
	"github.com/platinummonkey/corefacility/pkg/modules"
	"github.com/platinummonkey/corefacility/pkg/observability"
	"github.com/platinummonkey/corefacility/pkg/projects"
	"github.com/platinummonkey/corefacility/pkg/query"
	"github.com/platinummonkey/corefacility/pkg/schema"
	"github.com/platinummonkey/corefacility/pkg/tokens"
	"github.com/platinummonkey/corefacility/pkg/users"
)

const version = "1.0.0"

func main() {
	// Local overrides; absence of the file is fine
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.WithField("driver", cfg.Database.Driver).Info("starting corefacility")

	dialect := query.SQLite
	if cfg.Database.Driver == "postgres" {
		dialect = query.PostgreSQL
	}

	db, err := sql.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		logger.WithError(err).Error("failed to open database")
		os.Exit(1)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)

	ctx := context.Background()
	if err := schema.RunMigrations(ctx, db, dialect); err != nil {
		logger.WithError(err).Error("failed to run migrations")
		os.Exit(1)
	}
	logger.Info("schema migrated")

	var redisClient *redis.Client
	var aclCache *access.Cache
	if cfg.Database.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Database.RedisAddr,
			Password: cfg.Database.RedisPassword,
			DB:       cfg.Database.RedisDB,
		})
		aclCache = access.NewCacheFromClient(redisClient, cfg.Database.ACLCacheTTL)
		defer aclCache.Close()
		logger.WithField("addr", cfg.Database.RedisAddr).Info("acl cache enabled")
	}

	userFactory := users.NewFactory(db, dialect, users.Options{
		ManageUnixUsers: cfg.Core.ManageUnixUsers,
		BaseDir:         cfg.Core.UserBaseDir,
		AvatarRoot:      cfg.Core.AvatarRoot,
	})
	groupFactory := groups.NewFactory(db, dialect, userFactory)
	groupFactory.UseACLCache(aclCache)
	projectFactory := projects.NewFactory(db, dialect, groupFactory, userFactory, projects.Options{
		ManageUnixGroups: cfg.Core.ManageUnixGroups,
		DirRoot:          cfg.Core.ProjectDirRoot,
		AvatarRoot:       cfg.Core.AvatarRoot,
		ACLCache:         aclCache,
	})
	levelStore := access.NewLevelStore(db, dialect)

	moduleLog := logrus.New()
	env := &modules.Env{
		DB:        db,
		Dialect:   dialect,
		RoutesDir: cfg.Core.RoutesDir,
		Users:     userFactory,
		Groups:    groupFactory,
		Projects:  projectFactory,
		Levels:    levelStore,
		Logger:    moduleLog,
	}
	if err := installRootModule(ctx, env); err != nil {
		logger.WithError(err).Error("failed to install root module")
		os.Exit(1)
	}

	authEngine := tokens.NewAuthenticationEngine(db, dialect)
	cookieEngine := tokens.NewCookieEngine(db, dialect)
	sessionEngine := tokens.NewSessionEngine(db, dialect)

	registry := prometheus.NewRegistry()
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	scheduler := cron.New()
	_, err = scheduler.AddFunc("@every "+cfg.Core.TokenSweepInterval.String(), func() {
		sweep(ctx, logger, metrics, authEngine, cookieEngine, sessionEngine)
	})
	if err != nil {
		logger.WithError(err).Error("failed to schedule token sweeper")
		os.Exit(1)
	}
	scheduler.Start()
	defer scheduler.Stop()

	healthServer := newHealthServer(cfg, db, redisClient, registry)
	go func() {
		logger.WithField("port", cfg.Server.HealthPort).Info("health server listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("health server failed")
		}
	}()

	manager := observability.NewShutdownManager(logger, healthServer, cfg.Server.ShutdownTimeout)
	manager.RegisterShutdownFunc(func(ctx context.Context) error {
		scheduler.Stop()
		return nil
	})
	if redisClient != nil {
		manager.RegisterShutdownFunc(func(ctx context.Context) error {
			return redisClient.Close()
		})
	}
	if err := manager.WaitForShutdown(); err != nil {
		logger.WithError(err).Error("shutdown finished with errors")
		os.Exit(1)
	}
}

// rootDefinition describes the core module. Every other module attaches
// under one of these entry points.
func rootDefinition() modules.Definition {
	return modules.Definition{
		Alias:       "core",
		Name:        "Core functionality",
		AppClass:    "corefacility/pkg/modules.Core",
		PackagePath: "github.com/platinummonkey/corefacility",
		EntryPoints: []modules.EntryPointDefinition{
			{
				Alias: "authorizations",
				Name:  "External authorization methods",
				Type:  modules.ListEntryPoint,
				Class: "corefacility/pkg/modules.AuthorizationsEntryPoint",
			},
			{
				Alias: "synchronizations",
				Name:  "Account synchronization methods",
				Type:  modules.SelectEntryPoint,
				Class: "corefacility/pkg/modules.SynchronizationsEntryPoint",
			},
			{
				Alias: "projects",
				Name:  "Project applications",
				Type:  modules.ListEntryPoint,
				Class: "corefacility/pkg/modules.ProjectsEntryPoint",
			},
		},
	}
}

func installRootModule(ctx context.Context, env *modules.Env) error {
	root, err := modules.Obtain(env, rootDefinition(), nil)
	if err != nil {
		return err
	}
	if _, err := root.UUID(ctx); err != nil {
		return err
	}
	if root.State() != modules.Uninstalled {
		return nil
	}
	return root.Install(ctx)
}

type expirer interface {
	ClearAllExpired(ctx context.Context) (int64, error)
}

func sweep(ctx context.Context, logger *observability.Logger, metrics *observability.Metrics, engines ...expirer) {
	defer observability.RecoverPanic(logger, "token sweeper")
	for _, e := range engines {
		n, err := e.ClearAllExpired(ctx)
		if err != nil {
			logger.WithError(err).Warn("token sweep failed")
			continue
		}
		if metrics != nil {
			metrics.TokensSweptTotal.Add(float64(n))
		}
	}
}

func newHealthServer(cfg *config.Config, db *sql.DB, redisClient *redis.Client, registry *prometheus.Registry) *http.Server {
	checker := observability.NewHealthChecker(db, redisClient, version)
	r := mux.NewRouter()
	r.HandleFunc("/health", checker.Readiness)
	r.HandleFunc("/health/live", checker.Liveness)
	r.HandleFunc("/health/ready", checker.Readiness)
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}
