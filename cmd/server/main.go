// Command server runs the allergy-snatcher identity and food API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uptrace/bun"
	"golang.org/x/crypto/bcrypt"

	"github.com/allergysnatcher/auth"
	"github.com/allergysnatcher/auth/activitymap"
	"github.com/allergysnatcher/auth/config"
	"github.com/allergysnatcher/auth/foods"
	"github.com/allergysnatcher/auth/kv"
	"github.com/allergysnatcher/auth/middleware/ratelimit"
	"github.com/allergysnatcher/auth/repository"
	"github.com/allergysnatcher/auth/social"
)

func main() {
	configFile := flag.String("config", "", "path to the config file")
	purge := flag.Bool("purge", false, "delete sessions with expired refresh tokens and exit")
	seedAdmin := flag.String("seed-admin", "", "create an admin with this email (password from ALLERGY_SEED_ADMIN_PASSWORD) and exit")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logs := auth.NewLoggerProvider(os.Stdout, cfg.Logging.Format, cfg.Logging.Level)
	logger := logs.GetLogger("server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newServer(ctx, cfg, logs)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer app.close()

	switch {
	case *purge:
		n, err := app.sessions.PurgeExpired(ctx)
		if err != nil {
			logger.Error("purge failed", "error", err)
			os.Exit(1)
		}
		logger.Info("expired sessions purged", "count", n)
		return
	case *seedAdmin != "":
		if err := app.seedAdmin(ctx, *seedAdmin, os.Getenv("ALLERGY_SEED_ADMIN_PASSWORD")); err != nil {
			logger.Error("seed admin failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := app.serve(ctx); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

type server struct {
	cfg      *config.Config
	logs     *auth.SlogLogger
	logger   auth.Logger
	db       *bun.DB
	store    kv.Store
	repo     auth.RepositoryManager
	hasher   auth.PasswordHasher
	sessions *auth.SessionManager
	registry *prometheus.Registry
	fiber    *fiber.App
}

func newServer(ctx context.Context, cfg *config.Config, logs *auth.SlogLogger) (*server, error) {
	s := &server{
		cfg:      cfg,
		logs:     logs,
		logger:   logs.GetLogger("server"),
		registry: prometheus.NewRegistry(),
	}

	db, err := repository.Open(ctx, repository.Options{
		Driver:       cfg.Database.Driver,
		DSN:          cfg.Database.DSN,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleTime:  cfg.Database.MaxIdleTime,
	})
	if err != nil {
		return nil, err
	}
	s.db = db

	if cfg.Database.Migrate {
		if err := repository.Migrate(ctx, db, repository.WithMigrationLogger(logs.GetLogger("migrations"))); err != nil {
			s.close()
			return nil, err
		}
		version, _ := repository.MigrationVersion(ctx, db)
		s.logger.Info("database migrated", "driver", cfg.Database.Driver, "version", version)
	}

	if cfg.Redis.Enabled() {
		store, err := kv.NewRedis(ctx, kv.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
		if err != nil {
			s.close()
			return nil, err
		}
		s.store = store
		s.logger.Info("connected to redis", "addr", cfg.Redis.Addr)
	} else {
		s.store = kv.NewMemory(nil)
		s.logger.Info("redis not configured, using in-memory store")
	}

	s.repo = repository.NewRepositoryManager(db)
	s.hasher = auth.NewBcryptHasher(bcryptCost(cfg.Auth.BcryptCost))

	issuer, err := auth.NewTokenIssuer(cfg.Auth.SessionLifetime, cfg.Auth.RefreshLifetime)
	if err != nil {
		s.close()
		return nil, err
	}

	metrics, err := auth.NewPrometheusMetrics(s.registry)
	if err != nil {
		s.close()
		return nil, err
	}
	s.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	s.sessions = auth.NewSessionManager(
		s.repo,
		issuer,
		auth.NewUserProvider(s.repo.Users(), s.hasher).WithLogger(logs.GetLogger("auth.users")),
		auth.WithSessionLogger(logs.GetLogger("auth.sessions")),
		auth.WithActivitySink(s.activity()),
		auth.WithSessionMetrics(metrics),
	)

	if err := s.routes(); err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

func (s *server) activity() auth.ActivitySink {
	return activitymap.NewLogSink(s.logs.GetLogger("activity"))
}

func (s *server) routes() error {
	cfg := s.cfg

	s.fiber = fiber.New(fiber.Config{
		AppName:      "allergy-snatcher",
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		ErrorHandler: auth.NewErrorHandler(s.logs.GetLogger("http")),
	})
	s.fiber.Use(recover.New())
	s.fiber.Use(requestid.New())

	s.fiber.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	s.fiber.Get("/ready", func(c *fiber.Ctx) error {
		if err := s.db.PingContext(c.UserContext()); err != nil {
			return auth.StorageError(err, "database not ready")
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})

	if cfg.Metrics.Enabled {
		s.fiber.Get(cfg.Metrics.Path, adaptor.HTTPHandler(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	}

	cookies := cfg.Auth.Cookies()
	guard := auth.NewGuard(s.sessions,
		auth.WithGuardLogger(s.logs.GetLogger("auth.guard")),
		auth.WithSessionCookie(cookies.SessionName),
	)

	sink := s.activity()
	register := auth.NewRegisterUserHandler(s.repo, s.hasher, cfg.Auth.AdminKey).
		WithLogger(s.logs.GetLogger("auth.register")).
		WithActivitySink(sink)

	controllerOpts := []auth.AuthControllerOption{
		auth.WithControllerLogger(s.logs.GetLogger("auth.controller")),
		auth.WithControllerCookies(cookies),
		auth.WithRegisterHandler(register),
		auth.WithStateMachine(auth.NewUserStateMachine(s.repo, s.sessions,
			auth.WithStateMachineLogger(s.logs.GetLogger("auth.state")),
			auth.WithStateMachineActivitySink(sink),
		)),
	}
	if cfg.Auth.LoginRateLimit > 0 {
		controllerOpts = append(controllerOpts, auth.WithLoginLimiter(ratelimit.New(s.store, ratelimit.Config{
			Name:              "login",
			RequestsPerMinute: cfg.Auth.LoginRateLimit,
			BurstSize:         cfg.Auth.LoginBurst,
			Logger:            s.logs.GetLogger("ratelimit"),
		})))
	}
	auth.NewAuthController(s.repo, s.sessions, guard, controllerOpts...).RegisterRoutes(s.fiber)

	if len(cfg.OAuth.Enabled()) > 0 {
		if err := s.socialRoutes(cookies, sink); err != nil {
			return err
		}
	}

	foods.NewController(
		foods.NewStore(s.db),
		guard,
		foods.WithControllerLogger(s.logs.GetLogger("foods")),
	).RegisterRoutes(s.fiber)

	return nil
}

func (s *server) socialRoutes(cookies auth.CookieConfig, sink auth.ActivitySink) error {
	cfg := s.cfg

	registry, err := buildProviders(cfg.OAuth, providerHTTPClient())
	if err != nil {
		return err
	}

	states, err := social.NewEncryptedStateManager([]byte(cfg.Auth.StateKey), []byte(cfg.Auth.StateHMACKey), cfg.Auth.StateTTL)
	if err != nil {
		return err
	}

	linker := social.NewLinker(s.repo, s.sessions,
		social.WithLinkerLogger(s.logs.GetLogger("social.linker")),
		social.WithLinkerActivitySink(sink),
	)

	authenticator := social.NewAuthenticator(
		registry,
		states,
		linker,
		s.sessions,
		social.NewHandoffStore(s.store, cfg.Auth.HandoffTTL),
		social.WithAuthenticatorLogger(s.logs.GetLogger("social.authenticator")),
		social.WithAuthenticatorActivitySink(sink),
		social.WithRequireVerifiedEmail(cfg.Auth.RequireVerifiedEmail),
	)

	verifier := social.NewBackchannelVerifier(buildLogoutKeys(cfg.OAuth, s.logs.GetLogger("social.backchannel"))...)

	social.NewHTTPController(authenticator, linker, verifier, s.sessions, social.HTTPConfig{
		PathPrefix: cfg.OAuth.PathPrefix,
		AppURL:     cfg.Auth.AppURL,
		Cookies:    cookies,
	},
		social.WithHTTPLogger(s.logs.GetLogger("social.http")),
		social.WithHTTPActivitySink(sink),
	).RegisterRoutes(s.fiber)

	s.logger.Info("federated login enabled",
		"providers", registry.Names(),
		"backchannel_keys", verifier.Len(),
	)
	return nil
}

func (s *server) serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.cfg.Server.Addr())
		errCh <- s.fiber.Listen(s.cfg.Server.Addr())
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	if err := s.fiber.ShutdownWithTimeout(s.cfg.Server.ShutdownTimeout); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	s.logger.Info("server stopped gracefully")
	return nil
}

func (s *server) seedAdmin(ctx context.Context, email, password string) error {
	if password == "" {
		return errors.New("ALLERGY_SEED_ADMIN_PASSWORD is not set")
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// the handler's admin key check is satisfied with a one-off key
	const seedKey = "seed"
	user, err := auth.NewRegisterUserHandler(s.repo, s.hasher, seedKey).
		WithLogger(s.logs.GetLogger("auth.register")).
		Execute(ctx, auth.RegisterUserMessage{
			Email:     email,
			Password:  password,
			Role:      string(auth.RoleAdmin),
			AdminKey:  seedKey,
			UseHashid: true,
		})
	if err != nil {
		if auth.IsConflict(err) {
			s.logger.Info("admin already exists", "email", email)
			return nil
		}
		return err
	}

	s.logger.Info("admin seeded", "user_id", user.ID, "email", user.Email)
	return nil
}

func (s *server) close() {
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn("kv close failed", "error", err)
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Warn("database close failed", "error", err)
		}
	}
}

func bcryptCost(cost int) int {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return bcrypt.DefaultCost
	}
	return cost
}
