package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/edutrack/messaging/internal/cache"
	"github.com/edutrack/messaging/internal/config"
	"github.com/edutrack/messaging/internal/handler"
	"github.com/edutrack/messaging/internal/logger"
	"github.com/edutrack/messaging/internal/middleware"
	"github.com/edutrack/messaging/internal/model"
	"github.com/edutrack/messaging/internal/push"
	"github.com/edutrack/messaging/internal/repository"
	"github.com/edutrack/messaging/internal/startup"
	"github.com/edutrack/messaging/internal/storage"
	"github.com/edutrack/messaging/internal/storage/memory"
	"github.com/edutrack/messaging/internal/ws"
	"github.com/edutrack/messaging/migrations"
)

const memberCacheTTL = 30 * time.Second

func main() {
	logger.SetPrefix("api")
	migrate := flag.Bool("migrate", false, "run database migrations and exit")
	dev := flag.Bool("dev", false, "start with embedded PostgreSQL and in-memory session store")
	flag.Parse()

	logger.Info("starting messaging service")
	cfg := config.Load()

	var embeddedDB *embeddedpostgres.EmbeddedPostgres
	if *dev {
		var err error
		embeddedDB, err = startEmbeddedPostgres(cfg)
		if err != nil {
			logger.Errorf("embedded postgres: %v", err)
			os.Exit(1)
		}
		defer func() {
			logger.Info("stopping embedded postgres...")
			if err := embeddedDB.Stop(); err != nil {
				logger.Errorf("embedded postgres stop: %v", err)
			}
		}()
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL())
	if err != nil {
		logger.Errorf("parse db config: %v", err)
		os.Exit(1)
	}
	poolCfg.MaxConns = int32(cfg.DBMaxConnections())
	poolCfg.MinConns = 4

	pool := startup.ConnectDBWithRetry(poolCfg, 60*time.Second)
	defer pool.Close()

	runMigrations(pool)
	if *migrate && !*dev {
		return
	}
	logger.Info("database connected, migrations applied")

	var store storage.Store
	if *dev {
		store = memory.New()
		logger.Info("using in-memory session store")
	} else {
		store = startup.ConnectRedisWithRetry(cfg.Redis.URL, 60*time.Second)
	}
	defer store.Close()

	profileRepo := repository.NewProfileRepository(pool)
	friendRepo := repository.NewFriendRepository(pool)
	groupRepo := repository.NewGroupRepository(pool)
	msgRepo := repository.NewMessageRepository(pool)
	pushRepo := repository.NewPushRepository(pool)

	vapid, err := push.EnsureVAPIDKeys("")
	if err != nil {
		logger.Errorf("vapid keys: %v", err)
		os.Exit(1)
	}
	cfg.PushVAPIDPublicKey = vapid.PublicKey
	pushSvc := push.NewService(pushRepo, vapid, cfg.PushSubscriber)

	hubCtx, hubCancel := context.WithCancel(context.Background())
	friendCache := cache.NewFriends(hubCtx, friendRepo, memberCacheTTL)
	memberCache := cache.NewMembers(hubCtx, groupRepo, memberCacheTTL)
	groups := groupDirectory{Members: memberCache, repo: groupRepo}

	hub := ws.NewHub(hubCtx, profileRepo, msgRepo, friendCache, groups, store, pushSvc,
		cfg.TypingTTL(), cfg.MaxWSConnections, cfg.WSSendBufferSize)

	var hubWg sync.WaitGroup
	hubWg.Add(1)
	go func() {
		defer hubWg.Done()
		hub.Run()
	}()

	userH := handler.NewUserHandler(profileRepo)
	friendH := handler.NewFriendHandler(friendRepo, friendCache)
	msgH := handler.NewMessageHandler(hub, msgRepo, friendCache)
	groupH := handler.NewGroupHandler(groupRepo, msgRepo, hub, memberCache, store)
	pushH := handler.NewPushHandler(pushSvc, cfg.PushVAPIDPublicKey)
	wsH := handler.WSHandler(hub, cfg.CORSAllowedOrigins)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RecoverJSON)
	// Do not compress WebSocket: the wrapped ResponseWriter loses http.Hijacker
	// and the upgrade fails with a 500.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if strings.EqualFold(req.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, req)
				return
			}
			chimw.Compress(5)(next).ServeHTTP(w, req)
		})
	})
	r.Use(middleware.RequestLog)
	r.Use(middleware.RateLimitAPI)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.CORSAllowedOrigins},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Session-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/api/config/push", pushH.Config)

	if *dev {
		devH := handler.NewDevSessionHandler(profileRepo, store, cfg.SessionTTL)
		r.Post("/api/auth/dev-session", devH.Create)
		logger.Info("dev session endpoint enabled")
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.SessionAuth(store))

		r.Get("/api/users", userH.List)
		r.Get("/api/users/me", userH.Me)

		r.Get("/api/friends", friendH.List)
		r.Get("/api/friends/requests", friendH.Requests)
		r.Post("/api/friends/requests", friendH.CreateRequest)
		r.Post("/api/friends/requests/{senderId}/accept", friendH.Accept)
		r.Delete("/api/friends/requests/{senderId}", friendH.Reject)

		r.Get("/api/messages/{peerId}", msgH.History)
		r.Post("/api/messages/{peerId}", msgH.Send)
		r.Patch("/api/messages/{id}", msgH.Edit)
		r.Delete("/api/messages/{id}", msgH.Delete)
		r.Post("/api/messages/{id}/reactions", msgH.React)
		r.Post("/api/messages/{id}/pin", msgH.TogglePin)

		r.Post("/api/groups", groupH.Create)
		r.Get("/api/groups", groupH.ListJoined)
		r.Get("/api/groups/public", groupH.ListPublic)
		r.Get("/api/groups/search", groupH.Search)
		r.Post("/api/groups/{id}/join", groupH.Join)
		r.Post("/api/groups/{id}/leave", groupH.Leave)
		r.Delete("/api/groups/{id}", groupH.Delete)
		r.Get("/api/groups/{id}/members", groupH.Members)
		r.Get("/api/groups/{id}/messages", groupH.Messages)
		r.Post("/api/groups/{id}/messages", groupH.Send)
		r.Get("/api/groups/{id}/pinned", groupH.Pinned)
		r.Get("/api/groups/{id}/typing", groupH.Typing)

		r.Post("/api/push/subscribe", pushH.Subscribe)
		r.Delete("/api/push/subscribe", pushH.Unsubscribe)

		r.Get("/ws", wsH)
	})

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	var srvWg sync.WaitGroup
	errCh := make(chan error, 1)
	srvWg.Add(1)
	go func() {
		defer srvWg.Done()
		logger.Infof("server listening on %s", cfg.ServerAddr)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Errorf("server error: %v", err)
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
	logger.Info("server stopped accepting connections")
	hubCancel()
	hubWg.Wait()
	logger.Info("hub stopped")
	srvWg.Wait()
	logger.Info("server goroutine exited")
}

// groupDirectory backs the hub's group lookups: membership answers come from
// the TTL cache, the full roster (profiles included) straight from Postgres.
type groupDirectory struct {
	*cache.Members
	repo *repository.GroupRepository
}

func (g groupDirectory) GetMembers(ctx context.Context, groupID string) ([]model.GroupMember, error) {
	return g.repo.GetMembers(ctx, groupID)
}

func runMigrations(pool *pgxpool.Pool) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	entries, err := migrations.FS.ReadDir(".")
	if err != nil {
		logger.Errorf("read migrations: %v", err)
		os.Exit(1)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		data, err := migrations.FS.ReadFile(name)
		if err != nil {
			logger.Errorf("read migration %s: %v", name, err)
			os.Exit(1)
		}
		if _, err := pool.Exec(ctx, string(data)); err != nil {
			logger.Errorf("run migration %s: %v", name, err)
			os.Exit(1)
		}
	}
	logger.Info("migrations applied")
}

func startEmbeddedPostgres(cfg *config.Config) (*embeddedpostgres.EmbeddedPostgres, error) {
	const (
		port     = 5432
		user     = "edutrack"
		password = "edutrack_secret"
		database = "edutrack"
	)

	dataDir := filepath.Join(".", ".pgdata")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create pgdata dir: %w", err)
	}

	db := embeddedpostgres.NewDatabase(
		embeddedpostgres.DefaultConfig().
			Port(port).
			Username(user).
			Password(password).
			Database(database).
			DataPath(dataDir).
			RuntimePath(filepath.Join(os.TempDir(), "embedded-pg-runtime")),
	)

	logger.Info("starting embedded PostgreSQL...")
	if err := db.Start(); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}

	cfg.Database.URL = fmt.Sprintf(
		"postgres://%s:%s@localhost:%d/%s?sslmode=disable",
		user, password, port, database,
	)
	logger.Infof("embedded PostgreSQL running on port %d", port)
	return db, nil
}
